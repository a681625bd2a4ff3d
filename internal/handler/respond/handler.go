package respond

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/callsim/backend/internal/model/conversation"
	"github.com/zhouzirui/callsim/backend/internal/model/persona"
	"github.com/zhouzirui/callsim/backend/internal/service/ai"
	conversationService "github.com/zhouzirui/callsim/backend/internal/service/conversation"
	"github.com/zhouzirui/callsim/backend/pkg/utils"
)

// Handler 无状态的单轮回复接口，客户端自带完整对话历史
type Handler struct {
	personas  persona.Store
	generator ai.Generator
}

// New 创建回复处理器
func New(personas persona.Store, generator ai.Generator) *Handler {
	return &Handler{personas: personas, generator: generator}
}

// RegisterRoutes 注册回复路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/respond", h.handleRespond)
}

type historyEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respondRequest struct {
	PersonaID           string         `json:"persona_id"`
	TurnNumber          int            `json:"turn_number"`
	ConversationHistory []historyEntry `json:"conversation_history"`
}

type respondResponse struct {
	PersonaID  string `json:"persona_id"`
	TurnNumber int    `json:"turn_number"`
	Response   string `json:"response"`
}

func (h *Handler) handleRespond(w http.ResponseWriter, r *http.Request) {
	var req respondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondErrorCode(w, http.StatusBadRequest, conversationService.CodeInvalidMessage, "invalid request body")
		return
	}

	p, ok := h.personas.FindByID(req.PersonaID)
	if !ok {
		utils.RespondErrorCode(w, http.StatusNotFound, conversationService.CodeUnknownPersona, "persona not found")
		return
	}

	turns, err := historyTurns(req.ConversationHistory)
	if err != nil {
		utils.RespondErrorCode(w, http.StatusBadRequest, conversationService.CodeInvalidMessage, err.Error())
		return
	}

	genReq := ai.Request{System: ai.BuildOpeningPrompt(p), Messages: ai.OpeningMessages()}
	if len(turns) > 0 {
		genReq.System = ai.BuildSystemPrompt(p)
		if req.TurnNumber > 0 {
			genReq.System = ai.BuildTurnPrompt(p, req.TurnNumber)
		}
		if genReq.Messages, err = ai.HistoryMessages(turns); err != nil {
			utils.RespondErrorCode(w, http.StatusBadRequest, conversationService.CodeInvalidMessage, err.Error())
			return
		}
	}

	reply, err := h.generator.Generate(r.Context(), genReq)
	if err != nil {
		code := conversationService.GenerationCode(err)
		log.Printf("[respond] generation failed persona=%s code=%s: %v", p.ID, code, err)
		status := http.StatusBadGateway
		if code == conversationService.CodeBackendTimeout {
			status = http.StatusGatewayTimeout
		}
		utils.RespondErrorCode(w, status, code, "failed to generate response")
		return
	}

	utils.RespondJSON(w, http.StatusOK, respondResponse{
		PersonaID:  p.ID,
		TurnNumber: req.TurnNumber,
		Response:   reply,
	})
}

// historyTurns 转换客户端历史；"advisor" 是旧客户端对 operator 的叫法
func historyTurns(entries []historyEntry) ([]conversation.Turn, error) {
	turns := make([]conversation.Turn, 0, len(entries))
	now := time.Now().UTC()
	for i, entry := range entries {
		name := strings.ToLower(strings.TrimSpace(entry.Role))
		if name == "advisor" {
			name = conversation.RoleOperator.String()
		}
		role, err := conversation.ParseRole(name)
		if err != nil {
			return nil, fmt.Errorf("conversation_history[%d]: %w", i, err)
		}
		turns = append(turns, conversation.Turn{Number: i + 1, Role: role, Content: entry.Content, CreatedAt: now})
	}
	return turns, nil
}
