package transcript

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/callsim/backend/internal/model/conversation"
	transcriptService "github.com/zhouzirui/callsim/backend/internal/service/transcript"
	"github.com/zhouzirui/callsim/backend/pkg/utils"
)

// Handler 对话记录的HTTP处理器
type Handler struct {
	reader transcriptService.Reader
}

// New 创建对话记录处理器，reader 为 nil 表示未启用记录存储。
func New(reader transcriptService.Reader) *Handler {
	return &Handler{reader: reader}
}

// RegisterRoutes 注册对话记录相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions", h.handleListSessions)
	r.Get("/sessions/{sessionID}", h.handleGetSession)
	r.Get("/sessions/{sessionID}/transcript", h.handleGetTranscript)
}

type transcriptResponse struct {
	Session transcriptService.SessionRecord `json:"session"`
	Turns   []conversation.Turn             `json:"turns"`
}

// handleListSessions 列出历史通话，operator_id（兼容 user_id）为空时返回全部
func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if h.reader == nil {
		utils.RespondError(w, http.StatusNotImplemented, "transcript storage disabled")
		return
	}

	query := r.URL.Query()
	operatorID := query.Get("operator_id")
	if operatorID == "" {
		operatorID = query.Get("user_id")
	}

	records, err := h.reader.List(r.Context(), operatorID)
	if err != nil {
		log.Printf("[transcript] list failed operator=%q: %v", operatorID, err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	utils.RespondJSON(w, http.StatusOK, records)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if h.reader == nil {
		utils.RespondError(w, http.StatusNotImplemented, "transcript storage disabled")
		return
	}

	record, err := h.reader.Session(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondLookupError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, record)
}

// handleGetTranscript 返回会话摘要及按轮次排序的对话内容
func (h *Handler) handleGetTranscript(w http.ResponseWriter, r *http.Request) {
	if h.reader == nil {
		utils.RespondError(w, http.StatusNotImplemented, "transcript storage disabled")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	record, err := h.reader.Session(r.Context(), sessionID)
	if err != nil {
		h.respondLookupError(w, err)
		return
	}
	turns, err := h.reader.Transcript(r.Context(), sessionID)
	if err != nil {
		h.respondLookupError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, transcriptResponse{Session: record, Turns: turns})
}

func (h *Handler) respondLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, transcriptService.ErrSessionNotFound) {
		utils.RespondErrorCode(w, http.StatusNotFound, "SessionNotFound", "session not found")
		return
	}
	log.Printf("[transcript] lookup failed: %v", err)
	utils.RespondError(w, http.StatusInternalServerError, "failed to load transcript")
}
