package persona

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/callsim/backend/internal/model/persona"
	"github.com/zhouzirui/callsim/backend/pkg/utils"
)

// Handler persona服务的HTTP处理器
type Handler struct {
	personas persona.Store
}

// New 创建persona处理器
func New(personas persona.Store) *Handler {
	return &Handler{
		personas: personas,
	}
}

// RegisterRoutes 注册persona相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/personas", h.handleListPersonas)
	r.Get("/personas/{personaID}", h.handleGetPersona)
}

// handleListPersonas 列出所有persona的公开信息
func (h *Handler) handleListPersonas(w http.ResponseWriter, r *http.Request) {
	items := h.personas.List()
	summaries := make([]persona.Summary, 0, len(items))
	for _, p := range items {
		summaries = append(summaries, p.Summary())
	}
	utils.RespondJSON(w, http.StatusOK, summaries)
}

func (h *Handler) handleGetPersona(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "personaID")
	p, ok := h.personas.FindByID(id)
	if !ok {
		utils.RespondErrorCode(w, http.StatusNotFound, "UnknownPersona", "persona not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, p.Summary())
}
