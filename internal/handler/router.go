package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/callsim/backend/internal/handler/conversation"
	"github.com/zhouzirui/callsim/backend/internal/handler/persona"
	"github.com/zhouzirui/callsim/backend/internal/handler/respond"
	"github.com/zhouzirui/callsim/backend/internal/handler/transcript"
	middlewarePkg "github.com/zhouzirui/callsim/backend/internal/middleware"
	personaModel "github.com/zhouzirui/callsim/backend/internal/model/persona"
	"github.com/zhouzirui/callsim/backend/internal/service/ai"
	conversationService "github.com/zhouzirui/callsim/backend/internal/service/conversation"
	transcriptService "github.com/zhouzirui/callsim/backend/internal/service/transcript"
	"github.com/zhouzirui/callsim/backend/pkg/utils"
)

// Dependencies are the services exposed over HTTP. Nil members disable their routes.
type Dependencies struct {
	Personas      personaModel.Store
	Conversations *conversationService.Service
	Generator     ai.Generator
	Transcripts   transcriptService.Reader
	Metrics       http.Handler
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		persona.New(deps.Personas).RegisterRoutes(api)
		transcript.New(deps.Transcripts).RegisterRoutes(api)

		if deps.Generator != nil {
			respond.New(deps.Personas, deps.Generator).RegisterRoutes(api)
		} else {
			api.Post("/respond", func(w http.ResponseWriter, r *http.Request) {
				utils.RespondError(w, http.StatusServiceUnavailable, "generation backend unavailable")
			})
		}

		if deps.Conversations != nil {
			conversation.NewWebSocketHandler(deps.Conversations).RegisterRoutes(api)
		} else {
			api.Get("/conversation/ws", func(w http.ResponseWriter, r *http.Request) {
				utils.RespondError(w, http.StatusServiceUnavailable, "conversation service unavailable")
			})
		}
	})

	return r
}
