package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/callsim/backend/internal/config"
	"github.com/zhouzirui/callsim/backend/internal/handler"
	"github.com/zhouzirui/callsim/backend/internal/model/persona"
	"github.com/zhouzirui/callsim/backend/internal/service/ai"
	"github.com/zhouzirui/callsim/backend/internal/service/conversation"
	"github.com/zhouzirui/callsim/backend/internal/service/session"
	"github.com/zhouzirui/callsim/backend/internal/service/speech"
	"github.com/zhouzirui/callsim/backend/internal/service/transcript"
	"github.com/zhouzirui/callsim/backend/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	telemetryProvider, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		log.Fatalf("failed to initialise telemetry: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetryProvider.Shutdown(shutdownCtx); err != nil {
			log.Printf("telemetry shutdown: %v", err)
		}
	}()

	personaStore, err := loadPersonas(cfg.Session)
	if err != nil {
		log.Fatalf("failed to load personas: %v", err)
	}

	// Initialize AI service
	var generator ai.Generator
	if cfg.AI.Enabled() {
		aiService, err := ai.NewService(ctx, cfg.AI)
		if err != nil {
			log.Printf("warning: failed to initialize AI service: %v", err)
			log.Println("continuing without AI functionality - 请检查 Ark 模型相关环境变量")
		} else {
			generator = aiService
			log.Println("AI service initialized successfully")
		}
	} else {
		log.Println("Ark 凭证未配置，跳过 AI 功能初始化")
	}

	synthesizer := speech.NewSynthesizer(cfg.Speech)

	store, err := openTranscriptStore(ctx, cfg.Transcript)
	if err != nil {
		log.Fatalf("failed to open transcript store: %v", err)
	}
	var (
		recorder transcript.Recorder = transcript.Discard{}
		reader   transcript.Reader
	)
	if store != nil {
		defer store.Close()
		recorder, reader = store, store
	}

	registry := session.NewRegistry()
	defer registry.Close()

	deps := handler.Dependencies{
		Personas:    personaStore,
		Transcripts: reader,
	}
	if telemetryProvider != nil {
		deps.Metrics = telemetryProvider.Handler
	}

	if generator != nil {
		conversations, err := conversation.NewService(conversation.Options{
			Personas:    personaStore,
			Registry:    registry,
			Generator:   generator,
			Synthesizer: synthesizer,
			Recorder:    recorder,
			MaxTurns:    cfg.Session.MaxTurns,
		})
		if err != nil {
			log.Fatalf("failed to initialise conversation service: %v", err)
		}
		deps.Conversations = conversations
		deps.Generator = generator
	} else {
		log.Println("conversation endpoint disabled: no generation backend")
	}

	router := handler.NewRouter(deps)

	startServer(ctx, cfg.Server, router)
}

func loadPersonas(cfg config.SessionConfig) (*persona.MemoryStore, error) {
	if cfg.PersonasFile == "" {
		log.Println("PERSONAS_FILE not set, using built-in personas")
		return persona.NewMemoryStore(persona.Seed()), nil
	}

	items, err := persona.LoadFile(cfg.PersonasFile)
	if err != nil {
		return nil, err
	}
	log.Printf("loaded %d personas from %s", len(items), cfg.PersonasFile)
	return persona.NewMemoryStore(items), nil
}

func openTranscriptStore(ctx context.Context, cfg config.TranscriptConfig) (transcript.Store, error) {
	switch cfg.Store {
	case config.TranscriptStoreSQLite:
		store, err := transcript.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.Printf("transcripts persisted to %s", cfg.SQLitePath)
		return store, nil
	case config.TranscriptStoreNone:
		log.Println("transcript storage disabled")
		return nil, nil
	default:
		return transcript.NewMemoryStore(), nil
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("callsim backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
