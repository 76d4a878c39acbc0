package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/guardo-ai/guardo/internal/api/stream"
	v1 "github.com/guardo-ai/guardo/internal/api/v1"
	"github.com/guardo-ai/guardo/internal/api/ws"
	"github.com/guardo-ai/guardo/internal/chat"
	"github.com/guardo-ai/guardo/internal/config"
	"github.com/guardo-ai/guardo/internal/scanner"
	"github.com/guardo-ai/guardo/internal/server/middleware"
	"github.com/guardo-ai/guardo/internal/session"
	redisstore "github.com/guardo-ai/guardo/internal/store/redis"
)

// Deps collects the services the server routes to. Pipeline, Source,
// Sessions, and PubSub are required; Scanner and Audit are nil when
// scanning is disabled.
type Deps struct {
	Pipeline *chat.Pipeline
	Source   chat.EventSource
	Sessions *session.Manager
	Scanner  *scanner.Client
	Audit    *scanner.Auditor
	PubSub   *redisstore.PubSub
}

// Server is the HTTP server that wires all application routes and middleware.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	wsHub      *ws.Hub
	cfg        *config.Config
}

// New creates a Server with all routes wired.
func New(ctx context.Context, cfg *config.Config, deps Deps) *Server {
	router := chi.NewRouter()

	// Global middleware stack.
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(chimw.Logger)
	router.Use(chimw.Recoverer)
	router.Use(cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)

	hub := ws.NewHub(deps.PubSub)

	s := &Server{
		router: router,
		wsHub:  hub,
		cfg:    cfg,
		httpServer: &http.Server{
			Addr:        cfg.Server.Addr,
			Handler:     router,
			ReadTimeout: cfg.Server.ReadTimeout,
			// WriteTimeout stays at the configured value; zero means no
			// deadline so SSE streams can outlive a fixed window.
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}

	// The streaming endpoint is a raw chi handler: huma does not model SSE.
	streamDeps := stream.Deps{
		Pipeline:    deps.Pipeline,
		Source:      deps.Source,
		Sessions:    deps.Sessions,
		Publisher:   hub,
		ScanEnabled: cfg.Scan.Enabled,
	}
	if deps.Scanner != nil {
		streamDeps.Scanner = deps.Scanner
	}
	if deps.Audit != nil {
		streamDeps.Audit = deps.Audit
	}
	streamHandler := stream.NewHandler(streamDeps)

	router.Route("/api/v1", func(r chi.Router) {
		if cfg.Auth.JWTSecret != "" {
			r.Use(middleware.Auth(cfg.Auth.JWTSecret))
		}

		// Chat endpoints fan out to the LLM and the scanner; keep a per-IP
		// ceiling on them.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitByIP(ctx, 5, 10))

			apiConfig := huma.DefaultConfig("Guardo Chat API", "1.0.0")
			apiConfig.Servers = []*huma.Server{
				{URL: "/api/v1"},
			}
			chatDeps := v1.ChatDeps{
				Pipeline:    deps.Pipeline,
				Source:      deps.Source,
				Sessions:    deps.Sessions,
				ScanEnabled: cfg.Scan.Enabled,
			}
			if deps.Scanner != nil {
				chatDeps.Scanner = deps.Scanner
			}
			if deps.Audit != nil {
				chatDeps.Audit = deps.Audit
			}
			api := humachi.New(r, apiConfig)
			v1.RegisterChatRoutes(api, chatDeps)

			r.Post("/chat/stream", streamHandler.ServeChatStream)
		})

		r.Group(func(r chi.Router) {
			apiConfig := huma.DefaultConfig("Guardo Conversations API", "1.0.0")
			apiConfig.Servers = []*huma.Server{
				{URL: "/api/v1"},
			}
			api := humachi.New(r, apiConfig)
			v1.RegisterConversationRoutes(api, deps.Sessions)
		})
	})

	// WebSocket routes.
	router.Route("/ws", func(r chi.Router) {
		if cfg.Auth.JWTSecret != "" {
			r.Use(middleware.Auth(cfg.Auth.JWTSecret))
		}
		r.Get("/conversations/{conversationID}", hub.ServeConversation)
	})

	// Health check (unauthenticated).
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if cfg.Auth.JWTSecret == "" {
		log.Warn().Msg("GUARDO_JWT_SECRET not set; API runs without authentication")
	}

	return s
}

// Start begins listening for HTTP requests.
func (s *Server) Start(_ context.Context) error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.Start: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}
