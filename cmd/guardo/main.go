package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/guardo-ai/guardo/internal/agent"
	"github.com/guardo-ai/guardo/internal/chat"
	"github.com/guardo-ai/guardo/internal/config"
	"github.com/guardo-ai/guardo/internal/scanner"
	"github.com/guardo-ai/guardo/internal/server"
	"github.com/guardo-ai/guardo/internal/session"
	"github.com/guardo-ai/guardo/internal/store/postgres"
	redisstore "github.com/guardo-ai/guardo/internal/store/redis"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
}

func run() error {
	// Initialize structured logging from environment.
	logLevel := os.Getenv("GUARDO_LOG_LEVEL")
	level, parseErr := zerolog.ParseLevel(logLevel)
	if parseErr != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	logFormat := os.Getenv("GUARDO_LOG_FORMAT")
	if logFormat == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	ctx := context.Background()

	// Load configuration from environment.
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if cfg.Database.MaxConns < 0 || cfg.Database.MaxConns > math.MaxInt32 {
		return fmt.Errorf("database max_conns %d out of int32 range", cfg.Database.MaxConns)
	}

	// Connect to PostgreSQL.
	store, err := postgres.New(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns)) //nolint:gosec // bounds checked above
	if err != nil {
		return err
	}
	defer store.Close()

	// Connect to Redis.
	pubsub, err := redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}
	defer pubsub.Close()

	// Content safety scanner.
	var (
		scanClient *scanner.Client
		auditor    *scanner.Auditor
	)
	if cfg.Scan.Enabled {
		scanCfg := scanner.Config{
			Endpoint:      cfg.Scan.Endpoint,
			Token:         cfg.Scan.Token,
			InputProfile:  cfg.Scan.InputProfile,
			OutputProfile: cfg.Scan.OutputProfile,
			AppName:       cfg.Scan.AppName,
			Model:         cfg.LLM.Model,
			Timeout:       cfg.Scan.Timeout,
		}
		scanClient = scanner.NewClient(scanCfg)
		auditor = scanner.NewAuditor(store.SecurityEvents(), scanCfg)
	} else {
		log.Warn().Msg("content safety scanning disabled")
	}

	// LLM event source with knowledge-base retrieval.
	openaiCfg := openai.DefaultConfig(cfg.LLM.APIKey)
	if cfg.LLM.BaseURL != "" {
		openaiCfg.BaseURL = cfg.LLM.BaseURL
	}
	retriever := agent.NewRepoRetriever(store.Knowledge(), 0)
	source := agent.NewOpenAISource(
		openai.NewClientWithConfig(openaiCfg),
		retriever,
		[]agent.Tool{agent.NewKnowledgeTool(retriever)},
		agent.Options{
			Model:        cfg.LLM.Model,
			SystemPrompt: cfg.LLM.SystemPrompt,
		},
	)

	// Conversation history and the scanning pipeline.
	sessions := session.NewManager(store.Conversations())
	pipeline := chat.NewPipeline(scanClient, sessions, auditorOrNil(auditor), chat.Config{
		ScanEnabled:  cfg.Scan.Enabled,
		ScanInterval: cfg.Scan.ChunkInterval,
	})

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Create HTTP server with all routes wired.
	srv := server.New(ctx, cfg, server.Deps{
		Pipeline: pipeline,
		Source:   source,
		Sessions: sessions,
		Scanner:  scanClient,
		Audit:    auditor,
		PubSub:   pubsub,
	})

	// Start server in background goroutine.
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("starting server")
		if startErr := srv.Start(ctx); startErr != nil {
			log.Error().Err(startErr).Msg("server error")
		}
	}()

	// Block until shutdown signal.
	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		return shutdownErr
	}

	log.Info().Msg("stopped")
	return nil
}

// auditorOrNil keeps a nil *scanner.Auditor from becoming a non-nil
// interface value inside the pipeline.
func auditorOrNil(a *scanner.Auditor) chat.ViolationAuditor {
	if a == nil {
		return nil
	}
	return a
}
