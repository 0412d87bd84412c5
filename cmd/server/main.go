// Kundali RAG chat server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/kundali-rag/internal/agent"
	"github.com/ashureev/kundali-rag/internal/api"
	"github.com/ashureev/kundali-rag/internal/chart"
	"github.com/ashureev/kundali-rag/internal/config"
	"github.com/ashureev/kundali-rag/internal/ingest"
	"github.com/ashureev/kundali-rag/internal/knowledge"
	"github.com/ashureev/kundali-rag/internal/llm"
	"github.com/ashureev/kundali-rag/internal/middleware"
	"github.com/ashureev/kundali-rag/internal/rag"
	"github.com/ashureev/kundali-rag/internal/session"
	"github.com/ashureev/kundali-rag/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

// version is set at build time.
var version = "dev"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "version", version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Session store.
	repo, err := openRepository(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize session store", "backend", cfg.Session.Backend, "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(ctx); err != nil {
		slog.Error("Session store health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Session store connected", "backend", cfg.Session.Backend)

	sessions := session.NewManager(repo, cfg.Session.CacheTTL, logger)
	sessions.StartSweeper(ctx, cfg.Session.SweepInterval, cfg.Session.TTL)

	// Chart service.
	calculator, err := chart.NewGrpcCalculator(chart.GrpcConfig{
		Address:        cfg.Chart.ServiceAddr,
		ConnectTimeout: cfg.Chart.ConnectTimeout,
		RequestTimeout: cfg.Chart.RequestTimeout,
	}, logger)
	if err != nil {
		slog.Error("Failed to connect to chart service", "error", err)
		os.Exit(1)
	}
	defer calculator.Close()

	charts := chart.NewService(
		chart.NewNominatimGeocoder(cfg.Chart.GeocoderURL, cfg.Chart.GeocoderUserAgent),
		calculator,
		logger,
		chart.WithSettings(cfg.Chart.Ayanamsa, cfg.Chart.HouseSystem),
	)

	// Model client and knowledge index.
	model, err := llm.New(llm.Config{
		BaseURL:               cfg.LLM.BaseURL,
		APIKey:                cfg.LLM.APIKey,
		ChatModel:             cfg.LLM.ChatModel,
		StructuredModel:       cfg.LLM.StructuredModel,
		EmbeddingModel:        cfg.LLM.EmbeddingModel,
		ChatTemperature:       cfg.LLM.ChatTemperature,
		StructuredTemperature: cfg.LLM.StructuredTemperature,
		Timeout:               cfg.LLM.Timeout,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize model client", "error", err)
		os.Exit(1)
	}

	index, indexCheck, err := openIndex(ctx, cfg, model, logger)
	if err != nil {
		slog.Error("Failed to initialize knowledge index", "backend", cfg.Knowledge.Backend, "error", err)
		os.Exit(1)
	}

	// Conversation pipeline.
	convLog, err := agent.NewConversationLogger(cfg.ConversationLog, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}

	svc := agent.NewService(agent.Deps{
		Sessions:  sessions,
		Charts:    charts,
		Planner:   rag.NewPlanner(model, logger),
		Retriever: rag.NewRetriever(index, logger),
		Composer:  rag.NewComposer(model, logger),
		ConvLog:   convLog,
		Logger:    logger,
	})
	defer svc.Close()

	// Initialize handlers.
	chatHandler := agent.NewHandler(svc, cfg.TurnTimeout, cfg.AllowedOrigins)
	kundaliHandler := api.NewKundaliHandler(svc)
	healthHandler := api.NewHealthHandler("kundali-rag", version, 5*time.Second,
		api.Check{Name: "session_store", Probe: sessions.Ping},
		api.Check{Name: "chart_service", Probe: calculator.Health},
		api.Check{Name: "knowledge_index", Probe: indexCheck},
	)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	healthHandler.RegisterHealth(r)
	kundaliHandler.RegisterRoutes(r)
	chatHandler.RegisterRoutes(r)

	// Note: WebSocket chat connections stay open, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		return
	}

	slog.Info("Server stopped successfully")
}

func openRepository(ctx context.Context, cfg *config.Config) (store.Repository, error) {
	if cfg.Session.Backend == config.BackendRedis {
		rs, err := store.NewRedis(ctx, cfg.Session.RedisURL, cfg.Session.TTL)
		if err != nil {
			return nil, err
		}
		return rs, nil
	}
	ss, err := store.NewSQLite(cfg.Session.DBPath)
	if err != nil {
		return nil, err
	}
	return ss, nil
}

// openIndex returns the configured index and a readiness probe for it.
func openIndex(ctx context.Context, cfg *config.Config, embedder knowledge.Embedder, logger *slog.Logger) (knowledge.Index, func(context.Context) error, error) {
	if cfg.Knowledge.Backend == config.KnowledgeMemory {
		idx := knowledge.NewMemoryIndex(embedder)
		if cfg.Knowledge.DataDir != "" {
			docs, err := ingest.LoadDirectory(cfg.Knowledge.DataDir)
			if err != nil {
				logger.Warn("Knowledge corpus not loaded, memory index is empty", "dir", cfg.Knowledge.DataDir, "error", err)
			} else if _, err := ingest.Ingest(ctx, idx, docs, ingest.DefaultBatchSize, false, logger); err != nil {
				return nil, nil, err
			}
		}
		slog.Info("Memory knowledge index ready", "documents", idx.Len())
		return idx, func(context.Context) error { return nil }, nil
	}

	idx, err := knowledge.NewQdrantIndex(knowledge.QdrantConfig{
		URL:        cfg.Knowledge.QdrantURL,
		APIKey:     cfg.Knowledge.APIKey,
		Collection: cfg.Knowledge.Collection,
		VectorDim:  cfg.Knowledge.VectorDim,
	}, embedder, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := idx.Ready(ctx); err != nil {
		// Retrieval failures degrade to answers without context.
		logger.Warn("Knowledge collection not ready", "collection", cfg.Knowledge.Collection, "error", err)
	}
	return idx, idx.Ready, nil
}
