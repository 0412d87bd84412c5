// Command ingest loads the astrology corpus into the qdrant collection.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ashureev/kundali-rag/internal/config"
	"github.com/ashureev/kundali-rag/internal/ingest"
	"github.com/ashureev/kundali-rag/internal/knowledge"
	"github.com/ashureev/kundali-rag/internal/llm"
	"github.com/joho/godotenv"
)

func main() {
	dir := flag.String("dir", "./data/corpus", "directory with *.json and *.txt corpus files")
	manifest := flag.String("manifest", "", "optional YAML manifest listing extra files")
	recreate := flag.Bool("recreate", false, "drop and recreate the collection before ingesting")
	batchSize := flag.Int("batch", ingest.DefaultBatchSize, "documents embedded per request")
	flag.Parse()

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	docs, err := ingest.LoadDirectory(*dir)
	if err != nil {
		slog.Error("Failed to load corpus", "dir", *dir, "error", err)
		os.Exit(1)
	}
	if *manifest != "" {
		extra, err := ingest.LoadManifest(*manifest)
		if err != nil {
			slog.Error("Failed to load manifest", "path", *manifest, "error", err)
			os.Exit(1)
		}
		docs = append(docs, extra...)
	}
	slog.Info("Corpus loaded", "documents", len(docs))

	model, err := llm.New(llm.Config{
		BaseURL:        cfg.LLM.BaseURL,
		APIKey:         cfg.LLM.APIKey,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		Timeout:        cfg.LLM.Timeout,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize model client", "error", err)
		os.Exit(1)
	}

	idx, err := knowledge.NewQdrantIndex(knowledge.QdrantConfig{
		URL:        cfg.Knowledge.QdrantURL,
		APIKey:     cfg.Knowledge.APIKey,
		Collection: cfg.Knowledge.Collection,
		VectorDim:  cfg.Knowledge.VectorDim,
	}, model, logger)
	if err != nil {
		slog.Error("Failed to initialize qdrant index", "error", err)
		os.Exit(1)
	}

	if !*recreate {
		if err := idx.Ready(ctx); err != nil {
			slog.Error("Collection not ready, rerun with -recreate", "collection", cfg.Knowledge.Collection, "error", err)
			os.Exit(1)
		}
	}

	written, err := ingest.Ingest(ctx, idx, docs, *batchSize, *recreate, logger)
	if err != nil {
		slog.Error("Ingestion failed", "written", written, "error", err)
		os.Exit(1)
	}
	slog.Info("Ingestion complete", "documents", written, "collection", cfg.Knowledge.Collection)
}
