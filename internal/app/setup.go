package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"

	"github.com/nanobook/nanobook/db"
	"github.com/nanobook/nanobook/internal/config"
	"github.com/nanobook/nanobook/internal/database"
	"github.com/nanobook/nanobook/internal/model"
	"github.com/nanobook/nanobook/internal/rag"
	"github.com/nanobook/nanobook/internal/rerank"
	"github.com/nanobook/nanobook/internal/uploads"
	"github.com/nanobook/nanobook/internal/vectorstore"
)

// Setup creates and initializes the application: migrations, database pool,
// Genkit, model clients, and the retrieval pipeline. All of these are
// long-lived and shared across requests; nothing is reinitialized per call.
// Call Close to release.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	// On error, release whatever was already acquired.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	pool, err := database.NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, errors.New("initializing genkit with gemini provider")
	}
	a.Genkit = g

	a.Vectors = vectorstore.New(pool, logger)

	a.Uploads, err = uploads.NewStore(cfg.UploadDir, logger)
	if err != nil {
		return nil, err
	}

	embedder := model.NewEmbedder(g, cfg.EmbedderModel, cfg.EmbedRPS, cfg.ModelTimeoutSec, logger)
	rewriter := model.NewCompleter(g, cfg.RewriteModel, cfg.ModelTimeoutSec)
	chat := model.NewChat(g, cfg.GenerationModel, model.ChatOptions{
		Temperature:     cfg.Temperature,
		TopP:            cfg.TopP,
		TopK:            cfg.TopKSampling,
		MaxOutputTokens: cfg.MaxOutputTokens,
		TimeoutSec:      cfg.ModelTimeoutSec,
	})
	scorer := rerank.New(cfg.RerankURL, cfg.RerankModel, cfg.RerankTimeoutSec, logger)

	a.Pipeline = rag.NewPipeline(rag.PipelineConfig{
		Splitter:      rag.Splitter{Size: cfg.ChunkSize, Overlap: cfg.ChunkOverlap},
		Embedder:      embedder,
		RewriteModel:  rewriter,
		ChatModel:     chat,
		Scorer:        scorer,
		Index:         a.Vectors,
		OverFetch:     cfg.OverFetch,
		ContextBudget: cfg.ContextBudget,
		Logger:        logger,
	})

	logger.Info("application initialized",
		"generation_model", cfg.GenerationModel,
		"embedder_model", cfg.EmbedderModel,
		"top_k", cfg.TopK,
	)
	return a, nil
}
