// Package main provides the speechqa CLI: ask questions about a single
// document using retrieved passages as the model's only context.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bull/speechqa/internal/config"
	"github.com/bull/speechqa/internal/embedding"
	"github.com/bull/speechqa/internal/indexer"
	"github.com/bull/speechqa/internal/llm"
	"github.com/bull/speechqa/internal/loader"
	"github.com/bull/speechqa/internal/qa"
	"github.com/bull/speechqa/internal/splitter"
	"github.com/bull/speechqa/internal/storage"
)

var rootCmd = &cobra.Command{
	Use:   "speechqa",
	Short: "Ask questions about a document",
	Long: `Indexes a single document into a vector store on first run, then answers
questions using only the passages most similar to each question.

Environment variables:
  SOURCE_PATH      Document to index (default: speech.txt)
  PERSIST_DIR      Vector store directory (default: db)
  OLLAMA_BASE_URL  OpenAI-compatible endpoint (default: http://localhost:11434/v1)
  EMBEDDING_MODEL  Embedding model (default: all-minilm)
  LLM_MODEL        Chat model (default: phi3)
  RETRIEVER_K      Passages per question (default: 2)
  VECTOR_STORE     sqlite or qdrant (default: sqlite)
  LOG_LEVEL        debug, info, warn or error (default: info)`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runChat,
}

func main() {
	// Load .env file if present (local development), ignore if missing
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app holds the components shared by every command.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	embedder  *embedding.Embedder
	generator *llm.Generator
	pipeline  *indexer.Pipeline
}

func newApp() (*app, error) {
	cfg, err := config.LoadDefault()
	if err != nil {
		return nil, err
	}
	logger := cfg.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	client, err := embedding.NewClient(cfg.OllamaBaseURL, cfg.OllamaAPIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create model client: %w", err)
	}
	embedder := embedding.NewEmbedder(client, cfg.EmbeddingModel, cfg.EmbeddingBatchSize)
	// The same client serves chat completions
	generator := llm.NewGenerator(client.Client(), cfg.LLMModel)

	src, err := newLoader(cfg)
	if err != nil {
		return nil, err
	}
	backend, err := newBackend(cfg, logger)
	if err != nil {
		return nil, err
	}

	character := splitter.NewCharacter(cfg.ChunkSize, cfg.ChunkOverlap, logger)
	pipeline := indexer.NewPipeline(src, splitter.ForSource(cfg.SourcePath, character), embedder, backend, logger)

	return &app{
		cfg:       cfg,
		logger:    logger,
		embedder:  embedder,
		generator: generator,
		pipeline:  pipeline,
	}, nil
}

func newLoader(cfg *config.Config) (loader.Loader, error) {
	if cfg.SourceRepo == "" {
		return loader.FileLoader{Path: cfg.SourcePath}, nil
	}
	gh, err := loader.NewGitHubLoader(cfg.SourceRepo, cfg.SourcePath, cfg.SourceRef, cfg.GitHubToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub loader: %w", err)
	}
	return gh, nil
}

func newBackend(cfg *config.Config, logger *slog.Logger) (storage.Backend, error) {
	switch cfg.VectorStore {
	case config.StoreQdrant:
		backend, err := storage.NewQdrantBackend(storage.QdrantConfig{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			Collection: cfg.Qdrant.Collection,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
		}
		return backend, nil
	default:
		return storage.NewSQLiteBackend(cfg.PersistDir, logger), nil
	}
}

func (a *app) answerer(store storage.Store) *qa.Answerer {
	return qa.NewAnswerer(qa.NewRetriever(a.embedder, store, a.cfg.RetrieverK), a.generator)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp()
	if err != nil {
		return err
	}

	store, err := a.pipeline.OpenOrBuild(ctx)
	if err != nil {
		return ignoreCanceled(err)
	}
	defer store.Close()

	a.logger.Info("Using language model", "model", a.generator.Model())
	session := qa.NewSession(a.answerer(store), cmd.InOrStdin(), cmd.OutOrStdout(), a.logger)
	return ignoreCanceled(session.Run(ctx))
}

// ignoreCanceled treats an interrupt as a normal exit.
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
