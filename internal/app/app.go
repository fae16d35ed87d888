// Package app assembles the pipeline from configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"nexus/internal/chunker"
	"nexus/internal/classifier"
	"nexus/internal/config"
	"nexus/internal/domain"
	"nexus/internal/embedding"
	"nexus/internal/embedding/hashing"
	embopenai "nexus/internal/embedding/openai"
	"nexus/internal/extractor"
	"nexus/internal/llm"
	llmopenai "nexus/internal/llm/openai"
	"nexus/internal/service"
	"nexus/internal/vectorstore/memory"
	"nexus/internal/vectorstore/postgres"
	"nexus/internal/vectorstore/qdrant"
	"nexus/internal/vectorstore/sqlite"
)

// App holds the wired components. Close releases the store.
type App struct {
	Config    *config.AppConfig
	Log       *zap.Logger
	Store     domain.VectorStore
	Embedder  domain.Embedder
	Ingestor  *service.Ingestor
	Retriever *service.Retriever

	chat    *service.ChatService
	chatErr error
}

func New(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	completer, completerErr := newCompleter(cfg)

	emb, err := newEmbedder(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	cls, err := newClassifier(cfg, completer, completerErr, log)
	if err != nil {
		return nil, fmt.Errorf("classifier: %w", err)
	}
	store, err := newStore(ctx, cfg, emb.Dimension())
	if err != nil {
		return nil, fmt.Errorf("vector store: %w", err)
	}
	log.Debug("pipeline assembled",
		zap.String("embedder", emb.Name()),
		zap.Int("dimension", emb.Dimension()),
		zap.String("classifier", cfg.Classifier.Type),
		zap.String("store", cfg.VectorStore.Type),
	)

	a := &App{
		Config:   cfg,
		Log:      log,
		Store:    store,
		Embedder: emb,
		Ingestor: service.NewIngestor(
			extractor.New(),
			cls,
			chunker.NewCharChunker(cfg.Chunker.MaxChars, cfg.Chunker.Overlap),
			emb,
			store,
			service.IngestConfig{Timeout: cfg.IngestTimeout(), Concurrency: cfg.Ingest.Concurrency},
			log,
		),
		Retriever: service.NewRetriever(emb, store, service.RetrieveConfig{
			TopK:      cfg.Retrieval.TopK,
			Threshold: cfg.Retrieval.Threshold,
			Timeout:   cfg.ChatTimeout(),
		}, log),
	}
	if completerErr != nil {
		a.chatErr = fmt.Errorf("chat is unavailable: %w", completerErr)
	} else {
		a.chat = service.NewChatService(a.Retriever, completer, service.ChatConfig{
			Model:       cfg.Chat.Model,
			Temperature: cfg.Chat.Temperature,
		}, log)
	}
	return a, nil
}

// Chat returns the answering service, or why it could not be built.
func (a *App) Chat() (*service.ChatService, error) {
	return a.chat, a.chatErr
}

func (a *App) Close() error {
	if a.Store == nil {
		return nil
	}
	return a.Store.Close()
}

func newCompleter(cfg *config.AppConfig) (llm.Completer, error) {
	return llmopenai.NewClient(llmopenai.Config{
		BaseURL:      cfg.OpenAI.BaseURL,
		APIKeyEnv:    cfg.OpenAI.APIKeyEnv,
		DefaultModel: cfg.Chat.Model,
		Timeout:      cfg.OpenAITimeout(),
	})
}

func newEmbedder(cfg *config.AppConfig, log *zap.Logger) (domain.Embedder, error) {
	var backend embedding.Backend
	switch cfg.Embedder.Type {
	case "hashing":
		backend = hashing.NewEmbedder(cfg.Embedder.Dimension)
	case "openai":
		client, err := embopenai.NewClient(embopenai.Config{
			BaseURL:    cfg.OpenAI.BaseURL,
			APIKeyEnv:  cfg.OpenAI.APIKeyEnv,
			Model:      cfg.Embedder.Model,
			Dimension:  cfg.Embedder.Dimension,
			Timeout:    cfg.OpenAITimeout(),
			MaxRetries: cfg.Embedder.MaxRetries,
		})
		if err != nil {
			return nil, err
		}
		backend = client
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}
	return embedding.NewBatcher(backend,
		embedding.WithBatchSize(cfg.Embedder.BatchSize),
		embedding.WithRateLimit(cfg.Embedder.RateLimit),
		embedding.WithLogger(log),
	), nil
}

func newClassifier(cfg *config.AppConfig, completer llm.Completer, completerErr error, log *zap.Logger) (domain.Classifier, error) {
	switch cfg.Classifier.Type {
	case "extractive":
		return classifier.NewExtractive(0), nil
	case "llm":
		if completerErr != nil {
			return nil, completerErr
		}
		return classifier.NewLLM(completer, classifier.Config{
			Model:      cfg.Classifier.Model,
			PrefixSize: cfg.Classifier.PrefixSize,
		}, log), nil
	default:
		return nil, fmt.Errorf("unknown classifier: %s", cfg.Classifier.Type)
	}
}

func newStore(ctx context.Context, cfg *config.AppConfig, dimension int) (domain.VectorStore, error) {
	switch cfg.VectorStore.Type {
	case "memory":
		return memory.NewStorage(dimension), nil
	case "sqlite":
		dir := ""
		if cfg.VectorStore.SQLite != nil {
			dir = cfg.VectorStore.SQLite.DataDir
		}
		return sqlite.NewStore(dir, dimension)
	case "postgres":
		dsn, err := cfg.PostgresDSN()
		if err != nil {
			return nil, err
		}
		if cfg.VectorStore.Postgres.MigrateOnStart {
			if err := postgres.Migrate(dsn, "up", 0); err != nil {
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		return postgres.NewWithDSN(ctx, dsn, dimension)
	case "qdrant":
		q := cfg.VectorStore.Qdrant
		if q == nil {
			return nil, errors.New("qdrant config missing")
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:        q.URL,
			APIKey:     q.APIKey,
			Collection: q.Collection,
			Dimension:  dimension,
			Timeout:    q.Timeout(),
		})
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.VectorStore.Type)
	}
}
