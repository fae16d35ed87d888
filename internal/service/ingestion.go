package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"nexus/internal/domain"
	"nexus/internal/metrics"
)

// DefaultIngestTimeout bounds one document's full pipeline run.
const DefaultIngestTimeout = 5 * time.Minute

type IngestConfig struct {
	Timeout     time.Duration
	Concurrency int
}

// Ingestor runs documents through extract, classify, chunk, embed and store.
type Ingestor struct {
	extractor   domain.Extractor
	classifier  domain.Classifier
	chunker     domain.Chunker
	embedder    domain.Embedder
	store       domain.VectorStore
	timeout     time.Duration
	concurrency int
	log         *zap.Logger
}

func NewIngestor(extractor domain.Extractor, classifier domain.Classifier, chunker domain.Chunker, embedder domain.Embedder, store domain.VectorStore, cfg IngestConfig, log *zap.Logger) *Ingestor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultIngestTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Ingestor{
		extractor:   extractor,
		classifier:  classifier,
		chunker:     chunker,
		embedder:    embedder,
		store:       store,
		timeout:     cfg.Timeout,
		concurrency: cfg.Concurrency,
		log:         log.Named("ingest"),
	}
}

// WithConcurrency returns a copy of the ingestor running n batch files at a time.
func (s *Ingestor) WithConcurrency(n int) *Ingestor {
	c := *s
	c.concurrency = max(n, 1)
	return &c
}

// IngestDocument extracts text from raw file bytes and stores it. Failures are reported in
// the result, never returned.
func (s *Ingestor) IngestDocument(ctx context.Context, content []byte, fileName string) domain.IngestionResult {
	return s.ingest(ctx, fileName, len(content), func(ctx context.Context) (string, error) {
		return s.extractor.Extract(ctx, content, fileName)
	})
}

// IngestText stores already-extracted text under fileName.
func (s *Ingestor) IngestText(ctx context.Context, content, fileName string) domain.IngestionResult {
	return s.ingest(ctx, fileName, len(content), func(context.Context) (string, error) {
		if strings.TrimSpace(content) == "" {
			return "", domain.ErrEmptyDocument
		}
		return content, nil
	})
}

// IngestBatch ingests each document independently. Results keep input order whatever the
// configured concurrency.
func (s *Ingestor) IngestBatch(ctx context.Context, docs []domain.Document) domain.BatchReport {
	results := make([]domain.IngestionResult, len(docs))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, d := range docs {
		i, d := i, d
		g.Go(func() error {
			results[i] = s.IngestDocument(ctx, d.Content, d.FileName)
			return nil
		})
	}
	_ = g.Wait()

	report := domain.BatchReport{Results: results}
	for _, r := range results {
		if r.Success {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}
	s.log.Info("batch finished", zap.Int("files", len(docs)), zap.Int("succeeded", report.Succeeded), zap.Int("failed", report.Failed))
	return report
}

func (s *Ingestor) ingest(ctx context.Context, fileName string, size int, extract func(context.Context) (string, error)) domain.IngestionResult {
	began := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ctx, span := metrics.Tracer.Start(ctx, "ingest")
	span.SetAttributes(attribute.String("file", fileName), attribute.Int("bytes", size))
	defer span.End()

	log := s.log.With(zap.String("file", fileName))
	log.Info("ingestion started", zap.Int("bytes", size))

	cls, n, err := s.run(ctx, fileName, extract, log)
	metrics.ObserveStage("ingest", began)
	result := domain.IngestionResult{FileName: fileName, Duration: time.Since(began)}
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("ingestion timed out after %s: %w", s.timeout, err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.Ingestions.WithLabelValues("failed").Inc()
		log.Warn("ingestion failed", zap.Error(err), zap.Duration("elapsed", result.Duration))
		result.Error = err.Error()
		return result
	}

	metrics.Ingestions.WithLabelValues("ok").Inc()
	log.Info("ingestion finished", zap.String("type", cls.Type), zap.Int("chunks", n), zap.Duration("elapsed", result.Duration))
	result.Success = true
	result.Classification = &cls
	result.ChunksCount = n
	return result
}

func (s *Ingestor) run(ctx context.Context, fileName string, extract func(context.Context) (string, error), log *zap.Logger) (domain.Classification, int, error) {
	var text string
	err := s.stage(ctx, "extract", func(ctx context.Context) (err error) {
		text, err = extract(ctx)
		return err
	})
	if err != nil {
		return domain.Classification{}, 0, err
	}
	log.Debug("text extracted", zap.Int("chars", len([]rune(text))))

	var cls domain.Classification
	_ = s.stage(ctx, "classify", func(ctx context.Context) error {
		cls = s.classifier.Classify(ctx, text, fileName)
		return nil
	})
	log.Debug("classified", zap.String("type", cls.Type), zap.Strings("tags", cls.Tags))

	var pieces []string
	_ = s.stage(ctx, "chunk", func(context.Context) error {
		pieces = s.chunker.Chunk(text)
		return nil
	})
	if len(pieces) == 0 {
		return cls, 0, domain.ErrNoContent
	}
	log.Debug("chunked", zap.Int("chunks", len(pieces)))

	var vectors [][]float32
	err = s.stage(ctx, "embed", func(ctx context.Context) (err error) {
		vectors, err = s.embedder.Embed(ctx, pieces)
		return err
	})
	if err != nil {
		return cls, 0, kind(domain.ErrEmbedding, err)
	}
	if len(vectors) != len(pieces) {
		return cls, 0, fmt.Errorf("%w: got %d vectors for %d chunks", domain.ErrEmbedding, len(vectors), len(pieces))
	}

	records := make([]domain.Record, len(pieces))
	for i, p := range pieces {
		records[i] = domain.Record{
			ID:        uuid.NewString(),
			Content:   p,
			Embedding: vectors[i],
			Metadata:  cls.Metadata(fileName, i),
		}
	}
	err = s.stage(ctx, "store", func(ctx context.Context) error {
		return s.store.InsertMany(ctx, records)
	})
	if err != nil {
		return cls, 0, kind(domain.ErrStore, err)
	}
	metrics.ChunksIngested.Add(float64(len(records)))
	return cls, len(records), nil
}

// stage runs fn inside a span and records its duration.
func (s *Ingestor) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	began := time.Now()
	ctx, span := metrics.Tracer.Start(ctx, name)
	defer span.End()
	err := fn(ctx)
	metrics.ObserveStage(name, began)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// kind makes sure err carries the sentinel for its stage.
func kind(sentinel, err error) error {
	if errors.Is(err, sentinel) {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}
