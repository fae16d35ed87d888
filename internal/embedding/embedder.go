// Package embedding turns text into vectors through a batching front over a backend.
package embedding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"nexus/internal/domain"
	"nexus/internal/metrics"
)

// DefaultBatchSize is the largest number of texts sent in one backend call.
const DefaultBatchSize = 50

// Backend embeds one batch of texts and must return exactly one vector per input, in order.
type Backend interface {
	Name() string
	Dimension() int
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

var _ domain.Embedder = (*Batcher)(nil)

// Batcher splits inputs into sequential backend calls of at most batchSize texts and
// concatenates the results. Any failed batch fails the whole call.
type Batcher struct {
	backend   Backend
	batchSize int
	limiter   *rate.Limiter
	log       *zap.Logger
}

// Option customises a Batcher.
type Option func(*Batcher)

// WithBatchSize overrides DefaultBatchSize.
func WithBatchSize(n int) Option {
	return func(b *Batcher) {
		if n > 0 {
			b.batchSize = n
		}
	}
}

// WithRateLimit paces backend calls to rps requests per second. Zero disables pacing.
func WithRateLimit(rps float64) Option {
	return func(b *Batcher) {
		if rps > 0 {
			b.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(b *Batcher) {
		if log != nil {
			b.log = log
		}
	}
}

func NewBatcher(backend Backend, opts ...Option) *Batcher {
	b := &Batcher{backend: backend, batchSize: DefaultBatchSize, log: zap.NewNop()}
	for _, o := range opts {
		o(b)
	}
	b.log = b.log.Named("embedder")
	return b
}

func (b *Batcher) Name() string   { return b.backend.Name() }
func (b *Batcher) Dimension() int { return b.backend.Dimension() }

// Embed returns one vector per text in input order. Errors wrap domain.ErrEmbedding.
func (b *Batcher) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += b.batchSize {
		end := start + b.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := make([]string, end-start)
		for i, t := range texts[start:end] {
			batch[i] = normalize(t)
		}
		if b.limiter != nil {
			if err := b.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("%w: %w", domain.ErrEmbedding, err)
			}
		}
		began := time.Now()
		vecs, err := b.backend.EmbedBatch(ctx, batch)
		metrics.ObserveStage("embed_batch", began)
		if err == nil && len(vecs) != len(batch) {
			err = fmt.Errorf("backend returned %d vectors for %d inputs", len(vecs), len(batch))
		}
		if err != nil {
			metrics.EmbeddingBatches.WithLabelValues("error").Inc()
			b.log.Warn("embedding batch failed", zap.Int("offset", start), zap.Int("size", len(batch)), zap.Error(err))
			return nil, fmt.Errorf("%w: batch at %d: %w", domain.ErrEmbedding, start, err)
		}
		metrics.EmbeddingBatches.WithLabelValues("ok").Inc()
		out = append(out, vecs...)
	}
	b.log.Debug("embedded texts", zap.Int("count", len(texts)), zap.String("backend", b.backend.Name()))
	return out, nil
}

// normalize replaces line breaks with spaces.
func normalize(s string) string {
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
}
