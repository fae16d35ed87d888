package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"nexus/internal/domain"
	"nexus/internal/metrics"
)

const (
	DefaultTopK      = 5
	DefaultThreshold = 0.5
	DefaultTimeout   = 60 * time.Second

	// NoMatchesContext replaces the context when nothing clears the threshold.
	NoMatchesContext = "No relevant documents were found in the knowledge base."

	contextSeparator = "\n\n---\n\n"
)

var ErrEmptyQuery = errors.New("query is empty")

// RetrieveConfig holds the retriever's defaults. A negative Threshold selects
// DefaultThreshold; zero keeps every match.
type RetrieveConfig struct {
	TopK      int
	Threshold float64
	Timeout   time.Duration
}

// Retriever embeds a query, searches the store and assembles a cited context.
type Retriever struct {
	embedder  domain.Embedder
	store     domain.VectorStore
	topK      int
	threshold float64
	timeout   time.Duration
	log       *zap.Logger
}

func NewRetriever(embedder domain.Embedder, store domain.VectorStore, cfg RetrieveConfig, log *zap.Logger) *Retriever {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.Threshold < 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Retriever{
		embedder:  embedder,
		store:     store,
		topK:      cfg.TopK,
		threshold: cfg.Threshold,
		timeout:   cfg.Timeout,
		log:       log.Named("retrieve"),
	}
}

func (r *Retriever) Retrieve(ctx context.Context, query string) (domain.RetrievalResult, error) {
	return r.RetrieveWith(ctx, query, r.topK, r.threshold)
}

// RetrieveWith searches with explicit k and threshold. Embedding and search failures are
// returned rather than masked by an empty context.
func (r *Retriever) RetrieveWith(ctx context.Context, query string, k int, threshold float64) (domain.RetrievalResult, error) {
	if strings.TrimSpace(query) == "" {
		return domain.RetrievalResult{}, ErrEmptyQuery
	}
	began := time.Now()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	ctx, span := metrics.Tracer.Start(ctx, "retrieve",
		trace.WithAttributes(attribute.Int("k", k), attribute.Float64("threshold", threshold)))
	defer span.End()
	defer metrics.ObserveStage("retrieve", began)

	fail := func(err error) (domain.RetrievalResult, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.Retrievals.WithLabelValues("error").Inc()
		r.log.Warn("retrieval failed", zap.Error(err))
		return domain.RetrievalResult{}, err
	}

	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return fail(kind(domain.ErrEmbedding, err))
	}
	if len(vectors) != 1 {
		return fail(fmt.Errorf("%w: got %d vectors for one query", domain.ErrEmbedding, len(vectors)))
	}
	matches, err := r.store.SimilaritySearch(ctx, vectors[0], threshold, k)
	if err != nil {
		return fail(kind(domain.ErrStore, err))
	}

	status := "hit"
	if len(matches) == 0 {
		status = "empty"
	}
	metrics.Retrievals.WithLabelValues(status).Inc()
	r.log.Debug("retrieved", zap.Int("matches", len(matches)), zap.Duration("elapsed", time.Since(began)))
	return Compose(matches), nil
}

// Compose joins matches into one context string with a source header per match.
func Compose(matches []domain.Match) domain.RetrievalResult {
	if len(matches) == 0 {
		return domain.RetrievalResult{Context: NoMatchesContext, Sources: []string{}}
	}
	parts := make([]string, len(matches))
	sources := make([]string, len(matches))
	for i, m := range matches {
		sources[i] = m.Source()
		parts[i] = fmt.Sprintf("[Source: %s]\n%s", sources[i], m.Content)
	}
	return domain.RetrievalResult{
		Context: strings.Join(parts, contextSeparator),
		Sources: sources,
		Matches: matches,
	}
}
