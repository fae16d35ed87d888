package memory

import (
	"context"
	"sync"

	"nexus/internal/domain"
	"nexus/internal/vectorstore"
)

var _ vectorstore.Storage = (*Storage)(nil)

// Storage is an in-process vector store using brute-force cosine similarity.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	records   []domain.Record
}

// NewStorage creates an empty store. A dimension of 0 adopts the first inserted vector's length.
func NewStorage(dimension int) *Storage { return &Storage{dimension: dimension} }

// InsertMany validates every record first, so a bad record leaves the store untouched.
func (s *Storage) InsertMany(ctx context.Context, records []domain.Record) error {
	if err := ctx.Err(); err != nil {
		return vectorstore.Failed("insert", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := vectorstore.ValidateRecords(records, s.dimension); err != nil {
		return vectorstore.Failed("insert", err)
	}
	if s.dimension == 0 && len(records) > 0 {
		s.dimension = len(records[0].Embedding)
	}
	for _, r := range records {
		emb := make([]float32, len(r.Embedding))
		copy(emb, r.Embedding)
		s.records = append(s.records, domain.Record{
			ID:        r.ID,
			Content:   r.Content,
			Embedding: emb,
			Metadata:  vectorstore.CopyMetadata(r.Metadata),
		})
	}
	return nil
}

func (s *Storage) SimilaritySearch(ctx context.Context, embedding []float32, threshold float64, limit int) ([]domain.Match, error) {
	if len(embedding) == 0 {
		return nil, vectorstore.Failed("search", vectorstore.ErrEmptyQuery)
	}
	if err := ctx.Err(); err != nil {
		return nil, vectorstore.Failed("search", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	matches := make([]domain.Match, 0, len(s.records))
	for _, r := range s.records {
		matches = append(matches, domain.Match{
			Content:    r.Content,
			Metadata:   vectorstore.CopyMetadata(r.Metadata),
			Similarity: vectorstore.Cosine(r.Embedding, embedding),
		})
	}
	return vectorstore.Rank(matches, threshold, limit), nil
}

func (s *Storage) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// Clear drops every record.
func (s *Storage) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
}

func (s *Storage) Close() error { return nil }
