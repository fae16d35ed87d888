package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"nexus/internal/domain"
	"nexus/internal/vectorstore"
)

var _ vectorstore.Storage = (*Storage)(nil)

// Storage is a minimal REST client to Qdrant using cosine distance. The collection is
// created on first use if missing.
type Storage struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	client     *http.Client

	mu      sync.Mutex
	ensured bool
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Dimension  int
	Timeout    time.Duration
}

func NewStorage(cfg Config) (*Storage, error) {
	if cfg.URL == "" {
		return nil, errors.New("qdrant url is required")
	}
	if cfg.Dimension <= 0 {
		return nil, errors.New("qdrant vector dimension is required")
	}
	if cfg.Collection == "" {
		cfg.Collection = "documents"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
		client:     &http.Client{Timeout: timeout},
	}, nil
}

// ensureCollection creates the collection once. A failed attempt is retried on the next call.
func (s *Storage) ensureCollection(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured {
		return nil
	}
	url := fmt.Sprintf("%s/collections/%s", s.url, s.collection)
	status, err := s.do(ctx, http.MethodGet, url, nil, nil)
	if err != nil && status != http.StatusNotFound {
		return err
	}
	if status != http.StatusOK {
		body := map[string]any{
			"vectors": map[string]any{
				"size":     s.dimension,
				"distance": "Cosine",
			},
		}
		if _, err := s.do(ctx, http.MethodPut, url, body, nil); err != nil {
			return err
		}
	}
	s.ensured = true
	return nil
}

// InsertMany upserts all points in a single request with wait=true.
func (s *Storage) InsertMany(ctx context.Context, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := vectorstore.ValidateRecords(records, s.dimension); err != nil {
		return vectorstore.Failed("insert", err)
	}
	if err := s.ensureCollection(ctx); err != nil {
		return vectorstore.Failed("ensure collection", err)
	}
	points := make([]map[string]any, len(records))
	for i, r := range records {
		id := r.ID
		if id == "" {
			id = uuid.NewString()
		}
		payload := vectorstore.CopyMetadata(r.Metadata)
		if payload == nil {
			payload = map[string]any{}
		}
		payload["content"] = r.Content
		points[i] = map[string]any{
			"id":      id,
			"vector":  r.Embedding,
			"payload": payload,
		}
	}
	url := fmt.Sprintf("%s/collections/%s/points?wait=true", s.url, s.collection)
	if _, err := s.do(ctx, http.MethodPut, url, map[string]any{"points": points}, nil); err != nil {
		return vectorstore.Failed("upsert", err)
	}
	return nil
}

// SimilaritySearch lets Qdrant apply the threshold through score_threshold.
func (s *Storage) SimilaritySearch(ctx context.Context, embedding []float32, threshold float64, limit int) ([]domain.Match, error) {
	if len(embedding) == 0 {
		return nil, vectorstore.Failed("search", vectorstore.ErrEmptyQuery)
	}
	if limit <= 0 {
		limit = vectorstore.DefaultLimit
	}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, vectorstore.Failed("ensure collection", err)
	}
	req := map[string]any{
		"vector":          embedding,
		"limit":           limit,
		"score_threshold": threshold,
		"with_payload":    true,
	}
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", s.url, s.collection)
	if _, err := s.do(ctx, http.MethodPost, url, req, &resp); err != nil {
		return nil, vectorstore.Failed("search", err)
	}
	matches := make([]domain.Match, 0, len(resp.Result))
	for _, r := range resp.Result {
		content, _ := r.Payload["content"].(string)
		delete(r.Payload, "content")
		matches = append(matches, domain.Match{Content: content, Metadata: r.Payload, Similarity: r.Score})
	}
	// the server already filters and orders; Rank guards the contract
	return vectorstore.Rank(matches, threshold, limit), nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	if err := s.ensureCollection(ctx); err != nil {
		return 0, vectorstore.Failed("ensure collection", err)
	}
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/count", s.url, s.collection)
	if _, err := s.do(ctx, http.MethodPost, url, map[string]any{"exact": true}, &resp); err != nil {
		return 0, vectorstore.Failed("count", err)
	}
	return resp.Result.Count, nil
}

func (s *Storage) Close() error { return nil }

// do sends a JSON request and decodes a JSON response into out when given. It returns
// the HTTP status even on error so callers can react to 404.
func (s *Storage) do(ctx context.Context, method, url string, body, out any) (int, error) {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rdr)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("qdrant %s %s failed: %s: %s", method, url, resp.Status, bytes.TrimSpace(msg))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode qdrant response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
