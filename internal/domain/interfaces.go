package domain

import (
	"context"
	"path/filepath"
	"strings"
	"time"
)

// Document is a file submitted for ingestion. It is never persisted as a whole.
type Document struct {
	FileName string
	Content  []byte
}

// Extension returns the lowercased file extension including the dot.
func (d Document) Extension() string {
	return strings.ToLower(filepath.Ext(d.FileName))
}

// Chunk is a bounded contiguous piece of a document, the unit of embedding and retrieval.
type Chunk struct {
	Content string
	Index   int
	Source  string
}

// Classification is document-level metadata derived by a classifier.
type Classification struct {
	Type     string   `json:"type"`
	Tags     []string `json:"tags"`
	Summary  string   `json:"summary"`
	Priority int      `json:"priority"`
}

// Metadata keys written on every stored record.
const (
	MetaSource     = "source"
	MetaChunkIndex = "chunkIndex"
	MetaType       = "type"
	MetaTags       = "tags"
	MetaSummary    = "summary"
	MetaPriority   = "priority"
)

// Metadata builds the per-record metadata map. Tags are copied so records never share a slice.
func (c Classification) Metadata(source string, chunkIndex int) map[string]any {
	tags := make([]string, len(c.Tags))
	copy(tags, c.Tags)
	return map[string]any{
		MetaType:       c.Type,
		MetaTags:       tags,
		MetaSummary:    c.Summary,
		MetaPriority:   c.Priority,
		MetaSource:     source,
		MetaChunkIndex: chunkIndex,
	}
}

// Record is a stored chunk with its embedding. Records are immutable once written.
type Record struct {
	ID        string
	Content   string
	Embedding []float32
	Metadata  map[string]any
}

// Match is a record returned by a similarity search.
type Match struct {
	Content    string
	Metadata   map[string]any
	Similarity float64
}

// Source returns the file name the match was ingested from.
func (m Match) Source() string {
	if v, ok := m.Metadata[MetaSource].(string); ok {
		return v
	}
	return ""
}

// IngestionResult reports the outcome of ingesting one document.
type IngestionResult struct {
	FileName       string          `json:"fileName"`
	Success        bool            `json:"success"`
	Classification *Classification `json:"classification,omitempty"`
	ChunksCount    int             `json:"chunksCount,omitempty"`
	Error          string          `json:"error,omitempty"`
	Duration       time.Duration   `json:"-"`
}

// BatchReport aggregates per-file results in submission order.
type BatchReport struct {
	Results   []IngestionResult `json:"results"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
}

// RetrievalResult is the assembled context for an answering step.
type RetrievalResult struct {
	Context string
	Sources []string
	Matches []Match
}

// Message is one turn of a chat history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Answer is a grounded reply with its citations.
type Answer struct {
	Content string   `json:"content"`
	Sources []string `json:"sources"`
	Matches []Match  `json:"-"`
}

// UniqueSources drops repeated sources, keeping first-seen order.
func UniqueSources(sources []string) []string {
	seen := make(map[string]struct{}, len(sources))
	out := make([]string, 0, len(sources))
	for _, s := range sources {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Extractor converts raw file bytes into plain text.
type Extractor interface {
	Extract(ctx context.Context, content []byte, fileName string) (string, error)
}

// Chunker splits text into ordered overlapping segments.
type Chunker interface {
	Chunk(text string) []string
}

// Classifier derives document metadata. It always returns a usable value.
type Classifier interface {
	Classify(ctx context.Context, text, fileName string) Classification
}

// Embedder converts texts into vectors, one per input, in input order.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore persists records and supports thresholded similarity search.
type VectorStore interface {
	InsertMany(ctx context.Context, records []Record) error
	SimilaritySearch(ctx context.Context, embedding []float32, threshold float64, limit int) ([]Match, error)
	Count(ctx context.Context) (int, error)
	Close() error
}
