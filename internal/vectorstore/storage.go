package vectorstore

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"nexus/internal/domain"
)

// Storage is the contract every backend implements: atomic bulk inserts and thresholded
// similarity search ordered by descending cosine similarity.
type Storage = domain.VectorStore

// DefaultLimit is used when a search asks for a non-positive number of matches.
const DefaultLimit = 5

// Failed wraps err as a storage failure.
func Failed(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrStore, op, err)
}

// ValidateRecords checks a batch before anything is written. dimension 0 accepts any
// non-empty embedding as long as all records agree.
func ValidateRecords(records []domain.Record, dimension int) error {
	want := dimension
	for i, r := range records {
		if len(r.Embedding) == 0 {
			return fmt.Errorf("record %d has no embedding", i)
		}
		if want == 0 {
			want = len(r.Embedding)
		}
		if len(r.Embedding) != want {
			return fmt.Errorf("record %d: vector dimension %d, want %d", i, len(r.Embedding), want)
		}
	}
	return nil
}

// ErrEmptyQuery is returned when a search is attempted with an empty vector.
var ErrEmptyQuery = errors.New("query embedding must not be empty")

// Cosine returns the cosine similarity of a and b, 0 when either has zero norm.
func Cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Rank filters scored matches by threshold, sorts by descending similarity (stable for
// ties) and keeps at most limit.
func Rank(matches []domain.Match, threshold float64, limit int) []domain.Match {
	if limit <= 0 {
		limit = DefaultLimit
	}
	kept := matches[:0]
	for _, m := range matches {
		if m.Similarity >= threshold {
			kept = append(kept, m)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Similarity > kept[j].Similarity })
	if len(kept) > limit {
		kept = kept[:limit]
	}
	return kept
}

// CopyMetadata returns a shallow copy so callers cannot mutate stored state.
func CopyMetadata(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
