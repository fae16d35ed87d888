package embedding

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexus/internal/domain"
)

// recordingBackend encodes each input's position into its vector.
type recordingBackend struct {
	batches [][]string
	failAt  int
	short   bool
}

func (r *recordingBackend) Name() string   { return "recording" }
func (r *recordingBackend) Dimension() int { return 1 }

func (r *recordingBackend) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	r.batches = append(r.batches, texts)
	if r.failAt > 0 && len(r.batches) == r.failAt {
		return nil, errors.New("provider unavailable")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		var n float32
		_, _ = fmt.Sscanf(t, "t%g", &n)
		out[i] = []float32{n}
	}
	if r.short {
		out = out[:len(out)-1]
	}
	return out, nil
}

func inputs(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("t%d", i)
	}
	return out
}

func TestEmbedPreservesOrderAcrossBatches(t *testing.T) {
	for _, n := range []int{1, 2, 49, 50, 51, 120} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			be := &recordingBackend{}
			vecs, err := NewBatcher(be).Embed(context.Background(), inputs(n))
			require.NoError(t, err)
			require.Len(t, vecs, n)
			for i, v := range vecs {
				assert.Equal(t, float32(i), v[0])
			}
			for _, b := range be.batches {
				assert.LessOrEqual(t, len(b), DefaultBatchSize)
			}
			assert.Equal(t, (n+DefaultBatchSize-1)/DefaultBatchSize, len(be.batches))
		})
	}
}

func TestEmbedBatchSizes(t *testing.T) {
	be := &recordingBackend{}
	_, err := NewBatcher(be).Embed(context.Background(), inputs(120))
	require.NoError(t, err)
	require.Len(t, be.batches, 3)
	assert.Len(t, be.batches[0], 50)
	assert.Len(t, be.batches[1], 50)
	assert.Len(t, be.batches[2], 20)
}

func TestEmbedReplacesNewlines(t *testing.T) {
	be := &recordingBackend{}
	_, err := NewBatcher(be).Embed(context.Background(), []string{"line one\nline two\r\nthree\rfour"})
	require.NoError(t, err)
	assert.Equal(t, "line one line two three four", be.batches[0][0])
}

func TestEmbedFailureDiscardsEverything(t *testing.T) {
	be := &recordingBackend{failAt: 2}
	vecs, err := NewBatcher(be, WithBatchSize(10)).Embed(context.Background(), inputs(35))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEmbedding)
	assert.Nil(t, vecs)
	assert.Len(t, be.batches, 2, "no further batches after a failure")
}

func TestEmbedCountMismatchFails(t *testing.T) {
	be := &recordingBackend{short: true}
	_, err := NewBatcher(be).Embed(context.Background(), inputs(3))
	assert.ErrorIs(t, err, domain.ErrEmbedding)
}

func TestEmbedEmptyInput(t *testing.T) {
	be := &recordingBackend{}
	vecs, err := NewBatcher(be).Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
	assert.Empty(t, be.batches)
}

func TestEmbedRateLimitRespectsContext(t *testing.T) {
	be := &recordingBackend{}
	b := NewBatcher(be, WithBatchSize(1), WithRateLimit(0.001))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := b.Embed(ctx, inputs(3))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEmbedding)
	assert.Len(t, be.batches, 1)
}
