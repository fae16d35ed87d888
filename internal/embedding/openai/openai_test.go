package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type embeddingRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions"`
}

// reversedServer answers with vectors in reverse order to check index-based placement.
func reversedServer(t *testing.T, fail *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		if fail != nil && fail.Load() > 0 {
			fail.Add(-1)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
			return
		}
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)
		var items []string
		for i := len(req.Input) - 1; i >= 0; i-- {
			items = append(items, fmt.Sprintf(`{"object":"embedding","index":%d,"embedding":[%d,0.5]}`, i, len(req.Input[i])))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"object":"list","model":"text-embedding-3-small","data":[%s]}`, strings.Join(items, ","))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, url string, retries int) *Client {
	t.Helper()
	c, err := NewClient(Config{BaseURL: url + "/v1", APIKey: "k", MaxRetries: retries})
	require.NoError(t, err)
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func TestEmbedBatchPlacesVectorsByIndex(t *testing.T) {
	srv := reversedServer(t, nil)
	c := newTestClient(t, srv.URL, 0)

	vecs, err := c.EmbedBatch(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, []float32{1, 0.5}, vecs[0])
	assert.Equal(t, []float32{2, 0.5}, vecs[1])
	assert.Equal(t, []float32{3, 0.5}, vecs[2])
	assert.Equal(t, 1536, c.Dimension())
	assert.Equal(t, "openai", c.Name())
}

func TestEmbedBatchRequestsConfiguredDimension(t *testing.T) {
	tests := []struct {
		model string
		dim   int
		want  int
	}{
		{"text-embedding-3-small", 256, 256},
		{"text-embedding-3-large", 3072, 3072},
		{"text-embedding-ada-002", 1536, 0},
	}
	for _, tc := range tests {
		t.Run(tc.model, func(t *testing.T) {
			var got embeddingRequest
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				w.Header().Set("Content-Type", "application/json")
				_, _ = fmt.Fprint(w, `{"object":"list","data":[{"object":"embedding","index":0,"embedding":[0.1,0.2]}]}`)
			}))
			defer srv.Close()

			c, err := NewClient(Config{BaseURL: srv.URL + "/v1", APIKey: "k", Model: tc.model, Dimension: tc.dim})
			require.NoError(t, err)
			_, err = c.EmbedBatch(context.Background(), []string{"x"})
			require.NoError(t, err)
			assert.Equal(t, tc.model, got.Model)
			assert.Equal(t, tc.want, got.Dimensions)
		})
	}
}

func TestEmbedBatchRetriesRateLimits(t *testing.T) {
	var fail atomic.Int32
	fail.Store(2)
	srv := reversedServer(t, &fail)
	c := newTestClient(t, srv.URL, 3)

	vecs, err := c.EmbedBatch(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Len(t, vecs, 1)
}

func TestEmbedBatchGivesUpAfterRetries(t *testing.T) {
	var fail atomic.Int32
	fail.Store(10)
	srv := reversedServer(t, &fail)
	c := newTestClient(t, srv.URL, 2)

	_, err := c.EmbedBatch(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Equal(t, int32(7), fail.Load())
}

func TestEmbedBatchDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"too long","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()
	c := newTestClient(t, srv.URL, 5)

	_, err := c.EmbedBatch(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestEmbedBatchCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":0,"embedding":[1]}]}`))
	}))
	defer srv.Close()
	c := newTestClient(t, srv.URL, 0)

	_, err := c.EmbedBatch(context.Background(), []string{"a", "b"})
	assert.Error(t, err)
}

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, 200*time.Millisecond, retryDelay(0))
	assert.Equal(t, 400*time.Millisecond, retryDelay(1))
	assert.Equal(t, 5*time.Second, retryDelay(10))
	assert.Equal(t, 200*time.Millisecond, retryDelay(-3))
}
