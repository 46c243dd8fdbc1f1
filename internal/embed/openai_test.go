package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func writeEmbeddings(w http.ResponseWriter, dims int, count int) {
	type datum struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	}
	var data []datum
	for i := 0; i < count; i++ {
		vec := make([]float32, dims)
		vec[0] = float32(i + 1)
		data = append(data, datum{Embedding: vec, Index: i})
	}
	json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func TestEmbedBatch_PreservesOrder(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		assert.Equal(t, 4, req.Dimensions)

		// Return data out of order; the client must reorder by index.
		type datum struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		json.NewEncoder(w).Encode(map[string]any{"data": []datum{
			{Embedding: []float32{2, 0, 0, 0}, Index: 1},
			{Embedding: []float32{1, 0, 0, 0}, Index: 0},
		}})
	})

	c, err := NewClient(Config{APIKey: "k", BaseURL: srv.URL, Dimensions: 4})
	require.NoError(t, err)

	vectors, err := c.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, float32(1), vectors[0][0])
	assert.Equal(t, float32(2), vectors[1][0])
}

func TestEmbedBatch_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeEmbeddings(w, 4, 1)
	})

	c, err := NewClient(Config{APIKey: "k", BaseURL: srv.URL, Dimensions: 4})
	require.NoError(t, err)

	vectors, err := c.EmbedBatch(context.Background(), []string{"a"})
	require.NoError(t, err)
	require.Len(t, vectors, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestEmbedBatch_NoRetryOnAuthFailure(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})

	c, err := NewClient(Config{APIKey: "bad", BaseURL: srv.URL, Dimensions: 4})
	require.NoError(t, err)

	_, err = c.EmbedBatch(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestEmbedBatch_RejectsDimensionMismatch(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeEmbeddings(w, 8, 1)
	})

	c, err := NewClient(Config{APIKey: "k", BaseURL: srv.URL, Dimensions: 4})
	require.NoError(t, err)

	_, err = c.EmbedBatch(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "8-dimension")
}

func TestEmbedBatch_EmptyInput(t *testing.T) {
	c, err := NewClient(Config{APIKey: "k", Dimensions: 4})
	require.NoError(t, err)

	vectors, err := c.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Config{Dimensions: 4})
	assert.Error(t, err)

	_, err = NewClient(Config{APIKey: "k"})
	assert.Error(t, err)
}
