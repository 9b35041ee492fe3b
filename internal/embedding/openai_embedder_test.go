package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func embeddingServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func respondWithVectors(w http.ResponseWriter, n int) {
	resp := embeddingResponse{Model: "test-model"}
	for i := 0; i < n; i++ {
		resp.Data = append(resp.Data, embeddingDataEntry{
			Index:     i,
			Embedding: []float64{float64(i), 1},
		})
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func TestEmbedStringsBatchesAndPreservesOrder(t *testing.T) {
	var requests int32
	srv := embeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.LessOrEqual(t, len(req.Input), 2)

		// Return vectors deliberately out of index order; the client
		// must restore input order.
		resp := embeddingResponse{}
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, embeddingDataEntry{
				Index:     i,
				Embedding: []float64{float64(len(req.Input[i]))},
			})
		}
		_ = json.NewEncoder(w).Encode(resp)
	})

	e, err := NewOpenAIEmbedder("key", "test-model", srv.URL, 1, WithMaxBatchSize(2))
	require.NoError(t, err)

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vectors, err := e.EmbedStrings(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, len(texts))
	for i, text := range texts {
		assert.Equal(t, float64(len(text)), vectors[i][0], "vector %d out of order", i)
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&requests), "5 inputs at batch size 2 should take 3 requests")
}

func TestEmbedStringsEmptyInput(t *testing.T) {
	e, err := NewOpenAIEmbedder("key", "", "http://unused.invalid", 0)
	require.NoError(t, err)

	vectors, err := e.EmbedStrings(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
}

func TestEmbedStringsRetriesOn429(t *testing.T) {
	var requests int32
	srv := embeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error": {"message": "rate limited"}}`)
			return
		}
		respondWithVectors(w, 1)
	})

	e, err := NewOpenAIEmbedder("key", "test-model", srv.URL, 0,
		WithEmbedderRetryPolicy(3, time.Millisecond))
	require.NoError(t, err)

	vectors, err := e.EmbedStrings(context.Background(), []string{"hello"})
	require.NoError(t, err)
	require.Len(t, vectors, 1)
	assert.Equal(t, int32(2), atomic.LoadInt32(&requests))
}

func TestEmbedStringsDoesNotRetryClientErrors(t *testing.T) {
	var requests int32
	srv := embeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusUnauthorized)
	})

	e, err := NewOpenAIEmbedder("key", "test-model", srv.URL, 0,
		WithEmbedderRetryPolicy(3, time.Millisecond))
	require.NoError(t, err)

	_, err = e.EmbedStrings(context.Background(), []string{"hello"})
	assert.ErrorIs(t, err, ErrEmbeddingFailure)
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
}

func TestEmbedStringsExhaustsRetries(t *testing.T) {
	srv := embeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	e, err := NewOpenAIEmbedder("key", "test-model", srv.URL, 0,
		WithEmbedderRetryPolicy(2, time.Millisecond))
	require.NoError(t, err)

	_, err = e.EmbedStrings(context.Background(), []string{"hello"})
	assert.ErrorIs(t, err, ErrEmbeddingFailure)
}

func TestEmbedStringsRejectsCountMismatch(t *testing.T) {
	srv := embeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
		respondWithVectors(w, 1)
	})

	e, err := NewOpenAIEmbedder("key", "test-model", srv.URL, 0)
	require.NoError(t, err)

	_, err = e.EmbedStrings(context.Background(), []string{"a", "b"})
	assert.ErrorIs(t, err, ErrEmbeddingFailure)
}

func TestNewOpenAIEmbedderRequiresKey(t *testing.T) {
	_, err := NewOpenAIEmbedder("  ", "model", "", 0)
	assert.Error(t, err)
}
