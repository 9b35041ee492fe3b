// Package embedding wraps the external embedding provider behind the
// eino Embedder contract and adds an optional fail-open cache.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	einoembedding "github.com/cloudwego/eino/components/embedding"
	"github.com/rs/zerolog"
)

// ErrEmbeddingFailure marks a vectorization that could not be completed
// after retries. A failed bulk embedding aborts the whole search.
var ErrEmbeddingFailure = errors.New("embedding failed")

const (
	defaultMaxBatchSize = 32
	defaultMaxRetries   = 3
	defaultBackoffBase  = 500 * time.Millisecond
)

// TextEmbedder is the provider contract the matcher depends on. It
// matches the eino embedding.Embedder signature plus introspection of the
// model identity, which the cache and the index dimensionality invariant
// both need.
type TextEmbedder interface {
	EmbedStrings(ctx context.Context, texts []string, opts ...einoembedding.Option) ([][]float64, error)
	GetDimensions() int
	ModelID() string
}

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint, batching
// inputs up to the provider limit while preserving input order.
type OpenAIEmbedder struct {
	apiKey       string
	model        string
	dimensions   int
	baseURL      string
	maxBatchSize int
	maxRetries   int
	backoff      time.Duration
	httpClient   *http.Client
	logger       zerolog.Logger
}

// EmbedderOption configures an OpenAIEmbedder.
type EmbedderOption func(*OpenAIEmbedder)

// WithMaxBatchSize overrides the per-request input cap.
func WithMaxBatchSize(n int) EmbedderOption {
	return func(e *OpenAIEmbedder) {
		if n > 0 {
			e.maxBatchSize = n
		}
	}
}

// WithEmbedderLogger sets a custom logger.
func WithEmbedderLogger(logger zerolog.Logger) EmbedderOption {
	return func(e *OpenAIEmbedder) {
		e.logger = logger
	}
}

// WithEmbedderHTTPClient replaces the default HTTP client, mainly for tests.
func WithEmbedderHTTPClient(c *http.Client) EmbedderOption {
	return func(e *OpenAIEmbedder) {
		e.httpClient = c
	}
}

// WithEmbedderRetryPolicy overrides the retry attempt count and base backoff.
func WithEmbedderRetryPolicy(maxRetries int, backoffBase time.Duration) EmbedderOption {
	return func(e *OpenAIEmbedder) {
		if maxRetries > 0 {
			e.maxRetries = maxRetries
		}
		if backoffBase > 0 {
			e.backoff = backoffBase
		}
	}
}

// NewOpenAIEmbedder builds an embedder for the given model. The API key
// is required; baseURL falls back to the public endpoint.
func NewOpenAIEmbedder(apiKey, model, baseURL string, dimensions int, options ...EmbedderOption) (*OpenAIEmbedder, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("embedding: API key must not be empty")
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1/embeddings"
	}
	e := &OpenAIEmbedder{
		apiKey:       apiKey,
		model:        model,
		dimensions:   dimensions,
		baseURL:      baseURL,
		maxBatchSize: defaultMaxBatchSize,
		maxRetries:   defaultMaxRetries,
		backoff:      defaultBackoffBase,
		httpClient:   &http.Client{},
		logger:       zerolog.Nop(),
	}
	for _, opt := range options {
		opt(e)
	}
	return e, nil
}

// GetDimensions returns the configured vector dimensionality.
func (e *OpenAIEmbedder) GetDimensions() int {
	return e.dimensions
}

// ModelID returns the embedding model identifier. Vectors from different
// models must never be compared against each other.
func (e *OpenAIEmbedder) ModelID() string {
	return e.model
}

type embeddingRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingDataEntry struct {
	Embedding []float64 `json:"embedding"`
	Index     int       `json:"index"`
}

type embeddingAPIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

type embeddingResponse struct {
	Data  []embeddingDataEntry `json:"data"`
	Model string               `json:"model"`
	Error *embeddingAPIError   `json:"error,omitempty"`
}

// EmbedStrings implements the eino embedding.Embedder interface. Output
// order matches input order across batch boundaries.
func (e *OpenAIEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...einoembedding.Option) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	options := &einoembedding.Options{}
	einoembedding.GetCommonOptions(options, opts...)
	model := e.model
	if options.Model != nil && *options.Model != "" {
		model = *options.Model
	}

	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += e.maxBatchSize {
		end := start + e.maxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := e.embedBatch(ctx, texts[start:end], model)
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

// embedBatch sends one provider request with bounded exponential backoff
// on 429 and transient 5xx responses.
func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string, model string) ([][]float64, error) {
	var lastErr error
	for attempt := 0; attempt < e.maxRetries; attempt++ {
		if attempt > 0 {
			wait := e.backoff * time.Duration(1<<(attempt-1))
			if jitter := int64(wait / 2); jitter > 0 {
				wait += time.Duration(rand.Int63n(jitter))
			}
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailure, ctx.Err())
			case <-time.After(wait):
			}
		}

		vectors, retryable, err := e.doRequest(ctx, texts, model)
		if err == nil {
			return vectors, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
		e.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("embedding attempt failed, retrying")
	}
	return nil, fmt.Errorf("%w: retries exhausted: %v", ErrEmbeddingFailure, lastErr)
}

func (e *OpenAIEmbedder) doRequest(ctx context.Context, texts []string, model string) ([][]float64, bool, error) {
	reqBody := embeddingRequest{
		Input: texts,
		Model: model,
	}
	if e.dimensions > 0 {
		reqBody.Dimensions = e.dimensions
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, false, fmt.Errorf("%w: marshal request: %v", ErrEmbeddingFailure, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, false, fmt.Errorf("%w: build request: %v", ErrEmbeddingFailure, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("%w: %v", ErrEmbeddingFailure, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("%w: read response: %v", ErrEmbeddingFailure, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("%w: status %d: %s", ErrEmbeddingFailure, resp.StatusCode, truncateBody(body))
	default:
		return nil, false, fmt.Errorf("%w: status %d: %s", ErrEmbeddingFailure, resp.StatusCode, truncateBody(body))
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, false, fmt.Errorf("%w: unmarshal response: %v", ErrEmbeddingFailure, err)
	}
	if parsed.Error != nil && parsed.Error.Message != "" {
		return nil, false, fmt.Errorf("%w: provider error %s: %s", ErrEmbeddingFailure, parsed.Error.Type, parsed.Error.Message)
	}
	if len(parsed.Data) != len(texts) {
		return nil, false, fmt.Errorf("%w: got %d vectors for %d inputs", ErrEmbeddingFailure, len(parsed.Data), len(texts))
	}

	// The API documents index-ordered data; restore order explicitly
	// anyway since the invariant is cheap to enforce.
	vectors := make([][]float64, len(texts))
	for _, entry := range parsed.Data {
		if entry.Index < 0 || entry.Index >= len(vectors) {
			return nil, false, fmt.Errorf("%w: vector index %d out of range", ErrEmbeddingFailure, entry.Index)
		}
		vectors[entry.Index] = entry.Embedding
	}
	return vectors, false, nil
}

func truncateBody(body []byte) string {
	const max = 300
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
