package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	einoembedding "github.com/cloudwego/eino/components/embedding"
	"github.com/rs/zerolog"
)

// VectorCache stores serialized vectors keyed by content hash. A miss is
// (_, false, nil); cache errors must not fail the embedding path.
type VectorCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

// CachedEmbedder decorates a TextEmbedder with per-text caching. Keys
// include the model identifier so vectors from different models never
// collide. Cache failures fall through to the provider.
type CachedEmbedder struct {
	inner  TextEmbedder
	cache  VectorCache
	ttl    time.Duration
	logger zerolog.Logger
}

// NewCachedEmbedder wraps inner with cache. A zero ttl means entries
// never expire (the store may still evict).
func NewCachedEmbedder(inner TextEmbedder, cache VectorCache, ttl time.Duration, logger zerolog.Logger) *CachedEmbedder {
	return &CachedEmbedder{
		inner:  inner,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

// GetDimensions returns the wrapped embedder's dimensionality.
func (c *CachedEmbedder) GetDimensions() int {
	return c.inner.GetDimensions()
}

// ModelID returns the wrapped embedder's model identifier.
func (c *CachedEmbedder) ModelID() string {
	return c.inner.ModelID()
}

// EmbedStrings serves hits from the cache, batches only the misses
// through the provider and preserves input order.
func (c *CachedEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...einoembedding.Option) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	out := make([][]float64, len(texts))
	missing := make([]string, 0, len(texts))
	missingIdx := make([]int, 0, len(texts))

	for i, text := range texts {
		key := c.cacheKey(text)
		raw, found, err := c.cache.Get(ctx, key)
		if err != nil {
			c.logger.Warn().Err(err).Msg("embedding cache read failed, treating as miss")
		}
		if found && err == nil {
			var vec []float64
			if jsonErr := json.Unmarshal([]byte(raw), &vec); jsonErr == nil && len(vec) > 0 {
				out[i] = vec
				continue
			}
			c.logger.Warn().Str("key", key).Msg("embedding cache entry corrupt, refetching")
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) == 0 {
		return out, nil
	}

	vectors, err := c.inner.EmbedStrings(ctx, missing, opts...)
	if err != nil {
		return nil, err
	}

	for j, vec := range vectors {
		out[missingIdx[j]] = vec
		if encoded, jsonErr := json.Marshal(vec); jsonErr == nil {
			if setErr := c.cache.Set(ctx, c.cacheKey(missing[j]), string(encoded), c.ttl); setErr != nil {
				c.logger.Warn().Err(setErr).Msg("embedding cache write failed")
			}
		}
	}

	c.logger.Debug().
		Int("hits", len(texts)-len(missing)).
		Int("misses", len(missing)).
		Msg("embedding cache lookup complete")

	return out, nil
}

func (c *CachedEmbedder) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "emb:" + c.inner.ModelID() + ":" + hex.EncodeToString(sum[:])
}
