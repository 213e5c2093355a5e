package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/dgraph-io/ristretto"
)

// DefaultCacheEntries bounds the number of memoized vectors.
const DefaultCacheEntries = 4096

// Cache memoizes provider embeddings keyed by a content hash of the text.
// A hit returns the stored vector without invoking the provider. Writes
// are idempotent (the same text always maps to the same vector), so a
// racing recompute is harmless. Provider errors propagate to the caller
// and are never cached.
type Cache struct {
	provider Provider
	cache    *ristretto.Cache
}

// NewCache wraps a provider with a ristretto-backed memo table holding up
// to maxEntries vectors (DefaultCacheEntries when non-positive).
func NewCache(provider Provider, maxEntries int64) (*Cache, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheEntries
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
		// Costs here count entries, not bytes; without this flag ristretto
		// adds its internal per-item byte overhead and admits nothing.
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &Cache{provider: provider, cache: cache}, nil
}

// Embed returns the embedding for text, computing it at most once per
// distinct content (modulo cache eviction).
func (c *Cache) Embed(ctx context.Context, text string) ([]float32, error) {
	key := contentHash(text)
	if v, ok := c.cache.Get(key); ok {
		return v.([]float32), nil
	}

	vec, err := c.provider.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, vec, 1)
	return vec, nil
}

// EmbedBatch returns embeddings for all texts, serving cached entries and
// batching the misses into a single provider call.
func (c *Cache) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		if v, ok := c.cache.Get(contentHash(text)); ok {
			vecs[i] = v.([]float32)
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return vecs, nil
	}

	computed, err := c.provider.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		vecs[i] = computed[j]
		c.cache.Set(contentHash(texts[i]), computed[j], 1)
	}
	return vecs, nil
}

// Dimensions returns the underlying provider's vector size.
func (c *Cache) Dimensions() int {
	return c.provider.Dimensions()
}

// Wait blocks until buffered cache writes are applied. Useful in tests;
// normal callers never need it because recomputing a missed entry is safe.
func (c *Cache) Wait() {
	c.cache.Wait()
}

// Close releases the cache.
func (c *Cache) Close() error {
	c.cache.Close()
	return nil
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
