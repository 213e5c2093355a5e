package embedder

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

// countingProvider wraps the hash provider and counts calls.
type countingProvider struct {
	*HashProvider
	embeds  atomic.Int64
	batches atomic.Int64
	fail    bool
}

func (c *countingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.fail {
		return nil, errors.New("provider down")
	}
	c.embeds.Add(1)
	return c.HashProvider.Embed(ctx, text)
}

func (c *countingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if c.fail {
		return nil, errors.New("provider down")
	}
	c.batches.Add(1)
	return c.HashProvider.EmbedBatch(ctx, texts)
}

func TestCache_MemoizesByContent(t *testing.T) {
	ctx := context.Background()
	provider := &countingProvider{HashProvider: NewHashProvider(64)}
	cache, err := NewCache(provider, 16)
	if err != nil {
		t.Fatalf("NewCache failed: %v", err)
	}
	defer cache.Close()

	first, err := cache.Embed(ctx, "hello world")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	cache.Wait()

	second, err := cache.Embed(ctx, "hello world")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if provider.embeds.Load() != 1 {
		t.Errorf("provider called %d times, want 1", provider.embeds.Load())
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatal("cached vector differs from computed vector")
		}
	}

	if _, err := cache.Embed(ctx, "different text"); err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if provider.embeds.Load() != 2 {
		t.Errorf("provider called %d times for two distinct texts, want 2", provider.embeds.Load())
	}
}

func TestCache_BatchServesHitsAndBatchesMisses(t *testing.T) {
	ctx := context.Background()
	provider := &countingProvider{HashProvider: NewHashProvider(64)}
	cache, err := NewCache(provider, 16)
	if err != nil {
		t.Fatalf("NewCache failed: %v", err)
	}
	defer cache.Close()

	if _, err := cache.Embed(ctx, "alpha"); err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	cache.Wait()

	vecs, err := cache.EmbedBatch(ctx, []string{"alpha", "beta", "gamma"})
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("EmbedBatch returned %d vectors, want 3", len(vecs))
	}
	for i, vec := range vecs {
		if len(vec) != 64 {
			t.Errorf("vector %d has length %d, want 64", i, len(vec))
		}
	}
	// alpha was cached; beta and gamma arrive in one provider call.
	if provider.batches.Load() != 1 {
		t.Errorf("provider batch calls = %d, want 1", provider.batches.Load())
	}

	cache.Wait()
	if _, err := cache.EmbedBatch(ctx, []string{"beta", "gamma"}); err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	if provider.batches.Load() != 1 {
		t.Errorf("fully cached batch still hit the provider")
	}
}

func TestCache_NeverCachesFailures(t *testing.T) {
	ctx := context.Background()
	provider := &countingProvider{HashProvider: NewHashProvider(64), fail: true}
	cache, err := NewCache(provider, 16)
	if err != nil {
		t.Fatalf("NewCache failed: %v", err)
	}
	defer cache.Close()

	if _, err := cache.Embed(ctx, "text"); err == nil {
		t.Fatal("expected provider error")
	}

	// Once the provider recovers, the same text embeds successfully.
	provider.fail = false
	vec, err := cache.Embed(ctx, "text")
	if err != nil {
		t.Fatalf("Embed after recovery failed: %v", err)
	}
	if len(vec) != 64 {
		t.Errorf("vector length = %d, want 64", len(vec))
	}
}

func TestResolve_HashFallback(t *testing.T) {
	p := Resolve(ResolveConfig{Provider: "hash", Dimensions: 32})
	if _, ok := p.(*HashProvider); !ok {
		t.Fatalf("Resolve(hash) returned %T, want *HashProvider", p)
	}
	if p.Dimensions() != 32 {
		t.Errorf("Dimensions = %d, want 32", p.Dimensions())
	}

	p = Resolve(ResolveConfig{Provider: "no-such-provider", Dimensions: 32})
	if _, ok := p.(*HashProvider); !ok {
		t.Fatalf("Resolve(unknown) returned %T, want the hash fallback", p)
	}
}
