package embedder

import (
	"context"
	"math"
	"testing"
)

func TestHashProvider_Deterministic(t *testing.T) {
	ctx := context.Background()
	p := NewHashProvider(128)

	a, err := p.Embed(ctx, "the cat sat on the mat")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	b, err := p.Embed(ctx, "the cat sat on the mat")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embeddings differ at %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestHashProvider_UnitLength(t *testing.T) {
	ctx := context.Background()
	p := NewHashProvider(128)

	vec, err := p.Embed(ctx, "some words to embed")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1.0) > 1e-5 {
		t.Errorf("squared norm = %v, want 1", norm)
	}
}

func TestHashProvider_EmptyText(t *testing.T) {
	ctx := context.Background()
	p := NewHashProvider(128)

	vec, err := p.Embed(ctx, "")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != 128 {
		t.Fatalf("len = %d, want 128", len(vec))
	}
	for _, v := range vec {
		if v != 0 {
			t.Fatal("empty text should embed to the zero vector")
		}
	}
}

func TestHashProvider_TokenOverlapScoresHigher(t *testing.T) {
	ctx := context.Background()
	p := NewHashProvider(256)

	query, _ := p.Embed(ctx, "project deadline")
	near, _ := p.Embed(ctx, "project deadline moved")
	far, _ := p.Embed(ctx, "completely unrelated words")

	if dot(query, near) <= dot(query, far) {
		t.Errorf("overlap similarity %v not above unrelated %v", dot(query, near), dot(query, far))
	}
}

func TestHashProvider_Defaults(t *testing.T) {
	p := NewHashProvider(0)
	if p.Dimensions() != DefaultDimensions {
		t.Errorf("Dimensions = %d, want %d", p.Dimensions(), DefaultDimensions)
	}
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
