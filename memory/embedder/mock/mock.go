// Package mock provides a deterministic embedding provider for tests.
package mock

import (
	"context"
	"hash/fnv"
	"math"
)

// Provider generates deterministic embeddings from a text hash. Identical
// text always yields an identical unit vector, so similarity search behaves
// predictably in tests without real model files or network access.
type Provider struct {
	dimensions int
}

// New creates a mock provider with the given vector size.
func New(dimensions int) *Provider {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &Provider{dimensions: dimensions}
}

// Embed creates a deterministic embedding from the text hash.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	embedding := make([]float32, p.dimensions)
	for i := 0; i < p.dimensions; i++ {
		// Simple LCG keyed by the text hash.
		seed = seed*6364136223846793005 + 1442695040888963407
		embedding[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}

	normalize(embedding)
	return embedding, nil
}

// EmbedBatch embeds each text independently.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := p.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vecs[i] = vec
	}
	return vecs, nil
}

// Dimensions returns the embedding size.
func (p *Provider) Dimensions() int {
	return p.dimensions
}

// normalize converts the embedding to a unit vector in place.
func normalize(vec []float32) {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return
	}
	norm = float32(math.Sqrt(float64(norm)))
	for i := range vec {
		vec[i] /= norm
	}
}
