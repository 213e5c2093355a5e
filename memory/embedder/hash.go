package embedder

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// DefaultDimensions is used when a provider is constructed with a
// non-positive dimensionality.
const DefaultDimensions = 1536

// HashProvider is the deterministic local fallback. It builds a
// term-frequency histogram keyed by a hash of each whitespace token and
// L2-normalizes the result. No network, no model files, always available.
type HashProvider struct {
	dimensions int
}

// NewHashProvider creates a hash provider with the given vector size.
func NewHashProvider(dimensions int) *HashProvider {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &HashProvider{dimensions: dimensions}
}

func (p *HashProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, p.dimensions)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New64a()
		h.Write([]byte(token))
		vec[h.Sum64()%uint64(p.dimensions)] += 1.0
	}
	normalize(vec)
	return vec, nil
}

func (p *HashProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
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

func (p *HashProvider) Dimensions() int {
	return p.dimensions
}

// normalize scales vec to unit length in place.
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
