// Package openai provides an embedding provider backed by the OpenAI
// embeddings API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"os"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "text-embedding-3-small"

// Config configures the OpenAI embedding provider.
type Config struct {
	// APIKey overrides the OPENAI_API_KEY environment variable.
	APIKey string

	// Model is the embedding model name. Defaults to DefaultModel.
	Model string

	// Dimensions optionally reduces the output vector size for models
	// that support it. Zero keeps the model's native size.
	Dimensions int
}

// Provider calls the OpenAI embeddings endpoint.
type Provider struct {
	client     oai.Client
	model      string
	dimensions int
}

// New creates an OpenAI embedding provider. It fails if no API key is
// configured or present in the environment.
func New(cfg Config) (*Provider, error) {
	key := cfg.APIKey
	if key == "" {
		key = os.Getenv("OPENAI_API_KEY")
	}
	if key == "" {
		return nil, errors.New("openai: no API key configured")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	dims := cfg.Dimensions
	if dims <= 0 {
		dims = 1536 // native size of text-embedding-3-small
	}
	return &Provider{
		client:     oai.NewClient(option.WithAPIKey(key)),
		model:      cfg.Model,
		dimensions: dims,
	}, nil
}

func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	params := oai.EmbeddingNewParams{
		Model: oai.EmbeddingModel(p.model),
		Input: oai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	}
	if p.dimensions > 0 {
		params.Dimensions = oai.Int(int64(p.dimensions))
	}

	resp, err := p.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embeddings: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	vecs := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		vecs[i] = vec
	}
	return vecs, nil
}

func (p *Provider) Dimensions() int {
	return p.dimensions
}
