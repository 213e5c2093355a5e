// Package embedder converts text to fixed-length vectors for similarity
// search. A Provider produces embeddings; the Cache memoizes them by
// content hash so repeated text never hits the provider twice.
//
// Provider selection is resolved once at startup: an explicitly configured
// provider wins, then one advertised by the environment, then a
// deterministic local hash provider that always succeeds without network
// access. The fallback trades embedding quality for availability; ranking
// degrades, correctness does not.
package embedder

import (
	"context"
	"log"
	"os"

	"github.com/mnemoslabs/mnemo-go/memory/embedder/openai"
)

// Provider converts text to embedding vectors.
type Provider interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts multiple texts in one call.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}

// ResolveConfig selects the embedding provider at startup.
type ResolveConfig struct {
	// Provider names the backend explicitly: "openai" or "hash".
	// Empty means auto-detect.
	Provider string

	// Model is the provider-specific model name.
	Model string

	// Dimensions is the embedding vector size used by the hash fallback
	// (and passed to providers that support dimension reduction).
	Dimensions int
}

// Resolve picks the first available provider. Failures of higher-priority
// providers fall through to the next candidate; the hash fallback always
// succeeds, so Resolve never fails.
func Resolve(cfg ResolveConfig) Provider {
	switch cfg.Provider {
	case "hash":
		return NewHashProvider(cfg.Dimensions)
	case "openai":
		p, err := openai.New(openai.Config{Model: cfg.Model, Dimensions: cfg.Dimensions})
		if err == nil {
			log.Printf("[EMBEDDER] Using OpenAI provider (model=%s)", cfg.Model)
			return p
		}
		log.Printf("[EMBEDDER] OpenAI provider unavailable, falling back: %v", err)
	case "":
		if os.Getenv("OPENAI_API_KEY") != "" {
			p, err := openai.New(openai.Config{Model: cfg.Model, Dimensions: cfg.Dimensions})
			if err == nil {
				log.Printf("[EMBEDDER] Using OpenAI provider (model=%s)", cfg.Model)
				return p
			}
			log.Printf("[EMBEDDER] OpenAI provider unavailable, falling back: %v", err)
		}
	default:
		log.Printf("[EMBEDDER] Unknown provider %q, using hash fallback", cfg.Provider)
	}

	log.Printf("[EMBEDDER] Using local hash provider (dim=%d)", cfg.Dimensions)
	return NewHashProvider(cfg.Dimensions)
}
