package memory

import (
	"context"

	"github.com/mnemoslabs/mnemo-go/memory/backend"
)

// Modalities recognized by the perceptual tier. The modality metadata key
// is free-form; these are the values the convenience helpers write.
const (
	ModalityText  = "text"
	ModalityImage = "image"
	ModalityAudio = "audio"
)

// PerceptualMemory is the durable multi-modal tier. Every item carries a
// modality tag, and non-text items keep their raw payload alongside the
// textual description that search operates on.
type PerceptualMemory struct {
	durable
}

// NewPerceptualMemory creates the perceptual tier over the given backends.
func NewPerceptualMemory(cfg Config, rel backend.Relational, vec backend.VectorIndex, embed Embedder) *PerceptualMemory {
	return &PerceptualMemory{
		durable: newDurable(TierPerceptual, "perceptual_memory", "PERCEPTUAL", cfg, rel, vec, embed),
	}
}

// Add stores the item, defaulting the modality tag to text when absent.
func (p *PerceptualMemory) Add(ctx context.Context, item *Item) (string, error) {
	it := item.Clone()
	if it.Metadata == nil {
		it.Metadata = make(map[string]any)
	}
	if _, ok := it.Metadata[MetaModality]; !ok {
		it.Metadata[MetaModality] = ModalityText
	}
	return p.durable.Add(ctx, it)
}

// AddImage stores an image: the raw bytes under raw_data and a textual
// description as the searchable content.
func (p *PerceptualMemory) AddImage(ctx context.Context, description string, data []byte, metadata map[string]any) (string, error) {
	return p.addBinary(ctx, ModalityImage, description, data, metadata)
}

// AddAudio stores an audio clip the same way AddImage stores an image.
func (p *PerceptualMemory) AddAudio(ctx context.Context, description string, data []byte, metadata map[string]any) (string, error) {
	return p.addBinary(ctx, ModalityAudio, description, data, metadata)
}

func (p *PerceptualMemory) addBinary(ctx context.Context, modality, description string, data []byte, metadata map[string]any) (string, error) {
	item := NewItem(description, TierPerceptual)
	for k, v := range metadata {
		item.Metadata[k] = v
	}
	item.Metadata[MetaModality] = modality
	item.Metadata[MetaRawData] = data
	item.Metadata["size_bytes"] = len(data)
	return p.durable.Add(ctx, item)
}

// SearchByModality restricts a search to one modality. An empty query
// returns the most important items of that modality.
func (p *PerceptualMemory) SearchByModality(ctx context.Context, query, modality string, topK int) ([]*Item, error) {
	return p.Search(ctx, query, topK, map[string]any{MetaModality: modality})
}
