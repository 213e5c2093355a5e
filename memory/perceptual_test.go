package memory_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/mnemoslabs/mnemo-go/memory"
	"github.com/mnemoslabs/mnemo-go/memory/backend/inmem"
)

func newPerceptual(t *testing.T) *memory.PerceptualMemory {
	t.Helper()
	p := memory.NewPerceptualMemory(durableConfig(), inmem.NewRelational(), nil, nil)
	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	return p
}

func TestPerceptualMemory_DefaultModality(t *testing.T) {
	ctx := context.Background()
	p := newPerceptual(t)

	id, err := p.Add(ctx, memory.NewItem("a plain note", memory.TierPerceptual))
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	got, err := p.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Metadata[memory.MetaModality] != memory.ModalityText {
		t.Errorf("modality = %v, want %q", got.Metadata[memory.MetaModality], memory.ModalityText)
	}
}

func TestPerceptualMemory_AddImageRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := newPerceptual(t)

	raw := []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a}
	id, err := p.AddImage(ctx, "screenshot of the dashboard", raw, map[string]any{"source": "ci"})
	if err != nil {
		t.Fatalf("AddImage failed: %v", err)
	}

	got, err := p.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Content != "screenshot of the dashboard" {
		t.Errorf("Content = %q, want the description", got.Content)
	}
	if got.Metadata[memory.MetaModality] != memory.ModalityImage {
		t.Errorf("modality = %v, want image", got.Metadata[memory.MetaModality])
	}
	if got.Metadata["source"] != "ci" {
		t.Errorf("Metadata[source] = %v, want ci", got.Metadata["source"])
	}
	gotRaw, ok := got.Metadata[memory.MetaRawData].([]byte)
	if !ok {
		t.Fatalf("raw_data is %T, want []byte", got.Metadata[memory.MetaRawData])
	}
	if !bytes.Equal(gotRaw, raw) {
		t.Errorf("raw_data = %x, want %x", gotRaw, raw)
	}
}

func TestPerceptualMemory_SearchByModality(t *testing.T) {
	ctx := context.Background()
	p := newPerceptual(t)

	if _, err := p.AddImage(ctx, "sunset photo", []byte{1, 2, 3}, nil); err != nil {
		t.Fatalf("AddImage failed: %v", err)
	}
	if _, err := p.AddAudio(ctx, "voicemail from alice", []byte{4, 5, 6}, nil); err != nil {
		t.Fatalf("AddAudio failed: %v", err)
	}
	if _, err := p.Add(ctx, memory.NewItem("sunset was nice", memory.TierPerceptual)); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	images, err := p.SearchByModality(ctx, "sunset", memory.ModalityImage, 10)
	if err != nil {
		t.Fatalf("SearchByModality failed: %v", err)
	}
	if len(images) != 1 || images[0].Content != "sunset photo" {
		t.Errorf("image search = %v, want just the photo", images)
	}

	// An empty query lists everything of that modality.
	audio, err := p.SearchByModality(ctx, "", memory.ModalityAudio, 10)
	if err != nil {
		t.Fatalf("SearchByModality failed: %v", err)
	}
	if len(audio) != 1 || audio[0].Content != "voicemail from alice" {
		t.Errorf("audio search = %v, want just the voicemail", audio)
	}
}
