package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mnemoslabs/mnemo-go/memory"
	"github.com/mnemoslabs/mnemo-go/memory/backend/chromem"
	"github.com/mnemoslabs/mnemo-go/memory/backend/inmem"
	"github.com/mnemoslabs/mnemo-go/memory/embedder/mock"
)

func durableConfig() memory.Config {
	cfg := memory.DefaultConfig()
	cfg.EmbeddingDim = 64
	cfg.SimilarityThreshold = 0.5
	return cfg
}

// newEpisodic builds an episodic tier over in-process backends with the
// deterministic mock embedder, mirroring the default wiring.
func newEpisodic(t *testing.T) *memory.EpisodicMemory {
	t.Helper()
	vec, err := chromem.New("")
	if err != nil {
		t.Fatalf("chromem.New failed: %v", err)
	}
	e := memory.NewEpisodicMemory(durableConfig(), inmem.NewRelational(), vec, mock.New(64))
	if err := e.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	return e
}

func TestEpisodicMemory_AddGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	e := newEpisodic(t)

	item := memory.NewItem("deployed version 2.3", memory.TierEpisodic)
	item.Importance = 0.8
	item.Metadata["service"] = "billing"
	item.Metadata["attempt"] = 2

	id, err := e.Add(ctx, item)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	got, err := e.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Content != item.Content {
		t.Errorf("Content = %q, want %q", got.Content, item.Content)
	}
	if got.Importance != 0.8 {
		t.Errorf("Importance = %v, want 0.8", got.Importance)
	}
	if got.Metadata["service"] != "billing" {
		t.Errorf("Metadata[service] = %v, want billing", got.Metadata["service"])
	}
	// Numbers come back as float64 after the JSON round trip.
	if got.Metadata["attempt"] != float64(2) {
		t.Errorf("Metadata[attempt] = %v (%T), want float64(2)", got.Metadata["attempt"], got.Metadata["attempt"])
	}
	if got.AccessCount != 1 {
		t.Errorf("AccessCount = %d, want 1", got.AccessCount)
	}

	if _, err := e.Get(ctx, "no-such-id"); !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("Get unknown id: err = %v, want ErrNotFound", err)
	}
}

func TestEpisodicMemory_AddIsUpsert(t *testing.T) {
	ctx := context.Background()
	e := newEpisodic(t)

	item := memory.NewItem("first write", memory.TierEpisodic)
	id, err := e.Add(ctx, item)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	item.Content = "second write"
	id2, err := e.Add(ctx, item)
	if err != nil {
		t.Fatalf("second Add failed: %v", err)
	}
	if id2 != id {
		t.Fatalf("retry changed ID: %q vs %q", id2, id)
	}

	got, err := e.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Content != "second write" {
		t.Errorf("Content = %q, want the overwritten value", got.Content)
	}
}

func TestEpisodicMemory_GetEpisodeOrdering(t *testing.T) {
	ctx := context.Background()
	e := newEpisodic(t)

	// Inserted out of order, including a duplicate sequence number.
	steps := []struct {
		content string
		seq     int
	}{
		{"step three", 3},
		{"step one", 1},
		{"step two", 2},
		{"step two again", 2},
	}
	for _, s := range steps {
		item := memory.NewItem(s.content, memory.TierEpisodic)
		item.Metadata[memory.MetaEpisodeID] = "ep-1"
		item.Metadata[memory.MetaSequenceNum] = s.seq
		if _, err := e.Add(ctx, item); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	// An item from another episode must not leak in.
	other := memory.NewItem("unrelated", memory.TierEpisodic)
	other.Metadata[memory.MetaEpisodeID] = "ep-2"
	if _, err := e.Add(ctx, other); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	episode, err := e.GetEpisode(ctx, "ep-1")
	if err != nil {
		t.Fatalf("GetEpisode failed: %v", err)
	}
	if len(episode) != 4 {
		t.Fatalf("GetEpisode returned %d items, want 4 (duplicates retained)", len(episode))
	}
	if episode[0].Content != "step one" {
		t.Errorf("first = %q, want step one", episode[0].Content)
	}
	if episode[3].Content != "step three" {
		t.Errorf("last = %q, want step three", episode[3].Content)
	}
	// Both seq=2 items survive, in the middle.
	mid := map[string]bool{episode[1].Content: true, episode[2].Content: true}
	if !mid["step two"] || !mid["step two again"] {
		t.Errorf("middle items = %v, want both seq=2 items", mid)
	}
}

func TestEpisodicMemory_SearchByTimeRange(t *testing.T) {
	ctx := context.Background()
	e := newEpisodic(t)

	base := time.Now().Add(-time.Hour)
	for i, content := range []string{"old", "middle", "new"} {
		item := memory.NewItem(content, memory.TierEpisodic)
		item.CreatedAt = base.Add(time.Duration(i) * 10 * time.Minute)
		if _, err := e.Add(ctx, item); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	hits, err := e.SearchByTimeRange(ctx, base.Add(-time.Minute), base.Add(15*time.Minute), 0)
	if err != nil {
		t.Fatalf("SearchByTimeRange failed: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("returned %d items, want 2", len(hits))
	}
	if hits[0].Content != "old" || hits[1].Content != "middle" {
		t.Errorf("order = [%q, %q], want oldest first", hits[0].Content, hits[1].Content)
	}

	hits, err = e.SearchByTimeRange(ctx, base.Add(-time.Minute), base.Add(time.Hour), 1)
	if err != nil {
		t.Fatalf("SearchByTimeRange failed: %v", err)
	}
	if len(hits) != 1 || hits[0].Content != "old" {
		t.Errorf("limited range = %v, want just the oldest", hits)
	}
}

func TestEpisodicMemory_VectorSearch(t *testing.T) {
	ctx := context.Background()
	e := newEpisodic(t)
	embed := mock.New(64)

	contents := []string{"the deployment failed", "lunch was good", "reviewed the budget"}
	for _, c := range contents {
		item := memory.NewItem(c, memory.TierEpisodic)
		vec, err := embed.Embed(ctx, c)
		if err != nil {
			t.Fatalf("Embed failed: %v", err)
		}
		item.Embedding = vec
		if _, err := e.Add(ctx, item); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	// The mock embedder maps identical text to identical vectors, so the
	// exact content is the nearest neighbor with similarity ~1.
	items, err := e.Search(ctx, "the deployment failed", 3, nil)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(items) == 0 {
		t.Fatal("Search returned nothing")
	}
	if items[0].Content != "the deployment failed" {
		t.Errorf("best match = %q, want the exact content", items[0].Content)
	}
	if items[0].AccessCount != 1 {
		t.Errorf("AccessCount = %d, want 1", items[0].AccessCount)
	}
}

func TestEpisodicMemory_KeywordFallback(t *testing.T) {
	ctx := context.Background()
	// No vector index and no embedder: the keyword path serves searches.
	e := memory.NewEpisodicMemory(durableConfig(), inmem.NewRelational(), nil, nil)
	if err := e.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	low := memory.NewItem("meeting about the budget", memory.TierEpisodic)
	low.Importance = 0.3
	high := memory.NewItem("urgent budget decision", memory.TierEpisodic)
	high.Importance = 0.9
	noise := memory.NewItem("walked the dog", memory.TierEpisodic)
	for _, item := range []*memory.Item{low, high, noise} {
		if _, err := e.Add(ctx, item); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	items, err := e.Search(ctx, "BUDGET", 10, nil)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("Search returned %d items, want 2", len(items))
	}
	// Keyword results rank by importance, not match quality.
	if items[0].Content != "urgent budget decision" {
		t.Errorf("first = %q, want the more important item", items[0].Content)
	}

	// Empty query with filters matches on metadata alone.
	tagged := memory.NewItem("tagged entry", memory.TierEpisodic)
	tagged.Metadata["source"] = "sensor"
	if _, err := e.Add(ctx, tagged); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	items, err = e.Search(ctx, "", 10, map[string]any{"source": "sensor"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(items) != 1 || items[0].Content != "tagged entry" {
		t.Errorf("filter-only search = %v, want just the tagged entry", items)
	}
}

func TestEpisodicMemory_UpdateDeleteClear(t *testing.T) {
	ctx := context.Background()
	e := newEpisodic(t)

	id, err := e.Add(ctx, memory.NewItem("to be edited", memory.TierEpisodic))
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	content := "edited"
	ok, err := e.Update(ctx, id, memory.Patch{Content: &content, Metadata: map[string]any{"edited": true}})
	if err != nil || !ok {
		t.Fatalf("Update = (%v, %v), want (true, nil)", ok, err)
	}
	got, err := e.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Content != "edited" || got.Metadata["edited"] != true {
		t.Errorf("patch not applied: content=%q metadata=%v", got.Content, got.Metadata)
	}

	ok, err = e.Update(ctx, "no-such-id", memory.Patch{Content: &content})
	if err != nil || ok {
		t.Errorf("Update unknown id = (%v, %v), want (false, nil)", ok, err)
	}

	ok, err = e.Delete(ctx, id)
	if err != nil || !ok {
		t.Fatalf("Delete = (%v, %v), want (true, nil)", ok, err)
	}
	if _, err := e.Get(ctx, id); !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("Get after delete: err = %v, want ErrNotFound", err)
	}

	if _, err := e.Add(ctx, memory.NewItem("survivor", memory.TierEpisodic)); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := e.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	items, err := e.Search(ctx, "", 10, nil)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("Search after Clear returned %d items, want 0", len(items))
	}
}
