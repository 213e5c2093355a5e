package memory

import (
	"context"
	"sort"
	"time"

	"github.com/mnemoslabs/mnemo-go/memory/backend"
)

// EpisodicMemory is the time-ordered durable tier. Items may belong to an
// episode: a named sequence of related events, ordered by the sequence_num
// metadata key.
type EpisodicMemory struct {
	durable
}

// NewEpisodicMemory creates the episodic tier over the given backends.
// vec and embed may be nil; searches then use the keyword path.
func NewEpisodicMemory(cfg Config, rel backend.Relational, vec backend.VectorIndex, embed Embedder) *EpisodicMemory {
	return &EpisodicMemory{
		durable: newDurable(TierEpisodic, "episodic_memory", "EPISODIC", cfg, rel, vec, embed),
	}
}

// GetEpisode returns every item tagged with the episode ID, ordered by
// sequence number ascending. Duplicate sequence numbers are all retained,
// tie-broken by creation time then ID so the ordering is deterministic.
func (e *EpisodicMemory) GetEpisode(ctx context.Context, episodeID string) ([]*Item, error) {
	items, err := e.listAll(ctx)
	if err != nil {
		return nil, err
	}

	var episode []*Item
	for _, item := range items {
		if id, ok := item.Metadata[MetaEpisodeID].(string); ok && id == episodeID {
			episode = append(episode, item)
		}
	}
	sort.Slice(episode, func(i, j int) bool {
		si, sj := sequenceNum(episode[i]), sequenceNum(episode[j])
		if si != sj {
			return si < sj
		}
		if !episode[i].CreatedAt.Equal(episode[j].CreatedAt) {
			return episode[i].CreatedAt.Before(episode[j].CreatedAt)
		}
		return episode[i].ID < episode[j].ID
	})
	return episode, nil
}

// SearchByTimeRange returns items created within [start, end], oldest
// first, up to limit (0 means no limit).
func (e *EpisodicMemory) SearchByTimeRange(ctx context.Context, start, end time.Time, limit int) ([]*Item, error) {
	items, err := e.listAll(ctx)
	if err != nil {
		return nil, err
	}

	var hits []*Item
	for _, item := range items {
		if item.CreatedAt.Before(start) || item.CreatedAt.After(end) {
			continue
		}
		hits = append(hits, item)
	}
	sort.Slice(hits, func(i, j int) bool {
		if !hits[i].CreatedAt.Equal(hits[j].CreatedAt) {
			return hits[i].CreatedAt.Before(hits[j].CreatedAt)
		}
		return hits[i].ID < hits[j].ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// sequenceNum reads the item's sequence number, treating a missing or
// non-numeric value as zero.
func sequenceNum(item *Item) float64 {
	if v, ok := item.Metadata[MetaSequenceNum]; ok {
		if f, ok := toFloat(v); ok {
			return f
		}
	}
	return 0
}
