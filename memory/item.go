package memory

import (
	"time"

	"github.com/google/uuid"
)

// Tier identifies one of the four memory categories, each a distinct store
// with its own retention policy.
type Tier string

const (
	// TierWorking is short-term in-process memory with TTL and capacity
	// eviction.
	TierWorking Tier = "working"

	// TierEpisodic is durable, time-ordered event memory.
	TierEpisodic Tier = "episodic"

	// TierSemantic is durable, graph-linked knowledge memory.
	TierSemantic Tier = "semantic"

	// TierPerceptual is durable multi-modal memory.
	TierPerceptual Tier = "perceptual"
)

// Valid reports whether t names a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierWorking, TierEpisodic, TierSemantic, TierPerceptual:
		return true
	}
	return false
}

// Metadata keys with tier-specific meaning.
const (
	// MetaEpisodeID groups episodic items into an ordered sequence.
	MetaEpisodeID = "episode_id"

	// MetaSequenceNum orders items within an episode.
	MetaSequenceNum = "sequence_num"

	// MetaModality tags perceptual items ("text", "image", "audio", ...).
	MetaModality = "modality"

	// MetaRawData carries an optional binary payload on perceptual items.
	MetaRawData = "raw_data"
)

// Item is the unit of memory.
type Item struct {
	// ID is the unique identifier, generated at creation if absent and
	// immutable once the item exists in a store.
	ID string `json:"id"`

	// Content is the text payload.
	Content string `json:"content"`

	// Tier determines which store contract applies. Mutable only through
	// consolidation.
	Tier Tier `json:"tier"`

	// Embedding is the fixed-length vector, absent until computed.
	Embedding []float32 `json:"embedding,omitempty"`

	// Metadata carries tier-specific fields (episode_id, sequence_num,
	// modality, raw_data, ...). Values round-trip through JSON, so
	// numbers decode as float64.
	Metadata map[string]any `json:"metadata,omitempty"`

	// CreatedAt is fixed at insertion.
	CreatedAt time.Time `json:"created_at"`

	// LastAccessed is updated on every successful read and on inclusion
	// in ranked search results.
	LastAccessed time.Time `json:"last_accessed"`

	// AccessCount increments alongside LastAccessed.
	AccessCount int `json:"access_count"`

	// Importance in [0,1] drives eviction priority and consolidation
	// eligibility. Defaults to 0.5.
	Importance float64 `json:"importance"`

	// TTL is the time to live from CreatedAt; zero means no automatic
	// expiry. The working tier assigns its configured default when zero.
	TTL time.Duration `json:"ttl,omitempty"`
}

// NewItem creates an item with a fresh ID, default importance and the
// current time.
func NewItem(content string, tier Tier) *Item {
	now := time.Now()
	return &Item{
		ID:           uuid.New().String(),
		Content:      content,
		Tier:         tier,
		Metadata:     make(map[string]any),
		CreatedAt:    now,
		LastAccessed: now,
		Importance:   0.5,
	}
}

// ExpiresAt returns the expiry instant, or false if the item never expires.
func (it *Item) ExpiresAt() (time.Time, bool) {
	if it.TTL <= 0 {
		return time.Time{}, false
	}
	return it.CreatedAt.Add(it.TTL), true
}

// Expired reports whether the item's TTL has passed at the given instant.
func (it *Item) Expired(now time.Time) bool {
	exp, ok := it.ExpiresAt()
	return ok && now.After(exp)
}

// Clone returns a deep copy. Stores hand out clones so no two tiers (and
// no store and its caller) ever alias the same item instance.
func (it *Item) Clone() *Item {
	cp := *it
	if it.Embedding != nil {
		cp.Embedding = make([]float32, len(it.Embedding))
		copy(cp.Embedding, it.Embedding)
	}
	if it.Metadata != nil {
		cp.Metadata = make(map[string]any, len(it.Metadata))
		for k, v := range it.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// touch records a successful access.
func (it *Item) touch(now time.Time) {
	it.LastAccessed = now
	it.AccessCount++
}

// Patch describes a partial item update. Nil fields are left unchanged;
// Metadata entries are merged into the existing map.
type Patch struct {
	Content    *string
	Importance *float64
	TTL        *time.Duration
	Metadata   map[string]any
}

// apply mutates the item with the patch's set fields.
func (it *Item) apply(p Patch) {
	if p.Content != nil {
		it.Content = *p.Content
	}
	if p.Importance != nil {
		it.Importance = *p.Importance
	}
	if p.TTL != nil {
		it.TTL = *p.TTL
	}
	if len(p.Metadata) > 0 {
		if it.Metadata == nil {
			it.Metadata = make(map[string]any, len(p.Metadata))
		}
		for k, v := range p.Metadata {
			it.Metadata[k] = v
		}
	}
}
