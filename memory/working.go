package memory

import (
	"context"
	"log"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// WorkingMemory is the short-term tier: a pure in-process store with TTL
// expiry and capacity eviction. It never touches a backend, so its
// operations cannot fail with ErrBackendUnavailable; they only suspend on
// the store's own lock.
//
// A background sweep wakes every Config.SweepInterval and removes expired
// items independently of request traffic. Sweep and foreground operations
// are mutually exclusive over the item index, so no reader ever observes
// the set mid-eviction.
type WorkingMemory struct {
	cfg Config

	mu      sync.Mutex
	items   map[string]*workingEntry
	nextSeq uint64

	initialized bool
	stop        chan struct{}
	done        chan struct{}
	closeOnce   sync.Once
}

// workingEntry pairs an item with its insertion sequence, the deterministic
// tie-breaker for eviction and search ordering.
type workingEntry struct {
	item *Item
	seq  uint64
}

// NewWorkingMemory creates a working memory tier with the given tunables.
func NewWorkingMemory(cfg Config) *WorkingMemory {
	return &WorkingMemory{
		cfg:   cfg,
		items: make(map[string]*workingEntry),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Initialize starts the background expiry sweep. Idempotent.
func (w *WorkingMemory) Initialize(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.initialized {
		return nil
	}
	w.initialized = true
	go w.sweepLoop()
	log.Printf("[WORKING] Initialized (capacity=%d, ttl=%s, sweep=%s)",
		w.cfg.WorkingMemoryCapacity, w.cfg.WorkingMemoryTTL, w.cfg.SweepInterval)
	return nil
}

// sweepLoop removes expired items on a fixed interval until Close.
func (w *WorkingMemory) sweepLoop() {
	defer close(w.done)
	ticker := time.NewTicker(w.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.removeExpired()
		case <-w.stop:
			return
		}
	}
}

func (w *WorkingMemory) removeExpired() {
	now := time.Now()
	w.mu.Lock()
	defer w.mu.Unlock()
	var expired int
	for id, entry := range w.items {
		if entry.item.Expired(now) {
			delete(w.items, id)
			expired++
		}
	}
	if expired > 0 {
		log.Printf("[WORKING] Swept %d expired items", expired)
	}
}

// Add inserts an item. When the store is at capacity it first evicts the
// lowest-ranked 10% (minimum one), least important and least recently
// touched first. Items without a TTL receive the configured default.
func (w *WorkingMemory) Add(ctx context.Context, item *Item) (string, error) {
	it := item.Clone()
	now := time.Now()
	if it.ID == "" {
		it.ID = uuid.New().String()
	}
	if it.CreatedAt.IsZero() {
		it.CreatedAt = now
		it.LastAccessed = now
	}
	if it.TTL <= 0 {
		it.TTL = w.cfg.WorkingMemoryTTL
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.items) >= w.cfg.WorkingMemoryCapacity {
		w.evictLocked()
	}
	w.nextSeq++
	w.items[it.ID] = &workingEntry{item: it, seq: w.nextSeq}
	return it.ID, nil
}

// evictLocked removes max(1, n/10) items ranked by importance ascending,
// then last access ascending. Caller holds the lock.
func (w *WorkingMemory) evictLocked() {
	entries := make([]*workingEntry, 0, len(w.items))
	for _, e := range w.items {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].item, entries[j].item
		if a.Importance != b.Importance {
			return a.Importance < b.Importance
		}
		if !a.LastAccessed.Equal(b.LastAccessed) {
			return a.LastAccessed.Before(b.LastAccessed)
		}
		return entries[i].seq < entries[j].seq
	})

	remove := len(entries) / 10
	if remove < 1 {
		remove = 1
	}
	for _, e := range entries[:remove] {
		delete(w.items, e.item.ID)
	}
	log.Printf("[WORKING] Capacity reached, evicted %d items", remove)
}

// Get returns a clone of the item and bumps its access bookkeeping.
// Expired items are removed eagerly and reported as ErrNotFound even if
// the sweep has not run yet.
func (w *WorkingMemory) Get(ctx context.Context, id string) (*Item, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	entry, ok := w.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	now := time.Now()
	if entry.item.Expired(now) {
		delete(w.items, id)
		return nil, ErrNotFound
	}
	entry.item.touch(now)
	return entry.item.Clone(), nil
}

// Search ranks items by token-set Jaccard similarity between the
// lowercased query and item content. Zero-scoring items are excluded,
// filters apply before scoring, and ties break on insertion order. Every
// returned item has its access bookkeeping bumped.
func (w *WorkingMemory) Search(ctx context.Context, query string, topK int, filters map[string]any) ([]*Item, error) {
	queryTokens := tokenSet(query)

	type scored struct {
		entry *workingEntry
		score float64
	}

	now := time.Now()
	w.mu.Lock()
	defer w.mu.Unlock()

	var results []scored
	for _, entry := range w.items {
		if entry.item.Expired(now) {
			continue
		}
		if !matchesFilters(entry.item.Metadata, filters) {
			continue
		}
		score := jaccard(queryTokens, tokenSet(entry.item.Content))
		if score > 0 {
			results = append(results, scored{entry: entry, score: score})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].entry.seq < results[j].entry.seq
	})
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}

	items := make([]*Item, len(results))
	for i, r := range results {
		r.entry.item.touch(now)
		items[i] = r.entry.item.Clone()
	}
	return items, nil
}

// Update applies a patch. Reports whether the item existed.
func (w *WorkingMemory) Update(ctx context.Context, id string, patch Patch) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	entry, ok := w.items[id]
	if !ok {
		return false, nil
	}
	entry.item.apply(patch)
	return true, nil
}

// Delete removes an item. Reports whether it existed.
func (w *WorkingMemory) Delete(ctx context.Context, id string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.items[id]; !ok {
		return false, nil
	}
	delete(w.items, id)
	return true, nil
}

// Clear removes all items.
func (w *WorkingMemory) Clear(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.items = make(map[string]*workingEntry)
	return nil
}

// ListAll returns clones of every live item, a stable snapshot for
// consolidation.
func (w *WorkingMemory) ListAll(ctx context.Context) ([]*Item, error) {
	now := time.Now()
	w.mu.Lock()
	defer w.mu.Unlock()
	items := make([]*Item, 0, len(w.items))
	for _, entry := range w.items {
		if entry.item.Expired(now) {
			continue
		}
		items = append(items, entry.item.Clone())
	}
	return items, nil
}

// Size returns the current item count, including not-yet-swept expired
// items.
func (w *WorkingMemory) Size() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.items)
}

// Close cancels the sweep, blocks until it acknowledges, then releases
// storage. Idempotent.
func (w *WorkingMemory) Close() error {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		started := w.initialized
		w.mu.Unlock()
		close(w.stop)
		if started {
			<-w.done
		}
		w.mu.Lock()
		w.items = make(map[string]*workingEntry)
		w.mu.Unlock()
	})
	return nil
}

// tokenSet splits text into a set of lowercased whitespace tokens.
func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		set[tok] = struct{}{}
	}
	return set
}

// jaccard computes |a∩b| / |a∪b| over token sets.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	var intersection int
	for tok := range a {
		if _, ok := b[tok]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// matchesFilters reports whether metadata satisfies every equality filter.
func matchesFilters(metadata, filters map[string]any) bool {
	for key, want := range filters {
		got, ok := metadata[key]
		if !ok || !equalValue(got, want) {
			return false
		}
	}
	return true
}

// equalValue compares metadata values, treating all numeric types as
// equivalent since JSON round-trips decode numbers as float64.
func equalValue(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	if aok != bok {
		return false
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
