package memory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/mnemoslabs/mnemo-go/memory/backend"
	"github.com/mnemoslabs/mnemo-go/memory/backend/chromem"
	"github.com/mnemoslabs/mnemo-go/memory/backend/inmem"
	redisbackend "github.com/mnemoslabs/mnemo-go/memory/backend/redis"
	"github.com/mnemoslabs/mnemo-go/memory/embedder"
)

// consolidationThreshold is the minimum importance at which a working item
// is promoted to episodic memory during consolidation.
const consolidationThreshold = 0.7

type managerState int

const (
	stateUninitialized managerState = iota
	stateInitializing
	stateReady
	stateClosed
)

// Manager is the single entry point to the memory system. It owns the
// enabled tiers and their shared backends, routes writes to the requested
// tier, fans reads out across tiers, and runs consolidation.
//
// Operations other than Initialize and Close require the ready state and
// fail fast with ErrNotReady or ErrClosed otherwise. Every operation is
// safe for concurrent use.
type Manager struct {
	cfg Config

	mu     sync.Mutex
	state  managerState
	tiers  map[Tier]Store
	embed  Embedder
	closed []io.Closer // backends the manager built, closed once on Close

	// injected overrides, nil means build the default
	embedOverride Embedder
	relOverride   backend.Relational
	vecOverride   backend.VectorIndex
	graphOverride backend.Graph

	closeOnce sync.Once
	closeErr  error
}

// Option customizes manager construction, mainly for injecting backends in
// tests and embedded setups.
type Option func(*Manager)

// WithEmbedder injects an embedding provider, bypassing resolution.
func WithEmbedder(e Embedder) Option {
	return func(m *Manager) { m.embedOverride = e }
}

// WithRelational injects the durable document backend.
func WithRelational(r backend.Relational) Option {
	return func(m *Manager) { m.relOverride = r }
}

// WithVectorIndex injects the vector search backend.
func WithVectorIndex(v backend.VectorIndex) Option {
	return func(m *Manager) { m.vecOverride = v }
}

// WithGraph injects the relation graph backend.
func WithGraph(g backend.Graph) Option {
	return func(m *Manager) { m.graphOverride = g }
}

// NewManager creates a manager in the uninitialized state. No backends are
// touched until Initialize.
func NewManager(cfg Config, opts ...Option) *Manager {
	m := &Manager{
		cfg:   cfg.withDefaults(),
		tiers: make(map[Tier]Store),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Initialize connects backends and initializes the requested tiers
// concurrently. With no tiers given it enables working and episodic
// memory. Calling it again when ready is a no-op; a failed initialization
// returns the manager to uninitialized so it can be retried.
func (m *Manager) Initialize(ctx context.Context, tiers ...Tier) error {
	m.mu.Lock()
	switch m.state {
	case stateReady:
		m.mu.Unlock()
		return nil
	case stateClosed:
		m.mu.Unlock()
		return ErrClosed
	case stateInitializing:
		m.mu.Unlock()
		return fmt.Errorf("%w: initialization in progress", ErrNotReady)
	}
	m.state = stateInitializing
	m.mu.Unlock()

	if len(tiers) == 0 {
		tiers = []Tier{TierWorking, TierEpisodic}
	}
	for _, tier := range tiers {
		if !tier.Valid() {
			m.setState(stateUninitialized)
			return fmt.Errorf("%w: %q", ErrUnknownTier, tier)
		}
	}

	if err := m.buildTiers(ctx, tiers); err != nil {
		m.setState(stateUninitialized)
		return err
	}

	// Tier initialization is independent per tier; run it concurrently.
	var wg sync.WaitGroup
	errs := make([]error, len(tiers))
	for i, tier := range tiers {
		wg.Add(1)
		go func(i int, tier Tier) {
			defer wg.Done()
			if err := m.tiers[tier].Initialize(ctx); err != nil {
				errs[i] = fmt.Errorf("init %s tier: %w", tier, err)
			}
		}(i, tier)
	}
	wg.Wait()
	if err := errors.Join(errs...); err != nil {
		m.setState(stateUninitialized)
		return err
	}

	m.setState(stateReady)
	log.Printf("[MANAGER] Ready with %d tiers", len(tiers))
	return nil
}

func (m *Manager) setState(s managerState) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// buildTiers constructs backends (or takes the injected overrides) and the
// requested tier stores.
func (m *Manager) buildTiers(ctx context.Context, tiers []Tier) error {
	needDurable := false
	needGraph := false
	for _, tier := range tiers {
		if tier != TierWorking {
			needDurable = true
		}
		if tier == TierSemantic {
			needGraph = true
		}
	}

	var (
		rel   backend.Relational
		vec   backend.VectorIndex
		graph backend.Graph
	)
	if needDurable {
		rel = m.relOverride
		if rel == nil {
			if m.cfg.RedisAddr != "" {
				r, err := redisbackend.New(ctx, redisbackend.Options{
					Addr:     m.cfg.RedisAddr,
					Password: m.cfg.RedisPassword,
					DB:       m.cfg.RedisDB,
				})
				if err != nil {
					return fmt.Errorf("%w: redis: %v", ErrBackendUnavailable, err)
				}
				rel = r
			} else {
				rel = inmem.NewRelational()
			}
			m.closed = append(m.closed, rel)
		}

		vec = m.vecOverride
		if vec == nil {
			v, err := chromem.New(m.cfg.VectorPersistPath)
			if err != nil {
				log.Printf("[MANAGER] Vector index unavailable, durable search falls back to keyword: %v", err)
			} else {
				vec = v
				m.closed = append(m.closed, vec)
			}
		}

		m.embed = m.embedOverride
		if m.embed == nil {
			provider := embedder.Resolve(embedder.ResolveConfig{
				Provider:   m.cfg.EmbeddingProvider,
				Model:      m.cfg.EmbeddingModel,
				Dimensions: m.cfg.EmbeddingDim,
			})
			cache, err := embedder.NewCache(provider, m.cfg.EmbeddingCacheEntries)
			if err != nil {
				return fmt.Errorf("embedding cache: %w", err)
			}
			m.embed = cache
			m.closed = append(m.closed, cache)
		}
	}
	if needGraph {
		graph = m.graphOverride
		if graph == nil {
			graph = inmem.NewGraph()
			m.closed = append(m.closed, graph)
		}
	}

	for _, tier := range tiers {
		switch tier {
		case TierWorking:
			m.tiers[tier] = NewWorkingMemory(m.cfg)
		case TierEpisodic:
			m.tiers[tier] = NewEpisodicMemory(m.cfg, rel, vec, m.embed)
		case TierSemantic:
			m.tiers[tier] = NewSemanticMemory(m.cfg, rel, vec, graph, m.embed)
		case TierPerceptual:
			m.tiers[tier] = NewPerceptualMemory(m.cfg, rel, vec, m.embed)
		}
	}
	return nil
}

// tier returns the store for a tier after a readiness check.
func (m *Manager) tier(t Tier) (Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.readyLocked(); err != nil {
		return nil, err
	}
	store, ok := m.tiers[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTier, t)
	}
	return store, nil
}

func (m *Manager) readyLocked() error {
	switch m.state {
	case stateClosed:
		return ErrClosed
	case stateReady:
		return nil
	default:
		return ErrNotReady
	}
}

// enabledTiers snapshots the active tier set under the lock.
func (m *Manager) enabledTiers() (map[Tier]Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.readyLocked(); err != nil {
		return nil, err
	}
	tiers := make(map[Tier]Store, len(m.tiers))
	for t, s := range m.tiers {
		tiers[t] = s
	}
	return tiers, nil
}

// StoreOption customizes a Store call.
type StoreOption func(*Item) error

// WithMetadata attaches metadata fields to the stored item.
func WithMetadata(metadata map[string]any) StoreOption {
	return func(item *Item) error {
		for k, v := range metadata {
			item.Metadata[k] = v
		}
		return nil
	}
}

// WithImportance sets the item's importance, which must be in [0,1].
func WithImportance(importance float64) StoreOption {
	return func(item *Item) error {
		if importance < 0 || importance > 1 {
			return fmt.Errorf("%w: importance %v outside [0,1]", ErrInvalidArgument, importance)
		}
		item.Importance = importance
		return nil
	}
}

// WithTTL sets the item's time to live. Zero means no expiry in durable
// tiers; working items stored without a TTL receive the configured
// default.
func WithTTL(ttl time.Duration) StoreOption {
	return func(item *Item) error {
		if ttl < 0 {
			return fmt.Errorf("%w: negative ttl", ErrInvalidArgument)
		}
		item.TTL = ttl
		return nil
	}
}

// Store writes content to one tier and returns the new item's ID. Durable
// items are embedded before storage; an embedding failure degrades that
// item to keyword-only search instead of failing the write.
func (m *Manager) Store(ctx context.Context, content string, tier Tier, opts ...StoreOption) (string, error) {
	store, err := m.tier(tier)
	if err != nil {
		return "", err
	}

	item := NewItem(content, tier)
	for _, opt := range opts {
		if err := opt(item); err != nil {
			return "", err
		}
	}

	if m.embed != nil && content != "" {
		vec, err := m.embed.Embed(ctx, content)
		if err != nil {
			log.Printf("[MANAGER] Embedding failed, item %s searchable by keyword only: %v", item.ID, err)
		} else {
			item.Embedding = vec
		}
	}

	id, err := store.Add(ctx, item)
	if err != nil {
		return "", err
	}
	log.Printf("[MANAGER] Stored %s in %s", id, tier)
	return id, nil
}

// recallSettings collects the Recall options.
type recallSettings struct {
	tiers   []Tier
	topK    int
	filters map[string]any
}

// RecallOption customizes a Recall call.
type RecallOption func(*recallSettings)

// RecallTiers restricts recall to the given tiers. Default is every
// enabled tier.
func RecallTiers(tiers ...Tier) RecallOption {
	return func(s *recallSettings) { s.tiers = tiers }
}

// RecallTopK overrides the configured result count.
func RecallTopK(topK int) RecallOption {
	return func(s *recallSettings) { s.topK = topK }
}

// RecallFilters applies metadata equality constraints.
func RecallFilters(filters map[string]any) RecallOption {
	return func(s *recallSettings) { s.filters = filters }
}

// Recall searches tiers concurrently and merges the results, most
// important first, ties broken by recency of access. When every tier
// fails no results are returned; when only some fail, the surviving
// results are returned together with a non-nil error wrapping
// ErrBackendUnavailable, so a degraded answer is never mistaken for a
// complete one.
func (m *Manager) Recall(ctx context.Context, query string, opts ...RecallOption) ([]*Item, error) {
	enabled, err := m.enabledTiers()
	if err != nil {
		return nil, err
	}

	settings := recallSettings{topK: m.cfg.TopK}
	for _, opt := range opts {
		opt(&settings)
	}

	targets := make(map[Tier]Store)
	if len(settings.tiers) == 0 {
		targets = enabled
	} else {
		for _, t := range settings.tiers {
			store, ok := enabled[t]
			if !ok {
				return nil, fmt.Errorf("%w: %q", ErrUnknownTier, t)
			}
			targets[t] = store
		}
	}

	type result struct {
		tier  Tier
		items []*Item
		err   error
	}
	results := make(chan result, len(targets))
	var wg sync.WaitGroup
	for t, store := range targets {
		wg.Add(1)
		go func(t Tier, store Store) {
			defer wg.Done()
			items, err := store.Search(ctx, query, settings.topK, settings.filters)
			results <- result{tier: t, items: items, err: err}
		}(t, store)
	}
	wg.Wait()
	close(results)

	var merged []*Item
	var errs []error
	for r := range results {
		if r.err != nil {
			log.Printf("[MANAGER] Recall from %s failed: %v", r.tier, r.err)
			errs = append(errs, fmt.Errorf("%s: %w", r.tier, r.err))
			continue
		}
		merged = append(merged, r.items...)
	}
	var failure error
	if len(errs) > 0 {
		failure = fmt.Errorf("%w: %d of %d tiers failed: %v",
			ErrBackendUnavailable, len(errs), len(targets), errors.Join(errs...))
		if len(errs) == len(targets) {
			return nil, failure
		}
	}

	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Importance != merged[j].Importance {
			return merged[i].Importance > merged[j].Importance
		}
		if !merged[i].LastAccessed.Equal(merged[j].LastAccessed) {
			return merged[i].LastAccessed.After(merged[j].LastAccessed)
		}
		return merged[i].ID < merged[j].ID
	})
	if settings.topK > 0 && len(merged) > settings.topK {
		merged = merged[:settings.topK]
	}
	log.Printf("[MANAGER] Recall returned %d items from %d tiers", len(merged), len(targets))
	return merged, failure
}

// Get retrieves an item from a specific tier.
func (m *Manager) Get(ctx context.Context, tier Tier, id string) (*Item, error) {
	store, err := m.tier(tier)
	if err != nil {
		return nil, err
	}
	return store.Get(ctx, id)
}

// Update applies a partial patch to an item in a specific tier.
func (m *Manager) Update(ctx context.Context, tier Tier, id string, patch Patch) (bool, error) {
	if patch.Importance != nil && (*patch.Importance < 0 || *patch.Importance > 1) {
		return false, fmt.Errorf("%w: importance %v outside [0,1]", ErrInvalidArgument, *patch.Importance)
	}
	store, err := m.tier(tier)
	if err != nil {
		return false, err
	}
	return store.Update(ctx, id, patch)
}

// Forget removes an item from a specific tier. Reports whether it existed.
func (m *Manager) Forget(ctx context.Context, tier Tier, id string) (bool, error) {
	store, err := m.tier(tier)
	if err != nil {
		return false, err
	}
	return store.Delete(ctx, id)
}

// Clear empties a specific tier.
func (m *Manager) Clear(ctx context.Context, tier Tier) error {
	store, err := m.tier(tier)
	if err != nil {
		return err
	}
	return store.Clear(ctx)
}

// Consolidate promotes important working items to episodic memory. Items
// at or above the importance threshold are copied with their TTL cleared,
// then removed from working memory. Returns the number promoted. A no-op
// unless both the working and episodic tiers are enabled. Per-item
// failures are logged and skipped so one bad item never aborts the pass.
func (m *Manager) Consolidate(ctx context.Context) (int, error) {
	enabled, err := m.enabledTiers()
	if err != nil {
		return 0, err
	}
	workingStore, haveWorking := enabled[TierWorking]
	episodicStore, haveEpisodic := enabled[TierEpisodic]
	if !haveWorking || !haveEpisodic {
		log.Printf("[MANAGER] Consolidation skipped: needs both working and episodic tiers")
		return 0, nil
	}
	working := workingStore.(*WorkingMemory)

	items, err := working.ListAll(ctx)
	if err != nil {
		return 0, err
	}

	var promoted int
	for _, item := range items {
		if item.Importance < consolidationThreshold {
			continue
		}
		moved := item.Clone()
		moved.Tier = TierEpisodic
		moved.TTL = 0
		if m.embed != nil && moved.Content != "" && len(moved.Embedding) == 0 {
			if vec, err := m.embed.Embed(ctx, moved.Content); err == nil {
				moved.Embedding = vec
			}
		}
		if _, err := episodicStore.Add(ctx, moved); err != nil {
			log.Printf("[MANAGER] Consolidation of %s failed: %v", item.ID, err)
			continue
		}
		if _, err := working.Delete(ctx, item.ID); err != nil {
			log.Printf("[MANAGER] Consolidated %s but failed to remove it from working memory: %v", item.ID, err)
		}
		promoted++
	}
	log.Printf("[MANAGER] Consolidated %d items", promoted)
	return promoted, nil
}

// Working returns the working tier for direct access, nil if not enabled.
func (m *Manager) Working() *WorkingMemory {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, _ := m.tiers[TierWorking].(*WorkingMemory)
	return w
}

// Episodic returns the episodic tier for direct access, nil if not
// enabled.
func (m *Manager) Episodic() *EpisodicMemory {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, _ := m.tiers[TierEpisodic].(*EpisodicMemory)
	return e
}

// Semantic returns the semantic tier for direct access, nil if not
// enabled.
func (m *Manager) Semantic() *SemanticMemory {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, _ := m.tiers[TierSemantic].(*SemanticMemory)
	return s
}

// Perceptual returns the perceptual tier for direct access, nil if not
// enabled.
func (m *Manager) Perceptual() *PerceptualMemory {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, _ := m.tiers[TierPerceptual].(*PerceptualMemory)
	return p
}

// Close shuts down the tiers concurrently, then the backends the manager
// built. Idempotent; later operations fail with ErrClosed.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.state = stateClosed
		tiers := make([]Store, 0, len(m.tiers))
		for _, s := range m.tiers {
			tiers = append(tiers, s)
		}
		closers := m.closed
		m.mu.Unlock()

		errs := make([]error, len(tiers))
		var wg sync.WaitGroup
		for i, s := range tiers {
			wg.Add(1)
			go func(i int, s Store) {
				defer wg.Done()
				errs[i] = s.Close()
			}(i, s)
		}
		wg.Wait()

		for _, c := range closers {
			errs = append(errs, c.Close())
		}
		m.closeErr = errors.Join(errs...)
		log.Printf("[MANAGER] Closed")
	})
	return m.closeErr
}
