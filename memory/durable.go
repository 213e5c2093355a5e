package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mnemoslabs/mnemo-go/memory/backend"
)

// durable is the common core of the episodic, semantic and perceptual
// tiers: structured fields live in a relational backend, vectors (when an
// embedding is present) in a vector index. A vector write failing after a
// successful relational write degrades search to keyword matching; it is
// logged as a warning, never rolled back, because the structured copy
// remains authoritative.
type durable struct {
	tier      Tier
	namespace string
	label     string
	cfg       Config
	rel       backend.Relational
	vec       backend.VectorIndex
	embed     Embedder
}

func newDurable(tier Tier, namespace, label string, cfg Config, rel backend.Relational, vec backend.VectorIndex, embed Embedder) durable {
	return durable{
		tier:      tier,
		namespace: namespace,
		label:     label,
		cfg:       cfg,
		rel:       rel,
		vec:       vec,
		embed:     embed,
	}
}

// Initialize prepares both backends. A failing relational backend is fatal;
// a failing vector index only disables vector-ranked search.
func (d *durable) Initialize(ctx context.Context) error {
	if err := d.rel.Init(ctx, d.namespace); err != nil {
		return fmt.Errorf("%w: init %s: %v", ErrBackendUnavailable, d.namespace, err)
	}
	if d.vec != nil {
		if err := d.vec.Init(ctx, d.namespace, d.cfg.EmbeddingDim); err != nil {
			log.Printf("[%s] Vector index unavailable, searches fall back to keyword: %v", d.label, err)
			d.vec = nil
		}
	}
	log.Printf("[%s] Initialized", d.label)
	return nil
}

// encode serializes an item to a document. A binary payload under the
// raw_data metadata key is stored separately from the structured fields.
func encodeItem(item *Item) (backend.Document, error) {
	it := item.Clone()
	var raw []byte
	if v, ok := it.Metadata[MetaRawData]; ok {
		if b, ok := v.([]byte); ok {
			raw = b
			delete(it.Metadata, MetaRawData)
		}
	}
	data, err := json.Marshal(it)
	if err != nil {
		return backend.Document{}, fmt.Errorf("marshal item: %w", err)
	}
	return backend.Document{ID: it.ID, Content: it.Content, Data: data, Raw: raw}, nil
}

// decode deserializes a document back to an item, reattaching any binary
// payload.
func decodeItem(doc backend.Document) (*Item, error) {
	var item Item
	if err := json.Unmarshal(doc.Data, &item); err != nil {
		return nil, fmt.Errorf("unmarshal item %s: %w", doc.ID, err)
	}
	if item.Metadata == nil {
		item.Metadata = make(map[string]any)
	}
	if doc.Raw != nil {
		item.Metadata[MetaRawData] = doc.Raw
	}
	return &item, nil
}

// Add upserts an item: structured fields to the relational backend and,
// when an embedding is present, a point to the vector index. Retrying with
// the same ID overwrites rather than duplicates.
func (d *durable) Add(ctx context.Context, item *Item) (string, error) {
	it := item.Clone()
	if it.ID == "" {
		it.ID = uuid.New().String()
	}
	now := time.Now()
	if it.CreatedAt.IsZero() {
		it.CreatedAt = now
		it.LastAccessed = now
	}
	it.Tier = d.tier

	doc, err := encodeItem(it)
	if err != nil {
		return "", err
	}
	if err := d.rel.Put(ctx, d.namespace, doc); err != nil {
		return "", fmt.Errorf("%w: write %s: %v", ErrBackendUnavailable, d.namespace, err)
	}

	if d.vec != nil && len(it.Embedding) > 0 {
		if err := d.vec.Upsert(ctx, d.namespace, it.ID, it.Embedding, vectorPayload(it)); err != nil {
			log.Printf("[%s] Vector write for %s failed, search degrades to keyword: %v", d.label, it.ID, err)
		}
	}
	return it.ID, nil
}

// vectorPayload flattens filterable fields for the vector index's where
// clauses.
func vectorPayload(item *Item) map[string]string {
	payload := map[string]string{
		"content": item.Content,
		"tier":    string(item.Tier),
	}
	for k, v := range item.Metadata {
		if k == MetaRawData {
			continue
		}
		payload[k] = fmt.Sprint(v)
	}
	return payload
}

// Get retrieves an item and persists its bumped access bookkeeping.
func (d *durable) Get(ctx context.Context, id string) (*Item, error) {
	doc, err := d.rel.Get(ctx, d.namespace, id)
	if err == backend.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrBackendUnavailable, d.namespace, err)
	}
	item, err := decodeItem(doc)
	if err != nil {
		return nil, err
	}
	if item.Expired(time.Now()) {
		// Lazy TTL enforcement: durable tiers expire on read.
		if _, err := d.rel.Delete(ctx, d.namespace, id); err != nil {
			log.Printf("[%s] Removing expired item %s failed: %v", d.label, id, err)
		}
		return nil, ErrNotFound
	}
	d.touchAndPersist(ctx, item)
	return item, nil
}

// touchAndPersist bumps access bookkeeping and writes it back best-effort.
func (d *durable) touchAndPersist(ctx context.Context, item *Item) {
	item.touch(time.Now())
	doc, err := encodeItem(item)
	if err == nil {
		err = d.rel.Put(ctx, d.namespace, doc)
	}
	if err != nil {
		log.Printf("[%s] Access bookkeeping write for %s failed: %v", d.label, item.ID, err)
	}
}

// Search uses vector ranking when an embedder and index are available and
// falls back to case-insensitive keyword matching otherwise. A vector
// search failure degrades to the keyword path rather than failing the
// call.
func (d *durable) Search(ctx context.Context, query string, topK int, filters map[string]any) ([]*Item, error) {
	if topK <= 0 {
		topK = d.cfg.TopK
	}
	if d.vec != nil && d.embed != nil && query != "" {
		items, err := d.vectorSearch(ctx, query, topK, filters)
		if err == nil {
			return items, nil
		}
		log.Printf("[%s] Vector search failed, falling back to keyword: %v", d.label, err)
	}
	return d.keywordSearch(ctx, query, topK, filters)
}

// vectorSearch embeds the query and ranks by vector similarity, dropping
// hits below the configured threshold.
func (d *durable) vectorSearch(ctx context.Context, query string, topK int, filters map[string]any) ([]*Item, error) {
	qvec, err := d.embed.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	where := make(map[string]string, len(filters))
	for k, v := range filters {
		where[k] = fmt.Sprint(v)
	}
	matches, err := d.vec.Query(ctx, d.namespace, qvec, topK, where)
	if err != nil {
		return nil, fmt.Errorf("query vector index: %w", err)
	}

	var items []*Item
	for _, m := range matches {
		if float64(m.Similarity) < d.cfg.SimilarityThreshold {
			continue
		}
		doc, err := d.rel.Get(ctx, d.namespace, m.ID)
		if err != nil {
			// The structured copy is authoritative; a point without a
			// matching document is skipped.
			log.Printf("[%s] Vector hit %s missing from relational store: %v", d.label, m.ID, err)
			continue
		}
		item, err := decodeItem(doc)
		if err != nil {
			log.Printf("[%s] Skipping undecodable item %s: %v", d.label, m.ID, err)
			continue
		}
		if item.Expired(time.Now()) {
			continue
		}
		d.touchAndPersist(ctx, item)
		items = append(items, item)
	}
	log.Printf("[%s] Vector search returned %d items", d.label, len(items))
	return items, nil
}

// keywordSearch is the fallback path: case-insensitive substring match on
// content, ordered by importance descending then creation time descending.
// An empty query matches everything (used by filter-only searches).
func (d *durable) keywordSearch(ctx context.Context, query string, topK int, filters map[string]any) ([]*Item, error) {
	docs, err := d.rel.List(ctx, d.namespace)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", ErrBackendUnavailable, d.namespace, err)
	}

	queryLower := strings.ToLower(query)
	now := time.Now()
	var items []*Item
	for _, doc := range docs {
		item, err := decodeItem(doc)
		if err != nil {
			log.Printf("[%s] Skipping undecodable item %s: %v", d.label, doc.ID, err)
			continue
		}
		if item.Expired(now) {
			continue
		}
		if queryLower != "" && !strings.Contains(strings.ToLower(item.Content), queryLower) {
			continue
		}
		if !matchesFilters(item.Metadata, filters) {
			continue
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Importance != items[j].Importance {
			return items[i].Importance > items[j].Importance
		}
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
	if len(items) > topK {
		items = items[:topK]
	}
	for _, item := range items {
		d.touchAndPersist(ctx, item)
	}
	log.Printf("[%s] Keyword search returned %d items", d.label, len(items))
	return items, nil
}

// Update applies a patch and re-upserts. Reports whether the item existed.
func (d *durable) Update(ctx context.Context, id string, patch Patch) (bool, error) {
	doc, err := d.rel.Get(ctx, d.namespace, id)
	if err == backend.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: read %s: %v", ErrBackendUnavailable, d.namespace, err)
	}
	item, err := decodeItem(doc)
	if err != nil {
		return false, err
	}
	item.apply(patch)

	updated, err := encodeItem(item)
	if err != nil {
		return false, err
	}
	if err := d.rel.Put(ctx, d.namespace, updated); err != nil {
		return false, fmt.Errorf("%w: write %s: %v", ErrBackendUnavailable, d.namespace, err)
	}
	if d.vec != nil && len(item.Embedding) > 0 {
		if err := d.vec.Upsert(ctx, d.namespace, item.ID, item.Embedding, vectorPayload(item)); err != nil {
			log.Printf("[%s] Vector write for %s failed, search degrades to keyword: %v", d.label, item.ID, err)
		}
	}
	return true, nil
}

// Delete removes an item from both backends. Reports whether it existed.
func (d *durable) Delete(ctx context.Context, id string) (bool, error) {
	existed, err := d.rel.Delete(ctx, d.namespace, id)
	if err != nil {
		return false, fmt.Errorf("%w: delete %s: %v", ErrBackendUnavailable, d.namespace, err)
	}
	if d.vec != nil {
		if err := d.vec.Delete(ctx, d.namespace, id); err != nil {
			log.Printf("[%s] Vector delete for %s failed: %v", d.label, id, err)
		}
	}
	return existed, nil
}

// Clear removes every item in the tier.
func (d *durable) Clear(ctx context.Context) error {
	if err := d.rel.Clear(ctx, d.namespace); err != nil {
		return fmt.Errorf("%w: clear %s: %v", ErrBackendUnavailable, d.namespace, err)
	}
	if d.vec != nil {
		if err := d.vec.Clear(ctx, d.namespace); err != nil {
			log.Printf("[%s] Vector clear failed: %v", d.label, err)
		}
	}
	return nil
}

// Close releases nothing: the backends are owned and closed by the
// manager, which may share them across tiers under distinct namespaces.
func (d *durable) Close() error {
	return nil
}

// listAll returns every item in the tier, undecodable records skipped.
func (d *durable) listAll(ctx context.Context) ([]*Item, error) {
	docs, err := d.rel.List(ctx, d.namespace)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", ErrBackendUnavailable, d.namespace, err)
	}
	now := time.Now()
	items := make([]*Item, 0, len(docs))
	for _, doc := range docs {
		item, err := decodeItem(doc)
		if err != nil {
			log.Printf("[%s] Skipping undecodable item %s: %v", d.label, doc.ID, err)
			continue
		}
		if item.Expired(now) {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}
