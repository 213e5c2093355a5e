// Package chromem adapts chromem-go, a pure Go embedded vector database,
// to the backend.VectorIndex capability interface.
package chromem

import (
	"context"
	"fmt"
	"log"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/mnemoslabs/mnemo-go/memory/backend"
)

// Index wraps chromem-go collections, one per namespace.
type Index struct {
	db          *chromem.DB
	collections map[string]*chromem.Collection
	mu          sync.RWMutex
}

// New creates an in-memory chromem index. If persistPath is non-empty the
// index is persisted to disk at that path and reloaded on restart.
func New(persistPath string) (*Index, error) {
	var db *chromem.DB
	if persistPath != "" {
		var err error
		db, err = chromem.NewPersistentDB(persistPath, false)
		if err != nil {
			return nil, fmt.Errorf("open persistent db: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	return &Index{
		db:          db,
		collections: make(map[string]*chromem.Collection),
	}, nil
}

// Init creates the collection for a namespace if it does not exist.
// The dimensionality is fixed by the first vector written; chromem does not
// need it up front.
func (x *Index) Init(ctx context.Context, namespace string, dimensions int) error {
	_, err := x.collection(namespace)
	return err
}

func (x *Index) collection(namespace string) (*chromem.Collection, error) {
	x.mu.RLock()
	col, ok := x.collections[namespace]
	x.mu.RUnlock()
	if ok {
		return col, nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	// Double-check after acquiring write lock.
	if col, ok := x.collections[namespace]; ok {
		return col, nil
	}

	// We supply embeddings ourselves, so no embedding func and the default
	// cosine similarity.
	col, err := x.db.GetOrCreateCollection(namespace, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection %q: %w", namespace, err)
	}
	x.collections[namespace] = col
	return col, nil
}

func (x *Index) Upsert(ctx context.Context, namespace, id string, vector []float32, payload map[string]string) error {
	col, err := x.collection(namespace)
	if err != nil {
		return err
	}

	doc := chromem.Document{
		ID:        id,
		Content:   payload["content"],
		Embedding: vector,
		Metadata:  payload,
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

func (x *Index) Query(ctx context.Context, namespace string, vector []float32, topK int, where map[string]string) ([]backend.Match, error) {
	col, err := x.collection(namespace)
	if err != nil {
		return nil, err
	}

	// chromem rejects nResults larger than the collection size.
	if n := col.Count(); topK > n {
		topK = n
	}
	if topK <= 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, vector, topK, where, nil)
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}

	matches := make([]backend.Match, 0, len(results))
	for _, res := range results {
		matches = append(matches, backend.Match{ID: res.ID, Similarity: res.Similarity})
	}
	return matches, nil
}

func (x *Index) Delete(ctx context.Context, namespace string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	col, err := x.collection(namespace)
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("delete points: %w", err)
	}
	return nil
}

func (x *Index) Clear(ctx context.Context, namespace string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.collections[namespace]; !ok {
		return nil
	}
	if err := x.db.DeleteCollection(namespace); err != nil {
		return fmt.Errorf("delete collection %q: %w", namespace, err)
	}
	delete(x.collections, namespace)
	log.Printf("[CHROMEM] Cleared collection %q", namespace)
	return nil
}

// Close releases nothing; chromem keeps everything in process memory (or
// flushed to disk already, for persistent databases).
func (x *Index) Close() error {
	return nil
}
