// Package inmem provides in-process implementations of the backend
// capability interfaces. They need no external services, which keeps the
// memory system operable out of the box and makes them the default
// backends for tests and local development.
package inmem

import (
	"context"
	"sync"

	"github.com/mnemoslabs/mnemo-go/memory/backend"
)

// Relational is an in-process document store keyed by namespace and ID.
type Relational struct {
	mu   sync.RWMutex
	docs map[string]map[string]backend.Document
}

// NewRelational creates an empty in-process relational store.
func NewRelational() *Relational {
	return &Relational{docs: make(map[string]map[string]backend.Document)}
}

func (r *Relational) Init(ctx context.Context, namespace string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[namespace]; !ok {
		r.docs[namespace] = make(map[string]backend.Document)
	}
	return nil
}

func (r *Relational) Put(ctx context.Context, namespace string, doc backend.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ns, ok := r.docs[namespace]
	if !ok {
		ns = make(map[string]backend.Document)
		r.docs[namespace] = ns
	}
	ns[doc.ID] = doc
	return nil
}

func (r *Relational) Get(ctx context.Context, namespace, id string) (backend.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[namespace][id]
	if !ok {
		return backend.Document{}, backend.ErrNotFound
	}
	return doc, nil
}

func (r *Relational) Delete(ctx context.Context, namespace, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[namespace][id]; !ok {
		return false, nil
	}
	delete(r.docs[namespace], id)
	return true, nil
}

func (r *Relational) List(ctx context.Context, namespace string) ([]backend.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	docs := make([]backend.Document, 0, len(r.docs[namespace]))
	for _, doc := range r.docs[namespace] {
		docs = append(docs, doc)
	}
	return docs, nil
}

func (r *Relational) Clear(ctx context.Context, namespace string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[namespace] = make(map[string]backend.Document)
	return nil
}

func (r *Relational) Close() error {
	return nil
}

// Graph is an in-process property graph with typed directed edges.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]map[string]map[string]any // namespace -> id -> properties
	edges map[string][]backend.Edge            // namespace -> edges
}

// NewGraph creates an empty in-process graph store.
func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[string]map[string]map[string]any),
		edges: make(map[string][]backend.Edge),
	}
}

func (g *Graph) UpsertNode(ctx context.Context, namespace, id string, properties map[string]any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	ns, ok := g.nodes[namespace]
	if !ok {
		ns = make(map[string]map[string]any)
		g.nodes[namespace] = ns
	}
	props := make(map[string]any, len(properties))
	for k, v := range properties {
		props[k] = v
	}
	ns[id] = props
	return nil
}

func (g *Graph) HasNode(ctx context.Context, namespace, id string) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[namespace][id]
	return ok, nil
}

func (g *Graph) AddEdge(ctx context.Context, namespace string, edge backend.Edge) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.nodes[namespace][edge.SourceID]; !ok {
		return backend.ErrNotFound
	}
	if _, ok := g.nodes[namespace][edge.TargetID]; !ok {
		return backend.ErrNotFound
	}
	// Replace an existing edge with the same endpoints and type.
	for i, e := range g.edges[namespace] {
		if e.SourceID == edge.SourceID && e.TargetID == edge.TargetID && e.Type == edge.Type {
			g.edges[namespace][i] = edge
			return nil
		}
	}
	g.edges[namespace] = append(g.edges[namespace], edge)
	return nil
}

func (g *Graph) Edges(ctx context.Context, namespace, id, relType string, dir backend.Direction) ([]backend.Edge, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []backend.Edge
	for _, e := range g.edges[namespace] {
		if relType != "" && e.Type != relType {
			continue
		}
		switch dir {
		case backend.DirectionOut:
			if e.SourceID != id {
				continue
			}
		case backend.DirectionIn:
			if e.TargetID != id {
				continue
			}
		default:
			if e.SourceID != id && e.TargetID != id {
				continue
			}
		}
		out = append(out, e)
	}
	return out, nil
}

func (g *Graph) DeleteNode(ctx context.Context, namespace, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.nodes[namespace], id)
	kept := g.edges[namespace][:0]
	for _, e := range g.edges[namespace] {
		if e.SourceID != id && e.TargetID != id {
			kept = append(kept, e)
		}
	}
	g.edges[namespace] = kept
	return nil
}

func (g *Graph) Clear(ctx context.Context, namespace string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.nodes, namespace)
	delete(g.edges, namespace)
	return nil
}

func (g *Graph) Close() error {
	return nil
}
