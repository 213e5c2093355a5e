package memory

import (
	"context"
	"fmt"
	"log"

	"github.com/mnemoslabs/mnemo-go/memory/backend"
)

// SemanticMemory is the durable knowledge tier. On top of the shared
// document and vector storage it maintains a graph of typed relations
// between items, used for associative traversal.
type SemanticMemory struct {
	durable
	graph backend.Graph
}

// Relation is one typed edge between two stored items, endpoints resolved.
type Relation struct {
	Source *Item
	Type   string
	Target *Item
}

// NewSemanticMemory creates the semantic tier over the given backends.
func NewSemanticMemory(cfg Config, rel backend.Relational, vec backend.VectorIndex, graph backend.Graph, embed Embedder) *SemanticMemory {
	return &SemanticMemory{
		durable: newDurable(TierSemantic, "semantic_memory", "SEMANTIC", cfg, rel, vec, embed),
		graph:   graph,
	}
}

// Add stores the item and registers it as a graph node so relations can
// attach to it.
func (s *SemanticMemory) Add(ctx context.Context, item *Item) (string, error) {
	id, err := s.durable.Add(ctx, item)
	if err != nil {
		return "", err
	}
	if err := s.graph.UpsertNode(ctx, s.namespace, id, map[string]any{"content": item.Content}); err != nil {
		log.Printf("[SEMANTIC] Graph node write for %s failed: %v", id, err)
	}
	return id, nil
}

// AddRelation records a typed, directed edge between two stored items.
// Both endpoints must exist; a missing one fails with ErrInvalidRelation
// and writes nothing. Re-adding the same (source, target, type) replaces
// the edge's properties instead of duplicating it.
func (s *SemanticMemory) AddRelation(ctx context.Context, sourceID, targetID, relType string, properties map[string]any) error {
	for _, id := range []string{sourceID, targetID} {
		if _, err := s.rel.Get(ctx, s.namespace, id); err != nil {
			if err == backend.ErrNotFound {
				return fmt.Errorf("%w: %s", ErrInvalidRelation, id)
			}
			return fmt.Errorf("%w: read %s: %v", ErrBackendUnavailable, s.namespace, err)
		}
		ok, err := s.graph.HasNode(ctx, s.namespace, id)
		if err != nil {
			return fmt.Errorf("%w: graph read: %v", ErrBackendUnavailable, err)
		}
		if !ok {
			if err := s.graph.UpsertNode(ctx, s.namespace, id, nil); err != nil {
				return fmt.Errorf("%w: graph write: %v", ErrBackendUnavailable, err)
			}
		}
	}
	edge := backend.Edge{SourceID: sourceID, TargetID: targetID, Type: relType, Properties: properties}
	if err := s.graph.AddEdge(ctx, s.namespace, edge); err != nil {
		return fmt.Errorf("%w: graph write: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// GetRelated returns the items reachable from id within depth hops,
// following edges of relType (empty matches any type) in the given
// direction. The starting item itself is not included.
func (s *SemanticMemory) GetRelated(ctx context.Context, id, relType string, dir backend.Direction, depth int) ([]*Item, error) {
	if depth < 1 {
		depth = 1
	}
	if _, err := s.rel.Get(ctx, s.namespace, id); err != nil {
		if err == backend.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: read %s: %v", ErrBackendUnavailable, s.namespace, err)
	}

	visited := map[string]bool{id: true}
	frontier := []string{id}
	var relatedIDs []string
	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		var next []string
		for _, nodeID := range frontier {
			edges, err := s.graph.Edges(ctx, s.namespace, nodeID, relType, dir)
			if err != nil {
				return nil, fmt.Errorf("%w: graph read: %v", ErrBackendUnavailable, err)
			}
			for _, e := range edges {
				neighbor := e.TargetID
				if neighbor == nodeID {
					neighbor = e.SourceID
				}
				if visited[neighbor] {
					continue
				}
				visited[neighbor] = true
				relatedIDs = append(relatedIDs, neighbor)
				next = append(next, neighbor)
			}
		}
		frontier = next
	}

	items := make([]*Item, 0, len(relatedIDs))
	for _, rid := range relatedIDs {
		doc, err := s.rel.Get(ctx, s.namespace, rid)
		if err != nil {
			// A node without a stored item means the item was deleted out
			// of band; skip it.
			log.Printf("[SEMANTIC] Related node %s missing from store: %v", rid, err)
			continue
		}
		item, err := decodeItem(doc)
		if err != nil {
			log.Printf("[SEMANTIC] Skipping undecodable item %s: %v", rid, err)
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// Relations returns id's direct edges with both endpoints resolved.
func (s *SemanticMemory) Relations(ctx context.Context, id string, dir backend.Direction) ([]Relation, error) {
	edges, err := s.graph.Edges(ctx, s.namespace, id, "", dir)
	if err != nil {
		return nil, fmt.Errorf("%w: graph read: %v", ErrBackendUnavailable, err)
	}
	var relations []Relation
	for _, e := range edges {
		src, err := s.loadItem(ctx, e.SourceID)
		if err != nil {
			continue
		}
		dst, err := s.loadItem(ctx, e.TargetID)
		if err != nil {
			continue
		}
		relations = append(relations, Relation{Source: src, Type: e.Type, Target: dst})
	}
	return relations, nil
}

func (s *SemanticMemory) loadItem(ctx context.Context, id string) (*Item, error) {
	doc, err := s.rel.Get(ctx, s.namespace, id)
	if err != nil {
		return nil, err
	}
	return decodeItem(doc)
}

// Delete removes the item and its graph node along with every touching
// edge.
func (s *SemanticMemory) Delete(ctx context.Context, id string) (bool, error) {
	existed, err := s.durable.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if err := s.graph.DeleteNode(ctx, s.namespace, id); err != nil {
		log.Printf("[SEMANTIC] Graph delete for %s failed: %v", id, err)
	}
	return existed, nil
}

// Clear removes all items and the whole relation graph.
func (s *SemanticMemory) Clear(ctx context.Context) error {
	if err := s.durable.Clear(ctx); err != nil {
		return err
	}
	if err := s.graph.Clear(ctx, s.namespace); err != nil {
		return fmt.Errorf("%w: graph clear: %v", ErrBackendUnavailable, err)
	}
	return nil
}
