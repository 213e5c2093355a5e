// Package backend defines the capability interfaces durable memory tiers
// depend on: a relational document store for structured fields, a vector
// index for similarity search, and a graph store for typed relations.
//
// The tier stores call these contracts but never implement them. Adapters
// live in subpackages (inmem, chromem, redis) and can be swapped without
// touching tier logic.
package backend

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested document or node does not exist.
var ErrNotFound = errors.New("backend: not found")

// Document is one structured record in a Relational store.
// Data holds the JSON-encoded item fields; Raw holds an optional binary
// payload stored alongside (but separate from) the structured fields.
type Document struct {
	ID      string
	Content string
	Data    []byte
	Raw     []byte
}

// Relational is a namespaced document store with full-scan listing.
// Namespaces isolate tiers sharing one backend instance.
type Relational interface {
	// Init prepares a namespace for use. Idempotent.
	Init(ctx context.Context, namespace string) error

	// Put upserts a document by ID.
	Put(ctx context.Context, namespace string, doc Document) error

	// Get retrieves a document by ID. Returns ErrNotFound if absent.
	Get(ctx context.Context, namespace, id string) (Document, error)

	// Delete removes a document. Reports whether it existed.
	Delete(ctx context.Context, namespace, id string) (bool, error)

	// List returns every document in the namespace.
	List(ctx context.Context, namespace string) ([]Document, error)

	// Clear removes all documents in the namespace.
	Clear(ctx context.Context, namespace string) error

	// Close releases the connection.
	Close() error
}

// Match is one vector search hit.
type Match struct {
	ID         string
	Similarity float32
}

// VectorIndex is a namespaced similarity index over fixed-length vectors.
type VectorIndex interface {
	// Init prepares a namespace for vectors of the given dimensionality.
	Init(ctx context.Context, namespace string, dimensions int) error

	// Upsert writes a vector point by ID, replacing any previous point.
	Upsert(ctx context.Context, namespace, id string, vector []float32, payload map[string]string) error

	// Query returns up to topK nearest points, highest similarity first.
	// A non-nil where map restricts hits to points whose payload matches
	// every entry exactly.
	Query(ctx context.Context, namespace string, vector []float32, topK int, where map[string]string) ([]Match, error)

	// Delete removes points by ID. Missing IDs are not an error.
	Delete(ctx context.Context, namespace string, ids ...string) error

	// Clear removes all points in the namespace.
	Clear(ctx context.Context, namespace string) error

	// Close releases the index.
	Close() error
}

// Direction selects which edges to traverse from a node.
type Direction string

const (
	DirectionOut  Direction = "out"
	DirectionIn   Direction = "in"
	DirectionBoth Direction = "both"
)

// Edge is one typed, directed relation between two nodes.
type Edge struct {
	SourceID   string
	TargetID   string
	Type       string
	Properties map[string]any
}

// Graph is a namespaced property graph supporting node upsert, typed edge
// creation and single-hop traversal.
type Graph interface {
	// UpsertNode writes a node by ID, replacing its properties.
	UpsertNode(ctx context.Context, namespace, id string, properties map[string]any) error

	// HasNode reports whether a node exists.
	HasNode(ctx context.Context, namespace, id string) (bool, error)

	// AddEdge creates a typed edge. Both endpoints must already exist.
	AddEdge(ctx context.Context, namespace string, edge Edge) error

	// Edges returns edges touching the node in the given direction,
	// optionally filtered by type (empty relType matches all).
	Edges(ctx context.Context, namespace, id, relType string, dir Direction) ([]Edge, error)

	// DeleteNode removes a node and every edge touching it.
	DeleteNode(ctx context.Context, namespace, id string) error

	// Clear removes all nodes and edges in the namespace.
	Clear(ctx context.Context, namespace string) error

	// Close releases the store.
	Close() error
}
