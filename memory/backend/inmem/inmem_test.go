package inmem_test

import (
	"context"
	"errors"
	"testing"

	"github.com/mnemoslabs/mnemo-go/memory/backend"
	"github.com/mnemoslabs/mnemo-go/memory/backend/inmem"
)

func TestRelational_CRUD(t *testing.T) {
	ctx := context.Background()
	r := inmem.NewRelational()
	defer r.Close()
	if err := r.Init(ctx, "ns"); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	doc := backend.Document{ID: "a", Content: "hello", Data: []byte(`{"x":1}`)}
	if err := r.Put(ctx, "ns", doc); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := r.Get(ctx, "ns", "a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Content != "hello" || string(got.Data) != `{"x":1}` {
		t.Errorf("Get = %+v, want the stored document", got)
	}

	if _, err := r.Get(ctx, "ns", "missing"); !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("Get missing: err = %v, want ErrNotFound", err)
	}
	// Namespaces are isolated.
	if _, err := r.Get(ctx, "other", "a"); !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("cross-namespace Get: err = %v, want ErrNotFound", err)
	}

	docs, err := r.List(ctx, "ns")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(docs) != 1 {
		t.Errorf("List returned %d docs, want 1", len(docs))
	}

	existed, err := r.Delete(ctx, "ns", "a")
	if err != nil || !existed {
		t.Fatalf("Delete = (%v, %v), want (true, nil)", existed, err)
	}
	existed, err = r.Delete(ctx, "ns", "a")
	if err != nil || existed {
		t.Errorf("second Delete = (%v, %v), want (false, nil)", existed, err)
	}

	if err := r.Put(ctx, "ns", doc); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := r.Clear(ctx, "ns"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	docs, _ = r.List(ctx, "ns")
	if len(docs) != 0 {
		t.Errorf("List after Clear returned %d docs", len(docs))
	}
}

func TestGraph_EdgeLifecycle(t *testing.T) {
	ctx := context.Background()
	g := inmem.NewGraph()
	defer g.Close()

	for _, id := range []string{"a", "b", "c"} {
		if err := g.UpsertNode(ctx, "ns", id, nil); err != nil {
			t.Fatalf("UpsertNode failed: %v", err)
		}
	}

	err := g.AddEdge(ctx, "ns", backend.Edge{SourceID: "a", TargetID: "zz", Type: "t"})
	if !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("AddEdge to missing node: err = %v, want ErrNotFound", err)
	}

	if err := g.AddEdge(ctx, "ns", backend.Edge{SourceID: "a", TargetID: "b", Type: "likes"}); err != nil {
		t.Fatalf("AddEdge failed: %v", err)
	}
	if err := g.AddEdge(ctx, "ns", backend.Edge{SourceID: "c", TargetID: "a", Type: "follows"}); err != nil {
		t.Fatalf("AddEdge failed: %v", err)
	}

	// Same endpoints and type replace rather than duplicate.
	if err := g.AddEdge(ctx, "ns", backend.Edge{SourceID: "a", TargetID: "b", Type: "likes", Properties: map[string]any{"w": 2}}); err != nil {
		t.Fatalf("AddEdge replace failed: %v", err)
	}
	edges, err := g.Edges(ctx, "ns", "a", "likes", backend.DirectionOut)
	if err != nil {
		t.Fatalf("Edges failed: %v", err)
	}
	if len(edges) != 1 {
		t.Fatalf("Edges returned %d, want 1 (replaced, not duplicated)", len(edges))
	}
	if edges[0].Properties["w"] != 2 {
		t.Errorf("replaced edge properties = %v", edges[0].Properties)
	}

	out, _ := g.Edges(ctx, "ns", "a", "", backend.DirectionOut)
	if len(out) != 1 {
		t.Errorf("outgoing edges = %d, want 1", len(out))
	}
	in, _ := g.Edges(ctx, "ns", "a", "", backend.DirectionIn)
	if len(in) != 1 {
		t.Errorf("incoming edges = %d, want 1", len(in))
	}
	both, _ := g.Edges(ctx, "ns", "a", "", backend.DirectionBoth)
	if len(both) != 2 {
		t.Errorf("edges both directions = %d, want 2", len(both))
	}

	if err := g.DeleteNode(ctx, "ns", "a"); err != nil {
		t.Fatalf("DeleteNode failed: %v", err)
	}
	ok, err := g.HasNode(ctx, "ns", "a")
	if err != nil || ok {
		t.Errorf("HasNode after delete = (%v, %v), want (false, nil)", ok, err)
	}
	remaining, _ := g.Edges(ctx, "ns", "b", "", backend.DirectionBoth)
	if len(remaining) != 0 {
		t.Errorf("edges touching deleted node survived: %v", remaining)
	}
}
