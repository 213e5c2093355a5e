package memory

import "context"

// Store is the contract every memory tier implements. The four tiers
// (working, episodic, semantic, perceptual) are interchangeable behind it;
// the manager routes writes to the requested tier and fans reads out
// across all enabled tiers.
//
// Stores own their internal item index exclusively: items passed in are
// copied, items handed out are clones, and no external component mutates
// tier internals.
type Store interface {
	// Initialize prepares the store's backing state. Idempotent.
	Initialize(ctx context.Context) error

	// Add inserts (or, for durable tiers, upserts) an item and returns
	// its ID, generating one if absent.
	Add(ctx context.Context, item *Item) (string, error)

	// Get retrieves an item by ID, updating its access bookkeeping.
	// Returns ErrNotFound if absent or expired.
	Get(ctx context.Context, id string) (*Item, error)

	// Search returns up to topK items relevant to query, best first.
	// Filters apply equality constraints on metadata fields before
	// scoring. Returned items have their access bookkeeping updated.
	Search(ctx context.Context, query string, topK int, filters map[string]any) ([]*Item, error)

	// Update applies a partial patch. Reports whether the item existed.
	Update(ctx context.Context, id string, patch Patch) (bool, error)

	// Delete removes an item. Reports whether it existed.
	Delete(ctx context.Context, id string) (bool, error)

	// Clear removes every item in the store.
	Clear(ctx context.Context) error

	// Close releases the store's resources and stops background work.
	Close() error
}

// Embedder converts text to fixed-length vectors. The concrete provider
// (API-backed, local model, or hash fallback) is an initialization-time
// decision; the manager and tiers only see this contract.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}
