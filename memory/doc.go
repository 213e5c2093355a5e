// Package memory provides a layered memory system for AI agents.
//
// Memory is split into four tiers with different retention behavior:
//   - Working: short-term, in-process, TTL expiry and capacity eviction
//   - Episodic: durable, time-ordered events grouped into episodes
//   - Semantic: durable knowledge with typed relations between items
//   - Perceptual: durable multi-modal items with raw payloads
//
// The Manager is the entry point: it owns the tiers and their shared
// backends, routes Store calls to one tier, fans Recall out across tiers,
// and promotes important working items to episodic memory via Consolidate.
//
// Durable tiers store structured fields in a relational backend
// (in-process or Redis) and embeddings in a vector index (chromem-go).
// Search prefers vector similarity and degrades to keyword matching when
// embeddings or the index are unavailable. Embedding providers resolve at
// startup: configured provider first, then the environment, then a local
// deterministic hash fallback that needs no network.
package memory
