package core

import "context"

// MemoryStore defines persistence + retrieval for long-lived memory snippets
// shared across runs. Implementations can back search with embeddings,
// keywords or any heuristic.
type MemoryStore interface {
	Store(ctx context.Context, content string, metadata map[string]string) (string, error)
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
	List(ctx context.Context, limit int) ([]SearchResult, error)
	Delete(ctx context.Context, memoryID string) error
}
