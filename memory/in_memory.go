package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/hupe1980/toolmesh/core"
	"github.com/oklog/ulid/v2"
)

// StoredMemory is the internal representation persisted by InMemoryStore.
type StoredMemory struct {
	ID        string
	Content   string
	Metadata  map[string]string
	CreatedAt time.Time
}

// InMemoryStore is a naive process-local MemoryStore.
//
// Concurrency: protected by RWMutex.
// Search: every stored memory is scored by the fraction of query terms it
// contains (case insensitive). Suitable for tests and single-process setups
// without an embedding provider; use VectorStore for semantic retrieval.
type InMemoryStore struct {
	mu      sync.RWMutex
	storage map[string]StoredMemory // memoryID -> stored memory
	now     func() time.Time
}

// NewInMemoryStore creates a new in-memory memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		storage: make(map[string]StoredMemory),
		now:     time.Now,
	}
}

// Store appends a new memory and returns its id.
func (m *InMemoryStore) Store(_ context.Context, content string, metadata map[string]string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyContent
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := "mem_" + ulid.Make().String()
	m.storage[id] = StoredMemory{ID: id, Content: content, Metadata: copyMetadata(metadata), CreatedAt: m.now()}

	return id, nil
}

// Search ranks memories by query term overlap. An empty query matches every
// memory with score 1.
func (m *InMemoryStore) Search(_ context.Context, query string, limit int) ([]core.SearchResult, error) {
	terms := tokenize(query)

	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]core.SearchResult, 0)

	for _, stored := range m.storage {
		score := 1.0
		if len(terms) > 0 {
			score = overlap(terms, stored)
		}

		if score <= 0 {
			continue
		}

		results = append(results, toResult(stored, score))
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})

	return clip(results, limit), nil
}

// List returns the most recent memories first.
func (m *InMemoryStore) List(_ context.Context, limit int) ([]core.SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]core.SearchResult, 0, len(m.storage))
	for _, stored := range m.storage {
		results = append(results, toResult(stored, 0))
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].ID > results[j].ID
		}
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})

	return clip(results, limit), nil
}

// Delete removes a stored memory entry by id.
func (m *InMemoryStore) Delete(_ context.Context, memoryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.storage[memoryID]; !exists {
		return ErrNotFound
	}

	delete(m.storage, memoryID)

	return nil
}

func overlap(terms []string, stored StoredMemory) float64 {
	haystack := strings.ToLower(stored.Content + " " + stored.Metadata["title"])

	hits := 0
	for _, t := range terms {
		if strings.Contains(haystack, t) {
			hits++
		}
	}

	return float64(hits) / float64(len(terms))
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(fields))
	out := fields[:0]

	for _, f := range fields {
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}

	return out
}

func toResult(s StoredMemory, score float64) core.SearchResult {
	return core.SearchResult{
		ID:        s.ID,
		Content:   s.Content,
		Score:     score,
		Metadata:  copyMetadata(s.Metadata),
		CreatedAt: s.CreatedAt,
	}
}

func copyMetadata(md map[string]string) map[string]string {
	if md == nil {
		return nil
	}

	out := make(map[string]string, len(md))
	for k, v := range md {
		out[k] = v
	}

	return out
}

func clip(results []core.SearchResult, limit int) []core.SearchResult {
	if limit > 0 && len(results) > limit {
		return results[:limit]
	}
	return results
}
