package artifact

import (
	"fmt"
	"sort"
	"sync"
)

// Options configures an InMemoryStore.
type Options struct {
	// MaxRunBytes caps the total size of artifacts kept per run. 0 disables
	// the quota.
	MaxRunBytes int
	// MaxRuns caps the number of runs retained; the oldest run is evicted
	// when a new one starts. 0 keeps every run.
	MaxRuns int
}

// InMemoryStore is an in-process ArtifactStore. Data is copied on save and
// retrieval so callers never share buffers with the store.
//
// Layout: runID -> artifactID -> raw bytes
type InMemoryStore struct {
	mu        sync.RWMutex
	opts      Options
	artifacts map[string]map[string][]byte
	runs      []string // run ids in creation order
}

// NewInMemoryStore returns an empty in-memory artifact store.
func NewInMemoryStore(optFns ...func(o *Options)) *InMemoryStore {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &InMemoryStore{opts: opts, artifacts: make(map[string]map[string][]byte)}
}

// Save stores (or overwrites) the artifact bytes for the given run and id.
func (a *InMemoryStore) Save(runID, artifactID string, data []byte) error {
	if runID == "" || artifactID == "" {
		return fmt.Errorf("artifact: run id and artifact id are required")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	m, exists := a.artifacts[runID]
	if !exists {
		a.evictLocked()

		m = make(map[string][]byte)
		a.artifacts[runID] = m
		a.runs = append(a.runs, runID)
	}

	if a.opts.MaxRunBytes > 0 {
		total := len(data)
		for id, b := range m {
			if id != artifactID {
				total += len(b)
			}
		}

		if total > a.opts.MaxRunBytes {
			return fmt.Errorf("%w: run %s would hold %d bytes (limit %d)", ErrTooLarge, runID, total, a.opts.MaxRunBytes)
		}
	}

	cp := make([]byte, len(data))
	copy(cp, data)
	m[artifactID] = cp

	return nil
}

// Get returns a copy of the stored artifact bytes or ErrNotFound.
func (a *InMemoryStore) Get(runID, artifactID string) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	data, ok := a.artifacts[runID][artifactID]
	if !ok {
		return nil, ErrNotFound
	}

	cp := make([]byte, len(data))
	copy(cp, data)

	return cp, nil
}

// List returns the sorted artifact ids stored for the run.
func (a *InMemoryStore) List(runID string) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	m := a.artifacts[runID]

	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids, nil
}

// Delete removes the artifact if present or returns ErrNotFound.
func (a *InMemoryStore) Delete(runID, artifactID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	m, ok := a.artifacts[runID]
	if !ok {
		return ErrNotFound
	}

	if _, ok := m[artifactID]; !ok {
		return ErrNotFound
	}

	delete(m, artifactID)

	return nil
}

// evictLocked drops the oldest runs until there is room for one more.
func (a *InMemoryStore) evictLocked() {
	if a.opts.MaxRuns <= 0 {
		return
	}

	for len(a.runs) >= a.opts.MaxRuns {
		delete(a.artifacts, a.runs[0])
		a.runs = a.runs[1:]
	}
}
