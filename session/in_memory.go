package session

import (
	"context"
	"sort"
	"sync"

	"github.com/hupe1980/toolmesh/core"
)

// InMemoryStore is a volatile TranscriptStore storing transcripts in a
// process local map. It is safe for concurrent access. Returned transcripts
// are copies.
type InMemoryStore struct {
	mu          sync.RWMutex
	transcripts map[string]Transcript
	max         int
	order       []string
}

// NewInMemoryStore constructs an empty in-memory store keeping at most max
// transcripts (0 means unbounded). The oldest transcript is evicted first.
func NewInMemoryStore(max int) *InMemoryStore {
	return &InMemoryStore{transcripts: make(map[string]Transcript), max: max}
}

// Save stores a copy of t, replacing an existing transcript with the same id.
func (s *InMemoryStore) Save(_ context.Context, t Transcript) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transcripts[t.RunID]; !exists {
		s.order = append(s.order, t.RunID)
	}

	s.transcripts[t.RunID] = clone(t)

	for s.max > 0 && len(s.order) > s.max {
		delete(s.transcripts, s.order[0])
		s.order = s.order[1:]
	}

	return nil
}

// Get returns the transcript for runID.
func (s *InMemoryStore) Get(_ context.Context, runID string) (Transcript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.transcripts[runID]
	if !ok {
		return Transcript{}, ErrNotFound
	}

	return clone(t), nil
}

// List returns the newest transcripts first.
func (s *InMemoryStore) List(_ context.Context, limit int) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Summary, 0, len(s.transcripts))
	for _, t := range s.transcripts {
		out = append(out, Summary{RunID: t.RunID, Request: t.Request, CreatedAt: t.CreatedAt})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

func clone(t Transcript) Transcript {
	cp := t
	cp.Messages = append([]core.Message(nil), t.Messages...)

	if t.Result != nil {
		r := *t.Result
		r.Messages = cp.Messages
		cp.Result = &r
	}

	return cp
}
