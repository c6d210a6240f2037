package core

import (
	"context"
	"sync"
)

type testLogger struct{}

func (l testLogger) Debug(string, ...any) {}
func (l testLogger) Info(string, ...any)  {}
func (l testLogger) Warn(string, ...any)  {}
func (l testLogger) Error(string, ...any) {}

type mockArtifactStore struct {
	mu    sync.Mutex
	saved map[string]map[string][]byte
}

func (a *mockArtifactStore) Save(rid, aid string, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.saved == nil {
		a.saved = map[string]map[string][]byte{}
	}
	if _, ok := a.saved[rid]; !ok {
		a.saved[rid] = map[string][]byte{}
	}
	a.saved[rid][aid] = append([]byte{}, data...)
	return nil
}

func (a *mockArtifactStore) Get(rid, aid string) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.saved[rid][aid], nil
}

func (a *mockArtifactStore) List(rid string) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	res := []string{}
	for k := range a.saved[rid] {
		res = append(res, k)
	}
	return res, nil
}

func (a *mockArtifactStore) Delete(string, string) error { return nil }

func newRunContextForTest(maxIterations int) (*RunContext, *mockArtifactStore) {
	store := &mockArtifactStore{}
	return NewRunContext(context.Background(), "run-x", "hello", maxIterations, store, testLogger{}), store
}
