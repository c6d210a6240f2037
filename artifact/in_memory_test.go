package artifact

import (
	"sync"
	"testing"

	"github.com/hupe1980/toolmesh/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Interface compliance (compile-time assertions)
var _ core.ArtifactStore = (*InMemoryStore)(nil)

func TestInMemoryStore_SaveGetIsolation(t *testing.T) {
	svc := NewInMemoryStore()
	data := []byte("hello")
	require.NoError(t, svc.Save("r1", "a1", data))

	data[0] = 'H'
	out, err := svc.Get("r1", "a1")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(out))

	out[0] = 'x'
	out2, _ := svc.Get("r1", "a1")
	assert.Equal(t, "hello", string(out2))
}

func TestInMemoryStore_ListAndDelete(t *testing.T) {
	svc := NewInMemoryStore()
	require.NoError(t, svc.Save("r1", "b.png", []byte("1")))
	require.NoError(t, svc.Save("r1", "a.mp3", []byte("2")))

	ids, err := svc.List("r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.mp3", "b.png"}, ids)

	require.NoError(t, svc.Delete("r1", "a.mp3"))
	assert.ErrorIs(t, svc.Delete("r1", "a.mp3"), ErrNotFound)
	assert.ErrorIs(t, svc.Delete("nope", "a.mp3"), ErrNotFound)

	_, err = svc.Get("r1", "a.mp3")
	assert.ErrorIs(t, err, ErrNotFound)

	empty, err := svc.List("unknown")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestInMemoryStore_Quota(t *testing.T) {
	svc := NewInMemoryStore(func(o *Options) { o.MaxRunBytes = 10 })

	require.NoError(t, svc.Save("r1", "a", make([]byte, 6)))
	assert.ErrorIs(t, svc.Save("r1", "b", make([]byte, 6)), ErrTooLarge)

	// overwriting replaces the old size
	require.NoError(t, svc.Save("r1", "a", make([]byte, 10)))

	// quota is per run
	require.NoError(t, svc.Save("r2", "a", make([]byte, 10)))
}

func TestInMemoryStore_EvictsOldestRun(t *testing.T) {
	svc := NewInMemoryStore(func(o *Options) { o.MaxRuns = 2 })

	require.NoError(t, svc.Save("r1", "a", []byte("1")))
	require.NoError(t, svc.Save("r2", "a", []byte("2")))
	require.NoError(t, svc.Save("r3", "a", []byte("3")))

	_, err := svc.Get("r1", "a")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := svc.Get("r3", "a")
	require.NoError(t, err)
	assert.Equal(t, "3", string(got))
}

func TestInMemoryStore_RequiresIDs(t *testing.T) {
	assert.Error(t, NewInMemoryStore().Save("", "a", nil))
	assert.Error(t, NewInMemoryStore().Save("r", "", nil))
}

func TestInMemoryStore_Concurrency(t *testing.T) {
	svc := NewInMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, svc.Save("r", string(rune('a'+i)), []byte{byte(i)}))
		}(i)
	}
	wg.Wait()

	ids, _ := svc.List("r")
	assert.Len(t, ids, 20)
}
