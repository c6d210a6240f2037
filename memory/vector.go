package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/toolmesh/core"
	"github.com/oklog/ulid/v2"
	chromem "github.com/philippgille/chromem-go"
)

// DefaultEmbeddingModel is the OpenAI embedding model used by
// NewOpenAIEmbeddingFunc when none is given.
const DefaultEmbeddingModel = "text-embedding-3-small"

const createdAtKey = "created_at"

// EmbeddingFunc turns text into a vector.
type EmbeddingFunc = chromem.EmbeddingFunc

// NewOpenAIEmbeddingFunc returns an embedding function calling the OpenAI
// embeddings endpoint.
func NewOpenAIEmbeddingFunc(apiKey, model string) EmbeddingFunc {
	if model == "" {
		model = DefaultEmbeddingModel
	}

	return chromem.NewEmbeddingFuncOpenAI(apiKey, chromem.EmbeddingModelOpenAI(model))
}

// VectorStoreOptions configures a VectorStore.
type VectorStoreOptions struct {
	// Collection names the chromem collection. Defaults to "memories".
	Collection string
}

// VectorStore is a MemoryStore ranking memories by embedding similarity. It
// keeps vectors in an in-process chromem database.
type VectorStore struct {
	collection *chromem.Collection

	mu  sync.RWMutex
	ids []string // insertion order
	now func() time.Time
}

// NewVectorStore creates a vector store using embed for both documents and
// queries.
func NewVectorStore(embed EmbeddingFunc, optFns ...func(o *VectorStoreOptions)) (*VectorStore, error) {
	if embed == nil {
		return nil, fmt.Errorf("memory: embedding function is required")
	}

	opts := VectorStoreOptions{Collection: "memories"}
	for _, fn := range optFns {
		fn(&opts)
	}

	db := chromem.NewDB()

	col, err := db.GetOrCreateCollection(opts.Collection, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("memory: create collection: %w", err)
	}

	return &VectorStore{collection: col, now: time.Now}, nil
}

// Store embeds content and adds it to the collection.
func (v *VectorStore) Store(ctx context.Context, content string, metadata map[string]string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyContent
	}

	id := "mem_" + ulid.Make().String()

	md := copyMetadata(metadata)
	if md == nil {
		md = make(map[string]string, 1)
	}

	md[createdAtKey] = v.now().UTC().Format(time.RFC3339Nano)

	if err := v.collection.AddDocument(ctx, chromem.Document{ID: id, Content: content, Metadata: md}); err != nil {
		return "", fmt.Errorf("memory: add document: %w", err)
	}

	v.mu.Lock()
	v.ids = append(v.ids, id)
	v.mu.Unlock()

	return id, nil
}

// Search returns the memories most similar to query.
func (v *VectorStore) Search(ctx context.Context, query string, limit int) ([]core.SearchResult, error) {
	n := v.collection.Count()
	if n == 0 {
		return []core.SearchResult{}, nil
	}

	if limit <= 0 || limit > n {
		limit = n
	}

	hits, err := v.collection.Query(ctx, query, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("memory: query: %w", err)
	}

	results := make([]core.SearchResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, vectorResult(h.ID, h.Content, h.Metadata, float64(h.Similarity)))
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	return results, nil
}

// List returns the most recently stored memories first.
func (v *VectorStore) List(ctx context.Context, limit int) ([]core.SearchResult, error) {
	v.mu.RLock()
	ids := make([]string, len(v.ids))
	copy(ids, v.ids)
	v.mu.RUnlock()

	results := make([]core.SearchResult, 0, len(ids))

	for i := len(ids) - 1; i >= 0; i-- {
		if limit > 0 && len(results) >= limit {
			break
		}

		doc, err := v.collection.GetByID(ctx, ids[i])
		if err != nil {
			return nil, fmt.Errorf("memory: get %s: %w", ids[i], err)
		}

		results = append(results, vectorResult(doc.ID, doc.Content, doc.Metadata, 0))
	}

	return results, nil
}

// Delete removes a memory by id.
func (v *VectorStore) Delete(ctx context.Context, memoryID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	idx := -1
	for i, id := range v.ids {
		if id == memoryID {
			idx = i
			break
		}
	}

	if idx < 0 {
		return ErrNotFound
	}

	if err := v.collection.Delete(ctx, nil, nil, memoryID); err != nil {
		return fmt.Errorf("memory: delete %s: %w", memoryID, err)
	}

	v.ids = append(v.ids[:idx], v.ids[idx+1:]...)

	return nil
}

func vectorResult(id, content string, md map[string]string, score float64) core.SearchResult {
	out := copyMetadata(md)

	var created time.Time
	if raw, ok := out[createdAtKey]; ok {
		created, _ = time.Parse(time.RFC3339Nano, raw)
		delete(out, createdAtKey)
	}

	return core.SearchResult{ID: id, Content: content, Score: score, Metadata: out, CreatedAt: created}
}
