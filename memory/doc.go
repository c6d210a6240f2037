// Package memory contains concrete MemoryStore implementations. The store
// interface and SearchResult type reside in the core package; the memory
// tools depend on core.MemoryStore and the binary selects an implementation
// at wiring time.
//
// Two backends are provided:
//   - InMemoryStore: process-local keyword search, no external dependencies
//   - VectorStore: semantic similarity search backed by chromem-go and an
//     embedding function (OpenAI text-embedding-3-small by default)
package memory
