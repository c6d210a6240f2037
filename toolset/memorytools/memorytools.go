// Package memorytools exposes a core.MemoryStore to the model as
// save_memory, search_memory and list_memories.
package memorytools

import (
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/tool"
)

const (
	defaultSearchLimit = 5
	defaultListLimit   = 10
	titleLength        = 100
	snippetLength      = 200
)

// Tools returns the memory tools backed by store.
func Tools(store core.MemoryStore) []tool.Tool {
	m := &memoryTools{store: store}

	return []tool.Tool{
		tool.NewFunctionTool("save_memory",
			"Save information to long-term memory with semantic search capability. Use this to remember important facts, insights, or context for future conversations.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"content":  map[string]any{"type": "string", "description": "Content to save in memory"},
					"title":    map[string]any{"type": "string", "description": "Optional title/summary for the memory"},
					"metadata": map[string]any{"type": "object", "description": "Optional metadata (tags, categories, etc.)"},
				},
				"required": []string{"content"},
			},
			m.save,
		),
		tool.NewFunctionTool("search_memory",
			"Search through saved memories using semantic similarity. Finds relevant memories even if exact keywords don't match.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{"type": "string", "description": "Query to search for in memories"},
					"limit": map[string]any{"type": "integer", "description": "Maximum number of results to return (default: 5)"},
				},
				"required": []string{"query"},
			},
			m.search,
		),
		tool.NewFunctionTool("list_memories",
			"List recent memories in chronological order.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"limit": map[string]any{"type": "integer", "description": "Number of memories to list (default: 10)"},
				},
			},
			m.list,
		),
	}
}

type memoryTools struct {
	store core.MemoryStore
}

func (m *memoryTools) save(tc *core.ToolContext, args map[string]any) (string, error) {
	content, err := tool.RequiredStringArg(args, "content")
	if err != nil {
		return "", err
	}

	metadata := tool.StringMapArg(args, "metadata")
	if metadata == nil {
		metadata = map[string]string{}
	}

	title := tool.StringArg(args, "title")
	if title == "" {
		title = truncate(content, titleLength)
	}

	metadata["title"] = title

	id, err := m.store.Store(tc.Context(), content, metadata)
	if err != nil {
		return "", fmt.Errorf("save memory failed: %w", err)
	}

	tc.LogDebug("memory.saved", "id", id)

	return fmt.Sprintf("Memory saved successfully with ID: %s", id), nil
}

func (m *memoryTools) search(tc *core.ToolContext, args map[string]any) (string, error) {
	query, err := tool.RequiredStringArg(args, "query")
	if err != nil {
		return "", err
	}

	results, err := m.store.Search(tc.Context(), query, limitArg(args, defaultSearchLimit))
	if err != nil {
		return "", fmt.Errorf("search memory failed: %w", err)
	}

	if len(results) == 0 {
		return fmt.Sprintf("No memories found matching: %s", query), nil
	}

	entries := make([]string, 0, len(results))
	for i, r := range results {
		title := r.Metadata["title"]
		if title == "" {
			title = "Untitled"
		}

		entries = append(entries, fmt.Sprintf("%d. %s (similarity: %.1f%%)\n   %s\n   Created: %s",
			i+1, title, r.Score*100, truncate(r.Content, snippetLength), r.CreatedAt.UTC().Format(time.RFC3339)))
	}

	return strings.Join(entries, "\n\n"), nil
}

func (m *memoryTools) list(tc *core.ToolContext, args map[string]any) (string, error) {
	results, err := m.store.List(tc.Context(), limitArg(args, defaultListLimit))
	if err != nil {
		return "", fmt.Errorf("list memories failed: %w", err)
	}

	if len(results) == 0 {
		return "No memories found.", nil
	}

	type entry struct {
		ID        string    `json:"id"`
		Title     string    `json:"title"`
		Content   string    `json:"content"`
		CreatedAt time.Time `json:"created_at"`
	}

	out := make([]entry, 0, len(results))
	for _, r := range results {
		out = append(out, entry{ID: r.ID, Title: r.Metadata["title"], Content: r.Content, CreatedAt: r.CreatedAt})
	}

	return tool.JSONResult(out)
}

func limitArg(args map[string]any, def int) int {
	if n := tool.IntArg(args, "limit", def); n > 0 {
		return n
	}

	return def
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}

	return string(r[:n]) + "..."
}
