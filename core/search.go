package core

import "time"

// SearchResult represents a retrieved memory item with a relevance score and
// string metadata.
type SearchResult struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Score     float64           `json:"score"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}
