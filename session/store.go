package session

import (
	"context"
	"errors"
	"time"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/flow"
)

// ErrNotFound is returned when no transcript exists for a run id.
var ErrNotFound = errors.New("transcript not found")

// Transcript is the persisted record of one run.
type Transcript struct {
	RunID     string         `json:"run_id"`
	Request   string         `json:"request"`
	Messages  []core.Message `json:"messages"`
	Result    *flow.Result   `json:"result,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewTranscript builds a transcript from a finished run.
func NewTranscript(request string, res *flow.Result) Transcript {
	return Transcript{
		RunID:     res.RunID,
		Request:   request,
		Messages:  res.Messages,
		Result:    res,
		CreatedAt: time.Now().UTC(),
	}
}

// Summary is a lightweight listing entry.
type Summary struct {
	RunID     string    `json:"run_id"`
	Request   string    `json:"request"`
	CreatedAt time.Time `json:"created_at"`
}

// TranscriptStore persists transcripts keyed by run id.
type TranscriptStore interface {
	Save(ctx context.Context, t Transcript) error
	Get(ctx context.Context, runID string) (Transcript, error)
	List(ctx context.Context, limit int) ([]Summary, error)
}
