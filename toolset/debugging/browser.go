package debugging

import (
	"context"
	"time"
)

// ConsoleLog is one captured console message or uncaught exception.
type ConsoleLog struct {
	Type      string    `json:"type"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Location  string    `json:"location,omitempty"`
}

// NetworkRequest is one completed or failed request.
type NetworkRequest struct {
	URL        string        `json:"url"`
	Method     string        `json:"method"`
	Status     int           `json:"status,omitempty"`
	StatusText string        `json:"statusText,omitempty"`
	Type       string        `json:"type"`
	Timestamp  time.Time     `json:"timestamp"`
	Duration   time.Duration `json:"duration,omitempty"`
	Size       int64         `json:"size,omitempty"`
	Failed     bool          `json:"failed,omitempty"`
}

// PageInfo identifies the page after navigation.
type PageInfo struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Browser is a single controllable page with console and network capture.
type Browser interface {
	Navigate(ctx context.Context, url string) (PageInfo, error)
	Screenshot(ctx context.Context, fullPage bool, selector string) ([]byte, error)
	Evaluate(ctx context.Context, script string) (any, error)
	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
	ConsoleLogs() []ConsoleLog
	NetworkRequests() []NetworkRequest
	Close() error
}

// Launcher starts a new Browser.
type Launcher func(ctx context.Context, headless bool) (Browser, error)
