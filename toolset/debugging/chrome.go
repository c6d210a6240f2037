package debugging

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

const (
	maxCapturedLogs     = 1000
	maxCapturedRequests = 1000
	actionTimeout       = 30 * time.Second
)

type pendingRequest struct {
	url, method, kind string
	start             time.Time
	status            int
	statusText        string
}

// chromeBrowser drives a local Chrome through the DevTools protocol.
type chromeBrowser struct {
	allocCancel context.CancelFunc
	tabCancel   context.CancelFunc
	tab         context.Context

	mu       sync.Mutex
	logs     []ConsoleLog
	requests []NetworkRequest
	pending  map[network.RequestID]*pendingRequest
	now      func() time.Time
}

// LaunchChrome is the chromedp Launcher. The browser outlives ctx; it is
// released by Close.
func LaunchChrome(ctx context.Context, headless bool) (Browser, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.NoSandbox,
		chromedp.Flag("disable-setuid-sandbox", true),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tab, tabCancel := chromedp.NewContext(allocCtx)

	b := &chromeBrowser{
		allocCancel: allocCancel,
		tabCancel:   tabCancel,
		tab:         tab,
		pending:     make(map[network.RequestID]*pendingRequest),
		now:         time.Now,
	}

	chromedp.ListenTarget(tab, b.onEvent)

	if err := b.run(ctx, network.Enable(), runtime.Enable()); err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	return b, nil
}

// run executes actions on the tab, bounded by both ctx and actionTimeout.
func (b *chromeBrowser) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(b.tab, actionTimeout)
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (b *chromeBrowser) Navigate(ctx context.Context, url string) (PageInfo, error) {
	var info PageInfo

	err := b.run(ctx,
		chromedp.Navigate(url),
		chromedp.Location(&info.URL),
		chromedp.Title(&info.Title),
	)

	return info, err
}

func (b *chromeBrowser) Screenshot(ctx context.Context, fullPage bool, selector string) ([]byte, error) {
	var buf []byte

	var action chromedp.Action

	switch {
	case selector != "":
		action = chromedp.Screenshot(selector, &buf, chromedp.NodeVisible)
	case fullPage:
		action = chromedp.FullScreenshot(&buf, 100)
	default:
		action = chromedp.CaptureScreenshot(&buf)
	}

	if err := b.run(ctx, action); err != nil {
		return nil, err
	}

	return buf, nil
}

func (b *chromeBrowser) Evaluate(ctx context.Context, script string) (any, error) {
	var res any

	if err := b.run(ctx, chromedp.Evaluate(script, &res)); err != nil {
		return nil, err
	}

	return res, nil
}

func (b *chromeBrowser) Click(ctx context.Context, selector string) error {
	return b.run(ctx, chromedp.Click(selector, chromedp.NodeVisible))
}

func (b *chromeBrowser) Type(ctx context.Context, selector, text string) error {
	return b.run(ctx, chromedp.SendKeys(selector, text, chromedp.NodeVisible))
}

func (b *chromeBrowser) ConsoleLogs() []ConsoleLog {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]ConsoleLog(nil), b.logs...)
}

func (b *chromeBrowser) NetworkRequests() []NetworkRequest {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]NetworkRequest(nil), b.requests...)
}

func (b *chromeBrowser) Close() error {
	b.tabCancel()
	b.allocCancel()

	return nil
}

func (b *chromeBrowser) onEvent(ev any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()

	switch e := ev.(type) {
	case *runtime.EventConsoleAPICalled:
		parts := make([]string, 0, len(e.Args))
		for _, arg := range e.Args {
			parts = append(parts, remoteText(arg))
		}

		entry := ConsoleLog{Type: consoleType(string(e.Type)), Text: strings.Join(parts, " "), Timestamp: now}
		if e.StackTrace != nil && len(e.StackTrace.CallFrames) > 0 {
			entry.Location = e.StackTrace.CallFrames[0].URL
		}

		b.appendLog(entry)
	case *runtime.EventExceptionThrown:
		if e.ExceptionDetails == nil {
			return
		}

		text := e.ExceptionDetails.Text
		if e.ExceptionDetails.Exception != nil && e.ExceptionDetails.Exception.Description != "" {
			text = e.ExceptionDetails.Exception.Description
		}

		b.appendLog(ConsoleLog{Type: "error", Text: text, Timestamp: now, Location: e.ExceptionDetails.URL})
	case *network.EventRequestWillBeSent:
		if e.Request == nil {
			return
		}

		b.pending[e.RequestID] = &pendingRequest{
			url:    e.Request.URL,
			method: e.Request.Method,
			kind:   strings.ToLower(string(e.Type)),
			start:  now,
		}
	case *network.EventResponseReceived:
		if p, ok := b.pending[e.RequestID]; ok && e.Response != nil {
			p.status = int(e.Response.Status)
			p.statusText = e.Response.StatusText
		}
	case *network.EventLoadingFinished:
		if p, ok := b.pending[e.RequestID]; ok {
			delete(b.pending, e.RequestID)
			b.appendRequest(NetworkRequest{
				URL:        p.url,
				Method:     p.method,
				Status:     p.status,
				StatusText: p.statusText,
				Type:       p.kind,
				Timestamp:  now,
				Duration:   now.Sub(p.start),
				Size:       int64(e.EncodedDataLength),
			})
		}
	case *network.EventLoadingFailed:
		if p, ok := b.pending[e.RequestID]; ok {
			delete(b.pending, e.RequestID)

			text := e.ErrorText
			if text == "" {
				text = "Failed"
			}

			b.appendRequest(NetworkRequest{
				URL:        p.url,
				Method:     p.method,
				StatusText: text,
				Type:       p.kind,
				Timestamp:  now,
				Duration:   now.Sub(p.start),
				Failed:     true,
			})
		}
	}
}

func (b *chromeBrowser) appendLog(l ConsoleLog) {
	b.logs = append(b.logs, l)
	if len(b.logs) > maxCapturedLogs {
		b.logs = b.logs[len(b.logs)-maxCapturedLogs:]
	}
}

func (b *chromeBrowser) appendRequest(r NetworkRequest) {
	b.requests = append(b.requests, r)
	if len(b.requests) > maxCapturedRequests {
		b.requests = b.requests[len(b.requests)-maxCapturedRequests:]
	}
}

func consoleType(t string) string {
	if t == "warning" {
		return "warn"
	}
	return t
}

// remoteText renders a console argument the way devtools prints it.
func remoteText(o *runtime.RemoteObject) string {
	if o == nil {
		return ""
	}

	if len(o.Value) > 0 {
		var s string
		if err := json.Unmarshal(o.Value, &s); err == nil {
			return s
		}
		return string(o.Value)
	}

	return o.Description
}
