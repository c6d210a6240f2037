// Package debugging gives the model a real browser: console and network
// capture, screenshots, script evaluation and simple interaction.
package debugging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/guard"
	"github.com/hupe1980/toolmesh/tool"
)

// ErrNoSession is returned by every tool except start_debug_session when no
// browser is running.
var ErrNoSession = errors.New("no active debug session. Call start_debug_session first")

const defaultLimit = 50

// Session owns at most one running browser.
type Session struct {
	launch Launcher

	mu      sync.Mutex
	browser Browser
}

// NewSession returns an idle session that starts browsers with launch.
func NewSession(launch Launcher) *Session {
	return &Session{launch: launch}
}

// Close stops the running browser, if any.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closeLocked()
}

func (s *Session) closeLocked() error {
	if s.browser == nil {
		return nil
	}

	err := s.browser.Close()
	s.browser = nil

	return err
}

// with runs fn on the active browser while holding the session lock.
func (s *Session) with(fn func(b Browser) (string, error)) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.browser == nil {
		return "", ErrNoSession
	}

	return fn(s.browser)
}

type debugTools struct {
	session *Session
	policy  *guard.PathPolicy
}

// Tools returns the browser debugging tools bound to session.
func Tools(session *Session, policy *guard.PathPolicy) []tool.Tool {
	d := &debugTools{session: session, policy: policy}

	str := func(desc string) map[string]any { return map[string]any{"type": "string", "description": desc} }
	limit := map[string]any{"type": "integer", "description": "Max number of entries to return (default: 50)"}
	selector := func(desc string) map[string]any {
		return map[string]any{"type": "object", "properties": map[string]any{"selector": str(desc)}, "required": []string{"selector"}}
	}

	return []tool.Tool{
		tool.NewFunctionTool("start_debug_session",
			"Start a browser debugging session with console log and network request capture.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"url":      str("URL to open and debug"),
					"headless": map[string]any{"type": "boolean", "description": "Run in headless mode (default: true)"},
				},
				"required": []string{"url"},
			},
			d.start,
		),
		tool.NewFunctionTool("read_console_logs",
			"Read console logs and uncaught errors captured from the browser.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"filter": str("Filter logs by text content"),
					"type":   map[string]any{"type": "string", "enum": []string{"log", "error", "warn", "info", "debug"}, "description": "Filter by log type"},
					"limit":  limit,
				},
			},
			d.readConsole,
		),
		tool.NewFunctionTool("read_network_requests",
			"Read network requests captured from the browser.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"filter": str("Filter requests by URL"),
					"status": map[string]any{"type": "integer", "description": "Filter by HTTP status code"},
					"method": str("Filter by HTTP method (GET, POST, etc.)"),
					"limit":  limit,
				},
			},
			d.readNetwork,
		),
		tool.NewFunctionTool("take_screenshot",
			"Take a screenshot of the browser page. The image is stored as a run artifact and optionally written to path.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path":     str("Path to also save the screenshot to (optional)"),
					"fullPage": map[string]any{"type": "boolean", "description": "Capture full scrollable page (default: true)"},
					"selector": str("CSS selector of element to screenshot (optional)"),
				},
			},
			d.screenshot,
		).WithPathKey("path"),
		tool.NewFunctionTool("evaluate_in_page",
			"Execute JavaScript code in the browser page context and return the result.",
			map[string]any{
				"type":       "object",
				"properties": map[string]any{"script": str("JavaScript code to execute")},
				"required":   []string{"script"},
			},
			d.evaluate,
		),
		tool.NewFunctionTool("click_element",
			"Click an element in the page using a CSS selector.",
			selector("CSS selector of element to click"),
			d.click,
		),
		tool.NewFunctionTool("type_text",
			"Type text into an input element.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"selector": str("CSS selector of input element"),
					"text":     str("Text to type"),
				},
				"required": []string{"selector", "text"},
			},
			d.typeText,
		),
		tool.NewFunctionTool("navigate_to",
			"Navigate the browser to a new URL.",
			map[string]any{
				"type":       "object",
				"properties": map[string]any{"url": str("URL to navigate to")},
				"required":   []string{"url"},
			},
			d.navigate,
		),
		tool.NewFunctionTool("stop_debug_session",
			"Stop the current debug session and close the browser.",
			map[string]any{"type": "object", "properties": map[string]any{}},
			d.stop,
		),
	}
}

func (d *debugTools) start(tc *core.ToolContext, args map[string]any) (string, error) {
	url, err := tool.RequiredStringArg(args, "url")
	if err != nil {
		return "", err
	}

	s := d.session

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.closeLocked(); err != nil {
		tc.LogWarn("debug.session.close_failed", "error", err.Error())
	}

	b, err := s.launch(tc.Context(), tool.BoolArg(args, "headless", true))
	if err != nil {
		return "", fmt.Errorf("failed to start debug session: %w", err)
	}

	info, err := b.Navigate(tc.Context(), url)
	if err != nil {
		_ = b.Close()
		return "", fmt.Errorf("failed to start debug session: %w", err)
	}

	s.browser = b

	tc.LogInfo("debug.session.started", "url", info.URL)

	return tool.JSONResult(map[string]any{
		"success": true,
		"message": fmt.Sprintf("Debug session started for %s", url),
		"url":     info.URL,
		"title":   info.Title,
	})
}

func (d *debugTools) readConsole(_ *core.ToolContext, args map[string]any) (string, error) {
	return d.session.with(func(b Browser) (string, error) {
		kind := tool.StringArg(args, "type")
		filter := strings.ToLower(tool.StringArg(args, "filter"))

		var logs []ConsoleLog
		for _, l := range b.ConsoleLogs() {
			if kind != "" && l.Type != kind {
				continue
			}
			if filter != "" && !strings.Contains(strings.ToLower(l.Text), filter) {
				continue
			}
			logs = append(logs, l)
		}

		logs = tail(logs, tool.IntArg(args, "limit", defaultLimit))
		if len(logs) == 0 {
			return "No console logs captured yet.", nil
		}

		lines := make([]string, 0, len(logs))
		for _, l := range logs {
			line := fmt.Sprintf("[%s] [%s] %s", l.Timestamp.UTC().Format(timeFormat), strings.ToUpper(l.Type), l.Text)
			if l.Location != "" {
				line += "\n   at " + l.Location
			}
			lines = append(lines, line)
		}

		return strings.Join(lines, "\n"), nil
	})
}

func (d *debugTools) readNetwork(_ *core.ToolContext, args map[string]any) (string, error) {
	return d.session.with(func(b Browser) (string, error) {
		filter := strings.ToLower(tool.StringArg(args, "filter"))
		method := tool.StringArg(args, "method")
		status := tool.IntArg(args, "status", 0)

		var reqs []NetworkRequest
		for _, r := range b.NetworkRequests() {
			if filter != "" && !strings.Contains(strings.ToLower(r.URL), filter) {
				continue
			}
			if status != 0 && r.Status != status {
				continue
			}
			if method != "" && !strings.EqualFold(r.Method, method) {
				continue
			}
			reqs = append(reqs, r)
		}

		reqs = tail(reqs, tool.IntArg(args, "limit", defaultLimit))
		if len(reqs) == 0 {
			return "No network requests captured yet.", nil
		}

		entries := make([]string, 0, len(reqs))
		for _, r := range reqs {
			statusStr := "FAILED"
			if !r.Failed && r.Status != 0 {
				statusStr = strings.TrimSpace(fmt.Sprintf("%d %s", r.Status, r.StatusText))
			} else if r.StatusText != "" {
				statusStr += " (" + r.StatusText + ")"
			}

			duration := "-"
			if r.Duration > 0 {
				duration = fmt.Sprintf("%dms", r.Duration.Milliseconds())
			}

			size := "-"
			if r.Size > 0 {
				size = fmt.Sprintf("%.1fKB", float64(r.Size)/1024)
			}

			entries = append(entries, fmt.Sprintf("[%s] %s %s %s %s\n   %s",
				r.Timestamp.UTC().Format(timeFormat), r.Method, statusStr, duration, size, r.URL))
		}

		return strings.Join(entries, "\n\n"), nil
	})
}

func (d *debugTools) screenshot(tc *core.ToolContext, args map[string]any) (string, error) {
	var dst string

	if rel := tool.StringArg(args, "path"); rel != "" {
		abs, err := d.policy.CheckWrite(rel)
		if err != nil {
			return "", tool.GuardrailError("take_screenshot", err)
		}
		dst = abs
	}

	fullPage := tool.BoolArg(args, "fullPage", true)
	selector := tool.StringArg(args, "selector")

	return d.session.with(func(b Browser) (string, error) {
		img, err := b.Screenshot(tc.Context(), fullPage, selector)
		if err != nil {
			return "", fmt.Errorf("screenshot failed: %w", err)
		}

		ref, err := tc.SaveArtifact(fmt.Sprintf("screenshot_%s.png", tc.ToolCallID()), img)
		if err != nil {
			return "", err
		}

		result := map[string]any{"success": true, "artifact": ref, "fullPage": fullPage, "bytes": len(img)}
		if selector != "" {
			result["selector"] = selector
		}

		if dst != "" {
			if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
				return "", err
			}
			if err := os.WriteFile(dst, img, 0o644); err != nil {
				return "", err
			}
			result["path"] = tool.StringArg(args, "path")
		}

		return tool.JSONResult(result)
	})
}

func (d *debugTools) evaluate(tc *core.ToolContext, args map[string]any) (string, error) {
	return d.session.with(func(b Browser) (string, error) {
		res, err := b.Evaluate(tc.Context(), tool.StringArg(args, "script"))
		if err != nil {
			return "", fmt.Errorf("evaluation failed: %w", err)
		}

		return tool.JSONResult(res)
	})
}

func (d *debugTools) click(tc *core.ToolContext, args map[string]any) (string, error) {
	sel := tool.StringArg(args, "selector")

	return d.session.with(func(b Browser) (string, error) {
		if err := b.Click(tc.Context(), sel); err != nil {
			return "", fmt.Errorf("click failed: %w", err)
		}

		return "Clicked element: " + sel, nil
	})
}

func (d *debugTools) typeText(tc *core.ToolContext, args map[string]any) (string, error) {
	sel, text := tool.StringArg(args, "selector"), tool.StringArg(args, "text")

	return d.session.with(func(b Browser) (string, error) {
		if err := b.Type(tc.Context(), sel, text); err != nil {
			return "", fmt.Errorf("type failed: %w", err)
		}

		return fmt.Sprintf("Typed %q into %s", text, sel), nil
	})
}

func (d *debugTools) navigate(tc *core.ToolContext, args map[string]any) (string, error) {
	url := tool.StringArg(args, "url")

	return d.session.with(func(b Browser) (string, error) {
		info, err := b.Navigate(tc.Context(), url)
		if err != nil {
			return "", fmt.Errorf("navigation failed: %w", err)
		}

		return tool.JSONResult(info)
	})
}

func (d *debugTools) stop(tc *core.ToolContext, _ map[string]any) (string, error) {
	s := d.session

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.browser == nil {
		return "No active debug session to stop.", nil
	}

	logs := s.browser.ConsoleLogs()

	errCount := 0
	for _, l := range logs {
		if l.Type == "error" {
			errCount++
		}
	}

	summary := map[string]int{
		"consoleLogs":     len(logs),
		"networkRequests": len(s.browser.NetworkRequests()),
		"errors":          errCount,
	}

	if err := s.closeLocked(); err != nil {
		return "", fmt.Errorf("failed to stop session: %w", err)
	}

	tc.LogInfo("debug.session.stopped", "console_logs", summary["consoleLogs"])

	return tool.JSONResult(map[string]any{"success": true, "message": "Debug session stopped", "summary": summary})
}

const timeFormat = "2006-01-02T15:04:05.000Z"

func tail[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return items[len(items)-n:]
	}
	return items
}

var _ Launcher = LaunchChrome
