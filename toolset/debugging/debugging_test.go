package debugging

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hupe1980/toolmesh/artifact"
	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/guard"
	"github.com/hupe1980/toolmesh/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

type fakeBrowser struct {
	url      string
	clicked  []string
	typed    map[string]string
	closed   bool
	logs     []ConsoleLog
	requests []NetworkRequest
}

func (f *fakeBrowser) Navigate(_ context.Context, url string) (PageInfo, error) {
	if strings.Contains(url, "unreachable") {
		return PageInfo{}, errors.New("net::ERR_NAME_NOT_RESOLVED")
	}
	f.url = url
	return PageInfo{URL: url, Title: "Demo"}, nil
}

func (f *fakeBrowser) Screenshot(context.Context, bool, string) ([]byte, error) {
	return []byte("PNG"), nil
}

func (f *fakeBrowser) Evaluate(_ context.Context, script string) (any, error) {
	if script == "throw" {
		return nil, errors.New("ReferenceError")
	}
	return map[string]any{"answer": 42.0}, nil
}

func (f *fakeBrowser) Click(_ context.Context, sel string) error {
	f.clicked = append(f.clicked, sel)
	return nil
}

func (f *fakeBrowser) Type(_ context.Context, sel, text string) error {
	if f.typed == nil {
		f.typed = map[string]string{}
	}
	f.typed[sel] = text
	return nil
}

func (f *fakeBrowser) ConsoleLogs() []ConsoleLog         { return f.logs }
func (f *fakeBrowser) NetworkRequests() []NetworkRequest { return f.requests }

func (f *fakeBrowser) Close() error {
	f.closed = true
	return nil
}

type harness struct {
	tools     map[string]tool.Tool
	root      string
	launched  []*fakeBrowser
	artifacts *artifact.InMemoryStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	root := t.TempDir()
	policy, err := guard.NewPathPolicy(root)
	require.NoError(t, err)

	h := &harness{tools: map[string]tool.Tool{}, root: root, artifacts: artifact.NewInMemoryStore()}

	session := NewSession(func(context.Context, bool) (Browser, error) {
		b := &fakeBrowser{
			logs: []ConsoleLog{
				{Type: "log", Text: "app booted", Timestamp: t0},
				{Type: "error", Text: "TypeError: x is undefined", Timestamp: t0, Location: "http://localhost/app.js"},
			},
			requests: []NetworkRequest{
				{URL: "http://localhost/api/users", Method: "GET", Status: 200, StatusText: "OK", Timestamp: t0, Duration: 12 * time.Millisecond, Size: 2048},
				{URL: "http://localhost/api/login", Method: "POST", StatusText: "net::ERR_FAILED", Timestamp: t0, Failed: true},
			},
		}
		h.launched = append(h.launched, b)
		return b, nil
	})
	t.Cleanup(func() { _ = session.Close() })

	for _, tl := range Tools(session, policy) {
		h.tools[tl.Name()] = tl
	}

	return h
}

func (h *harness) call(name string, args map[string]any) (string, error) {
	tc := core.NewStandaloneToolContext(context.Background(), "call-1", nil).WithArtifactStore(h.artifacts)
	return h.tools[name].Call(tc, args)
}

func TestToolsRequireSession(t *testing.T) {
	h := newHarness(t)

	for _, name := range []string{"read_console_logs", "read_network_requests", "take_screenshot", "navigate_to"} {
		args := map[string]any{}
		if name == "navigate_to" {
			args["url"] = "http://x"
		}

		_, err := h.call(name, args)
		assert.ErrorIs(t, err, ErrNoSession, name)
	}

	out, err := h.call("stop_debug_session", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "No active debug session to stop.", out)
}

func TestSessionLifecycle(t *testing.T) {
	h := newHarness(t)

	out, err := h.call("start_debug_session", map[string]any{"url": "http://localhost:5173"})
	require.NoError(t, err)
	assert.Contains(t, out, `"title": "Demo"`)

	out, err = h.call("read_console_logs", map[string]any{"type": "error"})
	require.NoError(t, err)
	assert.Equal(t, "[2026-01-02T03:04:05.000Z] [ERROR] TypeError: x is undefined\n   at http://localhost/app.js", out)

	out, err = h.call("read_console_logs", map[string]any{"filter": "nothing"})
	require.NoError(t, err)
	assert.Equal(t, "No console logs captured yet.", out)

	out, err = h.call("read_network_requests", map[string]any{"method": "get"})
	require.NoError(t, err)
	assert.Equal(t, "[2026-01-02T03:04:05.000Z] GET 200 OK 12ms 2.0KB\n   http://localhost/api/users", out)

	out, err = h.call("read_network_requests", map[string]any{"filter": "login"})
	require.NoError(t, err)
	assert.Contains(t, out, "POST FAILED (net::ERR_FAILED) - -")

	_, err = h.call("click_element", map[string]any{"selector": "#go"})
	require.NoError(t, err)
	_, err = h.call("type_text", map[string]any{"selector": "#name", "text": "ada"})
	require.NoError(t, err)

	b := h.launched[0]
	assert.Equal(t, []string{"#go"}, b.clicked)
	assert.Equal(t, "ada", b.typed["#name"])

	out, err = h.call("evaluate_in_page", map[string]any{"script": "({answer: 42})"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"answer": 42}`, out)

	_, err = h.call("evaluate_in_page", map[string]any{"script": "throw"})
	assert.ErrorContains(t, err, "evaluation failed")

	out, err = h.call("stop_debug_session", map[string]any{})
	require.NoError(t, err)

	var stopped map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &stopped))
	assert.Equal(t, map[string]any{"consoleLogs": 2.0, "networkRequests": 2.0, "errors": 1.0}, stopped["summary"])
	assert.True(t, b.closed)
}

func TestStartReplacesExistingSession(t *testing.T) {
	h := newHarness(t)

	_, err := h.call("start_debug_session", map[string]any{"url": "http://a"})
	require.NoError(t, err)
	_, err = h.call("start_debug_session", map[string]any{"url": "http://b"})
	require.NoError(t, err)

	require.Len(t, h.launched, 2)
	assert.True(t, h.launched[0].closed)
	assert.False(t, h.launched[1].closed)
}

func TestStartNavigationFailure(t *testing.T) {
	h := newHarness(t)

	_, err := h.call("start_debug_session", map[string]any{"url": "http://unreachable"})
	assert.ErrorContains(t, err, "failed to start debug session")
	require.Len(t, h.launched, 1)
	assert.True(t, h.launched[0].closed)

	_, err = h.call("read_console_logs", map[string]any{})
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestScreenshot(t *testing.T) {
	h := newHarness(t)

	_, err := h.call("start_debug_session", map[string]any{"url": "http://a"})
	require.NoError(t, err)

	out, err := h.call("take_screenshot", map[string]any{"path": "workspace/screenshots/home.png"})
	require.NoError(t, err)
	assert.Contains(t, out, "artifact://standalone/screenshot_call-1.png")

	data, err := h.artifacts.Get("standalone", "screenshot_call-1.png")
	require.NoError(t, err)
	assert.Equal(t, "PNG", string(data))

	onDisk, err := os.ReadFile(filepath.Join(h.root, "workspace", "screenshots", "home.png"))
	require.NoError(t, err)
	assert.Equal(t, "PNG", string(onDisk))

	_, err = h.call("take_screenshot", map[string]any{"path": "src/home.png"})

	var te *tool.ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, tool.CodeGuardrail, te.Code)
}
