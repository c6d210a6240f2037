package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/toolmesh"
	"github.com/hupe1980/toolmesh/guard"
	"github.com/hupe1980/toolmesh/model"
	"github.com/hupe1980/toolmesh/task"
	"github.com/hupe1980/toolmesh/toolset"
)

var fixedNow = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

func newServer(t *testing.T, turns ...model.Turn) (*httptest.Server, *toolmesh.ToolMesh) {
	t.Helper()

	return newServerWithModel(t, model.NewScriptedModel(turns...))
}

func newServerWithModel(t *testing.T, m model.Model) (*httptest.Server, *toolmesh.ToolMesh) {
	t.Helper()

	paths, err := guard.NewPathPolicy(t.TempDir())
	require.NoError(t, err)

	mesh, err := toolmesh.New(m, toolset.Deps{Paths: paths, Tasks: task.NewTracker()})
	require.NoError(t, err)

	srv := httptest.NewServer(New(mesh, func(o *Options) {
		o.Now = func() time.Time { return fixedNow }
	}).Handler())
	t.Cleanup(srv.Close)

	return srv, mesh
}

func postChat(t *testing.T, srv *httptest.Server, body string) (*http.Response, map[string]any) {
	t.Helper()

	resp, err := http.Post(srv.URL+"/api/chat", "application/json", strings.NewReader(body))
	require.NoError(t, err)

	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))

	return resp, out
}

func getJSON(t *testing.T, url string) (int, map[string]any) {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)

	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))

	return resp.StatusCode, out
}

func TestChat_Success(t *testing.T) {
	srv, _ := newServer(t,
		model.ToolCallTurn("", model.Call("c1", "get_task_list", map[string]any{})),
		model.TextTurn("No tasks yet.", model.StopEndTurn),
	)

	resp, out := postChat(t, srv, `{"message":"what are my tasks?"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	assert.Equal(t, "No tasks yet.", out["response"])
	assert.NotEmpty(t, out["run_id"])
	assert.EqualValues(t, 2, out["iterations"])
	assert.Contains(t, out, "usage")
	assert.Greater(t, out["cost"], 0.0)
	assert.Equal(t, "2025-01-02T03:04:05Z", out["timestamp"])

	status, conv := getJSON(t, srv.URL+"/api/conversations/"+out["run_id"].(string))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "what are my tasks?", conv["request"])
	assert.Len(t, conv["messages"], 4)

	status, list := getJSON(t, srv.URL+"/api/conversations?limit=5")
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, list["conversations"], 1)
}

func TestChat_BadRequests(t *testing.T) {
	srv, _ := newServer(t)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing", `{}`, "Message is required"},
		{"blank", `{"message":"   "}`, "Message is required"},
		{"malformed", `{"message":`, "invalid request body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, out := postChat(t, srv, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.want, out["error"])
		})
	}
}

func TestChat_ProviderError(t *testing.T) {
	srv, _ := newServer(t, model.Turn{Err: errors.New("provider unavailable")})

	resp, out := postChat(t, srv, `{"message":"hi"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, out["error"], "provider unavailable")
}

func TestHealthAndTools(t *testing.T) {
	srv, mesh := newServer(t)

	status, health := getJSON(t, srv.URL+"/health")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", health["status"])
	assert.EqualValues(t, mesh.Catalog().Len(), health["tools"])
	assert.Equal(t, "2025-01-02T03:04:05Z", health["timestamp"])

	status, tools := getJSON(t, srv.URL+"/api/tools")
	assert.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, mesh.Catalog().Len(), tools["count"])

	cats, ok := tools["categories"].([]any)
	require.True(t, ok)
	assert.Equal(t, "File Operations", cats[0].(map[string]any)["name"])
}

func TestArtifacts(t *testing.T) {
	srv, mesh := newServer(t)
	require.NoError(t, mesh.Artifacts().Save("run-1", "note.txt", []byte("hello artifact")))

	resp, err := http.Get(srv.URL + "/api/artifacts/run-1/note.txt")
	require.NoError(t, err)

	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")

	status, out := getJSON(t, srv.URL+"/api/artifacts/run-1/missing.png")
	assert.Equal(t, http.StatusNotFound, status)
	assert.NotEmpty(t, out["error"])
}

func TestNotFoundAndCancel(t *testing.T) {
	srv, _ := newServer(t)

	status, _ := getJSON(t, srv.URL+"/api/conversations/nope")
	assert.Equal(t, http.StatusNotFound, status)

	resp, err := http.Post(srv.URL+"/api/runs/nope/cancel", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// blockingModel parks every Generate call until the run is cancelled.
type blockingModel struct {
	started chan struct{}
}

func (m *blockingModel) Generate(ctx context.Context, _ model.Request) (*model.Response, error) {
	m.started <- struct{}{}
	<-ctx.Done()

	return nil, ctx.Err()
}

func (m *blockingModel) Info() model.Info { return model.Info{Name: "blocking", Provider: "test"} }

func TestCancelInFlightRun(t *testing.T) {
	m := &blockingModel{started: make(chan struct{}, 1)}
	srv, mesh := newServerWithModel(t, m)

	type chatResult struct {
		status int
		body   map[string]any
	}

	done := make(chan chatResult, 1)
	go func() {
		resp, err := http.Post(srv.URL+"/api/chat", "application/json", strings.NewReader(`{"message":"long task","run_id":"run-live"}`))
		if err != nil {
			done <- chatResult{}
			return
		}
		defer resp.Body.Close()

		var out map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&out)
		done <- chatResult{status: resp.StatusCode, body: out}
	}()

	select {
	case <-m.started:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not start")
	}

	assert.Equal(t, []string{"run-live"}, mesh.Active())

	status, runs := getJSON(t, srv.URL+"/api/runs")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{"run-live"}, runs["runs"])

	resp, err := http.Post(srv.URL+"/api/runs/run-live/cancel", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	select {
	case res := <-done:
		assert.Equal(t, http.StatusConflict, res.status)
		assert.Equal(t, "run cancelled", res.body["error"])
	case <-time.After(5 * time.Second):
		t.Fatal("chat request did not return after cancel")
	}

	assert.Empty(t, mesh.Active())
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newServer(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/chat", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
