package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOf(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func toolsByName(optFns ...func(o *Options)) map[string]tool.Tool {
	out := map[string]tool.Tool{}
	for _, tl := range Tools(optFns...) {
		out[tl.Name()] = tl
	}
	return out
}

func call(t *testing.T, tl tool.Tool, args map[string]any) (string, error) {
	t.Helper()
	return tl.Call(core.NewStandaloneToolContext(context.Background(), "c", nil), args)
}

func TestWebSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "golang generics", r.URL.Query().Get("q"))
		assert.Equal(t, "secret", r.URL.Query().Get("api_key"))
		assert.Equal(t, "2", r.URL.Query().Get("num"))

		_, _ = w.Write([]byte(`{"organic_results":[
			{"title":"Go","link":"https://go.dev","snippet":"The Go language"},
			{"title":"Tour","link":"https://go.dev/tour"},
			{"title":"Extra","link":"https://x"}
		]}`))
	}))
	defer srv.Close()

	tools := toolsByName(func(o *Options) {
		o.SerpAPIURL = srv.URL
		o.Getenv = envOf(map[string]string{"SERPAPI_KEY": "secret"})
	})

	out, err := call(t, tools["web_search"], map[string]any{"query": "golang generics", "num_results": 2.0})
	require.NoError(t, err)
	assert.Equal(t, "1. Go\n   https://go.dev\n   The Go language\n\n2. Tour\n   https://go.dev/tour\n   No description available", out)
}

func TestWebSearch_MissingKey(t *testing.T) {
	tools := toolsByName(func(o *Options) { o.Getenv = envOf(nil) })

	_, err := call(t, tools["web_search"], map[string]any{"query": "x"})
	assert.ErrorIs(t, err, ErrMissingKey)

	_, err = call(t, tools["web_code_search"], map[string]any{"query": "x"})
	assert.ErrorIs(t, err, ErrMissingKey)
}

func TestWebSearch_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"Invalid API key"}`))
	}))
	defer srv.Close()

	tools := toolsByName(func(o *Options) {
		o.SerpAPIURL = srv.URL
		o.Getenv = envOf(map[string]string{"SERPAPI_KEY": "bad"})
	})

	_, err := call(t, tools["web_search"], map[string]any{"query": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid API key")
}

func TestWebCodeSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/code", r.URL.Path)
		assert.Equal(t, "errgroup language:go", r.URL.Query().Get("q"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		_, _ = w.Write([]byte(`{"total_count":42,"items":[
			{"path":"errgroup.go","html_url":"https://github.com/golang/sync/blob/master/errgroup/errgroup.go",
			 "repository":{"full_name":"golang/sync","html_url":"https://github.com/golang/sync"}}
		]}`))
	}))
	defer srv.Close()

	tools := toolsByName(func(o *Options) {
		o.GitHubURL = srv.URL
		o.Getenv = envOf(map[string]string{"GITHUB_TOKEN": "tok"})
	})

	out, err := call(t, tools["web_code_search"], map[string]any{"query": "errgroup", "language": "go"})
	require.NoError(t, err)
	assert.Contains(t, out, "Found 42 results (showing 1)")
	assert.Contains(t, out, "1. golang/sync/errgroup.go")
}

func TestWebCodeSearch_NoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"total_count":0,"items":[]}`))
	}))
	defer srv.Close()

	tools := toolsByName(func(o *Options) {
		o.GitHubURL = srv.URL
		o.Getenv = envOf(map[string]string{"GITHUB_TOKEN": "tok"})
	})

	out, err := call(t, tools["web_code_search"], map[string]any{"query": "zzz"})
	require.NoError(t, err)
	assert.Equal(t, "No code results found for: zzz", out)
}

func TestClampResults(t *testing.T) {
	assert.Equal(t, 5, clampResults(0))
	assert.Equal(t, 3, clampResults(3))
	assert.Equal(t, 10, clampResults(50))
}
