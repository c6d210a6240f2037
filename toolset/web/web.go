// Package web provides web_search (Google results through SerpAPI) and
// web_code_search (GitHub code search). API keys are looked up on every call
// so secrets loaded during a run take effect immediately.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/tool"
)

const (
	DefaultSerpAPIURL = "https://serpapi.com/search"
	DefaultGitHubURL  = "https://api.github.com"

	defaultResults = 5
	maxResults     = 10
)

// ErrMissingKey is returned when the provider credential is not configured.
var ErrMissingKey = errors.New("api key not configured")

// Options configures the web tools.
type Options struct {
	SerpAPIURL string
	GitHubURL  string
	HTTPClient *http.Client
	// Getenv resolves SERPAPI_KEY and GITHUB_TOKEN. Defaults to os.Getenv.
	Getenv func(string) string
}

type webTools struct {
	opts Options
}

// Tools returns the web access tools.
func Tools(optFns ...func(o *Options)) []tool.Tool {
	opts := Options{
		SerpAPIURL: DefaultSerpAPIURL,
		GitHubURL:  DefaultGitHubURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Getenv:     os.Getenv,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	wt := &webTools{opts: opts}

	return []tool.Tool{
		tool.NewFunctionTool("web_search",
			"Search the web using Google Search via SerpAPI. Returns titles, URLs, and snippets.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query":       map[string]any{"type": "string", "description": "Search query"},
					"num_results": map[string]any{"type": "integer", "description": "Number of results to return (default: 5, max: 10)"},
				},
				"required": []string{"query"},
			},
			wt.search,
		),
		tool.NewFunctionTool("web_code_search",
			"Search for code on GitHub. Useful for finding code examples, libraries, and implementations.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query":       map[string]any{"type": "string", "description": `Code search query (e.g., "context cancellation")`},
					"language":    map[string]any{"type": "string", "description": `Optional programming language filter (e.g., "go", "python")`},
					"num_results": map[string]any{"type": "integer", "description": "Number of results to return (default: 5, max: 10)"},
				},
				"required": []string{"query"},
			},
			wt.codeSearch,
		),
	}
}

type serpResponse struct {
	OrganicResults []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic_results"`
	Error string `json:"error"`
}

func (wt *webTools) search(tc *core.ToolContext, args map[string]any) (string, error) {
	key := wt.opts.Getenv("SERPAPI_KEY")
	if key == "" {
		return "", fmt.Errorf("%w: set SERPAPI_KEY (https://serpapi.com/)", ErrMissingKey)
	}

	query, err := tool.RequiredStringArg(args, "query")
	if err != nil {
		return "", err
	}

	n := clampResults(tool.IntArg(args, "num_results", defaultResults))

	q := url.Values{}
	q.Set("q", query)
	q.Set("api_key", key)
	q.Set("num", fmt.Sprint(n))

	var resp serpResponse
	if err := wt.getJSON(tc.Context(), wt.opts.SerpAPIURL+"?"+q.Encode(), nil, &resp); err != nil {
		return "", fmt.Errorf("web search failed: %w", err)
	}

	if resp.Error != "" {
		return "", fmt.Errorf("web search failed: %s", resp.Error)
	}

	if len(resp.OrganicResults) == 0 {
		return "No results found for: " + query, nil
	}

	var b strings.Builder

	for i, r := range resp.OrganicResults {
		if i >= n {
			break
		}

		snippet := r.Snippet
		if snippet == "" {
			snippet = "No description available"
		}

		if i > 0 {
			b.WriteString("\n\n")
		}

		fmt.Fprintf(&b, "%d. %s\n   %s\n   %s", i+1, r.Title, r.Link, snippet)
	}

	return b.String(), nil
}

type githubCodeResponse struct {
	TotalCount int `json:"total_count"`
	Items      []struct {
		Path       string `json:"path"`
		HTMLURL    string `json:"html_url"`
		Repository struct {
			FullName string `json:"full_name"`
			HTMLURL  string `json:"html_url"`
		} `json:"repository"`
	} `json:"items"`
	Message string `json:"message"`
}

func (wt *webTools) codeSearch(tc *core.ToolContext, args map[string]any) (string, error) {
	token := wt.opts.Getenv("GITHUB_TOKEN")
	if token == "" {
		return "", fmt.Errorf("%w: set GITHUB_TOKEN (https://github.com/settings/tokens)", ErrMissingKey)
	}

	query, err := tool.RequiredStringArg(args, "query")
	if err != nil {
		return "", err
	}

	if lang := tool.StringArg(args, "language"); lang != "" {
		query += " language:" + lang
	}

	n := clampResults(tool.IntArg(args, "num_results", defaultResults))

	q := url.Values{}
	q.Set("q", query)
	q.Set("per_page", fmt.Sprint(n))

	headers := map[string]string{
		"Authorization":        "Bearer " + token,
		"Accept":               "application/vnd.github+json",
		"X-GitHub-Api-Version": "2022-11-28",
	}

	var resp githubCodeResponse
	if err := wt.getJSON(tc.Context(), strings.TrimRight(wt.opts.GitHubURL, "/")+"/search/code?"+q.Encode(), headers, &resp); err != nil {
		return "", fmt.Errorf("code search failed: %w", err)
	}

	if len(resp.Items) == 0 {
		return "No code results found for: " + tool.StringArg(args, "query"), nil
	}

	lines := make([]string, 0, len(resp.Items))
	for i, item := range resp.Items {
		lines = append(lines, fmt.Sprintf("%d. %s/%s\n   %s\n   Repository: %s",
			i+1, item.Repository.FullName, item.Path, item.HTMLURL, item.Repository.HTMLURL))
	}

	return fmt.Sprintf("Found %d results (showing %d):\n\n%s", resp.TotalCount, len(lines), strings.Join(lines, "\n\n")), nil
}

func (wt *webTools) getJSON(ctx context.Context, rawURL string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := wt.opts.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}

		_ = json.Unmarshal(body, &apiErr)

		msg := apiErr.Message
		if msg == "" {
			msg = apiErr.Error
		}

		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}

		return fmt.Errorf("status %d: %s", resp.StatusCode, msg)
	}

	return json.Unmarshal(body, out)
}

func clampResults(n int) int {
	if n <= 0 {
		return defaultResults
	}

	return min(n, maxResults)
}
