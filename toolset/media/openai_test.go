package media

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewOpenAIClient(func(o *OpenAIOptions) {
		o.APIKey = "test"
		o.RequestOptions = []option.RequestOption{option.WithBaseURL(srv.URL + "/v1/"), option.WithMaxRetries(0)}
	})
}

func TestOpenAIClient_Embed(t *testing.T) {
	var body map[string]any

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/embeddings"))
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"object": "list",
			"model": "text-embedding-3-small",
			"data": [
				{"object": "embedding", "index": 0, "embedding": [0.1, 0.2, 0.3]},
				{"object": "embedding", "index": 1, "embedding": [0.4, 0.5, 0.6]}
			],
			"usage": {"prompt_tokens": 4, "total_tokens": 4}
		}`)
	})

	resp, err := c.Embed(context.Background(), DefaultEmbeddingModel, []string{"a", "b"})
	require.NoError(t, err)

	assert.Equal(t, []any{"a", "b"}, body["input"])
	assert.Equal(t, 3, resp.Dimensions)
	assert.Len(t, resp.Embeddings, 2)
	assert.Equal(t, int64(4), resp.Usage.TotalTokens)
}

func TestOpenAIClient_Chat(t *testing.T) {
	var body map[string]any

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1", "object": "chat.completion", "created": 1700000000, "model": "gpt-4o",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "pong"}}],
			"usage": {"prompt_tokens": 5, "completion_tokens": 1, "total_tokens": 6}
		}`)
	})

	resp, err := c.Chat(context.Background(), ChatRequest{
		Model:       DefaultChatModel,
		Messages:    []ChatMessage{{Role: "system", Content: "terse"}, {Role: "user", Content: "ping"}},
		Temperature: 0.2,
		MaxTokens:   32,
	})
	require.NoError(t, err)

	assert.Equal(t, "pong", resp.Content)
	assert.Equal(t, int64(6), resp.Usage.TotalTokens)

	msgs := body["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, 32.0, body["max_tokens"])
}

func TestOpenAIClient_Speech(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/audio/speech"))
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("mp3bytes"))
	})

	audio, err := c.Speech(context.Background(), SpeechRequest{Text: "hi", Voice: "alloy", Speed: 1})
	require.NoError(t, err)
	assert.Equal(t, "mp3bytes", string(audio))
}
