package media

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hupe1980/toolmesh/artifact"
	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/guard"
	"github.com/hupe1980/toolmesh/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	imageURL    string
	imageReq    ImageRequest
	analyzedURL string
	transcribed string
	speechReq   SpeechRequest
	chatReq     ChatRequest
	embedInputs []string
	err         error
}

func (f *fakeClient) GenerateImage(_ context.Context, req ImageRequest) (Image, error) {
	f.imageReq = req
	return Image{URL: f.imageURL, RevisedPrompt: "a red fox, watercolor"}, f.err
}

func (f *fakeClient) AnalyzeImage(_ context.Context, url, prompt string) (string, error) {
	f.analyzedURL = url
	return "analysis: " + prompt, f.err
}

func (f *fakeClient) Transcribe(_ context.Context, req TranscriptionRequest) (string, error) {
	b, _ := io.ReadAll(req.Audio)
	f.transcribed = req.Filename + ":" + string(b)
	return "hello world", f.err
}

func (f *fakeClient) Speech(_ context.Context, req SpeechRequest) ([]byte, error) {
	f.speechReq = req
	return []byte("ID3-audio"), f.err
}

func (f *fakeClient) Chat(_ context.Context, req ChatRequest) (ChatResponse, error) {
	f.chatReq = req
	return ChatResponse{Content: "pong", Model: req.Model, Usage: Usage{PromptTokens: 3, TotalTokens: 4}}, f.err
}

func (f *fakeClient) Embed(_ context.Context, model string, inputs []string) (EmbeddingResponse, error) {
	f.embedInputs = inputs
	return EmbeddingResponse{Embeddings: [][]float64{{0.1, 0.2}}, Model: model, Dimensions: 2}, f.err
}

type env struct {
	tools     map[string]tool.Tool
	root      string
	client    *fakeClient
	artifacts *artifact.InMemoryStore
}

func setup(t *testing.T) *env {
	t.Helper()

	root := t.TempDir()
	policy, err := guard.NewPathPolicy(root)
	require.NoError(t, err)

	e := &env{tools: map[string]tool.Tool{}, root: root, client: &fakeClient{}, artifacts: artifact.NewInMemoryStore()}
	for _, tl := range Tools(e.client, policy) {
		e.tools[tl.Name()] = tl
	}

	return e
}

func (e *env) call(t *testing.T, name string, args map[string]any) (string, error) {
	t.Helper()

	tc := core.NewStandaloneToolContext(context.Background(), "c", nil).WithArtifactStore(e.artifacts)

	return e.tools[name].Call(tc, args)
}

func (e *env) decode(t *testing.T, name string, args map[string]any) map[string]any {
	t.Helper()

	out, err := e.call(t, name, args)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &m))

	return m
}

func TestGenerateImage_SavesDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("PNGDATA"))
	}))
	defer srv.Close()

	e := setup(t)
	e.client.imageURL = srv.URL + "/img.png"

	m := e.decode(t, "generate_image", map[string]any{"prompt": "a fox", "savePath": "workspace/img/fox.png"})
	assert.Equal(t, "workspace/img/fox.png", m["savedTo"])
	assert.Equal(t, ImageRequest{Prompt: "a fox", Size: "1024x1024", Quality: "standard", Style: "vivid"}, e.client.imageReq)

	data, err := os.ReadFile(filepath.Join(e.root, "workspace", "img", "fox.png"))
	require.NoError(t, err)
	assert.Equal(t, "PNGDATA", string(data))
}

func TestGenerateImage_GuardedSavePath(t *testing.T) {
	e := setup(t)

	_, err := e.call(t, "generate_image", map[string]any{"prompt": "a fox", "savePath": "src/fox.png"})

	var te *tool.ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, tool.CodeGuardrail, te.Code)
	assert.Empty(t, e.client.imageReq.Prompt, "provider must not be called")
}

func TestAnalyzeImage(t *testing.T) {
	e := setup(t)
	require.NoError(t, os.WriteFile(filepath.Join(e.root, "shot.png"), []byte{0x89, 'P', 'N', 'G'}, 0o644))

	out, err := e.call(t, "analyze_image", map[string]any{"imagePath": "shot.png"})
	require.NoError(t, err)
	assert.Equal(t, "analysis: Describe this image in detail.", out)
	assert.True(t, strings.HasPrefix(e.client.analyzedURL, "data:image/png;base64,"))

	_, err = e.call(t, "analyze_image", map[string]any{"imageUrl": "https://example.com/a.jpg", "prompt": "count cats"})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a.jpg", e.client.analyzedURL)

	_, err = e.call(t, "analyze_image", map[string]any{})

	var te *tool.ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, tool.CodeValidation, te.Code)
}

func TestTranscribeAudio(t *testing.T) {
	e := setup(t)
	require.NoError(t, os.WriteFile(filepath.Join(e.root, "memo.mp3"), []byte("audio"), 0o644))

	m := e.decode(t, "transcribe_audio", map[string]any{"audioPath": "memo.mp3"})
	assert.Equal(t, "hello world", m["text"])
	assert.Equal(t, "auto-detected", m["language"])
	assert.Equal(t, "memo.mp3:audio", e.client.transcribed)
}

func TestTextToSpeech_StoresArtifact(t *testing.T) {
	e := setup(t)

	m := e.decode(t, "text_to_speech", map[string]any{"text": "hi there", "voice": "nova", "outputPath": "workspace/hi.mp3"})
	assert.Equal(t, SpeechRequest{Text: "hi there", Voice: "nova", Speed: 1.0}, e.client.speechReq)

	ref := m["artifact"].(string)
	require.True(t, strings.HasPrefix(ref, "artifact://standalone/speech_"))

	ids, err := e.artifacts.List("standalone")
	require.NoError(t, err)
	require.Len(t, ids, 1)

	data, err := e.artifacts.Get("standalone", ids[0])
	require.NoError(t, err)
	assert.Equal(t, "ID3-audio", string(data))

	onDisk, err := os.ReadFile(filepath.Join(e.root, "workspace", "hi.mp3"))
	require.NoError(t, err)
	assert.Equal(t, "ID3-audio", string(onDisk))
}

func TestAIChat(t *testing.T) {
	e := setup(t)

	m := e.decode(t, "ai_chat", map[string]any{
		"messages": []any{
			map[string]any{"role": "system", "content": "be terse"},
			map[string]any{"role": "user", "content": "ping"},
		},
		"maxTokens": float64(64),
	})
	assert.Equal(t, "pong", m["content"])
	assert.Equal(t, "gpt-4o", m["model"])
	assert.Equal(t, int64(64), e.client.chatReq.MaxTokens)
	assert.InDelta(t, 0.7, e.client.chatReq.Temperature, 1e-9)
	require.Len(t, e.client.chatReq.Messages, 2)
}

func TestGenerateEmbeddings(t *testing.T) {
	e := setup(t)

	m := e.decode(t, "generate_embeddings", map[string]any{"text": "one"})
	assert.Equal(t, []string{"one"}, e.client.embedInputs)
	assert.Equal(t, DefaultEmbeddingModel, m["model"])

	e.decode(t, "generate_embeddings", map[string]any{"text": []any{"a", "b"}})
	assert.Equal(t, []string{"a", "b"}, e.client.embedInputs)
}

func TestProviderErrorSurfaces(t *testing.T) {
	e := setup(t)
	e.client.err = errors.New("quota exceeded")

	_, err := e.call(t, "ai_chat", map[string]any{"messages": []any{map[string]any{"role": "user", "content": "x"}}})
	assert.ErrorContains(t, err, "quota exceeded")
}
