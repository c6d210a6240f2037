// Package media provides the AI and media tools: image generation and
// analysis, transcription, speech synthesis, chat and embeddings.
//
// Provider calls go through the Client interface; files are read through
// guard.PathPolicy.CheckRead and written through CheckWrite. Synthesized
// audio is always stored as a run artifact.
package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/guard"
	"github.com/hupe1980/toolmesh/tool"
	"github.com/oklog/ulid/v2"
)

// ErrImageSourceRequired is returned when analyze_image gets neither a URL
// nor a path.
var ErrImageSourceRequired = errors.New("either imageUrl or imagePath is required")

// Options configures the media tools.
type Options struct {
	HTTPClient   *http.Client
	MaxFileBytes int64
}

type mediaTools struct {
	client Client
	policy *guard.PathPolicy
	opts   Options
}

// Tools returns the media tools backed by client.
func Tools(client Client, policy *guard.PathPolicy, optFns ...func(o *Options)) []tool.Tool {
	opts := Options{
		HTTPClient:   &http.Client{Timeout: 60 * time.Second},
		MaxFileBytes: 25 << 20,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	m := &mediaTools{client: client, policy: policy, opts: opts}

	str := func(desc string) map[string]any { return map[string]any{"type": "string", "description": desc} }
	enum := func(desc string, values ...string) map[string]any {
		return map[string]any{"type": "string", "enum": values, "description": desc}
	}

	return []tool.Tool{
		tool.NewFunctionTool("generate_image",
			"Generate an image using DALL-E 3. Can save to disk.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"prompt":   str("Detailed description of the image to generate"),
					"size":     enum("Image size (default: 1024x1024)", "1024x1024", "1792x1024", "1024x1792"),
					"quality":  enum("Image quality (default: standard)", "standard", "hd"),
					"style":    enum("Image style (default: vivid)", "vivid", "natural"),
					"savePath": str("Path to save the image (optional)"),
				},
				"required": []string{"prompt"},
			},
			m.generateImage,
		).WithPathKey("savePath"),
		tool.NewFunctionTool("analyze_image",
			"Analyze an image using GPT-4 Vision. Provide either a URL or local file path.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"imageUrl":  str("URL of image to analyze"),
					"imagePath": str("Local path to image file"),
					"prompt":    str("What to analyze or ask about the image (default: describe in detail)"),
				},
			},
			m.analyzeImage,
		),
		tool.NewFunctionTool("transcribe_audio",
			"Transcribe audio to text using OpenAI Whisper.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"audioPath": str("Path to audio file (mp3, wav, etc.)"),
					"language":  str(`Language code (e.g., "en", "es"); auto-detected if not specified`),
					"prompt":    str("Optional context to improve transcription accuracy"),
				},
				"required": []string{"audioPath"},
			},
			m.transcribeAudio,
		),
		tool.NewFunctionTool("text_to_speech",
			"Convert text to speech audio using OpenAI TTS. The audio is stored as a run artifact and optionally written to outputPath.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"text":       str("Text to convert to speech"),
					"voice":      enum("Voice to use (default: alloy)", "alloy", "echo", "fable", "onyx", "nova", "shimmer"),
					"outputPath": str("Path to save audio file (optional)"),
					"speed":      map[string]any{"type": "number", "description": "Speed multiplier 0.25-4.0 (default: 1.0)"},
				},
				"required": []string{"text"},
			},
			m.textToSpeech,
		).WithPathKey("outputPath"),
		tool.NewFunctionTool("ai_chat",
			"General AI chat completion using OpenAI GPT-4.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"messages": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"role":    enum("Message role", "system", "user", "assistant"),
								"content": str("Message text"),
							},
							"required": []string{"role", "content"},
						},
						"description": "Array of chat messages",
					},
					"model":       str("Model to use (default: gpt-4o)"),
					"temperature": map[string]any{"type": "number", "description": "Creativity 0-2 (default: 0.7)"},
					"maxTokens":   map[string]any{"type": "integer", "description": "Max response tokens (default: 4096)"},
				},
				"required": []string{"messages"},
			},
			m.aiChat,
		),
		tool.NewFunctionTool("generate_embeddings",
			"Generate vector embeddings for text using OpenAI.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"text": map[string]any{
						"oneOf": []any{
							map[string]any{"type": "string"},
							map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
						},
						"description": "Text or array of texts to embed",
					},
					"model": str("Embedding model (default: text-embedding-3-small)"),
				},
				"required": []string{"text"},
			},
			m.generateEmbeddings,
		),
	}
}

func (m *mediaTools) generateImage(tc *core.ToolContext, args map[string]any) (string, error) {
	prompt, err := tool.RequiredStringArg(args, "prompt")
	if err != nil {
		return "", err
	}

	var savePath string
	if rel := tool.StringArg(args, "savePath"); rel != "" {
		if savePath, err = m.policy.CheckWrite(rel); err != nil {
			return "", tool.GuardrailError("generate_image", err)
		}
	}

	img, err := m.client.GenerateImage(tc.Context(), ImageRequest{
		Prompt:  prompt,
		Size:    stringOr(args, "size", "1024x1024"),
		Quality: stringOr(args, "quality", "standard"),
		Style:   stringOr(args, "style", "vivid"),
	})
	if err != nil {
		return "", err
	}

	var savedTo any
	if savePath != "" {
		if err := m.download(tc.Context(), img.URL, savePath); err != nil {
			return "", fmt.Errorf("save image: %w", err)
		}
		savedTo = tool.StringArg(args, "savePath")
	}

	return tool.JSONResult(map[string]any{
		"success":       true,
		"url":           img.URL,
		"revisedPrompt": img.RevisedPrompt,
		"savedTo":       savedTo,
	})
}

func (m *mediaTools) analyzeImage(tc *core.ToolContext, args map[string]any) (string, error) {
	prompt := stringOr(args, "prompt", "Describe this image in detail.")

	imageURL := tool.StringArg(args, "imageUrl")
	if imageURL == "" {
		rel := tool.StringArg(args, "imagePath")
		if rel == "" {
			return "", &tool.ValidationError{Field: "imagePath", Message: ErrImageSourceRequired.Error()}
		}

		data, err := m.readFile(rel)
		if err != nil {
			return "", err
		}

		mime := "image/jpeg"
		if strings.EqualFold(filepath.Ext(rel), ".png") {
			mime = "image/png"
		}

		imageURL = "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
	}

	return m.client.AnalyzeImage(tc.Context(), imageURL, prompt)
}

func (m *mediaTools) transcribeAudio(tc *core.ToolContext, args map[string]any) (string, error) {
	rel := tool.StringArg(args, "audioPath")

	data, err := m.readFile(rel)
	if err != nil {
		return "", err
	}

	language := tool.StringArg(args, "language")

	text, err := m.client.Transcribe(tc.Context(), TranscriptionRequest{
		Audio:    bytes.NewReader(data),
		Filename: filepath.Base(rel),
		Language: language,
		Prompt:   tool.StringArg(args, "prompt"),
	})
	if err != nil {
		return "", err
	}

	if language == "" {
		language = "auto-detected"
	}

	return tool.JSONResult(map[string]any{"success": true, "text": text, "language": language})
}

func (m *mediaTools) textToSpeech(tc *core.ToolContext, args map[string]any) (string, error) {
	text, err := tool.RequiredStringArg(args, "text")
	if err != nil {
		return "", err
	}

	var outPath string
	if rel := tool.StringArg(args, "outputPath"); rel != "" {
		if outPath, err = m.policy.CheckWrite(rel); err != nil {
			return "", tool.GuardrailError("text_to_speech", err)
		}
	}

	voice := stringOr(args, "voice", "alloy")

	speed := 1.0
	if v, ok := args["speed"].(float64); ok && v > 0 {
		speed = v
	}

	audio, err := m.client.Speech(tc.Context(), SpeechRequest{Text: text, Voice: voice, Speed: speed})
	if err != nil {
		return "", err
	}

	ref, err := tc.SaveArtifact("speech_"+strings.ToLower(ulid.Make().String())+".mp3", audio)
	if err != nil {
		return "", err
	}

	result := map[string]any{
		"success":    true,
		"artifact":   ref,
		"voice":      voice,
		"textLength": len([]rune(text)),
	}

	if outPath != "" {
		if err := writeFile(outPath, audio); err != nil {
			return "", err
		}
		result["outputPath"] = tool.StringArg(args, "outputPath")
	}

	return tool.JSONResult(result)
}

func (m *mediaTools) aiChat(tc *core.ToolContext, args map[string]any) (string, error) {
	raw, _ := args["messages"].([]any)

	messages := make([]ChatMessage, 0, len(raw))
	for i, r := range raw {
		obj, ok := r.(map[string]any)
		if !ok {
			return "", &tool.ValidationError{Field: fmt.Sprintf("messages[%d]", i), Message: "must be an object"}
		}
		messages = append(messages, ChatMessage{Role: tool.StringArg(obj, "role"), Content: tool.StringArg(obj, "content")})
	}

	if len(messages) == 0 {
		return "", &tool.ValidationError{Field: "messages", Message: "must contain at least one message"}
	}

	temperature := 0.7
	if v, ok := args["temperature"].(float64); ok {
		temperature = v
	}

	resp, err := m.client.Chat(tc.Context(), ChatRequest{
		Model:       stringOr(args, "model", DefaultChatModel),
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   int64(tool.IntArg(args, "maxTokens", 4096)),
	})
	if err != nil {
		return "", err
	}

	return tool.JSONResult(resp)
}

func (m *mediaTools) generateEmbeddings(tc *core.ToolContext, args map[string]any) (string, error) {
	var inputs []string

	switch v := args["text"].(type) {
	case string:
		inputs = []string{v}
	default:
		inputs = tool.StringSliceArg(args, "text")
	}

	if len(inputs) == 0 {
		return "", &tool.ValidationError{Field: "text", Message: "must be a string or a non-empty array of strings"}
	}

	resp, err := m.client.Embed(tc.Context(), stringOr(args, "model", DefaultEmbeddingModel), inputs)
	if err != nil {
		return "", err
	}

	return tool.JSONResult(resp)
}

func (m *mediaTools) readFile(rel string) ([]byte, error) {
	abs, err := m.policy.CheckRead(rel)
	if err != nil {
		return nil, tool.GuardrailError("media", err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("file not found: %s", rel)
	}

	if m.opts.MaxFileBytes > 0 && info.Size() > m.opts.MaxFileBytes {
		return nil, fmt.Errorf("file %s is too large: %d bytes (max %d)", rel, info.Size(), m.opts.MaxFileBytes)
	}

	return os.ReadFile(abs)
}

func (m *mediaTools) download(ctx context.Context, url, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := m.opts.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download returned %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, m.opts.MaxFileBytes+1))
	if err != nil {
		return err
	}

	return writeFile(dst, data)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}

func stringOr(args map[string]any, key, def string) string {
	if s := tool.StringArg(args, key); s != "" {
		return s
	}

	return def
}
