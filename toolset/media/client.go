package media

import (
	"context"
	"io"
)

// ImageRequest describes one text-to-image generation.
type ImageRequest struct {
	Prompt  string
	Size    string
	Quality string
	Style   string
}

// Image is a generated image reference.
type Image struct {
	URL           string `json:"url"`
	RevisedPrompt string `json:"revisedPrompt,omitempty"`
}

// TranscriptionRequest describes one speech-to-text call.
type TranscriptionRequest struct {
	Audio    io.Reader
	Filename string
	Language string
	Prompt   string
}

// SpeechRequest describes one text-to-speech call.
type SpeechRequest struct {
	Text  string
	Voice string
	Speed float64
}

// ChatMessage is one turn of an ai_chat conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is a plain chat completion without tools.
type ChatRequest struct {
	Model       string
	Messages    []ChatMessage
	Temperature float64
	MaxTokens   int64
}

// Usage reports token consumption of a provider call.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens,omitempty"`
	TotalTokens      int64 `json:"total_tokens"`
}

// ChatResponse is the result of Chat.
type ChatResponse struct {
	Content string `json:"content"`
	Model   string `json:"model"`
	Usage   Usage  `json:"usage"`
}

// EmbeddingResponse is the result of Embed.
type EmbeddingResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
	Model      string      `json:"model"`
	Dimensions int         `json:"dimensions"`
	Usage      Usage       `json:"usage"`
}

// Client is the provider surface the media tools depend on.
type Client interface {
	GenerateImage(ctx context.Context, req ImageRequest) (Image, error)
	AnalyzeImage(ctx context.Context, imageURL, prompt string) (string, error)
	Transcribe(ctx context.Context, req TranscriptionRequest) (string, error)
	Speech(ctx context.Context, req SpeechRequest) ([]byte, error)
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	Embed(ctx context.Context, model string, inputs []string) (EmbeddingResponse, error)
}
