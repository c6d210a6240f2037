package media

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Default provider models.
const (
	DefaultImageModel         = openai.ImageModelDallE3
	DefaultVisionModel        = openai.ChatModelGPT4o
	DefaultChatModel          = openai.ChatModelGPT4o
	DefaultTranscriptionModel = openai.AudioModelWhisper1
	DefaultSpeechModel        = openai.SpeechModelTTS1HD
	DefaultEmbeddingModel     = "text-embedding-3-small"
)

// OpenAIOptions configures OpenAIClient.
type OpenAIOptions struct {
	APIKey         string
	RequestOptions []option.RequestOption
}

// OpenAIClient implements Client on the OpenAI API.
type OpenAIClient struct {
	client openai.Client
}

// NewOpenAIClient creates a Client backed by the official OpenAI SDK.
func NewOpenAIClient(optFns ...func(o *OpenAIOptions)) *OpenAIClient {
	var opts OpenAIOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	clientOpts := append([]option.RequestOption{}, opts.RequestOptions...)
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	return &OpenAIClient{client: openai.NewClient(clientOpts...)}
}

// GenerateImage implements Client.
func (c *OpenAIClient) GenerateImage(ctx context.Context, req ImageRequest) (Image, error) {
	resp, err := c.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Model:          DefaultImageModel,
		Prompt:         req.Prompt,
		N:              openai.Int(1),
		Size:           openai.ImageGenerateParamsSize(req.Size),
		Quality:        openai.ImageGenerateParamsQuality(req.Quality),
		Style:          openai.ImageGenerateParamsStyle(req.Style),
		ResponseFormat: openai.ImageGenerateParamsResponseFormatURL,
	})
	if err != nil {
		return Image{}, fmt.Errorf("image generation failed: %w", err)
	}

	if len(resp.Data) == 0 {
		return Image{}, errors.New("image generation failed: empty response")
	}

	return Image{URL: resp.Data[0].URL, RevisedPrompt: resp.Data[0].RevisedPrompt}, nil
}

// AnalyzeImage implements Client.
func (c *OpenAIClient) AnalyzeImage(ctx context.Context, imageURL, prompt string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: DefaultVisionModel,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(prompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: imageURL}),
			}),
		},
		MaxTokens: openai.Int(4096),
	})
	if err != nil {
		return "", fmt.Errorf("image analysis failed: %w", err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "No analysis available", nil
	}

	return resp.Choices[0].Message.Content, nil
}

// Transcribe implements Client.
func (c *OpenAIClient) Transcribe(ctx context.Context, req TranscriptionRequest) (string, error) {
	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(req.Audio, req.Filename, ""),
		Model: DefaultTranscriptionModel,
	}

	if req.Language != "" {
		params.Language = openai.String(req.Language)
	}

	if req.Prompt != "" {
		params.Prompt = openai.String(req.Prompt)
	}

	resp, err := c.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}

	return resp.Text, nil
}

// Speech implements Client.
func (c *OpenAIClient) Speech(ctx context.Context, req SpeechRequest) ([]byte, error) {
	resp, err := c.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model: DefaultSpeechModel,
		Input: req.Text,
		Voice: openai.AudioSpeechNewParamsVoice(req.Voice),
		Speed: openai.Float(req.Speed),
	})
	if err != nil {
		return nil, fmt.Errorf("text-to-speech failed: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("text-to-speech failed: %w", err)
	}

	return audio, nil
}

// Chat implements Client.
func (c *OpenAIClient) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))

	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			messages = append(messages, openai.SystemMessage(m.Content))
		case "assistant":
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       req.Model,
		Messages:    messages,
		Temperature: openai.Float(req.Temperature),
		MaxTokens:   openai.Int(req.MaxTokens),
	})
	if err != nil {
		return ChatResponse{}, fmt.Errorf("ai chat failed: %w", err)
	}

	out := ChatResponse{
		Model: resp.Model,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}

	if len(resp.Choices) > 0 {
		out.Content = resp.Choices[0].Message.Content
	}

	return out, nil
}

// Embed implements Client.
func (c *OpenAIClient) Embed(ctx context.Context, model string, inputs []string) (EmbeddingResponse, error) {
	resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: inputs},
	})
	if err != nil {
		return EmbeddingResponse{}, fmt.Errorf("embedding generation failed: %w", err)
	}

	out := EmbeddingResponse{
		Embeddings: make([][]float64, 0, len(resp.Data)),
		Model:      resp.Model,
		Usage:      Usage{PromptTokens: resp.Usage.PromptTokens, TotalTokens: resp.Usage.TotalTokens},
	}

	for _, d := range resp.Data {
		out.Embeddings = append(out.Embeddings, d.Embedding)
	}

	if len(out.Embeddings) > 0 {
		out.Dimensions = len(out.Embeddings[0])
	}

	return out, nil
}
