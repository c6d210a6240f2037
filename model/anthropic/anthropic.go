// Package anthropic provides a model wrapper for the Anthropic Claude
// Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/model"
)

// DefaultModel is the Claude model used when none is configured.
const DefaultModel = anthropic.Model("claude-sonnet-4-5")

// Options configures the Anthropic model adapter.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
	// PromptCaching marks the system preamble as an ephemeral cache breakpoint.
	PromptCaching bool
	// RequestOptions are passed through to the SDK client (base URL, retries).
	RequestOptions []option.RequestOption
}

// Model wraps the Anthropic Messages API behind the generic model.Model interface.
type Model struct {
	client *anthropic.Client
	opts   Options
}

func defaultOptions() Options {
	return Options{
		Model:         DefaultModel,
		Temperature:   0.7,
		MaxTokens:     8192,
		PromptCaching: true,
	}
}

// NewModel creates a new Anthropic model using the official client.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaultOptions()

	for _, fn := range optFns {
		fn(&opts)
	}

	clientOpts := append([]option.RequestOption{}, opts.RequestOptions...)
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Model{
		client: &client,
		opts:   opts,
	}
}

// NewModelFromClient creates a new Anthropic model from an existing client.
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Model{
		client: client,
		opts:   opts,
	}
}

// Generate performs one non-streaming Messages call.
func (m *Model) Generate(ctx context.Context, req model.Request) (*model.Response, error) {
	params := anthropic.MessageNewParams{
		Model:       m.opts.Model,
		Messages:    buildMessages(req.Messages),
		MaxTokens:   m.opts.MaxTokens,
		Temperature: anthropic.Float(m.opts.Temperature),
	}

	if req.System != "" {
		block := anthropic.TextBlockParam{Text: req.System}
		if m.opts.PromptCaching {
			block.CacheControl = anthropic.NewCacheControlEphemeralParam()
		}

		params.System = []anthropic.TextBlockParam{block}
	}

	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}

	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	parts, err := convertContent(resp.Content)
	if err != nil {
		return nil, err
	}

	return &model.Response{
		ID:            resp.ID,
		Message:       core.NewAssistantMessage(parts...),
		StopReason:    mapStopReason(string(resp.StopReason)),
		RawStopReason: string(resp.StopReason),
		Usage: core.Usage{
			InputTokens:         resp.Usage.InputTokens,
			OutputTokens:        resp.Usage.OutputTokens,
			CacheCreationTokens: resp.Usage.CacheCreationInputTokens,
			CachedTokens:        resp.Usage.CacheReadInputTokens,
		},
	}, nil
}

func convertContent(blocks []anthropic.ContentBlockUnion) ([]core.Part, error) {
	parts := make([]core.Part, 0, len(blocks))

	for _, block := range blocks {
		switch block.Type {
		case "text":
			if text := block.AsText().Text; text != "" {
				parts = append(parts, core.TextPart{Text: text})
			}
		case "tool_use":
			toolBlock := block.AsToolUse()

			input, err := toolInput(toolBlock.Input)
			if err != nil {
				return nil, fmt.Errorf("anthropic: tool_use block %s: %w: %w", toolBlock.ID, model.ErrMalformedToolCall, err)
			}

			parts = append(parts, core.ToolCallPart{ToolCall: core.ToolCall{
				ID:    toolBlock.ID,
				Name:  toolBlock.Name,
				Input: input,
			}})
		}
	}

	return parts, nil
}

// toolInput normalizes a tool_use input to a JSON object. A missing input
// becomes {}.
func toolInput(v any) (json.RawMessage, error) {
	if v == nil {
		return json.RawMessage("{}"), nil
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("input is not a JSON object: %w", err)
	}

	if obj == nil {
		return json.RawMessage("{}"), nil
	}

	return raw, nil
}

func mapStopReason(reason string) model.StopReason {
	switch reason {
	case "end_turn", "stop_sequence":
		return model.StopEndTurn
	case "tool_use":
		return model.StopToolUse
	case "max_tokens":
		return model.StopMaxTokens
	default:
		return model.StopOther
	}
}

// buildMessages converts the transcript to Anthropic message format. Tool
// results travel as tool_result blocks inside a user message.
func buildMessages(msgs []core.Message) []anthropic.MessageParam {
	messages := make([]anthropic.MessageParam, 0, len(msgs))

	for _, msg := range msgs {
		switch msg.Role {
		case core.RoleAssistant:
			if content := buildAssistantContent(msg.Parts); len(content) > 0 {
				messages = append(messages, anthropic.NewAssistantMessage(content...))
			}
		case core.RoleToolResult:
			content := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Parts))
			for _, r := range msg.ToolResults() {
				content = append(content, anthropic.NewToolResultBlock(r.ToolCallID, r.Content, r.IsError))
			}

			if len(content) > 0 {
				messages = append(messages, anthropic.NewUserMessage(content...))
			}
		default:
			if text := msg.Text(); text != "" {
				messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
			}
		}
	}

	return messages
}

func buildAssistantContent(parts []core.Part) []anthropic.ContentBlockParamUnion {
	var content []anthropic.ContentBlockParamUnion

	for _, p := range parts {
		switch part := p.(type) {
		case core.TextPart:
			if part.Text != "" {
				content = append(content, anthropic.NewTextBlock(part.Text))
			}
		case core.ToolCallPart:
			var input any = map[string]any{}
			if len(part.ToolCall.Input) > 0 {
				input = part.ToolCall.Input
			}

			content = append(content, anthropic.NewToolUseBlock(part.ToolCall.ID, input, part.ToolCall.Name))
		}
	}

	return content
}

// buildTools converts tool declarations to Anthropic tool format.
func buildTools(tools []model.ToolDefinition) []anthropic.ToolUnionParam {
	anthropicTools := make([]anthropic.ToolUnionParam, len(tools))

	for i, tool := range tools {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}

		if tool.Parameters != nil {
			if properties, exists := tool.Parameters["properties"]; exists {
				inputSchema.Properties = properties
			}

			inputSchema.Required = requiredFields(tool.Parameters["required"])
		}

		anthropicTools[i] = anthropic.ToolUnionParamOfTool(inputSchema, tool.Name)
		if tool.Description != "" {
			anthropicTools[i].OfTool.Description = anthropic.String(tool.Description)
		}
	}

	return anthropicTools
}

func requiredFields(v any) []string {
	switch req := v.(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Info returns metadata describing this Anthropic model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          string(m.opts.Model),
		Provider:      "anthropic",
		SupportsTools: true,
	}
}
