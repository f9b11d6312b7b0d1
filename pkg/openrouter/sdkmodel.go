package openrouter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	openaisdk "github.com/openai/openai-go"
)

// SchemaFunc returns the JSON Schema for a tool's parameters.
type SchemaFunc func(toolName string) (map[string]any, bool)

var _ model.ToolCallingChatModel = (*SDKChatModel)(nil)

// SDKChatModel talks to OpenRouter through the OpenAI SDK directly, without
// the eino-ext adapter.
type SDKChatModel struct {
	client  *openaisdk.Client
	cfg     Config
	schemas SchemaFunc
	tools   []openaisdk.ChatCompletionToolParam
}

func NewSDKChatModel(cfg Config, schemas SchemaFunc) (*SDKChatModel, error) {
	client := NewClient(cfg)
	if client == nil {
		return nil, errors.New("openrouter: api key is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("openrouter: model is required")
	}
	return &SDKChatModel{client: client, cfg: cfg, schemas: schemas}, nil
}

// WithTools returns a copy of m that offers tools on every request.
func (m *SDKChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	params := make([]openaisdk.ChatCompletionToolParam, 0, len(tools))
	for _, t := range tools {
		if t == nil {
			continue
		}
		parameters := map[string]any{"type": "object", "properties": map[string]any{}}
		if m.schemas != nil {
			if s, ok := m.schemas(t.Name); ok {
				parameters = s
			}
		}
		params = append(params, openaisdk.ChatCompletionToolParam{
			Type: "function",
			Function: openaisdk.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openaisdk.String(t.Desc),
				Parameters:  openaisdk.FunctionParameters(parameters),
			},
		})
	}
	cp := *m
	cp.tools = params
	return &cp, nil
}

func (m *SDKChatModel) Generate(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	params := openaisdk.ChatCompletionNewParams{
		Model:    openaisdk.ChatModel(strings.TrimSpace(m.cfg.Model)),
		Messages: toSDKMessages(input),
	}
	if m.cfg.MaxCompletionToken != nil && *m.cfg.MaxCompletionToken > 0 {
		params.MaxCompletionTokens = openaisdk.Int(int64(*m.cfg.MaxCompletionToken))
	}
	if m.cfg.Temperature > 0 {
		params.Temperature = openaisdk.Float(float64(m.cfg.Temperature))
	}
	if len(m.tools) > 0 {
		params.Tools = m.tools
	}

	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openrouter: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openrouter: no response choices returned")
	}

	msg := resp.Choices[0].Message
	var calls []schema.ToolCall
	for _, tc := range msg.ToolCalls {
		calls = append(calls, schema.ToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: schema.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	return schema.AssistantMessage(msg.Content, calls), nil
}

// Stream yields the full Generate result as a single chunk.
func (m *SDKChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func toSDKMessages(in []*schema.Message) []openaisdk.ChatCompletionMessageParamUnion {
	out := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(in))
	for _, msg := range in {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case schema.System:
			out = append(out, openaisdk.SystemMessage(msg.Content))
		case schema.User:
			out = append(out, openaisdk.UserMessage(msg.Content))
		case schema.Tool:
			out = append(out, openaisdk.ToolMessage(msg.Content, msg.ToolCallID))
		case schema.Assistant:
			if len(msg.ToolCalls) == 0 {
				out = append(out, openaisdk.AssistantMessage(msg.Content))
				continue
			}
			calls := make([]openaisdk.ChatCompletionMessageToolCall, 0, len(msg.ToolCalls))
			for _, tc := range msg.ToolCalls {
				calls = append(calls, openaisdk.ChatCompletionMessageToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: openaisdk.ChatCompletionMessageToolCallFunction{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
				})
			}
			assistant := openaisdk.ChatCompletionMessage{
				Role:      "assistant",
				Content:   msg.Content,
				ToolCalls: calls,
			}
			out = append(out, assistant.ToParam())
		}
	}
	return out
}
