package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"conductor/internal/logging"
	"conductor/internal/types"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicMaxTokens = 8192

// AnthropicClient talks to the Anthropic Messages API.
type AnthropicClient struct {
	client    anthropic.Client
	maxTokens int64

	mu    sync.RWMutex
	model string
}

// NewAnthropicClient creates an Anthropic-backed client.
func NewAnthropicClient(apiKey, model string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic: API key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("anthropic: model is required")
	}

	c := &AnthropicClient{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		maxTokens: defaultAnthropicMaxTokens,
		model:     model,
	}
	logging.API("Anthropic client ready (model=%s)", model)
	return c, nil
}

// SetModel implements types.ModelSwitcher.
func (c *AnthropicClient) SetModel(model string) {
	c.mu.Lock()
	c.model = model
	c.mu.Unlock()
}

// GetModel implements types.ModelSwitcher.
func (c *AnthropicClient) GetModel() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.model
}

// SchemaCapable implements types.SchemaProvider. The Messages API has no
// server-side response schema; callers fall back to prompt-and-parse.
func (c *AnthropicClient) SchemaCapable() bool { return false }

// CompleteWithSchema implements types.SchemaProvider by prompting for JSON
// conforming to the schema. Callers are expected to extract and validate.
func (c *AnthropicClient) CompleteWithSchema(ctx context.Context, systemPrompt, userPrompt, jsonSchema string) (string, error) {
	augmented := fmt.Sprintf("%s\n\nRespond with a single JSON object conforming to this schema, and nothing else:\n%s", userPrompt, jsonSchema)
	return c.CompleteWithSystem(ctx, systemPrompt, augmented)
}

// Complete implements types.LLMClient.
func (c *AnthropicClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem implements types.LLMClient.
func (c *AnthropicClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.CompleteConversation(ctx, systemPrompt, []types.ChatMessage{
		{Role: "user", Content: userPrompt},
	}, nil)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// CompleteWithTools implements types.LLMClient.
func (c *AnthropicClient) CompleteWithTools(ctx context.Context, systemPrompt, userPrompt string, tools []types.ToolDefinition) (*types.LLMToolResponse, error) {
	return c.CompleteConversation(ctx, systemPrompt, []types.ChatMessage{
		{Role: "user", Content: userPrompt},
	}, tools)
}

// CompleteConversation implements types.LLMClient.
func (c *AnthropicClient) CompleteConversation(ctx context.Context, systemPrompt string, messages []types.ChatMessage, tools []types.ToolDefinition) (*types.LLMToolResponse, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.GetModel()),
		MaxTokens: c.maxTokens,
		Messages:  toAnthropicMessages(messages),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}
	if len(tools) > 0 {
		params.Tools = toAnthropicTools(tools)
	}

	timer := logging.StartTimer(logging.CategoryAPI, "anthropic:"+c.GetModel())
	resp, err := c.client.Messages.New(ctx, params)
	timer.StopWithInfo()
	if err != nil {
		return nil, &types.UpstreamCallError{Op: "anthropic.Messages.New", Cause: err}
	}

	out := &types.LLMToolResponse{
		StopReason: string(resp.StopReason),
		Usage: types.UsageMetadata{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
			TotalTokens:  int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}

	for _, block := range resp.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			out.Text += variant.Text
		case anthropic.ToolUseBlock:
			var args map[string]any
			if err := json.Unmarshal(variant.Input, &args); err != nil {
				args = map[string]any{}
			}
			out.ToolCalls = append(out.ToolCalls, types.ToolCallRequest{
				ID:        variant.ID,
				Name:      variant.Name,
				Arguments: args,
			})
		}
	}
	return out, nil
}

// toAnthropicMessages renders the neutral conversation into Messages API
// params. Assistant tool calls and their results are replayed as
// tool_use/tool_result blocks so the model can resume mid-task.
func toAnthropicMessages(messages []types.ChatMessage) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case "user":
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))

		case "assistant":
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, call.Arguments, call.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}

		case "tool":
			var blocks []anthropic.ContentBlockParamUnion
			for _, result := range msg.ToolResults {
				blocks = append(blocks, anthropic.NewToolResultBlock(result.ToolUseID, result.Content, result.IsError))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewUserMessage(blocks...))
			}
		}
	}
	return out
}

// toAnthropicTools maps tool definitions onto Messages API tool params.
func toAnthropicTools(tools []types.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, def := range tools {
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        def.Name,
				Description: anthropic.String(def.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: schemaProperties(def.InputSchema),
					Required:   schemaRequired(def.InputSchema),
				},
			},
		})
	}
	return out
}
