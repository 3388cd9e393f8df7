// Package llm implements the model backends behind types.LLMClient: a
// Gemini provider on the genai SDK and an Anthropic provider on
// anthropic-sdk-go, selected by the factory from config.
package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"conductor/internal/logging"
	"conductor/internal/types"

	"github.com/google/uuid"
	"google.golang.org/genai"
)

// GeminiClient talks to the Gemini API. Safe for concurrent use; SetModel
// affects subsequent calls only.
type GeminiClient struct {
	client *genai.Client

	mu             sync.RWMutex
	model          string
	temperature    *float32
	topP           *float32
	thinkingBudget int32

	lastThoughtSummary string
	lastThinkingTokens int
}

// GeminiOption tunes a GeminiClient.
type GeminiOption func(*GeminiClient)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) GeminiOption {
	return func(c *GeminiClient) { c.temperature = &t }
}

// WithTopP sets nucleus sampling.
func WithTopP(p float32) GeminiOption {
	return func(c *GeminiClient) { c.topP = &p }
}

// WithThinkingBudget enables thinking mode with a token budget.
func WithThinkingBudget(tokens int32) GeminiOption {
	return func(c *GeminiClient) { c.thinkingBudget = tokens }
}

// NewGeminiClient creates a Gemini-backed client.
func NewGeminiClient(ctx context.Context, apiKey, model string, opts ...GeminiOption) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("gemini: model is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to create client: %w", err)
	}

	c := &GeminiClient{
		client: client,
		model:  model,
	}
	for _, opt := range opts {
		opt(c)
	}
	logging.API("Gemini client ready (model=%s, thinking_budget=%d)", model, c.thinkingBudget)
	return c, nil
}

// SetModel implements types.ModelSwitcher.
func (c *GeminiClient) SetModel(model string) {
	c.mu.Lock()
	c.model = model
	c.mu.Unlock()
}

// GetModel implements types.ModelSwitcher.
func (c *GeminiClient) GetModel() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.model
}

// GetLastThoughtSummary implements types.ThinkingProvider.
func (c *GeminiClient) GetLastThoughtSummary() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastThoughtSummary
}

// GetLastThinkingTokens implements types.ThinkingProvider.
func (c *GeminiClient) GetLastThinkingTokens() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastThinkingTokens
}

// SchemaCapable implements types.SchemaProvider. Gemini enforces response
// schemas server-side.
func (c *GeminiClient) SchemaCapable() bool { return true }

// baseConfig builds the per-call generation config from current settings.
func (c *GeminiClient) baseConfig(systemPrompt string) *genai.GenerateContentConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cfg := &genai.GenerateContentConfig{
		Temperature: c.temperature,
		TopP:        c.topP,
	}
	if systemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}
	if c.thinkingBudget > 0 {
		budget := c.thinkingBudget
		cfg.ThinkingConfig = &genai.ThinkingConfig{
			IncludeThoughts: true,
			ThinkingBudget:  &budget,
		}
	}
	return cfg
}

func (c *GeminiClient) generate(ctx context.Context, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	model := c.GetModel()
	timer := logging.StartTimer(logging.CategoryAPI, "gemini:"+model)
	resp, err := c.client.Models.GenerateContent(ctx, model, contents, cfg)
	timer.StopWithInfo()
	if err != nil {
		return nil, &types.UpstreamCallError{Op: "gemini.GenerateContent", Cause: err}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, &types.UpstreamCallError{Op: "gemini.GenerateContent", Cause: fmt.Errorf("empty response")}
	}
	return resp, nil
}

// Complete implements types.LLMClient.
func (c *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem implements types.LLMClient.
func (c *GeminiClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(userPrompt, genai.RoleUser),
	}
	resp, err := c.generate(ctx, contents, c.baseConfig(systemPrompt))
	if err != nil {
		return "", err
	}
	text, thoughts := splitParts(resp)
	c.recordThinking(thoughts, resp)
	return text, nil
}

// CompleteWithSchema implements types.SchemaProvider: the response body is
// constrained to the given JSON schema.
func (c *GeminiClient) CompleteWithSchema(ctx context.Context, systemPrompt, userPrompt, jsonSchema string) (string, error) {
	schema, err := parseSchemaString(jsonSchema)
	if err != nil {
		return "", err
	}

	cfg := c.baseConfig(systemPrompt)
	cfg.ResponseMIMEType = "application/json"
	cfg.ResponseSchema = schema

	contents := []*genai.Content{
		genai.NewContentFromText(userPrompt, genai.RoleUser),
	}
	resp, err := c.generate(ctx, contents, cfg)
	if err != nil {
		return "", err
	}
	text, thoughts := splitParts(resp)
	c.recordThinking(thoughts, resp)
	return text, nil
}

// CompleteWithTools implements types.LLMClient.
func (c *GeminiClient) CompleteWithTools(ctx context.Context, systemPrompt, userPrompt string, tools []types.ToolDefinition) (*types.LLMToolResponse, error) {
	messages := []types.ChatMessage{{Role: "user", Content: userPrompt}}
	return c.CompleteConversation(ctx, systemPrompt, messages, tools)
}

// CompleteConversation implements types.LLMClient.
func (c *GeminiClient) CompleteConversation(ctx context.Context, systemPrompt string, messages []types.ChatMessage, tools []types.ToolDefinition) (*types.LLMToolResponse, error) {
	cfg := c.baseConfig(systemPrompt)
	if len(tools) > 0 {
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: toGenaiFunctions(tools)}}
	}

	contents, err := toGenaiContents(messages)
	if err != nil {
		return nil, err
	}

	resp, err := c.generate(ctx, contents, cfg)
	if err != nil {
		return nil, err
	}
	return c.toToolResponse(resp), nil
}

// toToolResponse flattens a Gemini response into the provider-neutral shape.
func (c *GeminiClient) toToolResponse(resp *genai.GenerateContentResponse) *types.LLMToolResponse {
	out := &types.LLMToolResponse{}

	candidate := resp.Candidates[0]
	out.StopReason = string(candidate.FinishReason)

	var thoughts []string
	for _, part := range candidate.Content.Parts {
		if part == nil {
			continue
		}
		if part.FunctionCall != nil {
			id := part.FunctionCall.ID
			if id == "" {
				id = uuid.New().String()
			}
			out.ToolCalls = append(out.ToolCalls, types.ToolCallRequest{
				ID:        id,
				Name:      part.FunctionCall.Name,
				Arguments: part.FunctionCall.Args,
			})
			continue
		}
		if part.Text != "" {
			if part.Thought {
				thoughts = append(thoughts, part.Text)
			} else {
				out.Text += part.Text
			}
		}
	}
	out.ThoughtSummary = strings.Join(thoughts, "\n")

	if usage := resp.UsageMetadata; usage != nil {
		out.Usage = types.UsageMetadata{
			InputTokens:    int(usage.PromptTokenCount),
			OutputTokens:   int(usage.CandidatesTokenCount),
			TotalTokens:    int(usage.TotalTokenCount),
			ThinkingTokens: int(usage.ThoughtsTokenCount),
		}
	}

	c.mu.Lock()
	c.lastThoughtSummary = out.ThoughtSummary
	c.lastThinkingTokens = out.Usage.ThinkingTokens
	c.mu.Unlock()

	return out
}

func (c *GeminiClient) recordThinking(thoughts string, resp *genai.GenerateContentResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastThoughtSummary = thoughts
	if usage := resp.UsageMetadata; usage != nil {
		c.lastThinkingTokens = int(usage.ThoughtsTokenCount)
	}
}

// splitParts separates visible text from thought parts.
func splitParts(resp *genai.GenerateContentResponse) (text, thoughts string) {
	var texts, thinking []string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Text == "" {
			continue
		}
		if part.Thought {
			thinking = append(thinking, part.Text)
		} else {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, ""), strings.Join(thinking, "\n")
}

// toGenaiFunctions maps tool definitions to function declarations.
func toGenaiFunctions(tools []types.ToolDefinition) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, def := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  mapToGenaiSchema(def.InputSchema),
		})
	}
	return decls
}

// toGenaiContents renders the neutral conversation into Gemini contents.
// Tool results become function-response parts keyed by tool name.
func toGenaiContents(messages []types.ChatMessage) ([]*genai.Content, error) {
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case "user":
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))

		case "assistant":
			var parts []*genai.Part
			if msg.Content != "" {
				parts = append(parts, &genai.Part{Text: msg.Content})
			}
			for _, call := range msg.ToolCalls {
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{
						ID:   call.ID,
						Name: call.Name,
						Args: call.Arguments,
					},
				})
			}
			contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: parts})

		case "tool":
			var parts []*genai.Part
			for _, result := range msg.ToolResults {
				response := map[string]any{"output": result.Content}
				if result.IsError {
					response = map[string]any{"error": result.Content}
				}
				parts = append(parts, &genai.Part{
					FunctionResponse: &genai.FunctionResponse{
						ID:       result.ToolUseID,
						Name:     result.ToolName,
						Response: response,
					},
				})
			}
			contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: parts})

		default:
			return nil, fmt.Errorf("gemini: unsupported message role %q", msg.Role)
		}
	}
	return contents, nil
}
