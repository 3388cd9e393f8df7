package routing

import (
	"context"
	"fmt"

	"conductor/internal/types"
)

// mockLLM is a func-field mock for types.LLMClient + types.SchemaProvider.
// Unset fields fail loudly so tests only exercise the paths they declare.
type mockLLM struct {
	CompleteFunc           func(ctx context.Context, prompt string) (string, error)
	CompleteWithSystemFunc func(ctx context.Context, system, user string) (string, error)
	CompleteWithSchemaFunc func(ctx context.Context, system, user, schema string) (string, error)
	schemaCapable          bool
}

func (m *mockLLM) Complete(ctx context.Context, prompt string) (string, error) {
	if m.CompleteFunc == nil {
		return "", fmt.Errorf("mockLLM.Complete not configured")
	}
	return m.CompleteFunc(ctx, prompt)
}

func (m *mockLLM) CompleteWithSystem(ctx context.Context, system, user string) (string, error) {
	if m.CompleteWithSystemFunc == nil {
		return "", fmt.Errorf("mockLLM.CompleteWithSystem not configured")
	}
	return m.CompleteWithSystemFunc(ctx, system, user)
}

func (m *mockLLM) CompleteWithTools(ctx context.Context, system, user string, tools []types.ToolDefinition) (*types.LLMToolResponse, error) {
	return nil, fmt.Errorf("mockLLM.CompleteWithTools not configured")
}

func (m *mockLLM) CompleteConversation(ctx context.Context, system string, messages []types.ChatMessage, tools []types.ToolDefinition) (*types.LLMToolResponse, error) {
	return nil, fmt.Errorf("mockLLM.CompleteConversation not configured")
}

func (m *mockLLM) SchemaCapable() bool { return m.schemaCapable }

func (m *mockLLM) CompleteWithSchema(ctx context.Context, system, user, schema string) (string, error) {
	if m.CompleteWithSchemaFunc == nil {
		return "", fmt.Errorf("mockLLM.CompleteWithSchema not configured")
	}
	return m.CompleteWithSchemaFunc(ctx, system, user, schema)
}

// mockStrategy is a func-field Strategy.
type mockStrategy struct {
	name      string
	RouteFunc func(ctx context.Context, req *Request) (*types.RoutingDecision, error)
}

func (m *mockStrategy) Name() string { return m.name }

func (m *mockStrategy) Route(ctx context.Context, req *Request) (*types.RoutingDecision, error) {
	return m.RouteFunc(ctx, req)
}
