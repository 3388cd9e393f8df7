package agent

import (
	"context"
	"fmt"
	"sync"

	"conductor/internal/types"
)

// scriptedLLM returns canned tool responses in sequence. Each call to
// CompleteConversation consumes the next script entry.
type scriptedLLM struct {
	mu       sync.Mutex
	script   []*types.LLMToolResponse
	errs     []error
	calls    int
	seen     [][]types.ChatMessage
	seenSys  []string
	model    string
	blockCtx bool // when true, block until ctx is done and return its error
}

func (m *scriptedLLM) next() (*types.LLMToolResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.calls
	m.calls++
	var err error
	if i < len(m.errs) {
		err = m.errs[i]
	}
	if err != nil {
		return nil, err
	}
	if i >= len(m.script) {
		return nil, fmt.Errorf("scriptedLLM: no response scripted for call %d", i)
	}
	return m.script[i], nil
}

func (m *scriptedLLM) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := m.next()
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (m *scriptedLLM) CompleteWithSystem(ctx context.Context, system, user string) (string, error) {
	return m.Complete(ctx, user)
}

func (m *scriptedLLM) CompleteWithTools(ctx context.Context, system, user string, tools []types.ToolDefinition) (*types.LLMToolResponse, error) {
	return m.CompleteConversation(ctx, system, []types.ChatMessage{{Role: "user", Content: user}}, tools)
}

func (m *scriptedLLM) CompleteConversation(ctx context.Context, system string, messages []types.ChatMessage, tools []types.ToolDefinition) (*types.LLMToolResponse, error) {
	if m.blockCtx {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	m.mu.Lock()
	m.seen = append(m.seen, append([]types.ChatMessage(nil), messages...))
	m.seenSys = append(m.seenSys, system)
	m.mu.Unlock()
	return m.next()
}

func (m *scriptedLLM) SetModel(model string) {
	m.mu.Lock()
	m.model = model
	m.mu.Unlock()
}

func (m *scriptedLLM) GetModel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.model
}

// memoryRecorder captures run records in memory.
type memoryRecorder struct {
	mu   sync.Mutex
	recs []RunRecord
	err  error
}

func (r *memoryRecorder) RecordRun(ctx context.Context, rec RunRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.recs = append(r.recs, rec)
	return nil
}

func (r *memoryRecorder) records() []RunRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RunRecord(nil), r.recs...)
}
