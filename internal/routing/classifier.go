package routing

import (
	"context"
	"fmt"
	"strings"

	"conductor/internal/logging"
	"conductor/internal/types"
)

const (
	// historyWindow is how many trailing history turns are considered before
	// filtering; classifierTurns is how many conversational turns survive
	// into the prompt.
	historyWindow   = 20
	classifierTurns = 4
)

const classifierSystemPrompt = `You are a routing classifier for a coding assistant. Decide which model tier should handle the user's latest request.

Choose "capable" when the request involves any of:
- a plan of 4 or more coordinated steps
- open-ended strategic or architectural reasoning
- broad investigation across many files or systems
- root-cause debugging

Choose "fast" otherwise. Operational simplicity overrides strategic phrasing: if the request will realistically resolve in 3 or fewer tool calls, choose "fast" even when it sounds ambitious.

Respond with JSON only.`

const classifierSchema = `{
  "type": "object",
  "properties": {
    "reasoning": {"type": "string"},
    "model_choice": {"type": "string", "enum": ["fast", "capable"]}
  },
  "required": ["reasoning", "model_choice"]
}`

type classifierVerdict struct {
	Reasoning   string `json:"reasoning"`
	ModelChoice string `json:"model_choice"`
}

// ClassifierStrategy routes auto-selector requests with one auxiliary model
// call. It maps a fast/capable verdict to configured tier model ids. Every
// failure mode declines: the chain's default still answers.
type ClassifierStrategy struct {
	client       types.LLMClient
	fastModel    string
	capableModel string
}

// NewClassifierStrategy builds the strategy. client should be a cheap tier;
// fastModel/capableModel are the ids the verdict maps onto.
func NewClassifierStrategy(client types.LLMClient, fastModel, capableModel string) *ClassifierStrategy {
	return &ClassifierStrategy{
		client:       client,
		fastModel:    fastModel,
		capableModel: capableModel,
	}
}

// Name implements Strategy.
func (s *ClassifierStrategy) Name() string { return "classifier" }

// Route implements Strategy. Applies only to auto-selector requests.
func (s *ClassifierStrategy) Route(ctx context.Context, req *Request) (*types.RoutingDecision, error) {
	if req.Selector != SelectorAuto {
		return nil, nil
	}

	timer := logging.StartTimer(logging.CategoryRouting, "classify")
	prompt := buildClassifierPrompt(req)

	raw, err := s.complete(ctx, prompt)
	if err != nil {
		timer.Stop()
		return nil, fmt.Errorf("classifier call: %w", err)
	}

	var verdict classifierVerdict
	if !types.ParseJSONObject(raw, &verdict) {
		timer.Stop()
		return nil, fmt.Errorf("classifier returned unparseable output")
	}

	var model string
	switch verdict.ModelChoice {
	case "fast":
		model = s.fastModel
	case "capable":
		model = s.capableModel
	default:
		timer.Stop()
		return nil, fmt.Errorf("classifier returned invalid model_choice %q", verdict.ModelChoice)
	}

	elapsed := timer.Elapsed()
	timer.Stop()

	return &types.RoutingDecision{
		Model: model,
		Metadata: types.RoutingMetadata{
			Source:    "classifier",
			LatencyMs: elapsed.Milliseconds(),
			Reasoning: verdict.Reasoning,
		},
	}, nil
}

// complete prefers schema-enforced output when the client supports it.
func (s *ClassifierStrategy) complete(ctx context.Context, prompt string) (string, error) {
	if sp, ok := s.client.(types.SchemaProvider); ok && sp.SchemaCapable() {
		return sp.CompleteWithSchema(ctx, classifierSystemPrompt, prompt, classifierSchema)
	}
	return s.client.CompleteWithSystem(ctx, classifierSystemPrompt, prompt)
}

// buildClassifierPrompt renders the classification window: the last few
// conversational turns (tool-activity turns dropped) plus the new request.
func buildClassifierPrompt(req *Request) string {
	window := classifierWindow(req.History)

	var sb strings.Builder
	if len(window) > 0 {
		sb.WriteString("Recent conversation:\n")
		for _, turn := range window {
			fmt.Fprintf(&sb, "[%s] %s\n", turn.Role, turn.Content)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Latest request:\n")
	sb.WriteString(req.UserMessage)
	return sb.String()
}

// classifierWindow takes the last historyWindow turns, drops tool-activity
// turns, and keeps the trailing classifierTurns.
func classifierWindow(history []types.Turn) []types.Turn {
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}

	conversational := make([]types.Turn, 0, len(history))
	for _, turn := range history {
		if turn.ToolActivity {
			continue
		}
		conversational = append(conversational, turn)
	}

	if len(conversational) > classifierTurns {
		conversational = conversational[len(conversational)-classifierTurns:]
	}
	return conversational
}
