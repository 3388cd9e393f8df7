// Package routing decides which model tier serves a user turn. Strategies
// are evaluated in order; the first one that returns a decision wins, and a
// statically configured default model backstops the chain so routing always
// yields some model.
package routing

import (
	"context"

	"conductor/internal/logging"
	"conductor/internal/types"
)

// SelectorAuto asks the chain to pick a tier; any other selector value is a
// concrete model the user pinned.
const SelectorAuto = "auto"

// Request is the routing input: the user's turn plus recent history.
type Request struct {
	// Selector is SelectorAuto or a pinned model id.
	Selector string

	// UserMessage is the turn being routed.
	UserMessage string

	// History is the conversation so far, oldest first.
	History []types.Turn
}

// Strategy proposes a routing decision for a request. Returning (nil, nil)
// declines with no side effects and defers to the next strategy. An error
// also declines; the chain logs it and moves on.
type Strategy interface {
	Name() string
	Route(ctx context.Context, req *Request) (*types.RoutingDecision, error)
}

// Chain evaluates strategies in order and falls back to the default model.
type Chain struct {
	strategies   []Strategy
	defaultModel string
}

// NewChain builds a chain. defaultModel must be non-empty; it is the answer
// of last resort.
func NewChain(defaultModel string, strategies ...Strategy) *Chain {
	return &Chain{
		strategies:   strategies,
		defaultModel: defaultModel,
	}
}

// Route returns the first non-nil strategy decision, or the default model.
// Route never fails: strategy errors are absorbed with a warning.
func (c *Chain) Route(ctx context.Context, req *Request) *types.RoutingDecision {
	for _, s := range c.strategies {
		decision, err := s.Route(ctx, req)
		if err != nil {
			logging.RoutingWarn("Strategy %s failed: %v", s.Name(), err)
			continue
		}
		if decision == nil {
			continue
		}
		logging.Routing("Routed to %s via %s (%s)", decision.Model, s.Name(), decision.Metadata.Reasoning)
		return decision
	}

	logging.Routing("No strategy decided, using default model %s", c.defaultModel)
	return &types.RoutingDecision{
		Model: c.defaultModel,
		Metadata: types.RoutingMetadata{
			Source: "default",
		},
	}
}

// PinnedStrategy honors a non-auto selector: the user's explicit model
// choice is itself the decision.
type PinnedStrategy struct{}

// Name implements Strategy.
func (PinnedStrategy) Name() string { return "pinned" }

// Route implements Strategy.
func (PinnedStrategy) Route(_ context.Context, req *Request) (*types.RoutingDecision, error) {
	if req.Selector == "" || req.Selector == SelectorAuto {
		return nil, nil
	}
	return &types.RoutingDecision{
		Model: req.Selector,
		Metadata: types.RoutingMetadata{
			Source:    "user",
			Reasoning: "model pinned by selector",
		},
	}, nil
}
