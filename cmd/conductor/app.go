package main

import (
	"context"
	"fmt"
	"path/filepath"

	"conductor/internal/agent"
	"conductor/internal/config"
	"conductor/internal/delegation"
	"conductor/internal/hooks"
	"conductor/internal/llm"
	"conductor/internal/logging"
	"conductor/internal/routing"
	"conductor/internal/snapshot"
	"conductor/internal/store"
	"conductor/internal/tools"
	"conductor/internal/tools/builtin"
	"conductor/internal/types"
)

// app bundles the assembled collaborators for one command invocation.
type app struct {
	cfg      *config.Config
	client   types.LLMClient
	registry *tools.Registry
	bus      *hooks.Bus
	chain    *routing.Chain
	runs     *store.RunStore // nil when the store could not open
	defs     *agent.Definitions
	watcher  *agent.Watcher // nil when watching is off or unavailable
	workflow *delegation.Workflow
}

// buildApp wires the full component graph from config.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := llm.New(ctx, llm.Options{
		Provider:       cfg.LLM.Provider,
		APIKey:         cfg.LLM.APIKey,
		Model:          cfg.LLM.Model,
		Temperature:    cfg.LLM.Temperature,
		TopP:           cfg.LLM.TopP,
		ThinkingBudget: cfg.LLM.ThinkingBudget,
	})
	if err != nil {
		return nil, err
	}

	registry := tools.NewRegistry()
	builtin.MustRegister(registry)

	bus := hooks.NewBus()
	hooks.NewInjector(hooks.FileSource{
		Dir: filepath.Join(config.DotDir, "workflows"),
	}).Install(bus)

	var runs *store.RunStore
	runs, err = store.Open(cfg.Store.Path)
	if err != nil {
		logging.StoreWarn("run history unavailable: %v", err)
		runs = nil
	}

	strategies := []routing.Strategy{routing.PinnedStrategy{}}
	if cfg.Routing.ClassifierEnabled {
		strategies = append(strategies,
			routing.NewClassifierStrategy(client, cfg.Routing.FastModel, cfg.Routing.CapableModel))
	}
	chain := routing.NewChain(cfg.Routing.DefaultModel, strategies...)

	workflow, err := delegation.NewWorkflow(delegation.Deps{
		LLM:       client,
		Registry:  registry,
		Bus:       bus,
		Snapshots: snapshot.NewGit(snapshot.NewRunner(".")),
		Store:     recorder(runs),
	}, delegation.Config{
		TasksDir:       cfg.Delegation.TasksDir,
		FastModel:      cfg.Routing.FastModel,
		CapableModel:   cfg.Routing.CapableModel,
		MaxTurns:       cfg.Delegation.MaxTurns,
		MaxTimeMinutes: cfg.Delegation.MaxTimeMinutes,
	})
	if err != nil {
		return nil, err
	}
	registry.MustRegister(delegation.Tool(workflow))

	defs, err := agent.LoadDefinitions(cfg.Agents.Dir)
	if err != nil {
		return nil, fmt.Errorf("load agent definitions: %w", err)
	}

	var watcher *agent.Watcher
	if cfg.Agents.Watch {
		if watcher, err = agent.NewWatcher(defs); err == nil {
			if err := watcher.Start(ctx); err != nil {
				logging.AgentWarn("definitions watcher: %v", err)
				watcher = nil
			}
		} else {
			logging.AgentWarn("definitions watcher: %v", err)
			watcher = nil
		}
	}

	return &app{
		cfg:      cfg,
		client:   client,
		registry: registry,
		bus:      bus,
		chain:    chain,
		runs:     runs,
		defs:     defs,
		watcher:  watcher,
		workflow: workflow,
	}, nil
}

// recorder converts a possibly-nil store into a possibly-nil interface.
func recorder(runs *store.RunStore) agent.Recorder {
	if runs == nil {
		return nil
	}
	return runs
}

func (a *app) Close() {
	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.runs != nil {
		a.runs.Close()
	}
}
