// Package config loads conductor configuration from .conductor/config.json
// with environment-variable overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// DotDir is the conductor state directory, relative to the working tree.
const DotDir = ".conductor"

// Config holds all conductor configuration.
type Config struct {
	LLM        LLMConfig        `json:"llm"`
	Routing    RoutingConfig    `json:"routing"`
	Scheduler  SchedulerConfig  `json:"scheduler"`
	Agents     AgentsConfig     `json:"agents"`
	Delegation DelegationConfig `json:"delegation"`
	Logging    LoggingConfig    `json:"logging"`
	Store      StoreConfig      `json:"store"`
}

// LLMConfig configures the model backend.
type LLMConfig struct {
	Provider       string  `json:"provider"` // "gemini" or "anthropic"
	APIKey         string  `json:"api_key,omitempty"`
	Model          string  `json:"model"`
	Temperature    float32 `json:"temperature,omitempty"`
	TopP           float32 `json:"top_p,omitempty"`
	ThinkingBudget int32   `json:"thinking_budget,omitempty"`
}

// RoutingConfig configures the task router.
type RoutingConfig struct {
	DefaultModel      string `json:"default_model"`
	FastModel         string `json:"fast_model"`
	CapableModel      string `json:"capable_model"`
	ClassifierEnabled bool   `json:"classifier_enabled"`
}

// SchedulerConfig configures tool call scheduling.
type SchedulerConfig struct {
	// AutoApprove skips confirmation for approval-gated tools.
	AutoApprove bool `json:"auto_approve"`
}

// AgentsConfig configures agent definition loading.
type AgentsConfig struct {
	Dir   string `json:"dir"`
	Watch bool   `json:"watch"`
}

// DelegationConfig configures the task delegation workflow.
type DelegationConfig struct {
	TasksDir       string `json:"tasks_dir"`
	MaxTurns       int    `json:"max_turns"`
	MaxTimeMinutes int    `json:"max_time_minutes"`
}

// LoggingConfig configures the category logger. The logging package reads
// these fields from config.json directly at Initialize time.
type LoggingConfig struct {
	Dir        string          `json:"dir,omitempty"`
	DebugMode  bool            `json:"debug_mode"`
	Level      string          `json:"level"`
	Categories map[string]bool `json:"categories,omitempty"`
	JSONFormat bool            `json:"json_format,omitempty"`
}

// StoreConfig configures the run history store.
type StoreConfig struct {
	Path string `json:"path"`
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider: "gemini",
			Model:    "gemini-2.5-pro",
		},
		Routing: RoutingConfig{
			DefaultModel:      "gemini-2.5-pro",
			FastModel:         "gemini-2.5-flash",
			CapableModel:      "gemini-2.5-pro",
			ClassifierEnabled: true,
		},
		Agents: AgentsConfig{
			Dir:   filepath.Join(DotDir, "agents"),
			Watch: true,
		},
		Delegation: DelegationConfig{
			TasksDir:       filepath.Join(DotDir, "tasks"),
			MaxTurns:       30,
			MaxTimeMinutes: 15,
		},
		Logging: LoggingConfig{
			Dir:   filepath.Join(DotDir, "logs"),
			Level: "info",
		},
		Store: StoreConfig{
			Path: filepath.Join(DotDir, "history.db"),
		},
	}
}

// DefaultPath returns the standard config file location.
func DefaultPath() string {
	return filepath.Join(DotDir, "config.json")
}

// Load reads configuration from a JSON file, falling back to defaults when
// the file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration as indented JSON.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides. Provider API
// keys are checked in priority order; CONDUCTOR_API_KEY wins over both.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = key
		if c.LLM.Provider == "" {
			c.LLM.Provider = "gemini"
		}
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && c.LLM.Provider == "anthropic" {
		c.LLM.APIKey = key
	}
	if key := os.Getenv("CONDUCTOR_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}

	if v := os.Getenv("CONDUCTOR_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("CONDUCTOR_MODEL"); v != "" {
		c.LLM.Model = v
		c.Routing.DefaultModel = v
	}
	if v := os.Getenv("CONDUCTOR_FAST_MODEL"); v != "" {
		c.Routing.FastModel = v
	}
	if v := os.Getenv("CONDUCTOR_CAPABLE_MODEL"); v != "" {
		c.Routing.CapableModel = v
	}
	if v := os.Getenv("CONDUCTOR_AGENTS_DIR"); v != "" {
		c.Agents.Dir = v
	}
	if v := os.Getenv("CONDUCTOR_TASKS_DIR"); v != "" {
		c.Delegation.TasksDir = v
	}
	if v := os.Getenv("CONDUCTOR_HISTORY_DB"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("CONDUCTOR_AUTO_APPROVE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Scheduler.AutoApprove = b
		}
	}
	if v := os.Getenv("CONDUCTOR_CLASSIFIER"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Routing.ClassifierEnabled = b
		}
	}
}

// Validate checks the configuration for usability.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "gemini", "anthropic":
	default:
		return fmt.Errorf("unknown provider %q", c.LLM.Provider)
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("no API key: set GEMINI_API_KEY, ANTHROPIC_API_KEY or CONDUCTOR_API_KEY")
	}
	if c.Routing.DefaultModel == "" {
		return fmt.Errorf("routing.default_model is required")
	}
	return nil
}
