package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"conductor/internal/logging"
	"conductor/internal/types"
)

// Registry holds all available tools and provides lookup functionality.
// It is thread-safe and supports registration at runtime. Registries are
// passed explicitly to the components that need them; there is no ambient
// global instance, which keeps nested sub-agent runs testable in isolation.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry creates a new empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]*Tool),
	}
}

// Register adds a tool to the registry.
// Returns an error if a tool with the same name already exists.
func (r *Registry) Register(tool *Tool) error {
	if err := tool.Validate(); err != nil {
		return fmt.Errorf("invalid tool: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("%w: %s", ErrToolAlreadyRegistered, tool.Name)
	}

	r.tools[tool.Name] = tool

	logging.ToolsDebug("Registered tool: %s (streaming=%v, approval=%v)", tool.Name, tool.Streaming(), tool.RequiresApproval)
	return nil
}

// MustRegister registers a tool and panics on error.
// Use this for static tool registration at startup.
func (r *Registry) MustRegister(tool *Tool) {
	if err := r.Register(tool); err != nil {
		panic(fmt.Sprintf("failed to register tool %s: %v", tool.Name, err))
	}
}

// Get returns a tool by name, or nil if not found.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Has returns true if a tool with the given name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Subset returns a new registry containing only the named tools.
// Missing names are silently skipped; sub-agent whitelists may reference
// tools that are not available in every runtime.
func (r *Registry) Subset(names []string) *Registry {
	sub := NewRegistry()

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range names {
		if tool, ok := r.tools[name]; ok {
			sub.tools[tool.Name] = tool
		}
	}
	return sub
}

// Definitions converts the named tools into the declaration surface sent to
// the model. Missing names are skipped. A nil names slice means all tools.
func (r *Registry) Definitions(names []string) []types.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if names == nil {
		names = make([]string, 0, len(r.tools))
		for name := range r.tools {
			names = append(names, name)
		}
		sort.Strings(names)
	}

	defs := make([]types.ToolDefinition, 0, len(names))
	for _, name := range names {
		tool, ok := r.tools[name]
		if !ok {
			logging.ToolsDebug("Definitions: tool %s not found in registry", name)
			continue
		}

		properties := make(map[string]interface{}, len(tool.Schema.Properties))
		for propName, prop := range tool.Schema.Properties {
			properties[propName] = propertyMap(prop)
		}

		inputSchema := make(map[string]interface{})
		inputSchema["type"] = "object"
		inputSchema["properties"] = properties
		if len(tool.Schema.Required) > 0 {
			inputSchema["required"] = tool.Schema.Required
		}

		defs = append(defs, types.ToolDefinition{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: inputSchema,
		})
	}
	return defs
}

// propertyMap renders one schema property as a plain JSON-shaped map, the
// form provider SDK converters consume.
func propertyMap(prop Property) map[string]interface{} {
	m := map[string]interface{}{
		"type":        prop.Type,
		"description": prop.Description,
	}
	if prop.Default != nil {
		m["default"] = prop.Default
	}
	if len(prop.Enum) > 0 {
		m["enum"] = prop.Enum
	}
	if prop.Items != nil {
		m["items"] = map[string]interface{}{"type": prop.Items.Type}
	}
	return m
}

// Execute runs a tool by name with the given arguments.
// Returns ErrToolNotFound if the tool doesn't exist.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	tool := r.Get(name)
	if tool == nil {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	return r.ExecuteTool(ctx, tool, args, nil)
}

// ExecuteTool runs a specific tool with the given arguments. emit, when
// non-nil, receives incremental output from streaming tools.
func (r *Registry) ExecuteTool(ctx context.Context, tool *Tool, args map[string]any, emit func(chunk string)) (*ToolResult, error) {
	start := time.Now()

	// Validate required arguments
	if err := ValidateArgs(tool, args); err != nil {
		return &ToolResult{
			ToolName:   tool.Name,
			Error:      err,
			DurationMs: time.Since(start).Milliseconds(),
		}, err
	}

	logging.ToolsDebug("Executing tool: %s", tool.Name)

	var result string
	var err error
	if tool.ExecuteStream != nil {
		if emit == nil {
			emit = func(string) {}
		}
		result, err = tool.ExecuteStream(ctx, args, emit)
	} else {
		result, err = tool.Execute(ctx, args)
	}

	duration := time.Since(start)
	logging.ToolsDebug("Tool %s completed in %v (success=%v)", tool.Name, duration, err == nil)

	return &ToolResult{
		ToolName:   tool.Name,
		Result:     result,
		Error:      err,
		DurationMs: duration.Milliseconds(),
	}, err
}

// ValidateArgs checks that all required arguments are present and that typed
// properties carry compatible values.
func ValidateArgs(tool *Tool, args map[string]any) error {
	for _, required := range tool.Schema.Required {
		if _, ok := args[required]; !ok {
			return fmt.Errorf("%w: %s", ErrMissingRequiredArg, required)
		}
	}

	for name, prop := range tool.Schema.Properties {
		val, ok := args[name]
		if !ok || val == nil {
			continue
		}
		if !typeMatches(prop.Type, val) {
			return fmt.Errorf("%w: %s expects %s", ErrInvalidArgType, name, prop.Type)
		}
	}
	return nil
}

// typeMatches checks a JSON-schema type name against a decoded Go value.
// Numbers arrive as float64 from JSON decoding but may be Go ints when
// constructed programmatically.
func typeMatches(schemaType string, val any) bool {
	switch schemaType {
	case "", "any":
		return true
	case "string":
		_, ok := val.(string)
		return ok
	case "number", "integer":
		switch val.(type) {
		case float64, float32, int, int32, int64:
			return true
		}
		return false
	case "boolean":
		_, ok := val.(bool)
		return ok
	case "array":
		switch val.(type) {
		case []any, []string:
			return true
		}
		return false
	case "object":
		_, ok := val.(map[string]any)
		return ok
	default:
		return true
	}
}
