package agent

import (
	"fmt"
	"strings"

	"conductor/internal/types"
)

// ValidateInputs checks the provided inputs against the definition's input
// declarations. Missing or mistyped required inputs are hard failures.
func ValidateInputs(def *types.AgentDefinition, inputs map[string]any) error {
	for _, spec := range def.InputConfig.Inputs {
		val, present := inputs[spec.Name]
		if !present || val == nil {
			if spec.Required {
				return &types.ValidationError{Field: spec.Name, Reason: "required input missing"}
			}
			continue
		}
		if !inputTypeMatches(spec.Type, val) {
			return &types.ValidationError{
				Field:  spec.Name,
				Reason: fmt.Sprintf("expected %s, got %T", spec.Type, val),
			}
		}
	}
	return nil
}

func inputTypeMatches(declared string, val any) bool {
	switch declared {
	case "", "any":
		return true
	case "string":
		_, ok := val.(string)
		return ok
	case "number", "integer":
		switch val.(type) {
		case int, int32, int64, float32, float64:
			return true
		}
		return false
	case "boolean":
		_, ok := val.(bool)
		return ok
	case "object":
		_, ok := val.(map[string]any)
		return ok
	case "array":
		switch val.(type) {
		case []any, []string:
			return true
		}
		return false
	default:
		return true
	}
}

// RenderQuery produces the initial user query. A QueryBuilder func wins;
// otherwise the template is rendered with ${name} substitution.
func RenderQuery(def *types.AgentDefinition, inputs map[string]any) string {
	if def.PromptConfig.QueryBuilder != nil {
		return def.PromptConfig.QueryBuilder(inputs)
	}
	return substituteTemplate(def.PromptConfig.QueryTemplate, inputs)
}

// substituteTemplate replaces ${name} markers with the stringified input
// value. Unknown markers are left in place.
func substituteTemplate(template string, inputs map[string]any) string {
	out := template
	for name, val := range inputs {
		marker := "${" + name + "}"
		out = strings.ReplaceAll(out, marker, fmt.Sprintf("%v", val))
	}
	return out
}
