package agent

import (
	"fmt"

	"conductor/internal/types"
)

// ValidateStructured checks a decoded value against a minimal structural
// JSON schema: type, required, enum, nested properties and array items.
// This is deliberately not a full JSON Schema implementation; it covers the
// subset agent output schemas use.
func ValidateStructured(schema map[string]any, value any) error {
	return validateValue("", schema, value)
}

func validateValue(path string, schema map[string]any, value any) error {
	if schema == nil {
		return nil
	}

	declared, _ := schema["type"].(string)
	if declared != "" && !schemaTypeMatches(declared, value) {
		return &types.ValidationError{
			Field:  orRoot(path),
			Reason: fmt.Sprintf("expected %s, got %T", declared, value),
		}
	}

	if enum := schema["enum"]; enum != nil {
		if err := validateEnum(path, enum, value); err != nil {
			return err
		}
	}

	switch declared {
	case "object":
		obj, _ := value.(map[string]any)
		return validateObject(path, schema, obj)
	case "array":
		items, _ := schema["items"].(map[string]any)
		if items == nil {
			return nil
		}
		arr, _ := value.([]any)
		for i, item := range arr {
			if err := validateValue(fmt.Sprintf("%s[%d]", path, i), items, item); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateObject(path string, schema map[string]any, obj map[string]any) error {
	for _, name := range requiredNames(schema) {
		if _, ok := obj[name]; !ok {
			return &types.ValidationError{
				Field:  joinPath(path, name),
				Reason: "required field missing",
			}
		}
	}

	props, _ := schema["properties"].(map[string]any)
	for name, raw := range props {
		sub, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		val, present := obj[name]
		if !present || val == nil {
			continue
		}
		if err := validateValue(joinPath(path, name), sub, val); err != nil {
			return err
		}
	}
	return nil
}

func validateEnum(path string, enum any, value any) error {
	options, ok := enum.([]any)
	if !ok {
		return nil
	}
	for _, opt := range options {
		if opt == value {
			return nil
		}
	}
	return &types.ValidationError{
		Field:  orRoot(path),
		Reason: fmt.Sprintf("value %v not in enum", value),
	}
}

func schemaTypeMatches(declared string, value any) bool {
	switch declared {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		switch value.(type) {
		case float64, float32, int, int64:
			return true
		}
		return false
	case "integer":
		switch v := value.(type) {
		case int, int64, int32:
			return true
		case float64:
			return v == float64(int64(v))
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "null":
		return value == nil
	default:
		return true
	}
}

func requiredNames(schema map[string]any) []string {
	switch req := schema["required"].(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func orRoot(path string) string {
	if path == "" {
		return "(root)"
	}
	return path
}
