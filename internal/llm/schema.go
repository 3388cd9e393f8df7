package llm

// Conversions between the registry's JSON-schema maps and provider-native
// schema types live here so both providers share one interpretation.

import (
	"encoding/json"
	"fmt"

	"google.golang.org/genai"
)

// genaiType maps a JSON-schema type name onto the genai enum.
func genaiType(name string) genai.Type {
	switch name {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeUnspecified
	}
}

// mapToGenaiSchema converts a JSON-schema map into a *genai.Schema.
// Unknown keys are ignored; nil input yields nil.
func mapToGenaiSchema(m map[string]any) *genai.Schema {
	if m == nil {
		return nil
	}

	schema := &genai.Schema{}
	if t, ok := m["type"].(string); ok {
		schema.Type = genaiType(t)
	}
	if d, ok := m["description"].(string); ok {
		schema.Description = d
	}
	if props, ok := m["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			if sub, ok := raw.(map[string]any); ok {
				schema.Properties[name] = mapToGenaiSchema(sub)
			}
		}
	}
	if items, ok := m["items"].(map[string]any); ok {
		schema.Items = mapToGenaiSchema(items)
	}
	schema.Required = stringSlice(m["required"])
	schema.Enum = stringSlice(m["enum"])
	return schema
}

// parseSchemaString decodes a JSON schema document into a genai schema.
func parseSchemaString(jsonSchema string) (*genai.Schema, error) {
	var m map[string]any
	if err := json.Unmarshal([]byte(jsonSchema), &m); err != nil {
		return nil, fmt.Errorf("invalid schema document: %w", err)
	}
	return mapToGenaiSchema(m), nil
}

// schemaProperties extracts the properties map from a full input schema.
func schemaProperties(inputSchema map[string]any) map[string]any {
	if props, ok := inputSchema["properties"].(map[string]any); ok {
		return props
	}
	return map[string]any{}
}

// schemaRequired extracts the required list from a full input schema,
// tolerating both []string and decoded-JSON []any forms.
func schemaRequired(inputSchema map[string]any) []string {
	return stringSlice(inputSchema["required"])
}

func stringSlice(v any) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
