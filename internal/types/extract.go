package types

import (
	"encoding/json"
	"strings"
)

// ExtractJSON finds the first complete JSON object in a model response,
// tolerating markdown code fences and surrounding prose. Returns "" when no
// balanced object is present.
func ExtractJSON(response string) string {
	start := strings.Index(response, "{")
	if start == -1 {
		return ""
	}

	// Find matching closing brace, skipping braces inside string literals.
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(response); i++ {
		c := response[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return response[start : i+1]
				}
			}
		}
	}

	return ""
}

// ParseJSONObject extracts and unmarshals the first JSON object in a model
// response into dst. Returns false when no parseable object was found;
// callers treat that as a recoverable degradation, not a failure.
func ParseJSONObject(response string, dst interface{}) bool {
	jsonStr := ExtractJSON(response)
	if jsonStr == "" {
		return false
	}
	return json.Unmarshal([]byte(jsonStr), dst) == nil
}
