package types

import "testing"

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
	}{
		{
			name:     "bare object",
			response: `{"a":1}`,
			want:     `{"a":1}`,
		},
		{
			name:     "markdown fence",
			response: "```json\n{\"a\":1}\n```",
			want:     `{"a":1}`,
		},
		{
			name:     "prose around object",
			response: `Sure, here you go: {"model_choice":"fast"} hope that helps`,
			want:     `{"model_choice":"fast"}`,
		},
		{
			name:     "nested objects",
			response: `{"outer":{"inner":2}}`,
			want:     `{"outer":{"inner":2}}`,
		},
		{
			name:     "brace inside string literal",
			response: `{"text":"a } b"}`,
			want:     `{"text":"a } b"}`,
		},
		{
			name:     "no object",
			response: "plain text answer",
			want:     "",
		},
		{
			name:     "unbalanced",
			response: `{"a":`,
			want:     "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractJSON(tt.response); got != tt.want {
				t.Errorf("ExtractJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseJSONObject(t *testing.T) {
	var parsed struct {
		Summary string `json:"summary"`
	}
	if !ParseJSONObject("result: {\"summary\":\"done\"}", &parsed) {
		t.Fatal("ParseJSONObject failed on valid payload")
	}
	if parsed.Summary != "done" {
		t.Errorf("got summary %q, want %q", parsed.Summary, "done")
	}

	if ParseJSONObject("no json here", &parsed) {
		t.Error("ParseJSONObject should fail when no object present")
	}
}
