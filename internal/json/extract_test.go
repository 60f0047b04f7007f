package json

import (
	"errors"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"pure object", `{"title":"Standup"}`, `{"title":"Standup"}`},
		{"surrounding whitespace", "  {\"a\":1}\n", `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prefix text", `Here are the arguments: {"a":1}`, `{"a":1}`},
		{"suffix text", `{"a":1} hope that helps`, `{"a":1}`},
		{"braces inside strings", `args {"note":"use } and { freely"} done`, `{"note":"use } and { freely"}`},
		{"escaped quote in string", `x {"q":"say \"}\" now"} y`, `{"q":"say \"}\" now"}`},
		{"first object wins", `{"a":1} and {"b":2}`, `{"a":1}`},
		{"skips broken candidate", `{oops} then {"b":2}`, `{"b":2}`},
		{"nested", `result: {"outer":{"inner":[1,2]}}.`, `{"outer":{"inner":[1,2]}}`},
		{"stringified object", `"{\"title\":\"Dentist\"}"`, `{"title":"Dentist"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestExtractJSONFailures(t *testing.T) {
	for _, input := range []string{
		"no json here",
		`{"unterminated": true`,
		`"just a string"`,
		`[1, 2, 3]`,
		"",
	} {
		_, err := ExtractJSON(input)
		if !errors.Is(err, ErrNoJSON) {
			t.Errorf("%q: expected ErrNoJSON, got %v", input, err)
		}
	}
}

func TestExtractJSONPreviewTruncated(t *testing.T) {
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}
	_, err := ExtractJSON(string(long))
	if err == nil {
		t.Fatal("expected error")
	}
	if len(err.Error()) > 200 {
		t.Errorf("error message not truncated: %d bytes", len(err.Error()))
	}
}
