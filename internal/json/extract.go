// Package json salvages JSON objects from model output.
//
// Models sometimes wrap tool arguments in markdown fences, surround them
// with commentary or send them as a JSON-encoded string. ExtractJSON
// recovers the object in those cases.
package json

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrNoJSON is returned when no valid JSON object can be recovered.
var ErrNoJSON = errors.New("no valid JSON object found")

const previewLen = 100

// ExtractJSON returns the first valid JSON object found in s.
//
// In order it tries: s itself, s without a markdown fence, a JSON string
// whose content is an object, and finally each balanced {...} span,
// scanning left to right. Braces inside string literals are ignored.
func ExtractJSON(s string) (string, error) {
	candidate := unfence(s)
	if isObject(candidate) {
		return candidate, nil
	}

	if inner, ok := unquote(candidate); ok {
		return inner, nil
	}

	for start := strings.IndexByte(candidate, '{'); start >= 0; {
		if end, ok := matchBrace(candidate, start); ok {
			if span := candidate[start : end+1]; gjson.Valid(span) {
				return span, nil
			}
		}
		next := strings.IndexByte(candidate[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}

	preview := s
	if len(preview) > previewLen {
		preview = preview[:previewLen] + "..."
	}
	return "", fmt.Errorf("%w in %q", ErrNoJSON, preview)
}

func isObject(s string) bool {
	return strings.HasPrefix(s, "{") && gjson.Valid(s)
}

// unquote handles arguments sent as a JSON string holding an object.
func unquote(s string) (string, bool) {
	if !strings.HasPrefix(s, `"`) || !gjson.Valid(s) {
		return "", false
	}
	inner := strings.TrimSpace(gjson.Parse(s).String())
	return inner, isObject(inner)
}

// unfence strips a surrounding ``` or ```json fence.
func unfence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```")
	if nl := strings.IndexByte(t, '\n'); nl >= 0 && !strings.ContainsAny(t[:nl], "{[\"") {
		// Language tag line, e.g. "json".
		t = t[nl+1:]
	}
	t = strings.TrimSuffix(strings.TrimSpace(t), "```")
	return strings.TrimSpace(t)
}

// matchBrace returns the index of the brace closing the one at start.
func matchBrace(s string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
