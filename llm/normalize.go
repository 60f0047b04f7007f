// Reasoning field normalization.
//
// Information Hiding:
// - Which response field names different backends use for reasoning text
// - Rewriting of JSON and server-sent event bodies in flight

package llm

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// reasoningTransport copies a "reasoning" field into "reasoning_content" on
// every choice so the client library sees one name regardless of backend.
type reasoningTransport struct {
	base http.RoundTripper
}

func newReasoningTransport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &reasoningTransport{base: base}
}

func (t *reasoningTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil || resp.Body == nil {
		return resp, err
	}

	contentType := resp.Header.Get("Content-Type")
	switch {
	case strings.HasPrefix(contentType, "text/event-stream"):
		resp.Body = &sseRewriter{src: resp.Body, r: bufio.NewReader(resp.Body)}
	case strings.Contains(contentType, "json"):
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read response body: %w", err)
		}
		body = normalizeReasoning(body, "message")
		resp.Body = io.NopCloser(bytes.NewReader(body))
		resp.ContentLength = int64(len(body))
		resp.Header.Del("Content-Length")
	}
	return resp, nil
}

// normalizeReasoning sets choices.N.<field>.reasoning_content from
// choices.N.<field>.reasoning when only the latter is present.
func normalizeReasoning(body []byte, field string) []byte {
	choices := gjson.GetBytes(body, "choices")
	if !choices.IsArray() {
		return body
	}
	out := body
	for i, choice := range choices.Array() {
		reasoning := choice.Get(field + ".reasoning")
		if reasoning.Type != gjson.String || reasoning.Str == "" {
			continue
		}
		if choice.Get(field + ".reasoning_content").Exists() {
			continue
		}
		path := fmt.Sprintf("choices.%d.%s.reasoning_content", i, field)
		if updated, err := sjson.SetBytes(out, path, reasoning.Str); err == nil {
			out = updated
		}
	}
	return out
}

// sseRewriter normalizes each "data:" line of an event stream as it is read.
type sseRewriter struct {
	src     io.Closer
	r       *bufio.Reader
	pending []byte
	err     error
}

func (s *sseRewriter) Read(p []byte) (int, error) {
	for len(s.pending) == 0 {
		if s.err != nil {
			return 0, s.err
		}
		line, err := s.r.ReadBytes('\n')
		s.err = err
		s.pending = rewriteEventLine(line)
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *sseRewriter) Close() error {
	return s.src.Close()
}

func rewriteEventLine(line []byte) []byte {
	trimmed := bytes.TrimSpace(line)
	if !bytes.HasPrefix(trimmed, []byte("data:")) {
		return line
	}
	payload := bytes.TrimSpace(trimmed[len("data:"):])
	if len(payload) == 0 || payload[0] != '{' {
		return line
	}
	normalized := normalizeReasoning(payload, "delta")
	if len(normalized) == len(payload) {
		return line
	}
	out := make([]byte, 0, len(normalized)+8)
	out = append(out, "data: "...)
	out = append(out, normalized...)
	out = append(out, '\n')
	return out
}
