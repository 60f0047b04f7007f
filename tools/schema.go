// Typed tool arguments.
//
// Information Hiding:
// - JSON Schema generation from Go structs
// - Schema compilation and argument validation
// - Argument decoding, including salvage of malformed JSON

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	invopop "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v5"

	jsonutil "github.com/richinex/tablecopilot/internal/json"
)

// SchemaFor reflects the argument struct T into a JSON Schema object.
func SchemaFor[T any]() (map[string]any, error) {
	r := &invopop.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: true,
	}
	var zero T
	raw, err := json.Marshal(r.Reflect(&zero))
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	delete(schema, "$schema")
	delete(schema, "$id")
	if _, ok := schema["properties"]; !ok {
		schema["properties"] = map[string]any{}
	}
	return schema, nil
}

// TypedTool adapts a function over a typed argument struct into a Tool.
// The schema advertised to the model and the schema used for validation
// are the same document.
type TypedTool[T any] struct {
	meta     ToolMetadata
	compiled *jsonschema.Schema
	run      func(ctx context.Context, args T) Envelope
}

// NewTypedTool builds a tool named name around run.
func NewTypedTool[T any](name, description string, run func(ctx context.Context, args T) Envelope) (*TypedTool[T], error) {
	params, err := SchemaFor[T]()
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", name, err)
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", name, err)
	}
	compiled, err := jsonschema.CompileString(name+".json", string(raw))
	if err != nil {
		return nil, fmt.Errorf("tool %s: compile schema: %w", name, err)
	}
	return &TypedTool[T]{
		meta:     ToolMetadata{Name: name, Description: description, Parameters: params},
		compiled: compiled,
		run:      run,
	}, nil
}

// Metadata returns the tool's name, description and schema.
func (t *TypedTool[T]) Metadata() ToolMetadata {
	return t.meta
}

// Validate checks arguments against the tool's schema.
func (t *TypedTool[T]) Validate(args json.RawMessage) error {
	doc, err := decodeArgs(args)
	if err != nil {
		return err
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if err := t.compiled.Validate(v); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// Execute decodes arguments and runs the tool.
func (t *TypedTool[T]) Execute(ctx context.Context, args json.RawMessage) (Envelope, error) {
	doc, err := decodeArgs(args)
	if err != nil {
		return Envelope{}, err
	}
	var typed T
	if err := json.Unmarshal(doc, &typed); err != nil {
		return Fail(t.meta.Name, "invalid arguments: %v", err), nil
	}
	return t.run(ctx, typed), nil
}

// decodeArgs normalizes raw arguments: empty means {}, and objects wrapped
// in prose, code fences or a JSON string are salvaged.
func decodeArgs(args json.RawMessage) ([]byte, error) {
	trimmed := bytes.TrimSpace(args)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []byte("{}"), nil
	}
	if trimmed[0] == '{' && json.Valid(trimmed) {
		return trimmed, nil
	}
	extracted, err := jsonutil.ExtractJSON(string(trimmed))
	if err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	return []byte(extracted), nil
}
