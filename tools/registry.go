// Package tools provides tool management and registration.
//
// Information Hiding:
// - Tool storage and lookup implementation hidden
// - Registration and discovery mechanisms abstracted
// - Conversion to model-facing definitions kept here

package tools

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	radix "github.com/armon/go-radix"

	"github.com/richinex/tablecopilot/llm"
)

// ErrToolNotFound is returned when a name is not registered.
var ErrToolNotFound = errors.New("tool not found")

// minSuggestPrefix is the shortest shared prefix worth suggesting.
const minSuggestPrefix = 4

// Registry manages available tools. Tools are registered at startup and
// looked up concurrently by every session afterwards. Names are kept in a
// radix tree, so walks come back sorted.
type Registry struct {
	mu    sync.RWMutex
	tools *radix.Tree
}

// NewRegistry creates a new empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: radix.New(),
	}
}

// Register adds a new tool to the registry.
// Returns error if a tool with the same name already exists.
func (r *Registry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Metadata().Name
	if _, exists := r.tools.Get(name); exists {
		return fmt.Errorf("tool '%s' already registered", name)
	}
	r.tools.Insert(name, tool)
	return nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, exists := r.tools.Get(name)
	if !exists {
		return nil, false
	}
	return v.(Tool), true
}

// Suggest returns registered names sharing the longest prefix with name,
// for "did you mean" hints. Shared prefixes shorter than four bytes do
// not count.
func (r *Registry) Suggest(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for n := len(name); n >= minSuggestPrefix; n-- {
		var found []string
		r.tools.WalkPrefix(name[:n], func(key string, _ interface{}) bool {
			found = append(found, key)
			return false
		})
		if len(found) > 0 {
			return found
		}
	}
	return nil
}

// Names returns all registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, r.tools.Len())
	r.tools.Walk(func(name string, _ interface{}) bool {
		names = append(names, name)
		return false
	})
	return names
}

// List returns metadata for all registered tools, sorted by name.
func (r *Registry) List() []ToolMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	metadata := make([]ToolMetadata, 0, r.tools.Len())
	r.tools.Walk(func(_ string, v interface{}) bool {
		metadata = append(metadata, v.(Tool).Metadata())
		return false
	})
	return metadata
}

// Definitions returns the tool specifications handed to the model.
func (r *Registry) Definitions() []llm.ToolDefinition {
	list := r.List()
	defs := make([]llm.ToolDefinition, len(list))
	for i, m := range list {
		defs[i] = llm.ToolDefinition{
			Name:        m.Name,
			Description: m.Description,
			Parameters:  m.Parameters,
		}
	}
	return defs
}

// Description returns a formatted description of all tools.
func (r *Registry) Description() string {
	var descriptions []string
	for _, meta := range r.List() {
		descriptions = append(descriptions, fmt.Sprintf("- %s: %s", meta.Name, meta.Description))
	}
	return strings.Join(descriptions, "\n")
}

// RegisterAll registers every tool, stopping at the first failure.
func (r *Registry) RegisterAll(tools ...Tool) error {
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return fmt.Errorf("failed to register tools: %w", err)
		}
	}
	return nil
}
