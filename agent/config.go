// Agent configuration types.
//
// Information Hiding:
// - Default values hidden
// - Cap normalization hidden

package agent

import (
	"github.com/richinex/tablecopilot/llm"
)

// DefaultMaxToolIterations bounds the tool rounds of one turn.
const DefaultMaxToolIterations = 10

// Config holds agent configuration. It is frozen when a session is created.
type Config struct {
	// Name is the source tag on the agent's reasoning and final text.
	Name string

	// Description explains what this agent does.
	Description string

	// SystemPrompt guides the agent's behavior.
	SystemPrompt string

	// Tools are the specifications offered to the model.
	Tools []llm.ToolDefinition

	// MaxToolIterations caps tool rounds before a forced no-tools round.
	MaxToolIterations int

	// ReflectOnToolUse asks for one no-tools round when a turn would
	// otherwise end on a tool summary.
	ReflectOnToolUse bool
}

// DefaultConfig returns a basic agent configuration.
func DefaultConfig() Config {
	return Config{
		Name:              "assistant",
		Description:       "Workday schedule assistant",
		SystemPrompt:      "You are a helpful assistant.",
		MaxToolIterations: DefaultMaxToolIterations,
		ReflectOnToolUse:  true,
	}
}

// HasTools returns true if the agent has tools configured.
func (c *Config) HasTools() bool {
	return len(c.Tools) > 0
}

func (c *Config) iterationCap() int {
	if c.MaxToolIterations <= 0 {
		return DefaultMaxToolIterations
	}
	return c.MaxToolIterations
}
