// Tool Executor: dispatch boundary between the turn loop and tools.
//
// Information Hiding:
// - Retry strategy and backoff algorithm hidden
// - Timeout and panic recovery hidden
// - Conversion of every outcome into a tool result event

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/richinex/tablecopilot/event"
)

// Observer is notified after every dispatch; metrics hook in here.
type Observer func(name string, isError bool, elapsed time.Duration)

// Executor runs registered tools and never lets a tool failure escape as
// anything other than an error result.
type Executor struct {
	registry *Registry
	config   ToolConfig
	logger   *zap.Logger
	observe  Observer
}

// NewExecutor creates an executor over the given registry.
func NewExecutor(registry *Registry, config ToolConfig, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{registry: registry, config: config, logger: logger}
}

// WithObserver sets a callback invoked after each dispatch.
func (e *Executor) WithObserver(fn Observer) *Executor {
	e.observe = fn
	return e
}

// Registry returns the registry the executor dispatches to.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// Dispatch invokes the named tool and converts the outcome into a result.
// Unknown tools, invalid arguments, execution errors, panics and timeouts
// all become IsError results; so does a failed envelope.
func (e *Executor) Dispatch(ctx context.Context, req event.ToolCallRequest) event.ToolCallResult {
	start := time.Now()
	res := e.dispatch(ctx, req)
	elapsed := time.Since(start)

	fields := []zap.Field{
		zap.String("tool", req.Name),
		zap.String("call_id", req.ID),
		zap.Duration("elapsed", elapsed),
	}
	if res.IsError {
		e.logger.Warn("tool call failed", append(fields, zap.String("error", res.Text))...)
	} else {
		e.logger.Debug("tool call completed", fields...)
	}
	if e.observe != nil {
		e.observe(req.Name, res.IsError, elapsed)
	}
	return res
}

func (e *Executor) dispatch(ctx context.Context, req event.ToolCallRequest) event.ToolCallResult {
	result := event.ToolCallResult{CallID: req.ID, Name: req.Name}

	tool, ok := e.registry.Get(req.Name)
	if !ok {
		result.IsError = true
		result.Text = fmt.Errorf("%w: %s", ErrToolNotFound, req.Name).Error()
		if hints := e.registry.Suggest(req.Name); len(hints) > 0 {
			result.Text += fmt.Sprintf(" (did you mean %s?)", strings.Join(hints, ", "))
		}
		return result
	}

	if err := tool.Validate(req.Arguments); err != nil {
		result.IsError = true
		result.Text = Fail(req.Name, "%v", err).JSON()
		return result
	}

	env, err := e.execute(ctx, tool, req.Arguments)
	if err != nil {
		result.IsError = true
		result.Text = err.Error()
		return result
	}
	result.Text = env.JSON()
	result.IsError = !env.Success
	return result
}

// execute runs a tool with timeout and retries; retries apply only when
// the tool itself breaks, never to failed envelopes.
func (e *Executor) execute(ctx context.Context, tool Tool, args json.RawMessage) (Envelope, error) {
	name := tool.Metadata().Name
	attempts := e.config.Attempts()

	var lastErr error
	for attempt := uint32(0); attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Envelope{}, ctx.Err()
			case <-time.After(calculateBackoff(attempt)):
			}
		}

		env, err := e.runOnce(ctx, tool, args)
		if err == nil {
			return env, nil
		}
		lastErr = err
	}

	if attempts == 1 {
		return Envelope{}, fmt.Errorf("tool '%s' failed: %w", name, lastErr)
	}
	return Envelope{}, fmt.Errorf("tool '%s' failed after %d attempts: %w", name, attempts, lastErr)
}

func (e *Executor) runOnce(ctx context.Context, tool Tool, args json.RawMessage) (env Envelope, err error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(e.config.Timeout())*time.Second)
	defer cancel()

	type outcome struct {
		env Envelope
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		var o outcome
		defer func() {
			if r := recover(); r != nil {
				o = outcome{err: fmt.Errorf("panic: %v", r)}
			}
			done <- o
		}()
		o.env, o.err = tool.Execute(ctx, args)
	}()

	select {
	case o := <-done:
		return o.env, o.err
	case <-ctx.Done():
		return Envelope{}, fmt.Errorf("timed out: %w", ctx.Err())
	}
}

// calculateBackoff returns the backoff duration for the given attempt.
func calculateBackoff(attempt uint32) time.Duration {
	const (
		baseDelay = 100 * time.Millisecond
		maxDelay  = 5 * time.Second
	)

	delay := baseDelay * time.Duration(1<<attempt)
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}
