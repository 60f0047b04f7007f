// Session Orchestrator.
//
// Entry point the transport talks to: one call per user message.
//
// Information Hiding:
// - Session lookup and creation hidden behind the store
// - Per-turn agent construction hidden
// - Event bookkeeping (ledger) and answer extraction hidden
// - History updates only on successful turns

package orchestration

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/richinex/tablecopilot/agent"
	"github.com/richinex/tablecopilot/answer"
	"github.com/richinex/tablecopilot/event"
	"github.com/richinex/tablecopilot/gateway"
	"github.com/richinex/tablecopilot/internal/logging"
	"github.com/richinex/tablecopilot/model"
	"github.com/richinex/tablecopilot/observability"
	"github.com/richinex/tablecopilot/session"
)

// Sink receives live events of a turn in emission order.
type Sink func(event.Event)

// Orchestrator composes the session store, the turn loop and the extractor.
type Orchestrator struct {
	store      *session.Store
	gateway    gateway.Gateway
	dispatcher agent.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
	exclude    []string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics records turn, round and extraction metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithDisplayExclusions names tools whose display blocks are never appended
// to the answer.
func WithDisplayExclusions(names ...string) Option {
	return func(o *Orchestrator) { o.exclude = append([]string(nil), names...) }
}

// New creates an orchestrator.
func New(store *session.Store, gw gateway.Gateway, dispatcher agent.Dispatcher, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		store:      store,
		gateway:    gw,
		dispatcher: dispatcher,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Store exposes the session store.
func (o *Orchestrator) Store() *session.Store {
	return o.store
}

// ProcessMessage runs one turn for the session. A failed turn returns a
// result whose content describes the error alongside the error itself;
// history is left untouched in that case.
func (o *Orchestrator) ProcessMessage(ctx context.Context, sessionID, text string, sink Sink) (model.TurnResult, error) {
	started := time.Now()

	sess, err := o.store.GetOrCreate(sessionID)
	if err != nil {
		o.metrics.RecordTurn("error", time.Since(started))
		return model.NewTurnResult("Error: "+err.Error(), nil, nil), err
	}
	o.metrics.SetSessions(o.store.Len())

	o.logger.Debug("Processing message",
		zap.String("session", sessionID),
		zap.String("text", logging.Preview(text, 200)))

	ledger := event.NewLedger()
	emit := func(e event.Event) {
		ledger.Observe(e)
		if sink != nil {
			sink(e)
		}
	}

	runner := agent.New(sess.Config, o.gateway, o.dispatcher, o.logger).
		WithRoundObserver(o.metrics.RecordRound)

	events, err := runner.Run(ctx, sess.History(), text, emit)
	if err != nil {
		o.metrics.RecordTurn("error", time.Since(started))
		o.logger.Warn("Turn failed",
			zap.String("session", sessionID),
			zap.Duration("elapsed", time.Since(started)),
			zap.Error(err))
		return model.NewTurnResult("Error: "+err.Error(), ledger.Thoughts(), ledger.ToolCalls()), err
	}

	res := answer.New(sess.Config.Name, o.exclude...).Extract(events)
	o.metrics.RecordExtraction(res.Tier.String())
	sess.Append(text, res.Text)

	elapsed := time.Since(started)
	o.metrics.RecordTurn("success", elapsed)
	o.logger.Info("Turn complete",
		zap.String("session", sessionID),
		zap.String("tier", res.Tier.String()),
		zap.Int("events", len(events)),
		zap.Duration("elapsed", elapsed))

	return model.NewTurnResult(res.Text, ledger.Thoughts(), ledger.ToolCalls()), nil
}

// ClearHistory drops the session so the next message rebuilds it.
func (o *Orchestrator) ClearHistory(sessionID string) bool {
	cleared := o.store.Clear(sessionID)
	o.metrics.SetSessions(o.store.Len())
	if cleared {
		o.logger.Info("Session cleared", zap.String("session", sessionID))
	}
	return cleared
}
