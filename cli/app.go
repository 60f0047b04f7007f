// Application wiring for CLI commands.
//
// Information Hiding:
// - Provider, storage and tool construction hidden
// - Session factory (prompt rendering, tool definitions) hidden
// - Resource cleanup hidden behind Close

package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/richinex/tablecopilot/agent"
	"github.com/richinex/tablecopilot/config"
	"github.com/richinex/tablecopilot/gateway"
	"github.com/richinex/tablecopilot/llm"
	"github.com/richinex/tablecopilot/observability"
	"github.com/richinex/tablecopilot/orchestration"
	"github.com/richinex/tablecopilot/session"
	"github.com/richinex/tablecopilot/storage"
	"github.com/richinex/tablecopilot/tools"
)

// DryRunModel is reported as the model name when no backend is used.
const DryRunModel = "dry-run"

// Options holds CLI execution options.
type Options struct {
	ConfigPath string
	Provider   string
	DryRun     bool
	Verbose    bool
}

// App holds the wired components shared by the server commands.
type App struct {
	Settings     config.Settings
	Logger       *zap.Logger
	Metrics      *observability.Metrics
	Store        storage.ScheduleStorage
	Registry     *tools.Registry
	Executor     *tools.Executor
	Gateway      gateway.Gateway
	Prompt       *agent.PromptTemplate
	Sessions     *session.Store
	Orchestrator *orchestration.Orchestrator
	ModelName    string
}

// Build wires every component from settings.
func Build(settings config.Settings, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{
		Settings: settings,
		Logger:   logger,
		Metrics:  observability.NewMetrics(),
	}

	store, err := openStorage(settings.Storage)
	if err != nil {
		return nil, err
	}
	app.Store = store

	registry, err := NewRegistry(store, time.Now)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	app.Registry = registry
	app.Executor = tools.NewExecutor(registry, tools.ToolConfig{
		TimeoutSecs: settings.Agent.ToolTimeoutSecs,
		MaxRetries:  settings.Agent.ToolMaxRetries,
	}, logger).WithObserver(app.Metrics.RecordToolCall)

	if opts.DryRun {
		app.Gateway = EchoGateway()
		app.ModelName = DryRunModel
	} else {
		provider, err := createProvider(settings.LLM)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		app.Gateway = gateway.NewLLM(provider, logger, gateway.WithStreaming(settings.LLM.Streaming))
		app.ModelName = provider.Model()
	}

	prompt, err := agent.LoadPromptTemplate(settings.Agent.PromptTemplate)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	app.Prompt = prompt

	app.Sessions = session.NewStore(app.sessionConfig, logger)
	app.Orchestrator = orchestration.New(app.Sessions, app.Gateway, app.Executor, logger,
		orchestration.WithMetrics(app.Metrics),
		orchestration.WithDisplayExclusions(settings.Agent.DisplayExcludeTools...))

	logger.Info("Application ready",
		zap.String("provider", settings.LLM.Provider),
		zap.String("model", app.ModelName),
		zap.String("storage", settings.Storage.Driver),
		zap.Strings("tools", registry.Names()))
	return app, nil
}

// sessionConfig builds the agent configuration for a new session. The
// prompt is rendered now, so the current time is fixed per session.
func (a *App) sessionConfig(id string) agent.Config {
	cfg := agent.DefaultConfig()
	cfg.Name = a.Settings.Agent.Name
	cfg.SystemPrompt = a.Prompt.Render(a.ModelName, time.Now())
	cfg.Tools = a.Registry.Definitions()
	cfg.MaxToolIterations = a.Settings.Agent.MaxToolIterations
	cfg.ReflectOnToolUse = a.Settings.Agent.ReflectOnToolUse
	return cfg
}

// WatchPrompt reloads the prompt template on change until ctx ends.
func (a *App) WatchPrompt(ctx context.Context) {
	if err := a.Prompt.Watch(ctx, a.Logger); err != nil {
		a.Logger.Warn("Prompt watch stopped", zap.Error(err))
	}
}

// Close releases storage.
func (a *App) Close() error {
	return a.Store.Close()
}

// NewRegistry registers the schedule tools and askUserQuestion.
func NewRegistry(store storage.ScheduleStorage, now tools.Clock) (*tools.Registry, error) {
	scheduleTools, err := tools.NewScheduler(store, now).Tools()
	if err != nil {
		return nil, fmt.Errorf("build schedule tools: %w", err)
	}
	askUser, err := tools.NewAskUserTool()
	if err != nil {
		return nil, fmt.Errorf("build askUserQuestion: %w", err)
	}

	registry := tools.NewRegistry()
	if err := registry.RegisterAll(append(scheduleTools, askUser)...); err != nil {
		return nil, err
	}
	return registry, nil
}

// EchoGateway answers every message by echoing it, for running without a
// model backend.
func EchoGateway() *gateway.Script {
	return &gateway.Script{Then: func(req gateway.Request) gateway.Reply {
		var last string
		for i := len(req.Messages) - 1; i >= 0; i-- {
			if req.Messages[i].Role == llm.RoleUser {
				last = req.Messages[i].Content
				break
			}
		}
		return gateway.Reply{Text: "(dry run) " + strings.TrimSpace(last)}
	}}
}

func openStorage(cfg config.StorageConfig) (storage.ScheduleStorage, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return storage.NewInMemoryStorage(), nil
	case config.DriverSQLite:
		store, err := storage.OpenSqlite(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open schedule database: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %q", cfg.Driver)
	}
}

func createProvider(cfg config.LLMConfig) (llm.Provider, error) {
	providerType, err := llm.ParseProviderType(cfg.Provider)
	if err != nil {
		return nil, err
	}

	apiKey, err := config.APIKeyFor(cfg.Provider)
	if err != nil {
		return nil, err
	}
	if apiKey == "" {
		return nil, errors.New("empty API key")
	}

	builder := providerType.
		Model(cfg.Model).
		MaxTokens(cfg.MaxTokens).
		Temperature(float32(cfg.Temperature))
	if cfg.BaseURL != "" {
		builder = builder.BaseURL(cfg.BaseURL)
	}
	return builder.APIKey(apiKey)
}
