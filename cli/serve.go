package cli

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/richinex/tablecopilot/config"
	"github.com/richinex/tablecopilot/internal/logging"
	"github.com/richinex/tablecopilot/notifier"
	"github.com/richinex/tablecopilot/server"
	"github.com/richinex/tablecopilot/storage"
)

// LoadSettings loads configuration and applies command-line overrides.
func LoadSettings(opts Options) (config.Settings, error) {
	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Settings{}, err
	}
	if opts.Provider != "" {
		if settings, err = settings.WithProvider(opts.Provider); err != nil {
			return config.Settings{}, err
		}
	}
	if opts.Verbose {
		settings.Logging.Level = "debug"
	}
	return settings, nil
}

// Serve runs the WebSocket server, the notifier and the prompt watcher
// until ctx is cancelled.
func Serve(ctx context.Context, opts Options) error {
	settings, err := LoadSettings(opts)
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(settings.Logging.Level, settings.Logging.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	app, err := Build(settings, logger, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("Close storage failed", zap.Error(err))
		}
	}()

	srvConfig := server.Config{
		Host:        settings.Server.Host,
		Port:        settings.Server.Port,
		MetricsPath: settings.Server.MetricsPath,
	}
	srv := server.New(srvConfig, app.Orchestrator, app.Metrics, logger)

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go app.WatchPrompt(watchCtx)

	if settings.Notifier.Enabled {
		n := notifier.New(app.Store, logger,
			notifier.WithSchedule(settings.Notifier.Schedule),
			notifier.WithMetrics(app.Metrics),
			notifier.WithSinks(notifier.LogSink{Logger: logger}, srv))
		if err := n.Start(); err != nil {
			return err
		}
		defer n.Stop()
	}

	logger.Info("Serving",
		zap.String("addr", "ws://"+srvConfig.Addr()),
		zap.Bool("dry_run", opts.DryRun))
	return srv.ListenAndServe(ctx)
}

// Notify runs only the reminder notifier against the configured storage.
func Notify(ctx context.Context, opts Options) error {
	settings, err := LoadSettings(opts)
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(settings.Logging.Level, settings.Logging.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	store, err := openStorage(settings.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	n := notifier.New(store, logger,
		notifier.WithSchedule(settings.Notifier.Schedule),
		notifier.WithSinks(notifier.LogSink{Logger: logger}))
	if _, err := n.Check(ctx); err != nil {
		logger.Warn("Initial reminder check failed", zap.Error(err))
	}
	if err := n.Start(); err != nil {
		return err
	}
	defer n.Stop()

	<-ctx.Done()
	return nil
}

// ListTools prints the registered tools.
func ListTools(out io.Writer, verbose bool) error {
	registry, err := NewRegistry(storage.NewInMemoryStorage(), nil)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "Available tools:")
	fmt.Fprintln(out)

	for _, meta := range registry.List() {
		fmt.Fprintf(out, "  %s\n", meta.Name)
		fmt.Fprintf(out, "    %s\n", firstLine(meta.Description))

		if verbose {
			params := describeParameters(meta.Parameters)
			if len(params) > 0 {
				fmt.Fprintln(out, "    Parameters:")
				for _, p := range params {
					fmt.Fprintf(out, "      %s\n", p)
				}
			}
		}
		fmt.Fprintln(out)
	}
	return nil
}
