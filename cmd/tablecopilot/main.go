// Package main provides the tablecopilot CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/richinex/tablecopilot/cli"
)

var (
	// Global flags
	configPath string
	provider   string
	verbose    bool
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "tablecopilot",
		Short: "Conversational schedule assistant over WebSocket",
		Long: `A WebSocket service that runs a tool-using assistant for managing a
personal schedule, plus the clients to talk to it.

Configuration is read from built-in defaults, an optional YAML file
(--config or TABLECOPILOT_CONFIG) and environment variables.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVarP(&provider, "provider", "p", "", "LLM provider (openrouter, openai, anthropic, deepseek, gemini)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(notifyCmd())
	rootCmd.AddCommand(checkCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(toolsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func options() cli.Options {
	return cli.Options{
		ConfigPath: configPath,
		Provider:   provider,
		Verbose:    verbose,
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func serveCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the WebSocket server and reminder notifier",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()
			opts := options()
			opts.DryRun = dryRun
			return cli.Serve(ctx, opts)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Echo messages instead of calling a model backend")

	return cmd
}

func notifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "notify",
		Short: "Run only the reminder notifier",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()
			return cli.Notify(ctx, options())
		},
	}
}

func clientFlags(cmd *cobra.Command, opts *cli.ClientOptions) {
	cmd.Flags().StringVarP(&opts.URL, "url", "u", "ws://localhost:8765", "Server WebSocket URL")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 5*time.Second, "Connect and reply timeout")
}

func checkCmd() *cobra.Command {
	var opts cli.ClientOptions

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify that the server accepts connections",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()
			return cli.Check(ctx, opts, cmd.OutOrStdout())
		},
	}

	clientFlags(cmd, &opts)
	return cmd
}

func chatCmd() *cobra.Command {
	var opts cli.ClientOptions

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat with the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()
			return cli.Chat(ctx, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	clientFlags(cmd, &opts)
	cmd.Flags().StringVar(&opts.SessionID, "session", "", "Session ID (defaults to the connection address)")
	return cmd
}

func toolsCmd() *cobra.Command {
	var verboseTools bool

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List available tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.ListTools(cmd.OutOrStdout(), verboseTools)
		},
	}

	cmd.Flags().BoolVarP(&verboseTools, "verbose", "V", false, "Show tool parameters")

	return cmd
}
