// Package cmd implements the CLI commands for the inksocket tool.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/chrisboulton/inksocket-go"
	"github.com/chrisboulton/inksocket-go/internal/config"
	"github.com/chrisboulton/inksocket-go/internal/logger"
)

type ctxKey int

const (
	configCtxKey ctxKey = iota
	loggerCtxKey
)

var (
	configPath string
	urlFlag    string
	logLevel   string
	transport  string
	tokenizer  string
	timeout    time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "inksocket",
	Short: "Stream AI writing assistance over a WebSocket",
	Long: `inksocket talks to a writing-assistant backend over one WebSocket.
It completes text at a cursor and rewrites, expands or simplifies passages,
streaming tokens to stdout as they arrive.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(config.LoadOptions{
			Path:      configPath,
			EnvFile:   ".env",
			Overrides: flagOverrides(cmd),
		})
		if err != nil {
			return err
		}

		log := logger.Initialize(cfg.GetLogLevel())
		log.Debug("configuration loaded",
			"url", cfg.URL,
			"transport", cfg.Transport,
			"tokenizer", cfg.Tokenizer,
		)

		ctx := context.WithValue(cmd.Context(), configCtxKey, cfg)
		ctx = context.WithValue(ctx, loggerCtxKey, log)
		cmd.SetContext(ctx)
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Config file (default ~/.inksocket/config.yaml)")
	flags.StringVar(&urlFlag, "url", "", "Backend WebSocket URL (ws:// or wss://)")
	flags.StringVar(&logLevel, "log-level", "", "Log level: DEBUG, INFO, WARN or ERROR")
	flags.StringVar(&transport, "transport", "", "WebSocket implementation: coder or gorilla")
	flags.StringVar(&tokenizer, "tokenizer", "", "Token counter for context windows: estimate or tiktoken")
	flags.DurationVar(&timeout, "timeout", 0, "Timeout for each generation (e.g. 30s, 2m); 0 uses the configured value")
}

// flagOverrides returns the persistent flags the user set, keyed like the config.
func flagOverrides(cmd *cobra.Command) map[string]any {
	overrides := map[string]any{}
	flags := cmd.Flags()

	if flags.Changed("url") {
		overrides["url"] = urlFlag
	}
	if flags.Changed("log-level") {
		overrides["log_level"] = logLevel
	}
	if flags.Changed("transport") {
		overrides["transport"] = transport
	}
	if flags.Changed("tokenizer") {
		overrides["tokenizer"] = tokenizer
	}
	if flags.Changed("timeout") {
		overrides["timeout"] = timeout
	}
	return overrides
}

func getConfigFromContext(cmd *cobra.Command) (*config.Config, error) {
	cfg, ok := cmd.Context().Value(configCtxKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("config not found in context")
	}
	return cfg, nil
}

func getLoggerFromContext(cmd *cobra.Command) *slog.Logger {
	if log, ok := cmd.Context().Value(loggerCtxKey).(*slog.Logger); ok {
		return log
	}
	return slog.Default()
}

// connect builds a Client from the command's configuration and waits for
// the socket to open, riding out the configured reconnect attempts.
func connect(cmd *cobra.Command) (*inksocket.Client, *config.Config, error) {
	cfg, err := getConfigFromContext(cmd)
	if err != nil {
		return nil, nil, err
	}

	opts, err := cfg.Options(getLoggerFromContext(cmd))
	if err != nil {
		return nil, nil, err
	}
	client, err := inksocket.New(cfg.URL, opts...)
	if err != nil {
		return nil, nil, err
	}

	client.Connect()
	if err := client.Conn().WaitOpen(cmd.Context()); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("connect %s: %w", cfg.URL, err)
	}
	infof(cmd.ErrOrStderr(), "connected to %s", cfg.URL)

	return client, cfg, nil
}

// RootCmd returns the root command for use by tools like doc generators.
func RootCmd() *cobra.Command {
	return rootCmd
}
