package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chrisboulton/inksocket-go/internal/config"
)

var configureHeaders []string

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Write the backend URL and connection settings to the config file",
	Long: fmt.Sprintf(`Write the backend URL and connection settings to the config file.
This creates or replaces ~/%s/%s unless --config names another file.`, config.ConfigDirName, config.ConfigFileName),
	// The file being written may not exist or be valid yet.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE:              runConfigure,
}

func init() {
	configureCmd.Flags().StringArrayVar(&configureHeaders, "header", nil, "Handshake header as Name=Value (repeatable)")
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, _ []string) error {
	if urlFlag == "" {
		return errors.New("--url is required")
	}

	cfg := config.Defaults()
	cfg.URL = urlFlag
	if transport != "" {
		cfg.Transport = transport
	}
	if tokenizer != "" {
		cfg.Tokenizer = tokenizer
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	headers, err := parseHeaders(configureHeaders)
	if err != nil {
		return err
	}
	cfg.Headers = headers

	if err := cfg.Validate(); err != nil {
		return err
	}

	path := configPath
	if path == "" {
		if path, err = config.DefaultPath(); err != nil {
			return err
		}
	}
	if err := config.Save(cfg, path); err != nil {
		return err
	}

	successf(cmd.ErrOrStderr(), "configuration written to %s", path)
	return nil
}

func parseHeaders(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q: want Name=Value", pair)
		}
		headers[name] = strings.TrimSpace(value)
	}
	return headers, nil
}
