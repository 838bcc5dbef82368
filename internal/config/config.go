// Package config manages configuration for the inksocket CLI.
// It uses Viper to merge a YAML config file, a .env file and INKSOCKET_
// environment variables, and validates the result.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/chrisboulton/inksocket-go"
)

const (
	// ConfigDirName is the directory under the user's home holding the config file.
	ConfigDirName = ".inksocket"
	// ConfigFileName is the name of the config file.
	ConfigFileName = "config.yaml"
	// EnvPrefix prefixes every environment variable read by Load.
	EnvPrefix = "INKSOCKET"
)

// Transport names accepted in the transport setting.
const (
	TransportCoder   = "coder"
	TransportGorilla = "gorilla"
)

// Tokenizer names accepted in the tokenizer setting.
const (
	TokenizerEstimate = "estimate"
	TokenizerTiktoken = "tiktoken"
)

// Config represents the CLI configuration.
type Config struct {
	URL     string            `mapstructure:"url" yaml:"url" validate:"required,wsurl"`
	Headers map[string]string `mapstructure:"headers" yaml:"headers"`

	LogLevel  string        `mapstructure:"log_level" yaml:"log_level"`
	Transport string        `mapstructure:"transport" yaml:"transport" validate:"oneof=coder gorilla"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gte=0"`

	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts" yaml:"max_reconnect_attempts" validate:"gte=0"`
	ReconnectBaseDelay   time.Duration `mapstructure:"reconnect_base_delay" yaml:"reconnect_base_delay" validate:"gt=0"`
	ReconnectMaxDelay    time.Duration `mapstructure:"reconnect_max_delay" yaml:"reconnect_max_delay" validate:"gtefield=ReconnectBaseDelay"`
	Throttle             time.Duration `mapstructure:"throttle" yaml:"throttle" validate:"gte=0"`
	HandshakeTimeout     time.Duration `mapstructure:"handshake_timeout" yaml:"handshake_timeout" validate:"gt=0"`

	MaxTokens     int    `mapstructure:"max_tokens" yaml:"max_tokens" validate:"gt=0"`
	Tokenizer     string `mapstructure:"tokenizer" yaml:"tokenizer" validate:"oneof=estimate tiktoken"`
	Encoding      string `mapstructure:"encoding" yaml:"encoding" validate:"required_if=Tokenizer tiktoken"`
	ContextBefore int    `mapstructure:"context_before" yaml:"context_before" validate:"gt=0"`
	ContextAfter  int    `mapstructure:"context_after" yaml:"context_after" validate:"gte=0"`
}

// LoadOptions tells Load where to look.
type LoadOptions struct {
	// Path is the config file. Empty means ~/.inksocket/config.yaml, which
	// may be absent; an explicit path must exist.
	Path string

	// EnvFile is a dotenv file loaded before reading the environment. It may
	// be absent. Variables already set in the environment win.
	EnvFile string

	// Overrides take precedence over every other source, keyed like the
	// mapstructure tags (e.g. "log_level").
	Overrides map[string]any
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("wsurl", func(fl validator.FieldLevel) bool {
		u, err := url.Parse(fl.Field().String())
		if err != nil || u.Host == "" {
			return false
		}
		return u.Scheme == "ws" || u.Scheme == "wss"
	})
	return v
}

// Load loads the configuration. Precedence, highest first: overrides,
// environment (including the .env file), config file, defaults.
func Load(opts LoadOptions) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("error loading env file: %w", err)
		}
	}

	v := viper.New()
	setDefaults(v)

	if err := loadConfigFile(v, opts.Path); err != nil {
		return nil, err
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvVars(v)

	for key, value := range opts.Overrides {
		v.Set(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Defaults returns the configuration with every default applied and no URL.
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Validate checks cfg against its validation tags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// DefaultPath returns ~/.inksocket/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("error getting home directory: %w", err)
	}
	return filepath.Join(home, ConfigDirName, ConfigFileName), nil
}

// GetLogLevel returns the slog.Level for the configured level name.
// Defaults to INFO if the name is invalid.
func (c *Config) GetLogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Options translates the configuration into client options.
func (c *Config) Options(logger *slog.Logger) ([]inksocket.Option, error) {
	header := http.Header{}
	for k, v := range c.Headers {
		header.Set(k, v)
	}
	dialOpts := &inksocket.DialOptions{HTTPHeader: header}

	var dialer inksocket.Dialer
	switch c.Transport {
	case TransportGorilla:
		dialer = inksocket.GorillaDialer(dialOpts)
	default:
		dialer = inksocket.WebSocketDialer(dialOpts)
	}

	var counter inksocket.TokenCounter = inksocket.EstimateCounter{}
	if c.Tokenizer == TokenizerTiktoken {
		tc, err := inksocket.NewTiktokenCounter(c.Encoding)
		if err != nil {
			return nil, fmt.Errorf("error loading tiktoken encoding %q: %w", c.Encoding, err)
		}
		counter = tc
	}

	return []inksocket.Option{
		inksocket.WithLogger(logger),
		inksocket.WithDialer(dialer),
		inksocket.WithMaxReconnectAttempts(c.MaxReconnectAttempts),
		inksocket.WithBackoff(c.ReconnectBaseDelay, c.ReconnectMaxDelay),
		inksocket.WithThrottle(c.Throttle),
		inksocket.WithHandshakeTimeout(c.HandshakeTimeout),
		inksocket.WithMaxTokens(c.MaxTokens),
		inksocket.WithContextWindow(inksocket.ContextWindow{
			Before:  c.ContextBefore,
			After:   c.ContextAfter,
			Counter: counter,
		}),
	}, nil
}

// Save writes the connection settings to path, creating its directory.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	v := viper.New()
	v.Set("url", cfg.URL)
	v.Set("transport", cfg.Transport)
	v.Set("tokenizer", cfg.Tokenizer)
	v.Set("log_level", cfg.LogLevel)
	if len(cfg.Headers) > 0 {
		v.Set("headers", cfg.Headers)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		return fmt.Errorf("error setting config file permissions: %w", err)
	}
	return nil
}

// Helper functions

func setDefaults(v *viper.Viper) {
	v.SetDefault("url", "")
	v.SetDefault("log_level", "INFO")
	v.SetDefault("transport", TransportCoder)
	v.SetDefault("timeout", "2m")
	v.SetDefault("max_reconnect_attempts", inksocket.DefaultMaxReconnectAttempts)
	v.SetDefault("reconnect_base_delay", inksocket.DefaultReconnectBaseDelay)
	v.SetDefault("reconnect_max_delay", inksocket.DefaultReconnectMaxDelay)
	v.SetDefault("throttle", inksocket.DefaultThrottleDelay)
	v.SetDefault("handshake_timeout", inksocket.DefaultHandshakeTimeout)
	v.SetDefault("max_tokens", inksocket.DefaultMaxTokens)
	v.SetDefault("tokenizer", TokenizerEstimate)
	v.SetDefault("encoding", "cl100k_base")
	v.SetDefault("context_before", inksocket.DefaultContextBefore)
	v.SetDefault("context_after", inksocket.DefaultContextAfter)
}

func loadConfigFile(v *viper.Viper, path string) error {
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return err
		}
		if _, err = os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return nil
		}
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error loading config file: %w", err)
	}
	return nil
}

func bindEnvVars(v *viper.Viper) {
	envVars := []string{
		"URL",
		"LOG_LEVEL",
		"TRANSPORT",
		"TIMEOUT",
		"MAX_RECONNECT_ATTEMPTS",
		"RECONNECT_BASE_DELAY",
		"RECONNECT_MAX_DELAY",
		"THROTTLE",
		"HANDSHAKE_TIMEOUT",
		"MAX_TOKENS",
		"TOKENIZER",
		"ENCODING",
		"CONTEXT_BEFORE",
		"CONTEXT_AFTER",
	}

	for _, envVar := range envVars {
		_ = v.BindEnv(strings.ToLower(envVar), EnvPrefix+"_"+envVar)
	}
}
