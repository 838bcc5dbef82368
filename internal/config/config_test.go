package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrisboulton/inksocket-go"
)

// isolate points HOME at an empty directory so the default config file is absent.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)
	t.Setenv("INKSOCKET_URL", "ws://localhost:8000/ws/completion")

	cfg, err := Load(LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, "ws://localhost:8000/ws/completion", cfg.URL)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, TransportCoder, cfg.Transport)
	assert.Equal(t, TokenizerEstimate, cfg.Tokenizer)
	assert.Equal(t, 2*time.Minute, cfg.Timeout)
	assert.Equal(t, 3, cfg.MaxReconnectAttempts)
	assert.Equal(t, time.Second, cfg.ReconnectBaseDelay)
	assert.Equal(t, 10*time.Second, cfg.ReconnectMaxDelay)
	assert.Equal(t, 500*time.Millisecond, cfg.Throttle)
	assert.Equal(t, 10*time.Second, cfg.HandshakeTimeout)
	assert.Equal(t, 50, cfg.MaxTokens)
	assert.Equal(t, 1536, cfg.ContextBefore)
	assert.Equal(t, 256, cfg.ContextAfter)
}

func TestLoad_MissingURL(t *testing.T) {
	isolate(t)

	_, err := Load(LoadOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
	assert.Contains(t, err.Error(), "'URL'")
}

func TestLoad_ConfigFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "inksocket.yaml")
	writeFile(t, path, `
url: wss://writer.example.com/ws/completion
transport: gorilla
throttle: 1s
reconnect_max_delay: 30s
max_tokens: 120
headers:
  Authorization: Bearer secret
`)

	cfg, err := Load(LoadOptions{Path: path})
	require.NoError(t, err)

	assert.Equal(t, "wss://writer.example.com/ws/completion", cfg.URL)
	assert.Equal(t, TransportGorilla, cfg.Transport)
	assert.Equal(t, time.Second, cfg.Throttle)
	assert.Equal(t, 30*time.Second, cfg.ReconnectMaxDelay)
	assert.Equal(t, 120, cfg.MaxTokens)
	assert.Equal(t, "Bearer secret", cfg.Headers["authorization"])
}

func TestLoad_DefaultPath(t *testing.T) {
	home := isolate(t)
	writeFile(t, filepath.Join(home, ConfigDirName, ConfigFileName), "url: ws://home.example.com/ws\n")

	cfg, err := Load(LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "ws://home.example.com/ws", cfg.URL)

	path, err := DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".inksocket", "config.yaml"), path)
}

func TestLoad_ExplicitPathMissing(t *testing.T) {
	isolate(t)
	t.Setenv("INKSOCKET_URL", "ws://localhost/ws")

	_, err := Load(LoadOptions{Path: filepath.Join(t.TempDir(), "nope.yaml")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error loading config file")
}

func TestLoad_Precedence(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, `
url: ws://file.example.com/ws
transport: gorilla
log_level: WARN
`)
	t.Setenv("INKSOCKET_TRANSPORT", "coder")
	t.Setenv("INKSOCKET_LOG_LEVEL", "ERROR")
	t.Setenv("INKSOCKET_THROTTLE", "250ms")

	cfg, err := Load(LoadOptions{
		Path:      path,
		Overrides: map[string]any{"log_level": "DEBUG"},
	})
	require.NoError(t, err)

	assert.Equal(t, "ws://file.example.com/ws", cfg.URL, "file beats default")
	assert.Equal(t, TransportCoder, cfg.Transport, "env beats file")
	assert.Equal(t, 250*time.Millisecond, cfg.Throttle, "env beats default")
	assert.Equal(t, "DEBUG", cfg.LogLevel, "override beats env")
}

func TestLoad_EnvFile(t *testing.T) {
	isolate(t)
	envFile := filepath.Join(t.TempDir(), ".env")
	writeFile(t, envFile, "INKSOCKET_URL=ws://dotenv.example.com/ws\nINKSOCKET_MAX_TOKENS=80\nINKSOCKET_TOKENIZER=tiktoken\n")

	t.Setenv("INKSOCKET_TOKENIZER", "estimate")
	for _, key := range []string{"INKSOCKET_URL", "INKSOCKET_MAX_TOKENS"} {
		require.NoError(t, os.Unsetenv(key))
		t.Cleanup(func() { _ = os.Unsetenv(key) })
	}

	cfg, err := Load(LoadOptions{EnvFile: envFile})
	require.NoError(t, err)

	assert.Equal(t, "ws://dotenv.example.com/ws", cfg.URL)
	assert.Equal(t, 80, cfg.MaxTokens)
	assert.Equal(t, TokenizerEstimate, cfg.Tokenizer, "process env beats .env")
}

func TestLoad_MissingEnvFileIsFine(t *testing.T) {
	isolate(t)
	t.Setenv("INKSOCKET_URL", "ws://localhost/ws")

	_, err := Load(LoadOptions{EnvFile: filepath.Join(t.TempDir(), ".env")})
	assert.NoError(t, err)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]any
		field     string
	}{
		{name: "http scheme", overrides: map[string]any{"url": "http://example.com/ws"}, field: "URL"},
		{name: "no host", overrides: map[string]any{"url": "ws://"}, field: "URL"},
		{name: "unknown transport", overrides: map[string]any{"transport": "quic"}, field: "Transport"},
		{name: "unknown tokenizer", overrides: map[string]any{"tokenizer": "bpe"}, field: "Tokenizer"},
		{name: "negative attempts", overrides: map[string]any{"max_reconnect_attempts": -1}, field: "MaxReconnectAttempts"},
		{name: "cap below base", overrides: map[string]any{"reconnect_max_delay": "500ms"}, field: "ReconnectMaxDelay"},
		{name: "zero base delay", overrides: map[string]any{"reconnect_base_delay": "0s", "reconnect_max_delay": "0s"}, field: "ReconnectBaseDelay"},
		{name: "negative throttle", overrides: map[string]any{"throttle": "-1s"}, field: "Throttle"},
		{name: "zero max tokens", overrides: map[string]any{"max_tokens": 0}, field: "MaxTokens"},
		{name: "zero context before", overrides: map[string]any{"context_before": 0}, field: "ContextBefore"},
		{name: "tiktoken without encoding", overrides: map[string]any{"tokenizer": "tiktoken", "encoding": ""}, field: "Encoding"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			t.Setenv("INKSOCKET_URL", "ws://localhost/ws")

			_, err := Load(LoadOptions{Overrides: tt.overrides})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "'"+tt.field+"'")
		})
	}
}

func TestLoad_ZeroAttemptsAllowed(t *testing.T) {
	isolate(t)
	t.Setenv("INKSOCKET_URL", "wss://example.com/ws")
	t.Setenv("INKSOCKET_MAX_RECONNECT_ATTEMPTS", "0")

	cfg, err := Load(LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.MaxReconnectAttempts)
}

func TestConfig_GetLogLevel(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		expected slog.Level
	}{
		{name: "DEBUG level", logLevel: "DEBUG", expected: slog.LevelDebug},
		{name: "WARN level", logLevel: "WARN", expected: slog.LevelWarn},
		{name: "lowercase level", logLevel: "error", expected: slog.LevelError},
		{name: "invalid level defaults to INFO", logLevel: "LOUD", expected: slog.LevelInfo},
		{name: "empty string defaults to INFO", logLevel: "", expected: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.logLevel}
			assert.Equal(t, tt.expected, cfg.GetLogLevel())
		})
	}
}

func TestConfig_Options(t *testing.T) {
	for _, transport := range []string{TransportCoder, TransportGorilla} {
		t.Run(transport, func(t *testing.T) {
			isolate(t)
			t.Setenv("INKSOCKET_URL", "ws://localhost/ws")
			t.Setenv("INKSOCKET_TRANSPORT", transport)

			cfg, err := Load(LoadOptions{})
			require.NoError(t, err)

			opts, err := cfg.Options(slog.Default())
			require.NoError(t, err)
			assert.Len(t, opts, 8)

			client, err := inksocket.New(cfg.URL, opts...)
			require.NoError(t, err)
			assert.Equal(t, cfg.URL, client.Conn().URL())
			assert.Equal(t, inksocket.StateIdle, client.Conn().State())
		})
	}
}

func TestSave(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	err := Save(&Config{
		URL:       "wss://saved.example.com/ws",
		Transport: TransportGorilla,
		Tokenizer: TokenizerEstimate,
		LogLevel:  "DEBUG",
	}, path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	cfg, err := Load(LoadOptions{Path: path})
	require.NoError(t, err)
	assert.Equal(t, "wss://saved.example.com/ws", cfg.URL)
	assert.Equal(t, TransportGorilla, cfg.Transport)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.Empty(t, cfg.URL)
	assert.Equal(t, TransportCoder, cfg.Transport)
	assert.Equal(t, 50, cfg.MaxTokens)
	assert.Error(t, cfg.Validate(), "defaults carry no URL")

	cfg.URL = "wss://example.com/ws"
	assert.NoError(t, cfg.Validate())
}
