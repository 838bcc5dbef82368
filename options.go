package inksocket

import (
	"io"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// Defaults used when an option is not supplied.
const (
	DefaultMaxReconnectAttempts = 3
	DefaultReconnectBaseDelay   = time.Second
	DefaultReconnectMaxDelay    = 10 * time.Second
	DefaultThrottleDelay        = 500 * time.Millisecond
	DefaultHandshakeTimeout     = 10 * time.Second
	DefaultMaxTokens            = 50
)

// Option configures a Conn or a Client.
type Option func(*config)

type config struct {
	logger    *slog.Logger
	clock     clockwork.Clock
	dialer    Dialer
	onSend    func(*Request)
	onReceive func(*Frame)

	maxAttempts      int
	baseDelay        time.Duration
	maxDelay         time.Duration
	throttle         time.Duration
	handshakeTimeout time.Duration

	maxTokens int
	window    *ContextWindow
}

func newConfig(opts []Option) config {
	cfg := config{
		maxAttempts:      DefaultMaxReconnectAttempts,
		baseDelay:        DefaultReconnectBaseDelay,
		maxDelay:         DefaultReconnectMaxDelay,
		throttle:         DefaultThrottleDelay,
		handshakeTimeout: DefaultHandshakeTimeout,
		maxTokens:        DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.clock == nil {
		cfg.clock = clockwork.NewRealClock()
	}
	if cfg.dialer == nil {
		cfg.dialer = WebSocketDialer(nil)
	}
	return cfg
}

func (c *config) validate() error {
	switch {
	case c.maxAttempts < 0:
		return &ConfigError{Field: "max reconnect attempts", Reason: "must not be negative"}
	case c.baseDelay <= 0:
		return &ConfigError{Field: "reconnect base delay", Reason: "must be positive"}
	case c.maxDelay < c.baseDelay:
		return &ConfigError{Field: "reconnect max delay", Reason: "must not be below the base delay"}
	case c.throttle < 0:
		return &ConfigError{Field: "throttle delay", Reason: "must not be negative"}
	case c.handshakeTimeout <= 0:
		return &ConfigError{Field: "handshake timeout", Reason: "must be positive"}
	case c.maxTokens < 0:
		return &ConfigError{Field: "max tokens", Reason: "must not be negative"}
	}
	if c.window != nil {
		if c.window.Before < 0 || c.window.After < 0 {
			return &ConfigError{Field: "context window", Reason: "budgets must not be negative"}
		}
	}
	return nil
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithClock replaces the clock used for throttling and reconnect timers.
func WithClock(clock clockwork.Clock) Option {
	return func(c *config) {
		c.clock = clock
	}
}

// WithDialer replaces the Dialer used to establish connections.
func WithDialer(d Dialer) Option {
	return func(c *config) {
		c.dialer = d
	}
}

// WithOnSend sets a callback invoked before each request is sent.
func WithOnSend(fn func(*Request)) Option {
	return func(c *config) {
		c.onSend = fn
	}
}

// WithOnReceive sets a callback invoked after each frame is received.
func WithOnReceive(fn func(*Frame)) Option {
	return func(c *config) {
		c.onReceive = fn
	}
}

// WithMaxReconnectAttempts bounds automatic reconnection after a failure.
// Zero disables automatic reconnection.
func WithMaxReconnectAttempts(n int) Option {
	return func(c *config) {
		c.maxAttempts = n
	}
}

// WithBackoff sets the base and the cap of the reconnect delay.
func WithBackoff(base, max time.Duration) Option {
	return func(c *config) {
		c.baseDelay = base
		c.maxDelay = max
	}
}

// WithThrottle sets the minimum interval between two successful sends.
// Zero disables throttling.
func WithThrottle(d time.Duration) Option {
	return func(c *config) {
		c.throttle = d
	}
}

// WithHandshakeTimeout bounds each connection attempt.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *config) {
		c.handshakeTimeout = d
	}
}

// WithMaxTokens sets max_tokens for completion requests. Zero omits it.
func WithMaxTokens(n int) Option {
	return func(c *config) {
		c.maxTokens = n
	}
}

// WithContextWindow sets the window used by Client.CompleteAt.
func WithContextWindow(w ContextWindow) Option {
	return func(c *config) {
		c.window = &w
	}
}
