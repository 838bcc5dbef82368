package inksocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// ConnState is the lifecycle state of a Conn.
type ConnState int

const (
	StateIdle ConnState = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

// String returns the string representation of a ConnState.
func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConnStatus is a point-in-time view of a Conn.
type ConnStatus struct {
	State           ConnState
	Attempts        int
	ShouldReconnect bool
	RetryPending    bool
	RetryDelay      time.Duration
	LastSend        time.Time
}

// Conn maintains one logical WebSocket connection, reconnects with capped
// exponential backoff after abnormal closes and broadcasts lifecycle events.
// It is safe for concurrent use by multiple goroutines.
type Conn struct {
	url     string
	cfg     config
	limiter *rate.Limiter

	nextID atomic.Uint64
	hubs   map[EventType]*hub[Event]

	mu              sync.Mutex
	state           ConnState
	epoch           uint64 // bumped on every connect and disconnect
	transport       Transport
	cancelRead      context.CancelFunc
	attempts        int
	shouldReconnect bool
	gaveUp          bool
	lastErr         error
	retryTimer      clockwork.Timer
	retrySeq        uint64 // identifies the armed timer
	retryDelay      time.Duration
	lastSend        time.Time
	changed         chan struct{}
}

// NewConn creates a Conn for url. It does not connect.
func NewConn(url string, opts ...Option) (*Conn, error) {
	if url == "" {
		return nil, &ConfigError{Field: "url", Reason: "must not be empty"}
	}
	cfg := newConfig(opts)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return newConn(url, cfg), nil
}

func newConn(url string, cfg config) *Conn {
	limit := rate.Inf
	if cfg.throttle > 0 {
		limit = rate.Every(cfg.throttle)
	}

	c := &Conn{
		url:             url,
		cfg:             cfg,
		limiter:         rate.NewLimiter(limit, 1),
		hubs:            make(map[EventType]*hub[Event]),
		state:           StateIdle,
		shouldReconnect: true,
		changed:         make(chan struct{}),
	}
	for _, t := range []EventType{EventOpen, EventMessage, EventClose, EventError, EventCompletion} {
		c.hubs[t] = newHub[Event](string(t), cfg.logger)
	}
	return c
}

// URL returns the endpoint the Conn dials.
func (c *Conn) URL() string {
	return c.url
}

// State returns the current lifecycle state.
func (c *Conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns the current lifecycle state together with retry bookkeeping.
func (c *Conn) Status() ConnStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ConnStatus{
		State:           c.state,
		Attempts:        c.attempts,
		ShouldReconnect: c.shouldReconnect,
		RetryPending:    c.retryTimer != nil,
		RetryDelay:      c.retryDelay,
		LastSend:        c.lastSend,
	}
}

// On registers fn for events of type t. Listeners run in registration order
// on the goroutine that produced the event and must not block. Unknown event
// types are ignored and yield a zero ListenerID.
func (c *Conn) On(t EventType, fn func(Event)) ListenerID {
	if !t.valid() || fn == nil {
		return 0
	}
	id := ListenerID(c.nextID.Add(1))
	c.hubs[t].add(id, fn)
	return id
}

// Off removes a listener registered with On.
func (c *Conn) Off(id ListenerID) bool {
	for _, h := range c.hubs {
		if h.remove(id) {
			return true
		}
	}
	return false
}

func (c *Conn) emit(ev Event) {
	c.hubs[ev.Type].emit(ev)
}

// Connect starts a connection attempt in the background. It is a no-op while
// the Conn is already connecting or open.
func (c *Conn) Connect() {
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateOpen {
		state := c.state
		c.mu.Unlock()
		c.cfg.logger.Debug("connect skipped", slog.String("state", state.String()))
		return
	}
	c.epoch++
	epoch := c.epoch
	c.lastErr = nil
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	c.cfg.logger.Info("connecting", slog.String("url", c.url))
	go c.dial(epoch)
}

// Disconnect closes the connection with a normal closure and disables
// automatic reconnection until the next successful open or ResetReconnect.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	c.shouldReconnect = false
	c.attempts = 0
	c.stopRetryLocked()
	c.epoch++
	epoch := c.epoch
	t := c.transport
	cancelRead := c.cancelRead
	c.transport = nil
	c.cancelRead = nil
	wasActive := t != nil || c.state == StateConnecting
	if t != nil {
		c.setStateLocked(StateClosing)
	} else if c.state != StateIdle {
		c.setStateLocked(StateClosed)
	}
	c.mu.Unlock()

	if t == nil {
		if wasActive {
			c.cfg.logger.Info("connection attempt abandoned")
		}
		return
	}

	if err := t.Close(StatusNormalClosure, "client disconnect"); err != nil {
		c.cfg.logger.Debug("close transport", slog.Any("error", err))
	}
	cancelRead()

	c.mu.Lock()
	if c.epoch == epoch {
		c.setStateLocked(StateClosed)
	}
	c.mu.Unlock()

	c.cfg.logger.Info("disconnected")
	c.emit(Event{Type: EventClose, Code: StatusNormalClosure, Reason: "client disconnect"})
}

// ResetReconnect re-arms automatic reconnection after a give-up: the attempt
// counter goes back to zero and any pending retry timer is cancelled.
func (c *Conn) ResetReconnect() {
	c.mu.Lock()
	c.shouldReconnect = true
	c.gaveUp = false
	c.attempts = 0
	c.stopRetryLocked()
	c.mu.Unlock()
}

// Reconnect is ResetReconnect followed by Connect.
func (c *Conn) Reconnect() {
	c.ResetReconnect()
	c.Connect()
}

// WaitOpen blocks until the Conn is open, the context is done, or automatic
// reconnection has given up.
func (c *Conn) WaitOpen(ctx context.Context) error {
	for {
		c.mu.Lock()
		state := c.state
		idle := state == StateClosed && c.retryTimer == nil
		gaveUp := c.gaveUp
		lastErr := c.lastErr
		ch := c.changed
		c.mu.Unlock()

		switch {
		case state == StateOpen:
			return nil
		case state == StateIdle:
			return ErrNotConnected
		case idle && gaveUp:
			return ErrReconnectExhausted
		case idle && lastErr != nil:
			return lastErr
		case idle:
			return ErrClosed
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// Send encodes req and writes it to the socket. It fails with ErrNotConnected
// when the Conn is not open and with ErrThrottled when called within the
// throttle interval of the previous successful send.
func (c *Conn) Send(ctx context.Context, req *Request) error {
	c.mu.Lock()
	t := c.transport
	if c.state != StateOpen || t == nil {
		c.mu.Unlock()
		c.cfg.logger.Warn("send rejected: not connected")
		return ErrNotConnected
	}
	now := c.cfg.clock.Now()
	r := c.limiter.ReserveN(now, 1)
	if wait := r.DelayFrom(now); !r.OK() || wait > 0 {
		r.CancelAt(now)
		c.mu.Unlock()
		c.cfg.logger.Warn("send rejected: throttled", slog.Duration("wait", wait))
		return fmt.Errorf("%w: retry in %s", ErrThrottled, wait)
	}
	c.mu.Unlock()

	if c.cfg.onSend != nil {
		c.cfg.onSend(req)
	}
	c.cfg.logger.Debug("sending request",
		slog.String("action", string(req.Action)),
		slog.Int("text_len", len(req.Text)),
	)

	if err := t.Send(ctx, req); err != nil {
		r.CancelAt(now)
		return err
	}

	c.mu.Lock()
	c.lastSend = now
	c.mu.Unlock()
	return nil
}

// Backoff returns the delay before reconnect attempt n (1-based):
// min(base * 2^n, cap).
func (c *Conn) Backoff(n int) time.Duration {
	return backoff(c.cfg.baseDelay, c.cfg.maxDelay, n)
}

func backoff(base, max time.Duration, n int) time.Duration {
	d := base
	for i := 0; i < n; i++ {
		if d > max/2 {
			return max
		}
		d *= 2
	}
	return min(d, max)
}

// dial performs one connection attempt for the given epoch.
func (c *Conn) dial(epoch uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.handshakeTimeout)
	t, err := c.cfg.dialer(ctx, c.url)
	cancel()

	c.mu.Lock()
	if c.epoch != epoch {
		// Disconnected while the handshake was in flight.
		c.mu.Unlock()
		if t != nil {
			_ = t.Close(StatusNormalClosure, "superseded")
		}
		return
	}

	if err != nil {
		c.lastErr = err
		c.setStateLocked(StateClosed)
		gaveUp := c.scheduleRetryLocked()
		c.mu.Unlock()

		c.cfg.logger.Warn("connect failed", slog.String("url", c.url), slog.Any("error", err))
		c.emit(Event{Type: EventError, Err: err})
		if gaveUp {
			c.giveUp()
		}
		return
	}

	readCtx, cancelRead := context.WithCancel(context.Background())
	c.transport = t
	c.cancelRead = cancelRead
	c.attempts = 0
	c.shouldReconnect = true
	c.gaveUp = false
	c.stopRetryLocked()
	c.setStateLocked(StateOpen)
	c.mu.Unlock()

	c.cfg.logger.Info("connected", slog.String("url", c.url))
	c.emit(Event{Type: EventOpen})

	go c.readLoop(readCtx, epoch, t)
}

// readLoop reads frames from t until it fails.
func (c *Conn) readLoop(ctx context.Context, epoch uint64, t Transport) {
	for {
		frame, err := t.Receive(ctx)
		if err != nil {
			var fe *FrameError
			if errors.As(err, &fe) {
				c.cfg.logger.Warn("dropping malformed frame", slog.Any("error", fe.Err))
				c.emit(Event{Type: EventError, Err: err})
				continue
			}
			c.handleDrop(epoch, t, err)
			return
		}

		c.mu.Lock()
		current := c.epoch == epoch && c.transport == t
		c.mu.Unlock()
		if !current {
			c.cfg.logger.Debug("dropping frame from superseded connection", slog.String("type", frame.Type))
			return
		}
		if c.cfg.onReceive != nil {
			c.cfg.onReceive(frame)
		}
		c.cfg.logger.Debug("received frame", slog.String("type", frame.Type))

		c.emit(Event{Type: EventMessage, Frame: frame})
		if frame.IsCompletion() {
			c.emit(Event{Type: EventCompletion, Frame: frame})
		}
	}
}

// handleDrop tears down a connection that failed underneath us.
func (c *Conn) handleDrop(epoch uint64, t Transport, err error) {
	c.mu.Lock()
	if c.epoch != epoch || c.transport != t {
		// Intentional disconnect; Disconnect already reported it.
		c.mu.Unlock()
		return
	}
	cancelRead := c.cancelRead
	c.transport = nil
	c.cancelRead = nil
	c.setStateLocked(StateClosed)

	code := StatusAbnormalClosure
	reason := ""
	var ce *CloseError
	closeFrame := errors.As(err, &ce)
	if closeFrame {
		code, reason = ce.Code, ce.Reason
	}
	c.lastErr = err

	var gaveUp bool
	if code != StatusNormalClosure {
		gaveUp = c.scheduleRetryLocked()
	}
	c.mu.Unlock()

	_ = t.Close(StatusNormalClosure, "")
	cancelRead()

	c.cfg.logger.Info("connection closed",
		slog.Int("code", int(code)),
		slog.String("reason", reason),
		slog.Any("error", err),
	)
	if !closeFrame {
		c.emit(Event{Type: EventError, Err: err})
	}
	c.emit(Event{Type: EventClose, Code: code, Reason: reason})
	if gaveUp {
		c.giveUp()
	}
}

// scheduleRetryLocked arms the single reconnect timer. It reports true when
// the attempt budget is spent and reconnection has been switched off.
func (c *Conn) scheduleRetryLocked() bool {
	if !c.shouldReconnect || c.retryTimer != nil {
		return false
	}
	if c.state == StateConnecting || c.state == StateOpen {
		return false
	}
	if c.attempts >= c.cfg.maxAttempts {
		c.shouldReconnect = false
		c.gaveUp = true
		c.notifyLocked()
		return true
	}

	c.attempts++
	delay := c.Backoff(c.attempts)
	c.retryDelay = delay
	c.retrySeq++
	seq := c.retrySeq
	c.retryTimer = c.cfg.clock.AfterFunc(delay, func() { c.retry(seq) })
	c.notifyLocked()

	c.cfg.logger.Info("reconnect scheduled",
		slog.Int("attempt", c.attempts),
		slog.Duration("delay", delay),
	)
	return false
}

// retry runs when the timer armed as seq fires. A timer that was stopped or
// replaced after firing finds a newer seq and does nothing.
func (c *Conn) retry(seq uint64) {
	c.mu.Lock()
	if c.retrySeq != seq {
		c.mu.Unlock()
		return
	}
	c.retryTimer = nil
	c.retryDelay = 0
	ok := c.shouldReconnect && c.state != StateOpen && c.state != StateConnecting
	c.notifyLocked()
	c.mu.Unlock()

	if ok {
		c.Connect()
	}
}

func (c *Conn) giveUp() {
	c.cfg.logger.Warn("giving up on reconnect", slog.Int("max_attempts", c.cfg.maxAttempts))
	c.emit(Event{Type: EventError, Err: ErrReconnectExhausted})
}

func (c *Conn) stopRetryLocked() {
	c.retrySeq++
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
		c.retryDelay = 0
		c.notifyLocked()
	}
}

func (c *Conn) setStateLocked(s ConnState) {
	if c.state == s {
		return
	}
	c.state = s
	c.notifyLocked()
}

// notifyLocked wakes WaitOpen callers.
func (c *Conn) notifyLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}
