package inksocket

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Status is the lifecycle status of the client's generation request.
type Status int

const (
	StatusNone Status = iota
	StatusPending
	StatusStreaming
	StatusCompleted
	StatusCancelled
	StatusFailed
)

// String returns the string representation of a Status.
func (s Status) String() string {
	switch s {
	case StatusNone:
		return "none"
	case StatusPending:
		return "pending"
	case StatusStreaming:
		return "streaming"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Active reports whether a request in this status still occupies the slot.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusStreaming
}

// Terminal reports whether no further frame can change this status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

// Snapshot is a read-only view of a Client.
type Snapshot struct {
	RequestID string
	Action    Action
	Status    Status
	Label     string
	Text      string
	Err       error

	Connected  bool
	Connecting bool
	CanRetry   bool
}

// Generating reports whether a request is in flight.
func (s Snapshot) Generating() bool {
	return s.Status.Active()
}

// Ready reports whether a new request would be admitted.
func (s Snapshot) Ready() bool {
	return s.Connected && !s.Generating()
}

// SubmitOption configures a single submission.
type SubmitOption func(*Request)

// WithContext attaches the text around the cursor to a completion request.
func WithContext(before, after string) SubmitOption {
	return func(r *Request) {
		r.ContextBefore = &before
		r.ContextAfter = &after
	}
}

// WithCursor attaches the cursor position to a completion request.
func WithCursor(pos int) SubmitOption {
	return func(r *Request) {
		r.CursorPosition = &pos
	}
}

// WithTemperature overrides the temperature derived from the action.
func WithTemperature(t float64) SubmitOption {
	return func(r *Request) {
		r.Temperature = t
	}
}

// Client admits at most one generation request at a time over a Conn and
// folds the frames it receives into an observable result.
// It is safe for concurrent use by multiple goroutines.
type Client struct {
	conn   *Conn
	cfg    config
	subIDs []ListenerID

	nextID  atomic.Uint64
	changes *hub[Snapshot]

	mu     sync.Mutex
	id     string
	action Action
	status Status
	label  string
	buf    strings.Builder
	text   string
	err    error
	done   chan struct{}

	// stale counts cancelled requests whose terminal frame has not arrived.
	stale int
}

// New creates a Conn for url and a Client on top of it. It does not connect.
func New(url string, opts ...Option) (*Client, error) {
	conn, err := NewConn(url, opts...)
	if err != nil {
		return nil, err
	}
	return NewClient(conn, opts...), nil
}

// NewClient creates a Client that drives conn. Connection options in opts are
// ignored; conn keeps its own.
func NewClient(conn *Conn, opts ...Option) *Client {
	cfg := newConfig(opts)
	c := &Client{
		conn:    conn,
		cfg:     cfg,
		changes: newHub[Snapshot]("change", cfg.logger),
		label:   "idle",
	}

	c.subIDs = []ListenerID{
		conn.On(EventOpen, c.handleOpen),
		conn.On(EventClose, c.handleClose),
		conn.On(EventError, c.handleError),
		conn.On(EventCompletion, c.handleCompletion),
	}
	return c
}

// Conn returns the underlying connection manager.
func (c *Client) Conn() *Conn {
	return c.conn
}

// Connect starts connecting; see Conn.Connect.
func (c *Client) Connect() {
	c.conn.Connect()
}

// Reconnect re-arms automatic reconnection and connects.
func (c *Client) Reconnect() {
	c.conn.Reconnect()
}

// Disconnect cancels any in-flight request and closes the connection.
func (c *Client) Disconnect() {
	c.Cancel()
	c.conn.Disconnect()
}

// Close disconnects and detaches the client from its Conn.
func (c *Client) Close() {
	c.Disconnect()
	for _, id := range c.subIDs {
		c.conn.Off(id)
	}
}

// On registers a listener on the underlying Conn.
func (c *Client) On(t EventType, fn func(Event)) ListenerID {
	return c.conn.On(t, fn)
}

// Off removes a listener registered with On.
func (c *Client) Off(id ListenerID) bool {
	return c.conn.Off(id)
}

// OnChange registers fn to receive a Snapshot after every state change.
func (c *Client) OnChange(fn func(Snapshot)) ListenerID {
	id := ListenerID(c.nextID.Add(1))
	c.changes.add(id, fn)
	return id
}

// OffChange removes an observer registered with OnChange.
func (c *Client) OffChange(id ListenerID) bool {
	return c.changes.remove(id)
}

// Snapshot returns the current state.
func (c *Client) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Client) snapshotLocked() Snapshot {
	st := c.conn.Status()
	return Snapshot{
		RequestID:  c.id,
		Action:     c.action,
		Status:     c.status,
		Label:      c.label,
		Text:       c.text,
		Err:        c.err,
		Connected:  st.State == StateOpen,
		Connecting: st.State == StateConnecting,
		CanRetry:   st.ShouldReconnect,
	}
}

// Status returns the status of the current request.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Text returns the partial or final text of the current request.
func (c *Client) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

// Err returns the last error recorded by the client.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Complete requests a free completion of text.
func (c *Client) Complete(ctx context.Context, text string, opts ...SubmitOption) error {
	return c.Submit(ctx, ActionComplete, text, opts...)
}

// CompleteAt requests a completion at cursor (a rune offset) in document,
// sending the text around the cursor trimmed to the configured window.
func (c *Client) CompleteAt(ctx context.Context, document string, cursor int) error {
	w := DefaultContextWindow()
	if c.cfg.window != nil {
		w = *c.cfg.window
	}
	before, after := w.Split(document, cursor)
	return c.Submit(ctx, ActionComplete, before, WithContext(before, after), WithCursor(len([]rune(before))))
}

// Rewrite requests a rewrite of text.
func (c *Client) Rewrite(ctx context.Context, text string) error {
	return c.Submit(ctx, ActionRewrite, text)
}

// Expand requests an expansion of text.
func (c *Client) Expand(ctx context.Context, text string) error {
	return c.Submit(ctx, ActionExpand, text)
}

// Simplify requests a simplification of text.
func (c *Client) Simplify(ctx context.Context, text string) error {
	return c.Submit(ctx, ActionSimplify, text)
}

// Submit admits a new generation request and sends it. It fails without
// touching the wire when the connection is not open or a request is already
// pending or streaming. When the send itself fails the request is marked
// failed. Every failure is also recorded as the client's last error.
func (c *Client) Submit(ctx context.Context, action Action, text string, opts ...SubmitOption) error {
	if !action.Valid() {
		return c.reject(ErrInvalidAction)
	}
	if strings.TrimSpace(text) == "" {
		return c.reject(ErrEmptyText)
	}

	var req *Request
	if action == ActionComplete {
		req = NewCompletionRequest(text, c.cfg.maxTokens)
	} else {
		req = NewOptimizeRequest(text, action)
	}
	for _, opt := range opts {
		opt(req)
	}

	c.mu.Lock()
	if c.conn.State() != StateOpen {
		c.mu.Unlock()
		return c.reject(ErrNotConnected)
	}
	if c.status.Active() {
		c.mu.Unlock()
		return c.reject(ErrBusy)
	}

	id := uuid.New().String()
	c.id = id
	c.action = action
	c.status = StatusPending
	c.label = action.Label()
	c.buf.Reset()
	c.text = ""
	c.err = nil
	c.done = make(chan struct{})
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.cfg.logger.Debug("request admitted", slog.String("request_id", id), slog.String("action", string(action)))
	c.changes.emit(snap)

	if err := c.conn.Send(ctx, req); err != nil {
		c.mu.Lock()
		switch {
		case c.id == id && c.status == StatusPending:
			c.failLocked(err)
			snap = c.snapshotLocked()
			c.mu.Unlock()
			c.changes.emit(snap)
		case c.id == id && c.status == StatusCancelled && c.stale > 0:
			// Cancelled before the send failed; no frames will follow.
			c.stale--
			c.mu.Unlock()
		default:
			c.mu.Unlock()
		}
		c.cfg.logger.Warn("request not sent", slog.String("request_id", id), slog.Any("error", err))
		return err
	}
	return nil
}

func (c *Client) reject(err error) error {
	c.mu.Lock()
	c.err = err
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.changes.emit(snap)
	return err
}

// Cancel abandons the in-flight request on the client side. The backend is
// not told; frames still arriving for the cancelled request are dropped.
// It reports whether there was anything to cancel.
//
// Frames carry no request id, so dropping stops at the next end or error
// frame. A backend that streams requests concurrently can interleave the
// cancelled stream with the next one; the next request's terminal frame is
// then taken as the cancelled one's and the late tail is folded into the
// next request. Only a request id on the wire removes that ambiguity.
func (c *Client) Cancel() bool {
	c.mu.Lock()
	if !c.status.Active() {
		c.mu.Unlock()
		return false
	}
	c.stale++
	c.status = StatusCancelled
	c.label = "cancelled"
	c.buf.Reset()
	c.text = ""
	c.finishLocked()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.cfg.logger.Debug("request cancelled", slog.String("request_id", snap.RequestID))
	c.changes.emit(snap)
	return true
}

// Wait blocks until the current request reaches a terminal status and
// returns the final snapshot. A failed request returns its error; a cancelled
// one returns ErrCancelled.
func (c *Client) Wait(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	if done == nil {
		return c.Snapshot(), ErrNoRequest
	}

	select {
	case <-ctx.Done():
		return c.Snapshot(), ctx.Err()
	case <-done:
	}

	snap := c.Snapshot()
	switch snap.Status {
	case StatusFailed:
		return snap, snap.Err
	case StatusCancelled:
		return snap, ErrCancelled
	}
	return snap, nil
}

// handleCompletion folds one stream frame into the current request.
func (c *Client) handleCompletion(ev Event) {
	f := ev.Frame
	if f == nil {
		return
	}

	c.mu.Lock()
	if c.stale > 0 {
		if f.IsTerminal() {
			c.stale--
		}
		c.mu.Unlock()
		c.cfg.logger.Debug("dropping frame for cancelled request", slog.String("type", f.Type))
		return
	}
	if !c.status.Active() {
		c.mu.Unlock()
		c.cfg.logger.Debug("dropping frame with no active request", slog.String("type", f.Type))
		return
	}

	switch {
	case f.IsStart():
		c.status = StatusStreaming
		c.label = c.action.Label()
		c.buf.Reset()
	case f.IsToken():
		c.status = StatusStreaming
		c.buf.WriteString(f.Token)
		c.text = c.buf.String()
	case f.IsEnd():
		if f.Completion != "" {
			c.text = f.Completion
		} else {
			c.text = c.buf.String()
		}
		c.buf.Reset()
		c.status = StatusCompleted
		c.label = "completed"
		c.finishLocked()
	case f.IsError():
		c.failLocked(&BackendError{Message: f.Error})
	default:
		c.mu.Unlock()
		return
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.changes.emit(snap)
}

func (c *Client) handleOpen(Event) {
	c.mu.Lock()
	c.stale = 0
	c.label = "connected"
	if c.status.Active() {
		c.label = c.action.Label()
	}
	// A failed request keeps its error until the next admission.
	if c.status != StatusFailed {
		c.err = nil
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.changes.emit(snap)
}

func (c *Client) handleClose(ev Event) {
	c.interrupt(&InterruptedError{Code: ev.Code}, "disconnected")
}

func (c *Client) handleError(ev Event) {
	var fe *FrameError
	if errors.As(ev.Err, &fe) {
		return
	}
	c.interrupt(&InterruptedError{Code: StatusAbnormalClosure, Err: ev.Err}, "error")
}

// interrupt fails the in-flight request after the connection went away, or
// records the connection problem when nothing was in flight.
func (c *Client) interrupt(err *InterruptedError, label string) {
	c.mu.Lock()
	if c.status.Active() {
		c.failLocked(err)
	} else {
		c.label = label
		if err.Err != nil && c.status != StatusFailed {
			c.err = err.Err
		}
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.changes.emit(snap)
}

func (c *Client) failLocked(err error) {
	c.status = StatusFailed
	c.label = "failed"
	c.buf.Reset()
	c.text = ""
	c.err = err
	c.finishLocked()
}

func (c *Client) finishLocked() {
	if c.done != nil {
		select {
		case <-c.done:
		default:
			close(c.done)
		}
	}
}
