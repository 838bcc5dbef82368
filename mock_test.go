package inksocket

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

type recvResult struct {
	frame *Frame
	err   error
}

// mockTransport implements Transport for testing.
type mockTransport struct {
	mu        sync.Mutex
	requests  []*Request
	frames    chan recvResult
	closed    bool
	closeCode StatusCode
	sendErr   error

	// Channel signaled when a request is sent
	onSend chan *Request
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		frames: make(chan recvResult, 100),
		onSend: make(chan *Request, 100),
	}
}

func (m *mockTransport) Send(ctx context.Context, req *Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.sendErr != nil {
		return m.sendErr
	}
	m.requests = append(m.requests, req)

	select {
	case m.onSend <- req:
	default:
	}
	return nil
}

func (m *mockTransport) Receive(ctx context.Context) (*Frame, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r, ok := <-m.frames:
		if !ok {
			return nil, ErrClosed
		}
		return r.frame, r.err
	}
}

func (m *mockTransport) Close(code StatusCode, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		m.closeCode = code
		close(m.frames)
	}
	return nil
}

func (m *mockTransport) push(frames ...*Frame) {
	for _, f := range frames {
		m.frames <- recvResult{frame: f}
	}
}

// fail makes the next Receive return err.
func (m *mockTransport) fail(err error) {
	m.frames <- recvResult{err: err}
}

func (m *mockTransport) setSendErr(err error) {
	m.mu.Lock()
	m.sendErr = err
	m.mu.Unlock()
}

func (m *mockTransport) getRequests() []*Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Request(nil), m.requests...)
}

func (m *mockTransport) isClosed() (bool, StatusCode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed, m.closeCode
}

// mockDialer hands out mockTransports and counts attempts.
type mockDialer struct {
	mu         sync.Mutex
	calls      int
	transports []*mockTransport
	err        error

	// gate, when set, holds every dial until it receives a value or closes.
	gate chan struct{}
}

func newMockDialer() *mockDialer {
	return &mockDialer{}
}

func (d *mockDialer) dial(ctx context.Context, url string) (Transport, error) {
	d.mu.Lock()
	d.calls++
	gate := d.gate
	d.mu.Unlock()

	if gate != nil {
		<-gate
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, &ConnectionError{Op: "dial", URL: url, Err: d.err}
	}
	t := newMockTransport()
	d.transports = append(d.transports, t)
	return t, nil
}

func (d *mockDialer) setErr(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}

func (d *mockDialer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *mockDialer) last() *mockTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.transports) == 0 {
		return nil
	}
	return d.transports[len(d.transports)-1]
}

// recorder collects events delivered to a listener.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) record(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) list() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) count(t EventType) int {
	n := 0
	for _, ev := range r.list() {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func (r *recorder) listen(c *Conn, types ...EventType) {
	for _, t := range types {
		c.On(t, r.record)
	}
}

// waitFor polls cond until it holds or the test times out.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func newTestConn(t *testing.T, opts ...Option) (*Conn, *mockDialer, clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	dialer := newMockDialer()

	base := []Option{WithDialer(dialer.dial), WithClock(clock)}
	conn, err := NewConn("ws://backend.test/ws", append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewConn error: %v", err)
	}
	t.Cleanup(conn.Disconnect)
	return conn, dialer, clock
}

// openConn connects and waits for the handshake to finish.
func openConn(t *testing.T, conn *Conn, dialer *mockDialer) *mockTransport {
	t.Helper()
	conn.Connect()
	waitFor(t, "open", func() bool { return conn.State() == StateOpen })
	return dialer.last()
}
