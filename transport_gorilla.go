package inksocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// GorillaDialer returns a Dialer backed by github.com/gorilla/websocket.
// Use it where the handshake has to go through gorilla's proxy support.
func GorillaDialer(opts *DialOptions) Dialer {
	return func(ctx context.Context, url string) (Transport, error) {
		dialer := websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: 45 * time.Second,
		}

		conn, resp, err := dialer.DialContext(ctx, url, opts.header())
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			return nil, &ConnectionError{Op: "dial", URL: url, Err: err}
		}
		conn.SetReadLimit(opts.readLimit())

		return &gorillaTransport{conn: conn}, nil
	}
}

// gorillaTransport implements Transport over gorilla/websocket.
// gorilla supports one concurrent writer, which writeMu provides.
type gorillaTransport struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	mu      sync.Mutex
	closed  bool
}

func (t *gorillaTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Send sends a request to the server.
func (t *gorillaTransport) Send(ctx context.Context, req *Request) error {
	if t.isClosed() {
		return ErrClosed
	}

	data, err := json.Marshal(req)
	if err != nil {
		return &SendError{Op: "marshal", Err: err}
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetWriteDeadline(deadline)
		defer func() { _ = t.conn.SetWriteDeadline(time.Time{}) }()
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return &ConnectionError{Op: "write", Err: err}
	}
	return nil
}

// Receive receives a frame from the server. gorilla reads are not
// context-aware, so cancelling ctx closes the connection to unblock the read.
func (t *gorillaTransport) Receive(ctx context.Context) (*Frame, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = t.conn.Close()
	})
	_, data, err := t.conn.ReadMessage()
	stop()
	if err != nil {
		if t.isClosed() {
			return nil, ErrClosed
		}
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			return nil, &CloseError{Code: StatusCode(ce.Code), Reason: ce.Text}
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ConnectionError{Op: "read", Err: err}
	}

	return decodeFrame(data)
}

// Close sends a close frame with the given status and closes the socket.
func (t *gorillaTransport) Close(code StatusCode, reason string) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.writeMu.Lock()
	_ = t.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(int(code), reason),
		time.Now().Add(time.Second),
	)
	t.writeMu.Unlock()

	return t.conn.Close()
}
