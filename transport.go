package inksocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/coder/websocket"
)

// Transport provides the interface for sending requests and receiving frames
// over one established connection. Implementations must be safe for
// concurrent use.
//
// Receive returns a *FrameError for a message that could not be decoded; the
// caller may keep reading. A close frame from the peer is reported as a
// *CloseError. Any other error means the connection is gone.
type Transport interface {
	Send(ctx context.Context, req *Request) error
	Receive(ctx context.Context) (*Frame, error)
	Close(code StatusCode, reason string) error
}

// Dialer establishes a new Transport. The context bounds the handshake only.
type Dialer func(ctx context.Context, url string) (Transport, error)

// DialOptions configures the WebSocket connection.
type DialOptions struct {
	// HTTPHeader specifies additional HTTP headers to send during handshake.
	HTTPHeader http.Header

	// HTTPClient is the HTTP client used for the handshake.
	// If nil, http.DefaultClient is used. Ignored by GorillaDialer.
	HTTPClient *http.Client

	// ReadLimit caps the size of one inbound message. Zero means 1MB.
	ReadLimit int64
}

func (o *DialOptions) readLimit() int64 {
	if o == nil || o.ReadLimit <= 0 {
		return 1 << 20
	}
	return o.ReadLimit
}

func (o *DialOptions) header() http.Header {
	if o == nil || o.HTTPHeader == nil {
		return http.Header{}
	}
	return o.HTTPHeader.Clone()
}

// WebSocketDialer returns a Dialer backed by github.com/coder/websocket.
// It is the default Dialer.
func WebSocketDialer(opts *DialOptions) Dialer {
	return func(ctx context.Context, url string) (Transport, error) {
		dialOpts := &websocket.DialOptions{
			HTTPHeader: opts.header(),
		}
		if opts != nil && opts.HTTPClient != nil {
			dialOpts.HTTPClient = opts.HTTPClient
		}

		conn, _, err := websocket.Dial(ctx, url, dialOpts)
		if err != nil {
			return nil, &ConnectionError{Op: "dial", URL: url, Err: err}
		}
		conn.SetReadLimit(opts.readLimit())

		return &wsTransport{conn: conn}, nil
	}
}

// wsTransport implements Transport over coder/websocket.
type wsTransport struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	closed bool
}

// Send sends a request to the server.
func (t *wsTransport) Send(ctx context.Context, req *Request) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}

	data, err := json.Marshal(req)
	if err != nil {
		return &SendError{Op: "marshal", Err: err}
	}

	if err := t.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return &ConnectionError{Op: "write", Err: err}
	}

	return nil
}

// Receive receives a frame from the server.
func (t *wsTransport) Receive(ctx context.Context) (*Frame, error) {
	_, data, err := t.conn.Read(ctx)
	if err != nil {
		t.mu.Lock()
		closed := t.closed
		t.mu.Unlock()
		if closed {
			return nil, ErrClosed
		}
		var ce websocket.CloseError
		if errors.As(err, &ce) {
			return nil, &CloseError{Code: StatusCode(ce.Code), Reason: ce.Reason}
		}
		return nil, &ConnectionError{Op: "read", Err: err}
	}

	return decodeFrame(data)
}

// Close closes the transport with the given status.
func (t *wsTransport) Close(code StatusCode, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	return t.conn.Close(websocket.StatusCode(code), reason)
}

func decodeFrame(data []byte) (*Frame, error) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, &FrameError{Data: data, Err: err}
	}
	return &frame, nil
}
