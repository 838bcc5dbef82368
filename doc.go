// Package inksocket provides a Go client for streaming text generation over a
// persistent WebSocket connection.
//
// An inksocket backend accepts one JSON request per message (complete,
// rewrite, expand or simplify a piece of text) and answers with a stream of
// frames: a start frame, any number of token frames, and a single end or
// error frame. The client reassembles that stream into one observable result
// while keeping the connection alive across network failures.
//
// # Components
//
// [Conn] owns the socket. It connects, reconnects with capped exponential
// backoff, throttles outbound sends and broadcasts lifecycle events to
// registered listeners. It knows nothing about generation requests.
//
// [Client] sits on top of a [Conn]. It admits at most one generation request
// at a time, maps intents onto wire requests and folds inbound frames into a
// [Snapshot] that consumers can poll or observe.
//
// # Thread Safety
//
// [Conn] and [Client] are safe for concurrent use. Inbound frames for one
// connection are delivered to listeners in arrival order from a single
// goroutine; listeners must not block.
//
// # Basic Usage
//
//	client, err := inksocket.New("ws://localhost:8000/api/v1/completion/ws",
//	    inksocket.WithLogger(slog.Default()),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Disconnect()
//
//	client.Connect()
//	if err := client.Conn().WaitOpen(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	client.OnChange(func(s inksocket.Snapshot) {
//	    fmt.Printf("\r%s", s.Text)
//	})
//
//	if err := client.Rewrite(ctx, "the quick brown fox"); err != nil {
//	    log.Fatal(err)
//	}
//	result, err := client.Wait(ctx)
//
// # Failure Model
//
// Transport failures are retried automatically and surface as events and
// snapshot fields, never as panics. Admission failures (not connected,
// already generating, throttled) are returned synchronously from the submit
// call and recorded as the client's last error.
package inksocket
