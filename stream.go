package inksocket

import (
	"context"
	"iter"
	"sync"
)

// Updates returns an iterator over snapshots of the current request. It
// yields the state at the time of the call, then every change until the
// request reaches a terminal status. Intermediate snapshots are coalesced
// when the consumer falls behind; the terminal one is always delivered.
//
// The iterator yields ErrNoRequest when nothing has been submitted, and the
// context error if ctx ends first. A failed request yields its final
// snapshot followed by its error.
func (c *Client) Updates(ctx context.Context) iter.Seq2[Snapshot, error] {
	return func(yield func(Snapshot, error) bool) {
		first := c.Snapshot()
		if first.RequestID == "" {
			yield(first, ErrNoRequest)
			return
		}

		latest := newLatest()
		id := c.OnChange(func(s Snapshot) {
			if s.RequestID == first.RequestID {
				latest.put(s)
			}
		})
		defer c.OffChange(id)

		// Re-read after subscribing so no change is lost in between.
		snap := c.Snapshot()
		for {
			if !yield(snap, nil) {
				return
			}
			if snap.Status.Terminal() || snap.RequestID != first.RequestID {
				if snap.Status == StatusFailed && snap.Err != nil {
					yield(snap, snap.Err)
				}
				return
			}

			select {
			case <-ctx.Done():
				yield(c.Snapshot(), ctx.Err())
				return
			case snap = <-latest.ch:
			}
		}
	}
}

// Result waits for the current request to finish and returns its final text.
func (c *Client) Result(ctx context.Context) (string, error) {
	snap, err := c.Wait(ctx)
	return snap.Text, err
}

// latest is a one-slot mailbox that keeps only the newest value, except that
// a terminal snapshot is never replaced by a non-terminal one.
type latest struct {
	mu sync.Mutex
	ch chan Snapshot
}

func newLatest() *latest {
	return &latest{ch: make(chan Snapshot, 1)}
}

func (l *latest) put(s Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	select {
	case prev := <-l.ch:
		if prev.Status.Terminal() && !s.Status.Terminal() {
			s = prev
		}
	default:
	}
	l.ch <- s
}
