package inksocket

import (
	"fmt"
	"log/slog"
	"sync"
)

// EventType names a Conn event channel.
type EventType string

const (
	EventOpen       EventType = "open"
	EventMessage    EventType = "message"
	EventClose      EventType = "close"
	EventError      EventType = "error"
	EventCompletion EventType = "completion"
)

func (t EventType) valid() bool {
	switch t {
	case EventOpen, EventMessage, EventClose, EventError, EventCompletion:
		return true
	}
	return false
}

// Event is delivered to listeners registered with Conn.On.
type Event struct {
	Type EventType

	// Frame is set for message and completion events.
	Frame *Frame

	// Code and Reason are set for close events.
	Code   StatusCode
	Reason string

	// Err is set for error events.
	Err error
}

// ListenerID identifies a registered listener.
type ListenerID uint64

type listener[T any] struct {
	id ListenerID
	fn func(T)
}

// hub fans a value out to its listeners in registration order.
// A panicking listener is logged and does not stop the others.
type hub[T any] struct {
	name   string
	logger *slog.Logger

	mu        sync.RWMutex
	listeners []listener[T]
}

func newHub[T any](name string, logger *slog.Logger) *hub[T] {
	return &hub[T]{name: name, logger: logger}
}

func (h *hub[T]) add(id ListenerID, fn func(T)) {
	h.mu.Lock()
	h.listeners = append(h.listeners, listener[T]{id: id, fn: fn})
	h.mu.Unlock()
}

func (h *hub[T]) remove(id ListenerID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, l := range h.listeners {
		if l.id == id {
			h.listeners = append(h.listeners[:i:i], h.listeners[i+1:]...)
			return true
		}
	}
	return false
}

func (h *hub[T]) emit(v T) {
	h.mu.RLock()
	listeners := h.listeners
	h.mu.RUnlock()

	for _, l := range listeners {
		h.call(l, v)
	}
}

func (h *hub[T]) call(l listener[T], v T) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("listener panicked",
				slog.String("event", h.name),
				slog.Uint64("listener", uint64(l.id)),
				slog.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	l.fn(v)
}
