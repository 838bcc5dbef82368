package inksocket

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestUpdates_NoRequest(t *testing.T) {
	c, _, _, _ := newTestClient(t)

	var errs []error
	for _, err := range c.Updates(context.Background()) {
		errs = append(errs, err)
	}
	if len(errs) != 1 || !errors.Is(errs[0], ErrNoRequest) {
		t.Errorf("errors = %v, want [%v]", errs, ErrNoRequest)
	}
}

func TestUpdates_StreamsToCompletion(t *testing.T) {
	c, tr, _, _ := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.Rewrite(ctx, "draft"); err != nil {
		t.Fatalf("Rewrite() error = %v", err)
	}
	go tr.push(
		&Frame{Type: FrameTypeStart},
		&Frame{Type: FrameTypeToken, Token: "po"},
		&Frame{Type: FrameTypeToken, Token: "li"},
		&Frame{Type: FrameTypeToken, Token: "shed"},
		&Frame{Type: FrameTypeEnd, Completion: "polished"},
	)

	var last Snapshot
	prev := ""
	for snap, err := range c.Updates(ctx) {
		if err != nil {
			t.Fatalf("Updates() error = %v", err)
		}
		if snap.Status == StatusStreaming && !strings.HasPrefix(snap.Text, prev) {
			t.Errorf("text %q does not extend %q", snap.Text, prev)
		}
		if snap.Status == StatusStreaming {
			prev = snap.Text
		}
		last = snap
	}

	if last.Status != StatusCompleted || last.Text != "polished" {
		t.Errorf("last snapshot = %v %q, want completed polished", last.Status, last.Text)
	}
}

func TestUpdates_TerminalOnly(t *testing.T) {
	c, tr, _, _ := newTestClient(t)

	if err := c.Simplify(context.Background(), "verbose"); err != nil {
		t.Fatalf("Simplify() error = %v", err)
	}
	tr.push(&Frame{Type: FrameTypeEnd, Completion: "short"})
	waitStatus(t, c, StatusCompleted)

	n := 0
	for snap, err := range c.Updates(context.Background()) {
		n++
		if err != nil || snap.Text != "short" {
			t.Errorf("Updates() = %q, %v", snap.Text, err)
		}
	}
	if n != 1 {
		t.Errorf("yields = %d, want 1", n)
	}
}

func TestUpdates_Failed(t *testing.T) {
	c, tr, _, _ := newTestClient(t)

	if err := c.Complete(context.Background(), "start"); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	go tr.push(&Frame{Type: FrameTypeStart}, &Frame{Type: FrameTypeError, Error: "boom"})

	var gotErr error
	for _, err := range c.Updates(context.Background()) {
		if err != nil {
			gotErr = err
		}
	}
	var be *BackendError
	if !errors.As(gotErr, &be) {
		t.Errorf("error = %v, want *BackendError", gotErr)
	}
}

func TestUpdates_ContextCancelled(t *testing.T) {
	c, _, _, _ := newTestClient(t)

	if err := c.Expand(context.Background(), "seed"); err != nil {
		t.Fatalf("Expand() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	var gotErr error
	for _, err := range c.Updates(ctx) {
		gotErr = err
	}
	if !errors.Is(gotErr, context.DeadlineExceeded) {
		t.Errorf("error = %v, want %v", gotErr, context.DeadlineExceeded)
	}
}

func TestUpdates_EarlyBreak(t *testing.T) {
	c, tr, _, _ := newTestClient(t)

	if err := c.Expand(context.Background(), "seed"); err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	for range c.Updates(context.Background()) {
		break
	}

	// The observer is gone; the client keeps working.
	tr.push(&Frame{Type: FrameTypeEnd, Completion: "grown"})
	waitStatus(t, c, StatusCompleted)
}

func TestResult(t *testing.T) {
	c, tr, _, _ := newTestClient(t)

	if err := c.Rewrite(context.Background(), "rough"); err != nil {
		t.Fatalf("Rewrite() error = %v", err)
	}
	go tr.push(&Frame{Type: FrameTypeToken, Token: "smo"}, &Frame{Type: FrameTypeToken, Token: "oth"}, &Frame{Type: FrameTypeEnd})

	text, err := c.Result(context.Background())
	if err != nil {
		t.Fatalf("Result() error = %v", err)
	}
	if text != "smooth" {
		t.Errorf("Result() = %q, want smooth", text)
	}
}

func TestLatest_KeepsTerminal(t *testing.T) {
	l := newLatest()
	l.put(Snapshot{Status: StatusStreaming, Text: "a"})
	l.put(Snapshot{Status: StatusCompleted, Text: "ab"})
	l.put(Snapshot{Status: StatusStreaming, Text: "stale"})

	got := <-l.ch
	if got.Status != StatusCompleted || got.Text != "ab" {
		t.Errorf("latest = %v %q, want completed ab", got.Status, got.Text)
	}
}
