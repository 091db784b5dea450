package probe

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// scriptPoller returns levels from a shared, mutable state.
type scriptPoller struct {
	mu      sync.Mutex
	present bool
	err     error
	calls   int
}

func (p *scriptPoller) Name() string { return "script" }

func (p *scriptPoller) Present(ctx context.Context) (Presence, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return Presence{}, p.err
	}
	return Presence{Present: p.present}, nil
}

func (p *scriptPoller) set(present bool, err error) {
	p.mu.Lock()
	p.present, p.err = present, err
	p.mu.Unlock()
}

type chanSource struct {
	ch  chan Presence
	err error
}

func (s *chanSource) Name() string { return "chan" }

func (s *chanSource) Subscribe(ctx context.Context) (<-chan Presence, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.ch, nil
}

func startWatcher(t *testing.T, w *Watcher) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func expectEdge(t *testing.T, w *Watcher) Presence {
	t.Helper()
	select {
	case p := <-w.Edges():
		return p
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for edge")
		return Presence{}
	}
}

func expectNoEdge(t *testing.T, w *Watcher, d time.Duration) {
	t.Helper()
	select {
	case p := <-w.Edges():
		t.Fatalf("unexpected edge: %+v", p)
	case <-time.After(d):
	}
}

func TestPollWatcherEmitsOneEdgePerArrival(t *testing.T) {
	p := &scriptPoller{}
	w := NewPollWatcher(p, WatcherConfig{PollInterval: 5 * time.Millisecond, Logger: zerolog.Nop()})
	startWatcher(t, w)

	expectNoEdge(t, w, 30*time.Millisecond)
	p.set(true, nil)
	if got := expectEdge(t, w); !got.Present || got.At.IsZero() {
		t.Fatalf("unexpected edge: %+v", got)
	}
	// stays present: no repeat
	expectNoEdge(t, w, 40*time.Millisecond)

	p.set(false, nil)
	time.Sleep(30 * time.Millisecond)
	p.set(true, nil)
	expectEdge(t, w)
}

func TestPollWatcherErrorCountsAsAbsence(t *testing.T) {
	p := &scriptPoller{}
	p.set(true, nil)
	w := NewPollWatcher(p, WatcherConfig{PollInterval: 5 * time.Millisecond, Logger: zerolog.Nop()})
	startWatcher(t, w)
	expectEdge(t, w)

	p.set(false, errors.New("transient"))
	time.Sleep(30 * time.Millisecond)
	p.set(true, nil)
	expectEdge(t, w)
}

func TestPollWatcherRearm(t *testing.T) {
	p := &scriptPoller{}
	p.set(true, nil)
	w := NewPollWatcher(p, WatcherConfig{PollInterval: time.Hour, Logger: zerolog.Nop()})
	startWatcher(t, w)
	expectEdge(t, w)
	expectNoEdge(t, w, 20*time.Millisecond)

	w.Rearm()
	expectEdge(t, w)
}

func TestEventWatcher(t *testing.T) {
	src := &chanSource{ch: make(chan Presence)}
	w := NewEventWatcher(src, WatcherConfig{Logger: zerolog.Nop()})
	startWatcher(t, w)
	if w.Name() != "chan" {
		t.Fatalf("name=%q", w.Name())
	}

	src.ch <- Presence{Present: true}
	expectEdge(t, w)
	src.ch <- Presence{Present: true}
	expectNoEdge(t, w, 20*time.Millisecond)

	// rearm while present re-emits the last observation
	w.Rearm()
	expectEdge(t, w)

	src.ch <- Presence{}
	w.Rearm()
	expectNoEdge(t, w, 20*time.Millisecond)
	src.ch <- Presence{Present: true}
	expectEdge(t, w)
}

func TestEventWatcherFallsBackToPolling(t *testing.T) {
	p := &scriptPoller{}
	p.set(true, nil)
	src := &chanSource{err: errUnsupported}
	w := NewEventWatcher(src, WatcherConfig{PollInterval: 5 * time.Millisecond, Fallback: p, Logger: zerolog.Nop()})
	startWatcher(t, w)
	expectEdge(t, w)
	if w.Name() != "script" {
		t.Fatalf("expected fallback poller to be active, got %q", w.Name())
	}
}

func TestEventWatcherWithoutFallbackFails(t *testing.T) {
	src := &chanSource{err: errUnsupported}
	w := NewEventWatcher(src, WatcherConfig{Logger: zerolog.Nop()})
	_, done := startWatcher(t, w)
	select {
	case err := <-done:
		if !IsUnsupported(err) {
			t.Fatalf("expected unsupported error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return")
	}
}

func TestWatcherStopsOnCancel(t *testing.T) {
	w := NewPollWatcher(&scriptPoller{}, WatcherConfig{PollInterval: time.Millisecond, Logger: zerolog.Nop()})
	cancel, done := startWatcher(t, w)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return")
	}
}

// closingPoller records Close, like the libusb probe releasing its context.
type closingPoller struct {
	scriptPoller
	cmu    sync.Mutex
	closed int
}

func (p *closingPoller) Close() error {
	p.cmu.Lock()
	defer p.cmu.Unlock()
	p.closed++
	return nil
}

func (p *closingPoller) closes() int {
	p.cmu.Lock()
	defer p.cmu.Unlock()
	return p.closed
}

func TestWatcherClosesPollerOnExit(t *testing.T) {
	p := &closingPoller{}
	w := NewPollWatcher(p, WatcherConfig{PollInterval: time.Millisecond, Logger: zerolog.Nop()})
	cancel, done := startWatcher(t, w)
	if n := p.closes(); n != 0 {
		t.Fatalf("closed while running: %d", n)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return")
	}
	if n := p.closes(); n != 1 {
		t.Fatalf("Close calls: got %d, want 1", n)
	}
}

func TestEventWatcherClosesFallbackOnce(t *testing.T) {
	fb := &closingPoller{}
	w := NewEventWatcher(&chanSource{err: errors.New("no netlink")}, WatcherConfig{PollInterval: time.Millisecond, Fallback: fb, Logger: zerolog.Nop()})
	cancel, done := startWatcher(t, w)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return")
	}
	if n := fb.closes(); n != 1 {
		t.Fatalf("fallback Close calls: got %d, want 1", n)
	}
}
