package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"gpflash/internal/flasher"
	"gpflash/internal/probe"
	"gpflash/pkg/types"
)

// fakeFlasher replays scripted program states and records operations.
// When gate is non-nil, Write and Erase block until it is closed or fed.
type fakeFlasher struct {
	mu       sync.Mutex
	programs []flasher.Program // consumed in order; NoProgram when exhausted
	result   flasher.Result
	gate     chan struct{}
	writes   []string
	erases   int
	started  chan string
}

func newFakeFlasher(programs ...flasher.Program) *fakeFlasher {
	return &fakeFlasher{programs: programs, result: flasher.Result{OK: true}, started: make(chan string, 16)}
}

func (f *fakeFlasher) CurrentProgram(ctx context.Context) flasher.Program {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.programs) == 0 {
		return flasher.NoProgram
	}
	p := f.programs[0]
	f.programs = f.programs[1:]
	return p
}

func (f *fakeFlasher) Write(ctx context.Context, image string) flasher.Result {
	f.mu.Lock()
	f.writes = append(f.writes, image)
	res, gate := f.result, f.gate
	f.mu.Unlock()
	f.started <- "write"
	if gate != nil {
		<-gate
	}
	res.Image = image
	return res
}

func (f *fakeFlasher) Erase(ctx context.Context) flasher.Result {
	f.mu.Lock()
	f.erases++
	res, gate := f.result, f.gate
	f.mu.Unlock()
	f.started <- "erase"
	if gate != nil {
		<-gate
	}
	res.Image = "flash_nuke.uf2"
	return res
}

func (f *fakeFlasher) Writes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writes...)
}

func (f *fakeFlasher) Erases() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.erases
}

// fakeReleases lists a fixed set and "downloads" to a path under /cache.
type fakeReleases struct {
	mu        sync.Mutex
	firmware  []types.Firmware
	listErr   error
	dlErr     error
	downloads []string
}

func (r *fakeReleases) List(ctx context.Context) ([]types.Firmware, error) {
	return r.firmware, r.listErr
}

func (r *fakeReleases) Download(ctx context.Context, source string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.downloads = append(r.downloads, source)
	if r.dlErr != nil {
		return "", r.dlErr
	}
	return "/cache/" + types.Firmware{Source: source}.FileName(), nil
}

func (r *fakeReleases) setDownloadErr(err error) {
	r.mu.Lock()
	r.dlErr = err
	r.mu.Unlock()
}

type fakeEdges struct {
	ch     chan probe.Presence
	mu     sync.Mutex
	rearms int
}

func newFakeEdges() *fakeEdges { return &fakeEdges{ch: make(chan probe.Presence)} }

func (e *fakeEdges) Edges() <-chan probe.Presence { return e.ch }

func (e *fakeEdges) Rearm() {
	e.mu.Lock()
	e.rearms++
	e.mu.Unlock()
}

func (e *fakeEdges) Rearms() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rearms
}

func (e *fakeEdges) plug(t *testing.T) {
	t.Helper()
	select {
	case e.ch <- probe.Presence{Present: true, Device: types.Device{Node: "/dev/sdb", Source: "fake"}, At: time.Now()}:
	case <-time.After(2 * time.Second):
		t.Fatalf("edge not consumed")
	}
}

var stressFirmware = types.Firmware{
	Name:    "GP2040-CE_0.7.2_Stress",
	Version: "0.7.2",
	Board:   "Stress",
	Source:  "https://example.test/v0.7.2/GP2040-CE_0.7.2_Stress.uf2",
}

var picoFirmware = types.Firmware{
	Name:    "GP2040-CE_0.7.2_Pico",
	Version: "0.7.2",
	Board:   "Pico",
	Source:  "https://example.test/v0.7.2/GP2040-CE_0.7.2_Pico.uf2",
}

type harness struct {
	o     *Orchestrator
	fl    *fakeFlasher
	rel   *fakeReleases
	edges *fakeEdges
	pub   *MemoryPublisher
	errc  chan error
	stop  context.CancelFunc
}

func newHarness(t *testing.T, fl *fakeFlasher, rel *fakeReleases, mutate func(*Config)) *harness {
	t.Helper()
	h := &harness{fl: fl, rel: rel, edges: newFakeEdges(), pub: NewMemoryPublisher(), errc: make(chan error, 1)}
	cfg := Config{
		Flasher:   fl,
		Releases:  rel,
		Edges:     h.edges,
		Cooldown:  10 * time.Millisecond,
		Publisher: h.pub,
		Logger:    zerolog.Nop(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	h.o = New(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	h.stop = cancel
	go func() { h.errc <- h.o.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if fl.gate != nil {
			select {
			case <-fl.gate:
			default:
				close(fl.gate)
			}
		}
		<-h.o.Done()
	})
	return h
}

func (h *harness) waitState(t *testing.T, want State) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s := h.o.Snapshot()
		if s.State == want {
			return s
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s; state=%s", want, h.o.Snapshot().State)
	return Snapshot{}
}

func (h *harness) waitStarted(t *testing.T, want string) {
	t.Helper()
	select {
	case got := <-h.fl.started:
		if got != want {
			t.Fatalf("started %s, want %s", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s to start", want)
	}
}

func (h *harness) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.errc:
		return err
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return")
		return errors.New("unreachable")
	}
}

func (h *harness) selectReady(t *testing.T, index int) {
	t.Helper()
	h.waitState(t, StateAwaitingSelection)
	if err := h.o.Select(index); err != nil {
		t.Fatalf("Select(%d): %v", index, err)
	}
	h.waitState(t, StateAwaitingDevice)
}
