package probe

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// Defaults applied when corresponding WatcherConfig fields are unset.
const (
	defaultPollInterval = time.Second
	defaultProbeTimeout = 2 * time.Second
)

// WatcherConfig tunes a Watcher.
type WatcherConfig struct {
	PollInterval time.Duration
	ProbeTimeout time.Duration
	// Fallback is polled when the event source cannot be subscribed.
	Fallback Poller
	Logger   zerolog.Logger
}

// Watcher emits presence edges from a Poller or an EventSource.
type Watcher struct {
	poller   Poller
	source   EventSource
	fallback Poller
	interval time.Duration
	timeout  time.Duration
	edges    chan Presence
	rearm    chan struct{}
	log      zerolog.Logger

	det     EdgeDetector
	last    Presence
	lastErr string
}

// NewPollWatcher watches p, checking every PollInterval.
func NewPollWatcher(p Poller, cfg WatcherConfig) *Watcher {
	w := newWatcher(cfg)
	w.poller = p
	return w
}

// NewEventWatcher watches s; cfg.Fallback is polled if s fails to subscribe.
func NewEventWatcher(s EventSource, cfg WatcherConfig) *Watcher {
	w := newWatcher(cfg)
	w.source = s
	return w
}

func newWatcher(cfg WatcherConfig) *Watcher {
	w := &Watcher{
		fallback: cfg.Fallback,
		interval: cfg.PollInterval,
		timeout:  cfg.ProbeTimeout,
		edges:    make(chan Presence),
		rearm:    make(chan struct{}, 1),
		log:      cfg.Logger.With().Str("component", "probe").Logger(),
	}
	if w.interval <= 0 {
		w.interval = defaultPollInterval
	}
	if w.timeout <= 0 {
		w.timeout = defaultProbeTimeout
	}
	return w
}

// Edges delivers one Presence per absent→present transition.
func (w *Watcher) Edges() <-chan Presence { return w.edges }

// Rearm asks the watcher to forget the current level: if the board is
// present it produces a fresh edge. Used when edges were being ignored: a
// board plugged during a download, or the re-enumeration after an erase.
func (w *Watcher) Rearm() {
	select {
	case w.rearm <- struct{}{}:
	default:
	}
}

// Name identifies the active mechanism.
func (w *Watcher) Name() string {
	if w.source != nil {
		return w.source.Name()
	}
	if w.poller != nil {
		return w.poller.Name()
	}
	return "none"
}

// Run drives the watcher until ctx is done. It returns ctx.Err() on
// cancellation, or an error if the event source fails with no fallback.
// Mechanisms that hold OS resources (io.Closer) are closed when Run returns.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.release([]any{w.source, w.poller, w.fallback})
	if w.source != nil {
		ch, err := w.source.Subscribe(ctx)
		if err == nil {
			w.log.Info().Str("source", w.source.Name()).Msg("watching for device events")
			err = w.runEvents(ctx, ch)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
		if w.fallback == nil {
			return fmt.Errorf("%s: %w", w.source.Name(), err)
		}
		w.log.Warn().Err(err).Str("source", w.source.Name()).Str("fallback", w.fallback.Name()).Msg("event source unavailable, polling instead")
		w.poller = w.fallback
		w.source = nil
	}
	if w.poller == nil {
		return fmt.Errorf("watcher has no probe")
	}
	w.log.Info().Str("source", w.poller.Name()).Dur("interval", w.interval).Msg("polling for device")
	return w.runPoll(ctx)
}

func (w *Watcher) release(mechs []any) {
	for _, m := range mechs {
		c, ok := m.(io.Closer)
		if !ok {
			continue
		}
		if err := c.Close(); err != nil {
			w.log.Warn().Err(err).Msg("close probe")
		}
	}
}

func (w *Watcher) runPoll(ctx context.Context) error {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	if err := w.check(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.rearm:
			probeRearmsTotal.Inc()
			w.det.Reset()
			if err := w.check(ctx); err != nil {
				return err
			}
		case <-t.C:
			if err := w.check(ctx); err != nil {
				return err
			}
		}
	}
}

// check runs one bounded probe and emits an edge if warranted. Probe
// failures count as absence for this cycle.
func (w *Watcher) check(ctx context.Context) error {
	pctx, cancel := context.WithTimeout(ctx, w.timeout)
	p, err := w.poller.Present(pctx)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.probeError(w.poller.Name(), err)
		p = Presence{}
	} else {
		w.probeOK(w.poller.Name())
	}
	return w.observe(ctx, w.poller.Name(), p)
}

func (w *Watcher) runEvents(ctx context.Context, ch <-chan Presence) error {
	name := w.source.Name()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.rearm:
			probeRearmsTotal.Inc()
			if w.det.Present() {
				w.det.Reset()
				if err := w.observe(ctx, name, w.last); err != nil {
					return err
				}
			}
		case p, ok := <-ch:
			if !ok {
				return fmt.Errorf("event stream closed")
			}
			if err := w.observe(ctx, name, p); err != nil {
				return err
			}
		}
	}
}

func (w *Watcher) observe(ctx context.Context, source string, p Presence) error {
	if p.At.IsZero() {
		p.At = time.Now()
	}
	if p.Present {
		w.last = p
	}
	if !w.det.Observe(p.Present) {
		return nil
	}
	probeEdgesTotal.WithLabelValues(source).Inc()
	w.log.Info().Str("source", source).Str("node", p.Device.Node).Msg("device present")
	select {
	case w.edges <- p:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// probeError logs only when the error text changes, so a persistent
// failure does not flood the log once per poll.
func (w *Watcher) probeError(source string, err error) {
	probeErrorsTotal.WithLabelValues(source).Inc()
	if msg := err.Error(); msg != w.lastErr {
		w.lastErr = msg
		w.log.Warn().Err(err).Str("source", source).Msg("probe failed, treating as absent")
	}
}

func (w *Watcher) probeOK(source string) {
	if w.lastErr != "" {
		w.lastErr = ""
		w.log.Info().Str("source", source).Msg("probe recovered")
	}
}
