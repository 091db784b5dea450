package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gpflash/internal/probe"
	"gpflash/pkg/types"
)

// Orchestrator owns one flashing session.
type Orchestrator struct {
	flasher   Flasher
	releases  Releases
	edges     EdgeSource
	cooldown  time.Duration
	preselect string
	statePath string
	pub       EventPublisher
	log       zerolog.Logger

	intents chan intent
	results chan result
	done    chan struct{}
	running atomic.Bool

	// guarded by mu; written only by the Run goroutine
	mu        sync.RWMutex
	snap      Snapshot
	subs      map[int]chan Snapshot
	nextSub   int
	startTime time.Time

	// owned by the Run goroutine
	op          opKind
	opSeq       uint64
	opCancel    context.CancelFunc
	opStart     time.Time
	local       string // local path of the selected image
	lastOp      opKind
	quitPending bool
	last        selectionRecord
}

// New constructs an Orchestrator, applying defaults for unset fields.
func New(cfg Config) *Orchestrator {
	o := &Orchestrator{
		flasher:   cfg.Flasher,
		releases:  cfg.Releases,
		edges:     cfg.Edges,
		cooldown:  cfg.Cooldown,
		preselect: cfg.Preselect,
		statePath: cfg.StatePath,
		pub:       cfg.Publisher,
		log:       cfg.Logger.With().Str("component", "orchestrator").Logger(),
		intents:   make(chan intent, 8),
		results:   make(chan result, 1),
		done:      make(chan struct{}),
		subs:      make(map[int]chan Snapshot),
		startTime: time.Now(),
	}
	if o.cooldown <= 0 {
		o.cooldown = defaultCooldown
	}
	if o.pub == nil {
		o.pub = noopPublisher{}
	}
	o.snap = Snapshot{Session: uuid.NewString(), State: StateIdle, At: o.startTime}
	return o
}

// Done is closed when Run returns.
func (o *Orchestrator) Done() <-chan struct{} { return o.done }

// Run drives the session until it terminates. It returns nil after a quit
// (or ctx cancellation) and an error matching ErrWriteFailed when a write or
// erase failed. Run may be called once.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.running.CompareAndSwap(false, true) {
		return errors.New("orchestrator already running")
	}
	defer close(o.done)

	o.loadLastSelection()
	o.log.Info().Str("session", o.snap.Session).Msg("session started")
	o.publish("session_started", nil)
	resetStateGauge()
	stateGauge.WithLabelValues(string(StateIdle)).Set(1)
	o.startList(ctx)

	var (
		ctxDone   = ctx.Done()
		edges     <-chan probe.Presence
		cooldown  *time.Timer
		cooldownC <-chan time.Time
	)
	if o.edges != nil {
		edges = o.edges.Edges()
	}
	stopCooldown := func() {
		if cooldown != nil {
			cooldown.Stop()
			cooldown, cooldownC = nil, nil
		}
	}

	for {
		select {
		case <-ctxDone:
			ctxDone = nil
			if o.requestQuit("context canceled") {
				stopCooldown()
				return o.terminate(nil)
			}

		case in := <-o.intents:
			switch in.kind {
			case intentQuit:
				if o.requestQuit("quit requested") {
					stopCooldown()
					return o.terminate(nil)
				}
			case intentSelect:
				in.reply <- o.handleSelect(ctx, in.index)
			}

		case p, ok := <-edges:
			if !ok {
				edges = nil
				o.log.Warn().Msg("presence source closed")
				continue
			}
			o.handleEdge(ctx, p)

		case r := <-o.results:
			if r.seq != o.opSeq || o.op == opNone {
				continue
			}
			o.endOp(r)
			if stop, err := o.handleResult(ctx, r); stop {
				return o.terminate(err)
			}
			if o.state() == StateCooldown {
				cooldown = time.NewTimer(o.cooldown)
				cooldownC = cooldown.C
			}

		case <-cooldownC:
			cooldown, cooldownC = nil, nil
			o.endCooldown()
		}
	}
}

// requestQuit reports whether the session can terminate now. A write or
// erase in flight defers the quit until its result arrives; any other
// operation is interrupted.
func (o *Orchestrator) requestQuit(why string) bool {
	if o.op == opWrite || o.op == opErase {
		if !o.quitPending {
			o.quitPending = true
			o.log.Info().Str("reason", why).Str("op", o.op.String()).Msg("quit deferred until operation completes")
			o.update(func(s *Snapshot) { s.Progress = "Finishing " + o.op.String() + " before quitting..." })
		}
		return false
	}
	o.log.Info().Str("reason", why).Msg("quitting")
	o.cancelOp()
	return true
}

func (o *Orchestrator) handleEdge(ctx context.Context, p probe.Presence) {
	if o.state() != StateAwaitingDevice || o.op != opNone {
		presenceEdgesTotal.WithLabelValues("false").Inc()
		o.log.Debug().Str("state", string(o.state())).Str("node", p.Device.Node).Msg("edge ignored")
		o.publish("edge_ignored", map[string]any{"state": string(o.state())})
		return
	}
	presenceEdgesTotal.WithLabelValues("true").Inc()
	dev := p.Device
	o.log.Info().Str("node", dev.Node).Str("source", dev.Source).Msg("board detected")
	o.update(func(s *Snapshot) {
		s.Device = &dev
		s.Err = ""
	})
	o.setState(StateDeciding, "Board detected, reading program info...")
	o.startDecide(ctx)
}

// handleResult applies a finished operation. stop reports that the session
// must terminate, with err as Run's return value.
func (o *Orchestrator) handleResult(ctx context.Context, r result) (stop bool, err error) {
	switch r.kind {
	case opList:
		o.listed(ctx, r.firmware, r.err)
	case opDownload:
		o.downloaded(r)
	case opDecide:
		if r.program.Present() {
			o.log.Info().Str("program", r.program.Name).Msg("board has a program, erasing")
			o.setState(StateNuking, "Nuking "+r.program.Name+"...")
			o.startErase(ctx)
		} else {
			o.log.Info().Msg("board is blank, writing firmware")
			o.setState(StateFlashing, "Flashing "+o.selectedName()+"...")
			o.startWrite(ctx)
		}
	case opWrite, opErase:
		return o.operated(r)
	}
	return false, nil
}

func (o *Orchestrator) listed(ctx context.Context, fw []types.Firmware, err error) {
	cursor := indexOf(fw, o.last.Name)
	if cursor < 0 {
		cursor = 0
	}
	msg := ""
	switch {
	case err != nil && len(fw) > 0:
		o.log.Warn().Err(err).Int("images", len(fw)).Msg("using degraded firmware list")
		msg = err.Error()
	case err != nil:
		o.log.Error().Err(err).Msg("firmware list unavailable")
		msg = "Failed to fetch release info: " + err.Error()
	}
	o.update(func(s *Snapshot) {
		s.Firmware = fw
		s.Cursor = cursor
		s.Err = msg
	})
	o.setState(StateAwaitingSelection, "Select a firmware image")
	if o.preselect == "" {
		return
	}
	i := indexOf(fw, o.preselect)
	if i < 0 {
		o.log.Error().Str("firmware", o.preselect).Msg("preselected firmware not listed")
		o.update(func(s *Snapshot) { s.Err = "Firmware " + o.preselect + " not found" })
		return
	}
	o.log.Info().Str("firmware", fw[i].Name).Msg("preselected")
	if err := o.handleSelect(ctx, i); err != nil {
		o.log.Error().Err(err).Str("firmware", fw[i].Name).Msg("preselection rejected")
		o.update(func(s *Snapshot) { s.Err = err.Error() })
	}
}

func (o *Orchestrator) downloaded(r result) {
	if r.err != nil {
		o.log.Error().Err(r.err).Msg("download failed")
		o.local = ""
		o.update(func(s *Snapshot) {
			s.Selected = nil
			s.Err = "Download failed: " + r.err.Error()
		})
		o.setState(StateAwaitingSelection, "Select a firmware image")
		return
	}
	o.local = r.path
	fw := *o.snapshot().Selected
	o.saveLastSelection(fw)
	o.log.Info().Str("firmware", fw.Name).Str("path", r.path).Msg("firmware ready")
	o.update(func(s *Snapshot) {
		sel := fw
		sel.LocalPath = r.path
		s.Selected = &sel
		s.Err = ""
	})
	// a board plugged before or during the download produced an edge that
	// was ignored; re-arm so it is reported again
	if o.edges != nil {
		o.edges.Rearm()
	}
	o.setState(StateAwaitingDevice, "Waiting for board in BOOTSEL mode...")
}

func (o *Orchestrator) operated(r result) (bool, error) {
	op := r.kind.String()
	if !r.res.OK {
		operationsTotal.WithLabelValues(op, "failed").Inc()
		err := writeFailedError{op: op, image: r.res.Image, reason: r.res.Reason, detail: r.res.Detail}
		o.log.Error().Str("op", op).Str("image", r.res.Image).Str("reason", r.res.Reason).Str("detail", r.res.Detail).Msg("operation failed")
		o.update(func(s *Snapshot) { s.Err = err.Error() })
		return true, err
	}
	operationsTotal.WithLabelValues(op, "ok").Inc()
	o.lastOp = r.kind
	o.update(func(s *Snapshot) {
		if r.kind == opWrite {
			s.Flashed++
		} else {
			s.Nuked++
		}
	})
	o.publish(op+"_done", map[string]any{"image": r.res.Image})
	if o.quitPending {
		return true, nil
	}
	if r.kind == opWrite {
		o.setState(StateCooldown, "Flashed. Unplug the board or connect the next one.")
	} else {
		o.setState(StateCooldown, "Nuked. Waiting for the board to return to BOOTSEL mode...")
	}
	return false, nil
}

// endCooldown returns to waiting. After an erase the board reboots straight
// back into the bootloader, possibly while edges were being ignored, so the
// watcher is re-armed to report it again.
func (o *Orchestrator) endCooldown() {
	if o.lastOp == opErase && o.edges != nil {
		o.log.Debug().Msg("re-arming presence watcher after erase")
		o.edges.Rearm()
	}
	o.setState(StateAwaitingDevice, "Waiting for board in BOOTSEL mode...")
}

// terminate publishes the final state and releases subscribers.
func (o *Orchestrator) terminate(err error) error {
	o.cancelOp()
	msg := "Session ended"
	if err != nil {
		msg = "Session ended with an error"
	}
	o.setState(StateTerminated, msg)
	o.log.Info().Err(err).Int("flashed", o.snapshot().Flashed).Int("nuked", o.snapshot().Nuked).Msg("session terminated")
	o.closeSubscribers()
	return err
}

func (o *Orchestrator) selectedName() string {
	if sel := o.snapshot().Selected; sel != nil {
		return sel.Name
	}
	return "firmware"
}
