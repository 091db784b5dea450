package orchestrator

import (
	"context"
	"time"

	"gpflash/internal/flasher"
	"gpflash/pkg/types"
)

type opKind int

const (
	opNone opKind = iota
	opList
	opDownload
	opDecide
	opWrite
	opErase
)

func (k opKind) String() string {
	switch k {
	case opList:
		return "list"
	case opDownload:
		return "download"
	case opDecide:
		return "decide"
	case opWrite:
		return "write"
	case opErase:
		return "erase"
	default:
		return "none"
	}
}

// result is what a worker reports back to the Run loop.
type result struct {
	kind     opKind
	seq      uint64
	firmware []types.Firmware
	path     string
	program  flasher.Program
	res      flasher.Result
	err      error
}

// start runs fn on its own goroutine. Only one operation runs at a time;
// results of canceled operations are discarded by sequence number.
func (o *Orchestrator) start(parent context.Context, kind opKind, fn func(ctx context.Context) result) {
	o.opSeq++
	seq := o.opSeq
	ctx, cancel := context.WithCancel(parent)
	o.op, o.opCancel, o.opStart = kind, cancel, time.Now()
	go func() {
		r := fn(ctx)
		r.kind, r.seq = kind, seq
		select {
		case o.results <- r:
		case <-o.done:
		}
	}()
}

// endOp records the duration of the finished operation.
func (o *Orchestrator) endOp(r result) {
	operationDuration.WithLabelValues(r.kind.String()).Observe(time.Since(o.opStart).Seconds())
	if o.opCancel != nil {
		o.opCancel()
	}
	o.op, o.opCancel = opNone, nil
}

// cancelOp interrupts the running operation, if any. Writes and erases are
// never interrupted; the flasher detaches them from cancellation.
func (o *Orchestrator) cancelOp() {
	if o.opCancel != nil {
		o.opCancel()
	}
	o.op, o.opCancel = opNone, nil
}

func (o *Orchestrator) startList(ctx context.Context) {
	o.update(func(s *Snapshot) { s.Progress = "Fetching release info..." })
	o.start(ctx, opList, func(ctx context.Context) result {
		fw, err := o.releases.List(ctx)
		return result{firmware: fw, err: err}
	})
}

func (o *Orchestrator) startDownload(ctx context.Context, source string) {
	o.start(ctx, opDownload, func(ctx context.Context) result {
		p, err := o.releases.Download(ctx, source)
		return result{path: p, err: err}
	})
}

func (o *Orchestrator) startDecide(ctx context.Context) {
	o.start(ctx, opDecide, func(ctx context.Context) result {
		return result{program: o.flasher.CurrentProgram(ctx)}
	})
}

func (o *Orchestrator) startWrite(ctx context.Context) {
	image := o.local
	o.start(ctx, opWrite, func(ctx context.Context) result {
		return result{res: o.flasher.Write(ctx, image)}
	})
}

func (o *Orchestrator) startErase(ctx context.Context) {
	o.start(ctx, opErase, func(ctx context.Context) result {
		return result{res: o.flasher.Erase(ctx)}
	})
}
