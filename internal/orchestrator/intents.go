package orchestrator

import "context"

type intentKind int

const (
	intentSelect intentKind = iota
	intentQuit
)

type intent struct {
	kind  intentKind
	index int
	reply chan error
}

// Select chooses the image at index of the listed firmware. It is accepted
// while awaiting a selection or a device; the download then runs in the
// background. Busy states reject it with an error satisfying IsBusy.
func (o *Orchestrator) Select(index int) error {
	in := intent{kind: intentSelect, index: index, reply: make(chan error, 1)}
	select {
	case o.intents <- in:
	case <-o.done:
		return ErrTerminated
	}
	select {
	case err := <-in.reply:
		return err
	case <-o.done:
		return ErrTerminated
	}
}

// Quit asks the session to end. It does not wait; watch for the terminated
// state or Done.
func (o *Orchestrator) Quit() {
	select {
	case o.intents <- intent{kind: intentQuit}:
	case <-o.done:
	}
}

func (o *Orchestrator) handleSelect(ctx context.Context, index int) error {
	st := o.state()
	if (st != StateAwaitingSelection && st != StateAwaitingDevice) || o.op != opNone {
		o.log.Debug().Int("index", index).Str("state", string(st)).Msg("selection rejected")
		return busyError{state: st}
	}
	fw := o.snapshot().Firmware
	if index < 0 || index >= len(fw) {
		return invalidSelectionError{index: index, n: len(fw)}
	}
	sel := fw[index]
	o.log.Info().Str("firmware", sel.Name).Msg("selected")
	o.publish("selected", map[string]any{"firmware": sel.Name})
	o.local = ""
	o.update(func(s *Snapshot) {
		s.Selected = &sel
		s.Cursor = index
		s.Err = ""
	})
	o.setState(StateAwaitingSelection, "Downloading "+sel.Name+"...")
	o.startDownload(ctx, sel.Source)
	return nil
}
