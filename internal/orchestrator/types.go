package orchestrator

import (
	"context"
	"time"

	"gpflash/internal/flasher"
	"gpflash/internal/probe"
	"gpflash/pkg/types"
)

// State is the session state.
type State string

const (
	StateIdle              State = "idle"
	StateAwaitingSelection State = "awaiting_selection"
	StateAwaitingDevice    State = "awaiting_device"
	StateDeciding          State = "deciding"
	StateFlashing          State = "flashing"
	StateNuking            State = "nuking"
	StateCooldown          State = "cooldown"
	StateTerminated        State = "terminated"
)

// AllStates lists every state, in lifecycle order.
var AllStates = []State{
	StateIdle, StateAwaitingSelection, StateAwaitingDevice, StateDeciding,
	StateFlashing, StateNuking, StateCooldown, StateTerminated,
}

// Busy reports whether a board operation is running or settling.
func (s State) Busy() bool {
	switch s {
	case StateDeciding, StateFlashing, StateNuking, StateCooldown:
		return true
	}
	return false
}

// Snapshot is a read-only projection of the session.
type Snapshot struct {
	Session  string
	State    State
	Progress string
	Err      string
	// Firmware is the listed image set; never mutated after listing.
	Firmware []types.Firmware
	// Cursor is the suggested list position (the last selection, if any).
	Cursor   int
	Selected *types.Firmware
	Device   *types.Device
	Flashed  int
	Nuked    int
	At       time.Time
}

// Flasher performs board operations.
type Flasher interface {
	CurrentProgram(ctx context.Context) flasher.Program
	Write(ctx context.Context, image string) flasher.Result
	Erase(ctx context.Context) flasher.Result
}

// Releases lists images and makes them available locally.
type Releases interface {
	// List may return a non-empty list together with an error when the
	// list is a degraded (e.g. cached) answer.
	List(ctx context.Context) ([]types.Firmware, error)
	Download(ctx context.Context, source string) (string, error)
}

// EdgeSource delivers presence edges.
type EdgeSource interface {
	Edges() <-chan probe.Presence
	Rearm()
}
