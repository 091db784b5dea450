package probe

import (
	"context"
	"errors"
	"time"

	"gpflash/pkg/types"
)

// Presence is one observation of the board.
type Presence struct {
	Present bool
	Device  types.Device
	At      time.Time
}

// Poller answers "is the board present right now". Implementations must
// honor ctx deadlines and must not leak handles across calls. Absence is
// (Presence{}, nil), never an error.
type Poller interface {
	Name() string
	Present(ctx context.Context) (Presence, error)
}

// EventSource streams presence levels derived from platform events. The
// channel is closed when ctx is done or the source fails.
type EventSource interface {
	Name() string
	Subscribe(ctx context.Context) (<-chan Presence, error)
}

// errUnsupported is returned by probes that do not exist on this platform.
var errUnsupported = errors.New("probe not supported on this platform")

// dependencyUnavailableError signals a probe compiled out of this build.
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

// IsDependencyUnavailable reports whether err indicates a probe that was not built in.
func IsDependencyUnavailable(err error) bool {
	var e dependencyUnavailableError
	return errors.As(err, &e)
}

// IsUnsupported reports whether err indicates a probe unavailable on this OS.
func IsUnsupported(err error) bool { return errors.Is(err, errUnsupported) }
