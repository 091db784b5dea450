package orchestrator

import (
	"errors"
	"fmt"
)

// ErrWriteFailed matches any write or erase failure that ended the session.
var ErrWriteFailed = errors.New("write failed")

// ErrTerminated is returned by intents sent after the session ended.
var ErrTerminated = errors.New("session terminated")

// writeFailedError carries the failed operation's details.
type writeFailedError struct {
	op     string
	image  string
	reason string
	detail string
}

func (e writeFailedError) Error() string {
	msg := fmt.Sprintf("%s of %s failed: %s", e.op, e.image, e.reason)
	if e.detail != "" {
		msg += " (" + e.detail + ")"
	}
	return msg + "; retry manually"
}

func (e writeFailedError) Is(target error) bool { return target == ErrWriteFailed }

// IsWriteFailed reports whether err ended the session on a failed write.
func IsWriteFailed(err error) bool { return errors.Is(err, ErrWriteFailed) }

// busyError rejects a selection while the session cannot take one.
type busyError struct{ state State }

func (e busyError) Error() string { return "busy: " + string(e.state) }

// IsBusy reports whether err rejected an intent because of the current state.
func IsBusy(err error) bool {
	var e busyError
	return errors.As(err, &e)
}

type invalidSelectionError struct{ index, n int }

func (e invalidSelectionError) Error() string {
	return fmt.Sprintf("selection %d out of range [0,%d)", e.index, e.n)
}

// IsInvalidSelection reports whether err rejected an out-of-range index.
func IsInvalidSelection(err error) bool {
	var e invalidSelectionError
	return errors.As(err, &e)
}
