package flasher

import (
	"errors"
	"runtime"
)

// Failure reasons reported in Result.Reason.
const (
	ReasonImageNotFound  = "image not found"
	ReasonUtilityFailure = "utility reported failure"
)

// utilityMissingError signals that picotool cannot be invoked. It is the
// only fatal error this package produces.
type utilityMissingError struct {
	bin  string
	hint string
	err  error
}

func (e utilityMissingError) Error() string {
	msg := e.bin + " is not installed or not runnable"
	if e.err != nil {
		msg += ": " + e.err.Error()
	}
	return msg
}

func (e utilityMissingError) Unwrap() error { return e.err }

// Hint returns the platform-specific installation guidance.
func (e utilityMissingError) Hint() string { return e.hint }

// IsUtilityMissing reports whether err indicates a missing picotool.
func IsUtilityMissing(err error) bool {
	var e utilityMissingError
	return errors.As(err, &e)
}

// InstallHint extracts the installation guidance from a utility-missing
// error, or returns "" for any other error.
func InstallHint(err error) string {
	var e utilityMissingError
	if errors.As(err, &e) {
		return e.hint
	}
	return ""
}

// HintFor returns installation guidance for the given GOOS.
func HintFor(goos string) string {
	switch goos {
	case "windows":
		return "See: https://github.com/raspberrypi/pico-setup-windows/releases"
	case "darwin":
		return "Run: brew install picotool"
	default:
		return "See: https://github.com/raspberrypi/pico-setup"
	}
}

func hostHint() string { return HintFor(runtime.GOOS) }
