// Package flasher wraps the picotool command-line utility.
//
// The Executor answers three questions for the orchestrator: can picotool
// be run at all, which program (if any) the attached board reports, and
// whether writing an image (or the erase image) succeeded. Every failure
// to write is a Result, never a panic or a process exit; only a missing
// utility is reported as an error, and that is fatal to the caller.
package flasher
