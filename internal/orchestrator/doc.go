// Package orchestrator drives a flashing session: list images, take the
// operator's selection, download it, then react to each board that appears
// in BOOTSEL mode by either writing the image (blank board) or erasing it
// (board that still runs a program). It is structured into small files by
// concern:
//
//   - orchestrator.go: Orchestrator type, constructor, the Run loop.
//   - config.go: Config and package defaults.
//   - types.go: State, Snapshot and the collaborator interfaces.
//   - intents.go: Select/Quit entry points used by presentation adapters.
//   - ops.go: off-loop workers (listing, download, decide, write, erase).
//   - status.go: Snapshot/Status reporting and subscriber fan-out.
//   - errors.go: error types and helpers (IsWriteFailed, IsBusy).
//   - events.go, eventpub_memory.go: lifecycle event publishing.
//   - persist.go: last selection remembered across runs.
//   - metrics.go: Prometheus collectors.
//
// A single goroutine (Run) owns the session state. Intents, presence edges
// and operation results all arrive on channels and are handled one at a
// time, so no two writes or erases can ever overlap.
package orchestrator
