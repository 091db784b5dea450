package orchestrator

import (
	"time"

	"github.com/rs/zerolog"
)

// Defaults applied when corresponding Config fields are unset.
const defaultCooldown = 2 * time.Second

// Config encapsulates all tunables for Orchestrator construction.
type Config struct {
	Flasher  Flasher
	Releases Releases
	Edges    EdgeSource
	// Cooldown is the settle time after a write or erase before the next
	// edge is considered.
	Cooldown time.Duration
	// Preselect names an image (display or file name) to select as soon as
	// the list loads.
	Preselect string
	// StatePath is where the last selection is remembered; empty disables it.
	StatePath string
	Publisher EventPublisher
	Logger    zerolog.Logger
}
