//go:build !linux

package probe

import (
	"context"

	"github.com/rs/zerolog"
)

// UdevSource is only available on Linux.
type UdevSource struct {
	match Match
}

// NewUdevSource returns a source whose Subscribe always fails.
func NewUdevSource(m Match, log zerolog.Logger) *UdevSource { return &UdevSource{match: m} }

func (s *UdevSource) Name() string { return "udev" }

func (s *UdevSource) Subscribe(ctx context.Context) (<-chan Presence, error) {
	return nil, errUnsupported
}
