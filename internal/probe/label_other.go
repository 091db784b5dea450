//go:build !windows

package probe

import "context"

// DriveLabelProbe is only available on Windows.
type DriveLabelProbe struct {
	label string
}

// NewDriveLabelProbe returns a probe that always reports errUnsupported.
func NewDriveLabelProbe(label string) *DriveLabelProbe { return &DriveLabelProbe{label: label} }

func (p *DriveLabelProbe) Name() string { return "label" }

func (p *DriveLabelProbe) Present(ctx context.Context) (Presence, error) {
	return Presence{}, errUnsupported
}
