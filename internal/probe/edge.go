package probe

// EdgeDetector turns a level signal into absent→present edges. The zero
// value starts in the absent state.
type EdgeDetector struct {
	present bool
}

// Observe records a level and reports whether it completes an
// absent→present transition. Repeated true observations fire once.
func (d *EdgeDetector) Observe(present bool) bool {
	edge := present && !d.present
	d.present = present
	return edge
}

// Present reports the last observed level.
func (d *EdgeDetector) Present() bool { return d.present }

// Reset forgets the level so the next true observation fires again.
func (d *EdgeDetector) Reset() { d.present = false }
