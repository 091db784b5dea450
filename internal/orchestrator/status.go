package orchestrator

import (
	"time"

	"gpflash/pkg/types"
)

// Snapshot returns a read-only view of the session.
func (o *Orchestrator) Snapshot() Snapshot { return o.snapshot() }

func (o *Orchestrator) snapshot() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.snap
}

func (o *Orchestrator) state() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.snap.State
}

// Firmware returns the listed images.
func (o *Orchestrator) Firmware() []types.Firmware {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]types.Firmware, len(o.snap.Firmware))
	copy(out, o.snap.Firmware)
	return out
}

// Ready reports whether the session is waiting for a board.
func (o *Orchestrator) Ready() bool { return o.state() == StateAwaitingDevice }

// Status builds the status payload served over HTTP.
func (o *Orchestrator) Status() types.StatusResponse {
	o.mu.RLock()
	defer o.mu.RUnlock()
	s := o.snap
	return types.StatusResponse{
		Session:       s.Session,
		State:         string(s.State),
		Progress:      s.Progress,
		Error:         s.Err,
		Selected:      s.Selected,
		Device:        s.Device,
		Flashed:       s.Flashed,
		Nuked:         s.Nuked,
		UpdatedUnix:   s.At.Unix(),
		UptimeSeconds: int64(time.Since(o.startTime).Seconds()),
	}
}

// Subscribe returns a channel of snapshots. Each subscriber holds at most
// one pending snapshot; a slow reader only ever sees the latest. The
// channel is closed after the terminated snapshot has been delivered to it.
// cancel releases the subscription.
func (o *Orchestrator) Subscribe() (<-chan Snapshot, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	ch := make(chan Snapshot, 1)
	ch <- o.snap
	if o.snap.State == StateTerminated {
		close(ch)
		return ch, func() {}
	}
	id := o.nextSub
	o.nextSub++
	o.subs[id] = ch
	return ch, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if c, ok := o.subs[id]; ok {
			delete(o.subs, id)
			close(c)
		}
	}
}

// update mutates the snapshot and fans it out.
func (o *Orchestrator) update(fn func(*Snapshot)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fn(&o.snap)
	o.snap.At = time.Now()
	for _, ch := range o.subs {
		offer(ch, o.snap)
	}
}

// offer replaces any pending snapshot with s.
func offer(ch chan Snapshot, s Snapshot) {
	select {
	case ch <- s:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- s:
	default:
	}
}

func (o *Orchestrator) setState(st State, progress string) {
	prev := o.state()
	o.update(func(s *Snapshot) {
		s.State = st
		s.Progress = progress
	})
	if prev == st {
		return
	}
	stateGauge.WithLabelValues(string(prev)).Set(0)
	stateGauge.WithLabelValues(string(st)).Set(1)
	o.log.Debug().Str("from", string(prev)).Str("to", string(st)).Msg("state")
	o.publish("state_changed", map[string]any{"from": string(prev), "to": string(st)})
}

func (o *Orchestrator) publish(name string, fields map[string]any) {
	o.pub.Publish(Event{Name: name, Session: o.snap.Session, Fields: fields})
}

func (o *Orchestrator) closeSubscribers() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for id, ch := range o.subs {
		close(ch)
		delete(o.subs, id)
	}
}
