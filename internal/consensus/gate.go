// Package consensus decides when a plate number read from the video stream
// is trustworthy. A Gate keeps at most one recognition job in flight, a
// Tracker counts how often each guess recurs, and a Dispatcher ties the two
// together around a small worker pool.
package consensus

import "sync/atomic"

// Gate is the IDLE/BUSY switch in front of the recognition workers.
// The zero value is an idle gate.
type Gate struct {
	busy    atomic.Bool
	dropped atomic.Uint64
}

// TryAcquire moves the gate from IDLE to BUSY. It returns false, and counts
// a dropped detection, when a job is already in flight.
func (g *Gate) TryAcquire() bool {
	if g.busy.CompareAndSwap(false, true) {
		return true
	}
	g.dropped.Add(1)
	return false
}

// Release moves the gate back to IDLE. Only the first call after a
// successful TryAcquire has an effect; it reports whether it did.
func (g *Gate) Release() bool {
	return g.busy.CompareAndSwap(true, false)
}

// Busy reports whether a job is in flight.
func (g *Gate) Busy() bool {
	return g.busy.Load()
}

// Dropped returns how many detections arrived while the gate was busy.
func (g *Gate) Dropped() uint64 {
	return g.dropped.Load()
}
