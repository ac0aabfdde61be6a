package engine

import (
	"time"
)

// debouncer collapses a burst of triggers into a single tick that fires
// once the burst has been quiet for interval. It is owned by one
// goroutine, which selects on C.
type debouncer struct {
	interval time.Duration
	timer    *time.Timer
	pending  bool
}

func newDebouncer(interval time.Duration) *debouncer {
	return &debouncer{interval: interval}
}

// Trigger (re)starts the quiet period.
func (d *debouncer) Trigger() {
	if d.timer == nil {
		d.timer = time.NewTimer(d.interval)
	} else {
		d.timer.Reset(d.interval)
	}
	d.pending = true
}

// C delivers the tick for a pending burst. It is nil while nothing is
// pending, which blocks forever in a select.
func (d *debouncer) C() <-chan time.Time {
	if !d.pending {
		return nil
	}
	return d.timer.C
}

// Fired must be called after receiving from C.
func (d *debouncer) Fired() {
	d.pending = false
}

func (d *debouncer) Stop() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = false
}
