package timers

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Debouncer fires fn once delay has elapsed since the first Trigger, unless
// Cancel is called first. Triggering while pending does not extend the wait.
type Debouncer struct {
	clock clockwork.Clock
	delay time.Duration
	fn    func()

	mu      sync.Mutex
	timer   clockwork.Timer
	pending bool
	closed  bool
	gen     uint64
}

func NewDebouncer(clock clockwork.Clock, delay time.Duration, fn func()) *Debouncer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Debouncer{
		clock: clock,
		delay: delay,
		fn:    fn,
	}
}

func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending || d.closed {
		return
	}
	d.pending = true
	d.gen++
	gen := d.gen
	d.timer = d.clock.AfterFunc(d.delay, func() {
		d.fire(gen)
	})
}

// Cancel drops a pending trigger. It reports whether one was pending.
func (d *Debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cancelLocked()
}

// Close cancels any pending trigger and ignores later ones.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.cancelLocked()
}

func (d *Debouncer) cancelLocked() bool {
	if !d.pending {
		return false
	}
	d.pending = false
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	return true
}

func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if !d.pending || gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.pending = false
	d.timer = nil
	d.mu.Unlock()

	d.fn()
}
