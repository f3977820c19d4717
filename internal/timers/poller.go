package timers

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Poller runs fn every interval while started. Stop is safe to call any
// number of times and guarantees fn is not scheduled again.
type Poller struct {
	clock    clockwork.Clock
	interval time.Duration
	fn       func()

	mu      sync.Mutex
	timer   clockwork.Timer
	running bool
	closed  bool
	gen     uint64
}

func NewPoller(clock clockwork.Clock, interval time.Duration, fn func()) *Poller {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Poller{
		clock:    clock,
		interval: interval,
		fn:       fn,
	}
}

// Start schedules the first tick one interval from now. It is a no-op when
// the poller is already running.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running || p.closed {
		return
	}
	p.running = true
	p.gen++
	p.scheduleLocked(p.gen)
}

func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

// Close stops the poller for good. Later calls to Start do nothing.
func (p *Poller) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.stopLocked()
}

func (p *Poller) stopLocked() {
	if !p.running {
		return
	}
	p.running = false
	p.gen++
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Poller) Interval() time.Duration {
	return p.interval
}

func (p *Poller) scheduleLocked(gen uint64) {
	p.timer = p.clock.AfterFunc(p.interval, func() {
		p.tick(gen)
	})
}

func (p *Poller) tick(gen uint64) {
	p.mu.Lock()
	if !p.running || gen != p.gen {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	p.fn()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running && gen == p.gen {
		p.scheduleLocked(gen)
	}
}
