package playback

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultPollInterval is how often a [Poller] samples its clock.
	DefaultPollInterval = 50 * time.Millisecond

	// DefaultFrameInterval is how often an [Animator] steps.
	DefaultFrameInterval = 16 * time.Millisecond
)

// TickFunc receives one clock sample per poll.
type TickFunc func(pos float64, ok bool)

// Poller samples a [Clock] at a fixed interval and hands every sample to a
// [TickFunc] on the poller's goroutine.
type Poller struct {
	clock    Clock
	interval time.Duration
	tick     TickFunc

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller creates a stopped poller. A non-positive interval selects
// [DefaultPollInterval].
func NewPoller(clock Clock, interval time.Duration, tick TickFunc) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{clock: clock, interval: interval, tick: tick}
}

// Start launches the polling goroutine. It is a no-op while the poller is
// already running. The loop also ends when ctx is cancelled.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done != nil {
		select {
		case <-p.done:
		default:
			return
		}
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go p.run(ctx, p.done)
}

func (p *Poller) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			// A tick and a stop can be ready together; stop wins.
			if ctx.Err() != nil {
				return
			}
			p.tick(p.clock.Position())
		}
	}
}

// Stop ends the polling goroutine and waits for it. It is safe to call
// multiple times and on a poller that was never started.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// StepFunc advances an animation to now and reports whether it finished.
type StepFunc func(now time.Time) (done bool)

// Animator runs a [StepFunc] at frame rate until it reports completion. At
// most one animation goroutine exists at a time.
type Animator struct {
	interval time.Duration
	step     StepFunc

	mu      sync.Mutex
	running bool
	rekick  bool
	stop    chan struct{}
	done    chan struct{}
}

// NewAnimator creates an idle animator. A non-positive interval selects
// [DefaultFrameInterval].
func NewAnimator(interval time.Duration, step StepFunc) *Animator {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	return &Animator{interval: interval, step: step}
}

// Kick starts the animation goroutine when idle. Kicking a running animator
// guarantees at least one more step after the current animation reports
// completion, so a restart raced against completion is never lost.
func (a *Animator) Kick() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		a.rekick = true
		return
	}
	a.running = true
	a.rekick = false
	a.stop = make(chan struct{})
	a.done = make(chan struct{})
	go a.run(a.stop, a.done)
}

func (a *Animator) run(stop, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(a.interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-t.C:
			select {
			case <-stop:
				return
			default:
			}
			if !a.step(now) {
				continue
			}
			a.mu.Lock()
			if a.rekick && a.stop == stop {
				a.rekick = false
				a.mu.Unlock()
				continue
			}
			if a.stop == stop {
				a.running = false
			}
			a.mu.Unlock()
			return
		}
	}
}

// Running reports whether an animation goroutine is active.
func (a *Animator) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Stop cancels the running animation and waits for its goroutine to exit.
func (a *Animator) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	stop, done := a.stop, a.done
	a.running = false
	a.rekick = false
	close(stop)
	a.mu.Unlock()
	<-done
}
