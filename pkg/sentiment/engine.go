package sentiment

import (
	"math"
	"sync"
	"time"
)

const (
	// Epsilon is the smallest target change that starts a new animation.
	Epsilon = 0.01

	// DefaultAnimationDuration is the length of one score transition.
	DefaultAnimationDuration = 3000 * time.Millisecond

	// DefaultIntensity scales [Mood] strength when no intensity is set.
	DefaultIntensity = 0.5

	// neutralBand is the displayed magnitude below which the mood is neutral.
	neutralBand = 0.1

	// saturation is the displayed magnitude at which mood strength peaks.
	saturation = 6.0
)

// Score is a point-in-time view of an [Engine].
type Score struct {
	Target    float64 `json:"target"`
	Displayed float64 `json:"displayed"`
	Tracking  bool    `json:"tracking"`
	Animating bool    `json:"animating"`
}

// EngineOption configures an [Engine].
type EngineOption func(*Engine)

// WithAnimationDuration overrides [DefaultAnimationDuration]. Non-positive
// values are ignored.
func WithAnimationDuration(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.duration = d
		}
	}
}

// WithNow overrides the time source used to stamp animation starts.
func WithNow(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine tracks the cumulative sentiment score of the active sentence and
// eases the displayed value toward it. All methods are safe for concurrent
// use.
type Engine struct {
	duration time.Duration
	now      func() time.Time

	mu        sync.Mutex
	epoch     uint64
	tracking  bool
	target    float64
	displayed float64

	animating bool
	animFrom  float64
	animStart time.Time
}

// NewEngine returns an engine with tracking disabled and a zero score.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{duration: DefaultAnimationDuration, now: time.Now}
	for _, o := range opts {
		o(e)
	}
	return e
}

// SetTracking enables or disables score tracking. Either way the score is
// reset to zero and any running animation is cancelled.
func (e *Engine) SetTracking(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tracking = on
	e.resetLocked()
}

// Reset zeroes the score without changing whether tracking is enabled.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetLocked()
}

func (e *Engine) resetLocked() {
	e.epoch++
	e.target = 0
	e.displayed = 0
	e.animating = false
}

// Epoch identifies the current reset period. It advances on every
// [Engine.Reset] and [Engine.SetTracking].
func (e *Engine) Epoch() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.epoch
}

// Observe feeds the active sentence index. It is a no-op while tracking is
// off, during gaps (active < 0) and when data is empty, so the last target is
// kept. When the recomputed target differs from the stored one the
// animation restarts from the current displayed value. Observe reports
// whether an animation was started.
func (e *Engine) Observe(active int, data Data) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.observeLocked(active, data)
}

// ObserveAt is like [Engine.Observe] but ignores the sample when the engine
// has been reset since epoch was read. Callers read [Engine.Epoch] before
// loading the data they pass in, so data captured before a reset never
// revives a cleared score.
func (e *Engine) ObserveAt(epoch uint64, active int, data Data) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if epoch != e.epoch {
		return false
	}
	return e.observeLocked(active, data)
}

func (e *Engine) observeLocked(active int, data Data) bool {
	if !e.tracking || active < 0 || len(data) == 0 {
		return false
	}
	t := Target(active, data)
	if t == e.target {
		return false
	}
	e.target = t
	if math.Abs(t-e.displayed) <= Epsilon {
		e.displayed = t
		e.animating = false
		return false
	}
	e.animFrom = e.displayed
	e.animStart = e.now()
	e.animating = true
	return true
}

// Step advances the displayed value to now and reports whether the
// animation has finished. Without a running animation it returns the
// current value and true.
func (e *Engine) Step(now time.Time) (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.animating {
		return e.displayed, true
	}
	v, done := Animate(e.animFrom, e.target, now.Sub(e.animStart), e.duration)
	e.displayed = v
	if done {
		e.animating = false
	}
	return v, done
}

// Snapshot returns the current score state.
func (e *Engine) Snapshot() Score {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Score{
		Target:    e.target,
		Displayed: e.displayed,
		Tracking:  e.tracking,
		Animating: e.animating,
	}
}

// Mood is the renderer-facing summary of a displayed score.
type Mood struct {
	Polarity Label   `json:"polarity"`
	Strength float64 `json:"strength"`
}

// MoodOf derives the mood for a displayed score. intensity is clamped to
// [0, 1]; strength grows linearly with the score and saturates at 6.
func MoodOf(displayed, intensity float64) Mood {
	intensity = math.Max(0, math.Min(1, intensity))
	abs := math.Abs(displayed)
	if abs < neutralBand {
		return Mood{Polarity: Neutral}
	}
	m := Mood{Polarity: Positive, Strength: math.Min(abs/saturation, 1) * intensity}
	if displayed < 0 {
		m.Polarity = Negative
	}
	return m
}
