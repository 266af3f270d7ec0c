// Package playback provides the playback clocks and the two periodic loops
// that drive a session: a [Poller] sampling the clock every 50 ms and an
// [Animator] stepping the score animation at frame rate.
//
// Each loop is owned by a single goroutine with its own stop channel. Stop
// calls are synchronous: once Stop returns, the loop's callback will not run
// again until the loop is restarted.
package playback

import (
	"sync"
	"time"
)

// Clock reports the playback position of the loaded media.
type Clock interface {
	// Position returns the current position in seconds. ok is false when no
	// media is loaded.
	Position() (seconds float64, ok bool)

	// Reset returns the clock to its state right after media was loaded.
	Reset()
}

// ManualClock is driven by position reports from a remote player. Between
// reports the position is extrapolated from the wall clock while the player
// reports that it is playing.
type ManualClock struct {
	now func() time.Time

	mu       sync.Mutex
	loaded   bool
	pos      float64
	playing  bool
	reported time.Time
}

// NewManualClock returns a clock with no media loaded.
func NewManualClock() *ManualClock {
	return &ManualClock{now: time.Now}
}

// Report records the player's position and play state.
func (c *ManualClock) Report(pos float64, playing bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = true
	c.pos = pos
	c.playing = playing
	c.reported = c.now()
}

// Position implements [Clock].
func (c *ManualClock) Position() (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		return 0, false
	}
	if !c.playing {
		return c.pos, true
	}
	return c.pos + c.now().Sub(c.reported).Seconds(), true
}

// Reset forgets the last report until the player reports again.
func (c *ManualClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = false
	c.pos = 0
	c.playing = false
}

// WallClock is a self-contained clock with transport controls, used for
// headless playback where no player exists.
type WallClock struct {
	now func() time.Time

	mu      sync.Mutex
	loaded  bool
	offset  float64
	playing bool
	started time.Time
}

// NewWallClock returns a loaded, paused clock at position 0.
func NewWallClock() *WallClock {
	return &WallClock{now: time.Now, loaded: true}
}

// Play starts or resumes the clock.
func (c *WallClock) Play() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playing {
		return
	}
	c.playing = true
	c.started = c.now()
}

// Pause freezes the clock at its current position.
func (c *WallClock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset = c.positionLocked()
	c.playing = false
}

// Seek moves the clock to pos without changing the play state. Negative
// positions clamp to 0.
func (c *WallClock) Seek(pos float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pos < 0 {
		pos = 0
	}
	c.offset = pos
	c.started = c.now()
}

// Playing reports whether the clock is running.
func (c *WallClock) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// Position implements [Clock].
func (c *WallClock) Position() (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.positionLocked(), c.loaded
}

func (c *WallClock) positionLocked() float64 {
	if !c.playing {
		return c.offset
	}
	return c.offset + c.now().Sub(c.started).Seconds()
}

// Reset pauses the clock at position 0.
func (c *WallClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset = 0
	c.playing = false
}
