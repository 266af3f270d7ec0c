package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often a [Watcher] checks the config file.
const DefaultWatchInterval = 5 * time.Second

// ReloadFunc receives the difference between the previous and the newly
// loaded configuration together with the new configuration. It is only
// called when [ConfigDiff.Changed] reports a change.
type ReloadFunc func(d ConfigDiff, cfg *Config)

// Watcher polls a config file and reports live-applicable changes through a
// [ReloadFunc]. Invalid edits are logged and ignored; the last valid config
// stays current.
type Watcher struct {
	path     string
	interval time.Duration
	onReload ReloadFunc
	log      *slog.Logger

	mu      sync.Mutex
	current *Config
	mtime   time.Time
	sum     [sha256.Size]byte
	reloads int

	cancel context.CancelFunc
	done   chan struct{}
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Non-positive values keep
// [DefaultWatchInterval].
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatchLogger sets the logger used for reload reports. Defaults to
// [slog.Default].
func WithWatchLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

// NewWatcher loads path and starts polling it until ctx is cancelled or
// [Watcher.Stop] is called. onReload may be nil.
func NewWatcher(ctx context.Context, path string, onReload ReloadFunc, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		onReload: onReload,
		log:      slog.Default(),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}

	snap, err := readSnapshot(path)
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current, w.mtime, w.sum = snap.cfg, snap.mtime, snap.sum

	ctx, w.cancel = context.WithCancel(ctx)
	go w.loop(ctx)
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Reloads returns how many content changes have been accepted.
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

// Stop ends polling and waits for the polling goroutine to exit. It is safe
// to call more than once.
func (w *Watcher) Stop() {
	w.cancel()
	<-w.done
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.reload()
		}
	}
}

// reload picks up a changed file. Unchanged mtimes short-circuit before the
// file is read; a changed mtime with identical content only refreshes the
// stored mtime.
func (w *Watcher) reload() {
	info, err := os.Stat(w.path)
	if err != nil {
		w.log.Warn("config: cannot stat watched file", "path", w.path, "err", err)
		return
	}
	w.mu.Lock()
	same := info.ModTime().Equal(w.mtime)
	w.mu.Unlock()
	if same {
		return
	}

	snap, err := readSnapshot(w.path)
	if err != nil {
		w.log.Warn("config: keeping previous configuration", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	w.mtime = snap.mtime
	if snap.sum == w.sum {
		w.mu.Unlock()
		return
	}
	prev := w.current
	w.current, w.sum = snap.cfg, snap.sum
	w.reloads++
	w.mu.Unlock()

	d := Diff(prev, snap.cfg)
	w.log.Info("config: reloaded",
		"path", w.path,
		"log_level_changed", d.LogLevelChanged,
		"playback_changed", d.PlaybackChanged,
	)
	if len(d.RestartRequired) > 0 {
		w.log.Warn("config: changes need a restart", "sections", d.RestartRequired)
	}
	if w.onReload != nil && d.Changed() {
		w.onReload(d, snap.cfg)
	}
}

type fileSnapshot struct {
	cfg   *Config
	mtime time.Time
	sum   [sha256.Size]byte
}

func readSnapshot(path string) (fileSnapshot, error) {
	info, err := os.Stat(path)
	if err != nil {
		return fileSnapshot{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fileSnapshot{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return fileSnapshot{}, err
	}
	return fileSnapshot{cfg: cfg, mtime: info.ModTime(), sum: sha256.Sum256(data)}, nil
}
