package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/podsync/internal/store"
)

// defaultAutosaveInterval is the default period between autosave ticks.
const defaultAutosaveInterval = 2 * time.Minute

// Project converts the current snapshot into a storable project.
func (s *Session) Project(id, name string) *store.Project {
	return projectFrom(s.snap.Load(), id, name)
}

func projectFrom(snap *Snapshot, id, name string) *store.Project {
	return &store.Project{
		ID:        id,
		Name:      name,
		AudioRef:  snap.AudioRef,
		DarkTheme: snap.DarkTheme,
		Sentences: snap.Sentences,
		Words:     snap.Words,
		Sentiment: snap.Sentiment,
		Speakers:  snap.Speakers,
	}
}

// RestoreProject replaces the session content with a saved project.
func (s *Session) RestoreProject(p *store.Project) *Snapshot {
	return s.Restore(Snapshot{
		Sentences: p.Sentences,
		Words:     p.Words,
		Sentiment: p.Sentiment,
		Speakers:  p.Speakers,
		AudioRef:  p.AudioRef,
		DarkTheme: p.DarkTheme,
	})
}

// Autosaver periodically writes a session to a project store. Ticks where
// the session has not changed since the last save are skipped.
//
// All methods are safe for concurrent use.
type Autosaver struct {
	store     store.Store
	session   *Session
	projectID string
	name      string
	interval  time.Duration

	mu sync.Mutex
	// lastVersion is the snapshot version written by the last save.
	lastVersion uint64
	saved       bool
	done        chan struct{}
	stopOnce    sync.Once
}

// AutosaverConfig configures an [Autosaver].
type AutosaverConfig struct {
	Store     store.Store
	Session   *Session
	ProjectID string
	Name      string

	// Interval is how often to save. Defaults to 2 minutes if zero.
	Interval time.Duration
}

// NewAutosaver creates an [Autosaver] with the given configuration.
func NewAutosaver(cfg AutosaverConfig) *Autosaver {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultAutosaveInterval
	}
	return &Autosaver{
		store:     cfg.Store,
		session:   cfg.Session,
		projectID: cfg.ProjectID,
		name:      cfg.Name,
		interval:  interval,
		done:      make(chan struct{}),
	}
}

// Start begins periodic saving in a background goroutine that runs until
// [Autosaver.Stop] is called or ctx is cancelled.
func (a *Autosaver) Start(ctx context.Context) {
	go a.loop(ctx)
}

// Stop halts the save loop. Safe to call multiple times.
func (a *Autosaver) Stop() {
	a.stopOnce.Do(func() {
		close(a.done)
	})
}

// SaveNow writes the session immediately if it changed since the last save.
func (a *Autosaver) SaveNow(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.save(ctx)
}

func (a *Autosaver) loop(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.done:
			return
		case <-ticker.C:
			if err := a.SaveNow(ctx); err != nil {
				slog.Warn("autosave failed",
					"session_id", a.session.ID(),
					"project_id", a.projectID,
					"err", err,
				)
			}
		}
	}
}

// save must be called with a.mu held.
func (a *Autosaver) save(ctx context.Context) error {
	snap := a.session.Snapshot()
	version := snap.Version
	if a.saved && version == a.lastVersion {
		return nil
	}
	if err := a.store.Save(ctx, projectFrom(snap, a.projectID, a.name)); err != nil {
		return fmt.Errorf("session: autosave %q: %w", a.projectID, err)
	}
	a.lastVersion = version
	a.saved = true
	slog.Debug("session autosaved", "session_id", a.session.ID(), "project_id", a.projectID, "version", version)
	return nil
}
