package session

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/MrWong99/podsync/internal/observe"
)

// ErrNotFound is returned when a session id is unknown.
var ErrNotFound = errors.New("session: not found")

// Manager creates and tracks live sessions. All methods are safe for
// concurrent use.
type Manager struct {
	opts    []Option
	metrics *observe.Metrics

	// defaults are applied after opts; replaced by SetDefaults.
	defaults []Option

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewManager returns a manager that builds every session with opts. m may be
// nil.
func NewManager(m *observe.Metrics, opts ...Option) *Manager {
	if m != nil {
		opts = append(slices.Clone(opts), WithMetrics(m))
	}
	return &Manager{
		opts:     opts,
		metrics:  m,
		sessions: make(map[string]*Session),
	}
}

// Create starts a new session with a random id. extra options are applied
// after the manager's defaults.
func (m *Manager) Create(extra ...Option) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	opts := slices.Concat(m.opts, m.defaults, extra)
	s := New(uuid.NewString(), opts...)
	// Sessions outlive the request that created them; Delete or Close ends them.
	s.Start(context.Background())
	m.sessions[s.ID()] = s
	if m.metrics != nil {
		m.metrics.ActiveSessions.Add(context.Background(), 1)
	}
	slog.Info("session created", "session_id", s.ID())
	return s, nil
}

// SetDefaults replaces the options applied to sessions created from now on.
// Live sessions keep their settings.
func (m *Manager) SetDefaults(opts ...Option) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaults = slices.Clone(opts)
}

// Get returns the session with the given id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// List returns the ids of all live sessions in sorted order.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Delete closes and forgets the session with the given id.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	s.Close()
	if m.metrics != nil {
		m.metrics.ActiveSessions.Add(context.Background(), -1)
	}
	slog.Info("session deleted", "session_id", id)
	return nil
}

// Close closes every session. Create fails afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.closed = true
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
		if m.metrics != nil {
			m.metrics.ActiveSessions.Add(context.Background(), -1)
		}
	}
	if len(sessions) > 0 {
		slog.Info("sessions closed", "count", len(sessions))
	}
}
