package store

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"
)

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory implementation of [Store]. Saved
// projects are deep enough copies that later edits by the caller do not leak
// into the store.
type MemStore struct {
	now func() time.Time

	mu       sync.RWMutex
	projects map[string]*Project
}

// NewMemStore returns an empty [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{now: time.Now, projects: make(map[string]*Project)}
}

// Save implements [Store.Save].
func (s *MemStore) Save(_ context.Context, p *Project) error {
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	p.UpdatedAt = now
	if old, ok := s.projects[p.ID]; ok {
		p.CreatedAt = old.CreatedAt
	} else {
		p.CreatedAt = now
	}
	s.projects[p.ID] = clone(p)
	return nil
}

// Load implements [Store.Load].
func (s *MemStore) Load(_ context.Context, id string) (*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, nil
	}
	return clone(p), nil
}

// Delete implements [Store.Delete].
func (s *MemStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.projects, id)
	return nil
}

// List implements [Store.List].
func (s *MemStore) List(_ context.Context) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Summary, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, Summary{ID: p.ID, Name: p.Name, Words: len(p.Words), UpdatedAt: p.UpdatedAt})
	}
	slices.SortFunc(out, func(a, b Summary) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func clone(p *Project) *Project {
	c := *p
	c.Sentences = slices.Clone(p.Sentences)
	c.Words = slices.Clone(p.Words)
	c.Sentiment = maps.Clone(p.Sentiment)
	c.Speakers = slices.Clone(p.Speakers)
	return &c
}
