// Package store persists annotated podsync projects so an editing session
// can be resumed later.
//
// A [Project] bundles everything a session derives from and adds to a
// transcript: the parsed sentences, the word sequence with its per-word
// styling, sentiment labels, speaker profiles and the media reference. Two
// implementations of [Store] exist: [MemStore] for single-process use and
// tests, and [PostgresStore] which keeps one row per project with JSONB
// columns for the structured parts.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/podsync/pkg/sentiment"
	"github.com/MrWong99/podsync/pkg/transcript"
	"github.com/MrWong99/podsync/pkg/words"
)

// Project is a saved session.
type Project struct {
	ID        string                `json:"id"`
	Name      string                `json:"name"`
	AudioRef  string                `json:"audio_ref,omitempty"`
	DarkTheme bool                  `json:"dark_theme"`
	Sentences []transcript.Sentence `json:"sentences"`
	Words     []words.Word          `json:"words"`
	Sentiment sentiment.Data        `json:"sentiment"`
	Speakers  []transcript.Speaker  `json:"speakers"`
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// Summary is the listing view of a [Project].
type Summary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Words     int       `json:"words"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks that the project can be persisted. All problems are
// reported together.
func (p *Project) Validate() error {
	var errs []error
	if strings.TrimSpace(p.ID) == "" {
		errs = append(errs, errors.New("id must not be empty"))
	}
	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, errors.New("name must not be empty"))
	}
	for k := range p.Sentiment {
		if k < 0 {
			errs = append(errs, fmt.Errorf("sentiment key %d must not be negative", k))
			break
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("store: invalid project: %w", err)
	}
	return nil
}

// Store provides persistence for projects. Implementations must be safe for
// concurrent use.
type Store interface {
	// Save creates or replaces a project. CreatedAt and UpdatedAt are set by
	// the store.
	Save(ctx context.Context, p *Project) error

	// Load returns the project with the given id, or (nil, nil) when it does
	// not exist.
	Load(ctx context.Context, id string) (*Project, error)

	// Delete removes a project. Deleting a missing project is not an error.
	Delete(ctx context.Context, id string) error

	// List returns all projects ordered by most recent update.
	List(ctx context.Context) ([]Summary, error)
}
