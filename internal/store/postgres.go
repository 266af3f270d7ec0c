package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrWong99/podsync/pkg/sentiment"
	"github.com/MrWong99/podsync/pkg/transcript"
	"github.com/MrWong99/podsync/pkg/words"
)

// Schema is the SQL DDL for the projects table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS podsync_projects (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    audio_ref   TEXT NOT NULL DEFAULT '',
    dark_theme  BOOLEAN NOT NULL DEFAULT false,
    sentences   JSONB NOT NULL DEFAULT '[]',
    words       JSONB NOT NULL DEFAULT '[]',
    sentiment   JSONB NOT NULL DEFAULT '{}',
    speakers    JSONB NOT NULL DEFAULT '[]',
    word_count  INTEGER NOT NULL DEFAULT 0,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_podsync_projects_updated ON podsync_projects(updated_at DESC);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL database.
type PostgresStore struct {
	db DB
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a [PostgresStore] on db. Call
// [PostgresStore.Migrate] before issuing queries against a fresh database.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Save implements [Store.Save] as an upsert.
func (s *PostgresStore) Save(ctx context.Context, p *Project) error {
	if err := p.Validate(); err != nil {
		return err
	}

	sentencesJSON, err := json.Marshal(emptySlice(p.Sentences))
	if err != nil {
		return fmt.Errorf("store: marshal sentences: %w", err)
	}
	wordsJSON, err := json.Marshal(emptySlice(p.Words))
	if err != nil {
		return fmt.Errorf("store: marshal words: %w", err)
	}
	sentimentJSON, err := json.Marshal(emptyData(p.Sentiment))
	if err != nil {
		return fmt.Errorf("store: marshal sentiment: %w", err)
	}
	speakersJSON, err := json.Marshal(emptySlice(p.Speakers))
	if err != nil {
		return fmt.Errorf("store: marshal speakers: %w", err)
	}

	const query = `
		INSERT INTO podsync_projects (
			id, name, audio_ref, dark_theme,
			sentences, words, sentiment, speakers, word_count
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			audio_ref = EXCLUDED.audio_ref,
			dark_theme = EXCLUDED.dark_theme,
			sentences = EXCLUDED.sentences,
			words = EXCLUDED.words,
			sentiment = EXCLUDED.sentiment,
			speakers = EXCLUDED.speakers,
			word_count = EXCLUDED.word_count,
			updated_at = now()
		RETURNING created_at, updated_at`

	err = s.db.QueryRow(ctx, query,
		p.ID, p.Name, p.AudioRef, p.DarkTheme,
		sentencesJSON, wordsJSON, sentimentJSON, speakersJSON, len(p.Words),
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: save %q: %w", p.ID, err)
	}
	return nil
}

// Load implements [Store.Load].
func (s *PostgresStore) Load(ctx context.Context, id string) (*Project, error) {
	const query = `
		SELECT id, name, audio_ref, dark_theme,
		       sentences, words, sentiment, speakers,
		       created_at, updated_at
		FROM podsync_projects
		WHERE id = $1`

	var p Project
	var sentencesJSON, wordsJSON, sentimentJSON, speakersJSON []byte
	err := s.db.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Name, &p.AudioRef, &p.DarkTheme,
		&sentencesJSON, &wordsJSON, &sentimentJSON, &speakersJSON,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: load %q: %w", id, err)
	}
	if err := unmarshalFields(&p, sentencesJSON, wordsJSON, sentimentJSON, speakersJSON); err != nil {
		return nil, err
	}
	return &p, nil
}

// Delete implements [Store.Delete].
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM podsync_projects WHERE id = $1`
	if _, err := s.db.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("store: delete %q: %w", id, err)
	}
	return nil
}

// List implements [Store.List].
func (s *PostgresStore) List(ctx context.Context) ([]Summary, error) {
	const query = `
		SELECT id, name, word_count, updated_at
		FROM podsync_projects
		ORDER BY updated_at DESC, id`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.ID, &sum.Name, &sum.Words, &sum.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: list scan: %w", err)
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	return out, nil
}

// unmarshalFields deserialises the JSONB columns into p.
func unmarshalFields(p *Project, sentencesJSON, wordsJSON, sentimentJSON, speakersJSON []byte) error {
	if err := json.Unmarshal(sentencesJSON, &p.Sentences); err != nil {
		return fmt.Errorf("store: unmarshal sentences: %w", err)
	}
	if err := json.Unmarshal(wordsJSON, &p.Words); err != nil {
		return fmt.Errorf("store: unmarshal words: %w", err)
	}
	if err := json.Unmarshal(sentimentJSON, &p.Sentiment); err != nil {
		return fmt.Errorf("store: unmarshal sentiment: %w", err)
	}
	if err := json.Unmarshal(speakersJSON, &p.Speakers); err != nil {
		return fmt.Errorf("store: unmarshal speakers: %w", err)
	}
	return nil
}

// emptySlice returns s if non-nil, otherwise an empty non-nil slice so that
// JSON marshalling produces "[]" instead of "null".
func emptySlice[T transcript.Sentence | words.Word | transcript.Speaker](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func emptyData(d sentiment.Data) sentiment.Data {
	if d == nil {
		return sentiment.Data{}
	}
	return d
}
