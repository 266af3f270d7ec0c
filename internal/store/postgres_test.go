package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrWong99/podsync/pkg/sentiment"
)

// ---------------------------------------------------------------------------
// Test helpers: mock DB types
// ---------------------------------------------------------------------------

type mockRow struct {
	scanFunc func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error { return r.scanFunc(dest...) }

type mockRows struct {
	data    [][]any
	idx     int
	err     error
	closed  bool
	scanErr error
}

func (r *mockRows) Close()                                       { r.closed = true }
func (r *mockRows) Err() error                                   { return r.err }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }
func (r *mockRows) Values() ([]any, error)                       { return nil, nil }

func (r *mockRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *mockRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	return assign(r.data[r.idx-1], dest)
}

// assign copies row values into scan destinations.
func assign(row []any, dest []any) error {
	if len(dest) != len(row) {
		return fmt.Errorf("scan: expected %d columns, got %d destinations", len(row), len(dest))
	}
	for i, v := range row {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *[]byte:
			*d = v.([]byte)
		case *bool:
			*d = v.(bool)
		case *int:
			*d = v.(int)
		case *time.Time:
			*d = v.(time.Time)
		default:
			return fmt.Errorf("scan: unsupported type at index %d: %T", i, dest[i])
		}
	}
	return nil
}

type mockDB struct {
	queryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	queryFunc    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	execFunc     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if m.queryRowFunc != nil {
		return m.queryRowFunc(ctx, sql, args...)
	}
	return &mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}
}

func (m *mockDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if m.queryFunc != nil {
		return m.queryFunc(ctx, sql, args...)
	}
	return &mockRows{}, nil
}

func (m *mockDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if m.execFunc != nil {
		return m.execFunc(ctx, sql, args...)
	}
	return pgconn.CommandTag{}, nil
}

// ---------------------------------------------------------------------------
// PostgresStore tests
// ---------------------------------------------------------------------------

func TestPostgresStore_Migrate(t *testing.T) {
	t.Parallel()

	var gotSQL string
	db := &mockDB{execFunc: func(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
		gotSQL = sql
		return pgconn.CommandTag{}, nil
	}}
	if err := NewPostgresStore(db).Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if !strings.Contains(gotSQL, "CREATE TABLE IF NOT EXISTS podsync_projects") {
		t.Errorf("Migrate executed %q", gotSQL)
	}

	db.execFunc = func(context.Context, string, ...any) (pgconn.CommandTag, error) {
		return pgconn.CommandTag{}, errors.New("permission denied")
	}
	err := NewPostgresStore(db).Migrate(context.Background())
	if err == nil || !strings.Contains(err.Error(), "store: migrate") {
		t.Errorf("Migrate error = %v", err)
	}
}

func TestPostgresStore_Save(t *testing.T) {
	t.Parallel()

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var args []any
	db := &mockDB{queryRowFunc: func(_ context.Context, sql string, a ...any) pgx.Row {
		if !strings.Contains(sql, "ON CONFLICT (id) DO UPDATE") {
			t.Errorf("Save is not an upsert: %s", sql)
		}
		args = a
		return &mockRow{scanFunc: func(dest ...any) error {
			return assign([]any{created, created}, dest)
		}}
	}}

	p := sampleProject("p1")
	if err := NewPostgresStore(db).Save(context.Background(), p); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !p.CreatedAt.Equal(created) || !p.UpdatedAt.Equal(created) {
		t.Errorf("timestamps = %v / %v", p.CreatedAt, p.UpdatedAt)
	}
	if len(args) != 9 {
		t.Fatalf("got %d args, want 9", len(args))
	}
	if args[0] != "p1" || args[8] != 3 {
		t.Errorf("id/word_count args = %v / %v", args[0], args[8])
	}

	var data sentiment.Data
	if err := json.Unmarshal(args[6].([]byte), &data); err != nil {
		t.Fatalf("sentiment JSON: %v", err)
	}
	if data[0].Sentiment != sentiment.Positive {
		t.Errorf("sentiment arg = %+v", data)
	}
}

func TestPostgresStore_SaveEmptyCollections(t *testing.T) {
	t.Parallel()

	var args []any
	db := &mockDB{queryRowFunc: func(_ context.Context, _ string, a ...any) pgx.Row {
		args = a
		return &mockRow{scanFunc: func(dest ...any) error {
			return assign([]any{time.Time{}, time.Time{}}, dest)
		}}
	}}
	if err := NewPostgresStore(db).Save(context.Background(), &Project{ID: "p", Name: "n"}); err != nil {
		t.Fatal(err)
	}
	want := []string{"[]", "[]", "{}", "[]"}
	for i, w := range want {
		if got := string(args[4+i].([]byte)); got != w {
			t.Errorf("arg %d = %s, want %s", 4+i, got, w)
		}
	}
}

func TestPostgresStore_SaveInvalid(t *testing.T) {
	t.Parallel()
	db := &mockDB{queryRowFunc: func(context.Context, string, ...any) pgx.Row {
		t.Error("invalid project reached the database")
		return &mockRow{scanFunc: func(...any) error { return nil }}
	}}
	if err := NewPostgresStore(db).Save(context.Background(), &Project{}); err == nil {
		t.Error("expected validation error")
	}
}

func TestPostgresStore_Load(t *testing.T) {
	t.Parallel()

	src := sampleProject("p1")
	sentencesJSON, _ := json.Marshal(src.Sentences)
	wordsJSON, _ := json.Marshal(src.Words)
	sentimentJSON, _ := json.Marshal(src.Sentiment)
	speakersJSON, _ := json.Marshal(src.Speakers)
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	db := &mockDB{queryRowFunc: func(_ context.Context, _ string, a ...any) pgx.Row {
		if a[0] != "p1" {
			return &mockRow{scanFunc: func(...any) error { return pgx.ErrNoRows }}
		}
		return &mockRow{scanFunc: func(dest ...any) error {
			return assign([]any{
				"p1", "Episode p1", "episode.mp3", true,
				sentencesJSON, wordsJSON, sentimentJSON, speakersJSON,
				ts, ts,
			}, dest)
		}}
	}}
	s := NewPostgresStore(db)

	got, err := s.Load(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Name != "Episode p1" || !got.DarkTheme || got.AudioRef != "episode.mp3" {
		t.Errorf("scalar fields = %+v", got)
	}
	if len(got.Words) != 3 || got.Words[2].Word != "hi" {
		t.Errorf("words = %+v", got.Words)
	}
	if got.Sentiment[0].Sentiment != sentiment.Positive {
		t.Errorf("sentiment = %+v", got.Sentiment)
	}
	if len(got.Speakers) != 2 || got.Speakers[1].Name != "Bob" {
		t.Errorf("speakers = %+v", got.Speakers)
	}

	missing, err := s.Load(context.Background(), "nope")
	if err != nil || missing != nil {
		t.Errorf("Load(missing) = %v, %v; want nil, nil", missing, err)
	}
}

func TestPostgresStore_LoadCorruptJSON(t *testing.T) {
	t.Parallel()
	db := &mockDB{queryRowFunc: func(context.Context, string, ...any) pgx.Row {
		return &mockRow{scanFunc: func(dest ...any) error {
			return assign([]any{
				"p1", "n", "", false,
				[]byte("[]"), []byte("{not json"), []byte("{}"), []byte("[]"),
				time.Time{}, time.Time{},
			}, dest)
		}}
	}}
	_, err := NewPostgresStore(db).Load(context.Background(), "p1")
	if err == nil || !strings.Contains(err.Error(), "unmarshal words") {
		t.Errorf("Load error = %v", err)
	}
}

func TestPostgresStore_List(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := &mockRows{data: [][]any{
		{"b", "Second", 12, ts.Add(time.Hour)},
		{"a", "First", 4, ts},
	}}
	db := &mockDB{queryFunc: func(context.Context, string, ...any) (pgx.Rows, error) {
		return rows, nil
	}}

	got, err := NewPostgresStore(db).List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 || got[0].ID != "b" || got[0].Words != 12 {
		t.Errorf("List = %+v", got)
	}
	if !rows.closed {
		t.Error("rows not closed")
	}
}

func TestPostgresStore_ListErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		db   *mockDB
		want string
	}{
		{
			name: "query",
			db: &mockDB{queryFunc: func(context.Context, string, ...any) (pgx.Rows, error) {
				return nil, errors.New("down")
			}},
			want: "store: list: down",
		},
		{
			name: "scan",
			db: &mockDB{queryFunc: func(context.Context, string, ...any) (pgx.Rows, error) {
				return &mockRows{data: [][]any{{"a"}}, scanErr: errors.New("bad column")}, nil
			}},
			want: "store: list scan",
		},
		{
			name: "rows",
			db: &mockDB{queryFunc: func(context.Context, string, ...any) (pgx.Rows, error) {
				return &mockRows{err: errors.New("conn reset")}, nil
			}},
			want: "conn reset",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewPostgresStore(tt.db).List(context.Background())
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("List error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestPostgresStore_Delete(t *testing.T) {
	t.Parallel()

	var gotID any
	db := &mockDB{execFunc: func(_ context.Context, _ string, a ...any) (pgconn.CommandTag, error) {
		gotID = a[0]
		return pgconn.CommandTag{}, nil
	}}
	if err := NewPostgresStore(db).Delete(context.Background(), "p1"); err != nil {
		t.Fatal(err)
	}
	if gotID != "p1" {
		t.Errorf("deleted id = %v", gotID)
	}
}
