// Package session persists recording sessions and their transcripts in a
// local SQLite database. Transcripts are indexed with FTS5 so past recordings
// can be searched by content.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested session or transcription does not
// exist.
var ErrNotFound = errors.New("session: not found")

// Session lifecycle states.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusError     = "error"
)

// Session is one recording session row.
type Session struct {
	ID         int64
	Title      string
	FilePath   string
	Device     string
	SampleRate int
	Channels   int
	Model      string
	StartTime  time.Time
	EndTime    *time.Time
	Status     string
}

// Transcription is one stored transcript, keyed by the cleaned absolute WAV
// path plus the model size that produced it.
type Transcription struct {
	ID        int64
	Name      string
	ModelSize string
	Text      string
	CreatedAt time.Time
}

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// schema is applied on every open; all statements are idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS audio_sessions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	title       TEXT,
	file_path   TEXT,
	device      TEXT,
	sample_rate INTEGER,
	channels    INTEGER,
	model       TEXT,
	start_time  TEXT NOT NULL,
	end_time    TEXT,
	status      TEXT NOT NULL DEFAULT 'active'
);

CREATE TABLE IF NOT EXISTS audio_transcriptions (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	name          TEXT NOT NULL,
	model_size    TEXT NOT NULL,
	transcription TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	UNIQUE(name, model_size)
);

CREATE VIRTUAL TABLE IF NOT EXISTS audio_transcriptions_fts USING fts5(
	name, transcription,
	content='audio_transcriptions', content_rowid='id'
);

CREATE TRIGGER IF NOT EXISTS audio_transcriptions_ai
AFTER INSERT ON audio_transcriptions BEGIN
	INSERT INTO audio_transcriptions_fts(rowid, name, transcription)
	VALUES (new.id, new.name, new.transcription);
END;

CREATE TRIGGER IF NOT EXISTS audio_transcriptions_ad
AFTER DELETE ON audio_transcriptions BEGIN
	INSERT INTO audio_transcriptions_fts(audio_transcriptions_fts, rowid, name, transcription)
	VALUES ('delete', old.id, old.name, old.transcription);
END;

CREATE TRIGGER IF NOT EXISTS audio_transcriptions_au
AFTER UPDATE ON audio_transcriptions BEGIN
	INSERT INTO audio_transcriptions_fts(audio_transcriptions_fts, rowid, name, transcription)
	VALUES ('delete', old.id, old.name, old.transcription);
	INSERT INTO audio_transcriptions_fts(rowid, name, transcription)
	VALUES (new.id, new.name, new.transcription);
END;
`

// Open opens (creating if needed) the database at path and applies the
// schema and pragmas.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("session: open database %s: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("session: apply %q: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("session: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database is reachable. Used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateSession inserts a new active session row and returns its ID.
func (s *Store) CreateSession(ctx context.Context, sess Session) (int64, error) {
	start := sess.StartTime
	if start.IsZero() {
		start = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO audio_sessions
			(title, file_path, device, sample_rate, channels, model, start_time, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.Title, sess.FilePath, sess.Device, sess.SampleRate, sess.Channels,
		sess.Model, formatTime(start), StatusActive)
	if err != nil {
		return 0, fmt.Errorf("session: create session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("session: session id: %w", err)
	}
	return id, nil
}

// EndSession stamps the end time and final status on a session.
func (s *Store) EndSession(ctx context.Context, id int64, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE audio_sessions SET end_time = ?, status = ? WHERE id = ?`,
		formatTime(time.Now()), status, id)
	if err != nil {
		return fmt.Errorf("session: end session %d: %w", id, err)
	}
	return oneRowAffected(res, id)
}

// SetSessionFile records the session's WAV path once it is known.
func (s *Store) SetSessionFile(ctx context.Context, id int64, path string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE audio_sessions SET file_path = ? WHERE id = ?`, path, id)
	if err != nil {
		return fmt.Errorf("session: set file for session %d: %w", id, err)
	}
	return oneRowAffected(res, id)
}

// GetSession loads one session by ID.
func (s *Store) GetSession(ctx context.Context, id int64) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, file_path, device, sample_rate, channels, model,
		       start_time, end_time, status
		FROM audio_sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("session: get session %d: %w", id, err)
	}
	return sess, nil
}

// ListSessions returns all sessions, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, file_path, device, sample_rate, channels, model,
		       start_time, end_time, status
		FROM audio_sessions ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("session: list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("session: scan session: %w", err)
		}
		out = append(out, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("session: list sessions: %w", err)
	}
	return out, nil
}

// UpsertTranscription stores or replaces the transcript for (name, modelSize).
func (s *Store) UpsertTranscription(ctx context.Context, name, modelSize, text string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audio_transcriptions (name, model_size, transcription, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name, model_size) DO UPDATE SET
			transcription = excluded.transcription,
			created_at = excluded.created_at`,
		name, modelSize, text, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("session: upsert transcription %s/%s: %w", name, modelSize, err)
	}
	return nil
}

// LatestTranscription returns the most recently stored transcript for name,
// across model sizes.
func (s *Store) LatestTranscription(ctx context.Context, name string) (*Transcription, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, model_size, transcription, created_at
		FROM audio_transcriptions
		WHERE name = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, name)
	tr, err := scanTranscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transcription %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("session: latest transcription %s: %w", name, err)
	}
	return tr, nil
}

// SearchTranscriptions runs an FTS5 MATCH query over transcript text and
// names, best matches first.
func (s *Store) SearchTranscriptions(ctx context.Context, query string) ([]Transcription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.name, t.model_size, t.transcription, t.created_at
		FROM audio_transcriptions_fts f
		JOIN audio_transcriptions t ON t.id = f.rowid
		WHERE audio_transcriptions_fts MATCH ?
		ORDER BY rank`, query)
	if err != nil {
		return nil, fmt.Errorf("session: search %q: %w", query, err)
	}
	defer rows.Close()

	var out []Transcription
	for rows.Next() {
		tr, err := scanTranscription(rows)
		if err != nil {
			return nil, fmt.Errorf("session: scan transcription: %w", err)
		}
		out = append(out, *tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("session: search %q: %w", query, err)
	}
	return out, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSession(sc scanner) (*Session, error) {
	var (
		sess           Session
		title, file    sql.NullString
		device, model  sql.NullString
		rate, channels sql.NullInt64
		start          string
		end            sql.NullString
	)
	err := sc.Scan(&sess.ID, &title, &file, &device, &rate, &channels, &model,
		&start, &end, &sess.Status)
	if err != nil {
		return nil, err
	}
	sess.Title = title.String
	sess.FilePath = file.String
	sess.Device = device.String
	sess.SampleRate = int(rate.Int64)
	sess.Channels = int(channels.Int64)
	sess.Model = model.String
	if sess.StartTime, err = parseTime(start); err != nil {
		return nil, err
	}
	if end.Valid {
		t, err := parseTime(end.String)
		if err != nil {
			return nil, err
		}
		sess.EndTime = &t
	}
	return &sess, nil
}

func scanTranscription(sc scanner) (*Transcription, error) {
	var (
		tr      Transcription
		created string
	)
	if err := sc.Scan(&tr.ID, &tr.Name, &tr.ModelSize, &tr.Text, &created); err != nil {
		return nil, err
	}
	var err error
	if tr.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return &tr, nil
}

func oneRowAffected(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("session: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("session %d: %w", id, ErrNotFound)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("session: parse time %q: %w", s, err)
	}
	return t, nil
}
