// Package store persists sessions, their tick records and trigger events in
// a local SQLite database so finished sessions can be reported on later.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/teslashibe/go-emotisense/pkg/emotion"
	"github.com/teslashibe/go-emotisense/pkg/fusion"
	"github.com/teslashibe/go-emotisense/pkg/session"
	"github.com/teslashibe/go-emotisense/pkg/trigger"
)

// ErrNotFound is returned when a requested session does not exist.
var ErrNotFound = errors.New("store: session not found")

// Session is one persisted session header.
type Session struct {
	ID        string    `json:"id"`
	Mode      string    `json:"mode"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"` // zero while running
}

// Store wraps the SQLite handle.
type Store struct {
	*sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	mode       TEXT NOT NULL,
	started_at INTEGER NOT NULL,
	ended_at   INTEGER
);

CREATE TABLE IF NOT EXISTS records (
	seq            INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id     TEXT NOT NULL REFERENCES sessions(id),
	ts             INTEGER NOT NULL,
	angry          REAL NOT NULL,
	disgust        REAL NOT NULL,
	fear           REAL NOT NULL,
	happy          REAL NOT NULL,
	sad            REAL NOT NULL,
	surprise       REAL NOT NULL,
	neutral        REAL NOT NULL,
	audio_stress   REAL NOT NULL,
	stress         REAL NOT NULL,
	engagement     REAL NOT NULL,
	confusion      REAL NOT NULL,
	confidence     REAL NOT NULL,
	valence        REAL NOT NULL,
	dominant_state TEXT NOT NULL,
	source         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_records_session ON records(session_id, seq);

CREATE TABLE IF NOT EXISTS triggers (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	ts         INTEGER NOT NULL,
	type       TEXT NOT NULL,
	score      REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_triggers_session ON triggers(session_id, seq);
`

// Open opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for a throwaway database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// ":memory:" databases are per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &Store{db}, nil
}

// StartSession inserts a new session header.
func (s *Store) StartSession(ctx context.Context, id, mode string, startedAt time.Time) error {
	_, err := s.ExecContext(ctx,
		`INSERT INTO sessions (id, mode, started_at) VALUES (?, ?, ?)`,
		id, mode, startedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("store: start session %s: %w", id, err)
	}
	return nil
}

// EndSession stamps the end time of a session.
func (s *Store) EndSession(ctx context.Context, id string, endedAt time.Time) error {
	res, err := s.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ? WHERE id = ?`, endedAt.UnixNano(), id)
	if err != nil {
		return fmt.Errorf("store: end session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendRecord stores one tick of a session.
func (s *Store) AppendRecord(ctx context.Context, sessionID string, r session.Record) error {
	f := r.Face
	_, err := s.ExecContext(ctx, `
		INSERT INTO records (
			session_id, ts,
			angry, disgust, fear, happy, sad, surprise, neutral,
			audio_stress, stress, engagement, confusion, confidence, valence,
			dominant_state, source
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, r.Timestamp.UnixNano(),
		f[emotion.Angry], f[emotion.Disgust], f[emotion.Fear], f[emotion.Happy],
		f[emotion.Sad], f[emotion.Surprise], f[emotion.Neutral],
		r.AudioStress, r.State.Stress, r.State.Engagement, r.State.Confusion,
		r.State.Confidence, r.State.Valence,
		string(r.State.Dominant), string(r.Source))
	if err != nil {
		return fmt.Errorf("store: append record: %w", err)
	}
	return nil
}

// AppendTrigger stores one trigger event of a session.
func (s *Store) AppendTrigger(ctx context.Context, sessionID string, e trigger.Event) error {
	_, err := s.ExecContext(ctx,
		`INSERT INTO triggers (session_id, ts, type, score) VALUES (?, ?, ?, ?)`,
		sessionID, e.Timestamp.UnixNano(), string(e.Type), e.Score)
	if err != nil {
		return fmt.Errorf("store: append trigger: %w", err)
	}
	return nil
}

// GetSession returns the header of one session.
func (s *Store) GetSession(ctx context.Context, id string) (Session, error) {
	row := s.QueryRowContext(ctx,
		`SELECT id, mode, started_at, ended_at FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

// LatestSession returns the most recently started session.
func (s *Store) LatestSession(ctx context.Context) (Session, error) {
	row := s.QueryRowContext(ctx,
		`SELECT id, mode, started_at, ended_at FROM sessions ORDER BY started_at DESC LIMIT 1`)
	return scanSession(row)
}

// ListSessions returns up to limit sessions, newest first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	rows, err := s.QueryContext(ctx,
		`SELECT id, mode, started_at, ended_at FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// LoadRecords returns every record of a session in insertion order.
func (s *Store) LoadRecords(ctx context.Context, sessionID string) ([]session.Record, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT ts,
			angry, disgust, fear, happy, sad, surprise, neutral,
			audio_stress, stress, engagement, confusion, confidence, valence,
			dominant_state, source
		FROM records WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: load records: %w", err)
	}
	defer rows.Close()

	var out []session.Record
	for rows.Next() {
		var (
			r        session.Record
			ts       int64
			dominant string
			source   string
		)
		f := &r.Face
		if err := rows.Scan(&ts,
			&f[emotion.Angry], &f[emotion.Disgust], &f[emotion.Fear], &f[emotion.Happy],
			&f[emotion.Sad], &f[emotion.Surprise], &f[emotion.Neutral],
			&r.AudioStress, &r.State.Stress, &r.State.Engagement, &r.State.Confusion,
			&r.State.Confidence, &r.State.Valence,
			&dominant, &source); err != nil {
			return nil, fmt.Errorf("store: scan record: %w", err)
		}
		r.Timestamp = time.Unix(0, ts).UTC()
		r.State.Dominant = fusion.DominantState(dominant)
		r.Source = session.Source(source)
		out = append(out, r)
	}
	return out, rows.Err()
}

// LoadTriggers returns every trigger event of a session in emission order.
func (s *Store) LoadTriggers(ctx context.Context, sessionID string) ([]trigger.Event, error) {
	rows, err := s.QueryContext(ctx,
		`SELECT ts, type, score FROM triggers WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: load triggers: %w", err)
	}
	defer rows.Close()

	var out []trigger.Event
	for rows.Next() {
		var (
			e   trigger.Event
			ts  int64
			typ string
		)
		if err := rows.Scan(&ts, &typ, &e.Score); err != nil {
			return nil, fmt.Errorf("store: scan trigger: %w", err)
		}
		e.Timestamp = time.Unix(0, ts).UTC()
		e.Type = trigger.Type(typ)
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(sc scanner) (Session, error) {
	var (
		sess    Session
		started int64
		ended   sql.NullInt64
	)
	if err := sc.Scan(&sess.ID, &sess.Mode, &started, &ended); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, fmt.Errorf("store: scan session: %w", err)
	}
	sess.StartedAt = time.Unix(0, started).UTC()
	if ended.Valid {
		sess.EndedAt = time.Unix(0, ended.Int64).UTC()
	}
	return sess, nil
}
