// internal/store/store.go
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNoDraft is returned when no draft exists for a problem/language pair.
var ErrNoDraft = errors.New("store: no draft")

// Store persists code drafts and finished-match results in a local
// sqlite database, so work survives restarts and dropped connections.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS drafts (
	problem_id TEXT NOT NULL,
	language   TEXT NOT NULL,
	code       TEXT NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (problem_id, language)
);
CREATE TABLE IF NOT EXISTS matches (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id     TEXT NOT NULL,
	mode           TEXT NOT NULL,
	outcome        TEXT NOT NULL,
	reason         TEXT NOT NULL,
	opponent       TEXT NOT NULL,
	self_score     INTEGER NOT NULL,
	opponent_score INTEGER NOT NULL,
	duration_ms    INTEGER NOT NULL,
	played_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_matches_played_at ON matches (played_at DESC);
`

// Open opens (creating if needed) the database at dir/codeduel.db and
// applies the schema.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := sql.Open("sqlite", filepath.Join(dir, "codeduel.db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveDraft upserts the working code for a problem/language pair.
func (s *Store) SaveDraft(ctx context.Context, problemID, language, code string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO drafts (problem_id, language, code, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (problem_id, language) DO UPDATE SET
			code = excluded.code,
			updated_at = excluded.updated_at`,
		problemID, language, code, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

// LoadDraft returns the stored code for a problem/language pair, or
// ErrNoDraft when nothing has been saved.
func (s *Store) LoadDraft(ctx context.Context, problemID, language string) (string, error) {
	var code string
	err := s.db.QueryRowContext(ctx,
		`SELECT code FROM drafts WHERE problem_id = ? AND language = ?`,
		problemID, language).Scan(&code)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoDraft
	}
	if err != nil {
		return "", fmt.Errorf("load draft: %w", err)
	}
	return code, nil
}

// DeleteDraft removes a draft once it is no longer needed.
func (s *Store) DeleteDraft(ctx context.Context, problemID, language string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM drafts WHERE problem_id = ? AND language = ?`, problemID, language)
	if err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	return nil
}

// Result is one archived finished match.
type Result struct {
	SessionID     string
	Mode          string
	Outcome       string
	Reason        string
	Opponent      string
	SelfScore     int
	OpponentScore int
	DurationMs    int64
	PlayedAt      time.Time
}

// RecordResult archives a finished match.
func (s *Store) RecordResult(ctx context.Context, r Result) error {
	playedAt := r.PlayedAt
	if playedAt.IsZero() {
		playedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO matches (session_id, mode, outcome, reason, opponent, self_score, opponent_score, duration_ms, played_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SessionID, r.Mode, r.Outcome, r.Reason, r.Opponent,
		r.SelfScore, r.OpponentScore, r.DurationMs, playedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("record result: %w", err)
	}
	return nil
}

// RecentResults returns up to limit archived matches, newest first.
func (s *Store) RecentResults(ctx context.Context, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, mode, outcome, reason, opponent, self_score, opponent_score, duration_ms, played_at
		FROM matches ORDER BY played_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var playedAt int64
		if err := rows.Scan(&r.SessionID, &r.Mode, &r.Outcome, &r.Reason, &r.Opponent,
			&r.SelfScore, &r.OpponentScore, &r.DurationMs, &playedAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.PlayedAt = time.UnixMilli(playedAt)
		results = append(results, r)
	}
	return results, rows.Err()
}
