// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package journal keeps a SQLite record of finished sessions and their
// attempts for post-mortem inspection.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver (pure Go, no CGO)

	"github.com/ManuGH/peersync/internal/failure"
	"github.com/ManuGH/peersync/internal/log"
	"github.com/ManuGH/peersync/internal/session"
)

// ErrNotTerminal is returned when a running session is recorded.
var ErrNotTerminal = errors.New("journal: session has not terminated")

const (
	phaseAttempt      = "attempt"
	phaseConfirmation = "confirmation"

	// Fixed width UTC so that stored timestamps sort lexically.
	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

// Store is the journal database.
type Store struct {
	db *sql.DB
}

// Open creates or opens the journal at path and runs migrations.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}
	// Pragmas in the DSN apply to every pooled connection.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// One writer; sessions finish rarely.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping journal: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL CHECK(kind IN ('wake', 'shutdown')),
		peer TEXT NOT NULL,
		address TEXT NOT NULL,
		state TEXT NOT NULL,
		result TEXT NOT NULL CHECK(result IN ('succeeded', 'failed', 'aborted')),
		reason TEXT NOT NULL DEFAULT '',
		failure TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		progress REAL NOT NULL DEFAULT 0,
		started_at TEXT NOT NULL,
		ended_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS attempts (
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		phase TEXT NOT NULL CHECK(phase IN ('attempt', 'confirmation')),
		seq INTEGER NOT NULL,
		method TEXT NOT NULL,
		outcome TEXT NOT NULL,
		failure TEXT NOT NULL DEFAULT '',
		detail TEXT NOT NULL DEFAULT '',
		started_at TEXT NOT NULL,
		ended_at TEXT,
		PRIMARY KEY (session_id, phase, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_ended ON sessions(ended_at);
	CREATE INDEX IF NOT EXISTS idx_sessions_kind_ended ON sessions(kind, ended_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record stores a terminated session with all attempts. Recording the same
// session twice replaces the first record.
func (s *Store) Record(ctx context.Context, snap session.Snapshot) (err error) {
	if !snap.Terminal() {
		return ErrNotTerminal
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, snap.ID); err != nil {
		return fmt.Errorf("replace session: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
	INSERT INTO sessions (id, kind, peer, address, state, result, reason, failure, message, progress, started_at, ended_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, string(snap.Kind), snap.Peer, snap.Address, string(snap.State), string(snap.Result),
		string(snap.Reason), string(snap.Failure), snap.Message, snap.Progress,
		formatTime(snap.StartedAt), formatTime(snap.EndedAt))
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO attempts (session_id, phase, seq, method, outcome, failure, detail, started_at, ended_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare attempts: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for phase, list := range map[string][]session.Attempt{
		phaseAttempt:      snap.Attempts,
		phaseConfirmation: snap.Confirmations,
	} {
		for _, a := range list {
			var ended sql.NullString
			if !a.EndedAt.IsZero() {
				ended = sql.NullString{String: formatTime(a.EndedAt), Valid: true}
			}
			if _, err = stmt.ExecContext(ctx, snap.ID, phase, a.Seq, a.Method, string(a.Outcome),
				string(a.Failure), a.Detail, formatTime(a.StartedAt), ended); err != nil {
				return fmt.Errorf("insert attempt %s/%d: %w", phase, a.Seq, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Filter narrows History.
type Filter struct {
	Kind  session.Kind // empty for both kinds
	Limit int          // <= 0 means 50
}

// History returns finished sessions, newest first, with their attempts.
func (s *Store) History(ctx context.Context, f Filter) ([]session.Snapshot, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
	SELECT id, kind, peer, address, state, result, reason, failure, message, progress, started_at, ended_at
	FROM sessions
	WHERE (? = '' OR kind = ?)
	ORDER BY ended_at DESC, id
	LIMIT ?`, string(f.Kind), string(f.Kind), limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}

	var out []session.Snapshot
	index := make(map[string]int)
	for rows.Next() {
		var (
			snap                              session.Snapshot
			kind, state, result, reason, fail string
			started, ended                    string
		)
		if err := rows.Scan(&snap.ID, &kind, &snap.Peer, &snap.Address, &state, &result, &reason, &fail,
			&snap.Message, &snap.Progress, &started, &ended); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan session: %w", err)
		}
		snap.Kind = session.Kind(kind)
		snap.State = session.State(state)
		snap.Result = session.Result(result)
		snap.Reason = session.Reason(reason)
		snap.Failure = failure.Kind(fail)
		snap.StartedAt = parseTime(started)
		snap.EndedAt = parseTime(ended)
		snap.Attempts = []session.Attempt{}
		snap.Confirmations = []session.Attempt{}
		index[snap.ID] = len(out)
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for i := range out {
		if err := s.loadAttempts(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) loadAttempts(ctx context.Context, snap *session.Snapshot) error {
	rows, err := s.db.QueryContext(ctx, `
	SELECT phase, seq, method, outcome, failure, detail, started_at, ended_at
	FROM attempts
	WHERE session_id = ?
	ORDER BY phase, seq`, snap.ID)
	if err != nil {
		return fmt.Errorf("query attempts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			a                    session.Attempt
			phase, outcome, fail string
			started              string
			ended                sql.NullString
		)
		if err := rows.Scan(&phase, &a.Seq, &a.Method, &outcome, &fail, &a.Detail, &started, &ended); err != nil {
			return fmt.Errorf("scan attempt: %w", err)
		}
		a.Outcome = session.Outcome(outcome)
		a.Failure = failure.Kind(fail)
		a.StartedAt = parseTime(started)
		if ended.Valid {
			a.EndedAt = parseTime(ended.String)
		}
		if phase == phaseConfirmation {
			snap.Confirmations = append(snap.Confirmations, a)
		} else {
			snap.Attempts = append(snap.Attempts, a)
		}
	}
	return rows.Err()
}

// Prune keeps the newest retain sessions and deletes the rest. It returns
// the number of deleted sessions. retain <= 0 keeps everything.
func (s *Store) Prune(ctx context.Context, retain int) (int64, error) {
	if retain <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, `
	DELETE FROM sessions WHERE id NOT IN (
		SELECT id FROM sessions ORDER BY ended_at DESC, id LIMIT ?
	)`, retain)
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		logger := log.WithComponent("journal")
		logger.Debug().Int64("deleted", n).Msg("pruned journal")
	}
	return n, nil
}

// Ping checks the database for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
