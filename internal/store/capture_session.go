package store

import (
	"database/sql"
	"errors"
	"time"
)

// SessionRecord is the journal entry of one capture session.
type SessionRecord struct {
	ID       string
	Status   string
	Error    string
	OpenedAt time.Time
	ClosedAt *time.Time
}

// SessionRepository journals capture sessions.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session journal for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// Open records a newly opened session.
func (r *SessionRepository) Open(id, status string) (*SessionRecord, error) {
	rec := &SessionRecord{
		ID:       id,
		Status:   status,
		OpenedAt: time.Now(),
	}
	_, err := r.db.Exec(
		`INSERT INTO capture_sessions (id, status, opened_at) VALUES (?, ?, ?)`,
		rec.ID, rec.Status, rec.OpenedAt,
	)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Update sets the status and error of an open session.
func (r *SessionRepository) Update(id, status, errMsg string) error {
	return r.exec(
		`UPDATE capture_sessions SET status = ?, error = ? WHERE id = ?`,
		status, errMsg, id,
	)
}

// Finish records the final status and the close time.
func (r *SessionRepository) Finish(id, status, errMsg string) error {
	return r.exec(
		`UPDATE capture_sessions SET status = ?, error = ?, closed_at = ? WHERE id = ?`,
		status, errMsg, time.Now(), id,
	)
}

// closeInterrupted finishes every entry that was never closed, as happens
// when the process exits with a session open. Final outcomes are kept.
func (r *SessionRepository) closeInterrupted(now time.Time) (int64, error) {
	result, err := r.db.Exec(
		`UPDATE capture_sessions SET
			status = CASE WHEN status IN ('captured', 'failed') THEN status ELSE ? END,
			error = CASE WHEN error = '' THEN ? ELSE error END,
			closed_at = ?
		WHERE closed_at IS NULL`,
		StatusClosed, InterruptedReason, now,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *SessionRepository) exec(query string, args ...any) error {
	result, err := r.db.Exec(query, args...)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// GetByID retrieves a journal entry.
func (r *SessionRepository) GetByID(id string) (*SessionRecord, error) {
	rec, err := scanSession(r.db.QueryRow(
		`SELECT id, status, error, opened_at, closed_at FROM capture_sessions WHERE id = ?`,
		id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// List retrieves the most recent journal entries, newest first.
func (r *SessionRepository) List(limit int) ([]*SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(
		`SELECT id, status, error, opened_at, closed_at
		 FROM capture_sessions ORDER BY opened_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*SessionRecord, error) {
	rec := &SessionRecord{}
	var closedAt sql.NullTime
	if err := row.Scan(&rec.ID, &rec.Status, &rec.Error, &rec.OpenedAt, &closedAt); err != nil {
		return nil, err
	}
	if closedAt.Valid {
		t := closedAt.Time
		rec.ClosedAt = &t
	}
	return rec, nil
}
