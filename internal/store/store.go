// Package store provides SQLite storage for captured photos and the capture session journal.
package store

import (
	"database/sql"
	"fmt"
	"log"
	"net/url"
	"time"

	_ "modernc.org/sqlite"
)

// Journal values written for sessions the previous run never finished.
const (
	StatusClosed      = "closed"
	InterruptedReason = "service stopped while the session was open"
)

// pragmas are applied to every pooled connection. Photos are written from
// the capture session while the HTTP API reads, so readers must not block
// the writer.
var pragmas = []string{
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
}

// Store is the SQLite database holding photos and session records.
type Store struct {
	db   *sql.DB
	path string
}

// New opens the database at dbPath, runs migrations and closes journal
// entries left open by a previous run.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	n, err := s.Sessions().closeInterrupted(time.Now())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to recover session journal: %w", err)
	}
	if n > 0 {
		log.Printf("Closed %d capture sessions left open by the previous run", n)
	}

	return s, nil
}

func dsn(path string) string {
	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	return "file:" + path + "?" + q.Encode()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *Store) DB() *sql.DB {
	return s.db
}
