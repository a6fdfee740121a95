package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Capture sessions journal - one row per open/close cycle
		`CREATE TABLE IF NOT EXISTS capture_sessions (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			opened_at DATETIME NOT NULL,
			closed_at DATETIME
		)`,

		// Photos table - stores encoded liveness photos
		`CREATE TABLE IF NOT EXISTS photos (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL DEFAULT '',
			mime_type TEXT NOT NULL,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			data BLOB NOT NULL,
			created_at DATETIME NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_photos_session_id ON photos(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_photos_created_at ON photos(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_capture_sessions_opened_at ON capture_sessions(opened_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
