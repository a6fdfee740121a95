package store

import (
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// Photo is a captured liveness photo. Data is only loaded by GetByID and Latest.
type Photo struct {
	ID        string
	SessionID string
	MIMEType  string
	Width     int
	Height    int
	Size      int64
	Data      []byte
	CreatedAt time.Time
}

// PhotoRepository provides storage operations for photos.
type PhotoRepository struct {
	db *sql.DB
}

// Photos returns the photo repository for this store.
func (s *Store) Photos() *PhotoRepository {
	return &PhotoRepository{db: s.db}
}

// Create inserts a new photo. CreatedAt is set when zero.
func (r *PhotoRepository) Create(p *Photo) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	p.Size = int64(len(p.Data))

	_, err := r.db.Exec(
		`INSERT INTO photos (id, session_id, mime_type, width, height, data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.SessionID, p.MIMEType, p.Width, p.Height, p.Data, p.CreatedAt,
	)
	return err
}

// GetByID retrieves a photo with its data.
func (r *PhotoRepository) GetByID(id string) (*Photo, error) {
	return r.scanOne(
		`SELECT id, session_id, mime_type, width, height, length(data), data, created_at
		 FROM photos WHERE id = ?`,
		id,
	)
}

// Latest retrieves the most recent photo with its data.
func (r *PhotoRepository) Latest() (*Photo, error) {
	return r.scanOne(
		`SELECT id, session_id, mime_type, width, height, length(data), data, created_at
		 FROM photos ORDER BY created_at DESC LIMIT 1`,
	)
}

func (r *PhotoRepository) scanOne(query string, args ...any) (*Photo, error) {
	p := &Photo{}
	err := r.db.QueryRow(query, args...).Scan(
		&p.ID, &p.SessionID, &p.MIMEType, &p.Width, &p.Height, &p.Size, &p.Data, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// List retrieves photo metadata, newest first.
func (r *PhotoRepository) List() ([]*Photo, error) {
	rows, err := r.db.Query(
		`SELECT id, session_id, mime_type, width, height, length(data), created_at
		 FROM photos ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var photos []*Photo
	for rows.Next() {
		p := &Photo{}
		if err := rows.Scan(&p.ID, &p.SessionID, &p.MIMEType, &p.Width, &p.Height, &p.Size, &p.CreatedAt); err != nil {
			return nil, err
		}
		photos = append(photos, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return photos, nil
}

// Delete removes a photo by its ID.
func (r *PhotoRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM photos WHERE id = ?`, id)
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
