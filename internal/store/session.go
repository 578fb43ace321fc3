// CLAUDE:SUMMARY CRUD operations for the sessions table — upsert, get, list, delete named page sessions.
package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Session is the persisted record of a named page.
type Session struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// SaveSession inserts or updates a session. On update only url and
// updated_at change; created_at is kept from the first insert.
func (s *Store) SaveSession(ctx context.Context, sess *Session) error {
	now := time.Now().UnixMilli()
	if sess.CreatedAt == 0 {
		sess.CreatedAt = now
	}
	sess.UpdatedAt = now

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO sessions (name, url, created_at, updated_at)
		VALUES (?,?,?,?)
		ON CONFLICT(name) DO UPDATE SET
			url        = excluded.url,
			updated_at = excluded.updated_at`,
		sess.Name, sess.URL, sess.CreatedAt, sess.UpdatedAt,
	)
	return err
}

// GetSession retrieves a session by name. Returns (nil, nil) when absent.
func (s *Store) GetSession(ctx context.Context, name string) (*Session, error) {
	sess := &Session{}
	err := s.DB.QueryRowContext(ctx, `
		SELECT name, url, created_at, updated_at
		FROM sessions WHERE name = ?`, name).Scan(
		&sess.Name, &sess.URL, &sess.CreatedAt, &sess.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// ListSessions returns all sessions ordered by name.
func (s *Store) ListSessions(ctx context.Context) ([]*Session, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT name, url, created_at, updated_at
		FROM sessions ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess := &Session{}
		if err := rows.Scan(&sess.Name, &sess.URL, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// DeleteSession removes a session by name. The snapshot log is kept.
func (s *Store) DeleteSession(ctx context.Context, name string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM sessions WHERE name = ?`, name)
	return err
}
