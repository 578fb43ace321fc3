// CLAUDE:SUMMARY SQLite database handle for tabkeeper — opens DB with WAL pragmas and applies schema.
// Package store provides the SQLite persistence layer for tabkeeper:
// named sessions replayed at startup, the snapshot audit log, and the
// rate-limit rules consumed by the shield middleware.
package store

import (
	"database/sql"

	"github.com/hazyhaar/tabkeeper/internal/dbopen"
)

// Store is the tabkeeper database handle.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the tabkeeper SQLite database at path,
// applies pragmas and the tabkeeper schema.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	allOpts := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, opts...)

	db, err := dbopen.Open(path, allOpts...)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}
