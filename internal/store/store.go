// Package store implements the node's single embedded persistence layer:
// save/load of whole-value sections (chain, mempool, peers, config), backed by
// modernc.org/sqlite so the node ships without a cgo dependency.
//
// The key/value table and the load-else-insert write pattern generalize a
// single hardcoded "state" row into named sections, with JSON
// (de)serialization of arbitrary values in place of raw []byte blobs.
package store

import (
	"database/sql"
	"encoding/json"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/acem702/Ekehi-Network/internal/errors"
	"github.com/acem702/Ekehi-Network/internal/ulogger"
)

const schema = `
CREATE TABLE IF NOT EXISTS state (
	section    TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Store is the node's single embedded key/value store. Save and Load both
// take mu, so every store access is serialized to enforce a single-writer
// discipline.
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	logger ulogger.Logger
}

// Open creates or opens the sqlite database at path and ensures the state
// table exists.
func Open(path string, logger ulogger.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(errors.KindStoreUnavailable, err, "open store at %q", path)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(errors.KindStoreUnavailable, err, "create schema")
	}

	return &Store{db: db, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save marshals value as JSON and upserts it under section, using a
// select-then-update-or-insert sequence.
func (s *Store) Save(section string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(errors.KindStoreUnavailable, err, "marshal section %q", section)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var exists bool
	if err := s.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM state WHERE section = ?)`, section).Scan(&exists); err != nil {
		return errors.Wrap(errors.KindStoreUnavailable, err, "check section %q", section)
	}

	if exists {
		_, err = s.db.Exec(`UPDATE state SET data = ?, updated_at = CURRENT_TIMESTAMP WHERE section = ?`, data, section)
	} else {
		_, err = s.db.Exec(`INSERT INTO state (section, data) VALUES (?, ?)`, section, data)
	}
	if err != nil {
		return errors.Wrap(errors.KindStoreUnavailable, err, "write section %q", section)
	}

	return nil
}

// Load unmarshals the JSON stored under section into out. It returns
// ok=false, err=nil when the section has never been saved, so callers
// treat a missing key as "empty" rather than as a fault.
func (s *Store) Load(section string, out interface{}) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var data []byte
	err := s.db.QueryRow(`SELECT data FROM state WHERE section = ?`, section).Scan(&data)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(errors.KindStoreUnavailable, err, "read section %q", section)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return false, errors.Wrap(errors.KindStoreUnavailable, err, "unmarshal section %q", section)
	}
	return true, nil
}
