// Package storage persists recording share links between runs so a run
// interrupted mid-resolution can pick up where it left off.
package storage

import (
	"fmt"
	"os"
	"path/filepath"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
)

// DB manages the Badger database connection
type DB struct {
	store  *badgerhold.Store
	logger arbor.ILogger
}

// Open opens the Badger database at path, creating it if needed
func Open(path string, logger arbor.ILogger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	logger.Debug().Str("path", path).Msg("Opening Badger database connection")

	options := badgerhold.DefaultOptions
	options.Options = badger.DefaultOptions(path)
	options.Logger = nil // Disable default badger logger to use arbor

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	return &DB{store: store, logger: logger}, nil
}

// Store returns the underlying badgerhold store
func (db *DB) Store() *badgerhold.Store {
	return db.store
}

// Close closes the database connection
func (db *DB) Close() error {
	if db.store != nil {
		return db.store.Close()
	}
	return nil
}
