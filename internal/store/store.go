// Package store persists conventions, processing results and running totals
// in a Badger database. *Store implements conventions.Persister and
// processor.Recorder.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

// DefaultMaxResults is how many results a store keeps unless told otherwise.
const DefaultMaxResults = 10000

var errClosed = errors.New("database is closed")

// Store is the Badger backed persistence layer.
type Store struct {
	db  *badger.DB
	log *slog.Logger

	// maxResults bounds the results log; 0 keeps everything.
	maxResults int
}

// Option configures a Store.
type Option func(*Store)

// WithMaxResults keeps at most n results, dropping the oldest on append.
func WithMaxResults(n int) Option {
	return func(s *Store) { s.maxResults = n }
}

// New opens the database in dir, creating it when missing. Writes are
// synced so totals survive a crash.
func New(dir string, log *slog.Logger, opts ...Option) (*Store, error) {
	bo := badger.DefaultOptions(dir).
		WithLogger(nil).
		WithSyncWrites(true).
		WithCompactL0OnClose(true)
	return open(bo, log, opts)
}

// NewInMemory opens a database that lives only as long as the Store.
func NewInMemory(log *slog.Logger, opts ...Option) (*Store, error) {
	return open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil), log, opts)
}

func open(bo badger.Options, log *slog.Logger, opts []Option) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}

	db, err := badger.Open(bo)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", bo.Dir, err)
	}

	s := &Store{db: db, log: log, maxResults: DefaultMaxResults}
	for _, opt := range opts {
		opt(s)
	}

	if bo.InMemory {
		log.Debug("store opened in memory")
	} else {
		log.Info("store opened", "dir", bo.Dir)
	}
	return s, nil
}

// Close flushes and closes the database. Closing twice is a no-op.
func (s *Store) Close() error {
	if s.db.IsClosed() {
		return nil
	}
	s.log.Debug("closing store")
	return s.db.Close()
}

// Ping reports whether the database can serve a read.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return errClosed
	}
	return s.db.View(func(*badger.Txn) error { return nil })
}

// readJSON decodes the value under key into dest. A missing key yields
// badger.ErrKeyNotFound.
func (s *Store) readJSON(key []byte, dest any) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error { return json.Unmarshal(v, dest) })
	})
}

func (s *Store) writeJSON(key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.db.Update(func(txn *badger.Txn) error { return txn.Set(key, data) })
}

// countPrefix counts the keys under prefix without loading values.
func (s *Store) countPrefix(prefix []byte) (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}
