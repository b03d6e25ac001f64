package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/foldkeeper/foldkeeper/internal/domain"
	domainerrors "github.com/foldkeeper/foldkeeper/internal/errors"
)

// AppendResults writes results to the log in one batch and prunes the oldest
// entries beyond the retention limit.
func (s *Store) AppendResults(ctx context.Context, results []domain.ProcessingResult) error {
	if len(results) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	w := s.newResultWriter()
	for _, r := range results {
		if err := w.Add(r); err != nil {
			w.Cancel()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if s.maxResults > 0 {
		if _, err := s.PruneResults(ctx, s.maxResults); err != nil {
			s.log.Warn("failed to prune results log", "error", err)
		}
	}
	return nil
}

// GetResult returns a single result by ID.
func (s *Store) GetResult(ctx context.Context, id string) (*domain.ProcessingResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var r domain.ProcessingResult
	err := s.readJSON(resultKey(id), &r)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, domainerrors.NotFoundf("result %q not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get result: %w", err)
	}
	return &r, nil
}

// RecentResults returns up to limit results, newest first.
func (s *Store) RecentResults(ctx context.Context, limit int) ([]domain.ProcessingResult, error) {
	page, err := s.ListResults(ctx, PageRequest{Limit: limit})
	if err != nil {
		return nil, err
	}
	return page.Items, nil
}

// ListResults pages through the log newest first.
func (s *Store) ListResults(ctx context.Context, req PageRequest) (*Page[domain.ProcessingResult], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit := req.size()

	afterID, err := decodeCursor(req.Cursor)
	if err != nil {
		return nil, err
	}

	prefix := []byte(resultPrefix)
	result := &Page[domain.ProcessingResult]{Items: []domain.ProcessingResult{}}
	var lastID string

	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		opts.PrefetchSize = limit + 1

		it := txn.NewIterator(opts)
		defer it.Close()

		if afterID != "" {
			startKey := resultPrefix + afterID
			it.Seek([]byte(startKey))
			// The cursor item was returned on the previous page.
			if it.Valid() && string(it.Item().Key()) == startKey {
				it.Next()
			}
		} else {
			it.Seek(prefixEnd(resultPrefix))
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if len(result.Items) == limit {
				result.HasMore = true
				break
			}

			item := it.Item()
			id := string(item.Key()[len(resultPrefix):])
			err := item.Value(func(val []byte) error {
				var r domain.ProcessingResult
				if err := json.Unmarshal(val, &r); err != nil {
					return err
				}
				result.Items = append(result.Items, r)
				return nil
			})
			if err != nil {
				return err
			}
			lastID = id
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}

	if result.HasMore {
		result.NextCursor = encodeCursor(lastID)
	}
	return result, nil
}

// CountResults returns the number of stored results.
func (s *Store) CountResults(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.countPrefix([]byte(resultPrefix))
}

// PruneResults deletes the oldest results so that at most keep remain.
// It returns the number deleted.
func (s *Store) PruneResults(ctx context.Context, keep int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	total, err := s.countPrefix([]byte(resultPrefix))
	if err != nil {
		return 0, fmt.Errorf("count results: %w", err)
	}
	excess := total - keep
	if excess <= 0 {
		return 0, nil
	}

	var stale [][]byte
	prefix := []byte(resultPrefix)
	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix) && len(stale) < excess; it.Next() {
			stale = append(stale, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan results: %w", err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range stale {
		if err := wb.Delete(key); err != nil {
			return 0, fmt.Errorf("delete result: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("flush prune: %w", err)
	}

	s.log.Debug("results pruned", "deleted", len(stale), "kept", keep)
	return len(stale), nil
}

// ClearResults removes every result.
func (s *Store) ClearResults(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.DropPrefix([]byte(resultPrefix)); err != nil {
		return fmt.Errorf("clear results: %w", err)
	}
	return nil
}

// resultWriter batches result writes with Badger's WriteBatch.
type resultWriter struct {
	store *Store
	batch *badger.WriteBatch
	count int
}

func (s *Store) newResultWriter() *resultWriter {
	return &resultWriter{store: s, batch: s.db.NewWriteBatch()}
}

// Add queues one result. Results without an ID get a fresh UUIDv7.
func (w *resultWriter) Add(r domain.ProcessingResult) error {
	if r.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate result id: %w", err)
		}
		r.ID = id.String()
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := w.batch.Set(resultKey(r.ID), data); err != nil {
		return fmt.Errorf("batch set result: %w", err)
	}
	w.count++
	return nil
}

// Flush commits all queued writes.
func (w *resultWriter) Flush() error {
	if w.count == 0 {
		w.batch.Cancel()
		return nil
	}
	if err := w.batch.Flush(); err != nil {
		return fmt.Errorf("flush results: %w", err)
	}
	w.store.log.Debug("results flushed", "count", w.count)
	w.count = 0
	return nil
}

// Cancel discards queued writes.
func (w *resultWriter) Cancel() {
	w.batch.Cancel()
	w.count = 0
}
