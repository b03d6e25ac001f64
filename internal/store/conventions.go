package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/foldkeeper/foldkeeper/internal/conventions"
	"github.com/foldkeeper/foldkeeper/internal/domain"
	domainerrors "github.com/foldkeeper/foldkeeper/internal/errors"
)

// LoadConventions returns the saved convention store. A missing blob yields
// an error matching domainerrors.ErrStoreUnavailable.
func (s *Store) LoadConventions(ctx context.Context) (*conventions.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var snap conventions.Snapshot
	err := s.readJSON([]byte(conventionsKey), &snap)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, domainerrors.StoreUnavailable("no conventions saved yet")
	}
	if err != nil {
		return nil, fmt.Errorf("load conventions: %w", err)
	}
	if snap.Version > conventions.SnapshotVersion {
		return nil, domainerrors.Validationf("conventions saved by a newer version (layout %d)", snap.Version)
	}
	return &snap, nil
}

// SaveConventions replaces the saved convention store.
func (s *Store) SaveConventions(ctx context.Context, snap *conventions.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if snap == nil {
		return domainerrors.Validation("snapshot is required")
	}
	if err := s.writeJSON([]byte(conventionsKey), snap); err != nil {
		return fmt.Errorf("save conventions: %w", err)
	}
	s.log.Debug("conventions saved", "count", len(snap.Conventions))
	return nil
}

// LoadStats returns the saved totals, or zero totals when none exist.
func (s *Store) LoadStats(ctx context.Context) (domain.ProjectStats, error) {
	if err := ctx.Err(); err != nil {
		return domain.ProjectStats{}, err
	}

	var stats domain.ProjectStats
	err := s.readJSON([]byte(statsKey), &stats)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.ProjectStats{}, nil
	}
	if err != nil {
		return domain.ProjectStats{}, fmt.Errorf("load stats: %w", err)
	}
	return stats, nil
}

// SaveStats replaces the saved totals.
func (s *Store) SaveStats(ctx context.Context, stats domain.ProjectStats) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.writeJSON([]byte(statsKey), stats); err != nil {
		return fmt.Errorf("save stats: %w", err)
	}
	return nil
}
