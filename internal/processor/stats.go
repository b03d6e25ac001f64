package processor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/foldkeeper/foldkeeper/internal/domain"
)

// recentLimit bounds the in-memory results ring.
const recentLimit = 200

// Recorder persists results and totals. store.Store implements it.
type Recorder interface {
	AppendResults(ctx context.Context, results []domain.ProcessingResult) error
	SaveStats(ctx context.Context, stats domain.ProjectStats) error
	LoadStats(ctx context.Context) (domain.ProjectStats, error)
	ClearResults(ctx context.Context) error
}

// Stats is the reporting view of the pipeline.
type Stats struct {
	LastUpdate     time.Time `json:"last_update"`
	LastCycle      time.Time `json:"last_cycle"`
	PendingCount   int       `json:"pending_count"`
	KnownCount     int       `json:"known_count"`
	TotalProcessed int64     `json:"total_processed"`
	TotalRenamed   int64     `json:"total_renamed"`
	TotalMoved     int64     `json:"total_moved"`
}

// StatsSink aggregates processing results into running totals.
type StatsSink struct {
	mu       sync.Mutex
	totals   domain.ProjectStats
	recent   []domain.ProcessingResult
	recorder Recorder
	logger   *slog.Logger
}

// NewStatsSink creates a sink. recorder may be nil.
func NewStatsSink(recorder Recorder, logger *slog.Logger) *StatsSink {
	return &StatsSink{recorder: recorder, logger: logger}
}

// Load restores persisted totals.
func (s *StatsSink) Load(ctx context.Context) error {
	if s.recorder == nil {
		return nil
	}
	totals, err := s.recorder.LoadStats(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.totals = totals
	s.mu.Unlock()
	return nil
}

// Record folds results into the totals and persists both. Persistence
// failures are logged; the in-memory totals are authoritative.
func (s *StatsSink) Record(ctx context.Context, results []domain.ProcessingResult, at time.Time) domain.ProjectStats {
	s.mu.Lock()
	s.totals.Record(results, at)
	s.recent = append(s.recent, results...)
	if over := len(s.recent) - recentLimit; over > 0 {
		s.recent = append(s.recent[:0], s.recent[over:]...)
	}
	totals := s.totals
	s.mu.Unlock()

	if s.recorder != nil && len(results) > 0 {
		if err := s.recorder.AppendResults(ctx, results); err != nil {
			s.logger.Error("failed to persist processing results", "count", len(results), "error", err)
		}
		if err := s.recorder.SaveStats(ctx, totals); err != nil {
			s.logger.Error("failed to persist stats", "error", err)
		}
	}
	return totals
}

// Totals returns the running totals.
func (s *StatsSink) Totals() domain.ProjectStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totals
}

// Recent returns up to limit of the latest results, newest first.
func (s *StatsSink) Recent(limit int) []domain.ProcessingResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.recent) {
		limit = len(s.recent)
	}
	out := make([]domain.ProcessingResult, 0, limit)
	for i := len(s.recent) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.recent[i])
	}
	return out
}

// Reset zeroes the totals and drops recorded results.
func (s *StatsSink) Reset(ctx context.Context, at time.Time) {
	s.mu.Lock()
	s.totals.Reset(at)
	s.recent = nil
	totals := s.totals
	s.mu.Unlock()

	if s.recorder == nil {
		return
	}
	if err := s.recorder.ClearResults(ctx); err != nil {
		s.logger.Error("failed to clear processing results", "error", err)
	}
	if err := s.recorder.SaveStats(ctx, totals); err != nil {
		s.logger.Error("failed to persist stats", "error", err)
	}
}
