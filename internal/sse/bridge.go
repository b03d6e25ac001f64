package sse

import (
	"context"
	"log/slog"
	"sync"

	"github.com/foldkeeper/foldkeeper/internal/conventions"
	"github.com/foldkeeper/foldkeeper/internal/id"
	"github.com/foldkeeper/foldkeeper/internal/processor"
)

// PipelineListener forwards pipeline notifications to the manager.
type PipelineListener struct {
	manager *Manager
}

var _ processor.Listener = (*PipelineListener)(nil)

// NewPipelineListener returns a listener that emits pipeline events on m.
func NewPipelineListener(m *Manager) *PipelineListener {
	return &PipelineListener{manager: m}
}

func (l *PipelineListener) PendingChanged(paths []string) {
	l.manager.Emit(NewPendingChangedEvent(paths))
}

func (l *PipelineListener) StatsUpdated(stats processor.Stats) {
	l.manager.Emit(NewStatsUpdatedEvent(stats))
}

func (l *PipelineListener) BatchProcessed(batch processor.Batch) {
	l.manager.Emit(NewBatchProcessedEvent(batch))
}

func (l *PipelineListener) Cleared() {
	l.manager.Emit(NewPipelineClearedEvent())
}

// ForwardConventionChanges emits convention.changed for every committed
// store mutation. The returned func unsubscribes.
func ForwardConventionChanges(m *Manager, store *conventions.Store) func() {
	return store.Subscribe(func(c conventions.Change) {
		m.Emit(NewConventionChangedEvent(c))
	})
}

// ProposeFunc computes the suggested name for a path.
type ProposeFunc func(rel string) (processor.Proposal, error)

// Reviewer implements processor.Reviewer by broadcasting review.requested.
// Decisions come back through the status API.
type Reviewer struct {
	manager *Manager
	logger  *slog.Logger

	mu      sync.RWMutex
	propose ProposeFunc
}

var _ processor.Reviewer = (*Reviewer)(nil)

// NewReviewer creates a reviewer that emits on m.
func NewReviewer(m *Manager, logger *slog.Logger) *Reviewer {
	return &Reviewer{manager: m, logger: logger}
}

// SetProposer attaches suggested names to future review events. It is set
// after construction because the pipeline that proposes names is built with
// the reviewer.
func (r *Reviewer) SetProposer(fn ProposeFunc) {
	r.mu.Lock()
	r.propose = fn
	r.mu.Unlock()
}

// RequestReview broadcasts paths for review without blocking.
func (r *Reviewer) RequestReview(_ context.Context, paths []string) {
	reviewID, err := id.Generate(id.PrefixReview)
	if err != nil {
		r.logger.Warn("failed to generate review id", "error", err)
	}

	r.mu.RLock()
	propose := r.propose
	r.mu.RUnlock()

	var proposals []processor.Proposal
	if propose != nil {
		for _, p := range paths {
			prop, err := propose(p)
			if err != nil {
				r.logger.Debug("no proposal for path", "path", p, "error", err)
				continue
			}
			proposals = append(proposals, prop)
		}
	}

	r.logger.Info("review requested", "review", reviewID, "files", len(paths), "proposals", len(proposals))
	r.manager.Emit(NewReviewRequestedEvent(reviewID, paths, proposals))
}
