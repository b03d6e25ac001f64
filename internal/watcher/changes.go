package watcher

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/foldkeeper/foldkeeper/internal/processor"
)

// DefaultCollectWindow is how long the collector gathers events before
// handing them over as one change set.
const DefaultCollectWindow = 200 * time.Millisecond

// ChangeHandler receives batched changes. *processor.Pipeline satisfies it.
type ChangeHandler interface {
	OnChange(ctx context.Context, cs processor.ChangeSet)
}

// Collector groups watcher events into processor change sets. Paths are
// passed on absolute; the pipeline makes them relative to its root.
type Collector struct {
	handler ChangeHandler
	logger  *slog.Logger
	window  time.Duration
}

// NewCollector creates a collector. A non-positive window uses
// DefaultCollectWindow.
func NewCollector(handler ChangeHandler, logger *slog.Logger, window time.Duration) *Collector {
	if window <= 0 {
		window = DefaultCollectWindow
	}
	return &Collector{handler: handler, logger: logger, window: window}
}

// Run reads events until ctx is canceled or events is closed. Pending
// changes are delivered before returning on a closed channel.
func (c *Collector) Run(ctx context.Context, events <-chan Event, errs <-chan error) error {
	var (
		cs     processor.ChangeSet
		timer  *time.Timer
		flushC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	flush := func() {
		flushC = nil
		if cs.Empty() {
			return
		}
		c.logger.Debug("delivering changes",
			"added", len(cs.Added),
			"removed", len(cs.Removed),
			"moved", len(cs.MovedTo))
		c.handler.OnChange(ctx, cs)
		cs = processor.ChangeSet{}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				flush()
				return nil
			}
			c.logger.Debug("file event", "event", ev)
			if touchesAdded(cs, ev) {
				flush()
			}
			addEvent(&cs, ev)
			if flushC == nil {
				if timer == nil {
					timer = time.NewTimer(c.window)
				} else {
					timer.Reset(c.window)
				}
				flushC = timer.C
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			c.logger.Warn("watcher error", "error", err)

		case <-flushC:
			flush()
		}
	}
}

// touchesAdded reports whether ev removes or moves a path already collected
// as added. Such an event is delivered in a change set of its own so the
// pipeline sees the write before the removal or move.
func touchesAdded(cs processor.ChangeSet, ev Event) bool {
	switch ev.Type {
	case EventRemoved:
		return slices.Contains(cs.Added, ev.Path)
	case EventMoved:
		return slices.Contains(cs.Added, ev.OldPath)
	}
	return false
}

// addEvent folds one event into cs. Removals and moves are never dropped.
func addEvent(cs *processor.ChangeSet, ev Event) {
	switch ev.Type {
	case EventAdded, EventModified:
		if !slices.Contains(cs.Added, ev.Path) {
			cs.Added = append(cs.Added, ev.Path)
		}
	case EventRemoved:
		cs.Removed = append(cs.Removed, ev.Path)
	case EventMoved:
		cs.MovedFrom = append(cs.MovedFrom, ev.OldPath)
		cs.MovedTo = append(cs.MovedTo, ev.Path)
	}
}
