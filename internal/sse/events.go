// Package sse broadcasts pipeline and convention events to connected
// Server-Sent Events clients.
package sse

import (
	"time"

	"github.com/foldkeeper/foldkeeper/internal/conventions"
	"github.com/foldkeeper/foldkeeper/internal/processor"
)

// EventType represents the type of SSE Event.
type EventType string

const (
	// EventPendingChanged is sent whenever the pending queue changes.
	EventPendingChanged EventType = "pending.changed"
	// EventStatsUpdated is sent after totals change.
	EventStatsUpdated EventType = "stats.updated"
	// EventBatchProcessed is sent after each batch of a processing cycle.
	EventBatchProcessed EventType = "batch.processed"
	// EventPipelineCleared is sent after an explicit clear.
	EventPipelineCleared EventType = "pipeline.cleared"
	// EventReviewRequested carries a batch that needs a human decision.
	EventReviewRequested EventType = "review.requested"
	// EventConventionChanged is sent after a convention store mutation.
	EventConventionChanged EventType = "convention.changed"

	// EventConnected is the first frame of every stream.
	EventConnected EventType = "connected"
	// EventHeartbeat keeps idle connections open.
	EventHeartbeat EventType = "heartbeat"
)

// Event is one message on the stream. ID is assigned on broadcast and
// increases by one per event; heartbeats carry none.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`
	ID        uint64    `json:"id,omitempty"`
}

// PendingChangedEventData lists the queued paths.
type PendingChangedEventData struct {
	Paths []string `json:"paths"`
	Count int      `json:"count"`
}

// ReviewRequestedEventData is the payload for review.requested.
type ReviewRequestedEventData struct {
	ReviewID  string               `json:"review_id"`
	Paths     []string             `json:"paths"`
	Proposals []processor.Proposal `json:"proposals,omitempty"`
}

// ConventionChangedEventData is the payload for convention.changed.
type ConventionChangedEventData struct {
	Kind conventions.ChangeKind `json:"kind"`
	Path string                 `json:"path,omitempty"`
}

// HeartbeatEventData is the payload for heartbeat events.
type HeartbeatEventData struct {
	ServerTime time.Time `json:"server_time"`
}

func newEvent(t EventType, data any) Event {
	return Event{Type: t, Data: data, Timestamp: time.Now()}
}

// NewPendingChangedEvent creates a pending.changed event.
func NewPendingChangedEvent(paths []string) Event {
	if paths == nil {
		paths = []string{}
	}
	return newEvent(EventPendingChanged, PendingChangedEventData{Paths: paths, Count: len(paths)})
}

// NewStatsUpdatedEvent creates a stats.updated event.
func NewStatsUpdatedEvent(stats processor.Stats) Event {
	return newEvent(EventStatsUpdated, stats)
}

// NewBatchProcessedEvent creates a batch.processed event.
func NewBatchProcessedEvent(batch processor.Batch) Event {
	return newEvent(EventBatchProcessed, batch)
}

// NewPipelineClearedEvent creates a pipeline.cleared event.
func NewPipelineClearedEvent() Event {
	return newEvent(EventPipelineCleared, struct{}{})
}

// NewReviewRequestedEvent creates a review.requested event.
func NewReviewRequestedEvent(reviewID string, paths []string, proposals []processor.Proposal) Event {
	return newEvent(EventReviewRequested, ReviewRequestedEventData{
		ReviewID:  reviewID,
		Paths:     paths,
		Proposals: proposals,
	})
}

// NewConventionChangedEvent creates a convention.changed event.
func NewConventionChangedEvent(change conventions.Change) Event {
	return newEvent(EventConventionChanged, ConventionChangedEventData{Kind: change.Kind, Path: change.Path})
}

// NewHeartbeatEvent creates a heartbeat event.
func NewHeartbeatEvent() Event {
	now := time.Now()
	return Event{Type: EventHeartbeat, Data: HeartbeatEventData{ServerTime: now}, Timestamp: now}
}
