package watcher

import (
	"log/slog"
	"time"
)

// EventType classifies a change seen below a watched root.
type EventType int

const (
	// EventAdded fires once a new file has finished being written.
	EventAdded EventType = iota
	// EventModified fires once an existing file has finished being rewritten.
	EventModified
	// EventRemoved fires when a file or directory disappears.
	EventRemoved
	// EventMoved fires for a rename whose source and target are both watched.
	EventMoved
)

var eventTypeNames = [...]string{
	EventAdded:    "added",
	EventModified: "modified",
	EventRemoved:  "removed",
	EventMoved:    "moved",
}

func (t EventType) String() string {
	if t < 0 || int(t) >= len(eventTypeNames) {
		return "unknown"
	}
	return eventTypeNames[t]
}

// Event is one observed change. Paths are absolute.
type Event struct {
	ModTime time.Time
	Path    string
	// OldPath is set for EventMoved only.
	OldPath string
	Size    int64
	Type    EventType
	IsDir   bool
}

// LogValue renders the event as a compact slog group.
func (e Event) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("type", e.Type.String()),
		slog.String("path", e.Path),
	}
	if e.OldPath != "" {
		attrs = append(attrs, slog.String("from", e.OldPath))
	}
	if e.IsDir {
		attrs = append(attrs, slog.Bool("dir", true))
	}
	return slog.GroupValue(attrs...)
}
