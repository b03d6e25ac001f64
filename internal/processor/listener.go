package processor

import "sync"

// Batch describes one routed chunk of a processing cycle.
type Batch struct {
	CycleID  string `json:"cycle_id"`
	Index    int    `json:"index"`
	Size     int    `json:"size"`
	Results  int    `json:"results"`
	Reviewed bool   `json:"reviewed"`
}

// Listener observes pipeline state changes. Methods are called synchronously
// after the change is committed and must not block.
type Listener interface {
	PendingChanged(paths []string)
	StatsUpdated(stats Stats)
	BatchProcessed(batch Batch)
	Cleared()
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	OnPendingChanged func(paths []string)
	OnStatsUpdated   func(stats Stats)
	OnBatchProcessed func(batch Batch)
	OnCleared        func()
}

// PendingChanged implements Listener.
func (f ListenerFuncs) PendingChanged(paths []string) {
	if f.OnPendingChanged != nil {
		f.OnPendingChanged(paths)
	}
}

// StatsUpdated implements Listener.
func (f ListenerFuncs) StatsUpdated(stats Stats) {
	if f.OnStatsUpdated != nil {
		f.OnStatsUpdated(stats)
	}
}

// BatchProcessed implements Listener.
func (f ListenerFuncs) BatchProcessed(batch Batch) {
	if f.OnBatchProcessed != nil {
		f.OnBatchProcessed(batch)
	}
}

// Cleared implements Listener.
func (f ListenerFuncs) Cleared() {
	if f.OnCleared != nil {
		f.OnCleared()
	}
}

// listeners is a registry of Listener values keyed by subscription.
type listeners struct {
	mu     sync.Mutex
	byID   map[int]Listener
	nextID int
}

func (l *listeners) add(listener Listener) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.byID == nil {
		l.byID = make(map[int]Listener)
	}
	id := l.nextID
	l.nextID++
	l.byID[id] = listener

	return func() {
		l.mu.Lock()
		delete(l.byID, id)
		l.mu.Unlock()
	}
}

func (l *listeners) each(fn func(Listener)) {
	l.mu.Lock()
	snapshot := make([]Listener, 0, len(l.byID))
	for _, listener := range l.byID {
		snapshot = append(snapshot, listener)
	}
	l.mu.Unlock()

	for _, listener := range snapshot {
		fn(listener)
	}
}
