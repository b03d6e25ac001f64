package domain

import "time"

// ResultKind classifies a processing outcome.
type ResultKind string

const (
	ResultRenamed   ResultKind = "renamed"
	ResultMoved     ResultKind = "moved"
	ResultUnchanged ResultKind = "unchanged"
	ResultFailed    ResultKind = "failed"
)

// ProcessingResult records one attempted rename or move. Results are never mutated after creation.
type ProcessingResult struct {
	Timestamp      time.Time  `json:"timestamp"`
	ID             string     `json:"id"`
	OriginalPath   string     `json:"original_path"`
	NewPath        string     `json:"new_path"`
	ConventionPath string     `json:"convention_path,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	Kind           ResultKind `json:"kind"`
	Success        bool       `json:"success"`
}

// ProjectStats holds running totals for a managed tree.
// Counters only grow; Reset is the explicit clear.
type ProjectStats struct {
	LastUpdate time.Time `json:"last_update"`
	Processed  int64     `json:"processed"`
	Renamed    int64     `json:"renamed"`
	Moved      int64     `json:"moved"`
}

// Record folds a batch of results into the totals.
// Every result counts as processed; successful renames and moves bump their own counter.
func (s *ProjectStats) Record(results []ProcessingResult, at time.Time) {
	if len(results) == 0 {
		return
	}
	for _, r := range results {
		s.Processed++
		if !r.Success {
			continue
		}
		switch r.Kind {
		case ResultRenamed:
			s.Renamed++
		case ResultMoved:
			s.Moved++
		}
	}
	s.LastUpdate = at
}

// Reset zeroes every counter.
func (s *ProjectStats) Reset(at time.Time) {
	*s = ProjectStats{LastUpdate: at}
}

// AsMap returns the stats as a generic mapping for reporting surfaces.
func (s ProjectStats) AsMap() map[string]any {
	return map[string]any{
		"processed":   s.Processed,
		"renamed":     s.Renamed,
		"moved":       s.Moved,
		"last_update": s.LastUpdate,
	}
}
