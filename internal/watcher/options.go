package watcher

import (
	"time"

	"github.com/foldkeeper/foldkeeper/internal/ignore"
)

// Options configures the file watcher behavior.
type Options struct {
	// Ignore decides which paths produce no events. Nil hides dot files and
	// ignore.DefaultPatterns.
	Ignore *ignore.Matcher

	// SettleDelay is how long the fsnotify backend waits for a file to stop
	// changing before reporting it.
	SettleDelay time.Duration

	// MoveWindow is how long an inotify IN_MOVED_FROM waits for its matching
	// IN_MOVED_TO before it is reported as a removal.
	MoveWindow time.Duration
}

// setDefaults applies default values to unset options.
func (o *Options) setDefaults() {
	if o.SettleDelay == 0 {
		o.SettleDelay = 100 * time.Millisecond
	}
	if o.MoveWindow == 0 {
		o.MoveWindow = 50 * time.Millisecond
	}
	if o.Ignore == nil {
		o.Ignore = ignore.MustNew(nil, true)
	}
}

// shouldIgnore checks if an absolute path is excluded.
func (o *Options) shouldIgnore(path string, isDir bool) bool {
	return o.Ignore.MatchAbs(path, isDir)
}
