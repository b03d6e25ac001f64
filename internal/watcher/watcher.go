// Package watcher reports file additions, removals and moves below the
// managed root.
//
// On Linux it reads inotify directly, so complete writes arrive through
// IN_CLOSE_WRITE and renames are paired by cookie. Other platforms use
// fsnotify and wait for files to settle; renames there surface as a removal
// followed by an addition.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
)

// Backend is the platform specific half of a Watcher. Stop closes both
// channels.
type Backend interface {
	Watch(path string) error
	Start(ctx context.Context) error
	Stop() error
	Events() <-chan Event
	Errors() <-chan error
}

// Watcher wraps the platform backend.
type Watcher struct {
	backend Backend
	logger  *slog.Logger
}

// New builds a watcher with the backend compiled in for this platform.
func New(logger *slog.Logger, opts Options) (*Watcher, error) {
	opts.setDefaults()

	backend, err := newBackend(logger, opts)
	if err != nil {
		return nil, fmt.Errorf("create %s watcher: %w", backendName, err)
	}
	logger.Info("file watcher ready", "backend", backendName)

	return &Watcher{backend: backend, logger: logger}, nil
}

// Watch registers a directory tree. A file path watches its parent.
func (w *Watcher) Watch(path string) error {
	if err := w.backend.Watch(path); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	return nil
}

// Start delivers events until ctx is canceled.
func (w *Watcher) Start(ctx context.Context) error {
	return w.backend.Start(ctx)
}

func (w *Watcher) Stop() error {
	return w.backend.Stop()
}

func (w *Watcher) Events() <-chan Event {
	return w.backend.Events()
}

func (w *Watcher) Errors() <-chan error {
	return w.backend.Errors()
}
