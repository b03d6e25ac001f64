package providers

import (
	"context"
	"errors"
	"sync"

	"github.com/samber/do/v2"

	"github.com/foldkeeper/foldkeeper/internal/config"
	"github.com/foldkeeper/foldkeeper/internal/ignore"
	"github.com/foldkeeper/foldkeeper/internal/logger"
	"github.com/foldkeeper/foldkeeper/internal/watcher"
)

// FileWatcherHandle wraps the file watcher with shutdown capability.
type FileWatcherHandle struct {
	*watcher.Watcher
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Shutdown implements do.Shutdownable.
func (h *FileWatcherHandle) Shutdown() error {
	h.cancel()
	err := h.Watcher.Stop()
	h.wg.Wait()
	return err
}

// ProvideFileWatcher provides the file system watcher. Its notifications are
// grouped into change sets and handed to the pipeline.
func ProvideFileWatcher(i do.Injector) (*FileWatcherHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	matcher := do.MustInvoke[*ignore.Matcher](i)
	pipeline := do.MustInvoke[*PipelineHandle](i)

	component := log.WithComponent("watcher")
	w, err := watcher.New(component, watcher.Options{Ignore: matcher})
	if err != nil {
		return nil, err
	}

	if err := w.Watch(cfg.Library.Root); err != nil {
		_ = w.Stop()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &FileWatcherHandle{Watcher: w, cancel: cancel}

	// Start in background
	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		if err := w.Start(ctx); err != nil {
			log.Error("file watcher error", "error", err)
		}
	}()

	// Process events in background
	collector := watcher.NewCollector(pipeline.Pipeline, component, watcher.DefaultCollectWindow)
	go func() {
		defer h.wg.Done()
		if err := collector.Run(ctx, w.Events(), w.Errors()); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("change collector stopped", "error", err)
		}
	}()

	log.Info("watching", "root", cfg.Library.Root)

	return h, nil
}
