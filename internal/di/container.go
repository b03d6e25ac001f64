// Package di provides dependency injection configuration for foldkeeper.
package di

import (
	"context"
	"io"

	"github.com/samber/do/v2"

	"github.com/foldkeeper/foldkeeper/internal/config"
	"github.com/foldkeeper/foldkeeper/internal/di/providers"
	"github.com/foldkeeper/foldkeeper/internal/logger"
)

// NewContainer creates and configures the DI container with all providers.
// Services are built lazily, so one-shot commands only open what they use.
// Logs go to logOutput, or stderr when it is nil.
func NewContainer(cfg *config.Config, logOutput io.Writer) *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.ProvideValue(injector, cfg)
	do.ProvideValue(injector, providers.LogOutput{Writer: logOutput})
	do.Provide(injector, providers.ProvideLogger)

	// Storage and events
	do.Provide(injector, providers.ProvideSSEManager)
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideConventions)

	// Pipeline
	do.Provide(injector, providers.ProvideRenameLimiter)
	do.Provide(injector, providers.ProvideRenamer)
	do.Provide(injector, providers.ProvideReviewer)
	do.Provide(injector, providers.ProvideProcessorConfig)
	do.Provide(injector, providers.ProvidePipeline)

	// Scanner layer
	do.Provide(injector, providers.ProvideIgnoreMatcher)
	do.Provide(injector, providers.ProvideWalker)

	// Workers
	do.Provide(injector, providers.ProvideFileWatcher)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap starts the long-running services: it loads the conventions,
// records the files already on disk, then starts the watcher and the status
// API.
func Bootstrap(ctx context.Context, injector *do.RootScope) error {
	log, err := do.Invoke[*logger.Logger](injector)
	if err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.SSEManagerHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.StoreHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.ConventionsHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.PipelineHandle](injector); err != nil {
		return err
	}

	if err := providers.SeedKnownFiles(ctx, injector); err != nil {
		return err
	}

	// Workers
	if _, err := do.Invoke[*providers.FileWatcherHandle](injector); err != nil {
		return err
	}

	// Server
	if _, err := do.Invoke[*providers.HTTPServerHandle](injector); err != nil {
		return err
	}

	log.Debug("bootstrap complete")
	return nil
}
