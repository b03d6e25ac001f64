package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/foldkeeper/foldkeeper/internal/config"
	"github.com/foldkeeper/foldkeeper/internal/fsops"
	"github.com/foldkeeper/foldkeeper/internal/logger"
	"github.com/foldkeeper/foldkeeper/internal/processor"
	"github.com/foldkeeper/foldkeeper/internal/ratelimit"
	"github.com/foldkeeper/foldkeeper/internal/sse"
)

// RenameLimiterHandle wraps the per-directory rename limiter.
type RenameLimiterHandle struct {
	*ratelimit.KeyedRateLimiter
}

// Shutdown implements do.Shutdownable.
func (h *RenameLimiterHandle) Shutdown() error {
	h.Stop()
	return nil
}

// ProvideRenameLimiter provides the per-directory rename limiter.
func ProvideRenameLimiter(i do.Injector) (*RenameLimiterHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return &RenameLimiterHandle{
		KeyedRateLimiter: ratelimit.New(cfg.Rename.RatePerSecond, cfg.Rename.Burst),
	}, nil
}

// ProvideRenamer provides the disk renamer.
func ProvideRenamer(i do.Injector) (*fsops.OSRenamer, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	limiter := do.MustInvoke[*RenameLimiterHandle](i)

	if cfg.Rename.DryRun {
		log.Info("dry run: renames are logged, not performed")
	}

	return fsops.NewOSRenamer(cfg.Library.Root, fsops.Options{
		Limiter: limiter.KeyedRateLimiter,
		Logger:  log.WithComponent("fsops"),
		DryRun:  cfg.Rename.DryRun,
	})
}

// ProvideReviewer provides the review bridge that broadcasts batches to
// status API clients.
func ProvideReviewer(i do.Injector) (*sse.Reviewer, error) {
	log := do.MustInvoke[*logger.Logger](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)

	return sse.NewReviewer(sseHandle.Manager, log.WithComponent("review")), nil
}

// PipelineHandle wraps the import pipeline with shutdown capability.
type PipelineHandle struct {
	*processor.Pipeline
	unsubscribe []func()
}

// Shutdown implements do.Shutdownable.
func (h *PipelineHandle) Shutdown() error {
	for _, fn := range h.unsubscribe {
		fn()
	}
	h.Close()
	return nil
}

// ProvideProcessorConfig maps the pipeline section of the configuration.
func ProvideProcessorConfig(i do.Injector) (processor.Config, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return processor.Config{
		AutoProcessEnabled:    cfg.Pipeline.AutoProcess,
		ShowDialogEnabled:     cfg.Pipeline.ShowDialog,
		BatchSize:             cfg.Pipeline.BatchSize,
		DialogThreshold:       cfg.Pipeline.DialogThreshold,
		ProcessCooldown:       cfg.Pipeline.ProcessCooldown,
		DialogCooldown:        cfg.Pipeline.DialogCooldown,
		SettingsCacheLifetime: cfg.Pipeline.SettingsCacheLifetime,
	}, nil
}

// ProvidePipeline provides the import pipeline, wired to the convention
// store, the renamer, the review bridge and the event stream.
func ProvidePipeline(i do.Injector) (*PipelineHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	conventionsHandle := do.MustInvoke[*ConventionsHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	renamer := do.MustInvoke[*fsops.OSRenamer](i)
	reviewer := do.MustInvoke[*sse.Reviewer](i)
	pcfg := do.MustInvoke[processor.Config](i)

	component := log.WithComponent("pipeline")
	pipeline := processor.New(processor.Options{
		Store:    conventionsHandle.Store,
		Renamer:  renamer,
		Reviewer: reviewer,
		Stats:    processor.NewStatsSink(storeHandle.Store, component),
		Logger:   component,
		Root:     cfg.Library.Root,
		Config:   pcfg,
	})

	reviewer.SetProposer(pipeline.Propose)
	handle := &PipelineHandle{
		Pipeline: pipeline,
		unsubscribe: []func(){
			pipeline.Subscribe(sse.NewPipelineListener(sseHandle.Manager)),
			sse.ForwardConventionChanges(sseHandle.Manager, conventionsHandle.Store),
		},
	}

	if err := pipeline.Initialize(context.Background()); err != nil {
		_ = handle.Shutdown()
		return nil, err
	}

	return handle, nil
}
