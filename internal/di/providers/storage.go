package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/foldkeeper/foldkeeper/internal/config"
	"github.com/foldkeeper/foldkeeper/internal/conventions"
	"github.com/foldkeeper/foldkeeper/internal/logger"
	"github.com/foldkeeper/foldkeeper/internal/store"
)

// StoreHandle closes the Badger database when the injector shuts down.
type StoreHandle struct {
	*store.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore opens the database under the configured data directory.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	s, err := store.New(cfg.Data.Path, log.WithComponent("store"))
	if err != nil {
		return nil, err
	}
	return &StoreHandle{Store: s}, nil
}

// ConventionsHandle persists unsaved convention edits on shutdown.
type ConventionsHandle struct {
	*conventions.Store
	log *logger.Logger
}

// Shutdown implements do.Shutdownable.
func (h *ConventionsHandle) Shutdown() error {
	if !h.Dirty() {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := h.Save(ctx); err != nil {
		return err
	}
	h.log.Debug("saved conventions on shutdown", "count", h.Len())
	return nil
}

// ProvideConventions loads the convention store. An empty store is seeded
// with one convention per top level folder of the root.
func ProvideConventions(i do.Injector) (*ConventionsHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	db := do.MustInvoke[*StoreHandle](i)

	ctx := context.Background()
	cs := conventions.New(conventions.NewOSTree(cfg.Library.Root), db.Store, log.WithComponent("conventions"))
	if err := cs.EnsureInitialized(ctx); err != nil {
		return nil, err
	}

	if cs.Len() == 0 {
		seeded, err := cs.ScanTopLevelOnly(ctx)
		if err != nil {
			return nil, err
		}
		if err := cs.Save(ctx); err != nil {
			log.Warn("could not persist seeded conventions", "error", err)
		}
		log.Info("seeded conventions", "folders", seeded)
	}

	log.Info("conventions loaded", "count", cs.Len())
	return &ConventionsHandle{Store: cs, log: log}, nil
}
