package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/foldkeeper/foldkeeper/internal/logger"
	"github.com/foldkeeper/foldkeeper/internal/sse"
)

// SSEManagerHandle owns the broadcast loop of the event stream.
type SSEManagerHandle struct {
	*sse.Manager
	stop context.CancelFunc
}

// Shutdown implements do.Shutdownable. Connected clients are closed before
// it returns.
func (h *SSEManagerHandle) Shutdown() error {
	h.stop()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Manager.Shutdown(ctx)
}

// ProvideSSEManager starts the manager that fans pipeline events out to
// stream clients.
func ProvideSSEManager(i do.Injector) (*SSEManagerHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)

	m := sse.NewManager(log.WithComponent("sse"))
	ctx, stop := context.WithCancel(context.Background())
	go m.Start(ctx)

	return &SSEManagerHandle{Manager: m, stop: stop}, nil
}
