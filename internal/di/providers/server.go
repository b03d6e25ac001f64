package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/foldkeeper/foldkeeper/internal/api"
	"github.com/foldkeeper/foldkeeper/internal/config"
	"github.com/foldkeeper/foldkeeper/internal/logger"
	"github.com/foldkeeper/foldkeeper/internal/ratelimit"
)

// apiRequestsPerSecond and apiBurst throttle each status API client.
const (
	apiRequestsPerSecond = 20
	apiBurst             = 40
)

// HTTPServerHandle wraps the status API server.
type HTTPServerHandle struct {
	*api.Server
	limiter *ratelimit.KeyedRateLimiter
	cancel  context.CancelFunc
	done    chan struct{}
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	h.cancel()
	<-h.done
	h.limiter.Stop()
	return nil
}

// ProvideHTTPServer provides the status API. When the API is disabled the
// handle holds a server that is never started.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	conventionsHandle := do.MustInvoke[*ConventionsHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	pipeline := do.MustInvoke[*PipelineHandle](i)

	limiter := ratelimit.New(apiRequestsPerSecond, apiBurst)
	srv := api.NewServer(api.Services{
		Store:       storeHandle.Store,
		Pipeline:    pipeline.Pipeline,
		Conventions: conventionsHandle.Store,
		SSEManager:  sseHandle.Manager,
	}, api.Options{
		AllowedOrigins: cfg.API.AllowedOrigins,
		RateLimiter:    limiter,
	}, log.WithComponent("api"))

	ctx, cancel := context.WithCancel(context.Background())
	h := &HTTPServerHandle{Server: srv, limiter: limiter, cancel: cancel, done: make(chan struct{})}

	if !cfg.API.Enabled {
		log.Info("status API disabled by configuration")
		close(h.done)
		return h, nil
	}

	// Start in background
	go func() {
		defer close(h.done)
		if err := srv.ListenAndServe(ctx, cfg.API.Addr); err != nil {
			log.Error("status API error", "error", err)
		}
	}()

	return h, nil
}
