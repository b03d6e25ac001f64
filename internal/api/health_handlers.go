package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dustin/go-humanize/english"
)

func (s *Server) registerHealthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "healthCheck",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Reports the results store, the convention store, the pipeline and the event stream",
		Tags:        []string{"Health"},
	}, s.handleHealthCheck)
}

// Health states, worst last.
const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

var statusRank = map[string]int{statusHealthy: 0, statusDegraded: 1, statusUnhealthy: 2}

// ComponentHealth is the state of one dependency.
type ComponentHealth struct {
	Status  string `json:"status" enum:"healthy,degraded,unhealthy" doc:"Component status"`
	Latency string `json:"latency,omitempty" doc:"Time the check took"`
	Message string `json:"message,omitempty" doc:"Detail for humans"`
}

// HealthResponse is the worst component status plus every component.
type HealthResponse struct {
	Status     string                     `json:"status" enum:"healthy,degraded,unhealthy" doc:"Worst component status"`
	Components map[string]ComponentHealth `json:"components" doc:"Status by component"`
}

// HealthOutput wraps the health response for Huma.
type HealthOutput struct {
	Body HealthResponse
}

func (s *Server) handleHealthCheck(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	resp := HealthResponse{
		Status: statusHealthy,
		Components: map[string]ComponentHealth{
			"database":    s.checkDatabase(ctx),
			"conventions": s.checkConventions(),
			"pipeline":    s.checkPipeline(),
			"sse":         s.checkEvents(),
		},
	}
	for _, c := range resp.Components {
		if statusRank[c.Status] > statusRank[resp.Status] {
			resp.Status = c.Status
		}
	}
	return &HealthOutput{Body: resp}, nil
}

func missing(what string) ComponentHealth {
	return ComponentHealth{Status: statusDegraded, Message: what + " not configured"}
}

func (s *Server) checkDatabase(ctx context.Context) ComponentHealth {
	if s.store == nil {
		return missing("results store")
	}

	start := time.Now()
	err := s.store.Ping(ctx)
	h := ComponentHealth{Status: statusHealthy, Latency: time.Since(start).String()}
	if err != nil {
		h.Status = statusUnhealthy
		h.Message = "database read failed"
	}
	return h
}

func (s *Server) checkConventions() ComponentHealth {
	switch {
	case s.conventions == nil:
		return missing("convention store")
	case !s.conventions.Initialized():
		return ComponentHealth{Status: statusDegraded, Message: "convention store not loaded yet"}
	}
	return ComponentHealth{Status: statusHealthy, Message: count(s.conventions.Len(), "convention")}
}

func (s *Server) checkPipeline() ComponentHealth {
	if s.pipeline == nil {
		return missing("pipeline")
	}
	st := s.pipeline.Stats()
	return ComponentHealth{
		Status:  statusHealthy,
		Message: fmt.Sprintf("%s pending, %s", count(st.PendingCount, "file"), count(st.KnownCount, "known file")),
	}
}

func (s *Server) checkEvents() ComponentHealth {
	if s.sseManager == nil {
		return missing("event stream")
	}
	return ComponentHealth{Status: statusHealthy, Message: count(s.sseManager.ClientCount(), "connected client")}
}

func count(n int, noun string) string {
	if n == 0 {
		return "no " + english.PluralWord(2, noun, "")
	}
	return english.Plural(n, noun, "")
}
