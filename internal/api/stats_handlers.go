package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

func (s *Server) registerStatsRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getStats",
		Method:      http.MethodGet,
		Path:        "/api/v1/stats",
		Summary:     "Get pipeline stats",
		Description: "Returns the queue size and running totals of the import pipeline",
		Tags:        []string{"Pipeline"},
	}, s.handleGetStats)
}

// StatsResponse contains pipeline totals in API responses.
type StatsResponse struct {
	LastUpdate     time.Time `json:"last_update" doc:"When the totals last changed"`
	LastCycle      time.Time `json:"last_cycle" doc:"When the last processing cycle started"`
	PendingCount   int       `json:"pending_count" doc:"Files waiting for the next cycle"`
	KnownCount     int       `json:"known_count" doc:"Files already seen"`
	TotalProcessed int64     `json:"total_processed" doc:"Files processed since the last clear"`
	TotalRenamed   int64     `json:"total_renamed" doc:"Successful renames since the last clear"`
	TotalMoved     int64     `json:"total_moved" doc:"Successful moves since the last clear"`
	Conventions    int       `json:"conventions" doc:"Registered conventions"`
}

// StatsOutput wraps the stats response for Huma.
type StatsOutput struct {
	Body StatsResponse
}

func (s *Server) handleGetStats(_ context.Context, _ *struct{}) (*StatsOutput, error) {
	stats := s.pipeline.Stats()

	resp := StatsResponse{
		LastUpdate:     stats.LastUpdate,
		LastCycle:      stats.LastCycle,
		PendingCount:   stats.PendingCount,
		KnownCount:     stats.KnownCount,
		TotalProcessed: stats.TotalProcessed,
		TotalRenamed:   stats.TotalRenamed,
		TotalMoved:     stats.TotalMoved,
	}
	if s.conventions != nil {
		resp.Conventions = s.conventions.Len()
	}
	return &StatsOutput{Body: resp}, nil
}
