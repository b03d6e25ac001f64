package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (s *Server) registerPipelineRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listPending",
		Method:      http.MethodGet,
		Path:        "/api/v1/pipeline/pending",
		Summary:     "List pending files",
		Description: "Returns the files queued for the next processing cycle",
		Tags:        []string{"Pipeline"},
	}, s.handleListPending)

	huma.Register(s.api, huma.Operation{
		OperationID:   "clearPipeline",
		Method:        http.MethodPost,
		Path:          "/api/v1/pipeline/clear",
		Summary:       "Clear the pipeline",
		Description:   "Forgets known files, drops the queue and resets totals and the results log",
		Tags:          []string{"Pipeline"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleClearPipeline)
}

// PendingResponse lists queued files.
type PendingResponse struct {
	Paths []string `json:"paths" doc:"Queued paths in arrival order"`
	Count int      `json:"count" doc:"Number of queued paths"`
}

// PendingOutput wraps the pending response for Huma.
type PendingOutput struct {
	Body PendingResponse
}

func (s *Server) handleListPending(_ context.Context, _ *struct{}) (*PendingOutput, error) {
	paths := s.pipeline.Pending()
	if paths == nil {
		paths = []string{}
	}
	return &PendingOutput{Body: PendingResponse{Paths: paths, Count: len(paths)}}, nil
}

func (s *Server) handleClearPipeline(ctx context.Context, _ *struct{}) (*struct{}, error) {
	s.pipeline.Clear(ctx)
	return nil, nil
}
