package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/foldkeeper/foldkeeper/internal/domain"
	"github.com/foldkeeper/foldkeeper/internal/store"
)

func (s *Server) registerResultRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listResults",
		Method:      http.MethodGet,
		Path:        "/api/v1/results",
		Summary:     "List processing results",
		Description: "Pages through the results log, newest first",
		Tags:        []string{"Pipeline"},
	}, s.handleListResults)
}

// ListResultsInput contains pagination parameters.
type ListResultsInput struct {
	Limit  int    `query:"limit" default:"50" minimum:"1" maximum:"1000" doc:"Results per page"`
	Cursor string `query:"cursor" doc:"Cursor from the previous page"`
}

// ResultsResponse is one page of results.
type ResultsResponse struct {
	Results    []domain.ProcessingResult `json:"results" doc:"Results, newest first"`
	NextCursor string                    `json:"next_cursor,omitempty" doc:"Cursor for the next page"`
	HasMore    bool                      `json:"has_more" doc:"Whether more results exist"`
}

// ResultsOutput wraps the results response for Huma.
type ResultsOutput struct {
	Body ResultsResponse
}

func (s *Server) handleListResults(ctx context.Context, input *ListResultsInput) (*ResultsOutput, error) {
	page, err := s.store.ListResults(ctx, store.PageRequest{
		Limit:  input.Limit,
		Cursor: input.Cursor,
	})
	if err != nil {
		return nil, toAPIError(err)
	}

	return &ResultsOutput{
		Body: ResultsResponse{
			Results:    page.Items,
			NextCursor: page.NextCursor,
			HasMore:    page.HasMore,
		},
	}, nil
}
