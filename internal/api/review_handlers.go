package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/foldkeeper/foldkeeper/internal/domain"
	"github.com/foldkeeper/foldkeeper/internal/processor"
)

func (s *Server) registerReviewRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "applyReview",
		Method:      http.MethodPost,
		Path:        "/api/v1/review/apply",
		Summary:     "Apply review decisions",
		Description: "Renames reviewed files. A decision without new_path accepts the proposed name.",
		Tags:        []string{"Review"},
	}, s.handleApplyReview)
}

// ReviewDecisionRequest is one reviewed file.
type ReviewDecisionRequest struct {
	Path    string `json:"path" minLength:"1" maxLength:"4096" doc:"File path relative to the managed root"`
	NewPath string `json:"new_path,omitempty" maxLength:"4096" doc:"Chosen path; empty accepts the proposal"`
}

// ApplyReviewRequest is the body of a review submission.
type ApplyReviewRequest struct {
	ReviewID  string                  `json:"review_id,omitempty" doc:"ID from the review.requested event"`
	Decisions []ReviewDecisionRequest `json:"decisions" minItems:"1" maxItems:"1000" doc:"One decision per file"`
}

// ApplyReviewInput wraps the request body for Huma.
type ApplyReviewInput struct {
	Body ApplyReviewRequest
}

// ApplyReviewResponse reports what happened to each file.
type ApplyReviewResponse struct {
	Results   []domain.ProcessingResult `json:"results" doc:"One result per decision"`
	Succeeded int                       `json:"succeeded" doc:"Number of successful decisions"`
	Failed    int                       `json:"failed" doc:"Number of failed decisions"`
}

// ApplyReviewOutput wraps the review response for Huma.
type ApplyReviewOutput struct {
	Body ApplyReviewResponse
}

func (s *Server) handleApplyReview(ctx context.Context, input *ApplyReviewInput) (*ApplyReviewOutput, error) {
	decisions := make([]processor.ReviewDecision, len(input.Body.Decisions))
	for i, d := range input.Body.Decisions {
		decisions[i] = processor.ReviewDecision{Path: d.Path, NewPath: d.NewPath}
	}

	results := s.pipeline.ApplyReview(ctx, decisions)

	resp := ApplyReviewResponse{Results: results}
	for _, r := range results {
		if r.Success {
			resp.Succeeded++
		} else {
			resp.Failed++
		}
	}

	s.logger.Info("review decisions applied",
		"review_id", input.Body.ReviewID,
		"succeeded", resp.Succeeded,
		"failed", resp.Failed,
	)
	return &ApplyReviewOutput{Body: resp}, nil
}
