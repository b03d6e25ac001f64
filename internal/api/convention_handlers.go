package api

import (
	"context"
	"net/http"
	"slices"

	"github.com/danielgtaylor/huma/v2"

	"github.com/foldkeeper/foldkeeper/internal/conventions"
	"github.com/foldkeeper/foldkeeper/internal/domain"
	domainerrors "github.com/foldkeeper/foldkeeper/internal/errors"
	"github.com/foldkeeper/foldkeeper/internal/naming"
)

func (s *Server) registerConventionRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listConventions",
		Method:      http.MethodGet,
		Path:        "/api/v1/conventions",
		Summary:     "List conventions",
		Description: "Returns every registered convention ordered by path, plus the store settings",
		Tags:        []string{"Conventions"},
	}, s.handleListConventions)

	huma.Register(s.api, huma.Operation{
		OperationID: "resolveConvention",
		Method:      http.MethodGet,
		Path:        "/api/v1/resolve",
		Summary:     "Resolve a path",
		Description: "Returns the convention governing a file and the name it would get",
		Tags:        []string{"Conventions"},
	}, s.handleResolve)

	huma.Register(s.api, huma.Operation{
		OperationID:   "registerConvention",
		Method:        http.MethodPost,
		Path:          "/api/v1/conventions",
		Summary:       "Register a convention",
		Description:   "Registers a directory with default settings inherited from its nearest ancestor. New conventions never auto-apply.",
		Tags:          []string{"Conventions"},
		DefaultStatus: http.StatusCreated,
	}, s.handleRegisterConvention)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateConvention",
		Method:      http.MethodPut,
		Path:        "/api/v1/conventions",
		Summary:     "Update a convention",
		Description: "Replaces the editable fields of the convention registered at path",
		Tags:        []string{"Conventions"},
	}, s.handleUpdateConvention)

	huma.Register(s.api, huma.Operation{
		OperationID:   "removeConvention",
		Method:        http.MethodDelete,
		Path:          "/api/v1/conventions",
		Summary:       "Remove a convention",
		Description:   "Removes the convention registered at path. Subdirectories fall back to the nearest remaining ancestor.",
		Tags:          []string{"Conventions"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleRemoveConvention)

	huma.Register(s.api, huma.Operation{
		OperationID: "scanConventions",
		Method:      http.MethodPost,
		Path:        "/api/v1/conventions/scan",
		Summary:     "Register child directories",
		Description: "Registers every direct child directory of path that has no convention yet. An empty path scans the root.",
		Tags:        []string{"Conventions"},
	}, s.handleScanConventions)
}

// ConventionsResponse lists conventions.
type ConventionsResponse struct {
	Conventions []*domain.Convention `json:"conventions" doc:"Registered conventions"`
	Settings    conventions.Settings `json:"settings" doc:"Store wide settings"`
	Total       int                  `json:"total" doc:"Number of conventions"`
}

// ConventionsOutput wraps the conventions response for Huma.
type ConventionsOutput struct {
	Body ConventionsResponse
}

func (s *Server) handleListConventions(_ context.Context, _ *struct{}) (*ConventionsOutput, error) {
	all := s.conventions.All()
	return &ConventionsOutput{
		Body: ConventionsResponse{
			Conventions: all,
			Settings:    s.conventions.Settings(),
			Total:       len(all),
		},
	}, nil
}

// ResolveInput is the query for a resolution.
type ResolveInput struct {
	Path string `query:"path" required:"true" minLength:"1" maxLength:"4096" doc:"File path relative to the managed root"`
}

// ResolveResponse describes how a file is governed.
type ResolveResponse struct {
	Path       string             `json:"path" doc:"Normalized file path"`
	Excluded   bool               `json:"excluded" doc:"Whether global exclusions hide the path"`
	Convention *domain.Convention `json:"convention,omitempty" doc:"Governing convention, absent when none applies"`
	NewPath    string             `json:"new_path,omitempty" doc:"Name the convention would give the file"`
	Violations []string           `json:"violations,omitempty" doc:"Why the current name does not conform"`
}

// ResolveOutput wraps the resolve response for Huma.
type ResolveOutput struct {
	Body ResolveResponse
}

func (s *Server) handleResolve(_ context.Context, input *ResolveInput) (*ResolveOutput, error) {
	resp := ResolveResponse{
		Path:     domain.NormalizePath(input.Path),
		Excluded: s.conventions.IsGloballyExcluded(input.Path),
	}
	if resp.Excluded {
		return &ResolveOutput{Body: resp}, nil
	}

	proposal, err := s.pipeline.Propose(input.Path)
	switch {
	case err == nil:
		resp.Path = proposal.Path
		resp.NewPath = proposal.NewPath
		resp.Violations = proposal.Violations
		resp.Convention = s.conventions.Resolve(proposal.Path)
	case domainerrors.Is(err, domainerrors.ErrNotFound):
		// Ungoverned files are a normal answer, not an error.
	default:
		return nil, toAPIError(err)
	}

	return &ResolveOutput{Body: resp}, nil
}

// ConventionPathInput selects a convention by directory.
type ConventionPathInput struct {
	Path string `query:"path" required:"true" minLength:"1" maxLength:"1024" doc:"Directory relative to the managed root"`
}

// RegisterConventionRequest is the body of a registration.
type RegisterConventionRequest struct {
	Path string `json:"path" validate:"required,max=1024,relpath" doc:"Directory relative to the managed root"`
}

// RegisterConventionInput wraps the registration body for Huma.
type RegisterConventionInput struct {
	Body RegisterConventionRequest
}

// ConventionResponse carries one convention.
type ConventionResponse struct {
	Convention *domain.Convention `json:"convention" doc:"The convention after the change"`
	Created    bool               `json:"created" doc:"Whether the request created it"`
}

// ConventionOutput wraps the convention response for Huma.
type ConventionOutput struct {
	Status int
	Body   ConventionResponse
}

func (s *Server) handleRegisterConvention(ctx context.Context, input *RegisterConventionInput) (*ConventionOutput, error) {
	if err := s.validate.Validate(input.Body); err != nil {
		return nil, toAPIError(err)
	}
	if s.conventions.IsGloballyExcluded(input.Body.Path) {
		return nil, toAPIError(domainerrors.Validationf("%q is globally excluded", input.Body.Path))
	}

	c, created := s.conventions.Register(input.Body.Path)
	if c == nil {
		return nil, toAPIError(domainerrors.PathInvalidf("invalid path %q", input.Body.Path))
	}

	out := &ConventionOutput{Status: http.StatusOK, Body: ConventionResponse{Convention: c, Created: created}}
	if created {
		out.Status = http.StatusCreated
		s.saveConventions(ctx)
		s.logger.Info("convention registered", "path", c.Path)
	}
	return out, nil
}

// ConventionRequest holds the editable fields of a convention. Omitted flags
// are false.
type ConventionRequest struct {
	NamingStyle        naming.Style `json:"naming_style" doc:"One of as-is, pascal, camel, snake, kebab, upper, lower"`
	Prefix             string       `json:"prefix,omitempty" maxLength:"64" doc:"Text every name starts with"`
	Suffix             string       `json:"suffix,omitempty" maxLength:"64" doc:"Text every name ends with before the extension"`
	AllowedExtensions  []string     `json:"allowed_extensions,omitempty" maxItems:"64" doc:"Permitted extensions; empty allows any"`
	Icon               string       `json:"icon,omitempty" maxLength:"64" doc:"Display icon"`
	Color              string       `json:"color,omitempty" doc:"Display color such as #4caf50"`
	EnforceNaming      bool         `json:"enforce_naming,omitempty" doc:"Report names that do not conform"`
	AutoApply          bool         `json:"auto_apply,omitempty" doc:"Rename imported files without review"`
	RemoveSpecialChars bool         `json:"remove_special_chars,omitempty" doc:"Strip characters outside letters and digits"`
	PreserveNumbers    bool         `json:"preserve_numbers,omitempty" doc:"Keep digit runs as their own words"`
	AutoCapitalize     bool         `json:"auto_capitalize,omitempty" doc:"Capitalize the first letter of as-is names"`
	ProjectSpecific    bool         `json:"project_specific,omitempty" doc:"Use the project prefix from the settings"`
}

// UpdateConventionInput is the path and body of an update.
type UpdateConventionInput struct {
	ConventionPathInput
	Body ConventionRequest
}

func (s *Server) handleUpdateConvention(ctx context.Context, input *UpdateConventionInput) (*ConventionOutput, error) {
	req := input.Body
	updated, err := s.conventions.Update(input.Path, func(c *domain.Convention) {
		c.NamingStyle = req.NamingStyle
		c.Prefix = req.Prefix
		c.Suffix = req.Suffix
		c.AllowedExtensions = slices.Clone(req.AllowedExtensions)
		c.Icon = req.Icon
		c.Color = req.Color
		c.EnforceNaming = req.EnforceNaming
		c.AutoApply = req.AutoApply
		c.RemoveSpecialChars = req.RemoveSpecialChars
		c.PreserveNumbers = req.PreserveNumbers
		c.AutoCapitalize = req.AutoCapitalize
		c.ProjectSpecific = req.ProjectSpecific
	})
	if err != nil {
		return nil, toAPIError(err)
	}

	s.saveConventions(ctx)
	s.logger.Info("convention updated", "path", updated.Path, "auto_apply", updated.AutoApply)
	return &ConventionOutput{Status: http.StatusOK, Body: ConventionResponse{Convention: updated}}, nil
}

func (s *Server) handleRemoveConvention(ctx context.Context, input *ConventionPathInput) (*struct{}, error) {
	if err := s.conventions.Remove(input.Path); err != nil {
		return nil, toAPIError(err)
	}
	s.saveConventions(ctx)
	s.logger.Info("convention removed", "path", domain.NormalizePath(input.Path))
	return nil, nil
}

// ScanConventionsRequest names the directory whose children are registered.
type ScanConventionsRequest struct {
	Path string `json:"path,omitempty" validate:"omitempty,max=1024,relpath" doc:"Parent directory; empty for the root"`
}

// ScanConventionsInput wraps the scan body for Huma.
type ScanConventionsInput struct {
	Body ScanConventionsRequest
}

// ScanConventionsResponse reports a scan.
type ScanConventionsResponse struct {
	Path       string `json:"path" doc:"Scanned directory"`
	Registered int    `json:"registered" doc:"Conventions created by the scan"`
	Total      int    `json:"total" doc:"Conventions registered after the scan"`
}

// ScanConventionsOutput wraps the scan response for Huma.
type ScanConventionsOutput struct {
	Body ScanConventionsResponse
}

func (s *Server) handleScanConventions(ctx context.Context, input *ScanConventionsInput) (*ScanConventionsOutput, error) {
	if err := s.validate.Validate(input.Body); err != nil {
		return nil, toAPIError(err)
	}

	n, err := s.conventions.ScanChildren(ctx, input.Body.Path)
	if err != nil {
		return nil, toAPIError(err)
	}
	if n > 0 {
		s.saveConventions(ctx)
	}

	return &ScanConventionsOutput{Body: ScanConventionsResponse{
		Path:       domain.NormalizePath(input.Body.Path),
		Registered: n,
		Total:      s.conventions.Len(),
	}}, nil
}

// saveConventions persists an edit right away. A failed save leaves the store
// dirty for the next processing cycle to retry.
func (s *Server) saveConventions(ctx context.Context) {
	if err := s.conventions.Save(ctx); err != nil {
		s.logger.Error("failed to save conventions", "error", err)
	}
}
