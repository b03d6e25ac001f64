package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/foldkeeper/foldkeeper/internal/conventions"
)

func (s *Server) registerSettingsRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getSettings",
		Method:      http.MethodGet,
		Path:        "/api/v1/settings",
		Summary:     "Get store settings",
		Description: "Returns the global exclusions, project prefix and review switch",
		Tags:        []string{"Settings"},
	}, s.handleGetSettings)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateSettings",
		Method:      http.MethodPatch,
		Path:        "/api/v1/settings",
		Summary:     "Update store settings",
		Description: "Changes the settings present in the body and keeps the rest",
		Tags:        []string{"Settings"},
	}, s.handleUpdateSettings)
}

// SettingsOutput wraps the settings for Huma.
type SettingsOutput struct {
	Body conventions.Settings
}

// UpdateSettingsInput wraps the settings patch for Huma.
type UpdateSettingsInput struct {
	Body conventions.SettingsPatch
}

func (s *Server) handleGetSettings(_ context.Context, _ *struct{}) (*SettingsOutput, error) {
	return &SettingsOutput{Body: s.conventions.Settings()}, nil
}

func (s *Server) handleUpdateSettings(ctx context.Context, input *UpdateSettingsInput) (*SettingsOutput, error) {
	settings, err := s.conventions.ApplySettings(input.Body)
	if err != nil {
		return nil, toAPIError(err)
	}
	s.saveConventions(ctx)
	s.logger.Info("settings updated",
		"exclude_folders", len(settings.GlobalExcludeFolders),
		"exclude_extensions", len(settings.GlobalExcludeExtensions),
		"show_import_dialog", settings.ShowImportDialog,
	)
	return &SettingsOutput{Body: settings}, nil
}
