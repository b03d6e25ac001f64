package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldkeeper/foldkeeper/internal/conventions"
	"github.com/foldkeeper/foldkeeper/internal/domain"
	"github.com/foldkeeper/foldkeeper/internal/fsops"
	"github.com/foldkeeper/foldkeeper/internal/naming"
	"github.com/foldkeeper/foldkeeper/internal/processor"
	"github.com/foldkeeper/foldkeeper/internal/ratelimit"
	"github.com/foldkeeper/foldkeeper/internal/sse"
	"github.com/foldkeeper/foldkeeper/internal/store"
)

// testEnvelope mirrors APIEnvelope with a typed payload.
type testEnvelope[T any] struct {
	Version int    `json:"v"`
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error"`
}

// testServer wraps the API server for testing.
type testServer struct {
	*Server
	api  humatest.TestAPI
	root string
}

// setupTestServer creates a test server backed by an in-memory store and a
// temp directory as the managed root.
func setupTestServer(t *testing.T, opts ...Options) *testServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	root := t.TempDir()

	st, err := store.NewInMemory(logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	convs := conventions.New(conventions.NewOSTree(root), st, logger)
	require.NoError(t, convs.EnsureInitialized(context.Background()))

	renamer, err := fsops.NewOSRenamer(root, fsops.Options{Logger: logger})
	require.NoError(t, err)

	cfg := processor.DefaultConfig()
	cfg.ShowDialogEnabled = false
	cfg.ProcessCooldown = time.Minute
	pipeline := processor.New(processor.Options{
		Store:   convs,
		Renamer: renamer,
		Stats:   processor.NewStatsSink(st, logger),
		Logger:  logger,
		Root:    root,
		Config:  cfg,
	})
	t.Cleanup(pipeline.Close)

	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}

	s := NewServer(Services{
		Store:       st,
		Pipeline:    pipeline,
		Conventions: convs,
		SSEManager:  sse.NewManager(logger),
	}, o, logger)

	return &testServer{
		Server: s,
		api:    humatest.Wrap(t, s.API()),
		root:   root,
	}
}

func (ts *testServer) addArtConvention(t *testing.T) {
	t.Helper()
	require.NoError(t, ts.conventions.Add(&domain.Convention{
		Path:               "Art",
		NamingStyle:        naming.PascalCase,
		Prefix:             "T_",
		EnforceNaming:      true,
		RemoveSpecialChars: true,
		PreserveNumbers:    true,
	}))
}

func decode[T any](t *testing.T, body []byte) testEnvelope[T] {
	t.Helper()
	var env testEnvelope[T]
	require.NoError(t, json.Unmarshal(body, &env), string(body))
	assert.Equal(t, EnvelopeVersion, env.Version)
	return env
}

func decodeError(t *testing.T, body []byte) APIErrorEnvelope {
	t.Helper()
	var env APIErrorEnvelope
	require.NoError(t, json.Unmarshal(body, &env), string(body))
	assert.False(t, env.Success)
	return env
}

func TestHealthCheck_Success(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/health")
	require.Equal(t, http.StatusOK, resp.Code)

	env := decode[HealthResponse](t, resp.Body.Bytes())
	assert.True(t, env.Success)
	assert.Equal(t, "healthy", env.Data.Status)
	assert.Equal(t, "healthy", env.Data.Components["database"].Status)
	assert.Equal(t, "no conventions", env.Data.Components["conventions"].Message)
	assert.Equal(t, "no connected clients", env.Data.Components["sse"].Message)
	assert.Equal(t, "no files pending, no known files", env.Data.Components["pipeline"].Message)
}

func TestHealthCheck_ConventionCount(t *testing.T) {
	ts := setupTestServer(t)
	ts.addArtConvention(t)

	resp := ts.api.Get("/health")
	require.Equal(t, http.StatusOK, resp.Code)

	env := decode[HealthResponse](t, resp.Body.Bytes())
	assert.Equal(t, "1 convention", env.Data.Components["conventions"].Message)
}

func TestHealthCheck_DatabaseDown(t *testing.T) {
	ts := setupTestServer(t)
	require.NoError(t, ts.store.Close())

	resp := ts.api.Get("/health")
	require.Equal(t, http.StatusOK, resp.Code)

	env := decode[HealthResponse](t, resp.Body.Bytes())
	assert.Equal(t, "unhealthy", env.Data.Status)
	assert.Equal(t, "unhealthy", env.Data.Components["database"].Status)
}

func TestGetStats(t *testing.T) {
	ts := setupTestServer(t)
	ts.addArtConvention(t)

	resp := ts.api.Get("/api/v1/stats")
	require.Equal(t, http.StatusOK, resp.Code)

	env := decode[StatsResponse](t, resp.Body.Bytes())
	assert.Zero(t, env.Data.TotalProcessed)
	assert.Zero(t, env.Data.PendingCount)
	assert.Equal(t, 1, env.Data.Conventions)
	assert.True(t, env.Data.LastCycle.IsZero())

	ctx := context.Background()
	ts.pipeline.OnChange(ctx, processor.ChangeSet{Added: []string{"Art/a.png"}})
	_, err := ts.pipeline.Flush(ctx)
	require.NoError(t, err)

	resp = ts.api.Get("/api/v1/stats")
	require.Equal(t, http.StatusOK, resp.Code)
	env = decode[StatsResponse](t, resp.Body.Bytes())
	assert.False(t, env.Data.LastCycle.IsZero())
}

func TestListConventions(t *testing.T) {
	ts := setupTestServer(t)
	ts.addArtConvention(t)

	resp := ts.api.Get("/api/v1/conventions")
	require.Equal(t, http.StatusOK, resp.Code)

	env := decode[ConventionsResponse](t, resp.Body.Bytes())
	require.Equal(t, 1, env.Data.Total)
	assert.Equal(t, "Art", env.Data.Conventions[0].Path)
	assert.Equal(t, "T_", env.Data.Conventions[0].Prefix)
	assert.Contains(t, env.Data.Settings.GlobalExcludeFolders, "node_modules")
}

func TestRegisterConvention(t *testing.T) {
	ts := setupTestServer(t)
	ctx := context.Background()

	resp := ts.api.Post("/api/v1/conventions", map[string]any{"path": "Art/Trees/"})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	env := decode[ConventionResponse](t, resp.Body.Bytes())
	assert.True(t, env.Data.Created)
	assert.Equal(t, "Art/Trees", env.Data.Convention.Path)
	assert.False(t, env.Data.Convention.AutoApply)

	resp = ts.api.Post("/api/v1/conventions", map[string]any{"path": "Art/Trees"})
	require.Equal(t, http.StatusOK, resp.Code)
	env = decode[ConventionResponse](t, resp.Body.Bytes())
	assert.False(t, env.Data.Created)

	snap, err := ts.store.LoadConventions(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Conventions, 1)
	assert.Equal(t, "Art/Trees", snap.Conventions[0].Path)

	resp = ts.api.Post("/api/v1/conventions", map[string]any{"path": "../outside"})
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "VALIDATION", decodeError(t, resp.Body.Bytes()).Code)

	resp = ts.api.Post("/api/v1/conventions", map[string]any{"path": "node_modules/pkg"})
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, 1, ts.conventions.Len())
}

func TestUpdateConvention(t *testing.T) {
	ts := setupTestServer(t)
	ts.addArtConvention(t)

	resp := ts.api.Put("/api/v1/conventions?path=art", map[string]any{
		"naming_style":       "snake",
		"prefix":             "S_",
		"allowed_extensions": []string{".png"},
		"auto_apply":         true,
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	env := decode[ConventionResponse](t, resp.Body.Bytes())
	assert.Equal(t, "Art", env.Data.Convention.Path, "lookup ignores case")
	assert.Equal(t, naming.SnakeCase, env.Data.Convention.NamingStyle)
	assert.True(t, env.Data.Convention.AutoApply)
	assert.False(t, env.Data.Convention.EnforceNaming, "omitted flags are cleared")

	got, ok := ts.conventions.Get("Art")
	require.True(t, ok)
	assert.Equal(t, "S_", got.Prefix)
	assert.Equal(t, []string{".png"}, got.AllowedExtensions)

	snap, err := ts.store.LoadConventions(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Conventions, 1)
	assert.True(t, snap.Conventions[0].AutoApply)

	resp = ts.api.Put("/api/v1/conventions?path=Art", map[string]any{"naming_style": "pascal", "color": "red"})
	require.Equal(t, http.StatusBadRequest, resp.Code)
	errEnv := decodeError(t, resp.Body.Bytes())
	assert.Equal(t, "VALIDATION", errEnv.Code)
	assert.Contains(t, errEnv.Details, "color")

	resp = ts.api.Put("/api/v1/conventions?path=Audio", map[string]any{"naming_style": "pascal"})
	require.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, resp.Body.Bytes()).Code)
}

func TestRemoveConvention(t *testing.T) {
	ts := setupTestServer(t)
	ts.addArtConvention(t)

	resp := ts.api.Delete("/api/v1/conventions?path=Art")
	require.Equal(t, http.StatusNoContent, resp.Code, resp.Body.String())
	assert.Zero(t, ts.conventions.Len())

	snap, err := ts.store.LoadConventions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Conventions)

	resp = ts.api.Delete("/api/v1/conventions?path=Art")
	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestScanConventions(t *testing.T) {
	ts := setupTestServer(t)
	for _, dir := range []string{"Art/Trees", "Audio", ".cache", "node_modules"} {
		require.NoError(t, os.MkdirAll(filepath.Join(ts.root, filepath.FromSlash(dir)), 0o755))
	}

	resp := ts.api.Post("/api/v1/conventions/scan", map[string]any{})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	env := decode[ScanConventionsResponse](t, resp.Body.Bytes())
	assert.Equal(t, 2, env.Data.Registered)
	assert.Equal(t, 2, env.Data.Total)

	resp = ts.api.Post("/api/v1/conventions/scan", map[string]any{"path": "Art"})
	require.Equal(t, http.StatusOK, resp.Code)
	env = decode[ScanConventionsResponse](t, resp.Body.Bytes())
	assert.Equal(t, "Art", env.Data.Path)
	assert.Equal(t, 1, env.Data.Registered)

	trees, ok := ts.conventions.Get("Art/Trees")
	require.True(t, ok)
	assert.False(t, trees.AutoApply)

	resp = ts.api.Post("/api/v1/conventions/scan", map[string]any{"path": "../.."})
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestSettings(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/api/v1/settings")
	require.Equal(t, http.StatusOK, resp.Code)
	env := decode[conventions.Settings](t, resp.Body.Bytes())
	assert.True(t, env.Data.ShowImportDialog)

	resp = ts.api.Patch("/api/v1/settings", map[string]any{
		"show_import_dialog":        false,
		"global_exclude_extensions": []string{".psd"},
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	env = decode[conventions.Settings](t, resp.Body.Bytes())
	assert.False(t, env.Data.ShowImportDialog)
	assert.Equal(t, []string{".psd"}, env.Data.GlobalExcludeExtensions)
	assert.Contains(t, env.Data.GlobalExcludeFolders, "node_modules", "unset fields are kept")
	assert.True(t, ts.conventions.IsGloballyExcluded("Art/layers.psd"))

	snap, err := ts.store.LoadConventions(context.Background())
	require.NoError(t, err)
	assert.False(t, snap.Settings.ShowImportDialog)

	resp = ts.api.Patch("/api/v1/settings", map[string]any{"global_exclude_extensions": []string{"a b"}})
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "VALIDATION", decodeError(t, resp.Body.Bytes()).Code)
	assert.Equal(t, []string{".psd"}, ts.conventions.Settings().GlobalExcludeExtensions)
}

func TestResolve(t *testing.T) {
	ts := setupTestServer(t)
	ts.addArtConvention(t)

	t.Run("governed", func(t *testing.T) {
		resp := ts.api.Get("/api/v1/resolve?path=Art/Trees/my_tree.png")
		require.Equal(t, http.StatusOK, resp.Code)

		env := decode[ResolveResponse](t, resp.Body.Bytes())
		assert.Equal(t, "Art/Trees/my_tree.png", env.Data.Path)
		assert.Equal(t, "Art/Trees/T_MyTree.png", env.Data.NewPath)
		require.NotNil(t, env.Data.Convention)
		assert.Equal(t, "Art", env.Data.Convention.Path)
		assert.NotEmpty(t, env.Data.Violations)
	})

	t.Run("ungoverned", func(t *testing.T) {
		resp := ts.api.Get("/api/v1/resolve?path=Loose/file.png")
		require.Equal(t, http.StatusOK, resp.Code)

		env := decode[ResolveResponse](t, resp.Body.Bytes())
		assert.Nil(t, env.Data.Convention)
		assert.Empty(t, env.Data.NewPath)
		assert.False(t, env.Data.Excluded)
	})

	t.Run("excluded", func(t *testing.T) {
		resp := ts.api.Get("/api/v1/resolve?path=Art/node_modules/x.png")
		require.Equal(t, http.StatusOK, resp.Code)

		env := decode[ResolveResponse](t, resp.Body.Bytes())
		assert.True(t, env.Data.Excluded)
		assert.Nil(t, env.Data.Convention)
	})

	t.Run("hidden path is invalid", func(t *testing.T) {
		resp := ts.api.Get("/api/v1/resolve?path=Art/.cache/x.png")
		require.Equal(t, http.StatusBadRequest, resp.Code)
		assert.Equal(t, "PATH_INVALID", decodeError(t, resp.Body.Bytes()).Code)
	})

	t.Run("missing path", func(t *testing.T) {
		resp := ts.api.Get("/api/v1/resolve")
		require.Equal(t, http.StatusUnprocessableEntity, resp.Code)
		assert.Equal(t, "VALIDATION", decodeError(t, resp.Body.Bytes()).Code)
	})
}

func TestListResults(t *testing.T) {
	ts := setupTestServer(t)
	ctx := context.Background()

	for _, p := range []string{"Art/a.png", "Art/b.png", "Art/c.png"} {
		require.NoError(t, ts.store.AppendResults(ctx, []domain.ProcessingResult{{
			Timestamp:    time.Now(),
			OriginalPath: p,
			Kind:         domain.ResultUnchanged,
			Success:      true,
		}}))
	}

	resp := ts.api.Get("/api/v1/results?limit=2")
	require.Equal(t, http.StatusOK, resp.Code)

	first := decode[ResultsResponse](t, resp.Body.Bytes())
	require.Len(t, first.Data.Results, 2)
	assert.Equal(t, "Art/c.png", first.Data.Results[0].OriginalPath)
	assert.True(t, first.Data.HasMore)
	require.NotEmpty(t, first.Data.NextCursor)

	resp = ts.api.Get("/api/v1/results?limit=2&cursor=" + first.Data.NextCursor)
	require.Equal(t, http.StatusOK, resp.Code)

	second := decode[ResultsResponse](t, resp.Body.Bytes())
	require.Len(t, second.Data.Results, 1)
	assert.Equal(t, "Art/a.png", second.Data.Results[0].OriginalPath)
	assert.False(t, second.Data.HasMore)
}

func TestListResults_InvalidCursor(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/api/v1/results?cursor=%25%25%25")
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "VALIDATION", decodeError(t, resp.Body.Bytes()).Code)
}

func TestApplyReview(t *testing.T) {
	ts := setupTestServer(t)
	ts.addArtConvention(t)

	require.NoError(t, os.MkdirAll(filepath.Join(ts.root, "Art"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(ts.root, "Art", "my_tree.png"), []byte("x"), 0o644))

	resp := ts.api.Post("/api/v1/review/apply", map[string]any{
		"review_id": "review-test",
		"decisions": []map[string]string{
			{"path": "Art/my_tree.png"},
			{"path": "Art/missing.png", "new_path": "Art/Found.png"},
		},
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	env := decode[ApplyReviewResponse](t, resp.Body.Bytes())
	assert.Equal(t, 1, env.Data.Succeeded)
	assert.Equal(t, 1, env.Data.Failed)
	require.Len(t, env.Data.Results, 2)
	assert.Equal(t, "Art/T_MyTree.png", env.Data.Results[0].NewPath)
	assert.Equal(t, domain.ResultRenamed, env.Data.Results[0].Kind)
	assert.Equal(t, domain.ResultFailed, env.Data.Results[1].Kind)

	assert.FileExists(t, filepath.Join(ts.root, "Art", "T_MyTree.png"))
	assert.NoFileExists(t, filepath.Join(ts.root, "Art", "my_tree.png"))

	stats := ts.pipeline.Stats()
	assert.Equal(t, int64(2), stats.TotalProcessed)
	assert.Equal(t, int64(1), stats.TotalRenamed)
}

func TestApplyReview_RequiresDecisions(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Post("/api/v1/review/apply", map[string]any{"decisions": []any{}})
	require.Equal(t, http.StatusUnprocessableEntity, resp.Code)
}

func TestPipelinePendingAndClear(t *testing.T) {
	ts := setupTestServer(t)
	ctx := context.Background()

	require.NoError(t, ts.store.AppendResults(ctx, []domain.ProcessingResult{{OriginalPath: "Art/a.png", Success: true}}))
	ts.pipeline.OnChange(ctx, processor.ChangeSet{Added: []string{"Art/a.png"}})

	resp := ts.api.Get("/api/v1/pipeline/pending")
	require.Equal(t, http.StatusOK, resp.Code)
	pending := decode[PendingResponse](t, resp.Body.Bytes())
	assert.Equal(t, []string{"Art/a.png"}, pending.Data.Paths)

	resp = ts.api.Post("/api/v1/pipeline/clear")
	require.Equal(t, http.StatusNoContent, resp.Code)

	assert.Empty(t, ts.pipeline.Pending())
	count, err := ts.store.CountResults(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestLimitByClient(t *testing.T) {
	limiter := ratelimit.New(0.001, 1)
	defer limiter.Stop()
	ts := setupTestServer(t, Options{RateLimiter: limiter})

	first := httptest.NewRecorder()
	ts.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	ts.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "RATE_LIMITED", decodeError(t, second.Body.Bytes()).Code)

	other := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	other.Header.Set("X-Forwarded-For", "10.0.0.9")
	third := httptest.NewRecorder()
	ts.ServeHTTP(third, other)
	assert.Equal(t, http.StatusOK, third.Code, "limits are per client")
}

func TestCORS(t *testing.T) {
	ts := setupTestServer(t, Options{AllowedOrigins: []string{"http://localhost:5173"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/stats", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestClientKey(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "1.2.3.4, 10.0.0.1"}, "9.9.9.9:1", "1.2.3.4"},
		{"real ip", map[string]string{"X-Real-IP": "5.6.7.8"}, "9.9.9.9:1", "5.6.7.8"},
		{"remote addr", nil, "9.9.9.9:1234", "9.9.9.9"},
		{"remote without port", nil, "9.9.9.9", "9.9.9.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientKey(r))
		})
	}
}
