package di

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/samber/do/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldkeeper/foldkeeper/internal/config"
	"github.com/foldkeeper/foldkeeper/internal/di/providers"
	"github.com/foldkeeper/foldkeeper/internal/domain"
	"github.com/foldkeeper/foldkeeper/internal/naming"
	"github.com/foldkeeper/foldkeeper/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Art"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "Art", "old file.png"), []byte("old"), 0o644))

	return &config.Config{
		App:     config.AppConfig{Environment: "production"},
		Logger:  config.LoggerConfig{Level: "error", Format: "json"},
		Data:    config.DataConfig{Path: filepath.Join(root, config.DataDirName)},
		Library: config.LibraryConfig{Root: root},
		Pipeline: config.PipelineConfig{
			AutoProcess:     true,
			BatchSize:       50,
			DialogThreshold: 10,
			ProcessCooldown: 10 * time.Millisecond,
			DialogCooldown:  time.Second,
		},
		API:    config.APIConfig{Enabled: false, Addr: "127.0.0.1:0"},
		Rename: config.RenameConfig{RatePerSecond: 100, Burst: 10},
	}
}

func TestContainer_SeedsConventionsFromTopLevel(t *testing.T) {
	cfg := testConfig(t)
	injector := NewContainer(cfg, io.Discard)

	h := do.MustInvoke[*providers.ConventionsHandle](injector)
	_, ok := h.Get("Art")
	assert.True(t, ok)
	_, ok = h.Get("node_modules")
	assert.False(t, ok, "excluded folders are not registered")

	injector.Shutdown()

	st, err := store.New(cfg.Data.Path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer st.Close()

	snap, err := st.LoadConventions(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Conventions, 1)
	assert.Equal(t, "Art", snap.Conventions[0].Path)
}

func TestBootstrap_ProcessesOnlyNewFiles(t *testing.T) {
	if testing.Short() {
		t.Skip("starts a file watcher")
	}

	cfg := testConfig(t)
	injector := NewContainer(cfg, io.Discard)
	t.Cleanup(func() { injector.Shutdown() })

	require.NoError(t, Bootstrap(context.Background(), injector))

	pipeline := do.MustInvoke[*providers.PipelineHandle](injector)
	assert.True(t, pipeline.IsKnown("Art/old file.png"))

	convs := do.MustInvoke[*providers.ConventionsHandle](injector)
	_, err := convs.Update("Art", func(c *domain.Convention) {
		c.NamingStyle = naming.PascalCase
		c.Prefix = "T_"
		c.EnforceNaming = true
		c.RemoveSpecialChars = true
		c.PreserveNumbers = true
		c.AutoApply = true
	})
	require.NoError(t, err)

	root := cfg.Library.Root
	require.NoError(t, os.WriteFile(filepath.Join(root, "Art", "new tree.png"), []byte("new"), 0o644))

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(root, "Art", "T_NewTree.png"))
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	assert.FileExists(t, filepath.Join(root, "Art", "old file.png"), "files present before watching are left alone")
	require.Eventually(t, func() bool {
		return pipeline.Stats().TotalRenamed == 1
	}, time.Second, 10*time.Millisecond)
}
