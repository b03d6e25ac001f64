package watcher

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldkeeper/foldkeeper/internal/ignore"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startWatcher watches dir and runs the watcher until the test ends.
func startWatcher(t *testing.T, dir string, opts Options) *Watcher {
	t.Helper()
	if opts.SettleDelay == 0 {
		opts.SettleDelay = 50 * time.Millisecond
	}
	w, err := New(discardLogger(), opts)
	require.NoError(t, err)
	require.NoError(t, w.Watch(dir))

	ctx, cancel := context.WithCancel(context.Background())
	go w.Start(ctx) //nolint:errcheck // returns on cancel
	t.Cleanup(func() {
		cancel()
		_ = w.Stop()
	})

	// Let the reader goroutine come up before the test touches the tree.
	time.Sleep(50 * time.Millisecond)
	return w
}

func nextEvent(t *testing.T, w *Watcher) Event {
	t.Helper()
	select {
	case ev := <-w.Events():
		return ev
	case err := <-w.Errors():
		t.Fatalf("watcher error: %v", err)
	case <-time.After(time.Second):
		t.Fatal("no event within a second")
	}
	return Event{}
}

func assertQuiet(t *testing.T, w *Watcher) {
	t.Helper()
	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected event: %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestNew_StopTwice(t *testing.T) {
	w, err := New(discardLogger(), Options{})
	require.NoError(t, err)

	assert.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
}

func TestWatcher_WatchMissingPath(t *testing.T) {
	w, err := New(discardLogger(), Options{})
	require.NoError(t, err)
	defer w.Stop() //nolint:errcheck

	err = w.Watch(filepath.Join(t.TempDir(), "gone"))
	assert.ErrorContains(t, err, "gone")
}

func TestWatcher_ReportsCompletedFile(t *testing.T) {
	dir := t.TempDir()
	w := startWatcher(t, dir, Options{})

	file := filepath.Join(dir, "tree.png")
	require.NoError(t, os.WriteFile(file, []byte("twenty-two bytes here!"), 0o644))

	ev := nextEvent(t, w)
	assert.Equal(t, EventAdded, ev.Type)
	assert.Equal(t, file, ev.Path)
	assert.Equal(t, int64(22), ev.Size)
	assert.False(t, ev.ModTime.IsZero())
}

func TestWatcher_ReportsRemoval(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "notes.md")
	require.NoError(t, os.WriteFile(file, []byte("draft"), 0o644))

	w := startWatcher(t, dir, Options{})
	require.NoError(t, os.Remove(file))

	ev := nextEvent(t, w)
	assert.Equal(t, EventRemoved, ev.Type)
	assert.Equal(t, file, ev.Path)
}

func TestWatcher_FollowsNewDirectories(t *testing.T) {
	dir := t.TempDir()
	w := startWatcher(t, dir, Options{})

	sub := filepath.Join(dir, "Sounds")
	require.NoError(t, os.Mkdir(sub, 0o755))
	time.Sleep(100 * time.Millisecond)

	file := filepath.Join(sub, "wind.wav")
	require.NoError(t, os.WriteFile(file, []byte("whoosh"), 0o644))

	for {
		ev := nextEvent(t, w)
		if ev.IsDir {
			continue
		}
		assert.Equal(t, file, ev.Path)
		return
	}
}

func TestWatcher_DefaultIgnoreHidesDotFiles(t *testing.T) {
	dir := t.TempDir()
	w := startWatcher(t, dir, Options{})

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".secret"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scratch.tmp"), []byte("x"), 0o644))
	visible := filepath.Join(dir, "visible.txt")
	require.NoError(t, os.WriteFile(visible, []byte("x"), 0o644))

	assert.Equal(t, visible, nextEvent(t, w).Path)
	assertQuiet(t, w)
}

func TestWatcher_CustomIgnore(t *testing.T) {
	dir := t.TempDir()
	m, err := ignore.New(ignore.Options{Root: dir, Patterns: []string{"*.psd", "cache/"}})
	require.NoError(t, err)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "cache"), 0o755))

	w := startWatcher(t, dir, Options{Ignore: m})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "layers.psd"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cache", "thumb.png"), []byte("x"), 0o644))
	// Hidden files are only skipped when the matcher asks for it.
	dot := filepath.Join(dir, ".keep")
	require.NoError(t, os.WriteFile(dot, []byte("x"), 0o644))

	assert.Equal(t, dot, nextEvent(t, w).Path)
	assertQuiet(t, w)
}
