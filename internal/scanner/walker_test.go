package scanner

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/foldkeeper/foldkeeper/internal/ignore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeFiles(t *testing.T, root string, rels ...string) {
	t.Helper()
	for _, rel := range rels {
		full := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(rel), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func collect(t *testing.T, w *Walker, root string) []WalkResult {
	t.Helper()
	var results []WalkResult
	for r := range w.Walk(context.Background(), root) {
		results = append(results, r)
	}
	return results
}

func TestWalker_Walk_EmptyDirectory(t *testing.T) {
	results := collect(t, NewWalker(testLogger(), nil), t.TempDir())
	if len(results) != 0 {
		t.Errorf("expected 0 results, got %d", len(results))
	}
}

func TestWalker_Walk_NestedDirectories(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "readme.txt", "Art/hero.png", "Art/Characters/Deep/boss.png")

	files, err := NewWalker(testLogger(), nil).Files(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	slices.Sort(files)

	want := []string{"Art/Characters/Deep/boss.png", "Art/hero.png", "readme.txt"}
	if !slices.Equal(files, want) {
		t.Errorf("Files() = %v, want %v", files, want)
	}
}

func TestWalker_Walk_SkipsHidden(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "Art/hero.png", "Art/.hidden.png", ".foldkeeper/000001.vlog")

	results := collect(t, NewWalker(testLogger(), nil), root)
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Path != filepath.Join(root, "Art", "hero.png") {
		t.Errorf("expected Art/hero.png, got %s", results[0].Path)
	}
}

func TestWalker_Walk_IgnorePatterns(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "Art/hero.png", "Art/hero.psd", "build/out.png", "Audio/door.wav")

	matcher, err := ignore.New(ignore.Options{Root: root, Patterns: []string{"*.psd", "build/"}, Hidden: true})
	if err != nil {
		t.Fatal(err)
	}

	files, err := NewWalker(testLogger(), matcher).Files(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	slices.Sort(files)

	want := []string{"Art/hero.png", "Audio/door.wav"}
	if !slices.Equal(files, want) {
		t.Errorf("Files() = %v, want %v", files, want)
	}
}

func TestWalker_Walk_ContextCancellation(t *testing.T) {
	root := t.TempDir()
	for i := range 10 {
		writeFiles(t, root, filepath.ToSlash(filepath.Join("Art", string(rune('a'+i))+".png")))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	files, err := NewWalker(testLogger(), nil).Files(ctx, root)
	if err == nil {
		t.Error("expected context error")
	}
	if len(files) > 5 {
		t.Errorf("expected few or no results due to cancellation, got %d", len(files))
	}
}

func TestWalker_Walk_Metadata(t *testing.T) {
	root := t.TempDir()
	before := time.Now().Add(-time.Second)
	writeFiles(t, root, "Audio/door.wav")
	after := time.Now().Add(time.Second)

	results := collect(t, NewWalker(testLogger(), nil), root)
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}

	r := results[0]
	if r.RelPath != "Audio/door.wav" {
		t.Errorf("RelPath = %q, want Audio/door.wav", r.RelPath)
	}
	if r.Size != int64(len("Audio/door.wav")) {
		t.Errorf("Size = %d", r.Size)
	}
	if r.ModTime.Before(before) || r.ModTime.After(after) {
		t.Errorf("ModTime %v outside [%v, %v]", r.ModTime, before, after)
	}
}
