package conventions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Tree enumerates directories below the managed root.
// Paths passed in and names returned are relative and slash-separated.
type Tree interface {
	ChildDirs(ctx context.Context, dir string) ([]string, error)
}

// OSTree reads directories from the local file system.
type OSTree struct {
	Root string
}

// NewOSTree returns a Tree rooted at root.
func NewOSTree(root string) *OSTree {
	return &OSTree{Root: root}
}

// ChildDirs returns the names of the non-hidden directories directly inside dir.
func (t *OSTree) ChildDirs(ctx context.Context, dir string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	full := filepath.Join(t.Root, filepath.FromSlash(dir))
	entries, err := os.ReadDir(full)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", full, err)
	}

	var dirs []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		dirs = append(dirs, e.Name())
	}
	return dirs, nil
}
