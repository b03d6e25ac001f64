// Package scanner walks the managed tree to find files that already exist,
// so a first run can process them the same way the watcher processes new ones.
package scanner

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/foldkeeper/foldkeeper/internal/ignore"
)

// WalkResult is one regular file found under the walk root.
type WalkResult struct {
	ModTime time.Time
	Path    string
	RelPath string // slash separated, relative to the walk root
	Size    int64
}

// Walker lists the files of a tree, skipping whatever the matcher ignores.
type Walker struct {
	log    *slog.Logger
	ignore *ignore.Matcher
}

// NewWalker returns a walker. A nil matcher skips hidden paths only.
func NewWalker(log *slog.Logger, matcher *ignore.Matcher) *Walker {
	if matcher == nil {
		matcher = ignore.MustNew(nil, true)
	}
	return &Walker{log: log, ignore: matcher}
}

// Walk streams the files under root. The channel is closed once the tree
// has been walked or ctx is done; unreadable entries are logged and skipped.
func (w *Walker) Walk(ctx context.Context, root string) <-chan WalkResult {
	out := make(chan WalkResult, 64)

	go func() {
		defer close(out)
		start := time.Now()
		n := 0
		err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			res, ok, skip := w.visit(ctx, root, p, d, err)
			if !ok {
				return skip
			}
			select {
			case out <- res:
				n++
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			w.log.Debug("walk interrupted", "root", root, "files", n)
		case err != nil:
			w.log.Error("walk failed", "root", root, "error", err)
		default:
			w.log.Debug("walk finished", "root", root, "files", n, "took", time.Since(start))
		}
	}()

	return out
}

// visit decides what to do with one entry. When ok is false the entry is
// not a file to report and skip is what WalkDir should get back.
func (w *Walker) visit(ctx context.Context, root, p string, d fs.DirEntry, walkErr error) (res WalkResult, ok bool, skip error) {
	if err := ctx.Err(); err != nil {
		return res, false, err
	}
	if walkErr != nil {
		w.log.Warn("cannot read entry", "path", p, "error", walkErr)
		return res, false, nil
	}

	rel, err := filepath.Rel(root, p)
	if err != nil || rel == "." {
		return res, false, nil
	}
	rel = filepath.ToSlash(rel)

	switch {
	case w.ignore.Match(rel, d.IsDir()):
		if d.IsDir() {
			return res, false, filepath.SkipDir
		}
		return res, false, nil
	case !d.Type().IsRegular():
		return res, false, nil
	}

	info, err := d.Info()
	if err != nil {
		w.log.Warn("cannot stat file", "path", p, "error", err)
		return res, false, nil
	}
	return WalkResult{ModTime: info.ModTime(), Path: p, RelPath: rel, Size: info.Size()}, true, nil
}

// Files returns the relative path of every file under root. On
// cancellation it returns what was found so far with the context error.
func (w *Walker) Files(ctx context.Context, root string) ([]string, error) {
	var files []string
	for r := range w.Walk(ctx, root) {
		files = append(files, r.RelPath)
	}
	return files, ctx.Err()
}
