// Package fsops renames files inside the managed tree.
package fsops

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"syscall"

	domainerrors "github.com/foldkeeper/foldkeeper/internal/errors"
	"github.com/foldkeeper/foldkeeper/internal/ratelimit"
)

// OSRenamer renames files on the host file system. Paths are slash separated
// and relative to Root. It implements processor.Renamer.
type OSRenamer struct {
	root    string
	limiter *ratelimit.KeyedRateLimiter
	logger  *slog.Logger
	dryRun  bool
}

// Options configures an OSRenamer.
type Options struct {
	// Limiter throttles renames per destination directory. Nil means unlimited.
	Limiter *ratelimit.KeyedRateLimiter
	Logger  *slog.Logger

	// DryRun validates and logs renames without touching the disk.
	DryRun bool
}

// NewOSRenamer returns a renamer rooted at root.
func NewOSRenamer(root string, opts Options) (*OSRenamer, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, domainerrors.PathInvalidf("root %q is not a directory", root)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &OSRenamer{
		root:    abs,
		limiter: opts.Limiter,
		logger:  logger,
		dryRun:  opts.DryRun,
	}, nil
}

// Root returns the absolute managed root.
func (r *OSRenamer) Root() string { return r.root }

// Rename moves oldPath to newPath, creating missing parent directories.
// Renaming a path to itself is a no-op. An existing different file at
// newPath is a RENAME_CONFLICT; a target that differs only in case from the
// source is treated as the same file.
func (r *OSRenamer) Rename(ctx context.Context, oldPath, newPath string) error {
	if oldPath == newPath {
		return nil
	}

	src, err := r.abs(oldPath)
	if err != nil {
		return err
	}
	dst, err := r.abs(newPath)
	if err != nil {
		return err
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx, path.Dir(newPath)); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	srcInfo, err := os.Lstat(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domainerrors.Wrapf(err, domainerrors.CodeRenameFailed, "source %q does not exist", oldPath)
		}
		return domainerrors.Wrapf(err, domainerrors.CodeRenameFailed, "stat %q", oldPath)
	}

	caseOnly := false
	if dstInfo, err := os.Lstat(dst); err == nil {
		// Case-insensitive file systems report the source itself.
		if !os.SameFile(srcInfo, dstInfo) {
			return domainerrors.RenameConflictf("%q already exists", newPath)
		}
		caseOnly = true
	} else if !errors.Is(err, fs.ErrNotExist) {
		return domainerrors.Wrapf(err, domainerrors.CodeRenameFailed, "stat %q", newPath)
	}

	if r.dryRun {
		r.logger.Info("dry run rename", "from", oldPath, "to", newPath)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return domainerrors.Wrapf(err, domainerrors.CodeRenameFailed, "create directory for %q", newPath)
	}

	if caseOnly {
		err = renameViaTemp(src, dst)
	} else {
		err = moveFile(src, dst)
	}
	if errors.Is(err, fs.ErrExist) {
		// Another writer created the target after the check above.
		return domainerrors.RenameConflictf("%q already exists", newPath)
	}
	if err != nil {
		return domainerrors.Wrapf(err, domainerrors.CodeRenameFailed, "rename %q to %q", oldPath, newPath)
	}

	r.logger.Debug("file renamed", "from", oldPath, "to", newPath)
	return nil
}

// abs maps a root-relative path to an absolute one, refusing anything that
// would leave the root.
func (r *OSRenamer) abs(rel string) (string, error) {
	if rel == "" || strings.ContainsRune(rel, 0) {
		return "", domainerrors.PathInvalidf("invalid path %q", rel)
	}
	clean := path.Clean(strings.ReplaceAll(rel, "\\", "/"))
	if path.IsAbs(clean) || clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", domainerrors.PathInvalidf("path %q is outside the managed root", rel)
	}
	return filepath.Join(r.root, filepath.FromSlash(clean)), nil
}

// renameViaTemp performs a case-only rename in two steps so it also works on
// case-insensitive file systems.
func renameViaTemp(src, dst string) error {
	tmp := fmt.Sprintf("%s.foldkeeper-%d.tmp", src, os.Getpid())
	if err := os.Rename(src, tmp); err != nil {
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		if rbErr := os.Rename(tmp, src); rbErr != nil {
			return fmt.Errorf("%w (restore failed: %v)", err, rbErr)
		}
		return err
	}
	return nil
}

// moveFile renames src to dst without replacing an existing dst, falling back
// to copy and delete when the two sit on different devices. An existing target
// is reported as fs.ErrExist.
func moveFile(src, dst string) error {
	err := renameNoReplace(src, dst)
	if err == nil || !errors.Is(err, syscall.EXDEV) {
		return err
	}
	return copyAndDelete(src, dst)
}

func copyAndDelete(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}

	if err := os.Remove(src); err != nil {
		os.Remove(dst)
		return err
	}
	return nil
}
