// Package processor turns bursts of file system notifications into batched,
// debounced convention application.
package processor

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/foldkeeper/foldkeeper/internal/domain"
)

// PathClass is the outcome of classifying an incoming path.
type PathClass int

const (
	// PathValid is a regular file below the managed root.
	PathValid PathClass = iota
	// PathEmpty is an empty notification path.
	PathEmpty
	// PathOutsideRoot lies outside the managed root.
	PathOutsideRoot
	// PathHidden has a hidden segment (".git/...", ".DS_Store").
	PathHidden
	// PathShadow is a metadata shadow file ("x.meta", AppleDouble "._x").
	PathShadow
)

// String returns the string representation of a PathClass.
func (pc PathClass) String() string {
	switch pc {
	case PathValid:
		return "valid"
	case PathEmpty:
		return "empty"
	case PathOutsideRoot:
		return "outside-root"
	case PathHidden:
		return "hidden"
	case PathShadow:
		return "shadow"
	default:
		return "unknown"
	}
}

// classifyPath converts p to a slash-separated path relative to root and
// classifies it. Relative inputs are taken as already relative to root.
func classifyPath(root, p string) (string, PathClass) {
	if strings.TrimSpace(p) == "" {
		return "", PathEmpty
	}

	rel := p
	if root != "" && filepath.IsAbs(p) {
		r, err := filepath.Rel(root, p)
		if err != nil {
			return "", PathOutsideRoot
		}
		rel = r
	}
	rel = domain.NormalizePath(filepath.ToSlash(rel))

	switch {
	case rel == "":
		return "", PathEmpty
	case rel == ".." || strings.HasPrefix(rel, "../") || path.IsAbs(rel):
		return "", PathOutsideRoot
	}

	base := path.Base(rel)
	if strings.HasPrefix(base, "._") || strings.EqualFold(path.Ext(base), ".meta") {
		return rel, PathShadow
	}
	for seg := range strings.SplitSeq(rel, "/") {
		if strings.HasPrefix(seg, ".") {
			return rel, PathHidden
		}
	}
	return rel, PathValid
}

func parentDir(p string) string {
	d := path.Dir(p)
	if d == "." || d == "/" {
		return ""
	}
	return d
}
