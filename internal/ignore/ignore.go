// Package ignore decides which paths under the managed root are invisible to
// the watcher and the scanner. Patterns use .gitignore syntax.
package ignore

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// FileName is the per-tree ignore file read from the root.
const FileName = ".foldkeeperignore"

// DefaultPatterns hide editor droppings and OS metadata.
var DefaultPatterns = []string{
	".DS_Store",
	"Thumbs.db",
	"desktop.ini",
	"*.tmp",
	"*.temp",
	"*.swp",
	"*~",
}

// Options configures a Matcher.
type Options struct {
	// Root is the managed tree. Paths given to Match are relative to it.
	Root string

	// Patterns are extra .gitignore style rules. Nil means DefaultPatterns.
	Patterns []string

	// Hidden makes every dot-prefixed file or directory ignored.
	Hidden bool

	// ReadGitignore also loads .gitignore files found under Root.
	ReadGitignore bool
}

// Matcher reports whether a path should be ignored.
type Matcher struct {
	root    string
	hidden  bool
	matcher gitignore.Matcher
}

// New builds a matcher. The ignore file under Root is read when present.
func New(opts Options) (*Matcher, error) {
	patterns := opts.Patterns
	if patterns == nil {
		patterns = DefaultPatterns
	}

	var ps []gitignore.Pattern
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" && !strings.HasPrefix(p, "#") {
			ps = append(ps, gitignore.ParsePattern(p, nil))
		}
	}

	root := ""
	if opts.Root != "" {
		abs, err := filepath.Abs(opts.Root)
		if err != nil {
			return nil, err
		}
		root = abs

		fsys := osfs.New(root)
		if opts.ReadGitignore {
			gitPatterns, err := gitignore.ReadPatterns(fsys, nil)
			if err != nil {
				return nil, err
			}
			ps = append(ps, gitPatterns...)
		}

		filePatterns, err := readFile(fsys, FileName)
		if err != nil {
			return nil, err
		}
		ps = append(ps, filePatterns...)
	}

	return &Matcher{
		root:    root,
		hidden:  opts.Hidden,
		matcher: gitignore.NewMatcher(ps),
	}, nil
}

// MustNew is New for patterns known to be valid and no root.
func MustNew(patterns []string, hidden bool) *Matcher {
	m, err := New(Options{Patterns: patterns, Hidden: hidden})
	if err != nil {
		panic(err)
	}
	return m
}

func readFile(fsys billy.Filesystem, name string) ([]gitignore.Pattern, error) {
	f, err := fsys.Open(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var ps []gitignore.Pattern
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ps = append(ps, gitignore.ParsePattern(line, nil))
	}
	return ps, sc.Err()
}

// Root returns the absolute root, or "" when the matcher has none.
func (m *Matcher) Root() string { return m.root }

// Rel converts an absolute path under the root to a slash separated relative
// path. ok is false for paths outside the root.
func (m *Matcher) Rel(abs string) (string, bool) {
	if m.root == "" {
		return filepath.ToSlash(abs), true
	}
	rel, err := filepath.Rel(m.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// Match reports whether the slash separated relative path is ignored.
func (m *Matcher) Match(rel string, isDir bool) bool {
	rel = strings.Trim(path.Clean("/"+filepath.ToSlash(rel)), "/")
	if rel == "" {
		return false
	}

	segments := strings.Split(rel, "/")
	if m.hidden {
		for _, s := range segments {
			if strings.HasPrefix(s, ".") {
				return true
			}
		}
	}
	return m.matcher.Match(segments, isDir)
}

// MatchAbs is Match for an absolute path. Paths outside the root are ignored.
func (m *Matcher) MatchAbs(abs string, isDir bool) bool {
	rel, ok := m.Rel(abs)
	if !ok {
		return true
	}
	return m.Match(rel, isDir)
}

// MatchPath is MatchAbs with isDir taken from the file system.
func (m *Matcher) MatchPath(abs string) bool {
	isDir := false
	if info, err := os.Lstat(abs); err == nil {
		isDir = info.IsDir()
	}
	return m.MatchAbs(abs, isDir)
}
