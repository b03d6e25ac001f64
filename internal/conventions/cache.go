package conventions

import (
	"path"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/foldkeeper/foldkeeper/internal/domain"
)

// lookup returns the current cache, rebuilding it if a mutation dropped it.
// The rebuild happens under the read lock, so a writer cannot slip in between
// building and publishing.
func (s *Store) lookup() *lookup {
	if lk := s.cache.Load(); lk != nil {
		return lk
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if lk := s.cache.Load(); lk != nil {
		return lk
	}
	lk := buildLookup(s.conventions, s.settings)
	s.cache.Store(lk)
	return lk
}

// lookup is an immutable resolution snapshot.
type lookup struct {
	byPath        map[string]*domain.Convention
	excludeNames  map[string]struct{}
	excludeExts   map[string]struct{}
	projectPrefix string
	excludePaths  []string
}

func buildLookup(conventions map[string]*domain.Convention, settings Settings) *lookup {
	sorted := make([]*domain.Convention, 0, len(conventions))
	for _, c := range conventions {
		sorted = append(sorted, c)
	}
	slices.SortStableFunc(sorted, func(a, b *domain.Convention) int {
		if d := len(b.Path) - len(a.Path); d != 0 {
			return d
		}
		return strings.Compare(a.Path, b.Path)
	})

	lk := &lookup{
		byPath:        make(map[string]*domain.Convention, len(sorted)),
		excludeNames:  make(map[string]struct{}),
		excludeExts:   make(map[string]struct{}),
		projectPrefix: settings.ProjectPrefix,
	}
	for _, c := range sorted {
		key := foldKey(c.Path)
		if _, taken := lk.byPath[key]; taken {
			continue
		}
		lk.byPath[key] = c.Clone()
	}

	for _, f := range settings.GlobalExcludeFolders {
		f = foldKey(normalize(f))
		switch {
		case f == "":
		case strings.Contains(f, "/"):
			lk.excludePaths = append(lk.excludePaths, f)
		default:
			lk.excludeNames[f] = struct{}{}
		}
	}
	for _, e := range settings.GlobalExcludeExtensions {
		if e = domain.NormalizeExtension(e); e != "" {
			lk.excludeExts[strings.ToLower(e)] = struct{}{}
		}
	}
	return lk
}

func (lk *lookup) excluded(p string) bool {
	if p == "" {
		return false
	}
	key := foldKey(p)

	if _, ok := lk.excludeExts[path.Ext(key)]; ok {
		return true
	}
	for _, ex := range lk.excludePaths {
		if key == ex || strings.HasPrefix(key, ex+"/") {
			return true
		}
	}
	for seg := range strings.SplitSeq(key, "/") {
		if _, ok := lk.excludeNames[seg]; ok {
			return true
		}
	}
	return false
}

// normalize produces the canonical store key form: slash-separated, cleaned, NFC.
func normalize(p string) string {
	return domain.NormalizePath(norm.NFC.String(p))
}

func foldKey(p string) string {
	return strings.ToLower(p)
}

func parentDir(p string) string {
	d := path.Dir(p)
	if d == "." || d == "/" {
		return ""
	}
	return d
}
