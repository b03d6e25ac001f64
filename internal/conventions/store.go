// Package conventions owns the set of directory conventions and resolves the
// convention governing any file path.
package conventions

import (
	"context"
	"log/slog"
	"path"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/foldkeeper/foldkeeper/internal/domain"
	domainerrors "github.com/foldkeeper/foldkeeper/internal/errors"
	"github.com/foldkeeper/foldkeeper/internal/validation"
)

// SnapshotVersion is the current persisted layout.
const SnapshotVersion = 1

// Persister loads and saves the store as an opaque blob.
// LoadConventions returns an error matching domainerrors.ErrStoreUnavailable
// when nothing has been saved yet.
type Persister interface {
	LoadConventions(ctx context.Context) (*Snapshot, error)
	SaveConventions(ctx context.Context, snap *Snapshot) error
}

// Settings are the store-wide switches.
type Settings struct {
	GlobalExcludeFolders    []string `json:"global_exclude_folders" yaml:"global_exclude_folders"`
	GlobalExcludeExtensions []string `json:"global_exclude_extensions" yaml:"global_exclude_extensions"`
	ProjectPrefix           string   `json:"project_prefix,omitempty" yaml:"project_prefix,omitempty"`
	ShowImportDialog        bool     `json:"show_import_dialog" yaml:"show_import_dialog"`
}

// DefaultSettings returns the settings used when nothing has been persisted.
func DefaultSettings() Settings {
	return Settings{
		GlobalExcludeFolders:    []string{".git", "node_modules", "Library", "Temp", "Logs", "obj"},
		GlobalExcludeExtensions: []string{".tmp", ".bak", ".swp"},
		ShowImportDialog:        true,
	}
}

func (s Settings) clone() Settings {
	s.GlobalExcludeFolders = slices.Clone(s.GlobalExcludeFolders)
	s.GlobalExcludeExtensions = slices.Clone(s.GlobalExcludeExtensions)
	return s
}

// Snapshot is the persisted form of the store.
type Snapshot struct {
	Conventions []*domain.Convention `json:"conventions" yaml:"conventions"`
	Settings    Settings             `json:"settings" yaml:"settings"`
	Version     int                  `json:"version" yaml:"version"`
}

// ChangeKind describes a committed store mutation.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeUpdated  ChangeKind = "updated"
	ChangeRemoved  ChangeKind = "removed"
	ChangeSettings ChangeKind = "settings"
	ChangeReset    ChangeKind = "reset"
)

// Change is delivered to subscribers after a mutation is committed.
type Change struct {
	Kind ChangeKind
	Path string
}

// Store holds conventions keyed by normalized directory path.
type Store struct {
	mu          sync.RWMutex
	conventions map[string]*domain.Convention
	settings    Settings
	initialized bool
	dirty       bool

	cache atomic.Pointer[lookup]

	listenerMu sync.Mutex
	listeners  map[int]func(Change)
	nextID     int

	tree      Tree
	persister Persister
	presets   []Preset
	validator *validation.Validator
	logger    *slog.Logger
}

// New creates an empty store. tree and persister may be nil: scans then find
// nothing and Load/Save only reset or keep in-memory state.
func New(tree Tree, persister Persister, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		conventions: make(map[string]*domain.Convention),
		settings:    DefaultSettings(),
		listeners:   make(map[int]func(Change)),
		tree:        tree,
		persister:   persister,
		presets:     DefaultPresets,
		validator:   validation.New(),
		logger:      logger,
	}
}

// SetPresets replaces the keyword presets used by ScanTopLevelOnly.
func (s *Store) SetPresets(presets []Preset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presets = presets
}

// Subscribe registers fn for change notifications and returns a function that removes it.
// Listeners run synchronously on the mutating goroutine, outside the store lock.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.listenerMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.listenerMu.Unlock()

	return func() {
		s.listenerMu.Lock()
		delete(s.listeners, id)
		s.listenerMu.Unlock()
	}
}

func (s *Store) notify(changes ...Change) {
	s.listenerMu.Lock()
	fns := make([]func(Change), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listenerMu.Unlock()

	for _, c := range changes {
		for _, fn := range fns {
			fn(c)
		}
	}
}

// invalidateLocked drops the lookup cache. Callers hold the write lock.
func (s *Store) invalidateLocked() {
	s.cache.Store(nil)
	s.dirty = true
}

// Resolve returns a copy of the convention governing filePath: the one
// registered at the longest ancestor of the file's directory. It returns nil
// when no ancestor is registered or the path is globally excluded.
func (s *Store) Resolve(filePath string) *domain.Convention {
	p := normalize(filePath)
	if p == "" {
		return nil
	}

	lk := s.lookup()
	if lk.excluded(p) {
		return nil
	}

	for dir := parentDir(p); ; dir = parentDir(dir) {
		if c, ok := lk.byPath[foldKey(dir)]; ok {
			resolved := c.Clone()
			if resolved.ProjectSpecific && resolved.ProjectPrefix == "" {
				resolved.ProjectPrefix = lk.projectPrefix
			}
			return resolved
		}
		if dir == "" {
			return nil
		}
	}
}

// ResolveDir returns the convention governing files placed directly in dir.
func (s *Store) ResolveDir(dir string) *domain.Convention {
	return s.Resolve(path.Join(normalize(dir), "_"))
}

// IsGloballyExcluded reports whether any segment of p is an excluded folder
// or p carries an excluded extension. Both checks ignore case.
func (s *Store) IsGloballyExcluded(p string) bool {
	return s.lookup().excluded(normalize(p))
}

// Register ensures a convention exists for dir. A new convention inherits the
// naming behaviour of its nearest registered ancestor and never auto-applies.
// The boolean reports whether a convention was created.
func (s *Store) Register(dir string) (*domain.Convention, bool) {
	c, created := s.register(dir, nil)
	if created {
		s.notify(Change{Kind: ChangeAdded, Path: c.Path})
	}
	return c, created
}

func (s *Store) register(dir string, preset *Preset) (*domain.Convention, bool) {
	p := normalize(dir)
	if p == "" {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing := s.getFoldLocked(p); existing != nil {
		return existing.Clone(), false
	}

	c := domain.NewConvention(p)
	c.InheritFrom(s.nearestAncestorLocked(p))
	if preset != nil {
		preset.ApplyTo(c)
	}
	c.AutoApply = false

	s.conventions[c.Path] = c
	s.invalidateLocked()
	s.logger.Debug("convention registered", "path", c.Path, "style", c.NamingStyle.String())
	return c.Clone(), true
}

// ScanChildren registers every direct child directory of parent that is not
// yet known and not excluded. Enumeration failures are logged and count as an
// empty scan; only context cancellation is returned.
func (s *Store) ScanChildren(ctx context.Context, parent string) (int, error) {
	parent = normalize(parent)
	names, ok := s.childDirs(ctx, parent)
	if !ok {
		return 0, ctx.Err()
	}

	created := 0
	var changes []Change
	for _, name := range names {
		child := normalize(path.Join(parent, name))
		if s.IsGloballyExcluded(child) {
			continue
		}
		if c, ok := s.register(child, nil); ok {
			created++
			changes = append(changes, Change{Kind: ChangeAdded, Path: c.Path})
		}
	}
	s.notify(changes...)
	return created, nil
}

// ScanTopLevelOnly removes every convention deeper than one level and
// registers each top-level directory, seeding new ones from keyword presets.
func (s *Store) ScanTopLevelOnly(ctx context.Context) (int, error) {
	s.mu.Lock()
	var changes []Change
	for key, c := range s.conventions {
		if c.Depth() > 1 {
			delete(s.conventions, key)
			changes = append(changes, Change{Kind: ChangeRemoved, Path: c.Path})
		}
	}
	if len(changes) > 0 {
		s.invalidateLocked()
	}
	presets := s.presets
	s.mu.Unlock()

	names, ok := s.childDirs(ctx, "")
	if !ok {
		s.notify(changes...)
		return 0, ctx.Err()
	}

	created := 0
	for _, name := range names {
		child := normalize(name)
		if s.IsGloballyExcluded(child) {
			continue
		}
		var preset *Preset
		if p, found := MatchPreset(presets, child); found {
			preset = &p
		}
		if c, ok := s.register(child, preset); ok {
			created++
			changes = append(changes, Change{Kind: ChangeAdded, Path: c.Path})
		}
	}

	s.logger.Info("top-level scan complete", "registered", created, "removed", len(changes)-created)
	s.notify(changes...)
	return created, nil
}

func (s *Store) childDirs(ctx context.Context, dir string) ([]string, bool) {
	if ctx.Err() != nil {
		return nil, false
	}
	if s.tree == nil {
		return nil, true
	}
	names, err := s.tree.ChildDirs(ctx, dir)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false
		}
		scanErr := domainerrors.Wrapf(err, domainerrors.CodeScanFailed, "scan %q", dir)
		s.logger.Warn("directory scan failed", "path", dir, "error", scanErr)
		return nil, true
	}
	return names, true
}

// Add inserts a new convention. The path must not be registered yet.
func (s *Store) Add(c *domain.Convention) error {
	if c == nil {
		return domainerrors.Validation("convention is required")
	}
	c = c.Clone()
	c.Path = normalize(c.Path)
	if err := s.validator.Validate(c); err != nil {
		return err
	}

	s.mu.Lock()
	if s.getFoldLocked(c.Path) != nil {
		s.mu.Unlock()
		return domainerrors.AlreadyExistsf("convention for %q already exists", c.Path)
	}
	c.Touch()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = c.UpdatedAt
	}
	s.conventions[c.Path] = c
	s.invalidateLocked()
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeAdded, Path: c.Path})
	return nil
}

// Update applies fn to the convention at dir. The path itself cannot change.
func (s *Store) Update(dir string, fn func(c *domain.Convention)) (*domain.Convention, error) {
	p := normalize(dir)

	s.mu.Lock()
	existing := s.getFoldLocked(p)
	if existing == nil {
		s.mu.Unlock()
		return nil, domainerrors.NotFoundf("no convention for %q", p)
	}

	edited := existing.Clone()
	fn(edited)
	edited.Path = existing.Path
	edited.CreatedAt = existing.CreatedAt
	if err := s.validator.Validate(edited); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	edited.Touch()
	s.conventions[existing.Path] = edited
	s.invalidateLocked()
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeUpdated, Path: edited.Path})
	return edited.Clone(), nil
}

// Remove deletes the convention at dir.
func (s *Store) Remove(dir string) error {
	p := normalize(dir)

	s.mu.Lock()
	existing := s.getFoldLocked(p)
	if existing == nil {
		s.mu.Unlock()
		return domainerrors.NotFoundf("no convention for %q", p)
	}
	delete(s.conventions, existing.Path)
	s.invalidateLocked()
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeRemoved, Path: existing.Path})
	return nil
}

// Get returns a copy of the convention registered exactly at dir.
func (s *Store) Get(dir string) (*domain.Convention, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.getFoldLocked(normalize(dir))
	if c == nil {
		return nil, false
	}
	return c.Clone(), true
}

// All returns copies of every convention, ordered by path.
func (s *Store) All() []*domain.Convention {
	s.mu.RLock()
	out := make([]*domain.Convention, 0, len(s.conventions))
	for _, c := range s.conventions {
		out = append(out, c.Clone())
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b *domain.Convention) int { return strings.Compare(a.Path, b.Path) })
	return out
}

// Len returns the number of conventions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conventions)
}

// Settings returns a copy of the store-wide settings.
func (s *Store) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.clone()
}

// SettingsPatch changes the settings whose fields are set.
type SettingsPatch struct {
	GlobalExcludeFolders    *[]string `json:"global_exclude_folders,omitempty" validate:"omitempty,max=256,dive,required,max=255"`
	GlobalExcludeExtensions *[]string `json:"global_exclude_extensions,omitempty" validate:"omitempty,max=256,dive,extension"`
	ProjectPrefix           *string   `json:"project_prefix,omitempty" validate:"omitempty,max=64"`
	ShowImportDialog        *bool     `json:"show_import_dialog,omitempty"`
}

// ApplySettings validates patch and applies it in one update. It returns the
// resulting settings.
func (s *Store) ApplySettings(patch SettingsPatch) (Settings, error) {
	if err := s.validator.Validate(patch); err != nil {
		return Settings{}, err
	}
	s.updateSettings(func(st *Settings) {
		if patch.GlobalExcludeFolders != nil {
			st.GlobalExcludeFolders = slices.Clone(*patch.GlobalExcludeFolders)
		}
		if patch.GlobalExcludeExtensions != nil {
			st.GlobalExcludeExtensions = slices.Clone(*patch.GlobalExcludeExtensions)
		}
		if patch.ProjectPrefix != nil {
			st.ProjectPrefix = *patch.ProjectPrefix
		}
		if patch.ShowImportDialog != nil {
			st.ShowImportDialog = *patch.ShowImportDialog
		}
	})
	return s.Settings(), nil
}

func (s *Store) updateSettings(fn func(*Settings)) {
	s.mu.Lock()
	fn(&s.settings)
	s.invalidateLocked()
	s.mu.Unlock()
	s.notify(Change{Kind: ChangeSettings})
}

// Clear removes every convention. Settings are kept.
func (s *Store) Clear() {
	s.mu.Lock()
	s.conventions = make(map[string]*domain.Convention)
	s.invalidateLocked()
	s.mu.Unlock()
	s.notify(Change{Kind: ChangeReset})
}

// Snapshot returns the persisted form of the store.
func (s *Store) Snapshot() *Snapshot {
	all := s.All()
	return &Snapshot{
		Version:     SnapshotVersion,
		Settings:    s.Settings(),
		Conventions: all,
	}
}

// Restore replaces the store contents with snap. Duplicate paths keep the first entry.
func (s *Store) Restore(snap *Snapshot) {
	conventions := make(map[string]*domain.Convention, len(snap.Conventions))
	for _, c := range snap.Conventions {
		if c == nil {
			continue
		}
		cp := c.Clone()
		cp.Path = normalize(cp.Path)
		if _, dup := conventions[cp.Path]; dup {
			s.logger.Warn("duplicate convention ignored", "path", cp.Path)
			continue
		}
		conventions[cp.Path] = cp
	}

	s.mu.Lock()
	s.conventions = conventions
	s.settings = snap.Settings.clone()
	s.initialized = true
	s.invalidateLocked()
	s.mu.Unlock()
	s.notify(Change{Kind: ChangeReset})
}

// Load replaces the store contents with the persisted blob. A missing blob
// resets to built-in defaults and marks the store dirty so the next Save
// writes it.
func (s *Store) Load(ctx context.Context) error {
	if s.persister == nil {
		s.resetDefaults()
		return nil
	}

	snap, err := s.persister.LoadConventions(ctx)
	if domainerrors.Is(err, domainerrors.ErrStoreUnavailable) {
		s.logger.Info("no saved conventions, starting from defaults")
		s.resetDefaults()
		return nil
	}
	if err != nil {
		return domainerrors.Wrap(err, domainerrors.CodeStoreUnavailable, "load conventions")
	}

	s.Restore(snap)
	s.mu.Lock()
	s.dirty = false
	s.mu.Unlock()
	s.logger.Debug("conventions loaded", "count", len(snap.Conventions))
	return nil
}

func (s *Store) resetDefaults() {
	s.mu.Lock()
	s.conventions = make(map[string]*domain.Convention)
	s.settings = DefaultSettings()
	s.initialized = true
	s.invalidateLocked()
	s.mu.Unlock()
	s.notify(Change{Kind: ChangeReset})
}

// EnsureInitialized loads the store once. Later calls are no-ops.
func (s *Store) EnsureInitialized(ctx context.Context) error {
	if s.Initialized() {
		return nil
	}
	return s.Load(ctx)
}

// Initialized reports whether Load or Restore has completed.
func (s *Store) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// Dirty reports whether the store changed since the last Load or Save.
func (s *Store) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// Save writes the store through the persister.
func (s *Store) Save(ctx context.Context) error {
	if s.persister == nil {
		s.mu.Lock()
		s.dirty = false
		s.mu.Unlock()
		return nil
	}
	if err := s.persister.SaveConventions(ctx, s.Snapshot()); err != nil {
		return domainerrors.Wrap(err, domainerrors.CodeStoreUnavailable, "save conventions")
	}
	s.mu.Lock()
	s.dirty = false
	s.mu.Unlock()
	return nil
}

// getFoldLocked finds a convention by exact path, falling back to a case-insensitive match.
func (s *Store) getFoldLocked(p string) *domain.Convention {
	if c, ok := s.conventions[p]; ok {
		return c
	}
	for key, c := range s.conventions {
		if strings.EqualFold(key, p) {
			return c
		}
	}
	return nil
}

func (s *Store) nearestAncestorLocked(p string) *domain.Convention {
	if p == "" {
		return nil
	}
	for dir := parentDir(p); ; dir = parentDir(dir) {
		if c := s.getFoldLocked(dir); c != nil {
			return c
		}
		if dir == "" {
			return nil
		}
	}
}
