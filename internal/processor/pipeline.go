package processor

import (
	"context"
	"log/slog"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/foldkeeper/foldkeeper/internal/conventions"
	"github.com/foldkeeper/foldkeeper/internal/domain"
	domainerrors "github.com/foldkeeper/foldkeeper/internal/errors"
	"github.com/foldkeeper/foldkeeper/internal/id"
)

// Config tunes batching, debouncing and review routing.
type Config struct {
	AutoProcessEnabled    bool
	ShowDialogEnabled     bool
	BatchSize             int
	DialogThreshold       int
	ProcessCooldown       time.Duration
	DialogCooldown        time.Duration
	SettingsCacheLifetime time.Duration
}

// DefaultConfig returns the stock pipeline settings.
func DefaultConfig() Config {
	return Config{
		AutoProcessEnabled:    true,
		ShowDialogEnabled:     true,
		BatchSize:             50,
		DialogThreshold:       10,
		ProcessCooldown:       500 * time.Millisecond,
		DialogCooldown:        5 * time.Second,
		SettingsCacheLifetime: 5 * time.Minute,
	}
}

// ChangeSet is one delivery of file system notifications. MovedFrom and
// MovedTo are paired by index.
type ChangeSet struct {
	Added     []string
	Removed   []string
	MovedFrom []string
	MovedTo   []string
}

// Empty reports whether the set carries no paths.
func (cs ChangeSet) Empty() bool {
	return len(cs.Added) == 0 && len(cs.Removed) == 0 && len(cs.MovedFrom) == 0 && len(cs.MovedTo) == 0
}

// ConventionStore is the part of *conventions.Store the pipeline needs.
type ConventionStore interface {
	Initialized() bool
	EnsureInitialized(ctx context.Context) error
	Load(ctx context.Context) error
	Dirty() bool
	Save(ctx context.Context) error
	Settings() conventions.Settings
	Resolve(filePath string) *domain.Convention
	Register(dir string) (*domain.Convention, bool)
	IsGloballyExcluded(p string) bool
}

// Renamer renames a file. Both paths are relative to the managed root.
// Renaming a path to itself is a no-op.
type Renamer interface {
	Rename(ctx context.Context, oldPath, newPath string) error
}

// Reviewer hands a batch to a human. RequestReview must not block; decisions
// come back through Pipeline.ApplyReview.
type Reviewer interface {
	RequestReview(ctx context.Context, paths []string)
}

// Options wires a Pipeline.
type Options struct {
	Store    ConventionStore
	Renamer  Renamer
	Reviewer Reviewer
	Stats    *StatsSink
	Logger   *slog.Logger
	Root     string
	Config   Config
}

// Pipeline accepts notifications, filters and debounces them, and applies
// conventions to new files in batches. At most one cycle runs at a time.
type Pipeline struct {
	mu          sync.Mutex
	pending     []string
	pendingSet  map[string]struct{}
	busy        bool
	closed      bool
	timer       *time.Timer
	timerGen    uint64
	lastProcess time.Time
	lastDialog  time.Time
	storeLoaded time.Time

	known     *knownFiles
	listeners listeners
	wg        sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	cfg      Config
	root     string
	store    ConventionStore
	renamer  Renamer
	reviewer Reviewer
	stats    *StatsSink
	logger   *slog.Logger
}

// New creates a pipeline. Store and Renamer are required.
func New(opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := opts.Config
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	stats := opts.Stats
	if stats == nil {
		stats = NewStatsSink(nil, logger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		pendingSet: make(map[string]struct{}),
		known:      newKnownFiles(),
		ctx:        ctx,
		cancel:     cancel,
		cfg:        cfg,
		root:       opts.Root,
		store:      opts.Store,
		renamer:    opts.Renamer,
		reviewer:   opts.Reviewer,
		stats:      stats,
		logger:     logger,
	}
}

// Subscribe registers a listener and returns a function that removes it.
func (p *Pipeline) Subscribe(l Listener) func() {
	return p.listeners.add(l)
}

// Initialize loads the convention store and persisted totals, then schedules
// any notifications that arrived before the store was ready.
func (p *Pipeline) Initialize(ctx context.Context) error {
	if err := p.store.EnsureInitialized(ctx); err != nil {
		return err
	}
	if err := p.stats.Load(ctx); err != nil {
		p.logger.Warn("failed to load persisted stats", "error", err)
	}

	p.mu.Lock()
	p.storeLoaded = time.Now()
	p.scheduleLocked()
	pending := len(p.pending)
	p.mu.Unlock()

	p.logger.Info("pipeline initialized", "pending", pending)
	return nil
}

// OnChange ingests one set of notifications.
func (p *Pipeline) OnChange(ctx context.Context, cs ChangeSet) {
	if cs.Empty() {
		return
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}

	queueChanged := false
	now := time.Now()

	removed := slices.Clone(cs.Removed)
	added := slices.Clone(cs.Added)
	pairs := min(len(cs.MovedFrom), len(cs.MovedTo))
	removed = append(removed, cs.MovedFrom[pairs:]...)
	added = append(added, cs.MovedTo[pairs:]...)

	for _, raw := range removed {
		rel, class := classifyPath(p.root, raw)
		if class == PathEmpty || class == PathOutsideRoot {
			continue
		}
		if p.forgetLocked(rel) {
			queueChanged = true
		}
	}

	for i := range pairs {
		from, fromClass := classifyPath(p.root, cs.MovedFrom[i])
		to, toClass := classifyPath(p.root, cs.MovedTo[i])
		switch {
		case fromClass != PathValid && toClass == PathValid:
			added = append(added, cs.MovedTo[i])
		case toClass != PathValid:
			if fromClass != PathEmpty && fromClass != PathOutsideRoot && p.forgetLocked(from) {
				queueChanged = true
			}
		default:
			if p.moveLocked(from, to, now) {
				queueChanged = true
			}
		}
	}

	initialized := p.store.Initialized()
	for _, raw := range added {
		rel, class := classifyPath(p.root, raw)
		if class != PathValid {
			p.logger.Debug("ignoring path", "path", raw, "reason", class.String())
			continue
		}
		if p.known.has(rel) {
			continue
		}
		if initialized && p.store.IsGloballyExcluded(rel) {
			continue
		}
		if !p.cfg.AutoProcessEnabled {
			p.known.set(rel, now)
			continue
		}
		if _, queued := p.pendingSet[rel]; queued {
			continue
		}
		p.pending = append(p.pending, rel)
		p.pendingSet[rel] = struct{}{}
		queueChanged = true
	}

	p.scheduleLocked()
	var snapshot []string
	if queueChanged {
		snapshot = slices.Clone(p.pending)
	}
	p.mu.Unlock()

	if queueChanged {
		p.emitPending(snapshot)
	}
}

// forgetLocked drops rel and anything below it from the known set and queue.
func (p *Pipeline) forgetLocked(rel string) bool {
	p.known.removeTree(rel)
	return p.dropPendingLocked(func(k string) bool { return inTree(k, rel) })
}

// moveLocked renames known and queued entries from one location to another
// without reprocessing them.
func (p *Pipeline) moveLocked(from, to string, now time.Time) bool {
	rekeyed := p.known.moveTree(from, to)

	changed := false
	for i, k := range p.pending {
		if !inTree(k, from) {
			continue
		}
		delete(p.pendingSet, k)
		p.pending[i] = to + strings.TrimPrefix(k, from)
		p.pendingSet[p.pending[i]] = struct{}{}
		changed = true
	}

	if rekeyed == 0 && !changed {
		p.known.set(to, now)
	}
	return changed
}

func (p *Pipeline) dropPendingLocked(match func(string) bool) bool {
	before := len(p.pending)
	p.pending = slices.DeleteFunc(p.pending, func(k string) bool {
		if match(k) {
			delete(p.pendingSet, k)
			return true
		}
		return false
	})
	return len(p.pending) != before
}

// scheduleLocked arms the deferred flush. The first notification of a burst
// starts the full cooldown; later ones join the queue. Since a cycle starts
// when its timer fires, consecutive timer cycles are at least one cooldown apart.
func (p *Pipeline) scheduleLocked() {
	if p.closed || p.busy || p.timer != nil || len(p.pending) == 0 {
		return
	}
	if !p.store.Initialized() {
		return
	}

	p.timerGen++
	gen := p.timerGen
	p.wg.Add(1)
	p.timer = time.AfterFunc(p.cfg.ProcessCooldown, func() { p.onTimer(gen) })
}

func (p *Pipeline) onTimer(gen uint64) {
	defer p.wg.Done()

	p.mu.Lock()
	if p.timer == nil || gen != p.timerGen {
		p.mu.Unlock()
		return
	}
	p.timer = nil
	p.mu.Unlock()

	p.runCycle(p.ctx)
}

func (p *Pipeline) stopTimerLocked() {
	if p.timer == nil {
		return
	}
	if p.timer.Stop() {
		p.wg.Done()
	}
	p.timer = nil
}

// Flush stops the deferred flush and processes the queue on the calling
// goroutine, bypassing the cooldown. If a cycle is already running Flush
// returns no results and the queue is picked up when that cycle ends.
func (p *Pipeline) Flush(ctx context.Context) ([]domain.ProcessingResult, error) {
	if err := p.store.EnsureInitialized(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, nil
	}
	if !p.busy {
		p.stopTimerLocked()
	}
	p.mu.Unlock()

	return p.runCycle(ctx), nil
}

func (p *Pipeline) runCycle(ctx context.Context) []domain.ProcessingResult {
	p.mu.Lock()
	if p.closed || p.busy || len(p.pending) == 0 || !p.store.Initialized() {
		p.mu.Unlock()
		return nil
	}
	p.busy = true
	queue := p.pending
	p.pending = nil
	p.pendingSet = make(map[string]struct{})
	start := time.Now()
	p.lastProcess = start
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.busy = false
		p.scheduleLocked()
		p.mu.Unlock()
	}()

	p.emitPending(nil)
	p.refreshStore(ctx, start)

	files := make([]string, 0, len(queue))
	for _, rel := range queue {
		if p.store.IsGloballyExcluded(rel) || !p.known.add(rel, start) {
			continue
		}
		files = append(files, rel)
	}

	cycleID, err := id.Generate(id.PrefixCycle)
	if err != nil {
		p.logger.Warn("failed to generate cycle id", "error", err)
	}

	settings := p.store.Settings()
	var results []domain.ProcessingResult
	index := 0
	for chunk := range slices.Chunk(files, p.cfg.BatchSize) {
		if ctx.Err() != nil {
			p.logger.Info("processing cycle cancelled", "cycle", cycleID, "remaining", len(files)-index*p.cfg.BatchSize)
			break
		}

		reviewed, batchResults := p.route(ctx, chunk, settings)
		results = append(results, batchResults...)

		batch := Batch{
			CycleID:  cycleID,
			Index:    index,
			Size:     len(chunk),
			Results:  len(batchResults),
			Reviewed: reviewed,
		}
		p.listeners.each(func(l Listener) { l.BatchProcessed(batch) })
		index++
	}

	if p.store.Dirty() {
		if err := p.store.Save(ctx); err != nil {
			p.logger.Error("failed to save conventions", "error", err)
		}
	}

	p.stats.Record(ctx, results, time.Now())
	stats := p.Stats()
	p.listeners.each(func(l Listener) { l.StatsUpdated(stats) })

	p.logger.Info("processing cycle complete",
		"cycle", cycleID,
		"files", len(files),
		"batches", index,
		"results", len(results),
		"duration", time.Since(start),
	)
	return results
}

// refreshStore reloads the convention store once the cached copy is older
// than SettingsCacheLifetime. Unsaved edits are never discarded.
func (p *Pipeline) refreshStore(ctx context.Context, now time.Time) {
	p.mu.Lock()
	loaded := p.storeLoaded
	if loaded.IsZero() {
		p.storeLoaded = now
	}
	p.mu.Unlock()

	lifetime := p.cfg.SettingsCacheLifetime
	if loaded.IsZero() || lifetime <= 0 || now.Sub(loaded) < lifetime || p.store.Dirty() {
		return
	}
	if err := p.store.Load(ctx); err != nil {
		p.logger.Warn("failed to reload conventions, keeping cached copy", "error", err)
		return
	}

	p.mu.Lock()
	p.storeLoaded = now
	p.mu.Unlock()
	p.logger.Debug("conventions reloaded")
}

// route registers the containing directories of a chunk and then either
// hands it to the reviewer or applies conventions directly.
func (p *Pipeline) route(ctx context.Context, chunk []string, settings conventions.Settings) (bool, []domain.ProcessingResult) {
	p.registerDirs(chunk)

	if p.shouldReview(len(chunk), settings) {
		p.logger.Info("requesting review", "files", len(chunk))
		p.reviewer.RequestReview(ctx, slices.Clone(chunk))
		return true, nil
	}
	return false, p.autoApply(ctx, chunk)
}

func (p *Pipeline) registerDirs(chunk []string) {
	seen := make(map[string]struct{})
	for _, rel := range chunk {
		dir := parentDir(rel)
		if dir == "" {
			continue
		}
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		p.store.Register(dir)
	}
}

func (p *Pipeline) shouldReview(size int, settings conventions.Settings) bool {
	if p.reviewer == nil || !p.cfg.ShowDialogEnabled || !settings.ShowImportDialog {
		return false
	}
	if size > p.cfg.DialogThreshold {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	if now.Sub(p.lastDialog) <= p.cfg.DialogCooldown {
		return false
	}
	p.lastDialog = now
	return true
}

// autoApply renames every file governed by an auto-applying convention.
// Targets already claimed earlier in the chunk are reported as conflicts.
func (p *Pipeline) autoApply(ctx context.Context, chunk []string) []domain.ProcessingResult {
	claimed := make(map[string]string)
	var results []domain.ProcessingResult
	for _, rel := range chunk {
		conv := p.store.Resolve(rel)
		if conv == nil || !conv.AutoApply {
			continue
		}
		base, ext := domain.SplitName(path.Base(rel))
		target := path.Join(parentDir(rel), conv.Apply(base, ext))
		results = append(results, p.renameOne(ctx, rel, target, conv.Path, claimed))
	}
	return results
}

// renameOne performs a single rename and records its outcome.
func (p *Pipeline) renameOne(ctx context.Context, rel, target, conventionPath string, claimed map[string]string) domain.ProcessingResult {
	res := newResult(rel, conventionPath)

	key := strings.ToLower(target)
	if prev, taken := claimed[key]; taken {
		err := domainerrors.RenameConflictf("%q and %q both map to %q", prev, rel, target)
		p.logger.Warn("rename skipped", "path", rel, "error", err)
		return failed(res, target, err)
	}
	claimed[key] = rel

	if target == rel {
		res.Kind = domain.ResultUnchanged
		res.NewPath = rel
		res.Success = true
		return res
	}

	if err := p.renamer.Rename(ctx, rel, target); err != nil {
		p.logger.Warn("rename failed", "path", rel, "target", target, "error", err)
		return failed(res, target, err)
	}

	p.known.remove(rel)
	p.known.set(target, res.Timestamp)

	res.NewPath = target
	res.Success = true
	res.Kind = domain.ResultRenamed
	if parentDir(rel) != parentDir(target) {
		res.Kind = domain.ResultMoved
	}
	p.logger.Debug("renamed", "from", rel, "to", target)
	return res
}

func newResult(rel, conventionPath string) domain.ProcessingResult {
	resultID, err := uuid.NewV7()
	if err != nil {
		resultID = uuid.New()
	}
	return domain.ProcessingResult{
		ID:             resultID.String(),
		Timestamp:      time.Now(),
		OriginalPath:   rel,
		ConventionPath: conventionPath,
	}
}

func failed(res domain.ProcessingResult, target string, err error) domain.ProcessingResult {
	res.NewPath = target
	res.Kind = domain.ResultFailed
	res.ErrorMessage = err.Error()
	return res
}

// Stats returns the current reporting view.
func (p *Pipeline) Stats() Stats {
	totals := p.stats.Totals()
	p.mu.Lock()
	pending := len(p.pending)
	lastCycle := p.lastProcess
	p.mu.Unlock()

	return Stats{
		LastUpdate:     totals.LastUpdate,
		LastCycle:      lastCycle,
		PendingCount:   pending,
		KnownCount:     p.known.len(),
		TotalProcessed: totals.Processed,
		TotalRenamed:   totals.Renamed,
		TotalMoved:     totals.Moved,
	}
}

// Pending returns a copy of the queued paths.
func (p *Pipeline) Pending() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.pending)
}

// Recent returns up to limit of the latest results, newest first.
func (p *Pipeline) Recent(limit int) []domain.ProcessingResult {
	return p.stats.Recent(limit)
}

// IsKnown reports whether rel has already been seen.
func (p *Pipeline) IsKnown(rel string) bool {
	return p.known.has(domain.NormalizePath(rel))
}

// MarkKnown records paths as already seen without queuing them, so files
// present before watching started are never treated as imports. It returns
// how many were newly recorded.
func (p *Pipeline) MarkKnown(paths []string) int {
	now := time.Now()
	n := 0
	for _, raw := range paths {
		rel, class := classifyPath(p.root, raw)
		if class != PathValid {
			continue
		}
		if p.known.add(rel, now) {
			n++
		}
	}
	return n
}

// Clear forgets every known file, drops the queue and resets the totals.
func (p *Pipeline) Clear(ctx context.Context) {
	p.mu.Lock()
	p.stopTimerLocked()
	p.pending = nil
	p.pendingSet = make(map[string]struct{})
	p.lastProcess = time.Time{}
	p.lastDialog = time.Time{}
	p.mu.Unlock()

	p.known.reset()
	p.stats.Reset(ctx, time.Now())

	stats := p.Stats()
	p.listeners.each(func(l Listener) {
		l.Cleared()
		l.StatsUpdated(stats)
	})
	p.logger.Info("pipeline cleared")
}

// Close cancels the deferred flush and waits for a running timer cycle to
// finish. It must not be called from a Listener.
func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.stopTimerLocked()
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}

func (p *Pipeline) emitPending(paths []string) {
	p.listeners.each(func(l Listener) { l.PendingChanged(paths) })
}
