//go:build linux

package watcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

const backendName = "inotify"

// watchMask selects the inotify events the backend needs. Files are
// reported on IN_CLOSE_WRITE, when the writer is done with them. IN_CREATE
// tells a new file from a rewritten one and lets new directories be watched
// as they appear.
const watchMask = unix.IN_CLOSE_WRITE | unix.IN_CREATE |
	unix.IN_MOVED_FROM | unix.IN_MOVED_TO |
	unix.IN_DELETE | unix.IN_DELETE_SELF

var errOverflow = errors.New("inotify queue overflowed, events were lost")

// pendingMove is an IN_MOVED_FROM waiting for its IN_MOVED_TO.
type pendingMove struct {
	timer   *time.Timer
	path    string
	isDir   bool
	ignored bool
}

// inotifyBackend watches a tree with one inotify descriptor and a watch per
// directory.
type inotifyBackend struct {
	log    *slog.Logger
	opts   Options
	fd     int
	events chan Event
	errs   chan error
	done   chan struct{}
	wg     sync.WaitGroup

	mu   sync.RWMutex
	dirs map[string]int // directory -> watch descriptor
	byWD map[int]string

	// created holds files seen on IN_CREATE that have not been closed yet.
	// Only the read loop touches it.
	created map[string]struct{}

	movesMu  sync.Mutex
	moves    map[uint32]*pendingMove
	stopped  bool
	stopOnce sync.Once
}

func newBackend(logger *slog.Logger, opts Options) (Backend, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("inotify init: %w", err)
	}
	return &inotifyBackend{
		log:    logger,
		opts:   opts,
		fd:     fd,
		events: make(chan Event, 128),
		errs:   make(chan error, 8),
		done:   make(chan struct{}),
		dirs:   make(map[string]int),
		byWD:   make(map[int]string),
		moves:  make(map[uint32]*pendingMove),

		created: make(map[string]struct{}),
	}, nil
}

// Watch adds path, and every directory below it, to the watch set. A file
// path watches its parent directory.
func (b *inotifyBackend) Watch(path string) error {
	path = filepath.Clean(path)
	info, err := os.Stat(path)
	switch {
	case err != nil:
		return err
	case !info.IsDir():
		return b.addWatch(filepath.Dir(path))
	}
	return b.watchTree(path, false)
}

// watchTree watches root and the directories below it. With announce set the
// files already inside are reported as added, which covers directories that
// arrive with content.
func (b *inotifyBackend) watchTree(root string, announce bool) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			b.log.Warn("skipping unreadable path", "path", p, "error", err)
			return nil
		}
		dir := d.IsDir()
		if b.opts.shouldIgnore(p, dir) {
			if dir {
				return filepath.SkipDir
			}
			return nil
		}
		switch {
		case dir:
			if err := b.addWatch(p); err != nil {
				b.log.Error("cannot watch directory", "path", p, "error", err)
			}
		case announce && d.Type().IsRegular():
			b.fileReady(p, EventAdded)
		}
		return nil
	})
}

func (b *inotifyBackend) addWatch(dir string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.dirs[dir]; ok {
		return nil
	}
	wd, err := unix.InotifyAddWatch(b.fd, dir, watchMask)
	if err != nil {
		return fmt.Errorf("inotify add watch %s: %w", dir, err)
	}
	b.dirs[dir] = wd
	b.byWD[wd] = dir
	return nil
}

// removeWatchTree drops the watches for dir and everything below it.
func (b *inotifyBackend) removeWatchTree(dir string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for p, wd := range b.dirs {
		if isUnder(p, dir) {
			//nolint:gosec // G115: watch descriptors are small and non-negative
			_, _ = unix.InotifyRmWatch(b.fd, uint32(wd))
			delete(b.dirs, p)
			delete(b.byWD, wd)
		}
	}
}

// renameWatches re-points watches after a directory moved. The kernel keeps
// the descriptors; only the path bookkeeping changes.
func (b *inotifyBackend) renameWatches(from, to string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for p, wd := range b.dirs {
		if isUnder(p, from) {
			moved := to + strings.TrimPrefix(p, from)
			delete(b.dirs, p)
			b.dirs[moved] = wd
			b.byWD[wd] = moved
		}
	}
}

func isUnder(p, dir string) bool {
	return p == dir || strings.HasPrefix(p, dir+string(filepath.Separator))
}

func (b *inotifyBackend) dirOf(wd int32) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	dir, ok := b.byWD[int(wd)]
	return dir, ok
}

// Start runs the read loop until ctx is done.
func (b *inotifyBackend) Start(ctx context.Context) error {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.readLoop(ctx)
	}()
	<-ctx.Done()
	return nil
}

// readLoop polls the descriptor with a short timeout so it notices ctx and
// Stop without a wakeup pipe.
func (b *inotifyBackend) readLoop(ctx context.Context) {
	buf := make([]byte, 64*(unix.SizeofInotifyEvent+unix.NAME_MAX+1))
	pfd := []unix.PollFd{{Fd: int32(b.fd), Events: unix.POLLIN}} //nolint:gosec // G115: fd fits in int32

	for ctx.Err() == nil {
		select {
		case <-b.done:
			return
		default:
		}

		ready, err := unix.Poll(pfd, 100)
		if errors.Is(err, unix.EINTR) || (err == nil && ready == 0) {
			continue
		}
		if err != nil {
			b.fail(fmt.Errorf("inotify poll: %w", err))
			return
		}

		n, err := unix.Read(b.fd, buf)
		switch {
		case errors.Is(err, unix.EINTR), errors.Is(err, unix.EAGAIN):
			continue
		case err != nil:
			b.fail(fmt.Errorf("inotify read: %w", err))
			return
		}
		b.dispatch(buf[:n])
	}
}

// dispatch walks the records in one read buffer.
func (b *inotifyBackend) dispatch(buf []byte) {
	for len(buf) >= unix.SizeofInotifyEvent {
		//nolint:gosec // G103: inotify records are read straight off the descriptor
		raw := (*unix.InotifyEvent)(unsafe.Pointer(&buf[0]))
		end := unix.SizeofInotifyEvent + int(raw.Len)
		if end > len(buf) {
			return
		}
		name := buf[unix.SizeofInotifyEvent:end]
		if i := bytes.IndexByte(name, 0); i >= 0 {
			name = name[:i]
		}
		mask, cookie, wd := raw.Mask, raw.Cookie, raw.Wd
		buf = buf[end:]

		if mask&unix.IN_Q_OVERFLOW != 0 {
			b.fail(errOverflow)
			continue
		}
		if dir, ok := b.dirOf(wd); ok {
			b.handle(filepath.Join(dir, string(name)), mask, cookie)
		}
	}
}

func (b *inotifyBackend) handle(path string, mask, cookie uint32) {
	isDir := mask&unix.IN_ISDIR != 0

	switch {
	case mask&unix.IN_MOVED_FROM != 0:
		b.movedFrom(path, isDir, cookie)
	case mask&unix.IN_MOVED_TO != 0:
		b.movedTo(path, isDir, cookie)
	case mask&unix.IN_CREATE != 0:
		switch {
		case b.opts.shouldIgnore(path, isDir):
		case isDir:
			if err := b.watchTree(path, true); err != nil {
				b.log.Warn("cannot watch new directory", "path", path, "error", err)
			}
		default:
			b.created[path] = struct{}{}
		}
	case mask&unix.IN_DELETE != 0:
		delete(b.created, path)
		if !b.opts.shouldIgnore(path, isDir) {
			b.emit(Event{Type: EventRemoved, Path: path, IsDir: isDir})
		}
	case mask&unix.IN_DELETE_SELF != 0:
		b.removeWatchTree(path)
	case mask&unix.IN_CLOSE_WRITE != 0:
		if !b.opts.shouldIgnore(path, false) {
			b.fileReady(path, b.writeKind(path))
		}
	}
}

// writeKind tells a freshly created file from a rewrite of one that already
// existed.
func (b *inotifyBackend) writeKind(path string) EventType {
	if _, ok := b.created[path]; ok {
		delete(b.created, path)
		return EventAdded
	}
	return EventModified
}

// movedFrom parks the first half of a rename until its partner arrives or
// the move window closes.
func (b *inotifyBackend) movedFrom(path string, isDir bool, cookie uint32) {
	pm := &pendingMove{path: path, isDir: isDir, ignored: b.opts.shouldIgnore(path, isDir)}
	delete(b.created, path)

	b.movesMu.Lock()
	defer b.movesMu.Unlock()
	if b.stopped {
		return
	}
	pm.timer = time.AfterFunc(b.opts.MoveWindow, func() { b.expireMove(cookie) })
	b.moves[cookie] = pm
}

// expireMove reports an unpaired IN_MOVED_FROM as a removal: the entry left
// the watched tree.
func (b *inotifyBackend) expireMove(cookie uint32) {
	b.movesMu.Lock()
	defer b.movesMu.Unlock()

	pm, ok := b.moves[cookie]
	if !ok || b.stopped {
		return
	}
	delete(b.moves, cookie)

	if pm.isDir {
		b.removeWatchTree(pm.path)
	}
	if !pm.ignored {
		b.emit(Event{Type: EventRemoved, Path: pm.path, IsDir: pm.isDir})
	}
}

func (b *inotifyBackend) movedTo(path string, isDir bool, cookie uint32) {
	ignored := b.opts.shouldIgnore(path, isDir)

	b.movesMu.Lock()
	pm, paired := b.moves[cookie]
	if paired {
		pm.timer.Stop()
		delete(b.moves, cookie)
	}
	b.movesMu.Unlock()

	switch {
	case paired && !pm.ignored && !ignored:
		if isDir {
			b.renameWatches(pm.path, path)
		}
		b.log.Debug("move paired", "from", pm.path, "to", path)
		ev := Event{Type: EventMoved, OldPath: pm.path, Path: path, IsDir: isDir}
		if info, err := os.Stat(path); err == nil {
			ev.Size = info.Size()
			ev.ModTime = info.ModTime()
		}
		b.emit(ev)

	case paired && !pm.ignored:
		// Moved somewhere we do not look at.
		if isDir {
			b.removeWatchTree(pm.path)
		}
		b.emit(Event{Type: EventRemoved, Path: pm.path, IsDir: isDir})

	case ignored:
		if paired && isDir {
			b.removeWatchTree(pm.path)
		}

	case isDir:
		if paired {
			b.removeWatchTree(pm.path)
		}
		if err := b.watchTree(path, true); err != nil {
			b.log.Warn("failed to watch moved directory", "path", path, "error", err)
		}

	default:
		b.fileReady(path, EventAdded)
	}
}

// fileReady reports a complete regular file as typ.
func (b *inotifyBackend) fileReady(path string, typ EventType) {
	info, err := os.Stat(path)
	if err != nil {
		b.log.Debug("file gone before it could be reported", "path", path, "error", err)
		return
	}
	if !info.IsDir() {
		b.emit(Event{Type: typ, Path: path, Size: info.Size(), ModTime: info.ModTime()})
	}
}

func (b *inotifyBackend) emit(ev Event) {
	select {
	case b.events <- ev:
	case <-b.done:
	}
}

// fail reports err without blocking; with nobody reading it is logged.
func (b *inotifyBackend) fail(err error) {
	select {
	case b.errs <- err:
	case <-b.done:
	default:
		b.log.Warn("dropped watcher error", "error", err)
	}
}

func (b *inotifyBackend) Events() <-chan Event { return b.events }

func (b *inotifyBackend) Errors() <-chan error { return b.errs }

// Stop cancels pending moves, waits for the read loop and closes the
// descriptor and channels. Later calls do nothing.
func (b *inotifyBackend) Stop() error {
	var err error
	b.stopOnce.Do(func() {
		close(b.done)

		b.movesMu.Lock()
		b.stopped = true
		for _, pm := range b.moves {
			pm.timer.Stop()
		}
		clear(b.moves)
		b.movesMu.Unlock()

		b.wg.Wait()
		err = unix.Close(b.fd)
		close(b.events)
		close(b.errs)
	})
	return err
}
