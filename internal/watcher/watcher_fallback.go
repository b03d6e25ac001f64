//go:build !linux

package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const backendName = "fsnotify"

// fsnotifyBackend reports a file once its size and mtime stop changing for
// SettleDelay. fsnotify hides rename cookies, so a rename arrives as a
// removal of the old path and an addition of the new one.
type fsnotifyBackend struct {
	log  *slog.Logger
	opts Options
	fw   *fsnotify.Watcher

	events   chan Event
	errs     chan error
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	// mu guards settling and stopped. Settled files are emitted with mu
	// held so none can be sent after Stop closes the channels.
	mu       sync.Mutex
	settling map[string]*settlingFile
	stopped  bool
}

type settlingFile struct {
	size    int64
	modTime time.Time
	timer   *time.Timer
	// created marks a file that did not exist before it started settling.
	created bool
}

func (sf *settlingFile) eventType() EventType {
	if sf.created {
		return EventAdded
	}
	return EventModified
}

func newBackend(logger *slog.Logger, opts Options) (Backend, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify: %w", err)
	}
	return &fsnotifyBackend{
		log:      logger,
		opts:     opts,
		fw:       fw,
		events:   make(chan Event, 128),
		errs:     make(chan error, 8),
		done:     make(chan struct{}),
		settling: make(map[string]*settlingFile),
	}, nil
}

func (b *fsnotifyBackend) Watch(path string) error {
	path = filepath.Clean(path)
	info, err := os.Stat(path)
	switch {
	case err != nil:
		return err
	case !info.IsDir():
		return b.fw.Add(filepath.Dir(path))
	}
	return b.watchTree(path, false)
}

// watchTree adds every visible directory under root. With announce set,
// regular files already inside start settling.
func (b *fsnotifyBackend) watchTree(root string, announce bool) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			b.log.Warn("skipping unreadable path", "path", p, "error", err)
		case b.opts.shouldIgnore(p, d.IsDir()):
			if d.IsDir() {
				return filepath.SkipDir
			}
		case d.IsDir():
			if err := b.fw.Add(p); err != nil {
				b.log.Error("cannot watch directory", "path", p, "error", err)
			}
		case announce && d.Type().IsRegular():
			b.settle(p, true)
		}
		return nil
	})
}

func (b *fsnotifyBackend) Start(ctx context.Context) error {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.loop(ctx)
	}()
	<-ctx.Done()
	return nil
}

func (b *fsnotifyBackend) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case ev, ok := <-b.fw.Events:
			if !ok {
				return
			}
			b.handle(ev)
		case err, ok := <-b.fw.Errors:
			if !ok {
				return
			}
			select {
			case b.errs <- err:
			default:
				b.log.Warn("dropped watcher error", "error", err)
			}
		}
	}
}

func (b *fsnotifyBackend) handle(ev fsnotify.Event) {
	path := ev.Name
	info, statErr := os.Lstat(path)
	isDir := statErr == nil && info.IsDir()
	if b.opts.shouldIgnore(path, isDir) {
		return
	}

	switch {
	case ev.Has(fsnotify.Create) && isDir:
		if err := b.watchTree(path, true); err != nil {
			b.log.Warn("cannot watch new directory", "path", path, "error", err)
		}
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		b.unsettle(path)
		b.emit(Event{Type: EventRemoved, Path: path})
	case ev.Has(fsnotify.Create):
		b.settle(path, true)
	case ev.Has(fsnotify.Write):
		b.settle(path, false)
	}
}

// settle (re)arms the settle timer for path. A file created while an earlier
// write was settling stays created.
func (b *fsnotifyBackend) settle(path string, created bool) {
	info, err := os.Stat(path)

	b.mu.Lock()
	defer b.mu.Unlock()

	if prev, ok := b.settling[path]; ok && prev.created {
		created = true
	}
	b.dropLocked(path)
	switch {
	case b.stopped:
	case err != nil:
		b.log.Debug("changed file vanished", "path", path, "error", err)
	case !info.IsDir():
		sf := &settlingFile{size: info.Size(), modTime: info.ModTime(), created: created}
		sf.timer = time.AfterFunc(b.opts.SettleDelay, func() { b.checkSettled(path) })
		b.settling[path] = sf
	}
}

// checkSettled reports path if it is unchanged since the last check and
// re-arms the timer otherwise. A file that disappeared is reported removed;
// one that existed before it changed is reported modified.
func (b *fsnotifyBackend) checkSettled(path string) {
	info, statErr := os.Stat(path)

	b.mu.Lock()
	defer b.mu.Unlock()

	sf, ok := b.settling[path]
	if !ok || b.stopped {
		return
	}
	if statErr == nil && (info.Size() != sf.size || !info.ModTime().Equal(sf.modTime)) {
		sf.size, sf.modTime = info.Size(), info.ModTime()
		sf.timer = time.AfterFunc(b.opts.SettleDelay, func() { b.checkSettled(path) })
		return
	}
	delete(b.settling, path)

	if statErr != nil {
		b.emit(Event{Type: EventRemoved, Path: path})
		return
	}
	b.emit(Event{Type: sf.eventType(), Path: path, Size: info.Size(), ModTime: info.ModTime()})
}

func (b *fsnotifyBackend) unsettle(path string) {
	b.mu.Lock()
	b.dropLocked(path)
	b.mu.Unlock()
}

func (b *fsnotifyBackend) dropLocked(path string) {
	if sf, ok := b.settling[path]; ok {
		sf.timer.Stop()
		delete(b.settling, path)
	}
}

func (b *fsnotifyBackend) emit(ev Event) {
	select {
	case b.events <- ev:
	case <-b.done:
	}
}

func (b *fsnotifyBackend) Events() <-chan Event { return b.events }

func (b *fsnotifyBackend) Errors() <-chan error { return b.errs }

// Stop may be called more than once.
func (b *fsnotifyBackend) Stop() error {
	var err error
	b.stopOnce.Do(func() {
		close(b.done)

		b.mu.Lock()
		b.stopped = true
		for _, sf := range b.settling {
			sf.timer.Stop()
		}
		clear(b.settling)
		b.mu.Unlock()

		err = b.fw.Close()
		b.wg.Wait()
		close(b.events)
		close(b.errs)
	})
	return err
}
