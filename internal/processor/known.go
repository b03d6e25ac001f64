package processor

import (
	"strings"
	"sync"
	"time"
)

// knownFiles is the set of relative paths the pipeline has already seen,
// each with the time it was first recorded. Readers such as Stats and
// IsKnown use it without taking the pipeline lock.
type knownFiles struct {
	mu   sync.RWMutex
	seen map[string]time.Time
}

func newKnownFiles() *knownFiles {
	return &knownFiles{seen: make(map[string]time.Time)}
}

// inTree reports whether p is dir or lies below it.
func inTree(p, dir string) bool {
	return p == dir || strings.HasPrefix(p, dir+"/")
}

func (k *knownFiles) has(rel string) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	_, ok := k.seen[rel]
	return ok
}

// add records rel unless it is already known and reports whether it was new.
func (k *knownFiles) add(rel string, at time.Time) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.seen[rel]; ok {
		return false
	}
	k.seen[rel] = at
	return true
}

// set records rel, replacing any earlier time.
func (k *knownFiles) set(rel string, at time.Time) {
	k.mu.Lock()
	k.seen[rel] = at
	k.mu.Unlock()
}

func (k *knownFiles) remove(rel string) {
	k.mu.Lock()
	delete(k.seen, rel)
	k.mu.Unlock()
}

// removeTree forgets dir and everything below it.
func (k *knownFiles) removeTree(dir string) int {
	k.mu.Lock()
	defer k.mu.Unlock()

	n := 0
	for p := range k.seen {
		if inTree(p, dir) {
			delete(k.seen, p)
			n++
		}
	}
	return n
}

// moveTree re-keys dir and everything below it under to, keeping the
// recorded times. It returns how many entries moved.
func (k *knownFiles) moveTree(dir, to string) int {
	k.mu.Lock()
	defer k.mu.Unlock()

	moved := make(map[string]time.Time)
	for p, at := range k.seen {
		if inTree(p, dir) {
			moved[to+strings.TrimPrefix(p, dir)] = at
			delete(k.seen, p)
		}
	}
	for p, at := range moved {
		k.seen[p] = at
	}
	return len(moved)
}

func (k *knownFiles) reset() {
	k.mu.Lock()
	clear(k.seen)
	k.mu.Unlock()
}

func (k *knownFiles) len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.seen)
}
