package processor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKnownFiles_AddKeepsFirstTime(t *testing.T) {
	k := newKnownFiles()
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.True(t, k.add("Art/a.png", first))
	assert.False(t, k.add("Art/a.png", first.Add(time.Hour)))
	assert.Equal(t, first, k.seen["Art/a.png"])

	k.set("Art/a.png", first.Add(time.Hour))
	assert.Equal(t, first.Add(time.Hour), k.seen["Art/a.png"])
	assert.Equal(t, 1, k.len())
}

func TestKnownFiles_RemoveTree(t *testing.T) {
	k := newKnownFiles()
	now := time.Now()
	for _, p := range []string{"Art", "Art/a.png", "Art/Sub/b.png", "Artwork/c.png", "Docs/d.md"} {
		k.set(p, now)
	}

	assert.Equal(t, 3, k.removeTree("Art"))
	assert.False(t, k.has("Art/Sub/b.png"))
	assert.True(t, k.has("Artwork/c.png"), "sibling sharing a name prefix stays")
	assert.True(t, k.has("Docs/d.md"))

	k.remove("Docs/d.md")
	assert.Equal(t, 1, k.len())
}

func TestKnownFiles_MoveTree(t *testing.T) {
	k := newKnownFiles()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	k.set("Old", at)
	k.set("Old/a.png", at)
	k.set("Old/Deep/b.png", at)
	k.set("Older/c.png", at)

	require.Equal(t, 3, k.moveTree("Old", "New/Place"))

	assert.True(t, k.has("New/Place"))
	assert.True(t, k.has("New/Place/a.png"))
	assert.True(t, k.has("New/Place/Deep/b.png"))
	assert.False(t, k.has("Old/a.png"))
	assert.True(t, k.has("Older/c.png"))
	assert.Equal(t, at, k.seen["New/Place/Deep/b.png"])

	assert.Zero(t, k.moveTree("Missing", "Elsewhere"))
}

func TestKnownFiles_Reset(t *testing.T) {
	k := newKnownFiles()
	k.set("a", time.Now())
	k.set("b", time.Now())
	k.reset()
	assert.Zero(t, k.len())
	assert.True(t, k.add("a", time.Now()))
}

func TestKnownFiles_ConcurrentAdd(t *testing.T) {
	k := newKnownFiles()
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		added int
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if k.add("same.png", time.Now()) {
				mu.Lock()
				added++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, added)
}

func TestInTree(t *testing.T) {
	assert.True(t, inTree("Art", "Art"))
	assert.True(t, inTree("Art/x", "Art"))
	assert.False(t, inTree("Artwork", "Art"))
	assert.False(t, inTree("Ar", "Art"))
}
