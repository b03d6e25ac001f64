//go:build linux

package fsops

import (
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckedRename(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.png", "new")
	writeFile(t, root, "b.png", "old")

	err := checkedRename(filepath.Join(root, "a.png"), filepath.Join(root, "b.png"))
	assert.ErrorIs(t, err, fs.ErrExist)
	assert.Equal(t, "old", readFile(t, root, "b.png"))

	require.NoError(t, checkedRename(filepath.Join(root, "a.png"), filepath.Join(root, "c.png")))
	assert.Equal(t, "new", readFile(t, root, "c.png"))
}
