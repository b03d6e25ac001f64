//go:build !linux

package fsops

import (
	"io/fs"
	"os"
)

// renameNoReplace refuses to replace an existing dst. The check and the
// rename are separate steps on this platform.
func renameNoReplace(src, dst string) error {
	if _, err := os.Lstat(dst); err == nil {
		return &os.LinkError{Op: "rename", Old: src, New: dst, Err: fs.ErrExist}
	}
	return os.Rename(src, dst)
}
