package btree

import (
	"os"

	"github.com/pkg/errors"
)

// DropIndex removes both files of a column index. Missing files are not an
// error so dropping stays idempotent.
func DropIndex(fs FileSet) error {
	for _, p := range []string{fs.TreePath(), fs.ItemsPath()} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return errors.Wrapf(err, "drop %s", p)
		}
	}
	return nil
}

// Exists reports whether both files of the index are present.
func Exists(fs FileSet) bool {
	for _, p := range []string{fs.TreePath(), fs.ItemsPath()} {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}
