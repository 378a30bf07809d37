package btree

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const indexFilePerm = 0o644

// commitFiles publishes a built index. The items file is replaced first and
// the tree file last, so a tree on disk never points into items from another
// build. The directory is synced once both renames are done.
func commitFiles(fs FileSet, items, tree []byte) error {
	if err := os.MkdirAll(fs.Dir, 0o755); err != nil {
		return errors.Wrapf(err, "create index dir %s", fs.Dir)
	}
	if err := replaceFile(fs.ItemsPath(), items); err != nil {
		return errors.Wrapf(err, "write %s", fs.ItemsPath())
	}
	if err := replaceFile(fs.TreePath(), tree); err != nil {
		return errors.Wrapf(err, "write %s", fs.TreePath())
	}
	return syncDir(fs.Dir)
}

// replaceFile writes data to a synced temp file next to path and renames it
// over path.
func replaceFile(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Chmod(indexFilePerm); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return errors.Wrap(os.Rename(tmp.Name(), path), "rename")
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return errors.Wrapf(err, "open %s", dir)
	}
	defer func() { _ = d.Close() }()
	// Some filesystems refuse fsync on directories; the renames already happened.
	_ = d.Sync()
	return nil
}
