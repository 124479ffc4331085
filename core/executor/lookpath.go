package executor

import (
	"errors"
	"io/fs"
	"os/exec"
	"path/filepath"

	"github.com/spf13/afero"
)

// ErrNotFound is the error resulting if a path search failed to find an executable file.
var ErrNotFound = exec.ErrNotFound

// LookPath searches for an executable named file in the directories of the
// PATH list path. If file contains a path separator, it is tried directly
// and PATH is not consulted. Relative entries are resolved against dir.
func LookPath(fsys afero.Fs, path, dir, file string) (string, error) {
	if hasPathSeparator(file) {
		if !filepath.IsAbs(file) {
			file = filepath.Join(dir, file)
		}
		return findExecutable(fsys, file)
	}

	for _, elem := range filepath.SplitList(path) {
		if elem == "" {
			// Unix shell semantics: path element "" means "."
			elem = "."
		}
		if !filepath.IsAbs(elem) {
			elem = filepath.Join(dir, elem)
		}
		if found, err := findExecutable(fsys, filepath.Join(elem, file)); err == nil {
			return found, nil
		}
	}
	return "", ErrNotFound
}

func statExecutable(fsys afero.Fs, file string, needExecBit bool) error {
	d, err := fsys.Stat(file)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ErrNotFound
	case err != nil:
		return err
	}

	m := d.Mode()
	if m.IsDir() {
		return fs.ErrPermission
	}
	if needExecBit && m&0111 == 0 {
		return fs.ErrPermission
	}
	return nil
}
