//go:build windows

package executor

import (
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// executableExts are probed in order for names without an extension.
var executableExts = []string{".exe", ".bat", ".cmd"}

func hasPathSeparator(file string) bool {
	return strings.ContainsAny(file, `/\:`)
}

func hasExecutableExt(file string) bool {
	ext := strings.ToLower(filepath.Ext(file))
	for _, e := range executableExts {
		if ext == e {
			return true
		}
	}
	return false
}

func findExecutable(fsys afero.Fs, file string) (string, error) {
	if hasExecutableExt(file) {
		if err := statExecutable(fsys, file, false); err != nil {
			return "", err
		}
		return file, nil
	}

	for _, ext := range executableExts {
		if err := statExecutable(fsys, file+ext, false); err == nil {
			return file + ext, nil
		}
	}
	return "", ErrNotFound
}
