//go:build !windows

package executor

import (
	"strings"

	"github.com/spf13/afero"
)

func hasPathSeparator(file string) bool {
	return strings.Contains(file, "/")
}

func findExecutable(fsys afero.Fs, file string) (string, error) {
	if err := statExecutable(fsys, file, true); err != nil {
		return "", err
	}
	return file, nil
}
