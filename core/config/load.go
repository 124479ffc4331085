package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"
)

// Dir returns the default configuration directory.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, AppDirName), nil
}

func configPath(path string) string {
	// Allow being given the directory holding config.yaml.
	if filepath.Base(path) == ConfigurationName {
		return path
	}
	return filepath.Join(path, ConfigurationName)
}

// Load loads the configuration from path, which may be a config.yaml file or
// the directory holding it. Settings missing from the file keep their
// defaults, except aliases and environment which replace the defaults
// entirely.
func Load(fsys afero.Fs, path string) (*Configuration, error) {
	configContents, err := afero.ReadFile(fsys, configPath(path))
	if err != nil {
		return nil, err
	}

	out := Default()
	out.Aliases = nil
	out.Environment = nil
	if err := yaml.UnmarshalStrict(configContents, out); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", configPath(path), err)
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration %s: %w", configPath(path), err)
	}
	return out, nil
}

// LoadOrDefault is like Load, but returns the default configuration if the
// file doesn't exist.
func LoadOrDefault(fsys afero.Fs, path string) (*Configuration, error) {
	cfg, err := Load(fsys, path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Initialize writes the default configuration into dir. An existing
// configuration is left untouched.
func Initialize(fsys afero.Fs, dir string, logger *log.Logger) (*Configuration, error) {
	path := configPath(dir)

	switch _, err := fsys.Stat(path); {
	case err == nil:
		logger.Printf("- Configuration already exists at %s\n", path)
		return Load(fsys, path)
	case !errors.Is(err, fs.ErrNotExist):
		return nil, err
	}

	logger.Printf("- Creating %s\n", filepath.Dir(path))
	if err := fsys.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}

	logger.Printf("- Writing %s\n", path)
	if err := afero.WriteFile(fsys, path, defaultConfigData, 0600); err != nil {
		return nil, err
	}

	return Load(fsys, path)
}
