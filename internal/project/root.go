// Package project provides project discovery and loading functionality.
package project

import (
	"errors"
	"os"
	"path/filepath"
)

// ConfigFileNames are the accepted configuration file names, in lookup order.
var ConfigFileNames = []string{
	"sitepipe.json",
	"sitepipe.yaml",
	"sitepipe.yml",
	"sitepipe.toml",
}

// ErrNoProjectRoot is returned when no sitepipe configuration file is found.
var ErrNoProjectRoot = errors.New("sitepipe.json not found: not a sitepipe project (or any parent up to the root)")

// FindRoot walks up from the current working directory until it finds a configuration file.
func FindRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return FindRootFrom(cwd)
}

// FindRootFrom walks up from the given directory until it finds a configuration file.
func FindRootFrom(startDir string) (string, error) {
	root, _, err := findConfig(startDir)
	return root, err
}

// findConfig returns the project root and the configuration file inside it.
func findConfig(startDir string) (root, configPath string, err error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", "", err
	}

	for {
		if path, ok := configIn(dir); ok {
			return dir, path, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			return "", "", ErrNoProjectRoot
		}
		dir = parent
	}
}

func configIn(dir string) (string, bool) {
	for _, name := range ConfigFileNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}
