package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/AndreyAkinshin/sitepipe/internal/config"
)

// Project represents a loaded sitepipe project.
type Project struct {
	Root     string
	Config   *config.Config
	Warnings []string

	configPath string
}

// LoadProject finds and loads a project from the current directory.
// Without a configuration file anywhere up the tree, the current directory
// becomes the root and the default configuration applies.
func LoadProject() (*Project, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return LoadProjectFrom(cwd)
}

// LoadProjectFrom loads a project starting the root search at dir.
func LoadProjectFrom(dir string) (*Project, error) {
	root, configPath, err := findConfig(dir)
	if errors.Is(err, ErrNoProjectRoot) {
		abs, absErr := filepath.Abs(dir)
		if absErr != nil {
			return nil, absErr
		}
		return load(abs, "")
	}
	if err != nil {
		return nil, err
	}
	return load(root, configPath)
}

// LoadProjectWithConfig loads a project from an explicit configuration file.
// The file's directory is the project root.
func LoadProjectWithConfig(configPath string) (*Project, error) {
	abs, err := filepath.Abs(configPath)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return load(filepath.Dir(abs), abs)
}

func load(root, configPath string) (*Project, error) {
	if err := config.LoadDotEnv(root); err != nil {
		return nil, err
	}

	var (
		cfg      *config.Config
		warnings []string
		err      error
	)
	if configPath == "" {
		cfg, warnings, err = config.DefaultsWithEnv()
	} else {
		cfg, warnings, err = config.LoadAndValidate(configPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	warnings = append(warnings, sourceWarnings(root, cfg)...)

	return &Project{
		Root:       root,
		Config:     cfg,
		Warnings:   warnings,
		configPath: configPath,
	}, nil
}

// ConfigPath returns the full path to the project configuration file,
// or "" when the project runs on defaults.
func (p *Project) ConfigPath() string {
	return p.configPath
}

// SourceDir returns the absolute path of the source tree.
func (p *Project) SourceDir() string {
	return p.abs(p.Config.Paths.Source)
}

// BuildDir returns the absolute path of the build tree.
func (p *Project) BuildDir() string {
	return p.abs(p.Config.Paths.Build)
}

func (p *Project) abs(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(p.Root, path)
}
