package project

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/AndreyAkinshin/sitepipe/internal/config"
)

// sourceWarnings reports missing inputs that would turn whole tasks into
// no-ops. Missing inputs are never errors.
func sourceWarnings(root string, cfg *config.Config) []string {
	srcDir := cfg.Paths.Source
	if !filepath.IsAbs(srcDir) {
		srcDir = filepath.Join(root, srcDir)
	}

	if err := validateDirectory(srcDir); err != nil {
		return []string{fmt.Sprintf("source tree: %v; every task will be a no-op", err)}
	}

	var warnings []string
	entry := filepath.Join(srcDir, filepath.FromSlash(cfg.Style.Entry))
	if _, err := os.Stat(entry); os.IsNotExist(err) {
		warnings = append(warnings, fmt.Sprintf("style entry %q does not exist; style tasks will be skipped", cfg.Style.Entry))
	}
	return warnings
}

// validateDirectory checks if a directory exists.
func validateDirectory(dir string) error {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return fmt.Errorf("directory %q does not exist", dir)
	}
	if err != nil {
		return fmt.Errorf("cannot access directory %q: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%q is not a directory", dir)
	}
	return nil
}
