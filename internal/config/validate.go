package config

import (
	"fmt"
	"path/filepath"
	"regexp"
)

var (
	// Task name: letter first, then letters, digits, hyphens.
	taskNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9-]*$`)

	// Browser target: engine name followed by a version, e.g. "safari11" or "ios12.2".
	browserPattern = regexp.MustCompile(`^(chrome|edge|firefox|ie|ios|opera|safari)[0-9]+(\.[0-9]+)*$`)

	// Script target: es5 is not supported by the minifier.
	scriptTargetPattern = regexp.MustCompile(`^(es20(1[5-9]|2[0-2])|esnext)$`)
)

// ReservedTaskNames are the names of the built-in pipeline tasks and
// compositions. Copy tasks may not reuse them.
var ReservedTaskNames = []string{
	"clean", "cleanJunk",
	"devStyle", "prodStyle",
	"devScript", "prodScript",
	"devSprite", "prodSprite",
	"html", "images", "imagesWebp",
	"reload", "dev", "build", "deploy", "serve",
	"devAssets", "buildAssets",
	"devScriptReload", "devSpriteReload", "htmlReload",
	"prodScriptReload", "imagesReload", "prodSpriteReload",
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks a configuration for errors and returns warnings for non-fatal issues.
// It expects defaults to have been applied.
func Validate(cfg *Config) (warnings []string, err error) {
	validators := []func(*Config) ([]string, error){
		validatePaths,
		validateStyle,
		validateScript,
		validateImages,
		validateCopy,
		validateScheduler,
		validateWatch,
		validateServer,
		validateDeploy,
	}
	for _, v := range validators {
		w, err := v(cfg)
		warnings = append(warnings, w...)
		if err != nil {
			return warnings, err
		}
	}
	return warnings, nil
}

func validatePaths(cfg *Config) ([]string, error) {
	src := filepath.Clean(cfg.Paths.Source)
	build := filepath.Clean(cfg.Paths.Build)
	if src == build {
		return nil, &ValidationError{Field: "paths.build", Message: "must differ from paths.source"}
	}
	if build == "." || build == "/" {
		return nil, &ValidationError{Field: "paths.build", Message: "must be a dedicated directory (it is deleted by clean)"}
	}
	return nil, nil
}

func validateStyle(cfg *Config) ([]string, error) {
	for i, b := range cfg.Style.Browsers {
		if !browserPattern.MatchString(b) {
			return nil, &ValidationError{
				Field:   fmt.Sprintf("style.browsers[%d]", i),
				Message: fmt.Sprintf("%q must be an engine name followed by a version (e.g. safari11)", b),
			}
		}
	}
	return nil, nil
}

func validateScript(cfg *Config) ([]string, error) {
	if !scriptTargetPattern.MatchString(cfg.Script.Target) {
		return nil, &ValidationError{
			Field:   "script.target",
			Message: fmt.Sprintf("%q must be es2015..es2022 or esnext", cfg.Script.Target),
		}
	}
	return nil, nil
}

func validateImages(cfg *Config) ([]string, error) {
	if q := cfg.Images.JPEGQuality; q < 1 || q > 100 {
		return nil, &ValidationError{Field: "images.jpeg_quality", Message: "must be between 1 and 100"}
	}
	if q := cfg.Images.WebP.Quality; q < 1 || q > 100 {
		return nil, &ValidationError{Field: "images.webp.quality", Message: "must be between 1 and 100"}
	}
	return nil, nil
}

func validateCopy(cfg *Config) ([]string, error) {
	seen := make(map[string]bool)
	for _, name := range ReservedTaskNames {
		seen[name] = true
	}
	for i, c := range cfg.Copy {
		field := fmt.Sprintf("copy[%d].name", i)
		if c.Name == "" {
			return nil, &ValidationError{Field: field, Message: "is required"}
		}
		if !taskNamePattern.MatchString(c.Name) {
			return nil, &ValidationError{Field: field, Message: "must match pattern ^[a-zA-Z][a-zA-Z0-9-]*$"}
		}
		if seen[c.Name] {
			return nil, &ValidationError{Field: field, Message: fmt.Sprintf("task name %q is already in use", c.Name)}
		}
		seen[c.Name] = true
		if len(c.Include) == 0 {
			return nil, &ValidationError{Field: fmt.Sprintf("copy[%d].include", i), Message: "must list at least one pattern"}
		}
	}
	return nil, nil
}

func validateScheduler(cfg *Config) ([]string, error) {
	s := cfg.Scheduler
	if s.Concurrency < 0 || s.Concurrency > 256 {
		return nil, &ValidationError{Field: "scheduler.concurrency", Message: "must be between 0 and 256"}
	}
	switch s.FailurePolicy {
	case FailurePolicyFailFast, FailurePolicyFinishRunning:
	default:
		return nil, &ValidationError{
			Field:   "scheduler.failure_policy",
			Message: fmt.Sprintf("must be %q or %q", FailurePolicyFailFast, FailurePolicyFinishRunning),
		}
	}
	return nil, nil
}

func validateWatch(cfg *Config) ([]string, error) {
	w := cfg.Watch
	switch w.Policy {
	case WatchPolicyCoalesce, WatchPolicyQueue:
	default:
		return nil, &ValidationError{
			Field:   "watch.policy",
			Message: fmt.Sprintf("must be %q or %q", WatchPolicyCoalesce, WatchPolicyQueue),
		}
	}
	if w.DebounceMS < 0 {
		return nil, &ValidationError{Field: "watch.debounce_ms", Message: "must not be negative"}
	}
	if w.QueueSize < 1 {
		return nil, &ValidationError{Field: "watch.queue_size", Message: "must be at least 1"}
	}
	return nil, nil
}

func validateServer(cfg *Config) ([]string, error) {
	if p := cfg.Server.Port; p < 1 || p > 65535 {
		return nil, &ValidationError{Field: "server.port", Message: "must be between 1 and 65535"}
	}
	return nil, nil
}

func validateDeploy(cfg *Config) ([]string, error) {
	d := cfg.Deploy
	switch d.Provider {
	case ProviderGitHubPages:
		return nil, nil
	case ProviderS3:
		// Bucket and credentials may be missing for commands that never deploy.
		var warnings []string
		if d.S3.Bucket == "" {
			warnings = append(warnings, "deploy.s3.bucket is not set; deploy will fail until SITEPIPE_S3_BUCKET or the config provides one")
		}
		return warnings, nil
	default:
		return nil, &ValidationError{
			Field:   "deploy.provider",
			Message: fmt.Sprintf("must be %q or %q", ProviderGitHubPages, ProviderS3),
		}
	}
}
