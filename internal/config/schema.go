// Package config provides configuration loading and validation for sitepipe.json.
package config

// Config represents the complete pipeline configuration.
// Every section is optional; applyDefaults fills the conventional layout.
type Config struct {
	Paths     PathsConfig      `json:"paths"`
	Style     *StyleConfig     `json:"style,omitempty"`
	Script    *ScriptConfig    `json:"script,omitempty"`
	HTML      *HTMLConfig      `json:"html,omitempty"`
	Images    *ImagesConfig    `json:"images,omitempty"`
	Sprite    *SpriteConfig    `json:"sprite,omitempty"`
	Copy      []CopyConfig     `json:"copy,omitempty"`
	Clean     *CleanConfig     `json:"clean,omitempty"`
	Scheduler *SchedulerConfig `json:"scheduler,omitempty"`
	Watch     *WatchConfig     `json:"watch,omitempty"`
	Server    *ServerConfig    `json:"server,omitempty"`
	Deploy    *DeployConfig    `json:"deploy,omitempty"`
}

// PathsConfig locates the source and build trees relative to the project root.
type PathsConfig struct {
	Source string `json:"source,omitempty"`
	Build  string `json:"build,omitempty"`
}

// StyleConfig configures Sass compilation.
type StyleConfig struct {
	Entry        string   `json:"entry,omitempty"`      // Relative to the source tree
	DevOutput    string   `json:"dev_output,omitempty"` // Relative to the source tree
	Output       string   `json:"output,omitempty"`     // Relative to the build tree
	Sourcemaps   *bool    `json:"sourcemaps,omitempty"`
	Browsers     []string `json:"browsers,omitempty"` // e.g. "chrome58", "safari11"
	IncludePaths []string `json:"include_paths,omitempty"`
}

// ScriptConfig configures script concatenation and minification.
type ScriptConfig struct {
	Include    []string `json:"include,omitempty"`
	Exclude    []string `json:"exclude,omitempty"`
	Bundle     string   `json:"bundle,omitempty"`
	DevOutput  string   `json:"dev_output,omitempty"`
	Output     string   `json:"output,omitempty"`
	Target     string   `json:"target,omitempty"` // "es2015" ... "esnext"
	Sourcemaps *bool    `json:"sourcemaps,omitempty"`
}

// HTMLConfig configures HTML minification.
type HTMLConfig struct {
	Include []string `json:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty"`
}

// ImagesConfig configures raster/SVG optimization and WebP conversion.
type ImagesConfig struct {
	Include     []string    `json:"include,omitempty"`
	Exclude     []string    `json:"exclude,omitempty"`
	Output      string      `json:"output,omitempty"`
	JPEGQuality int         `json:"jpeg_quality,omitempty"`
	WebP        *WebPConfig `json:"webp,omitempty"`
}

// WebPConfig configures the external WebP encoder.
type WebPConfig struct {
	Include []string `json:"include,omitempty"`
	Quality int      `json:"quality,omitempty"`
	Command string   `json:"command,omitempty"`
}

// SpriteConfig configures SVG sprite generation.
type SpriteConfig struct {
	Include   []string `json:"include,omitempty"`
	Name      string   `json:"name,omitempty"`
	DevOutput string   `json:"dev_output,omitempty"`
	Output    string   `json:"output,omitempty"`
}

// CopyConfig defines a static asset copy task.
type CopyConfig struct {
	Name    string   `json:"name"`
	Include []string `json:"include"`
	Base    string   `json:"base,omitempty"`   // Stripped from copied paths, relative to the source tree
	Output  string   `json:"output,omitempty"` // Relative to the build tree
}

// CleanConfig configures post-build junk removal.
type CleanConfig struct {
	Junk []string `json:"junk,omitempty"` // Relative to the build tree
}

// SchedulerConfig configures task graph execution.
type SchedulerConfig struct {
	Concurrency   int    `json:"concurrency,omitempty"` // 0 selects SITEPIPE_PARALLEL or the CPU count
	FailurePolicy string `json:"failure_policy,omitempty"`
}

// WatchConfig configures file-change triggers.
type WatchConfig struct {
	Policy     string `json:"policy,omitempty"`
	DebounceMS int    `json:"debounce_ms,omitempty"`
	QueueSize  int    `json:"queue_size,omitempty"`
}

// ServerConfig configures the live-reload server.
type ServerConfig struct {
	Host string `json:"host,omitempty"`
	Port int    `json:"port,omitempty"`
	Open bool   `json:"open,omitempty"`
	CORS *bool  `json:"cors,omitempty"`
}

// DeployConfig configures publishing of the build tree.
type DeployConfig struct {
	Provider string    `json:"provider,omitempty"` // "github-pages" or "s3"
	Branch   string    `json:"branch,omitempty"`
	Remote   string    `json:"remote,omitempty"`
	Message  string    `json:"message,omitempty"` // "{run}" expands to the run ID
	S3       *S3Config `json:"s3,omitempty"`
}

// S3Config configures an S3-compatible bucket. Credentials come from the environment only.
type S3Config struct {
	Endpoint string `json:"endpoint,omitempty"`
	Bucket   string `json:"bucket,omitempty"`
	Prefix   string `json:"prefix,omitempty"`
	Region   string `json:"region,omitempty"`
	UseSSL   *bool  `json:"use_ssl,omitempty"`

	AccessKey string `json:"-"`
	SecretKey string `json:"-"`
}

// FailurePolicy values for SchedulerConfig.FailurePolicy.
const (
	FailurePolicyFailFast      = "fail-fast"
	FailurePolicyFinishRunning = "finish-running"
)

// Watch policy values for WatchConfig.Policy.
const (
	WatchPolicyCoalesce = "coalesce"
	WatchPolicyQueue    = "queue"
)

// Deploy providers.
const (
	ProviderGitHubPages = "github-pages"
	ProviderS3          = "s3"
)

// Enabled reports whether a *bool option is on, treating nil as def.
func Enabled(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
