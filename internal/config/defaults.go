package config

// Default configuration values. They reproduce the conventional layout of a
// hand-written static site: src/ in, build/ out.
const (
	DefaultSourceDir     = "src"
	DefaultBuildDir      = "build"
	DefaultStyleEntry    = "sass/style.scss"
	DefaultStyleOutput   = "css"
	DefaultScriptBundle  = "main.js"
	DefaultScriptOutput  = "js"
	DefaultScriptTarget  = "es2015"
	DefaultImagesOutput  = "img"
	DefaultJPEGQuality   = 75
	DefaultWebPQuality   = 75
	DefaultWebPCommand   = "cwebp"
	DefaultSpriteName    = "sprite.svg"
	DefaultSpriteOutput  = "img"
	DefaultWatchDebounce = 100
	DefaultWatchQueue    = 16
	DefaultServerHost    = "localhost"
	DefaultServerPort    = 3000
	DefaultDeployBranch  = "gh-pages"
	DefaultDeployMessage = "Deploy {run}"
	DefaultS3Region      = "us-east-1"
)

// Default file-set patterns, relative to the source tree.
var (
	DefaultScriptInclude = []string{"js/**/*.js"}
	DefaultHTMLInclude   = []string{"*.html"}
	DefaultHTMLExclude   = []string{"_TEMPLATE.html"}
	DefaultImagesInclude = []string{"img/**/*"}
	DefaultWebPInclude   = []string{"img/**/*.{png,jpg,jpeg}"}
	DefaultSpriteInclude = []string{"img/svg-sprite/*.svg"}
	DefaultBrowsers      = []string{"chrome58", "edge16", "firefox57", "safari11"}
	DefaultJunk          = []string{"**/*.txt", "img/svg-sprite", "**/_TEMPLATE.*"}
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills in default values for unset configuration fields.
func applyDefaults(cfg *Config) {
	applyPathDefaults(cfg)
	applyStyleDefaults(cfg)
	applyScriptDefaults(cfg)
	applyHTMLDefaults(cfg)
	applySpriteDefaults(cfg)
	applyImagesDefaults(cfg)
	applyCopyDefaults(cfg)
	applyCleanDefaults(cfg)
	applySchedulerDefaults(cfg)
	applyWatchDefaults(cfg)
	applyServerDefaults(cfg)
	applyDeployDefaults(cfg)
}

func applyPathDefaults(cfg *Config) {
	if cfg.Paths.Source == "" {
		cfg.Paths.Source = DefaultSourceDir
	}
	if cfg.Paths.Build == "" {
		cfg.Paths.Build = DefaultBuildDir
	}
}

func applyStyleDefaults(cfg *Config) {
	if cfg.Style == nil {
		cfg.Style = &StyleConfig{}
	}
	if cfg.Style.Entry == "" {
		cfg.Style.Entry = DefaultStyleEntry
	}
	if cfg.Style.DevOutput == "" {
		cfg.Style.DevOutput = DefaultStyleOutput
	}
	if cfg.Style.Output == "" {
		cfg.Style.Output = DefaultStyleOutput
	}
	if len(cfg.Style.Browsers) == 0 {
		cfg.Style.Browsers = append([]string(nil), DefaultBrowsers...)
	}
}

func applyScriptDefaults(cfg *Config) {
	if cfg.Script == nil {
		cfg.Script = &ScriptConfig{}
	}
	s := cfg.Script
	if len(s.Include) == 0 {
		s.Include = append([]string(nil), DefaultScriptInclude...)
	}
	if s.Bundle == "" {
		s.Bundle = DefaultScriptBundle
	}
	if s.DevOutput == "" {
		s.DevOutput = DefaultScriptOutput
	}
	if s.Output == "" {
		s.Output = DefaultScriptOutput
	}
	if s.Target == "" {
		s.Target = DefaultScriptTarget
	}
	// The dev bundle is written into the source tree; never feed it back in.
	bundlePath := s.DevOutput + "/" + s.Bundle
	if !contains(s.Exclude, bundlePath) {
		s.Exclude = append(s.Exclude, bundlePath)
	}
}

func applyHTMLDefaults(cfg *Config) {
	if cfg.HTML == nil {
		cfg.HTML = &HTMLConfig{}
	}
	if len(cfg.HTML.Include) == 0 {
		cfg.HTML.Include = append([]string(nil), DefaultHTMLInclude...)
	}
	if cfg.HTML.Exclude == nil {
		cfg.HTML.Exclude = append([]string(nil), DefaultHTMLExclude...)
	}
}

func applySpriteDefaults(cfg *Config) {
	if cfg.Sprite == nil {
		cfg.Sprite = &SpriteConfig{}
	}
	if len(cfg.Sprite.Include) == 0 {
		cfg.Sprite.Include = append([]string(nil), DefaultSpriteInclude...)
	}
	if cfg.Sprite.Name == "" {
		cfg.Sprite.Name = DefaultSpriteName
	}
	if cfg.Sprite.DevOutput == "" {
		cfg.Sprite.DevOutput = DefaultSpriteOutput
	}
	if cfg.Sprite.Output == "" {
		cfg.Sprite.Output = DefaultSpriteOutput
	}
}

// applyImagesDefaults must run after applySpriteDefaults: the sprite sources
// and the dev sprite are excluded so that only the sprite task writes the
// sprite destination.
func applyImagesDefaults(cfg *Config) {
	if cfg.Images == nil {
		cfg.Images = &ImagesConfig{}
	}
	img := cfg.Images
	if len(img.Include) == 0 {
		img.Include = append([]string(nil), DefaultImagesInclude...)
	}
	if img.Exclude == nil {
		img.Exclude = []string{
			"img/svg-sprite/**",
			cfg.Sprite.DevOutput + "/" + cfg.Sprite.Name,
		}
	}
	if img.Output == "" {
		img.Output = DefaultImagesOutput
	}
	if img.JPEGQuality == 0 {
		img.JPEGQuality = DefaultJPEGQuality
	}
	if img.WebP == nil {
		img.WebP = &WebPConfig{}
	}
	if len(img.WebP.Include) == 0 {
		img.WebP.Include = append([]string(nil), DefaultWebPInclude...)
	}
	if img.WebP.Quality == 0 {
		img.WebP.Quality = DefaultWebPQuality
	}
	if img.WebP.Command == "" {
		img.WebP.Command = DefaultWebPCommand
	}
}

func applyCopyDefaults(cfg *Config) {
	if cfg.Copy != nil {
		return
	}
	cfg.Copy = []CopyConfig{
		{Name: "copyFonts", Include: []string{"fonts/**/*.{woff,woff2}"}, Base: "."},
		{Name: "copyFavicons", Include: []string{"favicons/*"}, Base: "favicons"},
	}
}

func applyCleanDefaults(cfg *Config) {
	if cfg.Clean == nil {
		cfg.Clean = &CleanConfig{}
	}
	if cfg.Clean.Junk == nil {
		cfg.Clean.Junk = append([]string(nil), DefaultJunk...)
	}
}

func applySchedulerDefaults(cfg *Config) {
	if cfg.Scheduler == nil {
		cfg.Scheduler = &SchedulerConfig{}
	}
	if cfg.Scheduler.FailurePolicy == "" {
		cfg.Scheduler.FailurePolicy = FailurePolicyFailFast
	}
}

func applyWatchDefaults(cfg *Config) {
	if cfg.Watch == nil {
		cfg.Watch = &WatchConfig{}
	}
	if cfg.Watch.Policy == "" {
		cfg.Watch.Policy = WatchPolicyCoalesce
	}
	if cfg.Watch.DebounceMS == 0 {
		cfg.Watch.DebounceMS = DefaultWatchDebounce
	}
	if cfg.Watch.QueueSize == 0 {
		cfg.Watch.QueueSize = DefaultWatchQueue
	}
}

func applyServerDefaults(cfg *Config) {
	if cfg.Server == nil {
		cfg.Server = &ServerConfig{}
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultServerHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
}

func applyDeployDefaults(cfg *Config) {
	if cfg.Deploy == nil {
		cfg.Deploy = &DeployConfig{}
	}
	d := cfg.Deploy
	if d.Provider == "" {
		d.Provider = ProviderGitHubPages
	}
	if d.Branch == "" {
		d.Branch = DefaultDeployBranch
	}
	if d.Message == "" {
		d.Message = DefaultDeployMessage
	}
	if d.S3 == nil {
		d.S3 = &S3Config{}
	}
	if d.S3.Region == "" {
		d.S3.Region = DefaultS3Region
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
