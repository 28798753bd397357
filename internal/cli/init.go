package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/AndreyAkinshin/sitepipe/internal/config"
	"github.com/AndreyAkinshin/sitepipe/internal/errors"
	"github.com/AndreyAkinshin/sitepipe/internal/output"
	"github.com/AndreyAkinshin/sitepipe/internal/project"
)

// starterFiles are written into a new source tree, keyed by path relative
// to it.
var starterFiles = map[string]string{
	"index.html": `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>sitepipe</title>
  <link rel="stylesheet" href="css/style.css">
</head>
<body>
  <h1>Hello</h1>
  <script src="js/main.js"></script>
</body>
</html>
`,
	"sass/_variables.scss": "$accent: #0a7d5a;\n",
	"sass/style.scss": `@use "variables" as *;

h1 {
  color: $accent;
}
`,
	"js/app.js": "console.log(\"sitepipe\");\n",
}

// starterDirs are created in a new source tree even when empty.
var starterDirs = []string{"img", "img/svg-sprite", "fonts", "favicons"}

// cmdInit initializes a new sitepipe project in the current directory.
// It is idempotent: only missing files are created.
func cmdInit(args []string) int {
	if wantsHelp(args) {
		printInitUsage()
		return 0
	}
	if code := rejectArgs("init", args); code != 0 {
		return code
	}

	cwd, err := os.Getwd()
	if err != nil {
		out.ErrorPrefix("%v", err)
		return errors.ExitRuntimeError
	}

	w := output.New()
	created, isNewProject, err := initProject(cwd)
	if err != nil {
		out.ErrorPrefix("%v", err)
		return loadExitCode(err)
	}

	w.Println("")
	switch {
	case isNewProject:
		w.Success("Initialized sitepipe project in %s", cwd)
	case len(created) > 0:
		w.Success("Updated sitepipe project")
	default:
		w.Info("Project already initialized (nothing to do)")
	}

	if len(created) > 0 {
		w.HelpSection("Created:")
		for _, f := range created {
			w.Println("  - %s", f)
		}
	}

	if isNewProject {
		printNextSteps(w)
	}
	return 0
}

// initProject creates the configuration file, the source layout and the
// .gitignore entries under root. It returns the created paths relative to
// root.
func initProject(root string) (created []string, isNewProject bool, err error) {
	cfg := config.Default()
	if path, ok := existingConfig(root); ok {
		cfg, _, err = config.LoadAndValidate(path)
		if err != nil {
			return nil, false, fmt.Errorf("failed to load configuration: %w", err)
		}
	} else {
		isNewProject = true
		data, err := json.MarshalIndent(&config.Config{Paths: cfg.Paths}, "", "  ")
		if err != nil {
			return nil, false, err
		}
		data = append(data, '\n')
		path := filepath.Join(root, project.ConfigFileNames[0])
		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, false, errors.Filesystem(path, err)
		}
		created = append(created, project.ConfigFileNames[0])
	}

	src := cfg.Paths.Source
	for _, dir := range starterDirs {
		path := filepath.Join(root, src, filepath.FromSlash(dir))
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return created, isNewProject, errors.Filesystem(path, err)
		}
		created = append(created, filepath.ToSlash(filepath.Join(src, dir))+"/")
	}

	// Starter files only seed an empty tree; an existing site keeps its own.
	if isNewProject {
		for _, rel := range sortedKeys(starterFiles) {
			path := filepath.Join(root, src, filepath.FromSlash(rel))
			if _, err := os.Stat(path); err == nil {
				continue
			}
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return created, isNewProject, errors.Filesystem(path, err)
			}
			if err := os.WriteFile(path, []byte(starterFiles[rel]), 0644); err != nil {
				return created, isNewProject, errors.Filesystem(path, err)
			}
			created = append(created, filepath.ToSlash(filepath.Join(src, rel)))
		}
	}

	if updated := updateGitignore(root, gitignoreEntries(cfg)); updated {
		created = append(created, ".gitignore")
	}
	return created, isNewProject, nil
}

func existingConfig(dir string) (string, bool) {
	for _, name := range project.ConfigFileNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}

// gitignoreEntries lists the build tree and the development outputs written
// into the source tree.
func gitignoreEntries(cfg *config.Config) []string {
	src := strings.TrimSuffix(filepath.ToSlash(cfg.Paths.Source), "/")
	return []string{
		"# sitepipe",
		strings.TrimSuffix(filepath.ToSlash(cfg.Paths.Build), "/") + "/",
		src + "/" + cfg.Style.DevOutput + "/",
		src + "/" + cfg.Script.DevOutput + "/" + cfg.Script.Bundle,
		src + "/" + cfg.Sprite.DevOutput + "/" + cfg.Sprite.Name,
		".env",
	}
}

// updateGitignore appends entries to root/.gitignore unless a "# sitepipe"
// block is already present. It reports whether the file changed.
func updateGitignore(root string, entries []string) bool {
	gitignorePath := filepath.Join(root, ".gitignore")

	existingContent := ""
	if data, err := os.ReadFile(gitignorePath); err == nil {
		existingContent = string(data)
	}

	if strings.Contains(existingContent, entries[0]) {
		return false
	}

	var content strings.Builder
	if existingContent != "" {
		content.WriteString(existingContent)
		if !strings.HasSuffix(existingContent, "\n") {
			content.WriteString("\n")
		}
		content.WriteString("\n")
	}

	for _, entry := range entries {
		content.WriteString(entry)
		content.WriteString("\n")
	}

	if err := os.WriteFile(gitignorePath, []byte(content.String()), 0644); err != nil {
		out.WarningSimple("could not update .gitignore: %v", err)
		return false
	}
	return true
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// printInitUsage prints the help text for the init command.
func printInitUsage() {
	w := output.New()

	w.HelpTitle("sitepipe init - create a new project")

	w.HelpSection("Usage:")
	w.HelpUsage("sitepipe init")

	w.HelpSection("Description:")
	w.Println("  Writes sitepipe.json, creates the conventional source layout with a")
	w.Println("  starter page, stylesheet and script, and adds the generated files to")
	w.Println("  .gitignore. Existing files are left alone.")

	w.HelpSection("Options:")
	w.HelpFlag("-h, --help", "Show this help", helpFlagWidthShort)
	w.Println("")
}

// printNextSteps prints helpful guidance after initialization.
func printNextSteps(w *output.Writer) {
	w.HelpSection("Next steps:")
	w.Println("  1. Run 'sitepipe dev' and open http://localhost:3000")
	w.Println("  2. Edit src/sass/style.scss and watch the page update")
	w.Println("  3. Run 'sitepipe build --no-serve' to produce build/")
	w.Println("  4. Set deploy.provider in sitepipe.json and run 'sitepipe deploy'")
	w.Println("")
}
