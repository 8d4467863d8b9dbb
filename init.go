package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/phobologic/bindgen/internal/config"
)

const (
	sentinelStart = "# bindgen:start"
	sentinelEnd   = "# bindgen:end"
)

var notIdentifier = regexp.MustCompile(`[^A-Za-z0-9_]+`)

type initOptions struct {
	module string
	dryRun bool
	force  bool
}

func newInitCmd() *cobra.Command {
	var opts initOptions
	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Create a project file and ignore the generated sources",
		Long: `Write bindgen.toml to dir (default: the current directory) and add the
output directory to dir/.gitignore. The .gitignore entry is wrapped in
sentinel comments so it can be updated in place on later runs without
touching surrounding content.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			return initProject(dir, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVar(&opts.module, "module", "", "Python module name (default: derived from the directory name)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "print what would be written without modifying any file")
	cmd.Flags().BoolVar(&opts.force, "force", false, "overwrite an existing project file")
	return cmd
}

// initProject writes the project file and the .gitignore section for dir.
func initProject(dir string, opts initOptions, stdout, stderr io.Writer) error {
	module := opts.module
	if module == "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return errors.Wrap(err, "resolving project directory")
		}
		module = moduleName(filepath.Base(abs))
	}
	if module == "" {
		return errors.WithHint(errors.New("cannot derive a module name"), "pass --module")
	}

	p := config.DefaultProject(module)
	p.SetDir(dir)
	if info, err := os.Stat(filepath.Join(dir, "include")); err != nil || !info.IsDir() {
		p.IncludeRoots = []string{"."}
	}
	var project bytes.Buffer
	if err := p.Encode(&project); err != nil {
		return err
	}

	projectPath := filepath.Join(dir, config.ProjectFile)
	ignorePath := filepath.Join(dir, ".gitignore")
	existing, _ := os.ReadFile(ignorePath)
	ignore := applySection(string(existing), generateSection(p))

	if opts.dryRun {
		_, _ = fmt.Fprintf(stdout, "%s:\n%s\n%s:\n%s", projectPath, project.String(), ignorePath, ignore)
		return nil
	}

	if _, err := os.Stat(projectPath); err == nil && !opts.force {
		return errors.WithHint(
			errors.Newf("%s already exists", projectPath),
			"pass --force to overwrite it")
	}
	if err := os.MkdirAll(p.Path(p.OverlayDir), 0o755); err != nil {
		return errors.Wrap(err, "creating overlay directory")
	}
	if err := os.WriteFile(projectPath, project.Bytes(), 0o644); err != nil {
		return errors.Wrapf(err, "writing %s", projectPath)
	}
	if err := os.WriteFile(ignorePath, []byte(ignore), 0o644); err != nil {
		return errors.Wrapf(err, "writing %s", ignorePath)
	}

	_, _ = fmt.Fprintf(stderr, "wrote %s for module %s\n", projectPath, module)
	return nil
}

// moduleName turns a directory name into a Python identifier.
func moduleName(name string) string {
	name = strings.Trim(notIdentifier.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if name != "" && name[0] >= '0' && name[0] <= '9' {
		name = "_" + name
	}
	return name
}

// generateSection returns the sentinel-wrapped .gitignore block.
func generateSection(p *config.Project) string {
	body := "# generated Python bindings, rebuilt by `bindgen generate`\n/" +
		filepath.ToSlash(p.OutputDir) + "/"
	return sentinelStart + "\n" + body + "\n" + sentinelEnd
}

// applySection inserts section into content, replacing an existing sentinel
// block if present or appending if not.
func applySection(content, section string) string {
	start := strings.Index(content, sentinelStart)
	end := strings.Index(content, sentinelEnd)

	if start >= 0 && end > start {
		return content[:start] + section + content[end+len(sentinelEnd):]
	}

	if content == "" {
		return section + "\n"
	}
	// Append, ensuring a blank line separator.
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return content + "\n" + section + "\n"
}
