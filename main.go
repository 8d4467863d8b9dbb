// bindgen generates Python extension bindings from annotated C++ headers.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/phobologic/bindgen/internal/config"
	"github.com/phobologic/bindgen/internal/discover"
	"github.com/phobologic/bindgen/internal/generate"
	"github.com/phobologic/bindgen/internal/logger"
	"github.com/phobologic/bindgen/internal/parse"
	"github.com/phobologic/bindgen/internal/ranking"
	"github.com/phobologic/bindgen/internal/runtime"
	"github.com/phobologic/bindgen/internal/toon"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

type globalFlags struct {
	verbose bool
	logJSON bool
	project string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "bindgen",
		Short:         "Generate Python bindings from C++ headers",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logger.Initialize(g.verbose, g.logJSON)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "log debug output to stderr")
	pf.BoolVar(&g.logJSON, "log-json", false, "log as JSON")
	pf.StringVarP(&g.project, "project", "p", config.ProjectFile, "project file")

	root.AddCommand(
		newGenerateCmd(g),
		newScanCmd(g),
		newCreateYAMLCmd(g),
		newInitCmd(),
	)
	return root
}

func loadProject(g *globalFlags) (*config.Project, error) {
	p, err := config.LoadProject(g.project)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errors.WithHint(
				errors.Newf("no project file at %s", g.project),
				"run `bindgen init` to create one")
		}
		return nil, err
	}
	return p, nil
}

// projectInputs lists the headers a project binds: the configured header
// map when present, otherwise every header discovered under the include
// roots.
func projectInputs(p *config.Project) ([]generate.Input, error) {
	var inputs []generate.Input
	if len(p.Headers) > 0 {
		for _, key := range p.HeaderNames() {
			rel := p.Headers[key]
			file, err := findHeader(p, rel)
			if err != nil {
				return nil, err
			}
			inputs = append(inputs, generate.Input{File: file, Include: rel, Key: key})
		}
		return inputs, nil
	}

	seen := make(map[string]string)
	for _, root := range p.IncludeRoots {
		dir := p.Path(root)
		headers, err := discover.Headers(dir, discover.Options{})
		if err != nil {
			return nil, errors.Wrapf(err, "discovering headers in %s", root)
		}
		for _, h := range headers {
			if prev, ok := seen[h.Key]; ok {
				return nil, errors.WithHint(
					errors.Newf("headers %s and %s share the overlay key %q", prev, h.Path, h.Key),
					"list headers explicitly in the [headers] table of the project file")
			}
			seen[h.Key] = h.Path
			inputs = append(inputs, generate.Input{File: filepath.Join(dir, h.Path), Include: h.Path, Key: h.Key})
		}
	}
	return inputs, nil
}

func findHeader(p *config.Project, rel string) (string, error) {
	for _, root := range p.IncludeRoots {
		path := filepath.Join(p.Path(root), rel)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", errors.Newf("header %s not found in include roots %v", rel, p.IncludeRoots)
}

func newGenerateCmd(g *globalFlags) *cobra.Command {
	var (
		output string
		force  bool
		strict bool
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate binding sources and the binding manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(g)
			if err != nil {
				return err
			}
			inputs, err := projectInputs(p)
			if err != nil {
				return err
			}
			if len(inputs) == 0 {
				return errors.New("no headers found")
			}

			outDir := p.Path(p.OutputDir)
			if output != "" {
				outDir = output
			}
			manifestPath := filepath.Join(outDir, "manifest."+p.Manifest)

			sources := []string{g.project}
			for _, in := range inputs {
				sources = append(sources, in.File)
				if overlay := p.OverlayPath(in.Key); fileExists(overlay) {
					sources = append(sources, overlay)
				}
			}
			stderr := cmd.ErrOrStderr()
			if !force && generate.UpToDate(manifestPath, sources) {
				_, _ = fmt.Fprintln(stderr, "bindings are up to date")
				return nil
			}

			res, err := generate.Run(cmd.Context(), inputs, generate.Options{
				Module:  p.Module,
				Workers: p.Workers,
				Overlay: generate.OverlayDir(p.Path(p.OverlayDir)),
			})
			if err != nil {
				return err
			}
			if err := generate.Write(outDir, res.Files); err != nil {
				return err
			}
			if err := writeManifest(manifestPath, p.Manifest, res); err != nil {
				return err
			}

			for _, d := range res.Diagnostics.Items() {
				_, _ = fmt.Fprintf(stderr, "warning: %v\n", d)
			}
			_, _ = fmt.Fprintf(stderr, "generated %d bindings in %d files under %s\n",
				len(res.Manifest.Entries), len(res.Files), outDir)
			if strict {
				return res.Diagnostics.Err()
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output directory (default from the project file)")
	cmd.Flags().BoolVar(&force, "force", false, "regenerate even when outputs are newer than every input")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail when any declaration could not be bound")
	return cmd
}

func writeManifest(path, format string, res *generate.Result) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "creating %s", filepath.Dir(path))
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating manifest")
	}
	defer f.Close()

	if format == config.FormatJSON {
		if err := toon.EncodeJSON(f, &res.Manifest); err != nil {
			return err
		}
	} else if _, err := io.WriteString(f, toon.Encode(&res.Manifest)); err != nil {
		return errors.Wrap(err, "writing manifest")
	}
	return errors.Wrap(f.Close(), "closing manifest")
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func newScanCmd(g *globalFlags) *cobra.Command {
	var (
		maxClasses  int
		symbol      string
		header      string
		withMembers bool
		slots       bool
	)
	cmd := &cobra.Command{
		Use:   "scan [header...]",
		Short: "List the classes of headers, most derived-from first",
		Long: `List the classes found in headers, ranked by how much of the class
hierarchy builds on them. Without arguments the project's headers are
scanned with their overlays applied.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := generate.Options{Module: "scan"}
			var inputs []generate.Input
			if len(args) > 0 {
				for _, path := range args {
					inputs = append(inputs, generate.Input{File: path, Include: path, Key: config.HeaderKey(path)})
				}
			} else {
				p, err := loadProject(g)
				if err != nil {
					return err
				}
				if inputs, err = projectInputs(p); err != nil {
					return err
				}
				opts.Module = p.Module
				opts.Overlay = generate.OverlayDir(p.Path(p.OverlayDir))
			}

			res, err := generate.Analyze(cmd.Context(), inputs, opts)
			if err != nil {
				return err
			}

			ranked := res.Graph.Centrality()
			if symbol != "" {
				ranked = ranking.FilterBySymbol(res.Graph, res.Module, ranked, symbol, withMembers)
			}
			if header != "" {
				ranked = ranking.FilterByHeader(res.Module, ranked, header)
			}
			ranked = ranking.SelectClasses(ranked, maxClasses)

			rows := make([][]string, 0, len(ranked))
			for _, q := range ranked {
				c := res.Module.Class(q)
				if c == nil {
					continue
				}
				var bases []string
				for _, e := range res.Graph.Bases(q) {
					bases = append(bases, e.Base)
				}
				rows = append(rows, []string{
					q,
					c.Header,
					strconv.Itoa(c.Loc.Line),
					strings.Join(bases, " "),
					strconv.FormatBool(res.Graph.NeedsTrampoline(q)),
					strconv.FormatBool(c.Abstract),
				})
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(out, toon.Tabular("classes",
				[]string{"qualname", "header", "line", "bases", "trampoline", "abstract"}, rows))

			if slots {
				var slotRows [][]string
				for _, q := range ranked {
					if !res.Graph.NeedsTrampoline(q) {
						continue
					}
					for _, s := range runtime.NewTable(res.Graph, q).Slots() {
						slotRows = append(slotRows, []string{q, s.Signature, s.Method, s.Interface, strconv.FormatBool(s.Pure)})
					}
				}
				_, _ = fmt.Fprintln(out, toon.Tabular("slots",
					[]string{"class", "signature", "method", "interface", "pure"}, slotRows))
			}

			if items := res.Diagnostics.Items(); len(items) > 0 {
				diagRows := make([][]string, len(items))
				for i, d := range items {
					diagRows[i] = []string{d.QualName, d.Loc.String(), d.Err.Error()}
				}
				_, _ = fmt.Fprintln(out, toon.Tabular("diagnostics",
					[]string{"qualname", "location", "error"}, diagRows))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&maxClasses, "max-classes", "n", 0, "maximum number of classes to list")
	cmd.Flags().StringVarP(&symbol, "symbol", "s", "", "only classes whose name contains this, with their bases and derived classes")
	cmd.Flags().BoolVar(&withMembers, "members", false, "with --symbol, fall back to matching method and field names")
	cmd.Flags().StringVarP(&header, "header", "f", "", "only classes from headers whose name contains this")
	cmd.Flags().BoolVar(&slots, "slots", false, "also list the overridable methods each trampoline forwards")
	return cmd
}

func newCreateYAMLCmd(g *globalFlags) *cobra.Command {
	var (
		write bool
		force bool
	)
	cmd := &cobra.Command{
		Use:   "create-yaml <header>",
		Short: "Print an overlay skeleton naming every declaration of a header",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			source, err := os.ReadFile(path)
			if err != nil {
				return errors.Wrap(err, "reading header")
			}
			key := config.HeaderKey(path)
			h, err := parse.New().ParseHeader(cmd.Context(), source, path, key)
			if err != nil {
				return err
			}
			data, err := config.Marshal(config.Skeleton(h))
			if err != nil {
				return err
			}

			if !write {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			p, err := loadProject(g)
			if err != nil {
				return err
			}
			dest := p.OverlayPath(key)
			if fileExists(dest) && !force {
				return errors.WithHint(
					errors.Newf("%s already exists", dest),
					"pass --force to overwrite it")
			}
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return errors.Wrapf(err, "creating %s", filepath.Dir(dest))
			}
			if err := os.WriteFile(dest, data, 0o644); err != nil {
				return errors.Wrapf(err, "writing %s", dest)
			}
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", dest)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&write, "write", "w", false, "write into the project's overlay directory instead of stdout")
	cmd.Flags().BoolVar(&force, "force", false, "with --write, overwrite an existing overlay")
	return cmd
}
