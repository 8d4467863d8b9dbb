// Package generate runs the whole pipeline: parse headers concurrently,
// apply overlays, instantiate templates, resolve names, build the
// inheritance graph and emit bindings. Failures are collected per
// declaration; independent declarations are still emitted.
package generate

import (
	"context"
	"os"
	"path/filepath"
	"runtime"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/phobologic/bindgen/internal/config"
	"github.com/phobologic/bindgen/internal/diag"
	"github.com/phobologic/bindgen/internal/emit"
	"github.com/phobologic/bindgen/internal/graph"
	"github.com/phobologic/bindgen/internal/logger"
	"github.com/phobologic/bindgen/internal/model"
	"github.com/phobologic/bindgen/internal/parse"
	"github.com/phobologic/bindgen/internal/resolve"
)

// DefaultMaxHeaderSize is the size above which headers are skipped.
const DefaultMaxHeaderSize = 2_000_000 // 2 MB

// Input is one header to bind.
type Input struct {
	File    string // path to read
	Include string // path used in #include and locations
	Key     string // overlay key
}

// OverlayFunc returns the overlay for a header key, or nil when there is none.
type OverlayFunc func(key string) (*config.Overlay, error)

// Options configures a run.
type Options struct {
	Module        string
	Workers       int
	MaxHeaderSize int64
	Overlay       OverlayFunc
}

// Result is the output of a run.
type Result struct {
	Module      *model.Module
	Graph       *graph.Graph
	Files       []emit.File
	Manifest    model.Manifest
	Diagnostics *diag.Set
}

// OverlayDir loads overlays named <key>.yml from dir. A missing file is an
// empty overlay.
func OverlayDir(dir string) OverlayFunc {
	return func(key string) (*config.Overlay, error) {
		return config.Load(filepath.Join(dir, key+".yml"))
	}
}

// Parse reads and parses headers with a bounded worker pool, one parser
// per worker. Headers that cannot be read or parsed are reported and left
// out; the returned headers keep input order.
func Parse(ctx context.Context, inputs []Input, workers int, maxSize int64) ([]*model.Header, *diag.Set, error) {
	log := logger.Named("generate")
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxHeaderSize
	}

	headers := make([]*model.Header, len(inputs))
	failures := make([]error, len(inputs))
	parsers := make(chan *parse.Parser, workers)
	for range workers {
		parsers <- parse.New()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, in := range inputs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			p := <-parsers
			defer func() { parsers <- p }()

			h, err := parseOne(ctx, p, in, maxSize)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				failures[i] = err
				return nil
			}
			headers[i] = h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	diags := &diag.Set{}
	var out []*model.Header
	for i, h := range headers {
		if failures[i] != nil {
			log.Warnw("skipping header", logger.FieldFile, inputs[i].Include, logger.FieldError, failures[i])
			diags.Add(inputs[i].Key, model.Location{File: inputs[i].Include}, failures[i])
			continue
		}
		out = append(out, h)
	}
	log.Debugw("parsed headers", logger.FieldCount, len(out))
	return out, diags, nil
}

func parseOne(ctx context.Context, p *parse.Parser, in Input, maxSize int64) (*model.Header, error) {
	info, err := os.Stat(in.File)
	if err != nil {
		return nil, errors.Wrap(err, "reading header")
	}
	if info.Size() > maxSize {
		return nil, errors.Newf("header is %d bytes, limit is %d", info.Size(), maxSize)
	}
	source, err := os.ReadFile(in.File)
	if err != nil {
		return nil, errors.Wrap(err, "reading header")
	}
	return p.ParseHeader(ctx, source, in.Include, in.Key)
}

// Analyze parses, applies overlays, instantiates templates, resolves names
// and builds the inheritance graph, without emitting anything.
func Analyze(ctx context.Context, inputs []Input, opts Options) (*Result, error) {
	if opts.Module == "" {
		return nil, errors.New("module name is required")
	}

	headers, diags, err := Parse(ctx, inputs, opts.Workers, opts.MaxHeaderSize)
	if err != nil {
		return nil, err
	}

	m := model.NewModule(opts.Module)
	for _, h := range headers {
		m.AddHeader(h)
	}

	var templates []config.Template
	for _, h := range headers {
		if opts.Overlay == nil {
			break
		}
		o, err := opts.Overlay(h.Name)
		if err != nil {
			diags.Add(h.Name, model.Location{File: h.Path}, err)
			continue
		}
		templates = append(templates, config.Apply(o, h, diags)...)
	}

	r := resolve.New(m, diags)
	byName := make(map[string]*model.Header, len(headers))
	for _, h := range headers {
		byName[h.Name] = h
	}
	for _, t := range templates {
		inst, err := r.Instantiate(byName[t.Header], t.Name, t.QualName, t.Params)
		if err != nil {
			diags.Add(t.QualName, model.Location{File: byName[t.Header].Path}, err)
			continue
		}
		if t.Doc != "" {
			inst.Doc = t.Doc
		}
	}
	r.Module()

	g := graph.Build(m)
	g.Resolve()
	g.Check(diags)

	return &Result{
		Module:      m,
		Graph:       g,
		Manifest:    model.Manifest{Module: opts.Module},
		Diagnostics: diags,
	}, nil
}

// Run executes the whole pipeline over inputs.
func Run(ctx context.Context, inputs []Input, opts Options) (*Result, error) {
	res, err := Analyze(ctx, inputs, opts)
	if err != nil {
		return nil, err
	}

	headers := res.Module.Headers
	e := emit.New(opts.Module, res.Module, res.Graph, res.Diagnostics)
	for _, h := range headers {
		f, entries := e.Header(h)
		res.Files = append(res.Files, f)
		res.Manifest.Entries = append(res.Manifest.Entries, entries...)
	}
	res.Files = append(res.Files, e.Module(headers), emit.Support())

	logSummary(logger.Named("generate"), res)
	return res, nil
}

func logSummary(log *zap.SugaredLogger, res *Result) {
	for _, d := range res.Diagnostics.Items() {
		log.Warnw("declaration skipped",
			logger.FieldQualName, d.QualName,
			logger.FieldFile, d.Loc.String(),
			logger.FieldError, d.Err,
		)
	}
	log.Infow("generated bindings",
		logger.FieldCount, len(res.Manifest.Entries),
		"files", len(res.Files),
		"failed", res.Diagnostics.Len(),
	)
}

// Write stores generated files under dir.
func Write(dir string, files []emit.File) error {
	for _, f := range files {
		path := filepath.Join(dir, f.Path)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return errors.Wrapf(err, "creating %s", filepath.Dir(path))
		}
		if err := os.WriteFile(path, []byte(f.Content), 0o644); err != nil {
			return errors.Wrapf(err, "writing %s", path)
		}
	}
	return nil
}

// UpToDate reports whether target is newer than every source. A missing
// target or source is never up to date.
func UpToDate(target string, sources []string) bool {
	info, err := os.Stat(target)
	if err != nil {
		return false
	}
	mtime := info.ModTime()

	for _, src := range sources {
		fi, err := os.Stat(src)
		if err != nil {
			return false
		}
		if !fi.ModTime().Before(mtime) {
			return false
		}
	}
	return true
}
