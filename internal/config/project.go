package config

import (
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
)

// ProjectFile is the default project file name.
const ProjectFile = "bindgen.toml"

// Manifest formats.
const (
	FormatTOON = "toon"
	FormatJSON = "json"
)

// Project is the contents of bindgen.toml.
type Project struct {
	Module       string            `toml:"module"`
	IncludeRoots []string          `toml:"include_roots"`
	Headers      map[string]string `toml:"headers,omitempty"` // overlay key -> header path
	OverlayDir   string            `toml:"overlay_dir"`
	OutputDir    string            `toml:"output_dir"`
	Manifest     string            `toml:"manifest"`
	Workers      int               `toml:"workers,omitempty"`

	dir string
}

// DefaultProject returns the settings init writes.
func DefaultProject(module string) *Project {
	return &Project{
		Module:       module,
		IncludeRoots: []string{"include"},
		OverlayDir:   "gen",
		OutputDir:    "build/bindgen",
		Manifest:     FormatTOON,
	}
}

// LoadProject reads and validates a project file. Unknown keys are errors.
func LoadProject(path string) (*Project, error) {
	p := &Project{}
	meta, err := toml.DecodeFile(path, p)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing project file %s", path)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, errors.WithHint(
			errors.Newf("%s: unknown keys: %s", path, strings.Join(keys, ", ")),
			"check the key names against the documented project settings",
		)
	}
	p.dir = filepath.Dir(path)
	if err := p.validate(); err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return p, nil
}

func (p *Project) validate() error {
	if p.Module == "" {
		return errors.New("module is required")
	}
	if len(p.IncludeRoots) == 0 {
		p.IncludeRoots = []string{"."}
	}
	if p.OverlayDir == "" {
		p.OverlayDir = "gen"
	}
	if p.OutputDir == "" {
		p.OutputDir = "build/bindgen"
	}
	switch p.Manifest {
	case "":
		p.Manifest = FormatTOON
	case FormatTOON, FormatJSON:
	default:
		return errors.Newf("manifest must be %q or %q, got %q", FormatTOON, FormatJSON, p.Manifest)
	}
	if p.Workers < 0 {
		return errors.Newf("workers must not be negative, got %d", p.Workers)
	}
	return nil
}

// Encode writes the project as TOML.
func (p *Project) Encode(w io.Writer) error {
	return errors.Wrap(toml.NewEncoder(w).Encode(p), "encoding project file")
}

// Dir returns the directory holding the project file.
func (p *Project) Dir() string {
	if p.dir == "" {
		return "."
	}
	return p.dir
}

// SetDir sets the directory relative paths are resolved against.
func (p *Project) SetDir(dir string) {
	p.dir = dir
}

// Path resolves a project-relative path.
func (p *Project) Path(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(p.Dir(), rel)
}

// OverlayPath returns the overlay file for a header key.
func (p *Project) OverlayPath(header string) string {
	return p.Path(filepath.Join(p.OverlayDir, header+".yml"))
}

// HeaderNames returns the configured header keys in sorted order.
func (p *Project) HeaderNames() []string {
	names := make([]string, 0, len(p.Headers))
	for name := range p.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HeaderKey derives an overlay key from a header path: the file name
// without its extension.
func HeaderKey(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
