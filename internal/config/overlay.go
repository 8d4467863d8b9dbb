// Package config loads per-header overlay files and the project file, and
// applies overlay directives to the declaration model.
package config

import (
	"bytes"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/phobologic/bindgen/internal/diag"
)

// ParamData overrides one parameter.
type ParamData struct {
	Name        string  `yaml:"name,omitempty"`
	Default     *string `yaml:"default,omitempty"`
	NoDefault   bool    `yaml:"no_default,omitempty"`
	DisableNone *bool   `yaml:"disable_none,omitempty"`
	ForceOut    bool    `yaml:"force_out,omitempty"`
	Direction   string  `yaml:"direction,omitempty"`
	ArraySize   *int    `yaml:"array_size,omitempty"`
	Ignore      bool    `yaml:"ignore,omitempty"`
}

// BufferData makes the pointer parameter Src accept any object implementing
// the buffer protocol. Type is in, out or inout.
type BufferData struct {
	Type    string `yaml:"type"`
	Src     string `yaml:"src"`
	Len     string `yaml:"len"`
	MinSize int    `yaml:"minsz,omitempty"`
}

// OverloadData customizes one function or one overload of it.
type OverloadData struct {
	Ignore            bool                 `yaml:"ignore,omitempty"`
	IgnorePure        bool                 `yaml:"ignore_pure,omitempty"`
	Rename            string               `yaml:"rename,omitempty"`
	Doc               *string              `yaml:"doc,omitempty"`
	DocAppend         string               `yaml:"doc_append,omitempty"`
	DisableNone       *bool                `yaml:"disable_none,omitempty"`
	NoReleaseGIL      *bool                `yaml:"no_release_gil,omitempty"`
	KeepAlive         [][]int              `yaml:"keepalive,omitempty"`
	Buffers           []BufferData         `yaml:"buffers,omitempty"`
	ReturnValuePolicy string               `yaml:"return_value_policy,omitempty"`
	ParamOverride     map[string]ParamData `yaml:"param_override,omitempty"`
}

// FunctionData customizes every overload of a name, with per-overload
// entries keyed by comma-joined parameter type spellings.
type FunctionData struct {
	OverloadData `yaml:",inline"`
	Overloads    map[string]OverloadData `yaml:"overloads,omitempty"`
}

// PropData customizes a field.
type PropData struct {
	Ignore    bool    `yaml:"ignore,omitempty"`
	Rename    string  `yaml:"rename,omitempty"`
	Access    string  `yaml:"access,omitempty"` // auto, readonly, readwrite
	Doc       *string `yaml:"doc,omitempty"`
	DocAppend string  `yaml:"doc_append,omitempty"`
}

// EnumValueData customizes one enumerator.
type EnumValueData struct {
	Ignore    bool    `yaml:"ignore,omitempty"`
	Rename    string  `yaml:"rename,omitempty"`
	Doc       *string `yaml:"doc,omitempty"`
	DocAppend string  `yaml:"doc_append,omitempty"`
}

// EnumData customizes an enumeration.
type EnumData struct {
	Ignore      bool                     `yaml:"ignore,omitempty"`
	Rename      string                   `yaml:"rename,omitempty"`
	Doc         *string                  `yaml:"doc,omitempty"`
	DocAppend   string                   `yaml:"doc_append,omitempty"`
	ValuePrefix string                   `yaml:"value_prefix,omitempty"`
	Arithmetic  bool                     `yaml:"arithmetic,omitempty"`
	Values      map[string]EnumValueData `yaml:"values,omitempty"`
}

// ClassData customizes a class.
type ClassData struct {
	Ignore                    bool                    `yaml:"ignore,omitempty"`
	Rename                    string                  `yaml:"rename,omitempty"`
	Doc                       *string                 `yaml:"doc,omitempty"`
	DocAppend                 string                  `yaml:"doc_append,omitempty"`
	IgnoredBases              []string                `yaml:"ignored_bases,omitempty"`
	BaseQualnames             map[string]string       `yaml:"base_qualnames,omitempty"`
	ForceNoTrampoline         bool                    `yaml:"force_no_trampoline,omitempty"`
	ForceNoDefaultConstructor bool                    `yaml:"force_no_default_constructor,omitempty"`
	TrampolineBase            string                  `yaml:"trampoline_base,omitempty"`
	ForceDepends              []string                `yaml:"force_depends,omitempty"`
	Attributes                map[string]PropData     `yaml:"attributes,omitempty"`
	Methods                   map[string]FunctionData `yaml:"methods,omitempty"`
	Enums                     map[string]EnumData     `yaml:"enums,omitempty"`
}

// TemplateData requests one template instantiation, exposed under its key.
type TemplateData struct {
	Qualname  string   `yaml:"qualname"`
	Params    []string `yaml:"params"`
	Doc       *string  `yaml:"doc,omitempty"`
	DocAppend string   `yaml:"doc_append,omitempty"`
}

// Defaults holds header-wide settings.
type Defaults struct {
	// Ignore hides every declaration the overlay does not name.
	Ignore               bool  `yaml:"ignore,omitempty"`
	ReportIgnoredMissing *bool `yaml:"report_ignored_missing,omitempty"`
}

// Overlay is the contents of one <header>.yml file.
type Overlay struct {
	Defaults      Defaults                `yaml:"defaults,omitempty"`
	StripPrefixes []string                `yaml:"strip_prefixes,omitempty"`
	Classes       map[string]ClassData    `yaml:"classes,omitempty"`
	Functions     map[string]FunctionData `yaml:"functions,omitempty"`
	Enums         map[string]EnumData     `yaml:"enums,omitempty"`
	Templates     map[string]TemplateData `yaml:"templates,omitempty"`

	file string
}

// File returns the path the overlay was loaded from.
func (o *Overlay) File() string {
	return o.file
}

// Parse decodes overlay YAML. Unknown keys are rejected.
func Parse(data []byte, file string) (*Overlay, error) {
	o := &Overlay{file: file}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(o); err != nil && !errors.Is(err, io.EOF) {
		return nil, &diag.ConfigError{File: file, Key: "<document>", Reason: err.Error()}
	}
	return o, nil
}

// Load reads an overlay file. A missing file yields an empty overlay.
func Load(path string) (*Overlay, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &Overlay{file: path}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading overlay %s", path)
	}
	return Parse(data, path)
}

// Marshal encodes an overlay as YAML with two-space indentation.
func Marshal(o *Overlay) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(o); err != nil {
		return nil, errors.Wrap(err, "encoding overlay")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(err, "encoding overlay")
	}
	return buf.Bytes(), nil
}
