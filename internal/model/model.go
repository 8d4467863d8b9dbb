// Package model defines the declaration model shared by every generator stage.
package model

import (
	"fmt"
	"strings"
)

// Kind is the tag of a declaration variant.
type Kind string

const (
	KindNamespace     Kind = "namespace"
	KindClass         Kind = "class"
	KindFunction      Kind = "function"
	KindField         Kind = "field"
	KindEnum          Kind = "enum"
	KindEnumValue     Kind = "enumvalue"
	KindTemplateParam Kind = "templateparam"
	KindAlias         Kind = "alias"
)

// Access is the C++ visibility of a declaration or base.
type Access string

const (
	Public    Access = "public"
	Protected Access = "protected"
	Private   Access = "private"
)

// Virtuality describes how a member function participates in dynamic dispatch.
type Virtuality string

const (
	NotVirtual    Virtuality = "none"
	Virtual       Virtuality = "virtual"
	Pure          Virtuality = "pure"
	FinalOverride Virtuality = "final"
)

// RefQualifier is the implicit object parameter qualifier of a method.
type RefQualifier string

const (
	NoRef  RefQualifier = ""
	LValue RefQualifier = "&"
	RValue RefQualifier = "&&"
)

// Direction tells the emitter how a parameter is marshaled.
type Direction string

const (
	In    Direction = "in"
	Out   Direction = "out"
	InOut Direction = "inout"
)

// Location is a position in a parsed header.
type Location struct {
	File string
	Line int
}

func (l Location) String() string {
	if l.File == "" {
		return "<unknown>"
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// Decl holds the attributes every declaration variant carries.
type Decl struct {
	Kind    Kind
	Name    string
	Rename  string
	Scope   []string // enclosing namespaces and classes, outermost first
	Loc     Location
	Doc     string
	Ignored bool
	Access  Access
}

// QualName returns the fully qualified C++ name.
func (d *Decl) QualName() string {
	path := make([]string, 0, len(d.Scope)+1)
	path = append(path, d.Scope...)
	path = append(path, d.Name)
	return Join(path)
}

// Path returns the qualified name as segments.
func (d *Decl) Path() []string {
	path := make([]string, 0, len(d.Scope)+1)
	path = append(path, d.Scope...)
	return append(path, d.Name)
}

// PyName returns the exposed name, honoring a rename.
func (d *Decl) PyName() string {
	if d.Rename != "" {
		return d.Rename
	}
	return d.Name
}

// Param is one function parameter.
type Param struct {
	Name         string
	Rename       string
	Type         TypeRef
	Default      string
	Direction    Direction
	DirectionSet bool // set by the overlay; the matcher keeps it
	DisableNone  bool
	NoDefault    bool
	Ignored      bool
}

// PyName returns the keyword name exposed for the parameter.
func (p *Param) PyName() string {
	if p.Rename != "" {
		return p.Rename
	}
	return p.Name
}

// HasDefault reports whether the parameter contributes a default argument.
func (p *Param) HasDefault() bool {
	return p.Default != "" && !p.NoDefault
}

// Buffer binds a pointer parameter to an object implementing the buffer
// protocol. The length parameter receives the buffer size in bytes.
type Buffer struct {
	Src       string
	Len       string
	Direction Direction
	MinSize   int
}

// Function is a free function, method, constructor or operator.
type Function struct {
	Decl
	Return      TypeRef
	Params      []Param
	Virtual     Virtuality
	Override    bool
	RefQual     RefQualifier
	Const       bool
	Static      bool
	Explicit    bool
	Constructor bool
	Destructor  bool
	Operator    bool
	Deleted     bool
	Template    []string
	Order       int

	// Overlay directives
	IgnorePure   bool
	NoReleaseGIL bool
	KeepAlive    [][2]int
	Buffers      []Buffer
	ReturnPolicy string

	// AliasOf is the qualified name of the original method when this entry was
	// introduced by a using-declaration in a derived class.
	AliasOf string
}

// Arity returns the number of parameters.
func (f *Function) Arity() int {
	return len(f.Params)
}

// IsVirtual reports whether the function takes part in dynamic dispatch.
func (f *Function) IsVirtual() bool {
	return f.Virtual != NotVirtual && f.Virtual != "" || f.Override
}

// IsPure reports whether the function is pure virtual.
func (f *Function) IsPure() bool {
	return f.Virtual == Pure
}

// IsFinal reports whether the function is marked final.
func (f *Function) IsFinal() bool {
	return f.Virtual == FinalOverride
}

// ParamKeys returns the canonical parameter type keys.
func (f *Function) ParamKeys() []string {
	keys := make([]string, len(f.Params))
	for i := range f.Params {
		keys[i] = f.Params[i].Type.Key()
	}
	return keys
}

// Signature is the dispatch key of a member function: name, canonical
// parameter types, constness and ref-qualifier.
func (f *Function) Signature() string {
	var b strings.Builder
	b.WriteString(f.Name)
	b.WriteByte('(')
	b.WriteString(strings.Join(f.ParamKeys(), ", "))
	b.WriteByte(')')
	if f.Const {
		b.WriteString(" const")
	}
	if f.RefQual != NoRef {
		b.WriteString(" ")
		b.WriteString(string(f.RefQual))
	}
	return b.String()
}

// Field is a data member or namespace-scope variable.
type Field struct {
	Decl
	Type     TypeRef
	Static   bool
	Readonly bool
	Default  string
}

// EnumValue is one enumerator. Value is the source expression, never renumbered.
type EnumValue struct {
	Decl
	Value string
}

// Enum is a scoped or unscoped enumeration.
type Enum struct {
	Decl
	Scoped      bool
	Values      []*EnumValue
	Arithmetic  bool
	ValuePrefix string
}

// Alias is a using-alias or typedef.
type Alias struct {
	Decl
	Target TypeRef
}

// Base is a direct base class specifier.
type Base struct {
	Name     string // as written
	Access   Access
	Virtual  bool
	Resolved string
	Ignored  bool
}

// Using is a using-declaration that re-exposes an inherited member.
type Using struct {
	Target string
	Access Access
	Loc    Location
}

// Class is a class, struct or template instantiation.
type Class struct {
	Decl
	Struct       bool
	Template     []string
	TemplateArgs []string
	Bases        []Base
	Methods      []*Function
	Fields       []*Field
	Enums        []*Enum
	Classes      []*Class
	Aliases      []*Alias
	Usings       []Using
	Final        bool
	Abstract     bool
	Header       string

	// Overlay directives
	NoTrampoline   bool
	NoDefaultCtor  bool
	TrampolineBase string
	ForceDepends   []string
	BaseQualnames  map[string]string
	IgnoredBases   []string
}

// MethodsNamed returns all member functions with the given name.
func (c *Class) MethodsNamed(name string) []*Function {
	var out []*Function
	for _, m := range c.Methods {
		if m.Name == name {
			out = append(out, m)
		}
	}
	return out
}

// Constructors returns the declared constructors.
func (c *Class) Constructors() []*Function {
	var out []*Function
	for _, m := range c.Methods {
		if m.Constructor {
			out = append(out, m)
		}
	}
	return out
}

// Nested returns the nested class with the given name.
func (c *Class) Nested(name string) *Class {
	for _, n := range c.Classes {
		if n.Name == name {
			return n
		}
	}
	return nil
}

// FindEnum returns the member enum with the given name.
func (c *Class) FindEnum(name string) *Enum {
	for _, e := range c.Enums {
		if e.Name == name {
			return e
		}
	}
	return nil
}

// FindField returns the data member with the given name.
func (c *Class) FindField(name string) *Field {
	for _, f := range c.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// FindAlias returns the member alias with the given name.
func (c *Class) FindAlias(name string) *Alias {
	for _, a := range c.Aliases {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// Namespace is a namespace block; the header root is the unnamed namespace.
type Namespace struct {
	Decl
	Namespaces []*Namespace
	Classes    []*Class
	Functions  []*Function
	Enums      []*Enum
	Aliases    []*Alias
}

// Header is one parsed header and the declarations found in it.
type Header struct {
	Name string // overlay key, usually the file stem
	Path string // relative to the include root
	Root *Namespace
}

// ManifestEntry maps one emitted binding back to its declaration.
type ManifestEntry struct {
	Binding   string `json:"binding"`
	Kind      Kind   `json:"kind"`
	QualName  string `json:"qualname"`
	Signature string `json:"signature,omitempty"`
	Header    string `json:"header"`
	Line      int    `json:"line"`
}

// Manifest lists every binding emitted in a run.
type Manifest struct {
	Module  string          `json:"module"`
	Entries []ManifestEntry `json:"bindings"`
}

// Join builds a qualified name from segments.
func Join(path []string) string {
	return strings.Join(path, "::")
}

// Split breaks a qualified name at top-level "::" separators, leaving
// template argument lists intact.
func Split(qualname string) []string {
	qualname = strings.TrimPrefix(strings.TrimSpace(qualname), "::")
	if qualname == "" {
		return nil
	}
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(qualname); i++ {
		switch qualname[i] {
		case '<', '(':
			depth++
		case '>', ')':
			depth--
		case ':':
			if depth == 0 && i+1 < len(qualname) && qualname[i+1] == ':' {
				parts = append(parts, strings.TrimSpace(qualname[start:i]))
				i++
				start = i + 1
			}
		}
	}
	return append(parts, strings.TrimSpace(qualname[start:]))
}

// StripTemplateArgs removes a trailing template argument list from a segment:
// "vector<int>" becomes "vector".
func StripTemplateArgs(segment string) string {
	if i := strings.IndexByte(segment, '<'); i >= 0 {
		return strings.TrimSpace(segment[:i])
	}
	return segment
}

// TemplateArgs returns the top-level template arguments of a segment.
func TemplateArgs(segment string) []string {
	open := strings.IndexByte(segment, '<')
	if open < 0 || !strings.HasSuffix(segment, ">") {
		return nil
	}
	inner := segment[open+1 : len(segment)-1]
	var args []string
	depth := 0
	start := 0
	for i := 0; i < len(inner); i++ {
		switch inner[i] {
		case '<', '(':
			depth++
		case '>', ')':
			depth--
		case ',':
			if depth == 0 {
				args = append(args, strings.TrimSpace(inner[start:i]))
				start = i + 1
			}
		}
	}
	if last := strings.TrimSpace(inner[start:]); last != "" {
		args = append(args, last)
	}
	return args
}
