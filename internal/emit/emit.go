// Package emit renders trampolines and registration code for the resolved
// declaration model, one C++ source file per header, plus the module entry
// point and the embedded support header.
package emit

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/phobologic/bindgen/internal/diag"
	"github.com/phobologic/bindgen/internal/graph"
	"github.com/phobologic/bindgen/internal/logger"
	"github.com/phobologic/bindgen/internal/model"
	"github.com/phobologic/bindgen/internal/ranking"
)

// SupportHeaderName is the include name of the support header.
const SupportHeaderName = "bindgen.h"

//go:embed bindgen.h
var supportHeader string

// File is one generated output file.
type File struct {
	Path    string
	Content string
}

// Support returns the support header every generated file includes.
func Support() File {
	return File{Path: SupportHeaderName, Content: supportHeader}
}

// Emitter renders bindings for one module. It is not safe for concurrent
// use: overload matching records diagnostics and assigns parameter
// directions as it goes.
type Emitter struct {
	module string
	m      *model.Module
	g      *graph.Graph
	diags  *diag.Set
	log    *zap.SugaredLogger
}

// New creates an emitter over a resolved module and its inheritance graph.
func New(module string, m *model.Module, g *graph.Graph, diags *diag.Set) *Emitter {
	return &Emitter{
		module: module,
		m:      m,
		g:      g,
		diags:  diags,
		log:    logger.Named("emit"),
	}
}

// InitName is the registration function generated for a header.
func InitName(h *model.Header) string {
	return "bindgen_init_" + mangle(h.Name)
}

// headerState carries the per-header emission state.
type headerState struct {
	h        *model.Header
	manifest []model.ManifestEntry
}

func (s *headerState) add(kind model.Kind, binding, qualname, signature string, loc model.Location) {
	s.manifest = append(s.manifest, model.ManifestEntry{
		Binding:   binding,
		Kind:      kind,
		QualName:  qualname,
		Signature: signature,
		Header:    s.h.Name,
		Line:      loc.Line,
	})
}

// Header renders the binding source for one header and returns the
// manifest entries of everything it binds.
func (e *Emitter) Header(h *model.Header) (File, []model.ManifestEntry) {
	st := &headerState{h: h}

	var classes []*model.Class
	for _, c := range model.HeaderClasses(h) {
		if e.bindable(c) {
			classes = append(classes, c)
		}
	}
	classes = ranking.EmissionOrder(e.g, classes)

	var r buffer
	r.writeln("// Generated by bindgen from %s. Do not edit.", h.Path)
	r.writeln("")
	r.writeln("#include <%s>", SupportHeaderName)
	r.writeln("#include <%s>", h.Path)
	r.writeln("")

	var trampolines []*model.Class
	for _, c := range classes {
		if e.g.NeedsTrampoline(c.QualName()) {
			trampolines = append(trampolines, c)
		}
	}
	if len(trampolines) > 0 {
		r.writeln("namespace {")
		r.writeln("")
		for _, c := range trampolines {
			e.trampoline(&r, c)
			r.writeln("")
		}
		r.writeln("} // namespace")
		r.writeln("")
	}

	r.writeln("void %s(py::module_ &m) {", InitName(h))
	r.in()

	for _, en := range model.HeaderEnums(h) {
		e.enum(&r, st, en, "m", "")
	}
	for _, c := range classes {
		e.classDecl(&r, st, c)
	}
	for _, c := range classes {
		e.classDef(&r, st, c)
	}
	e.freeFunctions(&r, st, model.HeaderFunctions(h))

	r.out()
	r.writeln("}")

	e.log.Debugw("emitted header", logger.FieldHeader, h.Name, logger.FieldCount, len(st.manifest))
	return File{Path: h.Name + ".cpp", Content: r.String()}, st.manifest
}

// Module renders the module entry point calling each header's
// registration function in order.
func (e *Emitter) Module(headers []*model.Header) File {
	var r buffer
	r.writeln("// Generated by bindgen. Do not edit.")
	r.writeln("")
	r.writeln("#include <%s>", SupportHeaderName)
	r.writeln("")
	for _, h := range headers {
		r.writeln("void %s(py::module_ &m);", InitName(h))
	}
	r.writeln("")
	r.writeln("PYBIND11_MODULE(%s, m) {", mangle(lastSegment(e.module, ".")))
	r.in()
	for _, h := range headers {
		r.writeln("%s(m);", InitName(h))
	}
	r.out()
	r.writeln("}")
	return File{Path: "module.cpp", Content: r.String()}
}

// bindable reports whether a class gets bindings: named, not a template,
// not ignored, not failed, and inside a bindable class if nested.
func (e *Emitter) bindable(c *model.Class) bool {
	if c == nil || c.Ignored || c.Name == "" || len(c.Template) > 0 || e.diags.Failed(c.QualName()) {
		return false
	}
	if len(c.Scope) > 0 {
		if parent := e.m.Class(model.Join(c.Scope)); parent != nil {
			return e.bindable(parent)
		}
	}
	return true
}

// pyPath is the dotted exposed name of a class relative to the module.
func (e *Emitter) pyPath(c *model.Class) string {
	if len(c.Scope) > 0 {
		if parent := e.m.Class(model.Join(c.Scope)); parent != nil {
			return e.pyPath(parent) + "." + c.PyName()
		}
	}
	return c.PyName()
}

func (e *Emitter) binding(parts ...string) string {
	return strings.Join(append([]string{e.module}, parts...), ".")
}

// child extends an exposed name path without sharing its backing array.
func child(path []string, name string) []string {
	return append(append([]string(nil), path...), name)
}

var nonIdent = regexp.MustCompile(`[^A-Za-z0-9_]`)

// mangle turns a qualified name into an identifier fragment.
func mangle(qualname string) string {
	return nonIdent.ReplaceAllString(strings.ReplaceAll(qualname, "::", "__"), "_")
}

func lastSegment(s, sep string) string {
	if i := strings.LastIndex(s, sep); i >= 0 {
		return s[i+len(sep):]
	}
	return s
}

func classVar(c *model.Class) string {
	return "cls_" + mangle(c.QualName())
}

func trampolineName(c *model.Class) string {
	return "bindgen_trampoline_" + mangle(c.QualName())
}

// cstr renders a C++ string literal. Control bytes become three-digit
// octal escapes and UTF-8 passes through unchanged.
func cstr(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' || c == '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\t':
			b.WriteString(`\t`)
		case c == '?' && i > 0 && s[i-1] == '?':
			// trigraphs
			b.WriteString(`\?`)
		case c < 0x20 || c == 0x7f:
			fmt.Fprintf(&b, "\\%03o", c)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// typeArg wraps a type that contains a comma so it survives as one macro
// argument.
func typeArg(t string) string {
	if strings.Contains(t, ",") {
		return "PYBIND11_TYPE(" + t + ")"
	}
	return t
}

func paramName(p *model.Param, i int) string {
	if p.Name != "" {
		return p.Name
	}
	return fmt.Sprintf("param%d", i)
}

// declare renders a declaration of name with type t.
func declare(t model.TypeRef, name string) string {
	if t.Array {
		elem := t
		elem.Array = false
		elem.ArraySize = ""
		return fmt.Sprintf("%s %s[%s]", elem.String(), name, t.ArraySize)
	}
	return t.String() + " " + name
}

// valueType strips constness and references: the type of a local that
// receives an output parameter.
func valueType(t model.TypeRef) string {
	v := model.TypeRef{Name: t.BaseName(), Pointer: t.Pointer}
	if v.Pointer > 0 && (t.Reference == 0) {
		v.Pointer--
	}
	return v.String()
}

var qualifiable = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(::[A-Za-z_][A-Za-z0-9_]*)*$`)

var literalNames = map[string]bool{"true": true, "false": true, "nullptr": true, "NULL": true}

// defaultExpr renders a default argument valid at namespace scope: brace
// initializers get the parameter's value type and bare names are qualified
// with the innermost scope that declares them.
func (e *Emitter) defaultExpr(p *model.Param, scope []string) string {
	def := strings.TrimSpace(p.Default)
	if strings.HasPrefix(def, "{") {
		v := model.TypeRef{Name: p.Type.BaseName(), Pointer: p.Type.Pointer}
		return v.String() + def
	}
	if !qualifiable.MatchString(def) || literalNames[def] {
		return def
	}
	for i := len(scope); i > 0; i-- {
		candidate := model.Join(scope[:i]) + "::" + def
		if _, ok := e.m.Lookup(candidate); ok {
			return candidate
		}
	}
	return def
}

func docArg(doc string) string {
	return "py::doc(" + cstr(doc) + ")"
}
