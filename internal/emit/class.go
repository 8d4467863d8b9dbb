package emit

import (
	"fmt"
	"strings"

	"github.com/phobologic/bindgen/internal/model"
	"github.com/phobologic/bindgen/internal/overload"
)

// classDecl declares the class object and registers its enums. All
// classes of a header are declared before any is defined so default
// arguments can refer to every bound type.
func (e *Emitter) classDecl(r *buffer, st *headerState, c *model.Class) {
	q := c.QualName()
	scope := "m"
	if parent := e.parent(c); parent != nil {
		scope = classVar(parent)
	}

	params := []string{q}
	if e.g.NeedsTrampoline(q) {
		params = append(params, trampolineName(c))
	}
	bases := e.boundBases(c)
	params = append(params, bases...)

	args := []string{scope, cstr(c.PyName())}
	if c.Final {
		args = append(args, "py::is_final()")
	}
	if len(bases) > 1 {
		args = append(args, "py::multiple_inheritance()")
	}
	r.writeln("py::class_<%s> %s(%s);", strings.Join(params, ", "), classVar(c), strings.Join(args, ", "))
	st.add(model.KindClass, e.binding(e.pyPath(c)), q, "", c.Loc)

	for _, en := range c.Enums {
		e.enum(r, st, en, classVar(c), e.pyPath(c))
	}
}

func (e *Emitter) parent(c *model.Class) *model.Class {
	if len(c.Scope) == 0 {
		return nil
	}
	return e.m.Class(model.Join(c.Scope))
}

// boundBases lists the public, resolved, bound bases of c.
func (e *Emitter) boundBases(c *model.Class) []string {
	var out []string
	for _, b := range c.Bases {
		if b.Ignored || b.Resolved == "" || b.Access != model.Public {
			continue
		}
		if base := e.m.Class(b.Resolved); base != nil && e.bindable(base) {
			out = append(out, b.Resolved)
		}
	}
	return out
}

// classDef attaches constructors, methods and fields to a declared class.
func (e *Emitter) classDef(r *buffer, st *headerState, c *model.Class) {
	q := c.QualName()
	v := classVar(c)
	t := target{class: c, path: strings.Split(e.pyPath(c), ".")}
	if e.g.NeedsTrampoline(q) {
		t.trampoline = trampolineName(c)
	}

	r.writeln("")
	if c.Doc != "" {
		r.writeln("%s.doc() = %s;", v, cstr(c.Doc))
	}
	r.writeln(v)
	r.in()

	var converters []string
	declared := false
	for _, s := range overload.ClassSets(c, e.diags) {
		if s.Constructors {
			declared = true
			converters = e.constructors(r, st, t, s)
			continue
		}
		e.bindSet(r, st, t, s)
	}
	if !declared {
		for _, f := range c.Methods {
			declared = declared || f.Constructor
		}
	}
	if !declared && !c.NoDefaultCtor && e.constructible(t) {
		r.writeln(".def(%s<>(), release_gil())", initFn(t))
		st.add(model.KindFunction, e.binding(child(t.path, "__init__")...), q+"::"+c.Name, c.Name+"()", c.Loc)
	}

	for _, f := range c.Fields {
		e.field(r, st, t, f)
	}
	r.writeln(";")
	r.out()

	for _, from := range converters {
		r.writeln("py::implicitly_convertible<%s, %s>();", from, q)
	}
}

func (e *Emitter) constructible(t target) bool {
	return !t.class.Abstract || t.trampoline != ""
}

func initFn(t target) string {
	if t.trampoline != "" {
		return "py::init_alias"
	}
	return "py::init"
}

// constructors binds the public constructors of a class and returns the
// bound types its converting constructors accept.
func (e *Emitter) constructors(r *buffer, st *headerState, t target, s *overload.Set) []string {
	if !e.constructible(t) {
		return nil
	}
	var converters []string
	for _, f := range s.Functions() {
		if f.Ignored || f.Access != model.Public {
			continue
		}
		types := make([]string, len(f.Params))
		for i := range f.Params {
			types[i] = f.Params[i].Type.String()
		}
		r.writeln(".def(%s<%s>()", initFn(t), strings.Join(types, ", "))
		e.extras(r, f, e.pyArgs(f, f.Params, allIndexes(f)), ")")
		st.add(model.KindFunction, e.binding(child(t.path, "__init__")...), f.QualName(), f.Signature(), f.Loc)

		if from := e.converter(t.class, f); from != "" {
			converters = append(converters, from)
		}
	}
	return converters
}

// converter returns the bound class a non-explicit constructor callable
// with one argument converts from.
func (e *Emitter) converter(c *model.Class, f *model.Function) string {
	if f.Explicit || f.Arity() == 0 || f.Arity()-overload.TrailingDefaults(f) > 1 {
		return ""
	}
	pt := f.Params[0].Type
	if pt.Pointer > 0 || pt.Reference == 2 || pt.Array {
		return ""
	}
	name := pt.Canonical
	if name == "" {
		name = pt.BaseName()
	}
	from := e.m.Class(name)
	if from == nil || from == c || !e.bindable(from) {
		return ""
	}
	return from.QualName()
}

// field binds one data member. Protected members go through the
// trampoline; unsized arrays are skipped.
func (e *Emitter) field(r *buffer, st *headerState, t target, f *model.Field) {
	if f.Ignored || f.Access == model.Private || f.Type.Array && f.Type.ArraySize == "" {
		return
	}
	if f.Access == model.Protected && t.trampoline == "" {
		return
	}
	q := t.qualname()
	ref := q
	self := "self"
	if f.Access == model.Protected {
		ref = t.trampoline
		self = fmt.Sprintf("((%s &)self)", t.trampoline)
	}
	name := f.PyName()
	doc := ""
	if f.Doc != "" {
		doc = ", " + cstr(f.Doc)
	}

	switch {
	case f.Type.Array:
		elem := f.Type
		elem.Array = false
		elem.ArraySize = ""
		et := model.TypeRef{Name: elem.BaseName(), Pointer: elem.Pointer}.String()
		r.writeln(".def_property_readonly(%s, [](%s &self) {", cstr(name), q)
		r.in()
		r.writeln("return py::memoryview::from_buffer(")
		r.writeln("  (void *)&%s.%s, sizeof(%s), py::format_descriptor<%s>::value,", self, f.Name, et, et)
		r.writeln("  {%s}, {sizeof(%s)}, %t);", f.Type.ArraySize, et, f.Readonly)
		r.out()
		r.writeln("}%s)", doc)
	case f.Type.Reference > 0:
		r.writeln(".def_property_readonly(%s, [](const %s &self) -> %s { return %s.%s; }%s)",
			cstr(name), q, f.Type.String(), strings.Replace(self, "&)", "const &)", 1), f.Name, doc)
	default:
		def := ".def_readwrite"
		if f.Readonly {
			def = ".def_readonly"
		}
		if f.Static {
			def += "_static"
		}
		r.writeln("%s(%s, &%s::%s%s)", def, cstr(name), ref, f.Name, doc)
	}
	st.add(model.KindField, e.binding(child(t.path, name)...), f.QualName(), "", f.Loc)
}

// enum registers an enum in scope. Values keep declaration order and their
// source values; an unnamed enum becomes integer attributes of the scope.
func (e *Emitter) enum(r *buffer, st *headerState, en *model.Enum, scope, parentPath string) {
	if en.Ignored {
		return
	}
	var path []string
	if parentPath != "" {
		path = strings.Split(parentPath, ".")
	}

	if en.Name == "" {
		for _, v := range en.Values {
			if v.Ignored {
				continue
			}
			r.writeln("%s.attr(%s) = (int)%s;", scope, cstr(v.PyName()), qualify(model.Join(en.Scope), v.Name))
			st.add(model.KindEnumValue, e.binding(child(path, v.PyName())...), qualify(model.Join(en.Scope), v.Name), "", v.Loc)
		}
		return
	}

	q := en.QualName()
	args := []string{scope, cstr(en.PyName())}
	if en.Arithmetic {
		args = append(args, "py::arithmetic()")
	}
	if en.Doc != "" {
		args = append(args, cstr(en.Doc))
	}
	enumPath := child(path, en.PyName())
	st.add(model.KindEnum, e.binding(enumPath...), q, "", en.Loc)

	r.writeln("py::enum_<%s>(%s)", q, strings.Join(args, ", "))
	r.in()
	for _, v := range en.Values {
		if v.Ignored {
			continue
		}
		doc := ""
		if v.Doc != "" {
			doc = ", " + cstr(v.Doc)
		}
		r.writeln(".value(%s, %s::%s%s)", cstr(v.PyName()), q, v.Name, doc)
		st.add(model.KindEnumValue, e.binding(child(enumPath, v.PyName())...), q+"::"+v.Name, "", v.Loc)
	}
	r.writeln(";")
	r.out()
}
