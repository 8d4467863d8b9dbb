package emit

import (
	"strings"

	"github.com/phobologic/bindgen/internal/graph"
	"github.com/phobologic/bindgen/internal/model"
)

// trampoline renders the adapter type that lets a runtime subclass
// override the class's virtual methods. Protected members are re-exposed
// with using-declarations so they can be bound through it.
func (e *Emitter) trampoline(r *buffer, c *model.Class) {
	q := c.QualName()
	parent := q
	if c.TrampolineBase != "" {
		parent = c.TrampolineBase
	}
	ctor := model.StripTemplateArgs(lastSegment(parent, "::"))

	r.writeln("struct %s : %s {", trampolineName(c), parent)
	r.in()
	r.writeln("using %s::%s;", parent, ctor)

	exposed := make(map[string]bool)
	for _, f := range c.Methods {
		if f.Access == model.Protected && !f.Constructor && !f.Destructor && !f.Ignored && !exposed[f.Name] {
			exposed[f.Name] = true
			r.writeln("using %s::%s;", q, f.Name)
		}
	}
	for _, f := range c.Fields {
		if f.Access == model.Protected && !f.Ignored && !exposed[f.Name] {
			exposed[f.Name] = true
			r.writeln("using %s::%s;", q, f.Name)
		}
	}

	for _, rec := range e.g.TrampolineEntries(q) {
		r.writeln("")
		e.forwarder(r, c, parent, rec)
	}
	r.out()
	r.writeln("};")
	r.writeln("static_assert(!std::is_abstract<%s>::value, %s \" \" BINDGEN_BAD_TRAMPOLINE);",
		trampolineName(c), cstr(q))
}

// forwarder renders one overriding entry: runtime lookup under the
// runtime lock, then the parent implementation or the missing override
// error.
func (e *Emitter) forwarder(r *buffer, c *model.Class, parent string, rec graph.Record) {
	f := e.g.Method(rec)

	params := make([]string, len(f.Params))
	args := make([]string, len(f.Params))
	for i := range f.Params {
		p := &f.Params[i]
		name := paramName(p, i)
		params[i] = declare(p.Type, name)
		args[i] = name
		if p.Type.Reference == 2 {
			args[i] = "std::move(" + name + ")"
		}
	}

	qual := ""
	if f.Const {
		qual += " const"
	}
	if f.RefQual != model.NoRef {
		qual += " " + string(f.RefQual)
	}
	ret := f.Return.String()
	r.writeln("%s %s(%s)%s override {", ret, f.Name, strings.Join(params, ", "), qual)
	r.in()

	argList := strings.Join(args, ", ")
	if rec.Verdict == graph.PureUnimplemented {
		r.writeln("BINDGEN_OVERRIDE_PURE(%s, %s, %s, %s, %s);",
			cstr(rec.Owner), typeArg(ret), typeArg(c.QualName()), cstr(pyName(f)), argList)
	} else {
		call := parent + "::" + f.Name + "(" + argList + ")"
		if f.RefQual == model.RValue {
			call = "std::move(*this)." + call
		}
		// template arguments in the call would split the macro argument
		call = "(" + call + ")"
		r.writeln("BINDGEN_OVERRIDE(%s, %s, %s, %s, %s);",
			typeArg(ret), typeArg(c.QualName()), cstr(pyName(f)), call, argList)
	}
	r.out()
	r.writeln("}")
}
