package emit

import (
	"fmt"
	"strings"

	"github.com/phobologic/bindgen/internal/logger"
	"github.com/phobologic/bindgen/internal/model"
	"github.com/phobologic/bindgen/internal/overload"
)

var operatorNames = map[string][2]string{
	// operator: {binary or nullary name, unary name}
	"operator==": {"__eq__", ""},
	"operator!=": {"__ne__", ""},
	"operator<":  {"__lt__", ""},
	"operator<=": {"__le__", ""},
	"operator>":  {"__gt__", ""},
	"operator>=": {"__ge__", ""},
	"operator+":  {"__add__", "__pos__"},
	"operator-":  {"__sub__", "__neg__"},
	"operator*":  {"__mul__", ""},
	"operator/":  {"__truediv__", ""},
	"operator%":  {"__mod__", ""},
	"operator+=": {"__iadd__", ""},
	"operator-=": {"__isub__", ""},
	"operator*=": {"__imul__", ""},
	"operator/=": {"__itruediv__", ""},
	"operator[]": {"__getitem__", ""},
	"operator()": {"__call__", "__call__"},
}

// pyName is the exposed name of a function. Operators map to the
// corresponding special method; unknown operators have no name.
func pyName(f *model.Function) string {
	if f.Rename != "" {
		return f.Rename
	}
	if !f.Operator {
		return f.Name
	}
	name := strings.ReplaceAll(f.Name, " ", "")
	if name == "operatorbool" {
		return "__bool__"
	}
	names, ok := operatorNames[name]
	if !ok {
		return ""
	}
	if f.Arity() == 0 && names[1] != "" {
		return names[1]
	}
	return names[0]
}

// target describes where a function binding is attached and how it is
// called.
type target struct {
	class      *model.Class // nil for namespace-scope functions
	trampoline string       // set when the class has a trampoline
	def        string       // receiver of namespace-scope functions
	path       []string     // exposed name path used in manifest entries
}

func (t target) qualname() string {
	if t.class == nil {
		return ""
	}
	return t.class.QualName()
}

// bindSet renders every bindable declaration of an overload set. Member
// pointers are cast whenever the name has more than one declaration, bound
// or not.
func (e *Emitter) bindSet(r *buffer, st *headerState, t target, s *overload.Set) {
	var fns []*model.Function
	for _, f := range s.Functions() {
		if f.Access == model.Private {
			continue
		}
		if f.Access == model.Protected && t.trampoline == "" {
			continue
		}
		if pyName(f) == "" {
			e.log.Debugw("operator has no binding", logger.FieldQualName, f.QualName())
			continue
		}
		fns = append(fns, f)
	}
	for _, f := range fns {
		e.function(r, st, t, f, s.Overloaded())
	}
}

func (e *Emitter) function(r *buffer, st *headerState, t target, f *model.Function, overloaded bool) {
	name := pyName(f)
	def := ".def"
	if f.Static {
		def = ".def_static"
	}
	if t.class == nil {
		def = t.def + ".def"
	}

	var pyArgs []string
	if needsLambda(f) {
		pyArgs = e.lambda(r, t, f, fmt.Sprintf("%s(%s, ", def, cstr(name)))
	} else {
		owner := t.qualname()
		ref := owner
		if t.class == nil {
			ref = model.Join(f.Scope)
		}
		protected := f.Access == model.Protected && t.trampoline != ""
		if protected {
			ref = t.trampoline
		}
		ptr := "&" + qualify(ref, f.Name)
		if overloaded || protected {
			ptr = fmt.Sprintf("static_cast<%s>(%s)", pointerType(owner, f), ptr)
		}
		r.writeln("%s(%s, %s", def, cstr(name), ptr)
		pyArgs = e.pyArgs(f, f.Params, allIndexes(f))
	}
	end := ")"
	if t.class == nil {
		// each free function is its own statement
		end = ");"
	}
	e.extras(r, f, pyArgs, end)

	binding := e.binding(child(t.path, name)...)
	st.add(model.KindFunction, binding, f.QualName(), f.Signature(), f.Loc)
}

func qualify(scope, name string) string {
	if scope == "" {
		return name
	}
	return scope + "::" + name
}

func allIndexes(f *model.Function) []int {
	out := make([]int, len(f.Params))
	for i := range out {
		out[i] = i
	}
	return out
}

// pointerType spells the function pointer type selecting one overload.
func pointerType(owner string, f *model.Function) string {
	params := make([]string, len(f.Params))
	for i := range f.Params {
		params[i] = f.Params[i].Type.String()
	}
	trailing := ""
	if f.Const {
		trailing = " const"
	}
	if f.RefQual != model.NoRef {
		trailing += " " + string(f.RefQual)
	}
	scope := ""
	if owner != "" && !f.Static {
		scope = owner + "::"
	}
	return fmt.Sprintf("%s (%s*)(%s)%s", f.Return.String(), scope, strings.Join(params, ", "), trailing)
}

// needsLambda reports whether the binding must wrap the call: output
// parameters, ignored parameters, buffers and rvalue-qualified methods
// cannot be bound directly.
func needsLambda(f *model.Function) bool {
	if f.RefQual == model.RValue || len(f.Buffers) > 0 {
		return true
	}
	for i := range f.Params {
		p := &f.Params[i]
		if p.Ignored || p.Direction == model.Out || p.Direction == model.InOut {
			return true
		}
	}
	return false
}

// lambda renders a wrapping lambda for f and returns the py::arg list of
// the parameters it accepts.
func (e *Emitter) lambda(r *buffer, t target, f *model.Function, prefix string) []string {
	var lamParams, pre, outs []string
	var inputs []int
	args := make([]string, len(f.Params))

	method := t.class != nil && !f.Static
	if method {
		self := t.qualname() + " &self"
		if f.Const {
			self = "const " + self
		}
		lamParams = append(lamParams, self)
	}

	buffers := make(map[string]model.Buffer, len(f.Buffers))
	lengths := make(map[string]bool, len(f.Buffers))
	for _, b := range f.Buffers {
		buffers[b.Src] = b
		lengths[b.Len] = true
	}
	var checks []string

	for i := range f.Params {
		p := &f.Params[i]
		name := paramName(p, i)
		b, isBuffer := buffers[p.Name]
		switch {
		case isBuffer:
			view := "bindgen_buf_" + name
			lamParams = append(lamParams, "const py::buffer &"+name)
			inputs = append(inputs, i)
			args[i] = fmt.Sprintf("static_cast<%s>(%s.ptr)", p.Type.String(), view)
			checks = append(checks,
				fmt.Sprintf("auto %s = %s.request(%t);", view, name, b.Direction != model.In),
				fmt.Sprintf("%s = %s.size * %s.itemsize;", b.Len, view, view))
			if b.MinSize > 0 {
				checks = append(checks, fmt.Sprintf("if (%s < %d) throw py::value_error(%s);",
					b.Len, b.MinSize, cstr(fmt.Sprintf("%s: minimum buffer size is %d", name, b.MinSize))))
			}
		case lengths[p.Name]:
			// set from the buffer size; returned when the callee can update it
			pre = append(pre, fmt.Sprintf("%s %s{};", valueType(p.Type), name))
			args[i] = name
			if p.Type.Pointer > 0 {
				args[i] = "&" + name
				outs = append(outs, name)
			}
		case p.Ignored:
			args[i] = "(" + e.defaultExpr(p, f.Scope) + ")"
		case p.Direction == model.Out || p.Direction == model.InOut:
			if p.Direction == model.Out {
				pre = append(pre, fmt.Sprintf("%s %s{};", valueType(p.Type), name))
			} else {
				lamParams = append(lamParams, valueType(p.Type)+" "+name)
				inputs = append(inputs, i)
			}
			args[i] = name
			if p.Type.Reference == 0 && p.Type.Pointer > 0 {
				args[i] = "&" + name
			}
			outs = append(outs, name)
		default:
			lamParams = append(lamParams, declare(p.Type, name))
			inputs = append(inputs, i)
			args[i] = name
			if p.Type.Reference == 2 {
				args[i] = "std::move(" + name + ")"
			}
		}
	}

	var callee string
	switch {
	case !method && t.class != nil:
		callee = t.qualname() + "::" + f.Name
	case !method:
		callee = qualify(model.Join(f.Scope), f.Name)
	default:
		obj := "self"
		if f.Access == model.Protected && t.trampoline != "" {
			obj = fmt.Sprintf("(*(%s*)&self)", t.trampoline)
		}
		if f.RefQual == model.RValue {
			obj = "std::move(" + obj + ")"
		}
		callee = obj + "." + f.Name
	}
	call := callee + "(" + strings.Join(args, ", ") + ")"

	r.writeln("%s[](%s) {", prefix, strings.Join(lamParams, ", "))
	r.in()
	for _, line := range pre {
		r.writeln(line)
	}
	for _, line := range checks {
		r.writeln("%s", line)
	}
	if len(f.Buffers) > 0 && !f.NoReleaseGIL {
		// buffers are requested and released with the GIL held
		r.writeln("py::gil_scoped_release bindgen_release;")
	}
	switch {
	case f.Return.IsVoid() && len(outs) == 0:
		r.writeln("%s;", call)
	case f.Return.IsVoid() && len(outs) == 1:
		r.writeln("%s;", call)
		r.writeln("return %s;", outs[0])
	case f.Return.IsVoid():
		r.writeln("%s;", call)
		r.writeln("return std::make_tuple(%s);", strings.Join(outs, ", "))
	case len(outs) == 0:
		r.writeln("return %s;", call)
	default:
		r.writeln("auto bindgen_ret = %s;", call)
		r.writeln("return std::make_tuple(%s);", strings.Join(append([]string{"bindgen_ret"}, outs...), ", "))
	}
	r.out()
	r.writeln("}")
	return e.pyArgs(f, f.Params, inputs)
}

// pyArgs renders py::arg entries for the accepted parameters. A default is
// attached only when every later accepted parameter also has one.
func (e *Emitter) pyArgs(f *model.Function, params []model.Param, accepted []int) []string {
	out := make([]string, len(accepted))
	defaulted := true
	for k := len(accepted) - 1; k >= 0; k-- {
		i := accepted[k]
		p := &params[i]
		arg := fmt.Sprintf("py::arg(%s)", cstr(argName(p, i)))
		if p.DisableNone {
			arg += ".none(false)"
		}
		defaulted = defaulted && p.HasDefault()
		if defaulted {
			arg += " = " + e.defaultExpr(p, f.Scope)
		}
		out[k] = arg
	}
	return out
}

func argName(p *model.Param, i int) string {
	if n := p.PyName(); n != "" {
		return n
	}
	return fmt.Sprintf("param%d", i)
}

// extras closes a .def call: arguments, call guards, keep-alives, return
// value policy and doc.
func (e *Emitter) extras(r *buffer, f *model.Function, pyArgs []string, end string) {
	if len(pyArgs) > 0 {
		r.writeln("  , %s", strings.Join(pyArgs, ", "))
	}
	var other []string
	if !f.NoReleaseGIL && len(f.Buffers) == 0 {
		other = append(other, "release_gil()")
	}
	for _, ka := range f.KeepAlive {
		other = append(other, fmt.Sprintf("py::keep_alive<%d, %d>()", ka[0], ka[1]))
	}
	if f.ReturnPolicy != "" {
		other = append(other, "py::return_value_policy::"+f.ReturnPolicy)
	}
	if len(other) > 0 {
		r.writeln("  , %s", strings.Join(other, ", "))
	}
	if f.Doc != "" {
		r.writeln("  , %s", docArg(f.Doc))
	}
	r.writeln(end)
}

// freeFunctions binds namespace-scope functions to the module. Ignored and
// template declarations still take part in overload sets.
func (e *Emitter) freeFunctions(r *buffer, st *headerState, fns []*model.Function) {
	live := false
	for _, f := range fns {
		live = live || !f.Ignored && !f.Deleted && len(f.Template) == 0
	}
	if !live {
		return
	}
	r.writeln("")
	for _, s := range overload.FreeSets(fns, e.diags) {
		e.bindSet(r, st, target{def: "m"}, s)
	}
}
