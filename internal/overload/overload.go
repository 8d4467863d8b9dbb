// Package overload groups functions into overload sets and expands trailing
// default arguments into synthesized lower-arity entries.
package overload

import (
	"sort"
	"strconv"
	"strings"

	"github.com/phobologic/bindgen/internal/diag"
	"github.com/phobologic/bindgen/internal/model"
)

// Entry is one callable arity of an overload set.
type Entry struct {
	Func        *model.Function
	Arity       int
	Synthesized bool
	Bindable    bool
	// Defaults are the literal expressions substituted for the parameters
	// a synthesized entry omits, in parameter order.
	Defaults []string
}

// Keys returns the canonical types of the parameters the entry accepts.
func (e Entry) Keys() []string {
	return e.Func.ParamKeys()[:e.Arity]
}

// Set is every function sharing one qualified name and scope, ordered by
// arity descending then declaration order.
type Set struct {
	QualName     string
	Name         string
	Constructors bool
	Entries      []Entry
	// Declared counts every non-deleted declaration of the name, including
	// ignored, private and template ones.
	Declared int
}

// Functions returns the distinct declarations in entry order.
func (s *Set) Functions() []*model.Function {
	var out []*model.Function
	seen := make(map[*model.Function]bool)
	for _, e := range s.Entries {
		if !seen[e.Func] {
			seen[e.Func] = true
			out = append(out, e.Func)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Bindable returns the declarations that may appear in public bindings.
func (s *Set) Bindable() []*model.Function {
	var out []*model.Function
	for _, f := range s.Functions() {
		if f.Access != model.Private {
			out = append(out, f)
		}
	}
	return out
}

// Overloaded reports whether more than one declaration shares the name, so
// taking its address must name the exact signature.
func (s *Set) Overloaded() bool {
	return s.Declared > 1
}

// Arities returns the distinct bindable arities in descending order.
func (s *Set) Arities() []int {
	var out []int
	seen := make(map[int]bool)
	for _, e := range s.Entries {
		if e.Bindable && !seen[e.Arity] {
			seen[e.Arity] = true
			out = append(out, e.Arity)
		}
	}
	return out
}

// Lookup returns the entries that accept arity arguments, in preference
// order.
func (s *Set) Lookup(arity int) []Entry {
	var out []Entry
	for _, e := range s.Entries {
		if e.Arity == arity {
			out = append(out, e)
		}
	}
	return out
}

// ID identifies one overload in diagnostics.
func ID(f *model.Function) string {
	if len(f.Scope) == 0 {
		return f.Signature()
	}
	return model.Join(f.Scope) + "::" + f.Signature()
}

// Build creates the overload set for fns, which must share a qualified
// name. Deleted, ignored, template and destructor declarations are skipped.
// Declarations with unsupported signatures are reported and left out. A
// synthesized arity that another declaration also accepts is a conflict,
// whatever the parameter types, and drops the synthesizing declaration.
func Build(fns []*model.Function, diags *diag.Set) *Set {
	if len(fns) == 0 {
		return &Set{}
	}
	s := &Set{QualName: fns[0].QualName(), Name: fns[0].Name, Constructors: fns[0].Constructor}

	ordered := append([]*model.Function(nil), fns...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	var entries []Entry
	for _, f := range ordered {
		if f.Deleted || f.Destructor {
			continue
		}
		s.Declared++
		if f.Ignored || len(f.Template) > 0 {
			continue
		}
		if err := Check(f); err != nil {
			diags.Add(ID(f), f.Loc, err)
			continue
		}
		AssignDirections(f)
		entries = append(entries, Expand(f)...)
	}

	failed := make(map[*model.Function]bool)
	for _, a := range entries {
		if failed[a.Func] {
			continue
		}
		for _, b := range entries {
			if a.Func == b.Func || a.Arity != b.Arity || failed[b.Func] {
				continue
			}
			if !a.Synthesized && !b.Synthesized {
				continue
			}
			// the declaration owning the synthesized arity loses, the later
			// one when both are synthesized
			loser, kept := a.Func, b.Func
			if !a.Synthesized || b.Synthesized && b.Func.Order > a.Func.Order {
				loser, kept = kept, loser
			}
			failed[loser] = true
			diags.Add(ID(loser), loser.Loc, &diag.OverloadConflictError{
				QualName: s.QualName,
				Arity:    a.Arity,
				First:    kept.Signature(),
				Second:   loser.Signature(),
			})
			if loser == a.Func {
				break
			}
		}
	}

	for _, e := range entries {
		if !failed[e.Func] {
			s.Entries = append(s.Entries, e)
		}
	}
	sort.SliceStable(s.Entries, func(i, j int) bool {
		a, b := s.Entries[i], s.Entries[j]
		if a.Arity != b.Arity {
			return a.Arity > b.Arity
		}
		return a.Func.Order < b.Func.Order
	})
	return s
}

// Expand returns the full-arity entry of f followed by one synthesized entry
// per trailing default, arities [N-K, N).
func Expand(f *model.Function) []Entry {
	n := f.Arity()
	bindable := f.Access != model.Private
	out := []Entry{{Func: f, Arity: n, Bindable: bindable}}
	k := TrailingDefaults(f)
	for arity := n - 1; arity >= n-k; arity-- {
		defaults := make([]string, 0, n-arity)
		for i := arity; i < n; i++ {
			defaults = append(defaults, f.Params[i].Default)
		}
		out = append(out, Entry{Func: f, Arity: arity, Synthesized: true, Bindable: bindable, Defaults: defaults})
	}
	return out
}

// TrailingDefaults counts the contiguous defaulted parameters at the end of
// f's parameter list.
func TrailingDefaults(f *model.Function) int {
	k := 0
	for i := len(f.Params) - 1; i >= 0; i-- {
		if !f.Params[i].HasDefault() {
			break
		}
		k++
	}
	return k
}

// Check reports why f cannot be marshaled, or nil.
func Check(f *model.Function) error {
	for i := range f.Params {
		p := &f.Params[i]
		switch {
		case p.Type.Array && p.Type.ArraySize == "":
			return &diag.UnsupportedSignatureError{
				QualName: f.QualName(),
				Param:    paramLabel(p, i),
				Reason:   "array parameter without a size",
			}
		case strings.HasSuffix(p.Type.Spelling, "..."):
			return &diag.UnsupportedSignatureError{
				QualName: f.QualName(),
				Param:    paramLabel(p, i),
				Reason:   "parameter pack",
			}
		case p.Ignored && p.Default == "":
			return &diag.UnsupportedSignatureError{
				QualName: f.QualName(),
				Param:    paramLabel(p, i),
				Reason:   "ignored parameter has no default",
			}
		}
	}
	if f.Return.Array {
		return &diag.UnsupportedSignatureError{QualName: f.QualName(), Reason: "array return type"}
	}
	return nil
}

func paramLabel(p *model.Param, i int) string {
	if p.Name != "" {
		return p.Name
	}
	return "#" + strconv.Itoa(i)
}

// DefaultDirection is the marshaling direction of a parameter type: a
// non-const pointer or lvalue reference to a fundamental type is an output.
func DefaultDirection(t model.TypeRef) model.Direction {
	if t.Const || t.Array || !t.IsFundamental() || t.Name == "void" {
		return model.In
	}
	if t.Pointer == 1 && t.Reference == 0 || t.Pointer == 0 && t.Reference == 1 {
		return model.Out
	}
	return model.In
}

// AssignDirections fills in parameter directions the overlay did not set,
// and defaults disable_none for std::function parameters.
func AssignDirections(f *model.Function) {
	for i := range f.Params {
		p := &f.Params[i]
		if !p.DirectionSet {
			p.Direction = DefaultDirection(p.Type)
		}
		if p.Type.IsStdFunction() {
			p.DisableNone = true
		}
	}
}

// ClassSets groups c's methods by name, constructors in their own set. Sets
// are ordered by the first declaration of each name.
func ClassSets(c *model.Class, diags *diag.Set) []*Set {
	var order []string
	groups := make(map[string][]*model.Function)
	const ctorKey = "\x00ctor"
	for _, f := range c.Methods {
		key := f.Name
		if f.Constructor {
			key = ctorKey
		}
		if f.Destructor {
			continue
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], f)
	}
	out := make([]*Set, 0, len(order))
	for _, key := range order {
		out = append(out, Build(groups[key], diags))
	}
	return out
}

// FreeSets groups namespace-scope functions by qualified name.
func FreeSets(fns []*model.Function, diags *diag.Set) []*Set {
	var order []string
	groups := make(map[string][]*model.Function)
	for _, f := range fns {
		q := f.QualName()
		if _, ok := groups[q]; !ok {
			order = append(order, q)
		}
		groups[q] = append(groups[q], f)
	}
	out := make([]*Set, 0, len(order))
	for _, q := range order {
		out = append(out, Build(groups[q], diags))
	}
	return out
}
