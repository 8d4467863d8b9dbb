package resolve

import (
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/phobologic/bindgen/internal/diag"
	"github.com/phobologic/bindgen/internal/logger"
	"github.com/phobologic/bindgen/internal/model"
)

var identRe = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// Instantiate materializes the class template qualname with args as a
// concrete class named name (its exposed name) in header h. The instance is
// placed next to the template and indexed as "Template<args>".
func (r *Resolver) Instantiate(h *model.Header, name, qualname string, args []string) (*model.Class, error) {
	r.m.Reindex()
	tmpl := r.m.Class(qualname)
	if tmpl == nil {
		q, err := r.ResolveType(qualname, nil, nil)
		if err != nil {
			return nil, err
		}
		tmpl = r.m.Class(q)
	}
	if tmpl == nil || len(tmpl.Template) == 0 {
		return nil, &diag.UnresolvedNameError{Name: qualname, Tried: []string{qualname + " (class template)"}}
	}
	if len(args) != len(tmpl.Template) {
		return nil, errors.Newf("%s takes %d template arguments, got %d", tmpl.QualName(), len(tmpl.Template), len(args))
	}

	subst := make(map[string]string, len(args)+1)
	for i, p := range tmpl.Template {
		subst[p] = args[i]
	}
	instName := tmpl.Name + "<" + strings.Join(args, ", ") + ">"
	// the injected class name refers to the instance
	subst[tmpl.Name] = instName

	inst := instantiateClass(tmpl, subst, tmpl.Scope)
	inst.Name = instName
	inst.Rename = name
	inst.Template = nil
	inst.TemplateArgs = append([]string(nil), args...)
	inst.Header = h.Name
	retarget(inst, inst.Path())

	if parent := r.m.Class(model.Join(tmpl.Scope)); parent != nil && len(tmpl.Scope) > 0 {
		parent.Classes = append(parent.Classes, inst)
	} else {
		ns := namespaceFor(h, tmpl.Scope)
		ns.Classes = append(ns.Classes, inst)
	}
	r.m.Reindex()
	r.log.Debugw("instantiated template", logger.FieldQualName, inst.QualName(), "name", name)
	return inst, nil
}

// substitute replaces whole identifiers that name template parameters. A
// name followed by '<' or preceded by "::" is left alone.
func substitute(s string, subst map[string]string) string {
	if len(subst) == 0 || s == "" {
		return s
	}
	var b strings.Builder
	last := 0
	for _, loc := range identRe.FindAllStringIndex(s, -1) {
		ident := s[loc[0]:loc[1]]
		repl, ok := subst[ident]
		if !ok {
			continue
		}
		if loc[1] < len(s) && s[loc[1]] == '<' {
			continue
		}
		if loc[0] >= 2 && s[loc[0]-2:loc[0]] == "::" {
			continue
		}
		b.WriteString(s[last:loc[0]])
		b.WriteString(repl)
		last = loc[1]
	}
	b.WriteString(s[last:])
	return b.String()
}

func substituteType(t model.TypeRef, subst map[string]string) model.TypeRef {
	spelled := substitute(t.Spelling, subst)
	if spelled == t.Spelling {
		return t
	}
	out := model.ParseTypeRef(spelled)
	out.Array = t.Array
	out.ArraySize = t.ArraySize
	return out
}

func instantiateClass(c *model.Class, subst map[string]string, scope []string) *model.Class {
	out := *c
	out.Scope = append([]string(nil), scope...)
	out.Bases = make([]model.Base, len(c.Bases))
	for i, b := range c.Bases {
		b.Name = substitute(b.Name, subst)
		b.Resolved = ""
		out.Bases[i] = b
	}
	out.Methods = make([]*model.Function, 0, len(c.Methods))
	for _, f := range c.Methods {
		nf := cloneFunction(f)
		nf.Return = substituteType(f.Return, subst)
		for i := range nf.Params {
			nf.Params[i].Type = substituteType(f.Params[i].Type, subst)
		}
		out.Methods = append(out.Methods, nf)
	}
	out.Fields = make([]*model.Field, len(c.Fields))
	for i, f := range c.Fields {
		nf := *f
		nf.Type = substituteType(f.Type, subst)
		out.Fields[i] = &nf
	}
	out.Aliases = make([]*model.Alias, len(c.Aliases))
	for i, a := range c.Aliases {
		na := *a
		na.Target = substituteType(a.Target, subst)
		out.Aliases[i] = &na
	}
	out.Enums = make([]*model.Enum, len(c.Enums))
	for i, e := range c.Enums {
		ne := *e
		ne.Values = make([]*model.EnumValue, len(e.Values))
		for j, v := range e.Values {
			nv := *v
			ne.Values[j] = &nv
		}
		out.Enums[i] = &ne
	}
	out.Classes = make([]*model.Class, len(c.Classes))
	for i, n := range c.Classes {
		out.Classes[i] = instantiateClass(n, subst, nil)
	}
	out.Usings = append([]model.Using(nil), c.Usings...)
	return &out
}

// retarget rewrites the scopes of every member below c to path.
func retarget(c *model.Class, path []string) {
	for _, f := range c.Methods {
		f.Scope = path
	}
	for _, f := range c.Fields {
		f.Scope = path
	}
	for _, a := range c.Aliases {
		a.Scope = path
	}
	for _, e := range c.Enums {
		e.Scope = path
		vs := append(append([]string(nil), path...), e.Name)
		for _, v := range e.Values {
			v.Scope = vs
		}
	}
	for _, n := range c.Classes {
		n.Scope = path
		retarget(n, n.Path())
	}
}

func namespaceFor(h *model.Header, scope []string) *model.Namespace {
	ns := h.Root
	for i, seg := range scope {
		var next *model.Namespace
		for _, child := range ns.Namespaces {
			if child.Name == seg {
				next = child
				break
			}
		}
		if next == nil {
			next = &model.Namespace{Decl: model.Decl{
				Kind:   model.KindNamespace,
				Name:   seg,
				Scope:  append([]string(nil), scope[:i]...),
				Access: model.Public,
			}}
			ns.Namespaces = append(ns.Namespaces, next)
		}
		ns = next
	}
	return ns
}
