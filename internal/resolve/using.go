package resolve

import (
	"github.com/phobologic/bindgen/internal/diag"
	"github.com/phobologic/bindgen/internal/logger"
	"github.com/phobologic/bindgen/internal/model"
)

// Usings turns c's using-declarations into alias entries in c's method
// list. Each alias keeps the original signature, takes the access of the
// using-declaration and gains a qualified name in c. Inherited constructors
// are renamed to c. An alias whose signature equals a method c declares is
// an OverloadConflictError and is dropped.
func (r *Resolver) Usings(c *model.Class) {
	for _, u := range c.Usings {
		segs := model.Split(u.Target)
		if len(segs) < 2 {
			r.diags.Add(c.QualName()+"::"+u.Target, u.Loc, &diag.UnresolvedNameError{
				Name:  u.Target,
				Scope: c.QualName(),
			})
			continue
		}
		member := segs[len(segs)-1]
		ownerName := model.Join(segs[:len(segs)-1])

		ownerQual, err := r.ResolveType(ownerName, c.Path(), templateSubst(c))
		if err != nil {
			r.diags.Add(c.QualName()+"::"+member, u.Loc, err)
			continue
		}
		ownerQual = r.Canonical(ownerQual)
		owner := r.m.Class(ownerQual)
		if owner == nil {
			r.diags.Add(c.QualName()+"::"+member, u.Loc, &diag.UnresolvedNameError{
				Name:  u.Target,
				Scope: c.QualName(),
				Tried: []string{ownerQual},
			})
			continue
		}

		ctor := member == model.StripTemplateArgs(owner.Name)
		fns := r.inheritedMethods(owner, member, ctor, make(map[*model.Class]bool))
		if len(fns) == 0 {
			// types and data members need no alias entry
			if _, ok := r.m.Lookup(ownerQual + "::" + member); ok {
				continue
			}
			r.diags.Add(c.QualName()+"::"+member, u.Loc, &diag.UnresolvedNameError{
				Name:  u.Target,
				Scope: c.QualName(),
				Tried: []string{ownerQual + "::" + member},
			})
			continue
		}

		for _, f := range fns {
			alias := cloneFunction(f)
			alias.Scope = c.Path()
			alias.Access = u.Access
			alias.AliasOf = f.QualName()
			alias.Loc = u.Loc
			if ctor {
				alias.Name = c.Name
			}
			if existing := declaredWithSignature(c, alias); existing != nil {
				r.diags.Add(alias.QualName(), u.Loc, &diag.OverloadConflictError{
					QualName: alias.QualName(),
					Arity:    alias.Arity(),
					First:    existing.Signature(),
					Second:   alias.AliasOf + " via using",
				})
				continue
			}
			c.Methods = append(c.Methods, alias)
		}
		r.log.Debugw("using-declaration merged", logger.FieldQualName, c.QualName(),
			"target", u.Target, logger.FieldCount, len(fns))
	}
}

// inheritedMethods finds the nearest declarations of member in owner or its
// bases, depth-first in declared order.
func (r *Resolver) inheritedMethods(owner *model.Class, member string, ctor bool, seen map[*model.Class]bool) []*model.Function {
	if seen[owner] {
		return nil
	}
	seen[owner] = true

	var out []*model.Function
	for _, f := range owner.Methods {
		if f.Deleted || f.Access == model.Private {
			continue
		}
		if ctor && f.Constructor || !ctor && f.Name == member && !f.Constructor {
			out = append(out, f)
		}
	}
	if len(out) > 0 || ctor {
		return out
	}
	r.ResolveBases(owner)
	for _, b := range owner.Bases {
		if base := r.m.Class(b.Resolved); base != nil {
			if found := r.inheritedMethods(base, member, false, seen); len(found) > 0 {
				return found
			}
		}
	}
	return nil
}

func declaredWithSignature(c *model.Class, f *model.Function) *model.Function {
	sig := f.Signature()
	for _, m := range c.Methods {
		if m.AliasOf == "" && m.Signature() == sig {
			return m
		}
	}
	return nil
}

func cloneFunction(f *model.Function) *model.Function {
	out := *f
	out.Scope = append([]string(nil), f.Scope...)
	out.Params = append([]model.Param(nil), f.Params...)
	out.Template = append([]string(nil), f.Template...)
	out.KeepAlive = append([][2]int(nil), f.KeepAlive...)
	out.Buffers = append([]model.Buffer(nil), f.Buffers...)
	return &out
}
