// Package resolve binds names written in declarations to canonical
// qualified names: base classes, parameter and return types, using
// declarations and overlay-requested template instances.
package resolve

import (
	"strings"

	"go.uber.org/zap"

	"github.com/phobologic/bindgen/internal/diag"
	"github.com/phobologic/bindgen/internal/logger"
	"github.com/phobologic/bindgen/internal/model"
)

const maxAliasDepth = 32

// Resolver looks names up in one module.
type Resolver struct {
	m     *model.Module
	diags *diag.Set
	log   *zap.SugaredLogger

	// bases being resolved, to cut cycles from malformed input
	resolving map[*model.Class]bool
	done      map[*model.Class]bool
}

// New creates a resolver over m that records failures in diags.
func New(m *model.Module, diags *diag.Set) *Resolver {
	return &Resolver{
		m:         m,
		diags:     diags,
		log:       logger.Named("resolve"),
		resolving: make(map[*model.Class]bool),
		done:      make(map[*model.Class]bool),
	}
}

// Resolve returns the canonical qualified name an entity reference denotes
// when written inside scope. subst maps template parameter names to
// arguments. The search order is template substitution, enclosing scopes
// innermost outward, then the bases of each enclosing class in declared
// order, recursively, ignored bases included.
func (r *Resolver) Resolve(name string, scope []string, subst map[string]string) (string, error) {
	return r.resolve(name, scope, subst, func(model.Entity) bool { return true })
}

// ResolveType is Resolve restricted to classes, enums and aliases.
func (r *Resolver) ResolveType(name string, scope []string, subst map[string]string) (string, error) {
	return r.resolve(name, scope, subst, model.Entity.IsType)
}

func (r *Resolver) resolve(name string, scope []string, subst map[string]string, accept func(model.Entity) bool) (string, error) {
	name = strings.TrimSpace(name)
	segs := model.Split(name)
	if len(segs) == 0 {
		return "", &diag.UnresolvedNameError{Name: name, Scope: model.Join(scope)}
	}

	if len(segs) == 1 {
		if arg, ok := subst[segs[0]]; ok {
			if q, err := r.resolve(arg, scope, nil, accept); err == nil {
				return q, nil
			}
			return arg, nil
		}
	}

	var tried []string
	check := func(path []string) (string, bool) {
		q := model.Join(path)
		tried = append(tried, q)
		if e, ok := r.m.Lookup(q); ok && accept(e) {
			return q, true
		}
		// a template named with arguments that has no materialized instance
		last := path[len(path)-1]
		if args := model.TemplateArgs(last); args != nil {
			bare := append(append([]string(nil), path[:len(path)-1]...), model.StripTemplateArgs(last))
			if e, ok := r.m.Lookup(model.Join(bare)); ok && accept(e) {
				return q, true
			}
		}
		return "", false
	}

	if strings.HasPrefix(name, "::") {
		if q, ok := check(segs); ok {
			return q, nil
		}
		return "", &diag.UnresolvedNameError{Name: name, Scope: model.Join(scope), Tried: tried}
	}

	for i := len(scope); i >= 0; i-- {
		path := append(append([]string(nil), scope[:i]...), segs...)
		if q, ok := check(path); ok {
			return q, nil
		}
	}

	seen := make(map[string]bool)
	for i := len(scope); i > 0; i-- {
		c := r.m.Class(model.Join(scope[:i]))
		if c == nil {
			continue
		}
		if q, ok := r.searchBases(c, segs, check, seen); ok {
			return q, nil
		}
	}

	return "", &diag.UnresolvedNameError{Name: name, Scope: model.Join(scope), Tried: tried}
}

// searchBases looks for segs as a member of c's bases. Every direct base
// is tried, in declared order, before any of their bases, so the nearest
// declaration wins. A base is also visible by its injected class name.
func (r *Resolver) searchBases(c *model.Class, segs []string, check func([]string) (string, bool), seen map[string]bool) (string, bool) {
	r.ResolveBases(c)
	var next []*model.Class
	for _, b := range c.Bases {
		if b.Resolved == "" || seen[b.Resolved] {
			continue
		}
		seen[b.Resolved] = true
		basePath := model.Split(b.Resolved)
		injected := model.StripTemplateArgs(basePath[len(basePath)-1])
		if model.StripTemplateArgs(segs[0]) == injected {
			path := append(append([]string(nil), basePath...), segs[1:]...)
			if q, ok := check(path); ok {
				return q, true
			}
		}
		if q, ok := check(append(append([]string(nil), basePath...), segs...)); ok {
			return q, true
		}
		if base := r.m.Class(b.Resolved); base != nil {
			next = append(next, base)
		}
	}
	for _, base := range next {
		if q, ok := r.searchBases(base, segs, check, seen); ok {
			return q, true
		}
	}
	return "", false
}

// ResolveBases fills Base.Resolved for c's direct bases. Overlay
// base_qualnames take precedence over lookup. An unresolvable base that is
// not ignored fails the class.
func (r *Resolver) ResolveBases(c *model.Class) {
	if r.done[c] || r.resolving[c] {
		return
	}
	r.resolving[c] = true
	defer func() {
		delete(r.resolving, c)
		r.done[c] = true
	}()

	for i := range c.Bases {
		b := &c.Bases[i]
		if b.Resolved != "" {
			continue
		}
		if q, ok := c.BaseQualnames[b.Name]; ok {
			b.Resolved = model.Join(model.Split(q))
			continue
		}
		q, err := r.ResolveType(b.Name, c.Scope, templateSubst(c))
		if err != nil {
			if b.Ignored {
				r.log.Debugw("ignored base not resolved", logger.FieldQualName, c.QualName(), "base", b.Name)
				continue
			}
			r.diags.Add(c.QualName(), c.Loc, err)
			continue
		}
		b.Resolved = r.Canonical(q)
	}
}

func templateSubst(c *model.Class) map[string]string {
	if len(c.Template) == 0 {
		return nil
	}
	subst := make(map[string]string, len(c.Template))
	for _, p := range c.Template {
		subst[p] = p
	}
	return subst
}

// Canonical follows alias chains from a qualified name to the declaration
// they finally denote. Names that do not resolve further are returned as is.
func (r *Resolver) Canonical(qualname string) string {
	for depth := 0; depth < maxAliasDepth; depth++ {
		e, ok := r.m.Lookup(qualname)
		if !ok || e.Alias == nil || e.Class != nil {
			return qualname
		}
		target := e.Alias.Target.Name
		q, err := r.ResolveType(target, e.Alias.Scope, nil)
		if err != nil {
			return target
		}
		if q == qualname {
			return q
		}
		qualname = q
	}
	return qualname
}

// ResolveTypeRef fills Resolved and Canonical on t. Fundamental and std
// types canonicalize to themselves; other unresolvable names are kept
// verbatim and logged.
func (r *Resolver) ResolveTypeRef(t *model.TypeRef, scope []string, subst map[string]string, owner string) {
	if t.Name == "" || t.Canonical != "" {
		return
	}
	if t.IsFundamental() || strings.HasPrefix(t.Name, "std::") || strings.HasSuffix(t.Name, "...") {
		t.Canonical = t.Name
		return
	}
	q, err := r.ResolveType(t.Name, scope, subst)
	if err != nil {
		r.log.Debugw("type kept verbatim", logger.FieldQualName, owner, "type", t.Name)
		t.Canonical = t.Name
		return
	}
	t.Resolved = q
	t.Canonical = r.Canonical(q)
	if e, ok := r.m.Lookup(q); ok && e.Alias != nil && t.Canonical != q {
		// fold decoration carried by the alias target
		target := e.Alias.Target
		t.Pointer += target.Pointer
		if target.Const && t.Pointer == 0 {
			t.Const = true
		}
		if t.Reference == 0 {
			t.Reference = target.Reference
		}
	}
}

// Module resolves every declaration of the module: bases first, then
// member and free function types, then using-declarations, whose aliases
// carry the already-resolved types of their targets.
func (r *Resolver) Module() {
	r.m.Reindex()
	classes := r.m.Classes()
	for _, c := range classes {
		r.ResolveBases(c)
	}
	for _, c := range classes {
		subst := templateSubst(c)
		scope := c.Path()
		for _, f := range c.Methods {
			r.function(f, scope, subst)
		}
		for _, f := range c.Fields {
			r.ResolveTypeRef(&f.Type, scope, subst, f.QualName())
		}
		for _, a := range c.Aliases {
			r.ResolveTypeRef(&a.Target, scope, subst, a.QualName())
		}
	}
	for _, h := range r.m.Headers {
		for _, f := range model.HeaderFunctions(h) {
			r.function(f, f.Scope, nil)
		}
	}
	for _, c := range classes {
		r.Usings(c)
	}
	r.m.Reindex()
	r.log.Debugw("resolved module", logger.FieldCount, len(classes))
}

func (r *Resolver) function(f *model.Function, scope []string, classSubst map[string]string) {
	subst := classSubst
	if len(f.Template) > 0 {
		subst = make(map[string]string, len(classSubst)+len(f.Template))
		for k, v := range classSubst {
			subst[k] = v
		}
		for _, p := range f.Template {
			subst[p] = p
		}
	}
	r.ResolveTypeRef(&f.Return, scope, subst, f.QualName())
	for i := range f.Params {
		r.ResolveTypeRef(&f.Params[i].Type, scope, subst, f.QualName())
	}
}
