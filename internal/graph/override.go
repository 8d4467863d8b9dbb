package graph

import (
	"github.com/phobologic/bindgen/internal/logger"
	"github.com/phobologic/bindgen/internal/model"
)

// Verdict classifies a virtual signature as seen from one class.
type Verdict string

const (
	MustHaveTrampoline Verdict = "must-have-trampoline"
	EffectivelyFinal   Verdict = "effectively-final"
	PureUnimplemented  Verdict = "pure-unimplemented"
)

// Record is the override resolution of one virtual signature in one class:
// the terminal declaration, named by its owner and method index, and the
// verdict.
type Record struct {
	Signature string
	Owner     string
	Index     int
	Verdict   Verdict
}

type ref struct {
	owner string
	index int
}

// Method returns the declaration a record points at.
func (g *Graph) Method(r Record) *model.Function {
	return g.m.Class(r.Owner).Methods[r.Index]
}

// Records returns the override records of a class, bases' signatures first,
// one per virtual signature however many paths reach it. Results are
// cached until Invalidate.
func (g *Graph) Records(qualname string) []Record {
	if recs, ok := g.records[qualname]; ok {
		return recs
	}
	var recs []Record
	for _, sig := range g.signatures(qualname, make(map[string]bool)) {
		t := g.terminal(qualname, sig, make(map[string]bool))
		if t == nil {
			continue
		}
		f := g.m.Class(t.owner).Methods[t.index]
		recs = append(recs, Record{
			Signature: sig,
			Owner:     t.owner,
			Index:     t.index,
			Verdict:   verdict(f),
		})
	}
	g.records[qualname] = recs
	return recs
}

func verdict(f *model.Function) Verdict {
	switch {
	case f.IsPure():
		return PureUnimplemented
	case f.IsFinal(), f.Access == model.Private:
		return EffectivelyFinal
	default:
		return MustHaveTrampoline
	}
}

// signatures lists the virtual signatures visible in q: those of its bases,
// in base order, then those q introduces.
func (g *Graph) signatures(q string, visiting map[string]bool) []string {
	if sigs, ok := g.sigs[q]; ok {
		return sigs
	}
	if visiting[q] {
		return nil
	}
	visiting[q] = true
	defer delete(visiting, q)

	var out []string
	seen := make(map[string]bool)
	for _, e := range g.bases[q] {
		for _, s := range g.signatures(e.Base, visiting) {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	if c := g.m.Class(q); c != nil {
		for _, f := range c.Methods {
			if !overridable(f) || !f.IsVirtual() {
				continue
			}
			if s := f.Signature(); !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	g.sigs[q] = out
	return out
}

func overridable(f *model.Function) bool {
	return !f.Constructor && !f.Destructor && !f.Static && f.AliasOf == "" && len(f.Template) == 0
}

// terminal finds the most-derived declaration of sig reachable from q. A
// declaration in q wins; otherwise candidates from the bases are reduced to
// those no other candidate overrides, and the first in base order is kept.
func (g *Graph) terminal(q, sig string, visiting map[string]bool) *ref {
	if byClass, ok := g.terminals[q]; ok {
		if t, ok := byClass[sig]; ok {
			return t
		}
	}
	if visiting[q] {
		return nil
	}
	visiting[q] = true
	defer delete(visiting, q)

	t := g.findTerminal(q, sig, visiting)
	if g.terminals[q] == nil {
		g.terminals[q] = make(map[string]*ref)
	}
	g.terminals[q][sig] = t
	return t
}

func (g *Graph) findTerminal(q, sig string, visiting map[string]bool) *ref {
	c := g.m.Class(q)
	if c == nil {
		return nil
	}
	if contains(g.signatures(q, make(map[string]bool)), sig) {
		for i, f := range c.Methods {
			if overridable(f) && f.Signature() == sig {
				return &ref{owner: q, index: i}
			}
		}
	}

	var candidates []*ref
	for _, e := range g.bases[q] {
		t := g.terminal(e.Base, sig, visiting)
		if t == nil {
			continue
		}
		dup := false
		for _, x := range candidates {
			if *x == *t {
				dup = true
				break
			}
		}
		if !dup {
			candidates = append(candidates, t)
		}
	}

	var dominant []*ref
	for _, a := range candidates {
		overridden := false
		for _, b := range candidates {
			if a != b && b.owner != a.owner && g.IsAncestor(b.owner, a.owner) {
				overridden = true
				break
			}
		}
		if !overridden {
			dominant = append(dominant, a)
		}
	}
	if len(dominant) == 0 {
		return nil
	}
	if len(dominant) > 1 {
		g.log.Debugw("ambiguous final overrider", logger.FieldQualName, q, "signature", sig,
			logger.FieldCount, len(dominant))
	}
	return dominant[0]
}

// Resolve computes the records of every class and sets each class's
// abstract flag.
func (g *Graph) Resolve() {
	for _, q := range g.classes {
		c := g.m.Class(q)
		if c == nil {
			continue
		}
		c.Abstract = false
		for _, r := range g.Records(q) {
			if r.Verdict == PureUnimplemented {
				c.Abstract = true
				break
			}
		}
	}
}

// TrampolineEntries returns the records a trampoline for the class must
// forward: must-have entries whose declaration is not ignored, and every
// pure entry.
func (g *Graph) TrampolineEntries(qualname string) []Record {
	c := g.m.Class(qualname)
	if c == nil || !g.trampolineAllowed(c) {
		return nil
	}
	var out []Record
	for _, r := range g.Records(qualname) {
		switch r.Verdict {
		case PureUnimplemented:
			out = append(out, r)
		case MustHaveTrampoline:
			if !g.Method(r).Ignored {
				out = append(out, r)
			}
		}
	}
	return out
}

// NeedsTrampoline reports whether a trampoline is emitted for the class.
func (g *Graph) NeedsTrampoline(qualname string) bool {
	return len(g.TrampolineEntries(qualname)) > 0
}

// Overridable reports whether sig may be overridden by a subclass of the
// class, which is what a trampoline entry for it requires.
func (g *Graph) Overridable(qualname, sig string) bool {
	for _, r := range g.Records(qualname) {
		if r.Signature == sig {
			return r.Verdict != EffectivelyFinal
		}
	}
	return false
}
