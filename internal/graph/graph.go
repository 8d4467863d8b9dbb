// Package graph builds the class inheritance graph and resolves virtual
// overrides into per-class forwarding records.
package graph

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/phobologic/bindgen/internal/diag"
	"github.com/phobologic/bindgen/internal/logger"
	"github.com/phobologic/bindgen/internal/model"
	"github.com/phobologic/bindgen/internal/overload"
)

// Edge relates a class to one of its direct bases.
type Edge struct {
	Derived string
	Base    string
	Virtual bool
	Access  model.Access
	Ignored bool
}

// Graph is the inheritance graph of one module. Nodes are canonical
// qualified names; declarations stay owned by the module.
type Graph struct {
	m       *model.Module
	log     *zap.SugaredLogger
	classes []string
	bases   map[string][]Edge
	derived map[string][]string

	sigs      map[string][]string
	terminals map[string]map[string]*ref
	records   map[string][]Record
}

// Build creates the graph from the resolved bases of every class in m.
// Bases that did not resolve to a class in m are left out.
func Build(m *model.Module) *Graph {
	g := &Graph{
		m:       m,
		log:     logger.Named("graph"),
		bases:   make(map[string][]Edge),
		derived: make(map[string][]string),
	}
	g.reset()
	for _, c := range m.Classes() {
		q := c.QualName()
		if _, dup := g.bases[q]; dup {
			continue
		}
		g.classes = append(g.classes, q)
		g.bases[q] = nil
		g.link(c)
	}
	return g
}

func (g *Graph) reset() {
	g.sigs = make(map[string][]string)
	g.terminals = make(map[string]map[string]*ref)
	g.records = make(map[string][]Record)
}

func (g *Graph) link(c *model.Class) {
	q := c.QualName()
	for _, b := range c.Bases {
		if b.Resolved == "" || g.m.Class(b.Resolved) == nil || b.Resolved == q {
			continue
		}
		g.bases[q] = append(g.bases[q], Edge{
			Derived: q,
			Base:    b.Resolved,
			Virtual: b.Virtual,
			Access:  b.Access,
			Ignored: b.Ignored,
		})
		if !contains(g.derived[b.Resolved], q) {
			g.derived[b.Resolved] = append(g.derived[b.Resolved], q)
		}
	}
}

// Classes returns every class node in module order.
func (g *Graph) Classes() []string {
	return g.classes
}

// Bases returns the direct base edges of a class in declared order.
func (g *Graph) Bases(qualname string) []Edge {
	return g.bases[qualname]
}

// Derived returns the classes that list qualname as a direct base, sorted.
func (g *Graph) Derived(qualname string) []string {
	out := append([]string(nil), g.derived[qualname]...)
	sort.Strings(out)
	return out
}

// Ancestors walks the bases of a class depth-first, left to right, and
// returns each ancestor once. A base reached through several paths, virtual
// or not, is listed at its first visit.
func (g *Graph) Ancestors(qualname string) []string {
	var out []string
	seen := map[string]bool{qualname: true}
	var walk func(q string)
	walk = func(q string) {
		for _, e := range g.bases[q] {
			if seen[e.Base] {
				continue
			}
			seen[e.Base] = true
			out = append(out, e.Base)
			walk(e.Base)
		}
	}
	walk(qualname)
	return out
}

// IsAncestor reports whether base is reachable from derived.
func (g *Graph) IsAncestor(derived, base string) bool {
	return contains(g.Ancestors(derived), base)
}

// Instances counts the base subobjects of each ancestor in a class. A
// virtual base is one shared instance however many paths reach it; a
// non-virtual base gets one instance per path.
func (g *Graph) Instances(qualname string) map[string]int {
	nv, virt := g.subobjects(qualname, make(map[string]bool))
	out := make(map[string]int, len(nv)+len(virt))
	for k, n := range nv {
		out[k] += n
	}
	for _, v := range sortedKeys(virt) {
		out[v]++
		inner, _ := g.subobjects(v, make(map[string]bool))
		for k, n := range inner {
			out[k] += n
		}
	}
	return out
}

// subobjects returns the non-virtual subobject counts of q and the set of
// virtual bases anywhere below it.
func (g *Graph) subobjects(q string, visiting map[string]bool) (map[string]int, map[string]struct{}) {
	nv := make(map[string]int)
	virt := make(map[string]struct{})
	if visiting[q] {
		return nv, virt
	}
	visiting[q] = true
	defer delete(visiting, q)

	for _, e := range g.bases[q] {
		inner, innerVirt := g.subobjects(e.Base, visiting)
		for v := range innerVirt {
			virt[v] = struct{}{}
		}
		if e.Virtual {
			virt[e.Base] = struct{}{}
			continue
		}
		nv[e.Base]++
		for k, n := range inner {
			nv[k] += n
		}
	}
	return nv, virt
}

// Invalidate drops the cached override records of a class and of every
// class below it, re-reading the class's bases from the module.
func (g *Graph) Invalidate(qualname string) {
	c := g.m.Class(qualname)
	if c == nil {
		return
	}
	for _, e := range g.bases[qualname] {
		g.derived[e.Base] = remove(g.derived[e.Base], qualname)
	}
	g.bases[qualname] = nil
	g.link(c)

	stale := []string{qualname}
	seen := map[string]bool{qualname: true}
	for i := 0; i < len(stale); i++ {
		for _, d := range g.derived[stale[i]] {
			if !seen[d] {
				seen[d] = true
				stale = append(stale, d)
			}
		}
	}
	for _, q := range stale {
		delete(g.sigs, q)
		delete(g.terminals, q)
		delete(g.records, q)
	}
	g.log.Debugw("override records invalidated", logger.FieldQualName, qualname, logger.FieldCount, len(stale))
}

// Centrality ranks classes by how much of the hierarchy builds on them,
// highest first. Each edge from a derived class to its base passes rank to
// the base.
func (g *Graph) Centrality() []string {
	nodes := make(map[string]struct{}, len(g.classes))
	for _, q := range g.classes {
		nodes[q] = struct{}{}
	}
	outEdges := make(map[string][]string)
	outDegree := make(map[string]int)
	for _, q := range g.classes {
		for _, e := range g.bases[q] {
			outEdges[q] = append(outEdges[q], e.Base)
			outDegree[q]++
		}
	}
	ranks := pageRank(nodes, outEdges, outDegree, 0.85, 100, 1e-6)

	out := append([]string(nil), g.classes...)
	sort.SliceStable(out, func(i, j int) bool {
		return ranks[out[i]] > ranks[out[j]]
	})
	return out
}

func pageRank(
	nodes map[string]struct{},
	outEdges map[string][]string,
	outDegree map[string]int,
	alpha float64,
	maxIter int,
	tol float64,
) map[string]float64 {
	n := len(nodes)
	if n == 0 {
		return nil
	}

	rank := make(map[string]float64, n)
	initial := 1.0 / float64(n)
	for node := range nodes {
		rank[node] = initial
	}

	teleport := (1.0 - alpha) / float64(n)

	for iter := 0; iter < maxIter; iter++ {
		newRank := make(map[string]float64, n)

		// Root classes have no outgoing edges
		var danglingSum float64
		for node := range nodes {
			if outDegree[node] == 0 {
				danglingSum += rank[node]
			}
		}
		danglingContrib := alpha * danglingSum / float64(n)

		for node := range nodes {
			newRank[node] = teleport + danglingContrib
		}

		for src, targets := range outEdges {
			contrib := alpha * rank[src] / float64(outDegree[src])
			for _, tgt := range targets {
				newRank[tgt] += contrib
			}
		}

		var diff float64
		for node := range nodes {
			diff += math.Abs(newRank[node] - rank[node])
		}
		rank = newRank
		if diff < tol {
			break
		}
	}

	return rank
}

// Check reports an AbstractTrampolineError for every class whose trampoline
// would be emitted while a pure virtual entry cannot be forwarded.
func (g *Graph) Check(diags *diag.Set) {
	for _, q := range g.classes {
		c := g.m.Class(q)
		if c == nil || c.Ignored || !g.trampolineAllowed(c) {
			continue
		}
		for _, r := range g.Records(q) {
			if r.Verdict != PureUnimplemented {
				continue
			}
			f := g.Method(r)
			if f.Ignored && !f.IgnorePure || overload.Check(f) != nil {
				diags.Add(q, c.Loc, &diag.AbstractTrampolineError{Class: q, Method: r.Owner + "::" + r.Signature})
				break
			}
		}
	}
}

func (g *Graph) trampolineAllowed(c *model.Class) bool {
	return !c.Final && !c.NoTrampoline
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}

func remove(slice []string, s string) []string {
	out := slice[:0]
	for _, v := range slice {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
