// Package ranking orders and selects classes: emission order for bindings,
// and the focused selections the scan command prints.
package ranking

import (
	"sort"
	"strings"

	"github.com/phobologic/bindgen/internal/graph"
	"github.com/phobologic/bindgen/internal/logger"
	"github.com/phobologic/bindgen/internal/model"
)

// EmissionOrder sorts classes so every base, enclosing class and class named
// in force_depends is registered before the classes that need it. Classes
// with no ordering constraint keep declaration order. Members of an
// inheritance cycle are appended in declaration order.
func EmissionOrder(g *graph.Graph, classes []*model.Class) []*model.Class {
	index := make(map[string]int, len(classes))
	for i, c := range classes {
		index[c.QualName()] = i
	}

	deps := make([][]int, len(classes))
	indegree := make([]int, len(classes))
	dependents := make([][]int, len(classes))
	for i, c := range classes {
		var before []string
		if len(c.Scope) > 0 {
			before = append(before, model.Join(c.Scope))
		}
		for _, e := range g.Bases(c.QualName()) {
			before = append(before, e.Base)
		}
		for _, d := range c.ForceDepends {
			if q, ok := lookup(index, d); ok {
				before = append(before, q)
			}
		}
		for _, q := range before {
			j, ok := index[q]
			if !ok || j == i || containsInt(deps[i], j) {
				continue
			}
			deps[i] = append(deps[i], j)
			dependents[j] = append(dependents[j], i)
			indegree[i]++
		}
	}

	// Kahn's algorithm, always taking the earliest declared ready class
	var ready []int
	for i := range classes {
		if indegree[i] == 0 {
			ready = append(ready, i)
		}
	}
	out := make([]*model.Class, 0, len(classes))
	placed := make([]bool, len(classes))
	for len(ready) > 0 {
		sort.Ints(ready)
		i := ready[0]
		ready = ready[1:]
		placed[i] = true
		out = append(out, classes[i])
		for _, d := range dependents[i] {
			indegree[d]--
			if indegree[d] == 0 {
				ready = append(ready, d)
			}
		}
	}
	if len(out) < len(classes) {
		logger.Named("ranking").Warnw("inheritance cycle; emitting in declaration order",
			logger.FieldCount, len(classes)-len(out))
		for i, c := range classes {
			if !placed[i] {
				out = append(out, c)
			}
		}
	}
	return out
}

// lookup matches a qualified name or a "::"-suffix of one.
func lookup(index map[string]int, name string) (string, bool) {
	name = model.Join(model.Split(name))
	if _, ok := index[name]; ok {
		return name, true
	}
	var found []string
	for q := range index {
		if strings.HasSuffix(q, "::"+name) {
			found = append(found, q)
		}
	}
	if len(found) != 1 {
		return "", false
	}
	return found[0], true
}

func containsInt(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// SelectClasses returns the first maxClasses names of a ranked list. If
// maxClasses is <= 0 or covers the list, the list is returned unchanged.
func SelectClasses(ranked []string, maxClasses int) []string {
	if maxClasses <= 0 || maxClasses >= len(ranked) {
		return ranked
	}
	return ranked[:maxClasses]
}

// FilterBySymbol returns the classes whose qualified name contains substr
// (case-insensitive), plus their direct bases and direct derived classes,
// in the order of ranked.
//
// When withMembers is true and no class name matches, classes declaring a
// method or field whose name contains substr are matched instead.
func FilterBySymbol(g *graph.Graph, m *model.Module, ranked []string, substr string, withMembers bool) []string {
	lower := strings.ToLower(substr)

	matched := make(map[string]struct{})
	for _, q := range ranked {
		if strings.Contains(strings.ToLower(q), lower) {
			matched[q] = struct{}{}
		}
	}

	// Member fallback
	if withMembers && len(matched) == 0 {
		for _, q := range ranked {
			c := m.Class(q)
			if c == nil {
				continue
			}
			if hasMember(c, lower) {
				matched[q] = struct{}{}
			}
		}
	}

	related := make(map[string]struct{}, len(matched))
	for q := range matched {
		related[q] = struct{}{}
		for _, e := range g.Bases(q) {
			related[e.Base] = struct{}{}
		}
		for _, d := range g.Derived(q) {
			related[d] = struct{}{}
		}
	}

	var out []string
	for _, q := range ranked {
		if _, ok := related[q]; ok {
			out = append(out, q)
		}
	}
	return out
}

func hasMember(c *model.Class, lower string) bool {
	for _, f := range c.Methods {
		if strings.Contains(strings.ToLower(f.Name), lower) {
			return true
		}
	}
	for _, f := range c.Fields {
		if strings.Contains(strings.ToLower(f.Name), lower) {
			return true
		}
	}
	return false
}

// FilterByHeader returns the ranked classes declared in headers whose name
// contains substr (case-insensitive).
func FilterByHeader(m *model.Module, ranked []string, substr string) []string {
	lower := strings.ToLower(substr)
	var out []string
	for _, q := range ranked {
		c := m.Class(q)
		if c != nil && strings.Contains(strings.ToLower(c.Header), lower) {
			out = append(out, q)
		}
	}
	return out
}
