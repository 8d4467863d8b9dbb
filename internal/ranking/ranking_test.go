package ranking

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/phobologic/bindgen/internal/graph"
	"github.com/phobologic/bindgen/internal/model"
)

func makeModule(classes ...*model.Class) *model.Module {
	m := model.NewModule("test")
	m.AddHeader(&model.Header{Name: "shapes", Root: &model.Namespace{Classes: classes}})
	return m
}

func class(name string, bases ...string) *model.Class {
	c := &model.Class{Decl: model.Decl{Kind: model.KindClass, Name: name, Scope: []string{"geo"}}, Header: "shapes"}
	for _, b := range bases {
		c.Bases = append(c.Bases, model.Base{Name: b, Resolved: "geo::" + b, Access: model.Public})
	}
	return c
}

func names(classes []*model.Class) []string {
	out := make([]string, len(classes))
	for i, c := range classes {
		out[i] = c.Name
	}
	return out
}

func TestEmissionOrderBasesFirst(t *testing.T) {
	t.Parallel()

	classes := []*model.Class{
		class("Square", "Rect"),
		class("Shape"),
		class("Rect", "Shape"),
		class("Point"),
	}
	m := makeModule(classes...)
	got := EmissionOrder(graph.Build(m), classes)
	assert.Equal(t, []string{"Shape", "Rect", "Square", "Point"}, names(got))
}

func TestEmissionOrderStableWithoutEdges(t *testing.T) {
	t.Parallel()

	classes := []*model.Class{class("C"), class("A"), class("B")}
	got := EmissionOrder(graph.Build(makeModule(classes...)), classes)
	if len(got) != 3 {
		t.Fatalf("expected 3 classes, got %d", len(got))
	}
	assert.Equal(t, []string{"C", "A", "B"}, names(got))
}

func TestEmissionOrderForceDepends(t *testing.T) {
	t.Parallel()

	user := class("User")
	user.ForceDepends = []string{"Helper"}
	classes := []*model.Class{user, class("Helper")}
	got := EmissionOrder(graph.Build(makeModule(classes...)), classes)
	assert.Equal(t, []string{"Helper", "User"}, names(got))
}

func TestEmissionOrderCycle(t *testing.T) {
	t.Parallel()

	classes := []*model.Class{class("A", "B"), class("B", "A"), class("C")}
	got := EmissionOrder(graph.Build(makeModule(classes...)), classes)
	assert.Equal(t, []string{"C", "A", "B"}, names(got))
}

func TestSelectClasses(t *testing.T) {
	t.Parallel()

	ranked := []string{"a", "b", "c"}
	assert.Equal(t, ranked, SelectClasses(ranked, 0))
	assert.Equal(t, ranked, SelectClasses(ranked, 5))
	assert.Equal(t, []string{"a", "b"}, SelectClasses(ranked, 2))
}

func TestFilterBySymbol(t *testing.T) {
	t.Parallel()

	rect := class("Rect", "Shape")
	rect.Fields = []*model.Field{{Decl: model.Decl{Kind: model.KindField, Name: "width"}}}
	classes := []*model.Class{class("Shape"), rect, class("Square", "Rect"), class("Point")}
	m := makeModule(classes...)
	g := graph.Build(m)
	ranked := g.Centrality()

	got := FilterBySymbol(g, m, ranked, "RECT", false)
	assert.ElementsMatch(t, []string{"geo::Shape", "geo::Rect", "geo::Square"}, got)

	assert.Empty(t, FilterBySymbol(g, m, ranked, "width", false))
	got = FilterBySymbol(g, m, ranked, "width", true)
	assert.Contains(t, got, "geo::Rect")
	assert.NotContains(t, got, "geo::Point")
}

func TestFilterByHeader(t *testing.T) {
	t.Parallel()

	m := makeModule(class("Shape"))
	ranked := []string{"geo::Shape"}
	assert.Equal(t, ranked, FilterByHeader(m, ranked, "SHA"))
	assert.Empty(t, FilterByHeader(m, ranked, "other"))
}

func TestEmissionOrderNestedAfterParent(t *testing.T) {
	t.Parallel()

	outer := class("Outer", "Late")
	inner := &model.Class{Decl: model.Decl{Kind: model.KindClass, Name: "Inner", Scope: []string{"geo", "Outer"}}}
	outer.Classes = []*model.Class{inner}
	late := class("Late")
	m := makeModule(outer, late)
	classes := m.Classes()
	got := EmissionOrder(graph.Build(m), classes)
	assert.Equal(t, []string{"Late", "Outer", "Inner"}, names(got))
}
