package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"simple", "a::b::C", []string{"a", "b", "C"}},
		{"leading separator", "::a::C", []string{"a", "C"}},
		{"template args kept", "ns::Box<std::pair<int, a::B>>::get", []string{"ns", "Box<std::pair<int, a::B>>", "get"}},
		{"function type", "std::function<void(a::B)>", []string{"std::function<void(a::B)>"}},
		{"empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Split(tt.in))
		})
	}
}

func TestTemplateArgs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"int"}, TemplateArgs("Box<int>"))
	assert.Equal(t, []string{"std::map<int, int>", "bool"}, TemplateArgs("Pair<std::map<int, int>, bool>"))
	assert.Nil(t, TemplateArgs("Box"))
	assert.Equal(t, "vector", StripTemplateArgs("vector<int>"))
	assert.Equal(t, "vector", StripTemplateArgs("vector"))
}

func TestParseTypeRef(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in        string
		name      string
		isConst   bool
		pointer   int
		reference int
		str       string
	}{
		{"int", "int", false, 0, 0, "int"},
		{"const std::string &", "std::string", true, 0, 1, "const std::string &"},
		{"char const *", "char", true, 1, 0, "const char *"},
		{"int * const", "int", false, 1, 0, "int *"},
		{"int const", "int", true, 0, 0, "const int"},
		{"Foo &&", "Foo", false, 0, 2, "Foo &&"},
		{"struct  Foo **", "Foo", false, 2, 0, "Foo **"},
		{"typename T::value_type", "T::value_type", false, 0, 0, "T::value_type"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got := ParseTypeRef(tt.in)
			assert.Equal(t, tt.name, got.Name)
			assert.Equal(t, tt.isConst, got.Const)
			assert.Equal(t, tt.pointer, got.Pointer)
			assert.Equal(t, tt.reference, got.Reference)
			assert.Equal(t, tt.str, got.String())
		})
	}
}

func TestTypeRefKeyFollowsCanonical(t *testing.T) {
	t.Parallel()

	alias := ParseTypeRef("const Handle &")
	alias.Resolved = "ns::Handle"
	alias.Canonical = "ns::Impl"
	target := ParseTypeRef("const ns::Impl&")

	assert.Equal(t, target.Key(), alias.Key())
	assert.Equal(t, "const ns::Handle &", alias.String())
	assert.True(t, ParseTypeRef("uint32_t").IsFundamental())
	assert.True(t, ParseTypeRef("void").IsVoid())
	assert.False(t, ParseTypeRef("void *").IsVoid())
	assert.True(t, ParseTypeRef("std::function<void(int)>").IsStdFunction())
}

func TestSignature(t *testing.T) {
	t.Parallel()

	f := &Function{
		Decl:    Decl{Name: "get"},
		Params:  []Param{{Name: "i", Type: ParseTypeRef("int")}, {Name: "s", Type: ParseTypeRef("const std::string&")}},
		Const:   true,
		RefQual: LValue,
	}
	assert.Equal(t, "get(int, const std::string &) const &", f.Signature())

	f.Const, f.RefQual = false, NoRef
	assert.Equal(t, "get(int, const std::string &)", f.Signature())
	assert.Equal(t, 2, f.Arity())
}

func TestVirtuality(t *testing.T) {
	t.Parallel()

	assert.True(t, (&Function{Virtual: Pure}).IsPure())
	assert.True(t, (&Function{Virtual: Virtual}).IsVirtual())
	assert.True(t, (&Function{Override: true}).IsVirtual())
	assert.False(t, (&Function{Virtual: NotVirtual}).IsVirtual())
	assert.False(t, (&Function{}).IsVirtual())
	assert.True(t, (&Function{Virtual: FinalOverride}).IsFinal())
}

func TestNames(t *testing.T) {
	t.Parallel()

	d := &Decl{Name: "area", Scope: []string{"geo", "Shape"}}
	assert.Equal(t, "geo::Shape::area", d.QualName())
	assert.Equal(t, "area", d.PyName())
	d.Rename = "get_area"
	assert.Equal(t, "get_area", d.PyName())

	p := &Param{Name: "x", Default: "1"}
	assert.True(t, p.HasDefault())
	p.NoDefault = true
	assert.False(t, p.HasDefault())

	assert.Equal(t, "<unknown>", Location{}.String())
	assert.Equal(t, "a.h:3", Location{File: "a.h", Line: 3}.String())
}

func lookupModule() *Module {
	shape := &Class{
		Decl: Decl{Kind: KindClass, Name: "Shape", Scope: []string{"geo"}},
		Methods: []*Function{
			{Decl: Decl{Kind: KindFunction, Name: "area", Scope: []string{"geo", "Shape"}}},
		},
		Enums: []*Enum{{
			Decl: Decl{Kind: KindEnum, Name: "Fill", Scope: []string{"geo", "Shape"}},
			Values: []*EnumValue{
				{Decl: Decl{Kind: KindEnumValue, Name: "Solid", Scope: []string{"geo", "Shape", "Fill"}}},
			},
		}},
	}
	forward := &Class{Decl: Decl{Kind: KindClass, Name: "Shape", Scope: []string{"geo"}}}
	geo := &Namespace{
		Decl:    Decl{Kind: KindNamespace, Name: "geo"},
		Classes: []*Class{shape},
		Functions: []*Function{
			{Decl: Decl{Kind: KindFunction, Name: "make", Scope: []string{"geo"}}},
			{Decl: Decl{Kind: KindFunction, Name: "make", Scope: []string{"geo"}}, Params: []Param{{Name: "n", Type: ParseTypeRef("int")}}},
		},
	}
	fwd := &Namespace{Decl: Decl{Kind: KindNamespace, Name: "geo"}, Classes: []*Class{forward}}

	m := NewModule("geo")
	m.AddHeader(&Header{Name: "shapes", Path: "geo/shapes.h", Root: &Namespace{Namespaces: []*Namespace{geo}}})
	m.AddHeader(&Header{Name: "fwd", Path: "geo/fwd.h", Root: &Namespace{Namespaces: []*Namespace{fwd}}})
	return m
}

func TestModuleLookup(t *testing.T) {
	t.Parallel()
	m := lookupModule()

	e, ok := m.Lookup("geo")
	require.True(t, ok)
	assert.True(t, e.Namespace)

	c := m.Class("::geo::Shape")
	require.NotNil(t, c)
	assert.Len(t, c.Methods, 1, "a later forward declaration must not shadow the definition")

	e, ok = m.Lookup("geo::make")
	require.True(t, ok)
	assert.Len(t, e.Functions, 2)
	assert.False(t, e.IsType())

	// unscoped enumerators are visible in the enclosing class
	e, ok = m.Lookup("geo::Shape::Solid")
	require.True(t, ok)
	assert.NotNil(t, e.Value)
	_, ok = m.Lookup("geo::Shape::Fill::Solid")
	assert.True(t, ok)

	_, ok = m.Lookup("geo::Circle")
	assert.False(t, ok)
	assert.Nil(t, m.Class("geo::make"))
}

func TestModuleClassesAndHeaderWalks(t *testing.T) {
	t.Parallel()
	m := lookupModule()

	assert.Len(t, m.Classes(), 2)
	assert.Len(t, HeaderClasses(m.Headers[0]), 1)
	assert.Len(t, HeaderFunctions(m.Headers[0]), 2)
	assert.Empty(t, HeaderEnums(m.Headers[0]))
	assert.Equal(t, "a b c", CollapseWhitespace("  a \n b\tc "))
}
