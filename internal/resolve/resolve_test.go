package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/bindgen/internal/diag"
	"github.com/phobologic/bindgen/internal/model"
)

type builder struct {
	h *model.Header
}

func newBuilder() *builder {
	return &builder{h: &model.Header{Name: "test", Path: "test.h", Root: &model.Namespace{}}}
}

func (b *builder) ns(path ...string) *model.Namespace {
	return namespaceFor(b.h, path)
}

func (b *builder) class(scope []string, name string, bases ...model.Base) *model.Class {
	c := &model.Class{
		Decl:  model.Decl{Kind: model.KindClass, Name: name, Scope: scope, Access: model.Public},
		Bases: bases,
	}
	ns := b.ns(scope...)
	ns.Classes = append(ns.Classes, c)
	return c
}

func nested(parent *model.Class, name string) *model.Class {
	c := &model.Class{Decl: model.Decl{Kind: model.KindClass, Name: name, Scope: parent.Path(), Access: model.Public}}
	parent.Classes = append(parent.Classes, c)
	return c
}

func method(c *model.Class, name string, types ...string) *model.Function {
	f := &model.Function{
		Decl:    model.Decl{Kind: model.KindFunction, Name: name, Scope: c.Path(), Access: model.Public},
		Virtual: model.NotVirtual,
		Order:   len(c.Methods) + 1,
	}
	for i, typ := range types {
		f.Params = append(f.Params, model.Param{Name: string(rune('a' + i)), Type: model.ParseTypeRef(typ), Direction: model.In})
	}
	c.Methods = append(c.Methods, f)
	return f
}

func public(name string) model.Base {
	return model.Base{Name: name, Access: model.Public}
}

func (b *builder) resolver() (*Resolver, *model.Module, *diag.Set) {
	m := model.NewModule("test")
	m.AddHeader(b.h)
	diags := &diag.Set{}
	return New(m, diags), m, diags
}

func TestResolveInnermostScopeFirst(t *testing.T) {
	t.Parallel()

	b := newBuilder()
	b.class([]string{"a"}, "X")
	b.class([]string{"a", "b"}, "X")
	b.class(nil, "Top")
	r, _, _ := b.resolver()

	tests := []struct {
		name  string
		scope []string
		want  string
	}{
		{"X", []string{"a", "b"}, "a::b::X"},
		{"X", []string{"a"}, "a::X"},
		{"b::X", []string{"a"}, "a::b::X"},
		{"::a::X", []string{"a", "b"}, "a::X"},
		{"Top", []string{"a", "b"}, "Top"},
	}
	for _, tt := range tests {
		got, err := r.Resolve(tt.name, tt.scope, nil)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, got, "%s from %v", tt.name, tt.scope)
	}
}

func TestResolveUnresolvedCarriesCandidates(t *testing.T) {
	t.Parallel()

	b := newBuilder()
	b.ns("a", "b")
	r, _, _ := b.resolver()

	_, err := r.Resolve("Nope", []string{"a", "b"}, nil)
	var un *diag.UnresolvedNameError
	require.ErrorAs(t, err, &un)
	assert.Equal(t, []string{"a::b::Nope", "a::Nope", "Nope"}, un.Tried)
	assert.Equal(t, "a::b", un.Scope)
}

func TestResolveTemplateSubstitution(t *testing.T) {
	t.Parallel()

	b := newBuilder()
	b.class([]string{"ns"}, "Bar")
	r, _, _ := b.resolver()

	got, err := r.Resolve("T", []string{"ns"}, map[string]string{"T": "Bar"})
	require.NoError(t, err)
	assert.Equal(t, "ns::Bar", got)

	got, err = r.Resolve("T", []string{"ns"}, map[string]string{"T": "int"})
	require.NoError(t, err)
	assert.Equal(t, "int", got)
}

// A name declared in a base that lives in another namespace is found from a
// grandchild, through a base the overlay renamed and ignored.
func TestResolveThroughHiddenBase(t *testing.T) {
	t.Parallel()

	b := newBuilder()
	hidden := b.class([]string{"ns", "detail"}, "Hidden")
	nested(hidden, "Inner")
	child := b.class([]string{"ns"}, "Child", model.Base{Name: "Hidden", Access: model.Public, Ignored: true})
	child.BaseQualnames = map[string]string{"Hidden": "ns::detail::Hidden"}
	b.class([]string{"ns"}, "GrandChild", public("Child"))
	r, _, diags := b.resolver()
	r.Module()
	require.Zero(t, diags.Len(), diags.Err())

	assert.Equal(t, "ns::detail::Hidden", child.Bases[0].Resolved)

	for _, scope := range [][]string{{"ns", "Child"}, {"ns", "GrandChild"}} {
		got, err := r.Resolve("Inner", scope, nil)
		require.NoError(t, err, "from %v", scope)
		assert.Equal(t, "ns::detail::Hidden::Inner", got)
	}
}

func TestResolveNearestBaseFirst(t *testing.T) {
	t.Parallel()

	b := newBuilder()
	deep := b.class([]string{"n"}, "Deep")
	nested(deep, "Handle")
	b.class([]string{"n"}, "Left", public("Deep"))
	right := b.class([]string{"n"}, "Right")
	nested(right, "Handle")
	b.class([]string{"n"}, "D", public("Left"), public("Right"))
	r, _, diags := b.resolver()
	r.Module()
	require.Zero(t, diags.Len(), diags.Err())

	got, err := r.Resolve("Handle", []string{"n", "D"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "n::Right::Handle", got)

	got, err = r.Resolve("Handle", []string{"n", "Left"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "n::Deep::Handle", got)
}

func TestResolveInjectedClassName(t *testing.T) {
	t.Parallel()

	b := newBuilder()
	b.class([]string{"other"}, "Base")
	b.class([]string{"ns"}, "Derived", public("other::Base"))
	r, _, diags := b.resolver()
	r.Module()
	require.Zero(t, diags.Len())

	got, err := r.Resolve("Base", []string{"ns", "Derived"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "other::Base", got)

	got, err = r.Resolve("Derived", []string{"ns", "Derived"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ns::Derived", got)
}

func TestUnresolvedBaseFailsClass(t *testing.T) {
	t.Parallel()

	b := newBuilder()
	c := b.class([]string{"ns"}, "Orphan", public("Missing"))
	r, _, diags := b.resolver()
	r.Module()

	require.Equal(t, 1, diags.Len())
	assert.True(t, diags.Failed(c.QualName()))
	assert.True(t, diag.Is[*diag.UnresolvedNameError](diags.Items()[0]))
}

func TestAliasChainsCanonicalize(t *testing.T) {
	t.Parallel()

	b := newBuilder()
	b.class([]string{"ns"}, "Bar")
	ns := b.ns("ns")
	ns.Aliases = append(ns.Aliases,
		&model.Alias{Decl: model.Decl{Kind: model.KindAlias, Name: "Foo", Scope: []string{"ns"}}, Target: model.ParseTypeRef("Bar")},
		&model.Alias{Decl: model.Decl{Kind: model.KindAlias, Name: "Baz", Scope: []string{"ns"}}, Target: model.ParseTypeRef("Foo")},
		&model.Alias{Decl: model.Decl{Kind: model.KindAlias, Name: "Str", Scope: []string{"ns"}}, Target: model.ParseTypeRef("std::string")},
	)
	user := b.class([]string{"ns"}, "User")
	viaAlias := method(user, "take", "const Baz &")
	direct := method(user, "take", "const Bar &")
	str := method(user, "name", "Str")
	r, _, diags := b.resolver()
	r.Module()
	require.Zero(t, diags.Len())

	assert.Equal(t, "ns::Bar", r.Canonical("ns::Baz"))
	assert.Equal(t, "ns::Baz", viaAlias.Params[0].Type.Resolved)
	assert.Equal(t, "ns::Bar", viaAlias.Params[0].Type.Canonical)
	assert.Equal(t, direct.Signature(), viaAlias.Signature())
	assert.Equal(t, "std::string", str.Params[0].Type.Canonical)
}

func TestUnknownParamTypeKeptVerbatim(t *testing.T) {
	t.Parallel()

	b := newBuilder()
	c := b.class(nil, "C")
	f := method(c, "f", "frc::Unknown *")
	r, _, diags := b.resolver()
	r.Module()

	assert.Zero(t, diags.Len())
	assert.Equal(t, "frc::Unknown", f.Params[0].Type.Canonical)
	assert.Equal(t, "", f.Params[0].Type.Resolved)
	assert.Equal(t, 1, f.Params[0].Type.Pointer)
}

func TestUsingMergesOverloads(t *testing.T) {
	t.Parallel()

	b := newBuilder()
	base := b.class([]string{"u"}, "Using5a")
	method(base, "fn", "int")
	method(base, "fn", "double")
	derived := b.class([]string{"u"}, "Using5b", public("Using5a"))
	method(derived, "fn", "std::string")
	derived.Usings = []model.Using{{Target: "Using5a::fn", Access: model.Protected}}
	r, _, diags := b.resolver()
	r.Module()
	require.Zero(t, diags.Len(), diags.Err())

	fns := derived.MethodsNamed("fn")
	require.Len(t, fns, 3)
	aliases := 0
	for _, f := range fns {
		assert.Equal(t, "u::Using5b::fn", f.QualName())
		if f.AliasOf != "" {
			aliases++
			assert.Equal(t, "u::Using5a::fn", f.AliasOf)
			assert.Equal(t, model.Protected, f.Access)
		}
	}
	assert.Equal(t, 2, aliases)
	assert.Len(t, base.MethodsNamed("fn"), 2, "base is not modified")
}

func TestUsingSameSignatureConflicts(t *testing.T) {
	t.Parallel()

	b := newBuilder()
	base := b.class(nil, "A")
	method(base, "fn", "int")
	method(base, "fn", "double")
	derived := b.class(nil, "B", public("A"))
	method(derived, "fn", "int")
	derived.Usings = []model.Using{{Target: "A::fn", Access: model.Public}}
	r, _, diags := b.resolver()
	r.Module()

	require.Equal(t, 1, diags.Len())
	var conflict *diag.OverloadConflictError
	require.ErrorAs(t, diags.Items()[0], &conflict)
	assert.Equal(t, "B::fn", conflict.QualName)
	assert.Equal(t, 1, conflict.Arity)
	assert.Len(t, derived.MethodsNamed("fn"), 2)
}

func TestUsingInheritedConstructors(t *testing.T) {
	t.Parallel()

	b := newBuilder()
	base := b.class(nil, "A")
	ctor := method(base, "A", "int")
	ctor.Constructor = true
	derived := b.class(nil, "B", public("A"))
	derived.Usings = []model.Using{{Target: "A::A", Access: model.Public}}
	r, _, diags := b.resolver()
	r.Module()
	require.Zero(t, diags.Len())

	ctors := derived.Constructors()
	require.Len(t, ctors, 1)
	assert.Equal(t, "B", ctors[0].Name)
	assert.Equal(t, "A::A", ctors[0].AliasOf)
}

func TestUsingUnknownTarget(t *testing.T) {
	t.Parallel()

	b := newBuilder()
	b.class(nil, "A")
	derived := b.class(nil, "B", public("A"))
	derived.Usings = []model.Using{{Target: "A::nope"}}
	r, _, diags := b.resolver()
	r.Module()

	require.Equal(t, 1, diags.Len())
	assert.False(t, diags.Failed("B"), "the class itself stays bindable")
}

func TestInstantiate(t *testing.T) {
	t.Parallel()

	b := newBuilder()
	box := b.class([]string{"ns"}, "Box")
	box.Template = []string{"T"}
	box.Fields = []*model.Field{{Decl: model.Decl{Kind: model.KindField, Name: "value", Scope: box.Path()}, Type: model.ParseTypeRef("T")}}
	method(box, "set", "const T &")
	get := method(box, "get")
	get.Return = model.ParseTypeRef("T")
	method(box, "swap", "Box &")
	r, m, diags := b.resolver()

	inst, err := r.Instantiate(b.h, "BoxInt", "ns::Box", []string{"int"})
	require.NoError(t, err)
	assert.Equal(t, "ns::Box<int>", inst.QualName())
	assert.Equal(t, "BoxInt", inst.PyName())
	assert.Same(t, inst, m.Class("ns::Box<int>"))
	assert.Empty(t, inst.Template)

	assert.Equal(t, "int", inst.Fields[0].Type.Name)
	set := inst.MethodsNamed("set")[0]
	assert.Equal(t, "int", set.Params[0].Type.Name)
	assert.True(t, set.Params[0].Type.Const)
	assert.Equal(t, 1, set.Params[0].Type.Reference)
	assert.Equal(t, "ns::Box<int>::set", set.QualName())
	assert.Equal(t, "int", inst.MethodsNamed("get")[0].Return.Name)
	assert.Equal(t, "Box<int>", inst.MethodsNamed("swap")[0].Params[0].Type.Name)

	assert.Equal(t, "T", box.Fields[0].Type.Name, "template is not modified")

	r.Module()
	assert.Zero(t, diags.Len())
	assert.Equal(t, "ns::Box<int>", inst.MethodsNamed("swap")[0].Params[0].Type.Resolved)

	_, err = r.Instantiate(b.h, "Bad", "ns::Box", []string{"int", "float"})
	assert.Error(t, err)
	_, err = r.Instantiate(b.h, "Bad", "ns::Nope", []string{"int"})
	assert.True(t, diag.Is[*diag.UnresolvedNameError](err))
}

func TestSubstitute(t *testing.T) {
	t.Parallel()

	subst := map[string]string{"T": "int", "U": "double"}
	tests := []struct{ in, want string }{
		{"T", "int"},
		{"const T &", "const int &"},
		{"std::pair<T, U>", "std::pair<int, double>"},
		{"TT", "TT"},
		{"x::T", "x::T"},
		{"T<int>", "T<int>"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, substitute(tt.in, subst), tt.in)
	}
}
