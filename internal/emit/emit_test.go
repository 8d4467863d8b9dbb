package emit

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/bindgen/internal/diag"
	"github.com/phobologic/bindgen/internal/graph"
	"github.com/phobologic/bindgen/internal/model"
	"github.com/phobologic/bindgen/internal/parse"
	"github.com/phobologic/bindgen/internal/resolve"
)

const demoHeader = `#pragma once

namespace demo {

struct IBase {
  virtual ~IBase() {}
  virtual int baseOnly();
  virtual int baseAndChild();
  virtual int baseAndGrandchild();
};

struct IChild : IBase {
  int baseAndChild() final;
};

struct IGrandChild : IChild {
  int baseAndGrandchild() override;
};

struct Abstract {
  virtual int run(int x) = 0;
};

struct Hidden {
  virtual int run(int x) = 0;
};

/// Adds two numbers.
int fnSimpleDefaultParam(int i, int j = 3);

void getValue(int &out);

/// Drive mode.
enum class Mode { Brake = 1, Coast = 3 };

class Point {
public:
  Point(int x);
  int x;
  const int y = 0;
};

class Wrapper {
public:
  Wrapper(const Point &p);
};

struct Sealed final {
  void f();
};

} // namespace demo
`

type emitted struct {
	file     File
	manifest []model.ManifestEntry
	diags    *diag.Set
	e        *Emitter
	h        *model.Header
}

func emitDemo(t *testing.T, tweak func(m *model.Module)) emitted {
	t.Helper()
	return emitSource(t, demoHeader, nil, tweak)
}

// emitSource binds src as header "demo". setup runs before name
// resolution and tweak after it.
func emitSource(t *testing.T, src string, setup func(r *resolve.Resolver, h *model.Header), tweak func(m *model.Module)) emitted {
	t.Helper()
	h, err := parse.New().ParseHeader(context.Background(), []byte(src), "demo.h", "demo")
	require.NoError(t, err)

	m := model.NewModule("mod")
	m.AddHeader(h)
	diags := &diag.Set{}
	r := resolve.New(m, diags)
	if setup != nil {
		setup(r, h)
	}
	r.Module()
	if tweak != nil {
		tweak(m)
	}

	g := graph.Build(m)
	g.Resolve()
	g.Check(diags)

	e := New("mod", m, g, diags)
	file, manifest := e.Header(h)
	return emitted{file: file, manifest: manifest, diags: diags, e: e, h: h}
}

// section returns the text from the first line containing start through
// the next line equal to end after trimming.
func section(t *testing.T, text, start, end string) string {
	t.Helper()
	i := strings.Index(text, start)
	require.GreaterOrEqual(t, i, 0, "missing %q", start)
	rest := text[i:]
	for off := 0; off < len(rest); {
		nl := strings.IndexByte(rest[off:], '\n')
		if nl < 0 {
			break
		}
		if strings.TrimSpace(rest[off:off+nl]) == end {
			return rest[:off+nl]
		}
		off += nl + 1
	}
	return rest
}

func TestHeaderFileLayout(t *testing.T) {
	t.Parallel()
	out := emitDemo(t, nil)

	assert.Equal(t, "demo.cpp", out.file.Path)
	assert.Contains(t, out.file.Content, "#include <bindgen.h>")
	assert.Contains(t, out.file.Content, "#include <demo.h>")
	assert.Contains(t, out.file.Content, "void bindgen_init_demo(py::module_ &m) {")
	assert.False(t, out.diags.Failed("demo::IBase"))
}

func TestTrampolinesFollowOverrideVerdicts(t *testing.T) {
	t.Parallel()
	out := emitDemo(t, nil)
	text := out.file.Content

	base := section(t, text, "struct bindgen_trampoline_demo__IBase : demo::IBase {", "};")
	assert.Contains(t, base, "int baseOnly() override {")
	assert.Contains(t, base, "int baseAndChild() override {")
	assert.Contains(t, base, "BINDGEN_OVERRIDE(int, demo::IBase, \"baseAndGrandchild\", (demo::IBase::baseAndGrandchild()), );")

	child := section(t, text, "struct bindgen_trampoline_demo__IChild : demo::IChild {", "};")
	assert.NotContains(t, child, "baseAndChild")
	assert.Contains(t, child, "int baseAndGrandchild() override {")

	grand := section(t, text, "struct bindgen_trampoline_demo__IGrandChild : demo::IGrandChild {", "};")
	assert.NotContains(t, grand, "baseAndChild")
	assert.Contains(t, grand, "BINDGEN_OVERRIDE(int, demo::IGrandChild, \"baseAndGrandchild\", (demo::IGrandChild::baseAndGrandchild()), );")

	abstract := section(t, text, "struct bindgen_trampoline_demo__Abstract : demo::Abstract {", "};")
	assert.Contains(t, abstract, "BINDGEN_OVERRIDE_PURE(\"demo::Abstract\", int, demo::Abstract, \"run\", x);")

	assert.NotContains(t, text, "bindgen_trampoline_demo__Sealed")
	assert.Contains(t, text, "static_assert(!std::is_abstract<bindgen_trampoline_demo__Abstract>::value")
}

func TestClassDeclarations(t *testing.T) {
	t.Parallel()
	out := emitDemo(t, nil)
	text := out.file.Content

	assert.Contains(t, text, `py::class_<demo::IBase, bindgen_trampoline_demo__IBase> cls_demo__IBase(m, "IBase");`)
	assert.Contains(t, text, `py::class_<demo::IChild, bindgen_trampoline_demo__IChild, demo::IBase> cls_demo__IChild(m, "IChild");`)
	assert.Contains(t, text, `py::class_<demo::Sealed> cls_demo__Sealed(m, "Sealed", py::is_final());`)

	// bases are declared before derived classes
	assert.Less(t, strings.Index(text, "cls_demo__IBase(m"), strings.Index(text, "cls_demo__IChild(m"))
	assert.Less(t, strings.Index(text, "cls_demo__IChild(m"), strings.Index(text, "cls_demo__IGrandChild(m"))
}

func TestConstructors(t *testing.T) {
	t.Parallel()
	out := emitDemo(t, func(m *model.Module) {
		m.Class("demo::Hidden").NoTrampoline = true
	})
	text := out.file.Content

	abstract := section(t, text, "cls_demo__Abstract\n", ";")
	assert.Contains(t, abstract, ".def(py::init_alias<>(), release_gil())")

	sealed := section(t, text, "cls_demo__Sealed\n", ";")
	assert.Contains(t, sealed, ".def(py::init<>(), release_gil())")

	hidden := section(t, text, "cls_demo__Hidden\n", ";")
	assert.NotContains(t, hidden, "py::init")
	assert.NotContains(t, text, "bindgen_trampoline_demo__Hidden")

	point := section(t, text, "cls_demo__Point\n", ";")
	assert.Contains(t, point, ".def(py::init<int>()")
	assert.NotContains(t, point, "py::init<>()")

	assert.Contains(t, text, "py::implicitly_convertible<demo::Point, demo::Wrapper>();")
}

func TestFreeFunctions(t *testing.T) {
	t.Parallel()
	out := emitDemo(t, nil)
	text := out.file.Content

	fn := section(t, text, `m.def("fnSimpleDefaultParam"`, ");")
	assert.Contains(t, fn, "&demo::fnSimpleDefaultParam")
	assert.Contains(t, fn, `py::arg("i"), py::arg("j") = 3`)
	assert.Contains(t, fn, `py::doc("Adds two numbers.")`)
	assert.NotContains(t, fn, "static_cast")

	get := section(t, text, `m.def("getValue"`, ");")
	assert.Contains(t, get, "[]() {")
	assert.Contains(t, get, "int out{};")
	assert.Contains(t, get, "demo::getValue(out);")
	assert.Contains(t, get, "return out;")
}

func TestOverloadedNamesAreCast(t *testing.T) {
	t.Parallel()
	const src = `#pragma once

namespace ns {

struct C {
  int f(int x);
  int g(int x);
  int h(int x);
protected:
  int g(double x);
private:
  int f(double x);
};

void k(int x);
template <typename T> void k(T x);

} // namespace ns
`
	out := emitSource(t, src, nil, nil)
	text := out.file.Content

	cls := section(t, text, "cls_ns__C\n", ";")
	assert.Contains(t, cls, `.def("f", static_cast<int (ns::C::*)(int)>(&ns::C::f)`)
	assert.Contains(t, cls, `.def("g", static_cast<int (ns::C::*)(int)>(&ns::C::g)`)
	assert.Contains(t, cls, `.def("h", &ns::C::h`)
	assert.NotContains(t, cls, "(double)")

	assert.Contains(t, text, `m.def("k", static_cast<void (*)(int)>(&ns::k)`)
}

func TestTemplateInstanceForwarder(t *testing.T) {
	t.Parallel()
	const src = `#pragma once

namespace ns {

template <typename A, typename B>
struct Pair {
  virtual ~Pair() {}
  virtual A first(B b);
};

} // namespace ns
`
	out := emitSource(t, src, func(r *resolve.Resolver, h *model.Header) {
		_, err := r.Instantiate(h, "IntPair", "ns::Pair", []string{"int", "double"})
		require.NoError(t, err)
	}, nil)
	text := out.file.Content

	tramp := section(t, text, "struct bindgen_trampoline_ns__Pair_int__double_ : ns::Pair<int, double> {", "};")
	assert.Contains(t, tramp, "int first(double b) override {")
	assert.Contains(t, tramp, `"first", (ns::Pair<int, double>::first(b)), b);`)
}

func TestBuffersAndReturnPolicy(t *testing.T) {
	t.Parallel()
	const src = `#pragma once

#include <cstdint>

namespace io {

struct Port {
  int write(const uint8_t *data, size_t count);
  void read(uint8_t *data, size_t *count);
  const Port &self() const;
};

} // namespace io
`
	out := emitSource(t, src, nil, func(m *model.Module) {
		port := m.Class("io::Port")
		port.Methods[0].Buffers = []model.Buffer{{Src: "data", Len: "count", Direction: model.In}}
		port.Methods[1].Buffers = []model.Buffer{{Src: "data", Len: "count", Direction: model.InOut, MinSize: 4}}
		port.Methods[2].ReturnPolicy = "reference_internal"
	})
	require.Zero(t, out.diags.Len(), out.diags.Err())
	text := out.file.Content

	write := section(t, text, `.def("write"`, `, py::arg("data")`)
	assert.Contains(t, write, "[](io::Port &self, const py::buffer &data) {")
	assert.Contains(t, write, "size_t count{};")
	assert.Contains(t, write, "auto bindgen_buf_data = data.request(false);")
	assert.Contains(t, write, "count = bindgen_buf_data.size * bindgen_buf_data.itemsize;")
	assert.Contains(t, write, "py::gil_scoped_release bindgen_release;")
	assert.Contains(t, write, "return self.write(static_cast<const uint8_t *>(bindgen_buf_data.ptr), count);")
	assert.Less(t, strings.Index(write, "size_t count{};"), strings.Index(write, "count = "))

	read := section(t, text, `.def("read"`, `, py::arg("data")`)
	assert.Contains(t, read, "auto bindgen_buf_data = data.request(true);")
	assert.Contains(t, read, `if (count < 4) throw py::value_error("data: minimum buffer size is 4");`)
	assert.Contains(t, read, "self.read(static_cast<uint8_t *>(bindgen_buf_data.ptr), &count);")
	assert.Contains(t, read, "return count;")

	cls := section(t, text, "cls_io__Port\n", ";")
	assert.NotContains(t, section(t, cls, `.def("write"`, `)`), "release_gil()")
	assert.Contains(t, cls, "release_gil(), py::return_value_policy::reference_internal")
}

func TestEnumAndFields(t *testing.T) {
	t.Parallel()
	out := emitDemo(t, nil)
	text := out.file.Content

	assert.Contains(t, text, `py::enum_<demo::Mode>(m, "Mode", "Drive mode.")`)
	brake := strings.Index(text, `.value("Brake", demo::Mode::Brake)`)
	coast := strings.Index(text, `.value("Coast", demo::Mode::Coast)`)
	require.GreaterOrEqual(t, brake, 0)
	assert.Less(t, brake, coast)

	assert.Contains(t, text, `.def_readwrite("x", &demo::Point::x)`)
	assert.Contains(t, text, `.def_readonly("y", &demo::Point::y)`)
}

func TestManifestEntries(t *testing.T) {
	t.Parallel()
	out := emitDemo(t, nil)

	byBinding := make(map[string]model.ManifestEntry)
	for _, e := range out.manifest {
		byBinding[e.Binding] = e
		assert.Equal(t, "demo", e.Header)
	}

	fn, ok := byBinding["mod.fnSimpleDefaultParam"]
	require.True(t, ok)
	assert.Equal(t, "demo::fnSimpleDefaultParam", fn.QualName)
	assert.Equal(t, model.KindFunction, fn.Kind)
	assert.Positive(t, fn.Line)

	cls, ok := byBinding["mod.IChild"]
	require.True(t, ok)
	assert.Equal(t, model.KindClass, cls.Kind)

	_, ok = byBinding["mod.IChild.baseAndChild"]
	assert.True(t, ok)
	_, ok = byBinding["mod.Mode.Coast"]
	assert.True(t, ok)
	_, ok = byBinding["mod.Point.y"]
	assert.True(t, ok)
}

func TestModuleEntryPoint(t *testing.T) {
	t.Parallel()
	out := emitDemo(t, nil)

	f := out.e.Module([]*model.Header{out.h})
	assert.Equal(t, "module.cpp", f.Path)
	assert.Contains(t, f.Content, "void bindgen_init_demo(py::module_ &m);")
	assert.Contains(t, f.Content, "PYBIND11_MODULE(mod, m) {")
	assert.Contains(t, f.Content, "  bindgen_init_demo(m);")
}

func TestSupportHeader(t *testing.T) {
	t.Parallel()
	s := Support()
	assert.Equal(t, "bindgen.h", s.Path)
	assert.Contains(t, s.Content, "BINDGEN_OVERRIDE_PURE")
	assert.Contains(t, s.Content, "BINDGEN_BAD_TRAMPOLINE")
}

func TestDefaultExpr(t *testing.T) {
	t.Parallel()
	ns := &model.Namespace{Namespaces: []*model.Namespace{{
		Decl: model.Decl{Kind: model.KindNamespace, Name: "demo"},
		Enums: []*model.Enum{{
			Decl:   model.Decl{Kind: model.KindEnum, Name: "Mode", Scope: []string{"demo"}},
			Values: []*model.EnumValue{{Decl: model.Decl{Kind: model.KindEnumValue, Name: "Brake", Scope: []string{"demo", "Mode"}}}},
		}},
	}}}
	m := model.NewModule("mod")
	m.AddHeader(&model.Header{Name: "demo", Root: ns})
	e := &Emitter{m: m}

	tests := []struct {
		name string
		p    model.Param
		want string
	}{
		{"literal", model.Param{Type: model.ParseTypeRef("int"), Default: "3"}, "3"},
		{"keyword", model.Param{Type: model.ParseTypeRef("bool"), Default: "true"}, "true"},
		{"brace", model.Param{Type: model.ParseTypeRef("const std::string &"), Default: "{}"}, "std::string{}"},
		{"qualified", model.Param{Type: model.ParseTypeRef("Mode"), Default: "Mode"}, "demo::Mode"},
		{"unknown", model.Param{Type: model.ParseTypeRef("int"), Default: "kLimit"}, "kLimit"},
		{"expression", model.Param{Type: model.ParseTypeRef("int"), Default: "1 + 2"}, "1 + 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, e.defaultExpr(&tt.p, []string{"demo"}))
		})
	}
}

func TestMangleAndTypeArg(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "demo__Box_int_", mangle("demo::Box<int>"))
	assert.Equal(t, "PYBIND11_TYPE(std::map<int, int>)", typeArg("std::map<int, int>"))
	assert.Equal(t, "int", typeArg("int"))
}

func TestCStr(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"plain", `"plain"`},
		{`say "hi"`, `"say \"hi\""`},
		{`C:\dir`, `"C:\\dir"`},
		{"a\nb\tc", `"a\nb\tc"`},
		{"bell\a1", `"bell\0071"`},
		{"nul\x00", `"nul\000"`},
		{"del\x7f", `"del\177"`},
		{"what??!", `"what?\?!"`},
		{"héllo ✓", `"héllo ✓"`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cstr(tt.in), "%q", tt.in)
	}
}
