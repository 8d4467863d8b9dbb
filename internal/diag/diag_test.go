package diag

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/bindgen/internal/model"
)

func TestSetCollectsAndSorts(t *testing.T) {
	t.Parallel()

	var s Set
	s.Add("geo::B", model.Location{File: "b.h", Line: 2}, &UnsupportedSignatureError{QualName: "geo::B::f", Param: "xs", Reason: "unsized array"})
	s.Add("geo::A", model.Location{File: "a.h", Line: 9}, &UnresolvedNameError{Name: "Missing", Scope: "geo::A", Tried: []string{"geo::A::Missing", "geo::Missing", "Missing"}})
	s.Add("geo::A2", model.Location{File: "a.h", Line: 1}, &ConfigError{Key: "classes.Nope", Reason: "no such class"})
	s.Add("geo::C", model.Location{}, nil)

	require.Equal(t, 3, s.Len())
	assert.True(t, s.Failed("geo::A"))
	assert.False(t, s.Failed("geo::C"), "a nil error records nothing")

	items := s.Items()
	assert.Equal(t, "geo::A2", items[0].QualName)
	assert.Equal(t, "geo::A", items[1].QualName)
	assert.Equal(t, "geo::B", items[2].QualName)
}

func TestSetMergeAndErr(t *testing.T) {
	t.Parallel()

	var s Set
	require.NoError(t, s.Err())

	other := &Set{}
	other.Add("ns::X", model.Location{File: "x.h", Line: 4}, &AbstractTrampolineError{Class: "ns::X", Method: "run()"})
	s.Merge(other)
	s.Merge(nil)

	assert.True(t, s.Failed("ns::X"))
	err := s.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 declaration(s) failed")
	assert.Contains(t, errors.FlattenDetails(err), "x.h:4: ns::X:")
}

func TestIs(t *testing.T) {
	t.Parallel()

	d := Diagnostic{
		QualName: "geo::f",
		Err:      errors.Wrap(&OverloadConflictError{QualName: "geo::f", Arity: 1, First: "f(int)", Second: "f(int, int = 0)"}, "binding"),
	}
	assert.True(t, Is[*OverloadConflictError](d))
	assert.False(t, Is[*ConfigError](d))
	assert.Contains(t, d.Error(), "collide at arity 1")
}

func TestErrorMessages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{&UnresolvedNameError{Name: "T", Scope: "ns", Tried: []string{"ns::T", "T"}}, `cannot resolve "T" from "ns" (tried ns::T, T)`},
		{&UnsupportedSignatureError{QualName: "f", Reason: "rvalue return"}, "f: unsupported signature: rvalue return"},
		{&UnsupportedSignatureError{QualName: "f", Param: "a", Reason: "unsized array"}, `f: parameter "a": unsized array`},
		{&MissingOverrideError{Repr: "<Dog>", Interface: "zoo::Animal", Method: "speak"}, `<Dog> does not override required function "zoo::Animal::speak"`},
		{&ConfigError{Key: "functions.g", Reason: "no such function"}, "functions.g: no such function"},
		{&ConfigError{File: "a.yml", Key: "functions.g", Reason: "no such function"}, "a.yml: functions.g: no such function"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.err.Error())
	}
}
