// Package diag defines the generator's error taxonomy and the per-declaration
// diagnostics a run collects instead of aborting.
package diag

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/phobologic/bindgen/internal/model"
)

// UnresolvedNameError reports a name that no scope could resolve.
type UnresolvedNameError struct {
	Name  string
	Scope string
	Tried []string
}

func (e *UnresolvedNameError) Error() string {
	return fmt.Sprintf("cannot resolve %q from %q (tried %s)", e.Name, e.Scope, strings.Join(e.Tried, ", "))
}

// OverloadConflictError reports two entries of an overload set that cannot
// be told apart.
type OverloadConflictError struct {
	QualName string
	Arity    int
	First    string
	Second   string
}

func (e *OverloadConflictError) Error() string {
	return fmt.Sprintf("%s: overloads %q and %q collide at arity %d", e.QualName, e.First, e.Second, e.Arity)
}

// UnsupportedSignatureError reports a parameter or return type with no
// marshaling strategy.
type UnsupportedSignatureError struct {
	QualName string
	Param    string
	Reason   string
}

func (e *UnsupportedSignatureError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("%s: unsupported signature: %s", e.QualName, e.Reason)
	}
	return fmt.Sprintf("%s: parameter %q: %s", e.QualName, e.Param, e.Reason)
}

// AbstractTrampolineError reports a trampoline that would remain abstract.
type AbstractTrampolineError struct {
	Class  string
	Method string
}

func (e *AbstractTrampolineError) Error() string {
	return fmt.Sprintf("%s has an abstract trampoline: pure virtual %q has no forwarding entry", e.Class, e.Method)
}

// MissingOverrideError is raised at call time when a pure virtual method has
// no dynamic-side override.
type MissingOverrideError struct {
	Repr      string
	Interface string
	Method    string
}

func (e *MissingOverrideError) Error() string {
	return fmt.Sprintf("%s does not override required function %q", e.Repr, e.Interface+"::"+e.Method)
}

// ConfigError reports an overlay directive that does not match the model.
type ConfigError struct {
	File   string
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("%s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", e.File, e.Key, e.Reason)
}

// Diagnostic is a generation-time failure attached to one declaration.
type Diagnostic struct {
	QualName string
	Loc      model.Location
	Err      error
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("%s: %s: %v", d.Loc, d.QualName, d.Err)
}

func (d Diagnostic) Unwrap() error {
	return d.Err
}

// Set collects diagnostics for one run.
type Set struct {
	items  []Diagnostic
	failed map[string]struct{}
}

// Add records a failure against a declaration and marks it failed.
func (s *Set) Add(qualname string, loc model.Location, err error) {
	if err == nil {
		return
	}
	if s.failed == nil {
		s.failed = make(map[string]struct{})
	}
	s.failed[qualname] = struct{}{}
	s.items = append(s.items, Diagnostic{QualName: qualname, Loc: loc, Err: err})
}

// Failed reports whether a declaration has a recorded failure.
func (s *Set) Failed(qualname string) bool {
	_, ok := s.failed[qualname]
	return ok
}

// Merge appends another set's diagnostics.
func (s *Set) Merge(other *Set) {
	if other == nil {
		return
	}
	for _, d := range other.items {
		s.Add(d.QualName, d.Loc, d.Err)
	}
}

// Len returns the number of diagnostics.
func (s *Set) Len() int {
	return len(s.items)
}

// Items returns the diagnostics sorted by location then name.
func (s *Set) Items() []Diagnostic {
	out := append([]Diagnostic(nil), s.items...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Loc.File != out[j].Loc.File {
			return out[i].Loc.File < out[j].Loc.File
		}
		if out[i].Loc.Line != out[j].Loc.Line {
			return out[i].Loc.Line < out[j].Loc.Line
		}
		return out[i].QualName < out[j].QualName
	})
	return out
}

// Err combines every diagnostic into one error, or nil.
func (s *Set) Err() error {
	if len(s.items) == 0 {
		return nil
	}
	items := s.Items()
	msgs := make([]string, len(items))
	for i, d := range items {
		msgs[i] = d.Error()
	}
	err := errors.Newf("%d declaration(s) failed", len(items))
	return errors.WithDetail(err, strings.Join(msgs, "\n"))
}

// Is reports whether err carries an error of the target's type.
func Is[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}
