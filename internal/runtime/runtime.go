// Package runtime is an executable model of the dispatch discipline the
// generated trampolines follow: override lookup under the runtime lock,
// missing-override errors for pure methods, fallback to the native parent
// outside the lock, and release of held objects that tolerates a finalizing
// host.
package runtime

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/phobologic/bindgen/internal/diag"
	"github.com/phobologic/bindgen/internal/graph"
	"github.com/phobologic/bindgen/internal/logger"
)

// Object is a dynamic-side object handle.
type Object any

// Callable is a dynamic-side override.
type Callable func(args ...any) (any, error)

// Native is a native implementation reached when no override exists.
type Native func(args ...any) (any, error)

// Host is the capability the dynamic runtime provides. Acquire takes the
// runtime lock and returns its release function.
type Host interface {
	Acquire() (release func())
	LookupOverride(obj Object, method string) (Callable, bool)
	IsFinalizing() bool
	Repr(obj Object) (string, error)
}

// Slot is one overridable method of a trampoline.
type Slot struct {
	Signature string
	Method    string // exposed name looked up on the dynamic object
	Interface string // class declaring the method
	Pure      bool
	Parent    Native
}

// Table is the forwarding table of one class's trampoline.
type Table struct {
	Class string
	slots map[string]*Slot
	order []string
}

// NewTable builds the table from the class's trampoline entries.
func NewTable(g *graph.Graph, class string) *Table {
	t := &Table{Class: class, slots: make(map[string]*Slot)}
	for _, r := range g.TrampolineEntries(class) {
		f := g.Method(r)
		t.slots[r.Signature] = &Slot{
			Signature: r.Signature,
			Method:    f.PyName(),
			Interface: r.Owner,
			Pure:      r.Verdict == graph.PureUnimplemented,
		}
		t.order = append(t.order, r.Signature)
	}
	return t
}

// Slots returns the slots in record order.
func (t *Table) Slots() []*Slot {
	out := make([]*Slot, len(t.order))
	for i, sig := range t.order {
		out[i] = t.slots[sig]
	}
	return out
}

// Slot returns the slot for a signature.
func (t *Table) Slot(sig string) (*Slot, bool) {
	s, ok := t.slots[sig]
	return s, ok
}

// Implement sets the parent implementation a non-pure slot forwards to.
func (t *Table) Implement(sig string, parent Native) error {
	s, ok := t.slots[sig]
	if !ok {
		return errors.Newf("%s has no overridable method %q", t.Class, sig)
	}
	if s.Pure {
		return errors.WithHint(
			errors.Newf("%s: %q is pure and has no parent implementation", t.Class, sig),
			"pure methods must be overridden on the dynamic side")
	}
	s.Parent = parent
	return nil
}

// Trampoline dispatches calls on one native object backed by a dynamic
// object.
type Trampoline struct {
	host  Host
	self  Object
	table *Table
	log   *zap.SugaredLogger
}

// NewTrampoline binds a table to the dynamic object self.
func NewTrampoline(host Host, self Object, table *Table) *Trampoline {
	return &Trampoline{host: host, self: self, table: table, log: logger.Named("runtime")}
}

// scoped releases the runtime lock at most once.
type scoped struct {
	release func()
	held    bool
}

func acquire(h Host) *scoped {
	return &scoped{release: h.Acquire(), held: true}
}

func (s *scoped) unlock() {
	if s.held {
		s.held = false
		s.release()
	}
}

// Call invokes the method with signature sig. The override lookup and the
// override call run under the runtime lock. A pure method without an
// override fails with a MissingOverrideError; any other method falls back
// to its parent implementation with the lock released.
func (t *Trampoline) Call(sig string, args ...any) (any, error) {
	s, ok := t.table.Slot(sig)
	if !ok {
		return nil, errors.Newf("%s has no overridable method %q", t.table.Class, sig)
	}

	lock := acquire(t.host)
	defer lock.unlock()

	if fn, ok := t.host.LookupOverride(t.self, s.Method); ok {
		return fn(args...)
	}
	if s.Pure {
		return nil, &diag.MissingOverrideError{
			Repr:      t.repr(),
			Interface: s.Interface,
			Method:    s.Method,
		}
	}
	lock.unlock()

	if s.Parent == nil {
		return nil, errors.Newf("%s: no parent implementation for %q", t.table.Class, sig)
	}
	return s.Parent(args...)
}

// repr describes the dynamic object, or "<unknown>" when the host is
// finalizing or introspection fails. Must be called with the lock held.
func (t *Trampoline) repr() string {
	const unknown = "<unknown>"
	if t.host.IsFinalizing() {
		return unknown
	}
	r, err := t.host.Repr(t.self)
	if err != nil {
		t.log.Debugw("repr failed", logger.FieldError, err)
		return unknown
	}
	return r
}

// Holder owns a reference to a dynamic object held by native code.
type Holder struct {
	host   Host
	obj    Object
	drop   func(Object)
	closed bool
	log    *zap.SugaredLogger
}

// NewHolder takes ownership of obj; drop releases it.
func NewHolder(host Host, obj Object, drop func(Object)) *Holder {
	return &Holder{host: host, obj: obj, drop: drop, log: logger.Named("runtime")}
}

// Object returns the held object.
func (h *Holder) Object() Object {
	return h.obj
}

// Close releases the object under the runtime lock. While the host is
// finalizing the reference is leaked instead.
func (h *Holder) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	if h.host.IsFinalizing() {
		h.log.Debug("host finalizing, leaking held object")
		return nil
	}
	lock := acquire(h.host)
	defer lock.unlock()
	h.drop(h.obj)
	return nil
}
