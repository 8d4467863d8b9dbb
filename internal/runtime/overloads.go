package runtime

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/phobologic/bindgen/internal/overload"
)

// Overloads dispatches calls to an overload set by argument count.
type Overloads struct {
	set   *overload.Set
	impls map[string]Native
}

// NewOverloads pairs an overload set with implementations keyed by
// declaration signature.
func NewOverloads(s *overload.Set, impls map[string]Native) *Overloads {
	return &Overloads{set: s, impls: impls}
}

// Call picks the first bindable entry accepting len(args) arguments. For a
// synthesized entry the omitted parameters receive their default values.
func (o *Overloads) Call(args ...any) (any, error) {
	for _, e := range o.set.Lookup(len(args)) {
		if !e.Bindable {
			continue
		}
		impl, ok := o.impls[e.Func.Signature()]
		if !ok {
			continue
		}
		full := append([]any(nil), args...)
		for _, expr := range e.Defaults {
			v, err := Literal(expr)
			if err != nil {
				return nil, errors.Wrapf(err, "default argument of %s", e.Func.Signature())
			}
			full = append(full, v)
		}
		return impl(full...)
	}
	return nil, errors.WithDetailf(
		errors.Newf("%s: no overload accepts %d arguments", o.set.QualName, len(args)),
		"accepted arities: %v", o.set.Arities())
}

// Literal evaluates a C++ literal default: integers, floating point,
// booleans, nullptr, character and string literals.
func Literal(expr string) (any, error) {
	s := strings.TrimSpace(expr)
	switch s {
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "nullptr", "NULL":
		return nil, nil
	}
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') {
		v, err := strconv.Unquote(s)
		if err != nil {
			return nil, errors.Wrapf(err, "literal %q", expr)
		}
		return v, nil
	}

	num := strings.TrimRight(s, "uUlLfF")
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		num = strings.TrimRight(s, "uUlL")
	}
	if i, err := strconv.ParseInt(num, 0, 64); err == nil {
		return i, nil
	}
	if f, err := strconv.ParseFloat(num, 64); err == nil {
		return f, nil
	}
	return nil, errors.Newf("default %q is not a literal", expr)
}
