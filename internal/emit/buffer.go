package emit

import (
	"fmt"
	"strings"
)

// buffer accumulates generated C++ with two-space indentation.
type buffer struct {
	b      strings.Builder
	indent int
}

func (r *buffer) writeln(format string, args ...any) {
	s := format
	if len(args) > 0 {
		s = fmt.Sprintf(format, args...)
	}
	if s == "" {
		r.b.WriteByte('\n')
		return
	}
	pad := strings.Repeat(" ", r.indent)
	for _, line := range strings.Split(s, "\n") {
		if line != "" {
			r.b.WriteString(pad)
			r.b.WriteString(line)
		}
		r.b.WriteByte('\n')
	}
}

func (r *buffer) in() {
	r.indent += 2
}

func (r *buffer) out() {
	r.indent -= 2
}

func (r *buffer) String() string {
	return r.b.String()
}
