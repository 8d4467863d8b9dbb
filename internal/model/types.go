package model

import (
	"regexp"
	"strings"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// TypeRef is a reference to a type as it appears in a declaration.
type TypeRef struct {
	Spelling  string // whitespace-collapsed source text
	Name      string // named type without cv, pointer or reference decoration
	Const     bool
	Pointer   int
	Reference int // 1 for &, 2 for &&
	Array     bool
	ArraySize string // empty for an unsized array

	// Resolved is the canonical qualified name of the referenced declaration,
	// filled in by the name resolver. Canonical follows alias chains.
	Resolved  string
	Canonical string
}

var fundamentals = map[string]struct{}{
	"void": {}, "bool": {}, "char": {}, "signed char": {}, "unsigned char": {},
	"wchar_t": {}, "char8_t": {}, "char16_t": {}, "char32_t": {},
	"short": {}, "short int": {}, "unsigned short": {}, "unsigned short int": {},
	"int": {}, "signed": {}, "signed int": {}, "unsigned": {}, "unsigned int": {},
	"long": {}, "long int": {}, "unsigned long": {}, "unsigned long int": {},
	"long long": {}, "long long int": {}, "unsigned long long": {}, "unsigned long long int": {},
	"float": {}, "double": {}, "long double": {},
	"int8_t": {}, "int16_t": {}, "int32_t": {}, "int64_t": {},
	"uint8_t": {}, "uint16_t": {}, "uint32_t": {}, "uint64_t": {},
	"size_t": {}, "ssize_t": {}, "ptrdiff_t": {}, "intptr_t": {}, "uintptr_t": {},
	"std::size_t": {}, "std::int8_t": {}, "std::int16_t": {}, "std::int32_t": {},
	"std::int64_t": {}, "std::uint8_t": {}, "std::uint16_t": {}, "std::uint32_t": {},
	"std::uint64_t": {},
}

// IsFundamentalName reports whether name spells a built-in arithmetic type.
func IsFundamentalName(name string) bool {
	_, ok := fundamentals[name]
	return ok
}

// ParseTypeRef decomposes a type spelling such as "const std::string &".
func ParseTypeRef(spelling string) TypeRef {
	s := strings.TrimSpace(whitespaceRe.ReplaceAllString(spelling, " "))
	t := TypeRef{Spelling: s}
	topConst := false

suffix:
	for {
		s = strings.TrimSpace(s)
		switch {
		case strings.HasSuffix(s, "&&"):
			t.Reference = 2
			s = s[:len(s)-2]
		case strings.HasSuffix(s, "&"):
			t.Reference = 1
			s = s[:len(s)-1]
		case strings.HasSuffix(s, "*"):
			t.Pointer++
			s = s[:len(s)-1]
		case strings.HasSuffix(s, " const"):
			// const before any declarator binds the pointer itself
			if t.Pointer == 0 && t.Reference == 0 {
				topConst = true
			} else {
				t.Const = true
			}
			s = s[:len(s)-len(" const")]
		case strings.HasSuffix(s, " volatile"):
			s = s[:len(s)-len(" volatile")]
		default:
			break suffix
		}
	}
	if topConst && t.Pointer == 0 {
		t.Const = true
	}

	for {
		switch {
		case strings.HasPrefix(s, "const "):
			t.Const = true
			s = strings.TrimSpace(s[len("const "):])
		case strings.HasPrefix(s, "volatile "):
			s = strings.TrimSpace(s[len("volatile "):])
		case strings.HasPrefix(s, "typename "):
			s = strings.TrimSpace(s[len("typename "):])
		case strings.HasPrefix(s, "struct "), strings.HasPrefix(s, "class "), strings.HasPrefix(s, "enum "):
			s = strings.TrimSpace(s[strings.IndexByte(s, ' ')+1:])
		default:
			t.Name = s
			return t
		}
	}
}

// IsFundamental reports whether the named type is a built-in arithmetic type.
func (t TypeRef) IsFundamental() bool {
	return IsFundamentalName(t.Name)
}

// IsVoid reports whether the type is plain void.
func (t TypeRef) IsVoid() bool {
	return t.Name == "void" && t.Pointer == 0 && t.Reference == 0
}

// IsStdFunction reports whether the type names std::function.
func (t TypeRef) IsStdFunction() bool {
	return strings.HasPrefix(t.Name, "std::function<")
}

// BaseName returns the resolved name when known, else the written name.
func (t TypeRef) BaseName() string {
	if t.Resolved != "" {
		return t.Resolved
	}
	return t.Name
}

// String renders the type in C++ syntax using the resolved name.
func (t TypeRef) String() string {
	if t.Name == "" {
		return t.Spelling
	}
	var b strings.Builder
	if t.Const {
		b.WriteString("const ")
	}
	b.WriteString(t.BaseName())
	if t.Pointer > 0 || t.Reference > 0 {
		b.WriteByte(' ')
	}
	b.WriteString(strings.Repeat("*", t.Pointer))
	switch t.Reference {
	case 1:
		b.WriteString("&")
	case 2:
		b.WriteString("&&")
	}
	if t.Array {
		b.WriteString("[" + t.ArraySize + "]")
	}
	return b.String()
}

// Key is the comparison key used for signatures. Aliases compare equal to
// their targets.
func (t TypeRef) Key() string {
	name := t.Canonical
	if name == "" {
		name = t.BaseName()
	}
	k := TypeRef{
		Name:      name,
		Const:     t.Const,
		Pointer:   t.Pointer,
		Reference: t.Reference,
		Array:     t.Array,
		ArraySize: t.ArraySize,
	}
	return k.String()
}

// CollapseWhitespace replaces runs of whitespace with a single space and trims.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
