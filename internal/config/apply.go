package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/phobologic/bindgen/internal/diag"
	"github.com/phobologic/bindgen/internal/logger"
	"github.com/phobologic/bindgen/internal/model"
)

// Template is an instantiation requested by an overlay.
type Template struct {
	Name     string // exposed name
	QualName string // the class template
	Params   []string
	Doc      string
	Header   string
}

type applier struct {
	o     *Overlay
	h     *model.Header
	diags *diag.Set
	named map[any]bool
}

// Apply merges an overlay into a parsed header. Every key that names no
// declaration is recorded as a ConfigError; the rest of the overlay still
// applies. It returns the template instantiations the overlay requests.
func Apply(o *Overlay, h *model.Header, diags *diag.Set) []Template {
	if o == nil {
		return nil
	}
	a := &applier{o: o, h: h, diags: diags, named: make(map[any]bool)}

	for _, key := range sortedKeys(o.Classes) {
		a.class(key, o.Classes[key])
	}
	for _, key := range sortedKeys(o.Functions) {
		a.freeFunction(key, o.Functions[key])
	}
	for _, key := range sortedKeys(o.Enums) {
		a.freeEnum(key, o.Enums[key])
	}

	if o.Defaults.Ignore {
		a.ignoreUnnamed()
	}
	if len(o.StripPrefixes) > 0 {
		a.stripPrefixes()
	}

	var out []Template
	for _, key := range sortedKeys(o.Templates) {
		td := o.Templates[key]
		if td.Qualname == "" {
			a.fail("templates."+key, "qualname is required")
			continue
		}
		t := Template{Name: key, QualName: td.Qualname, Params: td.Params, Header: h.Name}
		t.Doc = mergeDoc("", td.Doc, td.DocAppend)
		out = append(out, t)
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (a *applier) fail(key, reason string) {
	logger.Named("config").Debugw("overlay key rejected",
		logger.FieldFile, a.o.file, "key", key, "reason", reason)
	a.diags.Add(a.h.Name+": "+key, model.Location{File: a.o.file}, &diag.ConfigError{
		File:   a.o.file,
		Key:    key,
		Reason: reason,
	})
}

// missing reports an unmatched key unless it only ignores something and the
// overlay asked not to report those.
func (a *applier) missing(key string, ignoreOnly bool, what string) {
	if ignoreOnly && a.o.Defaults.ReportIgnoredMissing != nil && !*a.o.Defaults.ReportIgnoredMissing {
		return
	}
	a.fail(key, "no "+what+" with this name in "+a.h.Name)
}

// matchName reports whether a declaration is named by key: either its full
// qualified name or a trailing part of it.
func matchName(d *model.Decl, key string) bool {
	q := d.QualName()
	return q == key || strings.HasSuffix(q, "::"+key)
}

func mergeDoc(doc string, replace *string, appendix string) string {
	if replace != nil {
		doc = *replace
	}
	if appendix != "" {
		if doc != "" {
			doc += "\n"
		}
		doc += appendix
	}
	return doc
}

func (a *applier) class(key string, data ClassData) {
	var found []*model.Class
	for _, c := range model.HeaderClasses(a.h) {
		if matchName(&c.Decl, key) {
			found = append(found, c)
		}
	}
	path := "classes." + key
	switch len(found) {
	case 0:
		a.missing(path, data.Ignore, "class")
		return
	case 1:
	default:
		a.fail(path, fmt.Sprintf("ambiguous: matches %d classes", len(found)))
		return
	}

	c := found[0]
	a.named[c] = true
	c.Ignored = c.Ignored || data.Ignore
	if data.Rename != "" {
		c.Rename = data.Rename
	}
	c.Doc = mergeDoc(c.Doc, data.Doc, data.DocAppend)
	c.NoTrampoline = data.ForceNoTrampoline
	c.NoDefaultCtor = data.ForceNoDefaultConstructor
	c.TrampolineBase = data.TrampolineBase
	c.ForceDepends = append(c.ForceDepends, data.ForceDepends...)

	for _, ib := range data.IgnoredBases {
		idx := baseIndex(c, ib)
		if idx < 0 {
			a.fail(path+".ignored_bases."+ib, "not a direct base of "+c.QualName())
			continue
		}
		c.Bases[idx].Ignored = true
		c.IgnoredBases = append(c.IgnoredBases, ib)
	}
	for _, written := range sortedKeys(data.BaseQualnames) {
		if baseIndex(c, written) < 0 {
			a.fail(path+".base_qualnames."+written, "not a direct base of "+c.QualName())
			continue
		}
		if c.BaseQualnames == nil {
			c.BaseQualnames = make(map[string]string)
		}
		c.BaseQualnames[written] = data.BaseQualnames[written]
	}

	for _, name := range sortedKeys(data.Attributes) {
		a.attribute(c, path+".attributes."+name, name, data.Attributes[name])
	}
	for _, name := range sortedKeys(data.Methods) {
		fns := c.MethodsNamed(name)
		if len(fns) == 0 {
			a.missing(path+".methods."+name, data.Methods[name].Ignore, "method")
			continue
		}
		a.functions(path+".methods."+name, fns, data.Methods[name])
	}
	for _, name := range sortedKeys(data.Enums) {
		e := c.FindEnum(name)
		if e == nil {
			a.missing(path+".enums."+name, data.Enums[name].Ignore, "enum")
			continue
		}
		a.enum(path+".enums."+name, e, data.Enums[name])
	}
}

func baseIndex(c *model.Class, name string) int {
	for i, b := range c.Bases {
		if b.Name == name || b.Resolved == name || model.StripTemplateArgs(b.Name) == name {
			return i
		}
	}
	return -1
}

func (a *applier) attribute(c *model.Class, path, name string, data PropData) {
	f := c.FindField(name)
	if f == nil {
		a.missing(path, data.Ignore, "attribute")
		return
	}
	a.named[f] = true
	f.Ignored = f.Ignored || data.Ignore
	if data.Rename != "" {
		f.Rename = data.Rename
	}
	f.Doc = mergeDoc(f.Doc, data.Doc, data.DocAppend)
	switch data.Access {
	case "", "auto":
	case "readonly":
		f.Readonly = true
	case "readwrite":
		if f.Type.Reference > 0 {
			a.fail(path+".access", "reference members cannot be writable")
			return
		}
		f.Readonly = false
	default:
		a.fail(path+".access", fmt.Sprintf("unknown access %q", data.Access))
	}
}

func (a *applier) freeFunction(key string, data FunctionData) {
	var fns []*model.Function
	quals := make(map[string]struct{})
	for _, f := range model.HeaderFunctions(a.h) {
		if matchName(&f.Decl, key) {
			fns = append(fns, f)
			quals[f.QualName()] = struct{}{}
		}
	}
	path := "functions." + key
	if len(fns) == 0 {
		a.missing(path, data.Ignore, "function")
		return
	}
	if len(quals) > 1 {
		a.fail(path, fmt.Sprintf("ambiguous: matches functions in %d scopes", len(quals)))
		return
	}
	a.functions(path, fns, data)
}

func (a *applier) freeEnum(key string, data EnumData) {
	var found []*model.Enum
	for _, e := range model.HeaderEnums(a.h) {
		if matchName(&e.Decl, key) {
			found = append(found, e)
		}
	}
	path := "enums." + key
	switch len(found) {
	case 0:
		a.missing(path, data.Ignore, "enum")
	case 1:
		a.enum(path, found[0], data)
	default:
		a.fail(path, fmt.Sprintf("ambiguous: matches %d enums", len(found)))
	}
}

// functions applies name-level data to every overload, then per-overload
// entries to the one overload each key selects.
func (a *applier) functions(path string, fns []*model.Function, data FunctionData) {
	for _, f := range fns {
		a.named[f] = true
		a.overload(path, f, data.OverloadData)
	}
	for _, sig := range sortedKeys(data.Overloads) {
		var match []*model.Function
		for _, f := range fns {
			if SignatureKey(f) == normalizeSignature(sig) {
				match = append(match, f)
			}
		}
		opath := path + ".overloads." + sig
		switch len(match) {
		case 0:
			a.missing(opath, data.Overloads[sig].Ignore, "overload")
		case 1:
			a.overload(opath, match[0], data.Overloads[sig])
		default:
			// const and non-const overloads share a parameter list
			for _, f := range match {
				a.overload(opath, f, data.Overloads[sig])
			}
		}
	}
}

// SignatureKey is the overlay key for an overload: its parameter type
// spellings joined by commas, with whitespace removed.
func SignatureKey(f *model.Function) string {
	parts := make([]string, len(f.Params))
	for i := range f.Params {
		parts[i] = f.Params[i].Type.Spelling
	}
	return normalizeSignature(strings.Join(parts, ","))
}

func normalizeSignature(s string) string {
	return strings.Join(strings.Fields(s), "")
}

func (a *applier) overload(path string, f *model.Function, data OverloadData) {
	f.Ignored = f.Ignored || data.Ignore
	f.IgnorePure = f.IgnorePure || data.IgnorePure
	if data.Rename != "" {
		f.Rename = data.Rename
	}
	f.Doc = mergeDoc(f.Doc, data.Doc, data.DocAppend)
	if data.NoReleaseGIL != nil {
		f.NoReleaseGIL = *data.NoReleaseGIL
	}
	for _, ka := range data.KeepAlive {
		if len(ka) != 2 {
			a.fail(path+".keepalive", "each entry must be a [nurse, patient] pair")
			continue
		}
		f.KeepAlive = append(f.KeepAlive, [2]int{ka[0], ka[1]})
	}
	for i, bd := range data.Buffers {
		a.buffer(fmt.Sprintf("%s.buffers[%d]", path, i), f, bd)
	}
	switch data.ReturnValuePolicy {
	case "", "automatic":
	case "take_ownership", "copy", "move", "reference", "reference_internal", "automatic_reference":
		f.ReturnPolicy = data.ReturnValuePolicy
	default:
		a.fail(path+".return_value_policy", fmt.Sprintf("unknown return value policy %q", data.ReturnValuePolicy))
	}
	if data.DisableNone != nil {
		for i := range f.Params {
			f.Params[i].DisableNone = *data.DisableNone
		}
	}

	for _, name := range sortedKeys(data.ParamOverride) {
		idx := -1
		for i := range f.Params {
			if f.Params[i].Name == name {
				idx = i
				break
			}
		}
		if idx < 0 {
			a.fail(path+".param_override."+name, "no parameter with this name in "+f.Signature())
			continue
		}
		a.param(path+".param_override."+name, &f.Params[idx], data.ParamOverride[name])
	}
}

func (a *applier) buffer(path string, f *model.Function, data BufferData) {
	dir := model.Direction(data.Type)
	if dir != model.In && dir != model.Out && dir != model.InOut {
		a.fail(path+".type", fmt.Sprintf("unknown buffer type %q", data.Type))
		return
	}
	if data.Src == data.Len {
		a.fail(path, fmt.Sprintf("src and len are both %q", data.Src))
		return
	}
	if f.Constructor {
		a.fail(path, "buffers are not supported on constructors")
		return
	}
	src, n := paramNamed(f, data.Src), paramNamed(f, data.Len)
	switch {
	case src == nil:
		a.fail(path+".src", "no parameter named "+strconv.Quote(data.Src)+" in "+f.Signature())
	case src.Type.Pointer != 1 || src.Type.Reference != 0:
		a.fail(path+".src", "parameter "+strconv.Quote(data.Src)+" is not a pointer")
	case n == nil:
		a.fail(path+".len", "no parameter named "+strconv.Quote(data.Len)+" in "+f.Signature())
	case !n.Type.IsFundamental() || n.Type.Reference != 0 || n.Type.Pointer > 1:
		a.fail(path+".len", "parameter "+strconv.Quote(data.Len)+" is not an integer or a pointer to one")
	default:
		f.Buffers = append(f.Buffers, model.Buffer{Src: data.Src, Len: data.Len, Direction: dir, MinSize: data.MinSize})
	}
}

func paramNamed(f *model.Function, name string) *model.Param {
	for i := range f.Params {
		if f.Params[i].Name == name {
			return &f.Params[i]
		}
	}
	return nil
}

func (a *applier) param(path string, p *model.Param, data ParamData) {
	if data.Name != "" {
		p.Rename = data.Name
	}
	if data.Default != nil {
		p.Default = *data.Default
	}
	p.NoDefault = data.NoDefault
	if data.DisableNone != nil {
		p.DisableNone = *data.DisableNone
	}
	if data.ArraySize != nil {
		if !p.Type.Array {
			a.fail(path+".array_size", "parameter is not an array")
		} else {
			p.Type.ArraySize = strconv.Itoa(*data.ArraySize)
		}
	}
	p.Ignored = data.Ignore
	if data.ForceOut {
		p.Direction = model.Out
		p.DirectionSet = true
	}
	switch data.Direction {
	case "":
	case string(model.In), string(model.Out), string(model.InOut):
		p.Direction = model.Direction(data.Direction)
		p.DirectionSet = true
	default:
		a.fail(path+".direction", fmt.Sprintf("unknown direction %q", data.Direction))
	}
}

func (a *applier) enum(path string, e *model.Enum, data EnumData) {
	a.named[e] = true
	e.Ignored = e.Ignored || data.Ignore
	if data.Rename != "" {
		e.Rename = data.Rename
	}
	e.Doc = mergeDoc(e.Doc, data.Doc, data.DocAppend)
	e.Arithmetic = data.Arithmetic
	e.ValuePrefix = data.ValuePrefix

	for _, name := range sortedKeys(data.Values) {
		var v *model.EnumValue
		for _, candidate := range e.Values {
			if candidate.Name == name {
				v = candidate
				break
			}
		}
		vd := data.Values[name]
		if v == nil {
			a.missing(path+".values."+name, vd.Ignore, "enumerator")
			continue
		}
		v.Ignored = v.Ignored || vd.Ignore
		if vd.Rename != "" {
			v.Rename = vd.Rename
		}
		v.Doc = mergeDoc(v.Doc, vd.Doc, vd.DocAppend)
	}
	if e.ValuePrefix != "" {
		for _, v := range e.Values {
			if v.Rename == "" && strings.HasPrefix(v.Name, e.ValuePrefix) && len(v.Name) > len(e.ValuePrefix) {
				v.Rename = strings.TrimPrefix(v.Name, e.ValuePrefix)
			}
		}
	}
}

// ignoreUnnamed hides every class, function and enum the overlay does not
// mention, members of named classes included.
func (a *applier) ignoreUnnamed() {
	for _, c := range model.HeaderClasses(a.h) {
		if !a.named[c] {
			c.Ignored = true
		}
		for _, m := range c.Methods {
			if !a.named[m] {
				m.Ignored = true
			}
		}
		for _, f := range c.Fields {
			if !a.named[f] {
				f.Ignored = true
			}
		}
		for _, e := range c.Enums {
			if !a.named[e] {
				e.Ignored = true
			}
		}
	}
	for _, f := range model.HeaderFunctions(a.h) {
		if !a.named[f] {
			f.Ignored = true
		}
	}
	for _, e := range model.HeaderEnums(a.h) {
		if !a.named[e] {
			e.Ignored = true
		}
	}
}

func (a *applier) stripPrefixes() {
	strip := func(d *model.Decl) {
		if d.Rename != "" {
			return
		}
		for _, p := range a.o.StripPrefixes {
			if strings.HasPrefix(d.Name, p) && len(d.Name) > len(p) {
				d.Rename = strings.TrimPrefix(d.Name, p)
				return
			}
		}
	}
	for _, c := range model.HeaderClasses(a.h) {
		strip(&c.Decl)
		for _, e := range c.Enums {
			strip(&e.Decl)
		}
	}
	for _, f := range model.HeaderFunctions(a.h) {
		strip(&f.Decl)
	}
	for _, e := range model.HeaderEnums(a.h) {
		strip(&e.Decl)
	}
}
