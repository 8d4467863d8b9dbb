package parse

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/bindgen/internal/lang"
	"github.com/phobologic/bindgen/internal/model"
)

func (w *walker) class(node *sitter.Node, scope []string, tmpl []string, doc string, access model.Access) *model.Class {
	nameNode := node.ChildByFieldName("name")
	body := node.ChildByFieldName("body")
	if nameNode == nil || body == nil {
		return nil
	}
	if nameNode.Type() == "qualified_identifier" {
		// out-of-line definition of a nested class
		return nil
	}

	c := &model.Class{
		Decl: model.Decl{
			Kind:   model.KindClass,
			Name:   w.text(nameNode),
			Scope:  copyScope(scope),
			Loc:    w.loc(node),
			Doc:    doc,
			Access: access,
		},
		Struct:   node.Type() == "struct_specifier",
		Template: tmpl,
		Header:   w.header,
	}
	if nameNode.Type() == "template_type" {
		c.Name = w.text(nameNode.ChildByFieldName("name"))
		c.TemplateArgs = model.TemplateArgs(model.CollapseWhitespace(w.text(nameNode)))
	}
	if vs := lang.ChildOfType(node, "virtual_specifier"); vs != nil && strings.Contains(w.text(vs), "final") {
		c.Final = true
	}

	defaultAccess := model.Private
	if c.Struct {
		defaultAccess = model.Public
	}
	if bc := lang.ChildOfType(node, "base_class_clause"); bc != nil {
		c.Bases = w.bases(bc, defaultAccess)
	}

	current := defaultAccess
	w.memberItems(body, c, &current)
	return c
}

func (w *walker) bases(node *sitter.Node, defaultAccess model.Access) []model.Base {
	var out []model.Base
	access := defaultAccess
	virtual := false
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "access_specifier", "public", "protected", "private":
			access = parseAccess(w.text(child), defaultAccess)
		case "virtual":
			virtual = true
		case ",":
			access = defaultAccess
			virtual = false
		case "type_identifier", "template_type", "qualified_identifier", "qualified_type_identifier":
			out = append(out, model.Base{
				Name:    model.CollapseWhitespace(w.text(child)),
				Access:  access,
				Virtual: virtual,
			})
		default:
			if w.text(child) == "virtual" {
				virtual = true
			}
		}
	}
	return out
}

func parseAccess(text string, fallback model.Access) model.Access {
	switch {
	case strings.Contains(text, "public"):
		return model.Public
	case strings.Contains(text, "protected"):
		return model.Protected
	case strings.Contains(text, "private"):
		return model.Private
	}
	return fallback
}

func (w *walker) memberItems(node *sitter.Node, c *model.Class, access *model.Access) {
	var doc docTracker
	scope := c.Path()

	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "comment":
			text := w.text(child)
			if isTrailingDoc(text) {
				w.attachTrailing(c, child, text)
				continue
			}
			doc.comment(child, text)
			continue
		case "access_specifier":
			*access = parseAccess(w.text(child), *access)
		case "field_declaration":
			w.fieldDeclaration(child, c, scope, *access, doc.take(child))
		case "function_definition", "declaration":
			if f := w.function(child, scope, c.Name, *access, doc.take(child)); f != nil {
				c.Methods = append(c.Methods, f)
			}
		case "template_declaration":
			params, inner := w.templateParts(child)
			if inner == nil {
				break
			}
			d := doc.take(child)
			switch inner.Type() {
			case "class_specifier", "struct_specifier":
				if n := w.class(inner, scope, params, d, *access); n != nil {
					c.Classes = append(c.Classes, n)
				}
			case "function_definition", "declaration", "field_declaration":
				if f := w.function(inner, scope, c.Name, *access, d); f != nil {
					f.Template = params
					c.Methods = append(c.Methods, f)
				}
			case "alias_declaration":
				if a := w.alias(inner, scope, d, *access); a != nil {
					c.Aliases = append(c.Aliases, a)
				}
			}
		case "alias_declaration", "type_definition":
			if a := w.alias(child, scope, doc.take(child), *access); a != nil {
				c.Aliases = append(c.Aliases, a)
			}
		case "using_declaration":
			text := model.CollapseWhitespace(w.text(child))
			if strings.HasPrefix(text, "using namespace") {
				break
			}
			target := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(text, "using"), ";"))
			target = strings.TrimSpace(strings.TrimPrefix(target, "typename "))
			c.Usings = append(c.Usings, model.Using{Target: target, Access: *access, Loc: w.loc(child)})
		case "preproc_if", "preproc_ifdef", "preproc_else", "preproc_elif", "preproc_elifdef":
			w.memberItems(child, c, access)
		}
		doc.reset()
	}
}

// attachTrailing assigns a "///<" comment to the member declared on the same line.
func (w *walker) attachTrailing(c *model.Class, comment *sitter.Node, text string) {
	row := int(comment.StartPoint().Row) + 1
	for _, f := range c.Fields {
		if f.Loc.Line == row && f.Doc == "" {
			f.Doc = cleanComment(text)
			return
		}
	}
	for _, m := range c.Methods {
		if m.Loc.Line == row && m.Doc == "" {
			m.Doc = cleanComment(text)
			return
		}
	}
}

// fieldDeclaration handles a member declaration, which tree-sitter uses for
// data members, method declarations and nested type definitions alike.
func (w *walker) fieldDeclaration(node *sitter.Node, c *model.Class, scope []string, access model.Access, doc string) {
	if typ := node.ChildByFieldName("type"); typ != nil && typ.ChildByFieldName("body") != nil {
		switch typ.Type() {
		case "class_specifier", "struct_specifier":
			if n := w.class(typ, scope, nil, doc, access); n != nil {
				c.Classes = append(c.Classes, n)
			}
			return
		case "enum_specifier":
			if e := w.enum(typ, scope, doc, access); e != nil {
				c.Enums = append(c.Enums, e)
			}
			return
		}
	}

	if fd, _ := w.findFunctionDeclarator(node.ChildByFieldName("declarator")); fd != nil {
		if f := w.function(node, scope, c.Name, access, doc); f != nil {
			c.Methods = append(c.Methods, f)
		}
		return
	}

	typeText := w.typeText(node)
	static := w.hasStorage(node, "static")
	var defaultValue string
	var declarators []*sitter.Node
	sawEquals := false
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "=":
			sawEquals = true
		case "field_identifier", "pointer_declarator", "reference_declarator", "array_declarator":
			if !sawEquals {
				declarators = append(declarators, child)
			}
		case ";":
		default:
			if sawEquals && child.IsNamed() && defaultValue == "" {
				defaultValue = model.CollapseWhitespace(w.text(child))
			}
		}
		if child.Type() == "initializer_list" && !sawEquals {
			defaultValue = model.CollapseWhitespace(w.text(child))
		}
	}
	for _, d := range declarators {
		name, suffix, array, size, _ := w.declarator(d)
		if name == "" {
			continue
		}
		t := model.ParseTypeRef(typeText + " " + suffix)
		t.Array = array
		t.ArraySize = size
		c.Fields = append(c.Fields, &model.Field{
			Decl: model.Decl{
				Kind:   model.KindField,
				Name:   name,
				Scope:  copyScope(scope),
				Loc:    w.loc(node),
				Doc:    doc,
				Access: access,
			},
			Type:     t,
			Static:   static,
			Readonly: t.Const && t.Pointer == 0 || t.Reference > 0,
			Default:  defaultValue,
		})
	}
}

func (w *walker) hasStorage(node *sitter.Node, keyword string) bool {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == "storage_class_specifier" && strings.TrimSpace(w.text(child)) == keyword {
			return true
		}
	}
	return false
}

// function builds a Function from a definition or declaration node. It
// returns nil when the node does not declare a function, or declares one
// out of line.
func (w *walker) function(node *sitter.Node, scope []string, className string, access model.Access, doc string) *model.Function {
	fd, retSuffix := w.findFunctionDeclarator(node.ChildByFieldName("declarator"))
	if fd == nil {
		return nil
	}
	nameNode := fd.ChildByFieldName("declarator")
	if nameNode == nil {
		return nil
	}
	switch nameNode.Type() {
	case "qualified_identifier":
		return nil
	}
	name := model.CollapseWhitespace(w.text(nameNode))

	f := &model.Function{
		Decl: model.Decl{
			Kind:   model.KindFunction,
			Name:   name,
			Scope:  copyScope(scope),
			Loc:    w.loc(node),
			Doc:    doc,
			Access: access,
		},
		Virtual: model.NotVirtual,
		Order:   w.next(),
	}

	switch {
	case nameNode.Type() == "destructor_name" || strings.HasPrefix(name, "~"):
		f.Destructor = true
	case nameNode.Type() == "operator_name" || strings.HasPrefix(name, "operator"):
		f.Operator = true
	case className != "" && name == className && node.ChildByFieldName("type") == nil:
		f.Constructor = true
	}

	if !f.Constructor && !f.Destructor {
		if rt := w.typeText(node); rt != "" {
			f.Return = model.ParseTypeRef(rt + " " + retSuffix)
		}
	}

	f.Static = w.hasStorage(node, "static")
	f.Explicit = lang.ChildOfType(node, "explicit_function_specifier") != nil ||
		lang.HasChildToken(node, "explicit", w.src)
	virtualKeyword := lang.HasChildToken(node, "virtual", w.src)

	var quals []*sitter.Node
	for i := 0; i < int(fd.ChildCount()); i++ {
		quals = append(quals, fd.Child(i))
	}
	if vs := lang.ChildOfType(node, "virtual_specifier"); vs != nil {
		quals = append(quals, vs)
	}
	for _, child := range quals {
		switch child.Type() {
		case "type_qualifier":
			if w.text(child) == "const" {
				f.Const = true
			}
		case "ref_qualifier":
			switch strings.TrimSpace(w.text(child)) {
			case "&":
				f.RefQual = model.LValue
			case "&&":
				f.RefQual = model.RValue
			}
		case "virtual_specifier":
			text := w.text(child)
			if strings.Contains(text, "final") {
				f.Virtual = model.FinalOverride
				f.Override = true
			}
			if strings.Contains(text, "override") {
				f.Override = true
			}
		}
	}
	if f.Virtual == model.NotVirtual && (virtualKeyword || f.Override) {
		f.Virtual = model.Virtual
	}
	if w.isPure(node) {
		f.Virtual = model.Pure
	}
	f.Deleted = lang.ChildOfType(node, "delete_method_clause") != nil || w.initializerIs(node, "delete")

	if params := fd.ChildByFieldName("parameters"); params != nil {
		f.Params = w.params(params)
	}
	return f
}

// isPure reports "= 0" after the declarator, across grammar versions.
func (w *walker) isPure(node *sitter.Node) bool {
	if lang.ChildOfType(node, "pure_virtual_clause") != nil {
		return true
	}
	return w.initializerIs(node, "0")
}

// initializerIs reports whether the declaration ends in "= value".
func (w *walker) initializerIs(node *sitter.Node, value string) bool {
	sawEquals := false
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == "=" {
			sawEquals = true
			continue
		}
		if sawEquals && strings.TrimSpace(w.text(child)) == value {
			return true
		}
	}
	return false
}

func (w *walker) params(list *sitter.Node) []model.Param {
	var out []model.Param
	for i := 0; i < int(list.NamedChildCount()); i++ {
		p := list.NamedChild(i)
		switch p.Type() {
		case "parameter_declaration", "optional_parameter_declaration", "variadic_parameter_declaration":
		default:
			continue
		}
		typeText := w.typeText(p)
		name, suffix, array, size, _ := w.declarator(p.ChildByFieldName("declarator"))
		if p.Type() == "variadic_parameter_declaration" {
			suffix += "..."
		}
		if typeText == "void" && name == "" && suffix == "" {
			continue
		}
		t := model.ParseTypeRef(typeText + " " + suffix)
		t.Array = array
		t.ArraySize = size
		param := model.Param{Name: name, Type: t, Direction: model.In}
		if dv := p.ChildByFieldName("default_value"); dv != nil {
			param.Default = model.CollapseWhitespace(w.text(dv))
		}
		out = append(out, param)
	}
	return out
}

func (w *walker) enum(node *sitter.Node, scope []string, doc string, access model.Access) *model.Enum {
	nameNode := node.ChildByFieldName("name")
	body := node.ChildByFieldName("body")
	if nameNode == nil || body == nil {
		return nil
	}
	e := &model.Enum{
		Decl: model.Decl{
			Kind:   model.KindEnum,
			Name:   w.text(nameNode),
			Scope:  copyScope(scope),
			Loc:    w.loc(node),
			Doc:    doc,
			Access: access,
		},
		Scoped: lang.HasChildToken(node, "class", w.src) || lang.HasChildToken(node, "struct", w.src),
	}
	valueScope := e.Path()

	var pending docTracker
	var last *model.EnumValue
	for i := 0; i < int(body.NamedChildCount()); i++ {
		child := body.NamedChild(i)
		switch child.Type() {
		case "comment":
			text := w.text(child)
			if isTrailingDoc(text) && last != nil && last.Loc.Line == int(child.StartPoint().Row)+1 {
				last.Doc = cleanComment(text)
				continue
			}
			pending.comment(child, text)
		case "enumerator":
			v := &model.EnumValue{
				Decl: model.Decl{
					Kind:   model.KindEnumValue,
					Name:   w.text(child.ChildByFieldName("name")),
					Scope:  valueScope,
					Loc:    w.loc(child),
					Doc:    pending.take(child),
					Access: access,
				},
			}
			if val := child.ChildByFieldName("value"); val != nil {
				v.Value = model.CollapseWhitespace(w.text(val))
			}
			e.Values = append(e.Values, v)
			last = v
		}
	}
	return e
}
