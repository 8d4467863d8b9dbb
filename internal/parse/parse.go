// Package parse extracts declarations from C++ headers using tree-sitter.
package parse

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/bindgen/internal/lang"
	"github.com/phobologic/bindgen/internal/model"
)

// Parser wraps a tree-sitter parser. It is not safe for concurrent use;
// each goroutine needs its own.
type Parser struct {
	parser *sitter.Parser
}

// New creates a C++ header parser.
func New() *Parser {
	return &Parser{parser: lang.Languages["cpp"].NewParser()}
}

// ParseHeader parses one header. path is recorded in source locations and
// name becomes the overlay key.
func (p *Parser) ParseHeader(ctx context.Context, source []byte, path, name string) (*model.Header, error) {
	h := &model.Header{
		Name: name,
		Path: path,
		Root: &model.Namespace{Decl: model.Decl{Kind: model.KindNamespace, Access: model.Public}},
	}
	if len(source) == 0 {
		return h, nil
	}

	tree, err := p.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	defer tree.Close()

	w := &walker{src: source, file: path, header: name}
	w.namespaceItems(tree.RootNode(), h.Root)
	return h, nil
}

type walker struct {
	src    []byte
	file   string
	header string
	order  int
}

func (w *walker) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return lang.NodeText(n, w.src)
}

func (w *walker) loc(n *sitter.Node) model.Location {
	return model.Location{File: w.file, Line: int(n.StartPoint().Row) + 1}
}

func (w *walker) next() int {
	w.order++
	return w.order
}

// docTracker accumulates the comment block directly above a declaration.
type docTracker struct {
	lines   []string
	lastRow uint32
	valid   bool
}

func (d *docTracker) comment(n *sitter.Node, text string) {
	if d.valid && n.StartPoint().Row > d.lastRow+1 {
		d.lines = nil
	}
	d.lines = append(d.lines, cleanComment(text))
	d.lastRow = n.EndPoint().Row
	d.valid = true
}

// take returns the pending doc if it ends on the line above n.
func (d *docTracker) take(n *sitter.Node) string {
	defer d.reset()
	if !d.valid || n.StartPoint().Row > d.lastRow+1 {
		return ""
	}
	return strings.TrimSpace(strings.Join(d.lines, "\n"))
}

func (d *docTracker) reset() {
	d.lines = nil
	d.valid = false
}

func cleanComment(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "/*") {
		text = strings.TrimSuffix(strings.TrimPrefix(text, "/*"), "*/")
		text = strings.TrimLeft(text, "*!")
		lines := strings.Split(text, "\n")
		for i, l := range lines {
			l = strings.TrimSpace(l)
			l = strings.TrimPrefix(l, "*")
			lines[i] = strings.TrimSpace(l)
		}
		return strings.TrimSpace(strings.Join(lines, "\n"))
	}
	text = strings.TrimLeft(text, "/")
	text = strings.TrimPrefix(text, "!")
	text = strings.TrimPrefix(text, "<")
	return strings.TrimSpace(text)
}

func isTrailingDoc(text string) bool {
	return strings.HasPrefix(text, "///<") || strings.HasPrefix(text, "//!<")
}

func (w *walker) namespaceItems(node *sitter.Node, ns *model.Namespace) {
	var doc docTracker
	scope := ns.Path()
	if ns.Name == "" {
		scope = nil
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "comment":
			doc.comment(child, w.text(child))
			continue
		case "namespace_definition":
			w.namespace(child, ns)
		case "class_specifier", "struct_specifier":
			if c := w.class(child, scope, nil, doc.take(child), model.Public); c != nil {
				ns.Classes = append(ns.Classes, c)
			}
		case "enum_specifier":
			if e := w.enum(child, scope, doc.take(child), model.Public); e != nil {
				ns.Enums = append(ns.Enums, e)
			}
		case "declaration", "function_definition":
			w.namespaceDeclaration(child, ns, scope, nil, doc.take(child))
		case "template_declaration":
			w.namespaceTemplate(child, ns, scope, doc.take(child))
		case "alias_declaration", "type_definition":
			if a := w.alias(child, scope, doc.take(child), model.Public); a != nil {
				ns.Aliases = append(ns.Aliases, a)
			}
		case "linkage_specification":
			if body := child.ChildByFieldName("body"); body != nil {
				if body.Type() == "declaration_list" {
					w.namespaceItems(body, ns)
				} else {
					w.namespaceDeclaration(body, ns, scope, nil, doc.take(child))
				}
			}
		case "preproc_if", "preproc_ifdef", "preproc_else", "preproc_elif", "preproc_elifdef":
			w.namespaceItems(child, ns)
		}
		doc.reset()
	}
}

func (w *walker) namespace(node *sitter.Node, parent *model.Namespace) {
	nameNode := node.ChildByFieldName("name")
	body := node.ChildByFieldName("body")
	if nameNode == nil || body == nil {
		// anonymous namespaces have internal linkage and cannot be bound
		return
	}
	ns := parent
	for _, seg := range model.Split(w.text(nameNode)) {
		ns = childNamespace(ns, seg, w.loc(node))
	}
	w.namespaceItems(body, ns)
}

func childNamespace(parent *model.Namespace, name string, loc model.Location) *model.Namespace {
	for _, ns := range parent.Namespaces {
		if ns.Name == name {
			return ns
		}
	}
	scope := parent.Path()
	if parent.Name == "" {
		scope = nil
	}
	ns := &model.Namespace{Decl: model.Decl{
		Kind:   model.KindNamespace,
		Name:   name,
		Scope:  scope,
		Loc:    loc,
		Access: model.Public,
	}}
	parent.Namespaces = append(parent.Namespaces, ns)
	return ns
}

func (w *walker) namespaceTemplate(node *sitter.Node, ns *model.Namespace, scope []string, doc string) {
	params, inner := w.templateParts(node)
	if inner == nil {
		return
	}
	switch inner.Type() {
	case "class_specifier", "struct_specifier":
		if c := w.class(inner, scope, params, doc, model.Public); c != nil {
			ns.Classes = append(ns.Classes, c)
		}
	case "declaration", "function_definition":
		w.namespaceDeclaration(inner, ns, scope, params, doc)
	case "alias_declaration":
		if a := w.alias(inner, scope, doc, model.Public); a != nil {
			ns.Aliases = append(ns.Aliases, a)
		}
	}
}

// namespaceDeclaration handles free function declarations/definitions and
// declarations whose type specifier defines a class or enum.
func (w *walker) namespaceDeclaration(node *sitter.Node, ns *model.Namespace, scope []string, tmpl []string, doc string) {
	if typ := node.ChildByFieldName("type"); typ != nil && typ.ChildByFieldName("body") != nil {
		switch typ.Type() {
		case "class_specifier", "struct_specifier":
			if c := w.class(typ, scope, tmpl, doc, model.Public); c != nil {
				ns.Classes = append(ns.Classes, c)
			}
			return
		case "enum_specifier":
			if e := w.enum(typ, scope, doc, model.Public); e != nil {
				ns.Enums = append(ns.Enums, e)
			}
			return
		}
	}
	if f := w.function(node, scope, "", model.Public, doc); f != nil {
		f.Template = tmpl
		ns.Functions = append(ns.Functions, f)
	}
}

func (w *walker) templateParts(node *sitter.Node) ([]string, *sitter.Node) {
	var params []string
	if pl := node.ChildByFieldName("parameters"); pl != nil {
		for i := 0; i < int(pl.NamedChildCount()); i++ {
			p := pl.NamedChild(i)
			switch p.Type() {
			case "type_parameter_declaration", "variadic_type_parameter_declaration":
				if id := lang.ChildOfType(p, "type_identifier"); id != nil {
					params = append(params, w.text(id))
				}
			case "optional_type_parameter_declaration":
				params = append(params, w.text(p.ChildByFieldName("name")))
			case "parameter_declaration", "optional_parameter_declaration":
				name, _, _, _, _ := w.declarator(p.ChildByFieldName("declarator"))
				params = append(params, name)
			}
		}
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "template_parameter_list", "comment":
			continue
		}
		return params, child
	}
	return params, nil
}

func (w *walker) alias(node *sitter.Node, scope []string, doc string, access model.Access) *model.Alias {
	var name, target string
	switch node.Type() {
	case "alias_declaration":
		name = w.text(node.ChildByFieldName("name"))
		target = w.text(node.ChildByFieldName("type"))
	case "type_definition":
		declNode := node.ChildByFieldName("declarator")
		var suffix string
		name, suffix, _, _, _ = w.declarator(declNode)
		target = w.typeText(node) + suffix
	}
	if name == "" || target == "" {
		return nil
	}
	return &model.Alias{
		Decl: model.Decl{
			Kind:   model.KindAlias,
			Name:   name,
			Scope:  copyScope(scope),
			Loc:    w.loc(node),
			Doc:    doc,
			Access: access,
		},
		Target: model.ParseTypeRef(target),
	}
}

func copyScope(scope []string) []string {
	if len(scope) == 0 {
		return nil
	}
	return append([]string(nil), scope...)
}

// typeText returns the declaration's type with leading cv-qualifiers.
func (w *walker) typeText(node *sitter.Node) string {
	typ := node.ChildByFieldName("type")
	if typ == nil {
		return ""
	}
	var quals []string
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == "type_qualifier" {
			quals = append(quals, w.text(child))
		}
	}
	text := model.CollapseWhitespace(w.text(typ))
	if len(quals) > 0 {
		text = strings.Join(quals, " ") + " " + text
	}
	return text
}

// declarator unwraps pointer, reference and array declarators. It returns the
// declared name, the decoration suffix ("*", "&", "*&" ...), array info, and
// the function declarator if one was reached.
func (w *walker) declarator(n *sitter.Node) (name, suffix string, array bool, size string, fn *sitter.Node) {
	for n != nil {
		switch n.Type() {
		case "identifier", "field_identifier", "type_identifier", "destructor_name",
			"operator_name", "qualified_identifier", "template_function", "namespace_identifier":
			return w.text(n), suffix, array, size, fn
		case "pointer_declarator", "abstract_pointer_declarator":
			suffix += "*"
			n = n.ChildByFieldName("declarator")
		case "reference_declarator", "abstract_reference_declarator":
			var inner *sitter.Node
			for i := 0; i < int(n.ChildCount()); i++ {
				child := n.Child(i)
				switch t := child.Type(); t {
				case "&", "&&":
					suffix += t
				default:
					if child.IsNamed() {
						inner = child
					}
				}
			}
			n = inner
		case "array_declarator", "abstract_array_declarator":
			array = true
			if s := n.ChildByFieldName("size"); s != nil {
				size = w.text(s)
			}
			n = n.ChildByFieldName("declarator")
		case "function_declarator", "abstract_function_declarator":
			fn = n
			n = n.ChildByFieldName("declarator")
		case "init_declarator":
			n = n.ChildByFieldName("declarator")
		case "parenthesized_declarator":
			n = n.NamedChild(0)
		default:
			return "", suffix, array, size, fn
		}
	}
	return "", suffix, array, size, fn
}

// findFunctionDeclarator descends through decorators to the function
// declarator and returns it with the return-type suffix.
func (w *walker) findFunctionDeclarator(n *sitter.Node) (*sitter.Node, string) {
	suffix := ""
	for n != nil {
		switch n.Type() {
		case "function_declarator":
			return n, suffix
		case "pointer_declarator":
			suffix += "*"
			n = n.ChildByFieldName("declarator")
		case "reference_declarator":
			var inner *sitter.Node
			for i := 0; i < int(n.ChildCount()); i++ {
				child := n.Child(i)
				switch t := child.Type(); t {
				case "&", "&&":
					suffix += t
				default:
					if child.IsNamed() {
						inner = child
					}
				}
			}
			n = inner
		default:
			return nil, ""
		}
	}
	return nil, ""
}
