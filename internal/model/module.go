package model

// Entity is whatever a qualified name refers to. Several fields may be set
// when a namespace is reopened or a function is overloaded.
type Entity struct {
	Namespace bool
	Class     *Class
	Enum      *Enum
	Value     *EnumValue
	Alias     *Alias
	Field     *Field
	Functions []*Function
}

// Empty reports whether nothing was found.
func (e Entity) Empty() bool {
	return !e.Namespace && e.Class == nil && e.Enum == nil && e.Value == nil &&
		e.Alias == nil && e.Field == nil && len(e.Functions) == 0
}

// IsType reports whether the entity can appear in a type position.
func (e Entity) IsType() bool {
	return e.Class != nil || e.Enum != nil || e.Alias != nil
}

// Module owns every declaration of one generation run.
type Module struct {
	Name    string
	Headers []*Header

	index map[string]*Entity
}

// NewModule creates an empty module.
func NewModule(name string) *Module {
	return &Module{Name: name}
}

// AddHeader appends a parsed header and invalidates the index.
func (m *Module) AddHeader(h *Header) {
	m.Headers = append(m.Headers, h)
	m.index = nil
}

// Reindex rebuilds the qualified-name index. Call after the declaration
// tree changes.
func (m *Module) Reindex() {
	m.index = make(map[string]*Entity)
	for _, h := range m.Headers {
		m.indexNamespace(h.Root)
	}
}

// Lookup finds the entity with the given qualified name.
func (m *Module) Lookup(qualname string) (Entity, bool) {
	if m.index == nil {
		m.Reindex()
	}
	e, ok := m.index[Join(Split(qualname))]
	if !ok {
		return Entity{}, false
	}
	return *e, true
}

// Class returns the class with the given qualified name.
func (m *Module) Class(qualname string) *Class {
	e, ok := m.Lookup(qualname)
	if !ok {
		return nil
	}
	return e.Class
}

func (m *Module) entry(qualname string) *Entity {
	e := m.index[qualname]
	if e == nil {
		e = &Entity{}
		m.index[qualname] = e
	}
	return e
}

func (m *Module) indexNamespace(ns *Namespace) {
	if ns.Name != "" {
		m.entry(ns.QualName()).Namespace = true
	}
	for _, child := range ns.Namespaces {
		m.indexNamespace(child)
	}
	for _, c := range ns.Classes {
		m.indexClass(c)
	}
	for _, f := range ns.Functions {
		e := m.entry(f.QualName())
		e.Functions = append(e.Functions, f)
	}
	for _, en := range ns.Enums {
		m.indexEnum(en)
	}
	for _, a := range ns.Aliases {
		m.entry(a.QualName()).Alias = a
	}
}

func (m *Module) indexClass(c *Class) {
	e := m.entry(c.QualName())
	// a forward declaration must not shadow the definition
	if e.Class == nil || len(e.Class.Methods)+len(e.Class.Fields)+len(e.Class.Bases) == 0 {
		e.Class = c
	}
	for _, f := range c.Methods {
		fe := m.entry(f.QualName())
		fe.Functions = append(fe.Functions, f)
	}
	for _, f := range c.Fields {
		m.entry(f.QualName()).Field = f
	}
	for _, en := range c.Enums {
		m.indexEnum(en)
	}
	for _, a := range c.Aliases {
		m.entry(a.QualName()).Alias = a
	}
	for _, n := range c.Classes {
		m.indexClass(n)
	}
}

func (m *Module) indexEnum(en *Enum) {
	m.entry(en.QualName()).Enum = en
	for _, v := range en.Values {
		m.entry(v.QualName()).Value = v
		// unscoped enumerators are also visible in the enclosing scope
		if !en.Scoped {
			path := append(append([]string{}, en.Scope...), v.Name)
			m.entry(Join(path)).Value = v
		}
	}
}

// Classes returns every class in header order, parents before nested classes.
func (m *Module) Classes() []*Class {
	var out []*Class
	var walkClass func(c *Class)
	walkClass = func(c *Class) {
		out = append(out, c)
		for _, n := range c.Classes {
			walkClass(n)
		}
	}
	var walkNS func(ns *Namespace)
	walkNS = func(ns *Namespace) {
		for _, c := range ns.Classes {
			walkClass(c)
		}
		for _, child := range ns.Namespaces {
			walkNS(child)
		}
	}
	for _, h := range m.Headers {
		walkNS(h.Root)
	}
	return out
}

// HeaderClasses returns the classes declared in one header, in walk order.
func HeaderClasses(h *Header) []*Class {
	var out []*Class
	var walkClass func(c *Class)
	walkClass = func(c *Class) {
		out = append(out, c)
		for _, n := range c.Classes {
			walkClass(n)
		}
	}
	var walkNS func(ns *Namespace)
	walkNS = func(ns *Namespace) {
		for _, c := range ns.Classes {
			walkClass(c)
		}
		for _, child := range ns.Namespaces {
			walkNS(child)
		}
	}
	walkNS(h.Root)
	return out
}

// HeaderFunctions returns namespace-scope functions declared in one header.
func HeaderFunctions(h *Header) []*Function {
	var out []*Function
	var walk func(ns *Namespace)
	walk = func(ns *Namespace) {
		out = append(out, ns.Functions...)
		for _, child := range ns.Namespaces {
			walk(child)
		}
	}
	walk(h.Root)
	return out
}

// HeaderEnums returns namespace-scope enums declared in one header.
func HeaderEnums(h *Header) []*Enum {
	var out []*Enum
	var walk func(ns *Namespace)
	walk = func(ns *Namespace) {
		out = append(out, ns.Enums...)
		for _, child := range ns.Namespaces {
			walk(child)
		}
	}
	walk(h.Root)
	return out
}
