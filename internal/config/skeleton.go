package config

import (
	"github.com/phobologic/bindgen/internal/model"
)

// Skeleton returns an overlay that names every declaration of h without
// changing anything, as a starting point for editing. Overloaded names get
// one entry per overload.
func Skeleton(h *model.Header) *Overlay {
	o := &Overlay{}

	for _, c := range model.HeaderClasses(h) {
		if c.Name == "" {
			continue
		}
		if len(c.Template) > 0 {
			continue
		}
		if o.Classes == nil {
			o.Classes = make(map[string]ClassData)
		}
		o.Classes[c.QualName()] = classSkeleton(c)
	}

	if fns := functionSkeletons(model.HeaderFunctions(h), true); len(fns) > 0 {
		o.Functions = fns
	}
	for _, en := range model.HeaderEnums(h) {
		if en.Name == "" {
			continue
		}
		if o.Enums == nil {
			o.Enums = make(map[string]EnumData)
		}
		o.Enums[en.QualName()] = enumSkeleton(en)
	}
	return o
}

func classSkeleton(c *model.Class) ClassData {
	var data ClassData
	for _, f := range c.Fields {
		if f.Access == model.Private {
			continue
		}
		if data.Attributes == nil {
			data.Attributes = make(map[string]PropData)
		}
		data.Attributes[f.Name] = PropData{}
	}
	var methods []*model.Function
	for _, f := range c.Methods {
		if f.Access != model.Private && !f.Destructor {
			methods = append(methods, f)
		}
	}
	if fns := functionSkeletons(methods, false); len(fns) > 0 {
		data.Methods = fns
	}
	for _, en := range c.Enums {
		if en.Name == "" {
			continue
		}
		if data.Enums == nil {
			data.Enums = make(map[string]EnumData)
		}
		data.Enums[en.Name] = enumSkeleton(en)
	}
	return data
}

// functionSkeletons groups fns by name, or by qualified name for free
// functions that may share a name across namespaces.
func functionSkeletons(fns []*model.Function, qualified bool) map[string]FunctionData {
	byName := make(map[string][]*model.Function)
	var names []string
	for _, f := range fns {
		if f.Deleted || len(f.Template) > 0 {
			continue
		}
		name := f.Name
		if qualified {
			name = f.QualName()
		}
		if _, ok := byName[name]; !ok {
			names = append(names, name)
		}
		byName[name] = append(byName[name], f)
	}
	if len(names) == 0 {
		return nil
	}

	out := make(map[string]FunctionData, len(names))
	for _, name := range names {
		group := byName[name]
		var data FunctionData
		if len(group) > 1 {
			data.Overloads = make(map[string]OverloadData, len(group))
			for _, f := range group {
				data.Overloads[SignatureKey(f)] = OverloadData{}
			}
		}
		out[name] = data
	}
	return out
}

func enumSkeleton(en *model.Enum) EnumData {
	data := EnumData{Values: make(map[string]EnumValueData, len(en.Values))}
	for _, v := range en.Values {
		data.Values[v.Name] = EnumValueData{}
	}
	return data
}
