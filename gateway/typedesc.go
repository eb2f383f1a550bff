package gateway

import (
	"fmt"
	"github.com/pkg/errors"
	"reflect"
)

type descKind int

const (
	descNamed descKind = iota + 1
	descConcrete
	descComposite
)

// TypeDescriptor is a closed variant over the three shapes a resolved type
// may take: a registered type name, a concrete reflect.Type, or a composite
// descriptor for parameterized containers. The zero value is invalid.
type TypeDescriptor struct {
	kind  descKind
	name  string
	rtype reflect.Type
	comp  *composite
}

type composite struct {
	kind string // slice, map or ptr
	key  TypeDescriptor
	elem TypeDescriptor
}

// NamedType describes a type by its registry name, "[]name" included.
func NamedType(name string) TypeDescriptor {
	return TypeDescriptor{kind: descNamed, name: name}
}

// GoType describes a concrete reflect.Type.
func GoType(t reflect.Type) TypeDescriptor {
	return TypeDescriptor{kind: descConcrete, rtype: t}
}

// TypeOf describes the concrete type of a value.
func TypeOf(v interface{}) TypeDescriptor {
	return GoType(reflect.TypeOf(v))
}

// SliceOf describes a slice of the given element descriptor.
func SliceOf(elem TypeDescriptor) TypeDescriptor {
	return TypeDescriptor{kind: descComposite, comp: &composite{kind: "slice", elem: elem}}
}

// MapOf describes a map with the given key and element descriptors.
func MapOf(key, elem TypeDescriptor) TypeDescriptor {
	return TypeDescriptor{kind: descComposite, comp: &composite{kind: "map", key: key, elem: elem}}
}

// CompositeType builds a descriptor from a spec map of the shape
// {"kind": "slice"|"map"|"ptr", "elem": ..., "key": ...} where elem and key
// are type names or nested spec maps. Expression results use this form to
// describe parameterized types.
func CompositeType(spec map[string]interface{}) (TypeDescriptor, error) {
	kind, _ := spec["kind"].(string)
	switch kind {
	case "slice", "ptr":
		elem, err := specValue(spec["elem"])
		if err != nil {
			return TypeDescriptor{}, err
		}
		return TypeDescriptor{kind: descComposite, comp: &composite{kind: kind, elem: elem}}, nil
	case "map":
		key, err := specValue(spec["key"])
		if err != nil {
			return TypeDescriptor{}, err
		}
		elem, err := specValue(spec["elem"])
		if err != nil {
			return TypeDescriptor{}, err
		}
		return TypeDescriptor{kind: descComposite, comp: &composite{kind: kind, key: key, elem: elem}}, nil
	}
	return TypeDescriptor{}, errors.Errorf("composite kind must be slice, map or ptr, got %q", kind)
}

func specValue(v interface{}) (TypeDescriptor, error) {
	switch tv := v.(type) {
	case string:
		return NamedType(tv), nil
	case map[string]interface{}:
		return CompositeType(tv)
	case TypeDescriptor:
		return tv, nil
	case reflect.Type:
		return GoType(tv), nil
	case nil:
		return TypeDescriptor{}, errors.New("composite descriptor misses a type")
	}
	return TypeDescriptor{}, errors.Errorf("invalid type spec %v", v)
}

func (self TypeDescriptor) IsZero() bool {
	return self.kind == 0
}

func (self TypeDescriptor) String() string {
	switch self.kind {
	case descNamed:
		return self.name
	case descConcrete:
		return self.rtype.String()
	case descComposite:
		switch self.comp.kind {
		case "slice":
			return "[]" + self.comp.elem.String()
		case "map":
			return fmt.Sprintf("map[%s]%s", self.comp.key, self.comp.elem)
		case "ptr":
			return "*" + self.comp.elem.String()
		}
	}
	return "<invalid type>"
}

// Resolve materializes the descriptor against a registry. Named lookups
// that miss fail with TypeLookupError.
func (self TypeDescriptor) Resolve(reg *Registry) (reflect.Type, error) {
	switch self.kind {
	case descNamed:
		return reg.Lookup(self.name)
	case descConcrete:
		return self.rtype, nil
	case descComposite:
		elem, err := self.comp.elem.Resolve(reg)
		if err != nil {
			return nil, err
		}
		switch self.comp.kind {
		case "slice":
			return reflect.SliceOf(elem), nil
		case "map":
			key, err := self.comp.key.Resolve(reg)
			if err != nil {
				return nil, err
			}
			return reflect.MapOf(key, elem), nil
		case "ptr":
			return reflect.PtrTo(elem), nil
		}
	}
	return nil, errors.New("invalid type descriptor")
}
