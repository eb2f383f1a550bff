package gateway

import (
	"github.com/pkg/errors"
	"reflect"
	"strings"
	"sync"
)

var anyType = reflect.TypeOf((*interface{})(nil)).Elem()

// Registry maps type names to concrete Go types so expressions can name
// response types symbolically. Names prefixed with "[]" resolve to slices
// of the remainder.
type Registry struct {
	lock  sync.RWMutex
	types map[string]reflect.Type
}

// NewRegistry builds a registry seeded with the builtin scalar names.
func NewRegistry() *Registry {
	reg := &Registry{types: make(map[string]reflect.Type)}
	reg.Register("string", "")
	reg.Register("int", int(0))
	reg.Register("integer", int(0))
	reg.Register("int32", int32(0))
	reg.Register("int64", int64(0))
	reg.Register("float32", float32(0))
	reg.Register("float64", float64(0))
	reg.Register("number", float64(0))
	reg.Register("bool", false)
	reg.Register("boolean", false)
	reg.Register("object", map[string]interface{}{})
	reg.types["any"] = anyType
	return reg
}

// Register binds a name to the type of value. A reflect.Type value is
// bound directly.
func (self *Registry) Register(name string, value interface{}) {
	t, ok := value.(reflect.Type)
	if !ok {
		t = reflect.TypeOf(value)
	}
	self.lock.Lock()
	defer self.lock.Unlock()
	self.types[name] = t
}

// Lookup resolves a registered name, failing with TypeLookupError when no
// entry matches.
func (self *Registry) Lookup(name string) (reflect.Type, error) {
	if strings.HasPrefix(name, "[]") {
		elem, err := self.Lookup(name[2:])
		if err != nil {
			return nil, err
		}
		return reflect.SliceOf(elem), nil
	}

	self.lock.RLock()
	t, ok := self.types[name]
	self.lock.RUnlock()
	if !ok {
		return nil, &TypeLookupError{
			Name: name,
			Err:  errors.Errorf("type %q is not registered", name),
		}
	}
	return t, nil
}

var defaultRegistry = NewRegistry()

// DefaultRegistry is the process-wide registry gateways use unless
// configured otherwise.
func DefaultRegistry() *Registry {
	return defaultRegistry
}
