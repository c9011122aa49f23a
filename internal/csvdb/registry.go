package csvdb

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync"
)

// Registry maps shape names to shapes.
//
// It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	shapes map[string]*Shape
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{shapes: make(map[string]*Shape)}
}

// DefaultRegistry is used by stores that don't specify a registry.
var DefaultRegistry = NewRegistry()

// Register reflects the type returned by factory and adds it under name.
//
// factory must return a pointer to a struct. Panics if the shape is invalid
// or if name is already registered; meant to be called from init().
func (r *Registry) Register(name string, factory func() any) {
	s, err := shapeFromFactory(name, factory)
	if err != nil {
		panic(err)
	}
	r.RegisterShape(s)
}

// RegisterShape adds s. Panics if its name is already registered.
func (r *Registry) RegisterShape(s *Shape) {
	if err := r.Add(s); err != nil {
		panic(err)
	}
}

// Add adds s, returning an error if its name is already registered.
func (r *Registry) Add(s *Shape) error {
	if s == nil {
		return errors.New("shape is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shapes == nil {
		r.shapes = make(map[string]*Shape)
	}
	if _, exists := r.shapes[s.name]; exists {
		return fmt.Errorf("shape already registered: %s", s.name)
	}
	r.shapes[s.name] = s
	return nil
}

// Lookup returns the shape registered under name.
func (r *Registry) Lookup(name string) (*Shape, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.shapes[name]
	return s, ok
}

// Names returns the registered shape names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.shapes))
	for n := range r.shapes {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

func shapeFromFactory(name string, factory func() any) (*Shape, error) {
	if name == "" {
		return nil, errors.New("shape name is required")
	}
	if factory == nil {
		return nil, fmt.Errorf("shape %q: factory is required", name)
	}
	t := reflect.TypeOf(factory())
	if t == nil || t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("shape %q: factory must return a pointer to struct, got %v", name, t)
	}
	s, err := reflectShape(name, t.Elem())
	if err != nil {
		return nil, err
	}
	s.factory = factory
	return s, nil
}

// Register adds a shape to DefaultRegistry. See [Registry.Register].
func Register(name string, factory func() any) {
	DefaultRegistry.Register(name, factory)
}

// RegisterShape adds a declared shape to DefaultRegistry.
func RegisterShape(s *Shape) {
	DefaultRegistry.RegisterShape(s)
}

// Lookup returns a shape from DefaultRegistry.
func Lookup(name string) (*Shape, bool) {
	return DefaultRegistry.Lookup(name)
}
