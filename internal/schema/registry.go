package schema

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNotFound is returned when a schema name is not registered.
var ErrNotFound = errors.New("schema not found")

// ErrDuplicate is returned when a schema name is already registered.
var ErrDuplicate = errors.New("schema already registered")

var (
	registry   = make(map[string]Schema)
	registryMu sync.RWMutex
)

// Register adds a built-in schema. Panics if the schema is invalid or the
// name is taken; use Add for schemas that come from user input.
func Register(s Schema) {
	if err := Add(s); err != nil {
		panic(err.Error())
	}
}

// Add validates s and adds it to the registry.
func Add(s Schema) error {
	if err := s.Validate(); err != nil {
		return err
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[s.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, s.Name)
	}

	s.Fields = append([]TargetField(nil), s.Fields...)
	registry[s.Name] = s
	return nil
}

// Get returns a schema by name.
func Get(name string) (Schema, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	s, ok := registry[name]
	if !ok {
		return Schema{}, false
	}
	s.Fields = append([]TargetField(nil), s.Fields...)
	return s, true
}

// Lookup is Get with an error for unknown names.
func Lookup(name string) (Schema, error) {
	s, ok := Get(name)
	if !ok {
		return Schema{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return s, nil
}

// All returns every registered schema sorted by name.
func All() []Schema {
	registryMu.RLock()
	defer registryMu.RUnlock()

	out := make([]Schema, 0, len(registry))
	for _, s := range registry {
		s.Fields = append([]TargetField(nil), s.Fields...)
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns registered schema names, sorted.
func Names() []string {
	all := All()
	names := make([]string, len(all))
	for i, s := range all {
		names[i] = s.Name
	}
	return names
}

// Count returns the number of registered schemas.
func Count() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}

// Remove deletes a schema from the registry. Unknown names are ignored.
func Remove(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(registry, name)
}
