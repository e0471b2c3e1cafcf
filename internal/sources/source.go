package sources

import (
	"fmt"
	"sort"
	"sync"
)

// Source provides a sequence of instances. Get is called on every refresh
// cycle and must be safe for repeated use.
type Source interface {
	Get() ([]Instance, error)
}

// Constructor builds a Source from its config mapping. Constructors validate
// their configuration and fail fast at startup.
type Constructor func(config map[string]interface{}) (Source, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Constructor{}
)

// RegisterSource makes a source variant available under a type name.
// Registering the same name twice panics; it is a programming error.
func RegisterSource(name string, ctor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("source type %q registered twice", name))
	}
	registry[name] = ctor
}

// NewSource constructs a source of the given registered type.
func NewSource(sourceType string, config map[string]interface{}) (Source, error) {
	registryMu.RLock()
	ctor, ok := registry[sourceType]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown source type %q (registered: %v)", sourceType, registeredTypes())
	}
	return ctor(config)
}

func registeredTypes() []string {
	types := make([]string, 0, len(registry))
	for name := range registry {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}

// coerceInstances converts a decoded YAML/JSON value into instances. The
// value may be a bare list of mappings or a mapping with an "instances" key.
func coerceInstances(value interface{}) ([]Instance, error) {
	if m, ok := value.(map[string]interface{}); ok {
		inner, ok := m["instances"]
		if !ok {
			return nil, fmt.Errorf("mapping has no instances key")
		}
		value = inner
	}
	list, ok := value.([]interface{})
	if !ok {
		return nil, fmt.Errorf("expected a list of instances, got %T", value)
	}
	instances := make([]Instance, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("instance %d is %T, expected a mapping", i, item)
		}
		instances = append(instances, Instance(m))
	}
	return instances, nil
}
