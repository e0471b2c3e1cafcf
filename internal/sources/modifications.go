package sources

import (
	"fmt"
	"sync"
)

// Modification transforms one instance before it enters the aggregate.
// Returning a nil instance drops the record; returning an error drops it and
// logs the failure.
type Modification func(Instance) (Instance, error)

var (
	modificationsMu sync.RWMutex
	modifications   = map[string]Modification{}
)

// RegisterModification makes a named transform available to the
// modifications pipeline.
func RegisterModification(name string, mod Modification) {
	modificationsMu.Lock()
	defer modificationsMu.Unlock()
	if _, exists := modifications[name]; exists {
		panic(fmt.Sprintf("modification %q registered twice", name))
	}
	modifications[name] = mod
}

// ResolveModifications maps configured transform names to their
// implementations, preserving order.
func ResolveModifications(names []string) ([]Modification, error) {
	modificationsMu.RLock()
	defer modificationsMu.RUnlock()
	mods := make([]Modification, 0, len(names))
	for _, name := range names {
		mod, ok := modifications[name]
		if !ok {
			return nil, fmt.Errorf("unknown modification %q", name)
		}
		mods = append(mods, mod)
	}
	return mods, nil
}

func init() {
	// Instances without service_clusters are only served to wildcard nodes.
	// This transform opts a source into serving them to everyone instead.
	RegisterModification("default_wildcard_clusters", func(instance Instance) (Instance, error) {
		if len(instance.ServiceClusters()) == 0 {
			instance["service_clusters"] = []interface{}{"*"}
		}
		return instance, nil
	})
}
