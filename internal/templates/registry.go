package templates

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sovereign-xds/sovereign/internal/common/config"
)

// Registry holds templates indexed by (envoy version key, xds type). It is
// built once at startup and immutable thereafter.
type Registry struct {
	groups   map[string]map[string]*XdsTemplate
	universe map[string]struct{}
}

// NewRegistry loads every configured template. The configuration must
// contain a "default" version key; the xds type universe is the union of
// types across all version groups.
func NewRegistry(cfg map[string]map[string]string) (*Registry, error) {
	if _, ok := cfg["default"]; !ok {
		return nil, fmt.Errorf("template configuration must contain default templates")
	}

	registry := &Registry{
		groups:   make(map[string]map[string]*XdsTemplate, len(cfg)),
		universe: make(map[string]struct{}),
	}
	for versionKey, group := range cfg {
		templates := make(map[string]*XdsTemplate, len(group))
		for xdsType, addr := range group {
			tmpl, err := loadTemplate(fmt.Sprintf("%s/%s", versionKey, xdsType), addr)
			if err != nil {
				return nil, err
			}
			templates[xdsType] = tmpl
			registry.universe[xdsType] = struct{}{}
		}
		registry.groups[versionKey] = templates
	}
	return registry, nil
}

func loadTemplate(name, addr string) (*XdsTemplate, error) {
	loadable := config.ParseLoadable(addr)
	if loadable.Scheme == "native" {
		return NewNativeTemplate(loadable.Path)
	}
	source, err := loadable.LoadText()
	if err != nil {
		return nil, fmt.Errorf("failed to load template %s: %w", name, err)
	}
	return NewTextTemplate(name, source)
}

// KnownType reports whether the xds type is present in any version group.
func (r *Registry) KnownType(xdsType string) bool {
	_, ok := r.universe[xdsType]
	return ok
}

// Types returns the sorted xds type universe.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.universe))
	for t := range r.universe {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// SelectTemplate resolves an envoy build version to the best-matching
// template group via longest-prefix match over the configured version keys,
// falling back to "default", and returns its template for the xds type.
func (r *Registry) SelectTemplate(envoyVersion, xdsType string) (*XdsTemplate, error) {
	group := r.selectGroup(envoyVersion)
	if tmpl, ok := group[xdsType]; ok {
		return tmpl, nil
	}
	// A version group may carry only the types it overrides.
	if tmpl, ok := r.groups["default"][xdsType]; ok {
		return tmpl, nil
	}
	return nil, fmt.Errorf("no template configured for type %q", xdsType)
}

func (r *Registry) selectGroup(envoyVersion string) map[string]*XdsTemplate {
	best := ""
	for versionKey := range r.groups {
		if versionKey == "default" {
			continue
		}
		if len(versionKey) > len(best) && strings.HasPrefix(envoyVersion, versionKey) {
			best = versionKey
		}
	}
	if best == "" {
		return r.groups["default"]
	}
	return r.groups[best]
}
