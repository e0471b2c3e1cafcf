package discovery

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/sovereign-xds/sovereign/internal/common/config"
	"github.com/sovereign-xds/sovereign/internal/sources"
	"github.com/sovereign-xds/sovereign/internal/templates"
)

// Provider contributes one named value to the template context. Providers
// see the matched source view and the request.
type Provider interface {
	Build(req *DiscoveryRequest, instances []sources.Instance) (interface{}, error)
}

// ProviderConstructor builds a Provider from its config mapping.
type ProviderConstructor func(cfg map[string]interface{}) (Provider, error)

var (
	providersMu          sync.RWMutex
	providerConstructors = map[string]ProviderConstructor{}
)

// RegisterProvider makes a context provider type available to configuration.
func RegisterProvider(typeName string, ctor ProviderConstructor) {
	providersMu.Lock()
	defer providersMu.Unlock()
	if _, exists := providerConstructors[typeName]; exists {
		panic(fmt.Sprintf("context provider type %q registered twice", typeName))
	}
	providerConstructors[typeName] = ctor
}

type namedProvider struct {
	name     string
	provider Provider
}

// NewProviders constructs the configured context providers in deterministic
// (name-sorted) order.
func NewProviders(cfg map[string]config.ProviderConfig) ([]namedProvider, error) {
	names := make([]string, 0, len(cfg))
	for name := range cfg {
		names = append(names, name)
	}
	sort.Strings(names)

	providersMu.RLock()
	defer providersMu.RUnlock()
	out := make([]namedProvider, 0, len(names))
	for _, name := range names {
		spec := cfg[name]
		ctor, ok := providerConstructors[spec.Type]
		if !ok {
			return nil, fmt.Errorf("context provider %q has unknown type %q", name, spec.Type)
		}
		provider, err := ctor(spec.Config)
		if err != nil {
			return nil, fmt.Errorf("context provider %q: %w", name, err)
		}
		out = append(out, namedProvider{name: name, provider: provider})
	}
	return out, nil
}

// safeContext evaluates every provider into a single mapping. A provider
// that fails is logged and its key omitted; it never fails the request.
func safeContext(req *DiscoveryRequest, instances []sources.Instance, providers []namedProvider) templates.RenderContext {
	ctx := make(templates.RenderContext, len(providers))
	for _, p := range providers {
		value, err := p.provider.Build(req, instances)
		if err != nil {
			slog.Error("Context provider failed, omitting key",
				"provider", p.name, "error", err)
			continue
		}
		ctx[p.name] = value
	}
	return ctx
}

// staticProvider returns its literal config mapping on every request.
type staticProvider struct {
	values map[string]interface{}
}

func (p *staticProvider) Build(*DiscoveryRequest, []sources.Instance) (interface{}, error) {
	return p.values, nil
}

// loadableProvider re-loads an addressable value on every request.
type loadableProvider struct {
	loadable config.Loadable
}

func (p *loadableProvider) Build(*DiscoveryRequest, []sources.Instance) (interface{}, error) {
	return p.loadable.Load()
}

func init() {
	RegisterProvider("static", func(cfg map[string]interface{}) (Provider, error) {
		return &staticProvider{values: cfg}, nil
	})
	RegisterProvider("loadable", func(cfg map[string]interface{}) (Provider, error) {
		path, ok := cfg["path"].(string)
		if !ok || path == "" {
			return nil, fmt.Errorf("loadable provider config has no path key")
		}
		return &loadableProvider{loadable: config.ParseLoadable(path)}, nil
	})
}
