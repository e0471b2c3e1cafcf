// Package discovery renders and returns discovery responses to envoy
// proxies: it binds the aggregated source view, the template registry and
// the version/cache layer together.
package discovery

import (
	"context"
	"fmt"
	"log/slog"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/sovereign-xds/sovereign/internal/common/config"
	"github.com/sovereign-xds/sovereign/internal/common/telemetry"
	"github.com/sovereign-xds/sovereign/internal/sources"
	"github.com/sovereign-xds/sovereign/internal/templates"
)

// Discovery is the per-process orchestrator for discovery requests.
type Discovery struct {
	cfg       *config.Config
	templates *templates.Registry
	agg       *sources.Aggregator
	providers []namedProvider
}

// New wires the orchestrator. Context providers are constructed here and
// immutable afterwards.
func New(cfg *config.Config, registry *templates.Registry, agg *sources.Aggregator) (*Discovery, error) {
	providers, err := NewProviders(cfg.Context)
	if err != nil {
		return nil, err
	}
	return &Discovery{
		cfg:       cfg,
		templates: registry,
		agg:       agg,
		providers: providers,
	}, nil
}

// KnownType reports whether the xds type is in the configured template
// universe. Unknown types are rejected before auth is consulted.
func (d *Discovery) KnownType(xdsType string) bool {
	return d.templates.KnownType(xdsType)
}

// Response answers one discovery request. It returns either a
// ProcessedTemplate or a NotModified marker; errors carry a status code and
// a client-safe description.
func (d *Discovery) Response(ctx context.Context, req *DiscoveryRequest, apiVersion, xdsType string) (Result, error) {
	if typeURL := ResolveTypeURL(apiVersion, xdsType); typeURL != "" {
		req.TypeURL = typeURL
	}

	tmpl, err := d.templates.SelectTemplate(req.Node.EnvoyVersion(), xdsType)
	if err != nil {
		return nil, NewUnknownXdsType(xdsType)
	}

	matched := d.agg.Match(req.MatchKeyValue(d.cfg.SourceMatchKey))
	providerCtx := safeContext(req, matched, d.providers)
	providerCtx["instances"] = matched
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	version := "0"
	if d.cfg.CacheStrategy == config.CacheStrategyContext {
		version = VersionHash(providerCtx, tmpl.Checksum(), req.Node.Common(), req.ResourceNames)
		if version == req.VersionInfo {
			telemetry.MetricCacheHits.Inc()
			return NotModified{VersionInfo: version}, nil
		}
	}

	renderCtx := make(templates.RenderContext, len(providerCtx)+3)
	for k, v := range providerCtx {
		renderCtx[k] = v
	}
	renderCtx["discovery_request"] = req
	renderCtx["host_header"] = req.DesiredControlplane
	renderCtx["resource_names"] = req.ResourceNames

	raw, doc, err := tmpl.Render(renderCtx)
	if err != nil {
		telemetry.MetricRenderErrors.Inc()
		return nil, NewTemplateRenderError(err)
	}

	// The version can be determined before deserializing the rendered text.
	if d.cfg.CacheStrategy != config.CacheStrategyContext {
		if tmpl.IsNative() {
			version = VersionHash(doc)
		} else {
			version = VersionHash(raw)
		}
		if d.cfg.CacheStrategy == config.CacheStrategyContent && version == req.VersionInfo {
			telemetry.MetricCacheHits.Inc()
			return NotModified{VersionInfo: version}, nil
		}
	}

	// Deserialization is the most expensive step, so it runs last.
	if !tmpl.IsNative() {
		doc, err = Deserialize(raw)
		if err != nil {
			telemetry.MetricRenderErrors.Inc()
			return nil, err
		}
	}

	return &ProcessedTemplate{
		VersionInfo: version,
		Resources:   filterResources(extractResources(doc), req.ResourceNames),
	}, nil
}

// Deserialize parses rendered template output as a YAML-compatible document.
// Parse failures are logged with the full parser detail; the returned error
// carries only a generic description for the client.
func Deserialize(raw []byte) (map[string]interface{}, error) {
	var doc map[string]interface{}
	if err := yamlv3.Unmarshal(raw, &doc); err != nil {
		slog.Error("Failed to deserialize rendered template",
			"error", fmt.Sprintf("%v", err))
		return nil, NewConfigDeserializeError(err)
	}
	return doc, nil
}

func extractResources(doc map[string]interface{}) []map[string]interface{} {
	raw, ok := doc["resources"].([]interface{})
	if !ok {
		return nil
	}
	resources := make([]map[string]interface{}, 0, len(raw))
	for _, r := range raw {
		if m, ok := r.(map[string]interface{}); ok {
			resources = append(resources, m)
		}
	}
	return resources
}

// filterResources retains only the resources envoy asked for by name. An
// empty request list retains everything.
func filterResources(resources []map[string]interface{}, requested []string) []map[string]interface{} {
	if len(requested) == 0 {
		return resources
	}
	wanted := make(map[string]struct{}, len(requested))
	for _, name := range requested {
		wanted[name] = struct{}{}
	}
	filtered := make([]map[string]interface{}, 0, len(resources))
	for _, resource := range resources {
		if _, ok := wanted[ResourceName(resource)]; ok {
			filtered = append(filtered, resource)
		}
	}
	return filtered
}
