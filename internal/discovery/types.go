package discovery

import (
	"encoding/json"
	"strings"
)

// Node identifies the requesting envoy client.
type Node struct {
	ID           string                 `json:"id,omitempty"`
	Cluster      string                 `json:"cluster"`
	BuildVersion string                 `json:"build_version,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	Locality     map[string]interface{} `json:"locality,omitempty"`
}

// Common projects the node fields that define configuration identity,
// excluding volatile metadata, for stable fingerprinting.
func (n Node) Common() map[string]interface{} {
	return map[string]interface{}{
		"id":            n.ID,
		"cluster":       n.Cluster,
		"build_version": n.BuildVersion,
		"locality":      n.Locality,
	}
}

// EnvoyVersion extracts the release version from a build_version of the form
// "<revision hash>/<version>/Clean/RELEASE". Unparseable values select the
// default template group.
func (n Node) EnvoyVersion() string {
	parts := strings.Split(n.BuildVersion, "/")
	if len(parts) < 2 || parts[1] == "" {
		return "default"
	}
	return parts[1]
}

// DiscoveryRequest is the JSON body an envoy client POSTs to the discovery
// endpoint.
type DiscoveryRequest struct {
	VersionInfo         string   `json:"version_info"`
	Node                Node     `json:"node"`
	ResourceNames       []string `json:"resource_names"`
	TypeURL             string   `json:"type_url,omitempty"`
	DesiredControlplane string   `json:"-"`
}

// MatchKeyValue returns the node field selected by source_match_key. Keys
// other than the well-known node fields are looked up in node metadata.
func (r *DiscoveryRequest) MatchKeyValue(key string) string {
	switch key {
	case "", "cluster":
		return r.Node.Cluster
	case "id":
		return r.Node.ID
	default:
		if v, ok := r.Node.Metadata[key].(string); ok {
			return v
		}
		return ""
	}
}

// Result is the orchestrator's outcome: either a ProcessedTemplate or a
// NotModified marker.
type Result interface {
	Version() string
}

// NotModified signals that the caller's version_info already matches the
// current fingerprint; no resources are transferred.
type NotModified struct {
	VersionInfo string
}

func (n NotModified) Version() string { return n.VersionInfo }

// ProcessedTemplate is a rendered, deserialized and filtered configuration
// document ready to be written to the client.
type ProcessedTemplate struct {
	VersionInfo string
	Resources   []map[string]interface{}
}

func (p *ProcessedTemplate) Version() string { return p.VersionInfo }

// Rendered serializes the response body in the envoy xDS JSON shape.
func (p *ProcessedTemplate) Rendered() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"version_info": p.VersionInfo,
		"resources":    p.Resources,
	})
}

// ResourceName returns the identity of one resource document: "name" if
// present, otherwise "cluster_name".
func ResourceName(resource map[string]interface{}) string {
	if name, ok := resource["name"].(string); ok && name != "" {
		return name
	}
	name, _ := resource["cluster_name"].(string)
	return name
}
