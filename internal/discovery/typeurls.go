package discovery

import (
	"github.com/envoyproxy/go-control-plane/pkg/resource/v3"
)

// typeURLs maps (api version, xds type) to the envoy type_url. Unknown pairs
// leave type_url unset rather than erroring; older api paths carry none.
var typeURLs = map[string]map[string]string{
	"v2": {
		"listeners":     "type.googleapis.com/envoy.api.v2.Listener",
		"clusters":      "type.googleapis.com/envoy.api.v2.Cluster",
		"endpoints":     "type.googleapis.com/envoy.api.v2.ClusterLoadAssignment",
		"secrets":       "type.googleapis.com/envoy.api.v2.auth.Secret",
		"routes":        "type.googleapis.com/envoy.api.v2.RouteConfiguration",
		"scoped-routes": "type.googleapis.com/envoy.api.v2.ScopedRouteConfiguration",
	},
	"v3": {
		"listeners":     resource.ListenerType,
		"clusters":      resource.ClusterType,
		"routes":        resource.RouteType,
		"scoped-routes": resource.ScopedRouteType,
	},
}

// ResolveTypeURL returns the type_url for an (api version, xds type) pair,
// or "" when the pair has no known mapping.
func ResolveTypeURL(apiVersion, xdsType string) string {
	return typeURLs[apiVersion][xdsType]
}
