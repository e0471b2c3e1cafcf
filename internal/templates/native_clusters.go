package templates

import (
	"github.com/sovereign-xds/sovereign/internal/sources"
)

// clustersFromInstances is a native renderer that projects the matched
// instance view into minimal STRICT_DNS cluster documents, one per instance.
// It is addressable from configuration as "native://clusters_from_instances".
func clustersFromInstances(ctx RenderContext) (map[string]interface{}, error) {
	instances, _ := ctx["instances"].([]sources.Instance)
	resources := make([]interface{}, 0, len(instances))
	for _, instance := range instances {
		endpoints, _ := instance["endpoints"].([]interface{})
		lbEndpoints := make([]interface{}, 0, len(endpoints))
		for _, ep := range endpoints {
			endpoint, ok := ep.(map[string]interface{})
			if !ok {
				continue
			}
			lbEndpoints = append(lbEndpoints, map[string]interface{}{
				"endpoint": map[string]interface{}{
					"address": map[string]interface{}{
						"socket_address": map[string]interface{}{
							"address":    endpoint["address"],
							"port_value": endpoint["port"],
						},
					},
				},
			})
		}
		resources = append(resources, map[string]interface{}{
			"name":            instance.Name(),
			"type":            "STRICT_DNS",
			"connect_timeout": "2s",
			"load_assignment": map[string]interface{}{
				"cluster_name": instance.Name(),
				"endpoints": []interface{}{
					map[string]interface{}{"lb_endpoints": lbEndpoints},
				},
			},
		})
	}
	return map[string]interface{}{"resources": resources}, nil
}

func init() {
	RegisterNative("clusters_from_instances", clustersFromInstances)
}
