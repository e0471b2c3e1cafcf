package sources

// Instance is a single backend record as produced by a source. The shape is
// free-form; templates consume whatever keys the source emitted.
type Instance map[string]interface{}

// Name returns the resource name of the instance: the "name" key if present,
// otherwise "cluster_name".
func (i Instance) Name() string {
	if name, ok := i["name"].(string); ok && name != "" {
		return name
	}
	name, _ := i["cluster_name"].(string)
	return name
}

// ServiceClusters returns the list of cluster-name globs the instance is
// scoped to. An absent or malformed key yields an empty list.
func (i Instance) ServiceClusters() []string {
	raw, ok := i["service_clusters"]
	if !ok {
		return nil
	}
	switch val := raw.(type) {
	case []string:
		return val
	case []interface{}:
		clusters := make([]string, 0, len(val))
		for _, v := range val {
			if s, ok := v.(string); ok {
				clusters = append(clusters, s)
			}
		}
		return clusters
	default:
		return nil
	}
}

// MatchesCluster reports whether the instance should be served to a node in
// the given cluster. A "*" on either side matches anything.
func (i Instance) MatchesCluster(cluster string) bool {
	if cluster == "*" {
		return true
	}
	for _, sc := range i.ServiceClusters() {
		if sc == "*" || sc == cluster {
			return true
		}
	}
	return false
}
