package config

import (
	"fmt"
)

// NormalizeValue rewrites the map[interface{}]interface{} values produced by
// yaml.v2 into map[string]interface{} so they survive a JSON round trip.
func NormalizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, inner := range val {
			out[keyString(k)] = NormalizeValue(inner)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, inner := range val {
			out[k] = NormalizeValue(inner)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, inner := range val {
			out[i] = NormalizeValue(inner)
		}
		return out
	default:
		return v
	}
}

// NormalizeMap applies NormalizeValue to every value of a string-keyed map.
func NormalizeMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = NormalizeValue(v)
	}
	return out
}

func keyString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
