package sources

import (
	"fmt"
)

// InlineSource serves a literal instance list from configuration.
type InlineSource struct {
	instances []Instance
}

func init() {
	RegisterSource("inline", NewInlineSource)
}

// NewInlineSource builds an inline source. The config must contain an
// "instances" key.
func NewInlineSource(config map[string]interface{}) (Source, error) {
	raw, ok := config["instances"]
	if !ok {
		return nil, fmt.Errorf("inline source config has no instances key")
	}
	instances, err := coerceInstances(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid inline source config: %w", err)
	}
	return &InlineSource{instances: instances}, nil
}

func (s *InlineSource) Get() ([]Instance, error) {
	return s.instances, nil
}
