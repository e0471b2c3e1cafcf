package sources

import (
	"fmt"

	"github.com/sovereign-xds/sovereign/internal/common/config"
)

// FileSource re-reads a Loadable on every refresh cycle.
type FileSource struct {
	loadable config.Loadable
}

func init() {
	RegisterSource("file", NewFileSource)
}

// NewFileSource builds a file source. The config must contain a "path" key in
// Loadable form, e.g. "file://./instances.yaml".
func NewFileSource(cfg map[string]interface{}) (Source, error) {
	path, ok := cfg["path"].(string)
	if !ok || path == "" {
		return nil, fmt.Errorf("file source config has no path key")
	}
	return &FileSource{loadable: config.ParseLoadable(path)}, nil
}

func (s *FileSource) Get() ([]Instance, error) {
	value, err := s.loadable.Load()
	if err != nil {
		return nil, err
	}
	instances, err := coerceInstances(value)
	if err != nil {
		return nil, fmt.Errorf("invalid instance data in %s: %w", s.loadable.Path, err)
	}
	return instances, nil
}
