package config

import (
	"fmt"
	"os"

	yaml "go.yaml.in/yaml/v2"
)

// CacheStrategy selects which inputs the discovery version fingerprint
// is computed over.
type CacheStrategy string

const (
	CacheStrategyContext CacheStrategy = "context"
	CacheStrategyContent CacheStrategy = "content"
	CacheStrategyNone    CacheStrategy = "none"
)

// SourceConfig declares a single instance source
type SourceConfig struct {
	Type   string                 `yaml:"type"`
	Config map[string]interface{} `yaml:"config"`
}

// ProviderConfig declares a single context provider
type ProviderConfig struct {
	Type   string                 `yaml:"type"`
	Config map[string]interface{} `yaml:"config"`
}

// Config holds the application configuration
type Config struct {
	Debug                 bool                         `yaml:"debug"`
	CacheStrategy         CacheStrategy                `yaml:"cache_strategy"`
	RefreshRateSeconds    int                          `yaml:"refresh_rate_seconds"`
	NoChangesResponseCode int                          `yaml:"no_changes_response_code"`
	SourceMatchKey        string                       `yaml:"source_match_key"`
	Sources               []SourceConfig               `yaml:"sources"`
	Modifications         []string                     `yaml:"modifications"`
	Templates             map[string]map[string]string `yaml:"templates"`
	Context               map[string]ProviderConfig    `yaml:"context"`
	AuthEnabled           bool                         `yaml:"auth_enabled"`
	AuthPayloadKey        string                       `yaml:"auth_payload_key"`
	EncryptionKeys        []string                     `yaml:"encryption_keys"`
	RequiredClaims        map[string][]string          `yaml:"required_claims"`
}

// Load reads and validates the YAML configuration file at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(raw)
}

// Parse decodes a YAML configuration document and applies defaults.
func Parse(raw []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	for i := range cfg.Sources {
		cfg.Sources[i].Config = NormalizeMap(cfg.Sources[i].Config)
	}
	for name, provider := range cfg.Context {
		provider.Config = NormalizeMap(provider.Config)
		cfg.Context[name] = provider
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config populated with the recognized defaults.
func Default() *Config {
	return &Config{
		CacheStrategy:         CacheStrategyContext,
		RefreshRateSeconds:    30,
		NoChangesResponseCode: 304,
		SourceMatchKey:        "cluster",
		AuthPayloadKey:        "auth",
	}
}

func (c *Config) validate() error {
	switch c.CacheStrategy {
	case CacheStrategyContext, CacheStrategyContent, CacheStrategyNone:
	default:
		return fmt.Errorf("unknown cache_strategy %q", c.CacheStrategy)
	}
	if c.RefreshRateSeconds <= 0 {
		return fmt.Errorf("refresh_rate_seconds must be positive, got %d", c.RefreshRateSeconds)
	}
	if _, ok := c.Templates["default"]; !ok {
		return fmt.Errorf("configuration must contain default templates")
	}
	if c.AuthEnabled && len(c.EncryptionKeys) == 0 {
		return fmt.Errorf("auth_enabled requires at least one encryption key")
	}
	return nil
}
