package config

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v2"
)

// Serialization selects how the raw bytes behind a Loadable are decoded.
type Serialization string

const (
	SerializationYAML   Serialization = "yaml"
	SerializationJSON   Serialization = "json"
	SerializationString Serialization = "string"
)

// Loadable is an addressable configuration value. The textual form is
// "<scheme>[+<serialization>]://<path>"; a bare string with no scheme is
// returned as-is. Supported schemes: file, env, http, https, inline, native.
type Loadable struct {
	Scheme        string
	Serialization Serialization
	Path          string
}

var httpClient = &http.Client{Timeout: 10 * time.Second}

// ParseLoadable parses the legacy single-string form of a Loadable.
func ParseLoadable(value string) Loadable {
	scheme, path, found := strings.Cut(value, "://")
	if !found {
		return Loadable{Scheme: "inline", Serialization: SerializationString, Path: value}
	}
	serialization := SerializationYAML
	if base, tag, tagged := strings.Cut(scheme, "+"); tagged {
		scheme = base
		serialization = Serialization(tag)
	} else if scheme == "inline" || scheme == "native" {
		serialization = SerializationString
	}
	return Loadable{Scheme: scheme, Serialization: serialization, Path: path}
}

// LoadText returns the raw text behind the Loadable without deserializing it.
func (l Loadable) LoadText() (string, error) {
	switch l.Scheme {
	case "file":
		raw, err := os.ReadFile(l.Path)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", l.Path, err)
		}
		return string(raw), nil
	case "env":
		value, ok := os.LookupEnv(l.Path)
		if !ok {
			return "", fmt.Errorf("environment variable %s is not set", l.Path)
		}
		return value, nil
	case "http", "https":
		resp, err := httpClient.Get(fmt.Sprintf("%s://%s", l.Scheme, l.Path))
		if err != nil {
			return "", fmt.Errorf("failed to fetch %s: %w", l.Path, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("fetching %s returned status %d", l.Path, resp.StatusCode)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", fmt.Errorf("failed to read response from %s: %w", l.Path, err)
		}
		return string(body), nil
	case "inline":
		return l.Path, nil
	case "native":
		return "", fmt.Errorf("native loadable %s has no text form", l.Path)
	default:
		return "", fmt.Errorf("unknown loadable scheme %q", l.Scheme)
	}
}

// Load fetches and deserializes the value behind the Loadable.
func (l Loadable) Load() (interface{}, error) {
	text, err := l.LoadText()
	if err != nil {
		return nil, err
	}
	switch l.Serialization {
	case SerializationString:
		return text, nil
	case SerializationJSON:
		var out interface{}
		if err := json.Unmarshal([]byte(text), &out); err != nil {
			return nil, fmt.Errorf("failed to decode %s as json: %w", l.Path, err)
		}
		return NormalizeValue(out), nil
	case SerializationYAML, "":
		var out interface{}
		if err := yaml.Unmarshal([]byte(text), &out); err != nil {
			return nil, fmt.Errorf("failed to decode %s as yaml: %w", l.Path, err)
		}
		return NormalizeValue(out), nil
	default:
		return nil, fmt.Errorf("unknown serialization %q", l.Serialization)
	}
}
