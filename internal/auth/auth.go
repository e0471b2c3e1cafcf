// Package auth validates discovery requests by decrypting an opaque token
// carried in node metadata.
package auth

import (
	"fmt"

	"github.com/fernet/fernet-go"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/sovereign-xds/sovereign/internal/common/config"
	"github.com/sovereign-xds/sovereign/internal/discovery"
)

// Authenticator decrypts the token under the configured node metadata key
// with an ordered Fernet key ring (first key that verifies wins) and checks
// the decrypted claims against operator-configured predicates.
type Authenticator struct {
	enabled        bool
	payloadKey     string
	keys           []*fernet.Key
	requiredClaims map[string][]string
}

// New builds an Authenticator from configuration. Keys are decoded at
// startup; a malformed key is a startup error, not a request error.
func New(cfg *config.Config) (*Authenticator, error) {
	a := &Authenticator{
		enabled:        cfg.AuthEnabled,
		payloadKey:     cfg.AuthPayloadKey,
		requiredClaims: cfg.RequiredClaims,
	}
	if !cfg.AuthEnabled {
		return a, nil
	}
	keys, err := fernet.DecodeKeys(cfg.EncryptionKeys...)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encryption keys: %w", err)
	}
	a.keys = keys
	return a, nil
}

// Authenticate validates one discovery request. It runs before any source
// or template work; failures map to 401 with a redacted detail.
func (a *Authenticator) Authenticate(req *discovery.DiscoveryRequest) error {
	if !a.enabled {
		return nil
	}

	token, ok := req.Node.Metadata[a.payloadKey].(string)
	if !ok || token == "" {
		return discovery.NewAuthFailure(fmt.Errorf("node metadata has no %s key", a.payloadKey))
	}

	plaintext := fernet.VerifyAndDecrypt([]byte(token), 0, a.keys)
	if plaintext == nil {
		return discovery.NewAuthFailure(fmt.Errorf("token did not verify against any configured key"))
	}

	var claims map[string]interface{}
	if err := yamlv3.Unmarshal(plaintext, &claims); err != nil || claims == nil {
		return discovery.NewAuthFailure(fmt.Errorf("token payload is not a mapping"))
	}

	for claim, allowed := range a.requiredClaims {
		value, ok := claims[claim]
		if !ok {
			return discovery.NewAuthFailure(fmt.Errorf("token payload is missing claim %s", claim))
		}
		if len(allowed) == 0 {
			continue
		}
		if !claimAllowed(fmt.Sprint(value), allowed) {
			return discovery.NewAuthFailure(fmt.Errorf("claim %s has a disallowed value", claim))
		}
	}
	return nil
}

func claimAllowed(value string, allowed []string) bool {
	for _, candidate := range allowed {
		if candidate == "*" || candidate == value {
			return true
		}
	}
	return false
}
