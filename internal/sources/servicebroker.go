package sources

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// ServiceBrokerSource pulls instance inventories from one or more broker
// endpoints over HTTP. Each broker answers GET with a JSON body that is
// either a list of instances or {"instances": [...]}.
type ServiceBrokerSource struct {
	brokers    []string
	creds      string
	httpClient *http.Client
}

func init() {
	RegisterSource("service_broker", NewServiceBrokerSource)
}

// NewServiceBrokerSource builds a service_broker source. The config must
// contain a "brokers" list; "credentials_file" optionally points at a file
// holding "username:password" for basic auth.
func NewServiceBrokerSource(cfg map[string]interface{}) (Source, error) {
	rawBrokers, ok := cfg["brokers"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("service_broker source config has no brokers key")
	}
	brokers := make([]string, 0, len(rawBrokers))
	for _, b := range rawBrokers {
		url, ok := b.(string)
		if !ok || url == "" {
			return nil, fmt.Errorf("invalid broker entry %v", b)
		}
		brokers = append(brokers, strings.TrimRight(url, "/"))
	}

	var creds string
	if credsPath, ok := cfg["credentials_file"].(string); ok && credsPath != "" {
		credsBytes, err := os.ReadFile(credsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials file: %w", err)
		}
		creds = strings.TrimSpace(string(credsBytes))
		if !strings.Contains(creds, ":") {
			return nil, fmt.Errorf("invalid credentials format in %s", credsPath)
		}
	}

	return &ServiceBrokerSource{
		brokers:    brokers,
		creds:      creds,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (s *ServiceBrokerSource) Get() ([]Instance, error) {
	var all []Instance
	for _, broker := range s.brokers {
		instances, err := s.fetch(broker)
		if err != nil {
			return nil, fmt.Errorf("broker %s: %w", broker, err)
		}
		all = append(all, instances...)
	}
	return all, nil
}

func (s *ServiceBrokerSource) fetch(broker string) ([]Instance, error) {
	req, err := http.NewRequest(http.MethodGet, broker, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if s.creds != "" {
		parts := strings.SplitN(s.creds, ":", 2)
		req.SetBasicAuth(parts[0], parts[1])
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch instances: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("broker returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var decoded interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("failed to parse broker response: %w", err)
	}
	return coerceInstances(decoded)
}
