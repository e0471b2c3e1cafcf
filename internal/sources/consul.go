package sources

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	consulapi "github.com/hashicorp/consul/api"
)

// ConsulSource reads healthy service entries from a Consul catalog and
// projects each service into one instance. Service meta keys recognized:
//   - service_clusters: comma-separated cluster-name globs
//   - domains: comma-separated domain names
type ConsulSource struct {
	client *consulapi.Client
}

type headerRoundTripper struct {
	rt http.RoundTripper
}

func (h *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return h.rt.RoundTrip(req)
}

func init() {
	RegisterSource("consul", NewConsulSource)
}

// NewConsulSource builds a consul source. The config must contain an
// "address" key (host:port of the Consul HTTP API).
func NewConsulSource(cfg map[string]interface{}) (Source, error) {
	addr, ok := cfg["address"].(string)
	if !ok || addr == "" {
		return nil, fmt.Errorf("consul source config has no address key")
	}

	consulCfg := consulapi.DefaultConfig()
	consulCfg.Address = addr
	if dc, ok := cfg["datacenter"].(string); ok {
		consulCfg.Datacenter = dc
	}
	consulCfg.HttpClient = &http.Client{
		Transport: &headerRoundTripper{rt: http.DefaultTransport},
	}

	client, err := consulapi.NewClient(consulCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consul client: %w", err)
	}
	return &ConsulSource{client: client}, nil
}

func (s *ConsulSource) Get() ([]Instance, error) {
	serviceMapping, _, err := s.client.Catalog().Services(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list consul services: %w", err)
	}

	names := make([]string, 0, len(serviceMapping))
	for name := range serviceMapping {
		if name != "consul" {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var instances []Instance
	for _, svc := range names {
		entries, _, err := s.client.Health().Service(svc, "", true, nil)
		if err != nil {
			return nil, fmt.Errorf("failed fetching healthy entries for %s: %w", svc, err)
		}
		if len(entries) == 0 {
			slog.Warn("Service has no healthy instances", "service", svc)
			continue
		}

		// Use metadata from the most recently modified service instance
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].Service.ModifyIndex > entries[j].Service.ModifyIndex
		})

		endpoints := make([]interface{}, 0, len(entries))
		for _, e := range entries {
			addr := e.Service.Address
			if addr == "" {
				addr = e.Node.Address
			}
			if addr == "" {
				continue
			}
			endpoints = append(endpoints, map[string]interface{}{
				"address": addr,
				"port":    e.Service.Port,
			})
		}

		meta := entries[0].Service.Meta
		instance := Instance{
			"name":      svc,
			"endpoints": endpoints,
		}
		if clusters, ok := meta["service_clusters"]; ok {
			instance["service_clusters"] = splitCSV(clusters)
		}
		if domains, ok := meta["domains"]; ok {
			instance["domains"] = splitCSV(domains)
		}
		instances = append(instances, instance)
	}
	return instances, nil
}

func splitCSV(value string) []interface{} {
	parts := strings.Split(value, ",")
	out := make([]interface{}, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
