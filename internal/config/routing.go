package config

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/greenhillcanarias/digital-twin/internal/twin"
)

var (
	routingMu     sync.RWMutex
	routingTable  *twin.RoutingTable
	routingLoaded bool
)

func routingPaths() []string {
	return []string{
		os.Getenv("ROUTING_CONFIG_PATH"),
		"/app/config/routing.yaml",
		"./config/routing.yaml",
	}
}

// LoadRoutingTable returns the routing table from routing.yaml, falling back
// to the baked-in canonical table when no file is found. The result is cached
// until ReloadRoutingTable.
func LoadRoutingTable() *twin.RoutingTable {
	routingMu.RLock()
	if routingLoaded {
		defer routingMu.RUnlock()
		return routingTable
	}
	routingMu.RUnlock()

	routingMu.Lock()
	defer routingMu.Unlock()
	if !routingLoaded {
		routingTable = loadRoutingLocked()
		routingLoaded = true
	}
	return routingTable
}

// ReloadRoutingTable re-reads routing.yaml. Called by the hot-reload manager
// when the file changes; concurrent readers keep seeing a consistent table.
func ReloadRoutingTable() *twin.RoutingTable {
	routingMu.Lock()
	defer routingMu.Unlock()
	routingTable = loadRoutingLocked()
	routingLoaded = true
	return routingTable
}

func loadRoutingLocked() *twin.RoutingTable {
	for _, p := range routingPaths() {
		if p == "" {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		table, err := parseRoutingTable(data)
		if err != nil {
			// A malformed table must not silently reroute requests.
			fmt.Fprintf(os.Stderr, "WARNING: bad routing table at %s: %v\n", p, err)
			continue
		}
		return table
	}
	return twin.DefaultRoutingTable()
}

// parseRoutingTable unmarshals a routing table and fills missing sections
// from the canonical defaults, so a file can override just the source type
// lists without restating the domain hints.
func parseRoutingTable(data []byte) (*twin.RoutingTable, error) {
	var t twin.RoutingTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, err
	}

	def := twin.DefaultRoutingTable()
	if t.SourceTypes == nil {
		t.SourceTypes = def.SourceTypes
	}
	if t.DomainHints == nil {
		t.DomainHints = def.DomainHints
	}
	if t.ComplianceSubdomains == nil {
		t.ComplianceSubdomains = def.ComplianceSubdomains
	}

	for role, agents := range t.SourceTypes {
		for _, a := range agents {
			if !twin.Known(a) {
				return nil, fmt.Errorf("source type %q names unknown agent %q", role, a)
			}
		}
	}
	for hint, agents := range t.DomainHints {
		for _, a := range agents {
			if !twin.Known(a) {
				return nil, fmt.Errorf("domain hint %q names unknown agent %q", hint, a)
			}
		}
	}
	return &t, nil
}
