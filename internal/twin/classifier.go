package twin

import (
	"strings"

	"github.com/greenhillcanarias/digital-twin/internal/util"
)

// MetadataKeyDomain and MetadataKeySubdomain are the metadata hints that can
// override role-based classification.
const (
	MetadataKeyDomain    = "domain"
	MetadataKeySubdomain = "subdomain"
)

// RoutingTable maps request attributes to ordered agent queues. One canonical
// table ships as the baked default; deployments may override it via
// routing.yaml.
type RoutingTable struct {
	// DomainHints are fast-path overrides keyed by the metadata domain hint.
	DomainHints map[string][]AgentName `yaml:"domain_hints"`
	// ComplianceSubdomains lists the subdomain hints that trigger the
	// compliance fast path (the bare "compliance" domain hint does not).
	ComplianceSubdomains []string `yaml:"compliance_subdomains"`
	// SourceTypes maps each requester role to its fixed ordered agent list.
	SourceTypes map[string][]AgentName `yaml:"source_types"`
}

// DefaultRoutingTable returns the canonical routing table. Historical
// variants disagreed on some role lists; this is the authoritative one
// (see DESIGN.md).
func DefaultRoutingTable() *RoutingTable {
	return &RoutingTable{
		DomainHints: map[string][]AgentName{
			"media":      {AgentMarket},
			"governance": {AgentCompliance, AgentStrategy},
		},
		ComplianceSubdomains: []string{"eu_gmp", "gacp", "aemps"},
		SourceTypes: map[string][]AgentName{
			"master": {
				AgentStrategy, AgentFinance, AgentOperations, AgentMarket,
				AgentRisk, AgentCompliance, AgentInnovation, AgentGreenHill,
			},
			"shareholder":  {AgentStrategy, AgentFinance, AgentMarket, AgentRisk, AgentGreenHill},
			"investor":     {AgentStrategy, AgentFinance, AgentMarket, AgentRisk, AgentGreenHill},
			"supplier":     {AgentOperations, AgentCompliance},
			"provider":     {AgentOperations, AgentCompliance},
			"public":       {AgentMarket, AgentStrategy},
			"ocs_feed":     {AgentOperations, AgentCompliance},
			"web_source":   {AgentMarket, AgentRisk},
			"media_upload": {AgentInnovation, AgentOperations},
		},
	}
}

// Classify produces the ordered agent queue for a request. It is a pure
// function of the state's source type, metadata and explicit targets; an
// empty result is a valid outcome and terminates the run before any agent.
//
// Decision order, first match wins:
//  1. direct mode: a caller-supplied target list is used verbatim, with a
//     single explicit target prepended when not already contained
//  2. metadata domain hint fast paths
//  3. fixed source-type table
func Classify(st *TwinState, table *RoutingTable) []AgentName {
	if table == nil {
		table = DefaultRoutingTable()
	}

	if targets := directTargets(st); len(targets) > 0 {
		return targets
	}

	if targets := hintTargets(st, table); len(targets) > 0 {
		return copyAgents(targets)
	}

	role := strings.ToLower(strings.TrimSpace(st.SourceType))
	if role == "" {
		role = "public"
	}
	return copyAgents(table.SourceTypes[role])
}

func directTargets(st *TwinState) []AgentName {
	targets := copyAgents(st.TargetAgents)
	if st.TargetAgent != "" && !containsAgent(targets, st.TargetAgent) {
		targets = append([]AgentName{st.TargetAgent}, targets...)
	}
	return targets
}

func hintTargets(st *TwinState, table *RoutingTable) []AgentName {
	domain := strings.ToLower(strings.TrimSpace(st.Metadata[MetadataKeyDomain]))
	if domain == "" {
		return nil
	}
	if domain == "compliance" {
		sub := strings.ToLower(strings.TrimSpace(st.Metadata[MetadataKeySubdomain]))
		if util.ContainsString(table.ComplianceSubdomains, sub) {
			return []AgentName{AgentCompliance, AgentRisk}
		}
		return nil
	}
	return table.DomainHints[domain]
}

// containsAgent compares after alias normalization so a legacy explicit
// target does not get duplicated alongside its canonical form.
func containsAgent(list []AgentName, a AgentName) bool {
	want := Normalize(a)
	for _, x := range list {
		if Normalize(x) == want {
			return true
		}
	}
	return false
}

func copyAgents(in []AgentName) []AgentName {
	if len(in) == 0 {
		return nil
	}
	return append([]AgentName(nil), in...)
}
