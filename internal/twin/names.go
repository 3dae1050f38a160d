package twin

// AgentName identifies one analysis role in the twin.
type AgentName string

const (
	AgentStrategy   AgentName = "strategy"
	AgentOperations AgentName = "operations"
	AgentFinance    AgentName = "finance"
	AgentMarket     AgentName = "market"
	AgentRisk       AgentName = "risk"
	AgentCompliance AgentName = "compliance"
	AgentInnovation AgentName = "innovation"
	// AgentGreenHill is the synthesis agent that writes the executive memo.
	AgentGreenHill AgentName = "green_hill_gpt"

	// AgentMarketIntel is the legacy identifier for the market agent. It is
	// still accepted in persisted target lists and inbound requests.
	AgentMarketIntel AgentName = "market_intel"
)

// AnalyticalAgents is the canonical order of the seven analytical agents.
var AnalyticalAgents = []AgentName{
	AgentStrategy,
	AgentFinance,
	AgentOperations,
	AgentMarket,
	AgentRisk,
	AgentCompliance,
	AgentInnovation,
}

// Normalize collapses legacy alias identifiers to their canonical form. This
// is the single place aliases are resolved; the classifier, cursor advance and
// router all pass identifiers through here before comparing them.
func Normalize(a AgentName) AgentName {
	if a == AgentMarketIntel {
		return AgentMarket
	}
	return a
}

// Known reports whether a (after normalization) names a routable agent.
func Known(a AgentName) bool {
	switch Normalize(a) {
	case AgentStrategy, AgentOperations, AgentFinance, AgentMarket,
		AgentRisk, AgentCompliance, AgentInnovation, AgentGreenHill:
		return true
	}
	return false
}

func (a AgentName) String() string { return string(a) }
