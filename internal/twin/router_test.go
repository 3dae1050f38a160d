package twin

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoute(t *testing.T) {
	t.Run("finalized state terminates", func(t *testing.T) {
		st := &TwinState{Finalize: true, NextAgent: AgentRisk}
		assert.Equal(t, Step{Kind: StepEnd}, Route(st))
	})

	t.Run("empty cursor means finalize", func(t *testing.T) {
		st := &TwinState{}
		assert.Equal(t, Step{Kind: StepFinalize}, Route(st))
	})

	t.Run("known agent dispatches", func(t *testing.T) {
		st := &TwinState{NextAgent: AgentFinance}
		assert.Equal(t, Step{Kind: StepAgent, Agent: AgentFinance}, Route(st))
	})

	t.Run("legacy alias dispatches to canonical agent", func(t *testing.T) {
		st := &TwinState{NextAgent: AgentMarketIntel}
		assert.Equal(t, Step{Kind: StepAgent, Agent: AgentMarket}, Route(st))
	})

	t.Run("unrecognized identifier terminates", func(t *testing.T) {
		st := &TwinState{NextAgent: AgentName("astrology")}
		assert.Equal(t, Step{Kind: StepEnd}, Route(st))
	})
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, AgentMarket, Normalize(AgentMarketIntel))
	assert.Equal(t, AgentMarket, Normalize(AgentMarket))
	assert.Equal(t, AgentGreenHill, Normalize(AgentGreenHill))
}

func TestNextAfter(t *testing.T) {
	targets := []AgentName{AgentStrategy, AgentMarketIntel, AgentRisk}

	assert.Equal(t, AgentMarketIntel, nextAfter(targets, AgentStrategy))
	// Alias lookup: asking for the canonical market agent finds the legacy entry.
	assert.Equal(t, AgentRisk, nextAfter(targets, AgentMarket))
	assert.Equal(t, AgentName(""), nextAfter(targets, AgentRisk))
	assert.Equal(t, AgentName(""), nextAfter(targets, AgentInnovation))
}
