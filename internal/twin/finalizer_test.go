package twin

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestFinalize_CompositeAnswer(t *testing.T) {
	st := NewState(Request{Question: "How do we expand into new markets?", SourceType: "investor"})
	st.StrategyOutput = &AgentOutput{Headline: "Prioritize the EU-GMP corridor.", Analysis: "long form", ContextUsed: 3}
	st.MarketOutput = &AgentOutput{Headline: "Demand concentrated in DACH.", Analysis: "long form", ContextUsed: 1}

	finalize(context.Background(), st, nil, nil, false, zaptest.NewLogger(t))

	require.True(t, st.Finalize)
	require.NotEmpty(t, st.FinalAnswer)
	assert.Contains(t, st.FinalAnswer, "**Question:** How do we expand into new markets?")
	assert.Contains(t, st.FinalAnswer, "- **Strategic Analysis** (strategy): Prioritize the EU-GMP corridor. [context snippets: 3]")
	assert.Contains(t, st.FinalAnswer, "- **Market Intelligence** (market): Demand concentrated in DACH. [context snippets: 1]")

	// Only populated sections appear.
	assert.NotContains(t, st.FinalAnswer, "Risk Analysis")
	assert.NotContains(t, st.FinalAnswer, "Executive Synthesis")

	// Strategy precedes market, matching the fixed section order.
	assert.Less(t,
		strings.Index(st.FinalAnswer, "Strategic Analysis"),
		strings.Index(st.FinalAnswer, "Market Intelligence"))
}

func TestFinalize_IsDeterministic(t *testing.T) {
	build := func() string {
		st := NewState(Request{Question: "q", SourceType: "master"})
		st.FinanceOutput = &AgentOutput{Headline: "h", Analysis: "a", ContextUsed: 2}
		st.RiskOutput = &AgentOutput{Headline: "h2", Analysis: "a2", ContextUsed: 0}
		finalize(context.Background(), st, nil, nil, false, zaptest.NewLogger(t))
		return st.FinalAnswer
	}
	assert.Equal(t, build(), build())
}

func TestFinalize_EmptyHeadlinePlaceholder(t *testing.T) {
	st := NewState(Request{Question: "q"})
	st.OperationsOutput = &AgentOutput{Headline: "", Analysis: "body", ContextUsed: 1}

	finalize(context.Background(), st, nil, nil, false, zaptest.NewLogger(t))

	assert.Contains(t, st.FinalAnswer, "- **Operations Analysis** (operations): analysis recorded [context snippets: 1]")
}

func TestFinalize_NoOutputsStillFinalizes(t *testing.T) {
	st := NewState(Request{Question: "q"})

	finalize(context.Background(), st, nil, nil, false, zaptest.NewLogger(t))

	assert.True(t, st.Finalize)
	assert.Contains(t, st.FinalAnswer, "Executive Summary")
	require.Len(t, st.History, 1)
	assert.Equal(t, string(AgentGreenHill), st.History[0].Role)
}

func TestArchiveOutputs_SkipsEmptyAnalyses(t *testing.T) {
	st := NewState(Request{Question: "q"})
	st.StrategyOutput = &AgentOutput{Headline: "h", Analysis: "  ", ContextUsed: 1}
	st.RiskOutput = &AgentOutput{Headline: "h", Analysis: "real text", ContextUsed: 1}

	arch := &recordingArchiver{}
	finalize(context.Background(), st, nil, arch, true, zaptest.NewLogger(t))

	require.Len(t, arch.items, 1)
	assert.Equal(t, "risk", arch.items[0].Agent)
	assert.Equal(t, "real text", arch.items[0].Text)
}
