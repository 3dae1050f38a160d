package twin

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type stubRetriever struct {
	mu       sync.Mutex
	queries  []string
	snippets []string
}

func (r *stubRetriever) Retrieve(_ context.Context, query string, _ int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, query)
	if len(r.snippets) == 0 {
		return []string{"No vector store available"}
	}
	return r.snippets
}

type stubGenerator struct {
	mu    sync.Mutex
	calls []string
}

func (g *stubGenerator) Enhance(_ context.Context, instruction, content string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, instruction)
	return fmt.Sprintf("Key finding #%d.\nSupporting detail.", len(g.calls))
}

func newTestEngine(t *testing.T, opts Options) (*Engine, *stubRetriever, *stubGenerator) {
	t.Helper()
	retr := &stubRetriever{snippets: []string{"snippet one", "snippet two"}}
	gen := &stubGenerator{}
	return NewEngine(retr, gen, opts, zaptest.NewLogger(t)), retr, gen
}

func TestRun_MissingQuestion(t *testing.T) {
	eng, retr, gen := newTestEngine(t, Options{})

	st := eng.Run(context.Background(), Request{SourceType: "public"})

	assert.True(t, st.Finalize)
	assert.Equal(t, MsgMissingQuestion, st.FinalAnswer)
	assert.Contains(t, st.Errors, "missing question")
	for _, a := range append(append([]AgentName{}, AnalyticalAgents...), AgentGreenHill) {
		assert.Nil(t, st.Output(a), "no output expected for %s", a)
	}
	assert.Empty(t, retr.queries, "no retrieval before validation passes")
	assert.Empty(t, gen.calls, "no agent may run on the validation-error path")
}

func TestRun_EmptyClassification(t *testing.T) {
	eng, _, gen := newTestEngine(t, Options{})

	st := eng.Run(context.Background(), Request{Question: "q", SourceType: "intruder"})

	assert.True(t, st.Finalize)
	assert.Equal(t, MsgNoAgentsSelected, st.FinalAnswer)
	assert.Empty(t, gen.calls)
}

func TestRun_InvestorEndToEnd(t *testing.T) {
	eng, retr, gen := newTestEngine(t, Options{})

	st := eng.Run(context.Background(), Request{
		Question:   "What is the ROI for EU-GMP compliance?",
		SourceType: "investor",
	})

	require.True(t, st.Finalize)
	require.NotEmpty(t, st.FinalAnswer)

	wantRun := []AgentName{AgentStrategy, AgentFinance, AgentMarket, AgentRisk, AgentGreenHill}
	assert.Equal(t, wantRun, st.TargetAgents)
	for _, a := range wantRun {
		out := st.Output(a)
		require.NotNil(t, out, "output expected for %s", a)
		assert.Equal(t, 2, out.ContextUsed)
		assert.NotEmpty(t, out.Analysis)
	}
	assert.Nil(t, st.OperationsOutput)
	assert.Nil(t, st.ComplianceOutput)
	assert.Nil(t, st.InnovationOutput)

	// One enhance call per agent, strictly sequential.
	assert.Len(t, gen.calls, len(wantRun))

	// Orchestrator-level retrieval plus one narrower query per agent.
	require.Len(t, retr.queries, len(wantRun)+1)
	assert.Equal(t, "What is the ROI for EU-GMP compliance?", retr.queries[0])
	assert.Equal(t, []string{"snippet one", "snippet two"}, st.RetrievedDocs())
	assert.Contains(t, retr.queries[1], "strategy planning vision")

	// One history append per output write, plus the finalizer's entry.
	require.Len(t, st.History, len(wantRun)+1)
	for i, a := range wantRun {
		assert.Equal(t, string(Normalize(a)), st.History[i].Role)
	}
}

func TestRun_ChainTermination(t *testing.T) {
	// For any non-empty target list of length N, exactly N agent invocations
	// occur before finalize.
	eng, _, gen := newTestEngine(t, Options{})

	st := eng.Run(context.Background(), Request{
		Question:     "q",
		SourceType:   "public",
		TargetAgents: []AgentName{AgentCompliance, AgentInnovation, AgentOperations},
	})

	require.True(t, st.Finalize)
	assert.Len(t, gen.calls, 3)
	assert.Equal(t, AgentOperations, st.CurrentAgent)
	assert.Empty(t, st.NextAgent, "last agent resolves the cursor to none")
	require.NotNil(t, st.ComplianceOutput)
	require.NotNil(t, st.InnovationOutput)
	require.NotNil(t, st.OperationsOutput)
}

func TestRun_UnknownTargetAgentDropped(t *testing.T) {
	eng, _, gen := newTestEngine(t, Options{})

	st := eng.Run(context.Background(), Request{
		Question:     "q",
		SourceType:   "public",
		TargetAgents: []AgentName{"bogus", AgentRisk},
	})

	require.True(t, st.Finalize)
	assert.NotEmpty(t, st.FinalAnswer)
	assert.Equal(t, []AgentName{AgentRisk}, st.TargetAgents)
	assert.Len(t, gen.calls, 1)
	require.NotNil(t, st.RiskOutput)
	assert.Contains(t, st.Errors, "unknown target agents ignored: bogus")
}

func TestRun_AllTargetAgentsUnknownFallsBackToRole(t *testing.T) {
	eng, _, _ := newTestEngine(t, Options{})

	st := eng.Run(context.Background(), Request{
		Question:     "q",
		SourceType:   "public",
		TargetAgent:  "nope",
		TargetAgents: []AgentName{"bogus"},
	})

	require.True(t, st.Finalize)
	assert.NotEmpty(t, st.FinalAnswer)
	// With no direct targets left the public role list applies.
	assert.Equal(t, []AgentName{AgentMarket, AgentStrategy}, st.TargetAgents)
	assert.Contains(t, st.Errors, "unknown target agents ignored: nope, bogus")
}

func TestRun_LegacyAliasRoutesToMarket(t *testing.T) {
	eng, _, _ := newTestEngine(t, Options{})

	st := eng.Run(context.Background(), Request{
		Question:     "q",
		SourceType:   "public",
		TargetAgents: []AgentName{AgentMarketIntel, AgentRisk},
	})

	require.True(t, st.Finalize)
	require.NotNil(t, st.MarketOutput, "market_intel must route to the market agent")
	require.NotNil(t, st.RiskOutput)
	assert.Contains(t, st.FinalAnswer, "Market Intelligence")
}

func TestRun_FinalAnswerSummaryLines(t *testing.T) {
	eng, _, _ := newTestEngine(t, Options{})

	st := eng.Run(context.Background(), Request{Question: "q", SourceType: "public"})

	require.True(t, st.Finalize)
	// public -> market, strategy; one summary line each with context counts.
	assert.Contains(t, st.FinalAnswer, "Market Intelligence")
	assert.Contains(t, st.FinalAnswer, "Strategic Analysis")
	assert.Equal(t, 2, strings.Count(st.FinalAnswer, "[context snippets: 2]"))
	assert.NotContains(t, st.FinalAnswer, "Risk Analysis")
}

func TestRun_MasterRunsAllAgents(t *testing.T) {
	eng, _, gen := newTestEngine(t, Options{})

	st := eng.Run(context.Background(), Request{Question: "q", SourceType: "master"})

	require.True(t, st.Finalize)
	assert.Len(t, gen.calls, 8)
	for _, a := range AnalyticalAgents {
		assert.NotNil(t, st.Output(a), "output expected for %s", a)
	}
	assert.NotNil(t, st.GreenHillResponse)
}

type recordingAudit struct {
	decisions []AuditRecord
	issues    []AuditRecord
	fail      bool
}

func (a *recordingAudit) RecordDecision(_ context.Context, rec AuditRecord) error {
	if a.fail {
		return fmt.Errorf("register unavailable")
	}
	a.decisions = append(a.decisions, rec)
	return nil
}

func (a *recordingAudit) RecordIssue(_ context.Context, rec AuditRecord) error {
	if a.fail {
		return fmt.Errorf("register unavailable")
	}
	a.issues = append(a.issues, rec)
	return nil
}

type recordingArchiver struct {
	items []ArchiveItem
	fail  bool
}

func (r *recordingArchiver) Archive(_ context.Context, items []ArchiveItem) error {
	if r.fail {
		return fmt.Errorf("store unavailable")
	}
	r.items = append(r.items, items...)
	return nil
}

func TestRun_AuditAnnotations(t *testing.T) {
	audit := &recordingAudit{}
	retr := &stubRetriever{snippets: []string{"s"}}
	eng := NewEngine(retr, &stubGenerator{}, Options{Audit: audit}, zaptest.NewLogger(t))

	st := eng.Run(context.Background(), Request{
		Question:   "q",
		SourceType: "public",
		SourceID:   "board-7",
		Metadata: map[string]string{
			MetadataKeyDecision: "approve phase 2 capex",
			MetadataKeyIssue:    "water rights pending",
		},
	})

	require.True(t, st.Finalize)
	require.Len(t, audit.decisions, 1)
	require.Len(t, audit.issues, 1)
	assert.Equal(t, "approve phase 2 capex", audit.decisions[0].Note)
	assert.Equal(t, "board-7", audit.decisions[0].SourceID)
	assert.Equal(t, "water rights pending", audit.issues[0].Note)
}

func TestRun_AuditFailureDoesNotAffectResult(t *testing.T) {
	audit := &recordingAudit{fail: true}
	retr := &stubRetriever{snippets: []string{"s"}}
	eng := NewEngine(retr, &stubGenerator{}, Options{Audit: audit}, zaptest.NewLogger(t))

	st := eng.Run(context.Background(), Request{
		Question:   "q",
		SourceType: "public",
		Metadata:   map[string]string{MetadataKeyDecision: "d"},
	})

	assert.True(t, st.Finalize)
	assert.NotEmpty(t, st.FinalAnswer)
}

func TestRun_ArchiveOutputs(t *testing.T) {
	archiver := &recordingArchiver{}
	retr := &stubRetriever{snippets: []string{"s"}}
	eng := NewEngine(retr, &stubGenerator{},
		Options{Archiver: archiver, ArchiveOutputs: true}, zaptest.NewLogger(t))

	st := eng.Run(context.Background(), Request{Question: "roadmap?", SourceType: "public"})

	require.True(t, st.Finalize)
	require.Len(t, archiver.items, 2) // market + strategy
	for _, item := range archiver.items {
		assert.Equal(t, "roadmap?", item.Question)
		assert.NotEmpty(t, item.Text)
	}
}

func TestRun_ArchiveDisabledByDefault(t *testing.T) {
	archiver := &recordingArchiver{}
	retr := &stubRetriever{snippets: []string{"s"}}
	eng := NewEngine(retr, &stubGenerator{}, Options{Archiver: archiver}, zaptest.NewLogger(t))

	_ = eng.Run(context.Background(), Request{Question: "q", SourceType: "public"})

	assert.Empty(t, archiver.items)
}

type mapCache struct {
	mu sync.Mutex
	m  map[string]string
}

func (c *mapCache) Get(_ context.Context, sourceType, question string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[sourceType+"|"+question]
	return v, ok
}

func (c *mapCache) Set(_ context.Context, sourceType, question, answer string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[sourceType+"|"+question] = answer
}

func TestRun_AnswerCacheShortCircuits(t *testing.T) {
	cache := &mapCache{m: map[string]string{}}
	retr := &stubRetriever{snippets: []string{"s"}}
	gen := &stubGenerator{}
	eng := NewEngine(retr, gen, Options{Cache: cache}, zaptest.NewLogger(t))

	first := eng.Run(context.Background(), Request{Question: "q", SourceType: "public"})
	callsAfterFirst := len(gen.calls)

	second := eng.Run(context.Background(), Request{Question: "q", SourceType: "public"})

	assert.Equal(t, first.FinalAnswer, second.FinalAnswer)
	assert.True(t, second.Finalize)
	assert.Len(t, gen.calls, callsAfterFirst, "cached answer must not run agents")
	assert.Contains(t, second.Notes, "answer served from cache")
}

func TestSetRouting_HotSwap(t *testing.T) {
	eng, _, _ := newTestEngine(t, Options{})

	before := eng.Run(context.Background(), Request{Question: "q", SourceType: "public"})
	require.NotNil(t, before.MarketOutput)
	assert.Nil(t, before.RiskOutput)

	eng.SetRouting(&RoutingTable{
		SourceTypes: map[string][]AgentName{"public": {AgentRisk}},
	})

	after := eng.Run(context.Background(), Request{Question: "q", SourceType: "public"})
	require.NotNil(t, after.RiskOutput)
	assert.Nil(t, after.MarketOutput)
	assert.Equal(t, []AgentName{AgentRisk}, after.TargetAgents)
}
