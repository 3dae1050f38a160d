package twin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/greenhillcanarias/digital-twin/internal/metrics"
	"github.com/greenhillcanarias/digital-twin/internal/util"
)

// Retriever supplies context snippets for a query. Implementations must never
// return an empty sequence and never fail past their boundary.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) []string
}

// Generator is the enhance capability: an external text-generation call that
// degrades gracefully. Implementations always return usable text.
type Generator interface {
	Enhance(ctx context.Context, instruction, content string) string
}

const headlineMaxLen = 160

// roleProfile parameterizes the single agent behavior per role.
type roleProfile struct {
	title       string
	queryPrefix string
	instruction string
	timeline    string
	initiatives []string
}

var roleProfiles = map[AgentName]roleProfile{
	AgentStrategy: {
		title:       "Strategic Analysis",
		queryPrefix: "strategy planning vision",
		instruction: "You are the strategy expert for Green Hill Canarias, a strategic business development project in the Canary Islands. Analyze strategic opportunities and positioning. Provide concise, actionable insights.",
		timeline:    "3-5 year horizon",
		initiatives: []string{
			"Market expansion and positioning in the Atlantic region",
			"Strategic partnerships and alliance opportunities",
			"Competitive advantages and differentiation",
			"Long-term vision and growth roadmap",
		},
	},
	AgentOperations: {
		title:       "Operations Analysis",
		queryPrefix: "operations processes efficiency",
		instruction: "You are the operations expert for Green Hill Canarias. Analyze operational requirements and optimization. Provide concise, actionable insights.",
		timeline:    "6-12 month horizon",
		initiatives: []string{
			"Process automation and workflow optimization",
			"Resource allocation and efficiency metrics",
			"Supply chain and logistics management",
			"Infrastructure scalability and capacity planning",
		},
	},
	AgentFinance: {
		title:       "Financial Analysis",
		queryPrefix: "finance investment funding",
		instruction: "You are the finance expert for Green Hill Canarias. Analyze financial implications and investment opportunities. Provide concise, actionable insights.",
		timeline:    "12-24 month horizon",
		initiatives: []string{
			"ROI optimization and investment strategies",
			"Funding mechanisms and capital structure",
			"Cost-benefit analysis and financial modeling",
			"Cash flow management and liquidity planning",
		},
	},
	AgentMarket: {
		title:       "Market Intelligence",
		queryPrefix: "market research competition canary islands",
		instruction: "You are the market intelligence expert for Green Hill Canarias. Analyze market opportunities and the competitive landscape. Provide concise, actionable insights.",
		timeline:    "6-18 month horizon",
		initiatives: []string{
			"Market size, growth potential, and trends",
			"Competitive landscape and positioning",
			"Customer segments and value propositions",
			"Canary Islands specific market dynamics",
		},
	},
	AgentRisk: {
		title:       "Risk Analysis",
		queryPrefix: "risk assessment mitigation",
		instruction: "You are the risk expert for Green Hill Canarias. Analyze risks and mitigation strategies. Provide concise, actionable insights.",
		timeline:    "continuous monitoring",
		initiatives: []string{
			"Market and operational risk assessment",
			"Regulatory and compliance risks",
			"Financial and liquidity risks",
			"Environmental and climate considerations",
		},
	},
	AgentCompliance: {
		title:       "Compliance Analysis",
		queryPrefix: "compliance regulatory legal spain eu",
		instruction: "You are the compliance expert for Green Hill Canarias. Analyze compliance and regulatory requirements. Provide concise, actionable insights.",
		timeline:    "regulatory calendar",
		initiatives: []string{
			"Spanish and EU regulatory requirements",
			"Canary Islands special economic zone benefits",
			"Environmental and sustainability compliance",
			"Data protection and privacy regulations",
		},
	},
	AgentInnovation: {
		title:       "Innovation Analysis",
		queryPrefix: "innovation technology digital transformation",
		instruction: "You are the innovation expert for Green Hill Canarias. Analyze innovation opportunities and technology applications. Provide concise, actionable insights.",
		timeline:    "18-36 month horizon",
		initiatives: []string{
			"Digital transformation opportunities",
			"Emerging technology applications",
			"Sustainability and green technology",
			"AI and automation integration",
		},
	},
	AgentGreenHill: {
		title:       "Executive Synthesis",
		queryPrefix: "green hill canarias executive priorities",
		instruction: "You are GreenHillGPT, the executive voice of Green Hill Canarias. Synthesize the prior analyses into an executive memo with clear recommendations.",
		timeline:    "decision-ready",
		initiatives: []string{
			"Cross-domain priorities and sequencing",
			"Decision points requiring board attention",
		},
	},
}

// runAgent executes one agent node: fresh retrieval for a role-specific
// sub-query, an enhance call, one output record, one history append, and
// cursor advance. It never fails past its boundary; any internal panic is
// converted into a degraded but well-shaped output so the router always has
// a consistent state to act on.
func runAgent(ctx context.Context, st *TwinState, name AgentName, retriever Retriever, generator Generator, topK int, logger *zap.Logger) {
	agent := Normalize(name)
	profile := roleProfiles[agent]
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Agent panicked, recording degraded output",
				zap.String("agent", string(agent)), zap.Any("panic", r))
			st.addError(fmt.Sprintf("%s: internal error: %v", agent, r))
			if st.Output(agent) == nil {
				st.setOutput(agent, &AgentOutput{
					Timeline:    profile.timeline,
					Initiatives: profile.initiatives,
					Analysis:    fmt.Sprintf("Analysis unavailable for %q: internal error.", st.Question),
				})
				st.appendHistory(agent, profile.title+" degraded")
			}
			st.CurrentAgent = agent
			st.NextAgent = nextAfter(st.TargetAgents, agent)
		}
		metrics.RecordAgentMetrics(string(agent), float64(time.Since(start).Milliseconds()))
	}()

	subQuery := strings.TrimSpace(profile.queryPrefix + " " + st.Question)
	snippets := retriever.Retrieve(ctx, subQuery, topK)

	content := buildAgentContent(st, agent, snippets)
	analysis := generator.Enhance(ctx, profile.instruction, content)

	st.setOutput(agent, &AgentOutput{
		Headline:    util.TruncateString(util.FirstLine(analysis), headlineMaxLen, true),
		Timeline:    profile.timeline,
		Initiatives: profile.initiatives,
		Analysis:    analysis,
		ContextUsed: len(snippets),
	})
	st.appendHistory(agent, profile.title+" completed")
	st.CurrentAgent = agent
	st.NextAgent = nextAfter(st.TargetAgents, agent)

	logger.Debug("Agent completed",
		zap.String("agent", string(agent)),
		zap.Int("context_used", len(snippets)),
		zap.String("next_agent", string(st.NextAgent)),
	)
}

// buildAgentContent assembles the enhance payload: the question, the agent's
// fresh context, and headlines from agents that already ran (the chain is
// serialized precisely so later agents can read earlier outputs).
func buildAgentContent(st *TwinState, self AgentName, snippets []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", st.Question)

	if len(snippets) > 0 {
		b.WriteString("\nContext:\n")
		for _, s := range snippets {
			b.WriteString("- ")
			b.WriteString(util.TruncateString(s, 400, true))
			b.WriteString("\n")
		}
	}

	var prior []string
	for _, a := range AnalyticalAgents {
		if a == self {
			continue
		}
		if out := st.Output(a); out != nil && out.Headline != "" {
			prior = append(prior, fmt.Sprintf("%s: %s", a, out.Headline))
		}
	}
	if len(prior) > 0 {
		b.WriteString("\nPrior findings:\n")
		for _, p := range prior {
			b.WriteString("- ")
			b.WriteString(p)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// nextAfter looks up self in targets by normalized identity and returns the
// following entry. Empty means self was last or absent: proceed to finalize,
// not an error.
func nextAfter(targets []AgentName, self AgentName) AgentName {
	want := Normalize(self)
	for i, t := range targets {
		if Normalize(t) == want {
			if i+1 < len(targets) {
				return targets[i+1]
			}
			return ""
		}
	}
	return ""
}
