package twin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Metadata annotation keys that trigger audit side effects at finalization.
const (
	MetadataKeyDecision = "decision"
	MetadataKeyIssue    = "issue"
)

// AuditRecord is one entry appended to a register when a run carried a
// decision or issue annotation.
type AuditRecord struct {
	SourceType string
	SourceID   string
	Question   string
	Note       string
	Timestamp  time.Time
}

// AuditRecorder appends structured records to the two independent logical
// registers. Both writes are best-effort from the finalizer's point of view.
type AuditRecorder interface {
	RecordDecision(ctx context.Context, rec AuditRecord) error
	RecordIssue(ctx context.Context, rec AuditRecord) error
}

// ArchiveItem is one agent analysis pushed back into the retrieval store.
type ArchiveItem struct {
	Agent    string
	Question string
	Text     string
}

// Archiver persists agent outputs for future retrieval. Implementations chunk
// and embed; failures stay inside the implementation.
type Archiver interface {
	Archive(ctx context.Context, items []ArchiveItem) error
}

// summaryOrder fixes the composite answer's section order.
var summaryOrder = []struct {
	agent AgentName
	title string
}{
	{AgentStrategy, "Strategic Analysis"},
	{AgentOperations, "Operations Analysis"},
	{AgentFinance, "Financial Analysis"},
	{AgentMarket, "Market Intelligence"},
	{AgentRisk, "Risk Analysis"},
	{AgentCompliance, "Compliance Analysis"},
	{AgentInnovation, "Innovation Analysis"},
	{AgentGreenHill, "Executive Synthesis"},
}

// finalize merges all produced output records into the composite answer and
// fires the best-effort side effects. It is the terminal node: it sets
// FinalAnswer and Finalize unconditionally, and no agent runs after it.
func finalize(ctx context.Context, st *TwinState, audit AuditRecorder, archiver Archiver, archiveEnabled bool, logger *zap.Logger) {
	var b strings.Builder
	b.WriteString("# Green Hill Canarias Digital Twin Analysis\n\n")
	fmt.Fprintf(&b, "**Question:** %s\n\n", st.Question)
	b.WriteString("## Executive Summary\n")
	b.WriteString("Multi-agent analysis across the selected business domains:\n\n")

	for _, entry := range summaryOrder {
		out := st.Output(entry.agent)
		if out == nil {
			// Absent means the agent was not selected for this run.
			continue
		}
		headline := out.Headline
		if headline == "" {
			headline = "analysis recorded"
		}
		fmt.Fprintf(&b, "- **%s** (%s): %s [context snippets: %d]\n",
			entry.title, entry.agent, headline, out.ContextUsed)
	}

	b.WriteString("\n## Integrated Recommendations\n")
	b.WriteString("The analyses above are interdependent; implementation planning should prioritize high-impact, low-risk initiatives first.\n")
	b.WriteString("\n---\n*Generated by the Green Hill Canarias Digital Twin*\n")

	st.FinalAnswer = b.String()
	st.Finalize = true
	st.appendHistory(AgentGreenHill, "final synthesis recorded")

	recordAnnotations(ctx, st, audit, logger)
	archiveOutputs(ctx, st, archiver, archiveEnabled, logger)
}

// recordAnnotations appends decision/issue register entries. Failures are
// logged and swallowed; they never affect FinalAnswer or Finalize.
func recordAnnotations(ctx context.Context, st *TwinState, audit AuditRecorder, logger *zap.Logger) {
	if audit == nil {
		return
	}
	rec := AuditRecord{
		SourceType: st.SourceType,
		SourceID:   st.SourceID,
		Question:   st.Question,
		Timestamp:  time.Now().UTC(),
	}
	if note, ok := st.Metadata[MetadataKeyDecision]; ok && note != "" {
		rec.Note = note
		if err := audit.RecordDecision(ctx, rec); err != nil {
			logger.Warn("Decision register write failed", zap.Error(err))
		}
	}
	if note, ok := st.Metadata[MetadataKeyIssue]; ok && note != "" {
		rec.Note = note
		if err := audit.RecordIssue(ctx, rec); err != nil {
			logger.Warn("Issue register write failed", zap.Error(err))
		}
	}
}

// archiveOutputs pushes each non-empty agent analysis back into the retrieval
// store, tagged with the agent identifier and originating question. This is
// the one place the core writes to the store rather than only reading it.
func archiveOutputs(ctx context.Context, st *TwinState, archiver Archiver, enabled bool, logger *zap.Logger) {
	if !enabled || archiver == nil {
		return
	}
	var items []ArchiveItem
	for _, entry := range summaryOrder {
		if out := st.Output(entry.agent); out != nil && strings.TrimSpace(out.Analysis) != "" {
			items = append(items, ArchiveItem{
				Agent:    string(entry.agent),
				Question: st.Question,
				Text:     out.Analysis,
			})
		}
	}
	if len(items) == 0 {
		return
	}
	if err := archiver.Archive(ctx, items); err != nil {
		logger.Warn("Output archive failed", zap.Error(err), zap.Int("items", len(items)))
	}
}
