package twin

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/greenhillcanarias/digital-twin/internal/metrics"
)

// Fixed terminal messages for the two validation paths.
const (
	MsgMissingQuestion     = `Error: Missing "question". Send {"question": "..."} along with source_type.`
	MsgNoAgentsSelected    = "No suitable agents selected. Provide a clearer source_type or question."
	defaultContextTopK     = 5
	defaultAgentContextTop = 3
)

// AnswerCache is an optional collaborator that short-circuits repeated
// questions. Disabled unless wired; misses and failures are silent.
type AnswerCache interface {
	Get(ctx context.Context, sourceType, question string) (string, bool)
	Set(ctx context.Context, sourceType, question, answer string)
}

// Options configures an Engine.
type Options struct {
	// Routing overrides the canonical routing table when non-nil.
	Routing *RoutingTable
	// ContextTopK bounds orchestrator-level retrieval (default 5).
	ContextTopK int
	// AgentTopK bounds each agent's fresh retrieval (default 3).
	AgentTopK int
	// ArchiveOutputs enables pushing agent analyses back into the store.
	ArchiveOutputs bool
	// Audit receives decision/issue register entries (optional).
	Audit AuditRecorder
	// Archiver persists agent outputs (optional; required for archiving).
	Archiver Archiver
	// Cache short-circuits repeated questions (optional).
	Cache AnswerCache
}

// Engine drives one request through the explicit finite-state loop:
// intake/validate -> classify -> agent chain -> finalize -> end. Execution is
// strictly sequential within a request; the only suspension points are the
// retrieval and enhance calls, both awaited before the owning node proceeds.
type Engine struct {
	retriever Retriever
	generator Generator
	opts      Options
	logger    *zap.Logger

	routingMu sync.RWMutex
	routing   *RoutingTable
}

// NewEngine wires an engine. Retriever and generator are required; the rest
// of the options are best-effort collaborators.
func NewEngine(retriever Retriever, generator Generator, opts Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ContextTopK <= 0 {
		opts.ContextTopK = defaultContextTopK
	}
	if opts.AgentTopK <= 0 {
		opts.AgentTopK = defaultAgentContextTop
	}
	return &Engine{
		retriever: retriever,
		generator: generator,
		opts:      opts,
		logger:    logger,
		routing:   opts.Routing,
	}
}

// SetRouting swaps the routing table. Safe under concurrent Run calls;
// in-flight traversals keep the table they classified with.
func (e *Engine) SetRouting(table *RoutingTable) {
	e.routingMu.Lock()
	e.routing = table
	e.routingMu.Unlock()
}

func (e *Engine) currentRouting() *RoutingTable {
	e.routingMu.RLock()
	defer e.routingMu.RUnlock()
	return e.routing
}

// Run executes one full routing traversal and returns the final state. The
// returned state always has Finalize true; the only visible failure modes are
// the two terminal validation paths, both of which produce a well-formed
// result record.
func (e *Engine) Run(ctx context.Context, req Request) *TwinState {
	st := NewState(req)
	start := time.Now()
	metrics.RequestsStarted.WithLabelValues(st.SourceType).Inc()

	e.intake(ctx, st)

	// Router loop: one reusable conditional edge instead of N bespoke ones.
	// The guard bounds the loop against a malformed target list.
	maxSteps := 2*len(st.TargetAgents) + 4
	for steps := 0; steps < maxSteps; steps++ {
		step := Route(st)
		switch step.Kind {
		case StepAgent:
			runAgent(ctx, st, step.Agent, e.retriever, e.generator, e.opts.AgentTopK, e.logger)
		case StepFinalize:
			finalize(ctx, st, e.opts.Audit, e.opts.Archiver, e.opts.ArchiveOutputs, e.logger)
			e.storeCached(ctx, st)
		case StepEnd:
			status := "ok"
			if len(st.Errors) > 0 {
				status = "degraded"
			}
			metrics.RecordRequestMetrics(st.SourceType, status, time.Since(start).Seconds())
			e.logger.Info("Twin traversal completed",
				zap.String("source_type", st.SourceType),
				zap.Int("history_entries", len(st.History)),
				zap.Int("errors", len(st.Errors)),
				zap.Duration("elapsed", time.Since(start)),
			)
			return st
		}
	}

	// Unreachable with a well-formed queue.
	if !st.Finalize {
		st.addError("router exceeded step budget")
		finalize(ctx, st, e.opts.Audit, e.opts.Archiver, e.opts.ArchiveOutputs, e.logger)
	}
	metrics.RecordRequestMetrics(st.SourceType, "degraded", time.Since(start).Seconds())
	return st
}

// intake validates the request, attaches orchestrator-level context, and
// classifies. Exactly one of three paths leaves here armed: validation error
// (terminal), empty classification (terminal), or a non-empty queue with the
// cursor on its head.
func (e *Engine) intake(ctx context.Context, st *TwinState) {
	if st.Question == "" {
		st.Finalize = true
		st.FinalAnswer = MsgMissingQuestion
		st.addError("missing question")
		return
	}

	if answer, ok := e.lookupCached(ctx, st); ok {
		st.Finalize = true
		st.FinalAnswer = answer
		st.Notes = append(st.Notes, "answer served from cache")
		return
	}

	if dropped := st.pruneUnknownTargets(); len(dropped) > 0 {
		names := make([]string, len(dropped))
		for i, a := range dropped {
			names[i] = string(a)
		}
		e.logger.Warn("Dropping unknown target agents", zap.Strings("agents", names))
		st.addError("unknown target agents ignored: " + strings.Join(names, ", "))
	}

	st.Context[ContextKeyRetrievedDocs] = e.retriever.Retrieve(ctx, st.Question, e.opts.ContextTopK)

	targets := Classify(st, e.currentRouting())
	st.TargetAgents = targets
	if len(targets) == 0 {
		st.Finalize = true
		st.FinalAnswer = MsgNoAgentsSelected
		return
	}
	st.NextAgent = targets[0]
}

func (e *Engine) lookupCached(ctx context.Context, st *TwinState) (string, bool) {
	if e.opts.Cache == nil {
		return "", false
	}
	return e.opts.Cache.Get(ctx, st.SourceType, st.Question)
}

func (e *Engine) storeCached(ctx context.Context, st *TwinState) {
	if e.opts.Cache == nil || st.FinalAnswer == "" {
		return
	}
	e.opts.Cache.Set(ctx, st.SourceType, st.Question, st.FinalAnswer)
}
