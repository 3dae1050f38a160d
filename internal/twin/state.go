package twin

import "time"

// ContextKeyRetrievedDocs is the fixed key under which the intake step
// attaches orchestrator-level retrieval results for all agents to read.
const ContextKeyRetrievedDocs = "retrieved_docs"

// Message is one history entry: which role wrote it and what it noted.
// History is append-only and never read for control decisions.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AgentOutput is the structured record each agent writes exactly once per run.
type AgentOutput struct {
	// Headline is the one-line lead fact of the analysis.
	Headline string `json:"headline,omitempty"`
	// Timeline is a short horizon statement (e.g. "12-18 months").
	Timeline string `json:"timeline,omitempty"`
	// Initiatives lists the role's recommended focus areas.
	Initiatives []string `json:"initiatives,omitempty"`
	// Analysis is the free-text body.
	Analysis string `json:"analysis"`
	// ContextUsed counts the context snippets incorporated into the analysis.
	ContextUsed int `json:"context_used"`
}

// Request is the inbound shape accepted by the engine and the HTTP API.
type Request struct {
	Question     string            `json:"question,omitempty"`
	SourceType   string            `json:"source_type,omitempty"`
	SourceID     string            `json:"source_id,omitempty"`
	Origin       string            `json:"origin,omitempty"`
	Priority     string            `json:"priority,omitempty"`
	PayloadRef   string            `json:"payload_ref,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	TargetAgent  AgentName         `json:"target_agent,omitempty"`
	TargetAgents []AgentName       `json:"target_agents,omitempty"`
}

// TwinState is the single record threaded through one routing traversal.
// It is created per request, lives for the duration of the traversal and is
// discarded after the caller reads FinalAnswer/Errors.
type TwinState struct {
	SourceType string            `json:"source_type"`
	SourceID   string            `json:"source_id,omitempty"`
	Origin     string            `json:"origin,omitempty"`
	Question   string            `json:"question,omitempty"`
	PayloadRef string            `json:"payload_ref,omitempty"`
	Priority   string            `json:"priority,omitempty"`
	Timestamp  time.Time         `json:"timestamp,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`

	Context map[string][]string `json:"context,omitempty"`
	History []Message           `json:"history,omitempty"`
	Notes   []string            `json:"notes,omitempty"`

	StrategyOutput    *AgentOutput `json:"strategy_output,omitempty"`
	OperationsOutput  *AgentOutput `json:"operations_output,omitempty"`
	FinanceOutput     *AgentOutput `json:"finance_output,omitempty"`
	MarketOutput      *AgentOutput `json:"market_output,omitempty"`
	RiskOutput        *AgentOutput `json:"risk_output,omitempty"`
	ComplianceOutput  *AgentOutput `json:"compliance_output,omitempty"`
	InnovationOutput  *AgentOutput `json:"innovation_output,omitempty"`
	GreenHillResponse *AgentOutput `json:"green_hill_response,omitempty"`

	// TargetAgents is set once (by the classifier or direct-mode injection)
	// and never re-derived; the cursor steps through it by identity lookup.
	TargetAgents []AgentName `json:"target_agents,omitempty"`
	TargetAgent  AgentName   `json:"target_agent,omitempty"`

	CurrentAgent AgentName `json:"current_agent,omitempty"`
	// NextAgent empty with Finalize false means "fell off the end of the
	// queue, proceed to finalize"; Finalize true is explicit termination.
	NextAgent AgentName `json:"next_agent,omitempty"`
	Finalize  bool      `json:"finalize"`

	FinalAnswer string   `json:"final_answer,omitempty"`
	Errors      []string `json:"errors,omitempty"`
}

// NewState builds the per-request state from an inbound request.
func NewState(req Request) *TwinState {
	st := &TwinState{
		SourceType:   req.SourceType,
		SourceID:     req.SourceID,
		Origin:       req.Origin,
		Question:     req.Question,
		PayloadRef:   req.PayloadRef,
		Priority:     req.Priority,
		Timestamp:    time.Now().UTC(),
		Metadata:     req.Metadata,
		Context:      make(map[string][]string),
		TargetAgent:  req.TargetAgent,
		TargetAgents: append([]AgentName(nil), req.TargetAgents...),
	}
	if st.SourceType == "" {
		st.SourceType = "public"
	}
	if st.Priority == "" {
		st.Priority = "normal"
	}
	if st.Metadata == nil {
		st.Metadata = map[string]string{}
	}
	return st
}

// RetrievedDocs returns the orchestrator-level context snippets.
func (s *TwinState) RetrievedDocs() []string {
	return s.Context[ContextKeyRetrievedDocs]
}

// pruneUnknownTargets drops caller-supplied target identifiers that do not
// name a routable agent and returns the dropped names. After it runs, every
// remaining target resolves to an output slot.
func (s *TwinState) pruneUnknownTargets() []AgentName {
	var dropped []AgentName
	if s.TargetAgent != "" && !Known(s.TargetAgent) {
		dropped = append(dropped, s.TargetAgent)
		s.TargetAgent = ""
	}
	kept := s.TargetAgents[:0]
	for _, a := range s.TargetAgents {
		if Known(a) {
			kept = append(kept, a)
		} else {
			dropped = append(dropped, a)
		}
	}
	s.TargetAgents = kept
	return dropped
}

// Output returns the output record for agent a, or nil if that agent has not
// run. The slot is resolved by an explicit switch keyed on the canonical
// identifier rather than by reflective field lookup.
func (s *TwinState) Output(a AgentName) *AgentOutput {
	if slot := s.outputSlot(a); slot != nil {
		return *slot
	}
	return nil
}

func (s *TwinState) setOutput(a AgentName, out *AgentOutput) {
	if slot := s.outputSlot(a); slot != nil {
		*slot = out
	}
}

func (s *TwinState) outputSlot(a AgentName) **AgentOutput {
	switch Normalize(a) {
	case AgentStrategy:
		return &s.StrategyOutput
	case AgentOperations:
		return &s.OperationsOutput
	case AgentFinance:
		return &s.FinanceOutput
	case AgentMarket:
		return &s.MarketOutput
	case AgentRisk:
		return &s.RiskOutput
	case AgentCompliance:
		return &s.ComplianceOutput
	case AgentInnovation:
		return &s.InnovationOutput
	case AgentGreenHill:
		return &s.GreenHillResponse
	}
	return nil
}

func (s *TwinState) appendHistory(role AgentName, note string) {
	s.History = append(s.History, Message{Role: string(role), Content: note})
}

func (s *TwinState) addError(msg string) {
	s.Errors = append(s.Errors, msg)
}
