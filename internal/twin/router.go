package twin

// StepKind is the router's verdict on what runs next.
type StepKind int

const (
	// StepAgent dispatches the named agent.
	StepAgent StepKind = iota
	// StepFinalize runs the finalizer; the cursor fell off the queue.
	StepFinalize
	// StepEnd terminates the traversal.
	StepEnd
)

// Step is the router's decision: either an agent to run, or finalize/end.
type Step struct {
	Kind  StepKind
	Agent AgentName
}

// Route maps the current state to the next node. It is invoked after every
// node, which makes the whole graph one reusable conditional edge:
//
//	finalize set        -> end
//	no next agent       -> finalize
//	known next agent    -> that agent
//	unrecognized agent  -> end (nothing more to do, not an error)
func Route(st *TwinState) Step {
	if st.Finalize {
		return Step{Kind: StepEnd}
	}
	if st.NextAgent == "" {
		return Step{Kind: StepFinalize}
	}
	next := Normalize(st.NextAgent)
	if !Known(next) {
		return Step{Kind: StepEnd}
	}
	return Step{Kind: StepAgent, Agent: next}
}
