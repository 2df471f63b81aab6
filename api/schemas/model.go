package schemas

// -- Model Boundary Schemas --

// DecisionRequest is everything the planner needs to ask the model for the
// next batch of actions: the objective, the turn history so far, and the
// observation the model should ground its decision in.
type DecisionRequest struct {
	Objective   string
	History     []Turn
	Observation *Observation
}

// ModelDecision is the parsed form of one model response: zero or more typed
// actions in emitted order, or a completion signal. Raw preserves the exact
// response text for the audit trail.
type ModelDecision struct {
	Raw     string
	Actions []Action
	Done    bool
	Summary string
}
