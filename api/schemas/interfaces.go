package schemas

import "context"

// -- Core Service Interfaces --
//
// The loop's collaborators are defined here, away from their implementations,
// so the agent package depends only on contracts and tests can substitute
// fakes freely.

// Synthesizer translates one validated input action into host input events.
// Apply is not idempotent: repeating a click is a distinct physical event.
// Implementations must honour the context deadline and surface expiry as
// ErrInputTimeout.
type Synthesizer interface {
	Apply(ctx context.Context, action Action) error
}

// Capturer produces a still image of the current screen contents on demand.
// Implementations must complete within the context deadline, surfacing expiry
// as ErrCaptureTimeout rather than blocking, and must never return an empty
// frame without an error.
type Capturer interface {
	Capture(ctx context.Context) (*Observation, error)
}

// Planner is the model boundary: it serializes the turn history, calls the
// model, and parses the reply. Malformed or partial replies surface as
// ErrModelResponse; deadline expiry as ErrModelTimeout.
type Planner interface {
	Decide(ctx context.Context, req DecisionRequest) (*ModelDecision, error)
}

// TurnSink receives each turn after it is appended to the session. Sinks are
// best-effort: a sink error is logged, never allowed to fail the turn.
type TurnSink interface {
	RecordTurn(ctx context.Context, sessionID string, turn Turn) error
}
