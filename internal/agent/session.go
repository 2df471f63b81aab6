// File: internal/agent/session.go
// Description: Session state for one automation run: the objective, the
// append-only turn log, the cancellation flag, and the terminal outcome. All
// mutation goes through this type; readers get deep-copied snapshots.
package agent

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
)

// Session holds the state of a single run. It is safe for concurrent use:
// the loop appends turns while observers snapshot and a signal handler
// cancels.
type Session struct {
	id        string
	objective string
	maxTurns  int
	startedAt time.Time

	cancelled atomic.Bool

	mu      sync.Mutex
	turns   []schemas.Turn
	outcome schemas.Outcome
	failure schemas.FailureKind
	reason  string
}

// Snapshot is a read-only copy of session state at one instant. Mutating a
// snapshot never affects the session it came from.
type Snapshot struct {
	ID        string              `json:"id"`
	Objective string              `json:"objective"`
	StartedAt time.Time           `json:"started_at"`
	Outcome   schemas.Outcome     `json:"outcome"`
	Failure   schemas.FailureKind `json:"failure,omitempty"`
	Reason    string              `json:"reason,omitempty"`
	Turns     []schemas.Turn      `json:"turns"`
}

// NewSession starts a fresh session for the given objective.
func NewSession(objective string, maxTurns int) *Session {
	return &Session{
		id:        uuid.NewString(),
		objective: objective,
		maxTurns:  maxTurns,
		startedAt: time.Now().UTC(),
		outcome:   schemas.OutcomeRunning,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Objective returns the natural-language goal of the run.
func (s *Session) Objective() string { return s.objective }

// MaxTurns returns the configured turn budget.
func (s *Session) MaxTurns() int { return s.maxTurns }

// Cancel requests a graceful stop. Idempotent; the loop honours it at its
// next checkpoint.
func (s *Session) Cancel() { s.cancelled.Store(true) }

// Cancelled reports whether a stop has been requested.
func (s *Session) Cancelled() bool { return s.cancelled.Load() }

// AppendTurn assigns the next index to the turn and appends it to the log.
// The log is append-only; recorded turns are never edited. The stored turn is
// returned with its index filled in.
func (s *Session) AppendTurn(turn schemas.Turn) schemas.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	turn.Index = len(s.turns)
	s.turns = append(s.turns, turn)
	return turn
}

// TurnCount returns the number of recorded turns.
func (s *Session) TurnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

// Finish records the terminal outcome. Only the first call takes effect;
// later calls are ignored so a late fault cannot overwrite the real verdict.
func (s *Session) Finish(outcome schemas.Outcome, failure schemas.FailureKind, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outcome.Terminal() {
		return
	}
	s.outcome = outcome
	s.failure = failure
	s.reason = reason
}

// Outcome returns the session's current outcome, with failure classification
// and a human-readable reason for terminal states.
func (s *Session) Outcome() (schemas.Outcome, schemas.FailureKind, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome, s.failure, s.reason
}

// Snapshot returns a deep copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns := make([]schemas.Turn, len(s.turns))
	for i, turn := range s.turns {
		turns[i] = copyTurn(turn)
	}
	return Snapshot{
		ID:        s.id,
		Objective: s.objective,
		StartedAt: s.startedAt,
		Outcome:   s.outcome,
		Failure:   s.failure,
		Reason:    s.reason,
		Turns:     turns,
	}
}

func copyTurn(turn schemas.Turn) schemas.Turn {
	out := turn
	if turn.Observation != nil {
		obs := *turn.Observation
		obs.PNG = append([]byte(nil), turn.Observation.PNG...)
		out.Observation = &obs
	}
	out.Actions = copyActions(turn.Actions)
	if turn.Results != nil {
		out.Results = make([]schemas.ActionResult, len(turn.Results))
		for i, result := range turn.Results {
			out.Results[i] = result
			out.Results[i].Action = copyAction(result.Action)
		}
	}
	return out
}

func copyActions(actions []schemas.Action) []schemas.Action {
	if actions == nil {
		return nil
	}
	out := make([]schemas.Action, len(actions))
	for i, action := range actions {
		out[i] = copyAction(action)
	}
	return out
}

func copyAction(action schemas.Action) schemas.Action {
	out := action
	if action.Coordinate != nil {
		coord := *action.Coordinate
		out.Coordinate = &coord
	}
	return out
}
