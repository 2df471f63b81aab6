package schemas

import "time"

// -- Observation / Turn Schemas --

// Observation is one captured frame of the screen plus the metadata the loop
// needs to validate coordinates against it. Observations are immutable: they
// are created by the capturer, owned by the Turn that recorded them, and never
// written to afterwards.
type Observation struct {
	ID         string    `json:"id"`
	CapturedAt time.Time `json:"captured_at"`

	// PNG holds the encoded frame exactly as captured.
	PNG []byte `json:"-"`

	// Grid is the model-space coordinate system the frame was letterboxed
	// into; all action coordinates are validated against it.
	Grid Size `json:"grid"`

	// Screen is the physical resolution at capture time.
	Screen Size `json:"screen"`
}

// ActionStatus records what happened to one action within a turn.
type ActionStatus string

const (
	StatusExecuted ActionStatus = "executed"
	StatusFailed   ActionStatus = "failed"
	// StatusSkipped marks actions short-circuited after an earlier failure in
	// the same model response.
	StatusSkipped ActionStatus = "skipped"
)

// ActionResult is the typed outcome of dispatching a single action. Failures
// never propagate as Go errors past the executor; they are folded into this
// structure so the orchestrator can make retry/abort decisions uniformly.
type ActionResult struct {
	Action  Action       `json:"action"`
	Status  ActionStatus `json:"status"`
	Failure FailureKind  `json:"failure,omitempty"`
	Error   string       `json:"error,omitempty"`
	// Output carries a small textual result for query actions such as
	// cursor_position.
	Output   string        `json:"output,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// OK reports whether the action executed successfully.
func (r ActionResult) OK() bool { return r.Status == StatusExecuted }

// Turn is one observe->decide->act cycle: the observation the model saw, the
// model's raw and parsed response, and the outcome of each dispatched action.
// Turns are append-only; once recorded in a session they are never edited.
type Turn struct {
	Index       int            `json:"index"`
	Observation *Observation   `json:"observation"`
	RawResponse string         `json:"raw_response"`
	Actions     []Action       `json:"actions"`
	Results     []ActionResult `json:"results"`
	// Done is set when the model signalled completion in this turn.
	Done      bool      `json:"done,omitempty"`
	Summary   string    `json:"summary,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// Outcome is the terminal state of a session. The four non-running values are
// deliberately distinct so a consumer can tell a clean finish from a
// cancellation, a fault, and an exhausted turn budget.
type Outcome string

const (
	OutcomeRunning       Outcome = "RUNNING"
	OutcomeCompleted     Outcome = "COMPLETED"
	OutcomeCancelled     Outcome = "CANCELLED"
	OutcomeFailed        Outcome = "FAILED"
	OutcomeLimitExceeded Outcome = "LIMIT_EXCEEDED"
)

// Terminal reports whether the outcome ends the loop.
func (o Outcome) Terminal() bool { return o != OutcomeRunning && o != "" }
