package schemas

import "errors"

// -- Error Taxonomy --
//
// Every failure the loop can encounter maps to exactly one of these sentinel
// errors. Components wrap them with context (fmt.Errorf + %w) so callers can
// branch with errors.Is while logs keep the detail.

var (
	// ErrCapture indicates the screen could not be captured (empty image,
	// protocol failure, dead transport).
	ErrCapture = errors.New("screen capture failed")

	// ErrCaptureTimeout indicates a capture did not complete within its
	// deadline.
	ErrCaptureTimeout = errors.New("screen capture timed out")

	// ErrOutOfBounds indicates an action's coordinates fall outside the last
	// known screen bounds. The host is never invoked for such an action.
	ErrOutOfBounds = errors.New("action coordinates out of bounds")

	// ErrInputTimeout indicates an input action did not complete within its
	// deadline.
	ErrInputTimeout = errors.New("input synthesis timed out")

	// ErrMalformedAction indicates an action failed shape validation (missing
	// coordinate, control characters in a type payload, unknown kind).
	ErrMalformedAction = errors.New("malformed action")

	// ErrModelResponse indicates the model returned something that could not
	// be parsed into actions or a completion signal.
	ErrModelResponse = errors.New("malformed model response")

	// ErrModelTimeout indicates a model call did not complete within its
	// deadline.
	ErrModelTimeout = errors.New("model call timed out")

	// ErrSessionLimit indicates the turn budget was reached before the model
	// signalled completion. A designed terminal condition, not a fault.
	ErrSessionLimit = errors.New("session turn limit reached")
)

// FailureKind is the stable, machine-readable classification recorded in
// ActionResults and surfaced to the presentation layer.
type FailureKind string

const (
	FailureNone         FailureKind = ""
	FailCapture         FailureKind = "CAPTURE_ERROR"
	FailCaptureTimeout  FailureKind = "CAPTURE_TIMEOUT"
	FailOutOfBounds     FailureKind = "OUT_OF_BOUNDS_ACTION"
	FailInputTimeout    FailureKind = "INPUT_TIMEOUT"
	FailMalformedAction FailureKind = "MALFORMED_ACTION"
	FailModelResponse   FailureKind = "MODEL_RESPONSE_ERROR"
	FailModelTimeout    FailureKind = "MODEL_CALL_TIMEOUT"
	FailSessionLimit    FailureKind = "SESSION_LIMIT_EXCEEDED"
	FailExecution       FailureKind = "EXECUTION_FAILURE"
)

// ClassifyFailure maps an error chain to its FailureKind. Unknown errors fall
// through to FailExecution so nothing escapes the taxonomy.
func ClassifyFailure(err error) FailureKind {
	switch {
	case err == nil:
		return FailureNone
	case errors.Is(err, ErrCaptureTimeout):
		return FailCaptureTimeout
	case errors.Is(err, ErrCapture):
		return FailCapture
	case errors.Is(err, ErrOutOfBounds):
		return FailOutOfBounds
	case errors.Is(err, ErrInputTimeout):
		return FailInputTimeout
	case errors.Is(err, ErrMalformedAction):
		return FailMalformedAction
	case errors.Is(err, ErrModelTimeout):
		return FailModelTimeout
	case errors.Is(err, ErrModelResponse):
		return FailModelResponse
	case errors.Is(err, ErrSessionLimit):
		return FailSessionLimit
	default:
		return FailExecution
	}
}

// IsLocalFailure reports whether a failure is confined to a single action:
// the turn records it and the loop continues rather than aborting the session.
func IsLocalFailure(kind FailureKind) bool {
	switch kind {
	case FailOutOfBounds, FailMalformedAction, FailInputTimeout, FailExecution:
		return true
	}
	return false
}
