package schemas

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// -- Action Schemas --

// ActionKind enumerates every action the model may request. The vocabulary is
// closed: the executor dispatches with an exhaustive switch, and anything
// outside this set is rejected as malformed before it reaches the host.
type ActionKind string

const (
	// -- Pointer --
	ActionMove   ActionKind = "mouse_move" // Moves the cursor to a coordinate.
	ActionClick  ActionKind = "click"      // Presses and releases a mouse button at a coordinate.
	ActionDrag   ActionKind = "drag"       // Holds the left button and drags from the current position to a coordinate.
	ActionScroll ActionKind = "scroll"     // Scrolls the wheel at a coordinate.

	// -- Keyboard --
	ActionType ActionKind = "type" // Types a literal text payload.
	ActionKey  ActionKind = "key"  // Presses a key chord, e.g. "ctrl+shift+t" or "Return".

	// -- Observation --
	ActionScreenshot ActionKind = "screenshot"      // Captures the current screen contents.
	ActionCursor     ActionKind = "cursor_position" // Reports the current cursor position.

	// -- Control --
	ActionWait ActionKind = "wait" // Pauses briefly to let the screen settle.
)

// MouseButton identifies a mouse button. The strings align with the CDP input
// domain so they can be passed through without translation.
type MouseButton string

const (
	ButtonLeft   MouseButton = "left"
	ButtonRight  MouseButton = "right"
	ButtonMiddle MouseButton = "middle"
)

// Point is a coordinate in the model-space grid (origin top-left).
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Size describes a width/height pair, either the model-space grid or physical
// screen pixels depending on context.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Contains reports whether p lies within [0,Width) x [0,Height).
func (s Size) Contains(p Point) bool {
	return p.X >= 0 && p.X < s.Width && p.Y >= 0 && p.Y < s.Height
}

// Empty reports whether the size has no area.
func (s Size) Empty() bool {
	return s.Width <= 0 || s.Height <= 0
}

// Action is a single step requested by the model. It is a flat tagged variant:
// Kind selects the case and determines which of the remaining fields apply.
type Action struct {
	ID   string     `json:"id,omitempty"`
	Kind ActionKind `json:"action"`

	// Coordinate is required for mouse_move, click, drag and scroll. All
	// coordinates are in model space, validated against the latest
	// observation's grid before dispatch.
	Coordinate *Point `json:"coordinate,omitempty"`

	// Button and ClickCount apply to click. Button defaults to left,
	// ClickCount to 1 (a double click is ClickCount 2).
	Button     MouseButton `json:"button,omitempty"`
	ClickCount int         `json:"click_count,omitempty"`

	// Text carries the payload for type, and the chord for key.
	Text string `json:"text,omitempty"`

	// DeltaX/DeltaY are wheel ticks for scroll; positive Y scrolls down.
	DeltaX int `json:"delta_x,omitempty"`
	DeltaY int `json:"delta_y,omitempty"`

	// DurationMs bounds a wait action.
	DurationMs int `json:"duration_ms,omitempty"`

	// Thought is the model's stated reasoning for this step. Recorded for the
	// audit trail, never interpreted.
	Thought string `json:"thought,omitempty"`
}

// maxWaitMs caps a single wait action so a confused model cannot stall the
// loop indefinitely.
const maxWaitMs = 5000

// IsInput reports whether the action mutates host input state and therefore
// routes to the Input Synthesizer rather than the Screen Capturer.
func (a Action) IsInput() bool {
	switch a.Kind {
	case ActionMove, ActionClick, ActionDrag, ActionScroll, ActionType, ActionKey, ActionCursor, ActionWait:
		return true
	}
	return false
}

// NeedsCoordinate reports whether the action kind requires a coordinate.
func (a Action) NeedsCoordinate() bool {
	switch a.Kind {
	case ActionMove, ActionClick, ActionDrag, ActionScroll:
		return true
	}
	return false
}

// Validate checks the action's shape and its coordinates against the given
// grid. Shape problems yield ErrMalformedAction, coordinate problems
// ErrOutOfBounds. Validation never touches the host.
func (a Action) Validate(grid Size) error {
	switch a.Kind {
	case ActionMove, ActionClick, ActionDrag, ActionScroll,
		ActionType, ActionKey, ActionScreenshot, ActionCursor, ActionWait:
	default:
		return fmt.Errorf("%w: unknown action kind %q", ErrMalformedAction, a.Kind)
	}

	if a.NeedsCoordinate() {
		if a.Coordinate == nil {
			return fmt.Errorf("%w: %s requires a coordinate", ErrMalformedAction, a.Kind)
		}
		if grid.Empty() {
			return fmt.Errorf("%w: no screen bounds known", ErrOutOfBounds)
		}
		if !grid.Contains(*a.Coordinate) {
			return fmt.Errorf("%w: (%d,%d) outside %dx%d", ErrOutOfBounds,
				a.Coordinate.X, a.Coordinate.Y, grid.Width, grid.Height)
		}
	}

	switch a.Kind {
	case ActionType:
		if a.Text == "" {
			return fmt.Errorf("%w: type requires text", ErrMalformedAction)
		}
		if !utf8.ValidString(a.Text) {
			return fmt.Errorf("%w: type payload is not valid UTF-8", ErrMalformedAction)
		}
		for _, r := range a.Text {
			// Control characters must be expressed as key actions so they are
			// explicit in the audit trail.
			if unicode.IsControl(r) {
				return fmt.Errorf("%w: control character %q in type payload, use a key action", ErrMalformedAction, r)
			}
		}
	case ActionKey:
		if a.Text == "" {
			return fmt.Errorf("%w: key requires a chord in text", ErrMalformedAction)
		}
	case ActionClick:
		switch a.Button {
		case "", ButtonLeft, ButtonRight, ButtonMiddle:
		default:
			return fmt.Errorf("%w: unknown mouse button %q", ErrMalformedAction, a.Button)
		}
		if a.ClickCount < 0 || a.ClickCount > 3 {
			return fmt.Errorf("%w: click_count %d out of range", ErrMalformedAction, a.ClickCount)
		}
	case ActionScroll:
		if a.DeltaX == 0 && a.DeltaY == 0 {
			return fmt.Errorf("%w: scroll requires a non-zero delta", ErrMalformedAction)
		}
	case ActionWait:
		if a.DurationMs < 0 || a.DurationMs > maxWaitMs {
			return fmt.Errorf("%w: wait duration %dms out of range (0..%d)", ErrMalformedAction, a.DurationMs, maxWaitMs)
		}
	}
	return nil
}

// EffectiveButton returns the button for a click, defaulting to left.
func (a Action) EffectiveButton() MouseButton {
	if a.Button == "" {
		return ButtonLeft
	}
	return a.Button
}

// EffectiveClickCount returns the click count, defaulting to a single click.
func (a Action) EffectiveClickCount() int {
	if a.ClickCount <= 0 {
		return 1
	}
	return a.ClickCount
}
