// File: internal/host/host.go
// Description: The host boundary. A Conn is a live connection to the surface
// being automated: it dispatches raw input events and captures frames, nothing
// more. Policy (pacing, retries, coordinate scaling) lives in the synthesizer
// and capturer built on top of it.
package host

import (
	"context"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
)

// MouseType is the raw mouse event type, using Chrome DevTools Protocol
// spellings so the CDP transport passes them through untranslated.
type MouseType string

const (
	MousePressed  MouseType = "mousePressed"
	MouseReleased MouseType = "mouseReleased"
	MouseMoved    MouseType = "mouseMoved"
	MouseWheel    MouseType = "mouseWheel"
)

// Modifier is a bitmask of held modifier keys. The bit values match the CDP
// input domain.
type Modifier int

const (
	ModAlt   Modifier = 1 << iota // 1
	ModCtrl                       // 2
	ModMeta                       // 4
	ModShift                      // 8
)

// MouseEvent is one raw pointer event in physical screen pixels.
type MouseEvent struct {
	Type       MouseType
	X, Y       float64
	Button     schemas.MouseButton
	ClickCount int
	// Buttons is the bitfield of buttons held during the event (bit 0 left,
	// bit 1 right, bit 2 middle). Used on move events mid-drag.
	Buttons int64
	// DeltaX/DeltaY apply to wheel events only, in pixels.
	DeltaX, DeltaY float64
	Modifiers      Modifier
}

// KeyEvent is one raw keyboard transition. Key carries the DOM key value
// ("Enter", "a"); Text the produced character for printable keys; the virtual
// key code helps hosts that key accelerators off it.
type KeyEvent struct {
	Down                  bool
	Key                   string
	Text                  string
	WindowsVirtualKeyCode int
	Modifiers             Modifier
}

// Conn is a live connection to the automated surface. Implementations must
// honour the context on every call and must not retry internally; budgets are
// the caller's concern.
type Conn interface {
	// DispatchMouse delivers a single pointer event.
	DispatchMouse(ctx context.Context, ev MouseEvent) error

	// PressKey delivers a single keyboard transition.
	PressKey(ctx context.Context, ev KeyEvent) error

	// InsertText inserts a string as if typed, without synthesizing per-key
	// events. Used for characters with no key code mapping.
	InsertText(ctx context.Context, text string) error

	// Screenshot returns the current frame as encoded PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)

	// ScreenSize reports the current physical resolution of the surface.
	ScreenSize(ctx context.Context) (schemas.Size, error)

	// Close tears the connection down, releasing any launched processes.
	Close(ctx context.Context) error
}
