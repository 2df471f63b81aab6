// File: internal/synth/synth.go
// Description: The input synthesizer. It turns one validated action into the
// host input events that realize it: paced key events for typing, eased paths
// for pointer movement, press/hold/release sequences for clicks. Coordinates
// arrive in model space and are mapped to screen pixels here.
package synth

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
	"github.com/xkilldash9x/marionette-cli/internal/config"
	"github.com/xkilldash9x/marionette-cli/internal/display"
	"github.com/xkilldash9x/marionette-cli/internal/host"
)

// buttonBits maps a button to its CDP "buttons" bitfield value.
var buttonBits = map[schemas.MouseButton]int64{
	schemas.ButtonLeft:   1,
	schemas.ButtonRight:  2,
	schemas.ButtonMiddle: 4,
}

// wheelTickPx is the pixel delta dispatched per requested scroll tick.
const wheelTickPx = 100

// Synth synthesizes input against a host connection. It tracks the cursor
// position itself because the host protocol has no cursor query.
type Synth struct {
	conn   host.Conn
	cfg    config.InputConfig
	grid   schemas.Size
	logger *zap.Logger

	mu     sync.Mutex
	pace   *pacer
	scaler *display.Scaler
	// pos is the tracked cursor position in screen pixels.
	pos schemas.Point
}

var _ schemas.Synthesizer = (*Synth)(nil)

// New builds a synthesizer over conn. grid is the model-space coordinate grid
// actions are expressed in; a zero grid selects the display default.
func New(conn host.Conn, cfg config.InputConfig, grid schemas.Size, logger *zap.Logger) *Synth {
	return newSeeded(conn, cfg, grid, logger, time.Now().UnixNano())
}

func newSeeded(conn host.Conn, cfg config.InputConfig, grid schemas.Size, logger *zap.Logger, seed int64) *Synth {
	return &Synth{
		conn:   conn,
		cfg:    cfg,
		grid:   grid,
		logger: logger.Named("synth"),
		pace:   newPacer(cfg, seed),
	}
}

// Apply implements schemas.Synthesizer. The configured action timeout applies
// on top of any caller deadline; expiry surfaces as ErrInputTimeout.
func (s *Synth) Apply(ctx context.Context, action schemas.Action) error {
	opCtx, cancel := context.WithTimeout(ctx, s.cfg.ActionTimeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.apply(opCtx, action)
	if err != nil && opCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		s.logger.Debug("Input action timed out.",
			zap.String("kind", string(action.Kind)),
			zap.Duration("timeout", s.cfg.ActionTimeout))
		return fmt.Errorf("%w: %s did not complete within %v",
			schemas.ErrInputTimeout, action.Kind, s.cfg.ActionTimeout)
	}
	return err
}

func (s *Synth) apply(ctx context.Context, action schemas.Action) error {
	if action.NeedsCoordinate() && action.Coordinate == nil {
		return fmt.Errorf("%w: %s requires a coordinate", schemas.ErrMalformedAction, action.Kind)
	}

	switch action.Kind {
	case schemas.ActionMove:
		target, err := s.toScreen(ctx, *action.Coordinate)
		if err != nil {
			return err
		}
		return s.moveTo(ctx, target, 0)

	case schemas.ActionClick:
		target, err := s.toScreen(ctx, *action.Coordinate)
		if err != nil {
			return err
		}
		if err := s.moveTo(ctx, target, 0); err != nil {
			return err
		}
		return s.click(ctx, target, action.EffectiveButton(), action.EffectiveClickCount())

	case schemas.ActionDrag:
		target, err := s.toScreen(ctx, *action.Coordinate)
		if err != nil {
			return err
		}
		return s.drag(ctx, target)

	case schemas.ActionScroll:
		target, err := s.toScreen(ctx, *action.Coordinate)
		if err != nil {
			return err
		}
		if err := s.moveTo(ctx, target, 0); err != nil {
			return err
		}
		return s.scroll(ctx, target, action.DeltaX, action.DeltaY)

	case schemas.ActionType:
		return s.typeText(ctx, action.Text)

	case schemas.ActionKey:
		return s.pressChord(ctx, action.Text)

	case schemas.ActionCursor:
		// Query only; make sure the grid mapping exists so Cursor can answer.
		_, err := s.currentScaler(ctx)
		return err

	case schemas.ActionWait:
		return sleep(ctx, time.Duration(action.DurationMs)*time.Millisecond)

	case schemas.ActionScreenshot:
		// Observation actions are handled by the capturer; nothing to do here.
		return nil
	}
	return fmt.Errorf("%w: unknown action kind %q", schemas.ErrMalformedAction, action.Kind)
}

// Cursor reports the tracked cursor position in model space. ok is false
// before the first coordinate-bearing action establishes a mapping.
func (s *Synth) Cursor() (schemas.Point, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scaler == nil {
		return schemas.Point{}, false
	}
	return s.scaler.ToGrid(s.pos), true
}

// currentScaler returns a scaler for the live screen resolution, rebuilding
// the cached one when the surface resized.
func (s *Synth) currentScaler(ctx context.Context) (*display.Scaler, error) {
	size, err := s.conn.ScreenSize(ctx)
	if err != nil {
		return nil, err
	}
	if s.scaler != nil && s.scaler.Screen() == size {
		return s.scaler, nil
	}
	scaler, err := display.NewScaler(size, s.grid)
	if err != nil {
		return nil, err
	}
	s.scaler = scaler
	return scaler, nil
}

func (s *Synth) toScreen(ctx context.Context, p schemas.Point) (schemas.Point, error) {
	scaler, err := s.currentScaler(ctx)
	if err != nil {
		return schemas.Point{}, err
	}
	return scaler.ToScreen(p)
}

// moveTo walks the cursor along a synthesized path. buttons carries the held
// button bitfield during a drag.
func (s *Synth) moveTo(ctx context.Context, target schemas.Point, buttons int64) error {
	for _, point := range s.pace.path(s.pos, target) {
		if err := ctx.Err(); err != nil {
			return err
		}
		ev := host.MouseEvent{
			Type:    host.MouseMoved,
			X:       float64(point.X),
			Y:       float64(point.Y),
			Buttons: buttons,
		}
		if buttons&1 != 0 {
			ev.Button = schemas.ButtonLeft
		}
		if err := s.conn.DispatchMouse(ctx, ev); err != nil {
			return err
		}
		s.pos = point
		if err := sleep(ctx, s.pace.stepPause()); err != nil {
			return err
		}
	}
	return nil
}

func (s *Synth) click(ctx context.Context, at schemas.Point, button schemas.MouseButton, count int) error {
	for i := 1; i <= count; i++ {
		press := host.MouseEvent{
			Type:       host.MousePressed,
			X:          float64(at.X),
			Y:          float64(at.Y),
			Button:     button,
			ClickCount: i,
			Buttons:    buttonBits[button],
		}
		if err := s.conn.DispatchMouse(ctx, press); err != nil {
			return err
		}
		if err := sleep(ctx, s.pace.clickHold()); err != nil {
			return err
		}
		release := press
		release.Type = host.MouseReleased
		release.Buttons = 0
		if err := s.conn.DispatchMouse(ctx, release); err != nil {
			return err
		}
		if i < count {
			if err := sleep(ctx, s.pace.clickHold()); err != nil {
				return err
			}
		}
	}
	return nil
}

// drag holds the left button at the current position and walks to target.
func (s *Synth) drag(ctx context.Context, target schemas.Point) error {
	press := host.MouseEvent{
		Type:       host.MousePressed,
		X:          float64(s.pos.X),
		Y:          float64(s.pos.Y),
		Button:     schemas.ButtonLeft,
		ClickCount: 1,
		Buttons:    buttonBits[schemas.ButtonLeft],
	}
	if err := s.conn.DispatchMouse(ctx, press); err != nil {
		return err
	}
	if err := sleep(ctx, s.pace.clickHold()); err != nil {
		return err
	}
	if err := s.moveTo(ctx, target, buttonBits[schemas.ButtonLeft]); err != nil {
		return err
	}
	release := host.MouseEvent{
		Type:       host.MouseReleased,
		X:          float64(target.X),
		Y:          float64(target.Y),
		Button:     schemas.ButtonLeft,
		ClickCount: 1,
	}
	return s.conn.DispatchMouse(ctx, release)
}

func (s *Synth) scroll(ctx context.Context, at schemas.Point, deltaX, deltaY int) error {
	return s.conn.DispatchMouse(ctx, host.MouseEvent{
		Type:   host.MouseWheel,
		X:      float64(at.X),
		Y:      float64(at.Y),
		DeltaX: float64(deltaX * wheelTickPx),
		DeltaY: float64(deltaY * wheelTickPx),
	})
}

// typeText emits a literal payload as paced per-character key events. The
// payload is chunked so a stalled host surfaces mid-payload as a timeout
// rather than an opaque hang; characters with no key identity fall back to
// host text insertion.
func (s *Synth) typeText(ctx context.Context, text string) error {
	runes := []rune(text)
	group := s.cfg.TypeGroupSize
	if group <= 0 {
		group = len(runes)
	}

	for start := 0; start < len(runes); start += group {
		end := start + group
		if end > len(runes) {
			end = len(runes)
		}
		for _, r := range runes[start:end] {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := s.typeRune(ctx, r); err != nil {
				return err
			}
			if err := sleep(ctx, s.pace.keyDelay()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Synth) typeRune(ctx context.Context, r rune) error {
	if r >= 0x80 || !unicode.IsPrint(r) {
		return s.conn.InsertText(ctx, string(r))
	}

	var mods host.Modifier
	if unicode.IsUpper(r) {
		mods = host.ModShift
	}
	down := host.KeyEvent{
		Down:                  true,
		Key:                   string(r),
		Text:                  string(r),
		WindowsVirtualKeyCode: charVK(r),
		Modifiers:             mods,
	}
	if err := s.conn.PressKey(ctx, down); err != nil {
		return err
	}
	up := down
	up.Down = false
	up.Text = ""
	return s.conn.PressKey(ctx, up)
}

// pressChord dispatches one key chord: modifiers down in order, the key down
// and up, modifiers up in reverse.
func (s *Synth) pressChord(ctx context.Context, spec string) error {
	c, err := parseChord(spec)
	if err != nil {
		return err
	}

	mods := heldModifiers(c.Modifiers)
	var held host.Modifier
	for _, mod := range mods {
		held |= mod
		def := modifierKeyDef(mod)
		ev := host.KeyEvent{
			Down:                  true,
			Key:                   def.Key,
			WindowsVirtualKeyCode: def.VK,
			Modifiers:             held,
		}
		if err := s.conn.PressKey(ctx, ev); err != nil {
			return err
		}
		if err := sleep(ctx, s.pace.keyDelay()); err != nil {
			return err
		}
	}

	if c.Key.Key != modifierKeyDef(c.Modifiers).Key || len(mods) == 0 {
		down := host.KeyEvent{
			Down:                  true,
			Key:                   c.Key.Key,
			Text:                  c.Text,
			WindowsVirtualKeyCode: c.Key.VK,
			Modifiers:             c.Modifiers,
		}
		if err := s.conn.PressKey(ctx, down); err != nil {
			return err
		}
		if err := sleep(ctx, s.pace.keyDelay()); err != nil {
			return err
		}
		up := down
		up.Down = false
		up.Text = ""
		if err := s.conn.PressKey(ctx, up); err != nil {
			return err
		}
	}

	for i := len(mods) - 1; i >= 0; i-- {
		held &^= mods[i]
		def := modifierKeyDef(mods[i])
		ev := host.KeyEvent{
			Down:                  false,
			Key:                   def.Key,
			WindowsVirtualKeyCode: def.VK,
			Modifiers:             held,
		}
		if err := s.conn.PressKey(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

// sleep pauses for d, returning early if the context ends.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
