// File: internal/capture/capture.go
// Description: The screen capturer. It takes one frame from the host per
// call, letterboxes it into the model-space grid so the image the model sees
// and the coordinates it replies with share one coordinate system, and stamps
// the observation with that grid alongside the physical resolution.
package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/image/draw"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
	"github.com/xkilldash9x/marionette-cli/internal/config"
	"github.com/xkilldash9x/marionette-cli/internal/display"
	"github.com/xkilldash9x/marionette-cli/internal/host"
)

// Capturer produces observations from a host connection.
type Capturer struct {
	conn   host.Conn
	cfg    config.CaptureConfig
	grid   schemas.Size
	logger *zap.Logger
}

var _ schemas.Capturer = (*Capturer)(nil)

// New builds a capturer. The grid dimensions come from the capture config; a
// zero grid selects the display default.
func New(conn host.Conn, cfg config.CaptureConfig, logger *zap.Logger) *Capturer {
	grid := schemas.Size{Width: cfg.GridWidth, Height: cfg.GridHeight}
	if grid.Empty() {
		grid = schemas.Size{Width: display.DefaultGridWidth, Height: display.DefaultGridHeight}
	}
	return &Capturer{
		conn:   conn,
		cfg:    cfg,
		grid:   grid,
		logger: logger.Named("capture"),
	}
}

// Capture implements schemas.Capturer. The configured capture timeout applies
// on top of any caller deadline; expiry surfaces as ErrCaptureTimeout, every
// other host fault as ErrCapture. An empty frame is never returned, and the
// returned frame is always exactly grid-sized: a pixel the model points at in
// the image is a valid grid coordinate.
func (c *Capturer) Capture(ctx context.Context) (*schemas.Observation, error) {
	opCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	screen, err := c.conn.ScreenSize(opCtx)
	if err != nil {
		return nil, c.classify(ctx, opCtx, fmt.Errorf("resolving screen size: %w", err))
	}

	raw, err := c.conn.Screenshot(opCtx)
	if err != nil {
		return nil, c.classify(ctx, opCtx, fmt.Errorf("taking screenshot: %w", err))
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: host returned an empty frame", schemas.ErrCapture)
	}

	frame, err := c.letterbox(raw)
	if err != nil {
		return nil, err
	}

	obs := &schemas.Observation{
		ID:         uuid.NewString(),
		CapturedAt: time.Now().UTC(),
		PNG:        frame,
		Grid:       c.grid,
		Screen:     screen,
	}
	c.logger.Debug("Captured observation.",
		zap.String("id", obs.ID),
		zap.Int("bytes", len(frame)),
		zap.Int("screen_width", screen.Width),
		zap.Int("screen_height", screen.Height))
	return obs, nil
}

// letterbox scales the raw frame into the model-space grid, anchored top-left
// with black padding, using the same band geometry the synthesizer inverts
// when it maps coordinates back to screen pixels. A frame already at grid
// size passes through untouched.
func (c *Capturer) letterbox(raw []byte) ([]byte, error) {
	src, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: decoding frame: %v", schemas.ErrCapture, err)
	}
	bounds := src.Bounds()
	frame := schemas.Size{Width: bounds.Dx(), Height: bounds.Dy()}
	if frame == c.grid {
		return raw, nil
	}

	scaler, err := display.NewScaler(frame, c.grid)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", schemas.ErrCapture, err)
	}
	band := scaler.Band()

	dst := image.NewRGBA(image.Rect(0, 0, c.grid.Width, c.grid.Height))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	draw.BiLinear.Scale(dst, image.Rect(0, 0, band.Width, band.Height), src, bounds, draw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("%w: encoding frame: %v", schemas.ErrCapture, err)
	}
	return buf.Bytes(), nil
}

// Settle pauses for the configured settle delay, letting the screen stabilize
// after input before the closing capture of a turn.
func (c *Capturer) Settle(ctx context.Context) error {
	if c.cfg.SettleDelay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(c.cfg.SettleDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// classify maps a host fault onto the capture error taxonomy. Caller
// cancellation passes through untouched so it is never mistaken for a capture
// fault.
func (c *Capturer) classify(ctx, opCtx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if opCtx.Err() == context.DeadlineExceeded {
		c.logger.Debug("Capture timed out.", zap.Duration("timeout", c.cfg.Timeout))
		return fmt.Errorf("%w: %v elapsed: %v", schemas.ErrCaptureTimeout, c.cfg.Timeout, err)
	}
	return fmt.Errorf("%w: %v", schemas.ErrCapture, err)
}
