// File: internal/host/cdp.go
// Description: Chrome DevTools Protocol implementation of the host Conn. It
// either launches a local headless browser or attaches to a remote DevTools
// endpoint, and translates host events into CDP input dispatches.
package host

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
	"github.com/xkilldash9x/marionette-cli/internal/config"
)

// startTimeout bounds browser launch and initial navigation.
const startTimeout = 30 * time.Second

// CDPConn is a Conn backed by a chromedp browser context.
type CDPConn struct {
	logger      *zap.Logger
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
}

var _ Conn = (*CDPConn)(nil)

// Dial establishes the browser connection described by cfg. With a RemoteURL
// it attaches to the existing DevTools websocket; otherwise it launches a
// local instance. The connection lives within ctx: pass the session's master
// context, and call Close when done.
func Dial(ctx context.Context, cfg config.HostConfig, logger *zap.Logger) (*CDPConn, error) {
	logger = logger.Named("host")
	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	if cfg.RemoteURL != "" {
		logger.Info("Attaching to remote DevTools endpoint.", zap.String("url", cfg.RemoteURL))
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(ctx, cfg.RemoteURL)
	} else {
		logger.Info("Launching local browser.", zap.Bool("headless", cfg.Headless))
		allocCtx, allocCancel = chromedp.NewExecAllocator(ctx, execOptions(cfg)...)
	}

	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...interface{}) {
			logger.Debug(fmt.Sprintf(format, args...))
		}),
	)

	conn := &CDPConn{
		logger:      logger,
		allocCancel: allocCancel,
		ctx:         browserCtx,
		cancel:      browserCancel,
	}

	startCtx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()

	actions := []chromedp.Action{chromedp.ActionFunc(func(context.Context) error { return nil })}
	if cfg.StartURL != "" {
		actions = append(actions,
			chromedp.Navigate(cfg.StartURL),
			chromedp.WaitReady("body", chromedp.ByQuery),
		)
	}
	if err := conn.run(startCtx, actions...); err != nil {
		conn.Close(context.Background())
		return nil, fmt.Errorf("host: browser startup failed: %w", err)
	}
	return conn, nil
}

// execOptions translates HostConfig into allocator options. Extra args accept
// both "--flag=value" and bare "flag" forms.
func execOptions(cfg config.HostConfig) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("mute-audio", true),
	}
	if cfg.Headless {
		opts = append(opts, chromedp.Headless)
	}
	for _, arg := range cfg.Args {
		arg = strings.TrimPrefix(arg, "--")
		if name, value, found := strings.Cut(arg, "="); found {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(arg, true))
		}
	}
	return opts
}

// run executes chromedp actions against the browser context while honouring
// the caller's deadline. chromedp.Run only observes the browser context, so
// the caller's context is raced explicitly.
func (c *CDPConn) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(c.ctx, actions...)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cdpModifiers maps the host bitmask onto the CDP one.
func cdpModifiers(m Modifier) input.Modifier {
	var out input.Modifier
	if m&ModAlt != 0 {
		out |= input.ModifierAlt
	}
	if m&ModCtrl != 0 {
		out |= input.ModifierCtrl
	}
	if m&ModMeta != 0 {
		out |= input.ModifierMeta
	}
	if m&ModShift != 0 {
		out |= input.ModifierShift
	}
	return out
}

// DispatchMouse implements Conn.
func (c *CDPConn) DispatchMouse(ctx context.Context, ev MouseEvent) error {
	button := string(ev.Button)
	if button == "" {
		button = "none"
	}
	p := input.DispatchMouseEvent(input.MouseType(ev.Type), ev.X, ev.Y).
		WithButton(input.MouseButton(button)).
		WithModifiers(cdpModifiers(ev.Modifiers))
	if ev.ClickCount > 0 {
		p = p.WithClickCount(int64(ev.ClickCount))
	}
	if ev.Buttons > 0 {
		p = p.WithButtons(ev.Buttons)
	}
	if ev.Type == MouseWheel {
		p = p.WithDeltaX(ev.DeltaX).WithDeltaY(ev.DeltaY)
	}
	if err := c.run(ctx, p); err != nil {
		return fmt.Errorf("host: mouse %s at (%.0f,%.0f): %w", ev.Type, ev.X, ev.Y, err)
	}
	return nil
}

// PressKey implements Conn.
func (c *CDPConn) PressKey(ctx context.Context, ev KeyEvent) error {
	typ := input.KeyUp
	if ev.Down {
		typ = input.KeyDown
	}
	p := input.DispatchKeyEvent(typ).
		WithModifiers(cdpModifiers(ev.Modifiers)).
		WithKey(ev.Key)
	if ev.WindowsVirtualKeyCode != 0 {
		p = p.WithWindowsVirtualKeyCode(int64(ev.WindowsVirtualKeyCode))
	}
	if ev.Down && ev.Text != "" {
		p = p.WithText(ev.Text).WithUnmodifiedText(ev.Text)
	}
	if err := c.run(ctx, p); err != nil {
		return fmt.Errorf("host: key %q (down=%t): %w", ev.Key, ev.Down, err)
	}
	return nil
}

// InsertText implements Conn.
func (c *CDPConn) InsertText(ctx context.Context, text string) error {
	if err := c.run(ctx, input.InsertText(text)); err != nil {
		return fmt.Errorf("host: insert text: %w", err)
	}
	return nil
}

// Screenshot implements Conn.
func (c *CDPConn) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := c.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("host: screenshot: %w", err)
	}
	return buf, nil
}

// ScreenSize implements Conn. It reads the live viewport rather than caching,
// so a window resize between turns is picked up on the next capture.
func (c *CDPConn) ScreenSize(ctx context.Context) (schemas.Size, error) {
	var dims struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	}
	err := c.run(ctx, chromedp.Evaluate(
		`({width: window.innerWidth, height: window.innerHeight})`, &dims))
	if err != nil {
		return schemas.Size{}, fmt.Errorf("host: screen size: %w", err)
	}
	size := schemas.Size{Width: dims.Width, Height: dims.Height}
	if size.Empty() {
		return schemas.Size{}, fmt.Errorf("host: surface reported empty viewport %dx%d", size.Width, size.Height)
	}
	return size, nil
}

// Close implements Conn. It attempts a graceful browser shutdown before
// cancelling the contexts.
func (c *CDPConn) Close(ctx context.Context) error {
	err := chromedp.Cancel(c.ctx)
	c.cancel()
	c.allocCancel()
	if err != nil && ctx.Err() == nil {
		c.logger.Debug("Browser shutdown reported an error.", zap.Error(err))
		return fmt.Errorf("host: close: %w", err)
	}
	return nil
}
