// File: internal/display/scale.go
// Description: Translates coordinates between the model-space grid the model
// reasons in and the physical screen the host dispatches events on. The grid
// is a fixed letterboxed resolution: the physical frame is shrunk to fit the
// grid width, anchored top-left, and padded below, so x scales linearly and y
// only maps within the scaled band.
package display

import (
	"fmt"
	"math"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
)

// Default grid matching XGA, the resolution vision models are commonly tuned
// for.
const (
	DefaultGridWidth  = 1024
	DefaultGridHeight = 768
)

// Scaler converts points between the physical screen and the model grid. It is
// immutable after construction; build a new one when the screen resolution
// changes.
type Scaler struct {
	screen schemas.Size
	grid   schemas.Size
	// band is the portion of the grid actually covered by screen content;
	// anything below band.Height is letterbox padding.
	band schemas.Size
}

// NewScaler builds a scaler for the given physical resolution and grid. A zero
// grid selects the XGA default.
func NewScaler(screen, grid schemas.Size) (*Scaler, error) {
	if screen.Empty() {
		return nil, fmt.Errorf("display: physical resolution %dx%d is empty", screen.Width, screen.Height)
	}
	if grid.Empty() {
		grid = schemas.Size{Width: DefaultGridWidth, Height: DefaultGridHeight}
	}

	ratio := float64(grid.Width) / float64(screen.Width)
	band := schemas.Size{
		Width:  grid.Width,
		Height: int(math.Round(float64(screen.Height) * ratio)),
	}
	if band.Height > grid.Height {
		// Screen is taller than the grid aspect allows; fit by height instead.
		ratio = float64(grid.Height) / float64(screen.Height)
		band = schemas.Size{
			Width:  int(math.Round(float64(screen.Width) * ratio)),
			Height: grid.Height,
		}
	}

	return &Scaler{screen: screen, grid: grid, band: band}, nil
}

// Grid returns the model-space grid dimensions.
func (s *Scaler) Grid() schemas.Size { return s.grid }

// Screen returns the physical resolution the scaler was built for.
func (s *Scaler) Screen() schemas.Size { return s.screen }

// Band returns the content region of the grid, excluding letterbox padding.
func (s *Scaler) Band() schemas.Size { return s.band }

// ToScreen maps a grid point to physical pixels. Points inside the grid but
// within the letterbox padding are clamped onto the content band edge so a
// borderline click still lands on real screen content.
func (s *Scaler) ToScreen(p schemas.Point) (schemas.Point, error) {
	if !s.grid.Contains(p) {
		return schemas.Point{}, fmt.Errorf("%w: (%d,%d) outside grid %dx%d",
			schemas.ErrOutOfBounds, p.X, p.Y, s.grid.Width, s.grid.Height)
	}
	clamped := p
	if clamped.X >= s.band.Width {
		clamped.X = s.band.Width - 1
	}
	if clamped.Y >= s.band.Height {
		clamped.Y = s.band.Height - 1
	}

	sx := float64(s.screen.Width) / float64(s.band.Width)
	sy := float64(s.screen.Height) / float64(s.band.Height)
	out := schemas.Point{
		X: int(math.Round(float64(clamped.X) * sx)),
		Y: int(math.Round(float64(clamped.Y) * sy)),
	}
	return clampTo(out, s.screen), nil
}

// ToGrid maps a physical pixel back into the grid, clamping rounding spill at
// the edges.
func (s *Scaler) ToGrid(p schemas.Point) schemas.Point {
	sx := float64(s.band.Width) / float64(s.screen.Width)
	sy := float64(s.band.Height) / float64(s.screen.Height)
	out := schemas.Point{
		X: int(math.Round(float64(p.X) * sx)),
		Y: int(math.Round(float64(p.Y) * sy)),
	}
	return clampTo(out, s.band)
}

func clampTo(p schemas.Point, bounds schemas.Size) schemas.Point {
	if p.X < 0 {
		p.X = 0
	}
	if p.Y < 0 {
		p.Y = 0
	}
	if p.X >= bounds.Width {
		p.X = bounds.Width - 1
	}
	if p.Y >= bounds.Height {
		p.Y = bounds.Height - 1
	}
	return p
}
