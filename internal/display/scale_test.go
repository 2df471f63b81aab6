// File: internal/display/scale_test.go
package display

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
)

func TestNewScaler(t *testing.T) {
	t.Run("rejects empty screen", func(t *testing.T) {
		_, err := NewScaler(schemas.Size{}, schemas.Size{Width: 1024, Height: 768})
		require.Error(t, err)
	})

	t.Run("zero grid selects the default", func(t *testing.T) {
		s, err := NewScaler(schemas.Size{Width: 1280, Height: 800}, schemas.Size{})
		require.NoError(t, err)
		assert.Equal(t, schemas.Size{Width: DefaultGridWidth, Height: DefaultGridHeight}, s.Grid())
	})

	t.Run("wide screen letterboxes below the band", func(t *testing.T) {
		s, err := NewScaler(schemas.Size{Width: 1280, Height: 800}, schemas.Size{Width: 1024, Height: 768})
		require.NoError(t, err)
		// 1280x800 shrunk to grid width: 1024x640 band, 128 rows of padding.
		assert.Equal(t, schemas.Size{Width: 1024, Height: 640}, s.Band())
	})

	t.Run("tall screen fits by height", func(t *testing.T) {
		s, err := NewScaler(schemas.Size{Width: 768, Height: 1024}, schemas.Size{Width: 1024, Height: 768})
		require.NoError(t, err)
		assert.Equal(t, schemas.Size{Width: 576, Height: 768}, s.Band())
	})
}

func TestToScreen(t *testing.T) {
	s, err := NewScaler(schemas.Size{Width: 1280, Height: 800}, schemas.Size{Width: 1024, Height: 768})
	require.NoError(t, err)

	t.Run("maps band interior linearly", func(t *testing.T) {
		p, err := s.ToScreen(schemas.Point{X: 512, Y: 320})
		require.NoError(t, err)
		assert.Equal(t, schemas.Point{X: 640, Y: 400}, p)
	})

	t.Run("maps origin to origin", func(t *testing.T) {
		p, err := s.ToScreen(schemas.Point{X: 0, Y: 0})
		require.NoError(t, err)
		assert.Equal(t, schemas.Point{X: 0, Y: 0}, p)
	})

	t.Run("clamps letterbox padding onto the band edge", func(t *testing.T) {
		// y=700 is inside the grid but below the 640-row content band.
		p, err := s.ToScreen(schemas.Point{X: 100, Y: 700})
		require.NoError(t, err)
		assert.Less(t, p.Y, 800)
		assert.GreaterOrEqual(t, p.Y, 798) // clamped to the last content row
	})

	t.Run("rejects points outside the grid", func(t *testing.T) {
		for _, p := range []schemas.Point{
			{X: 1024, Y: 10},
			{X: 10, Y: 768},
			{X: -1, Y: 10},
			{X: 10, Y: -1},
		} {
			_, err := s.ToScreen(p)
			require.Error(t, err)
			assert.ErrorIs(t, err, schemas.ErrOutOfBounds)
		}
	})
}

func TestToGridRoundTrip(t *testing.T) {
	s, err := NewScaler(schemas.Size{Width: 1280, Height: 800}, schemas.Size{Width: 1024, Height: 768})
	require.NoError(t, err)

	for _, p := range []schemas.Point{
		{X: 0, Y: 0},
		{X: 512, Y: 320},
		{X: 1023, Y: 639},
	} {
		screen, err := s.ToScreen(p)
		require.NoError(t, err)
		back := s.ToGrid(screen)
		// Rounding may spill by one pixel each way.
		assert.InDelta(t, p.X, back.X, 1)
		assert.InDelta(t, p.Y, back.Y, 1)
	}
}

func TestIdentityWhenScreenMatchesGrid(t *testing.T) {
	s, err := NewScaler(schemas.Size{Width: 1024, Height: 768}, schemas.Size{Width: 1024, Height: 768})
	require.NoError(t, err)
	assert.Equal(t, s.Grid(), s.Band())

	p, err := s.ToScreen(schemas.Point{X: 123, Y: 456})
	require.NoError(t, err)
	assert.Equal(t, schemas.Point{X: 123, Y: 456}, p)
}
