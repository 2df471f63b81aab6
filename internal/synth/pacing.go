// File: internal/synth/pacing.go
// Description: Timing and trajectory shaping for synthesized input. Key
// delays follow a normal distribution, click holds a uniform one, and mouse
// paths are eased point sequences perturbed by low-frequency perlin drift so
// repeated moves never retrace the same pixels.
package synth

import (
	"math"
	"math/rand"
	"time"

	"github.com/aquilax/go-perlin"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
	"github.com/xkilldash9x/marionette-cli/internal/config"
)

// pacer owns the random sources behind all input timing. It is not safe for
// concurrent use; the synthesizer serializes access.
type pacer struct {
	cfg    config.InputConfig
	rng    *rand.Rand
	noiseX *perlin.Perlin
	noiseY *perlin.Perlin
}

func newPacer(cfg config.InputConfig, seed int64) *pacer {
	// Standard perlin parameters.
	alpha, beta, n := 2.0, 2.0, int32(3)
	return &pacer{
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(seed)),
		noiseX: perlin.NewPerlin(alpha, beta, n, seed),
		noiseY: perlin.NewPerlin(alpha, beta, n, seed+1),
	}
}

// keyDelay samples the pause before the next key event.
func (p *pacer) keyDelay() time.Duration {
	ms := p.rng.NormFloat64()*p.cfg.KeyDelayStdDev + p.cfg.KeyDelayMean
	if ms < 1 {
		ms = 1
	}
	return time.Duration(ms * float64(time.Millisecond))
}

// clickHold samples how long a button stays pressed.
func (p *pacer) clickHold() time.Duration {
	span := p.cfg.ClickHoldMaxMs - p.cfg.ClickHoldMinMs
	ms := p.cfg.ClickHoldMinMs
	if span > 0 {
		ms += p.rng.Intn(span + 1)
	}
	return time.Duration(ms) * time.Millisecond
}

// easeInOutCubic shapes path progress so movement accelerates and then
// decelerates into the target.
func easeInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}

// path generates the intermediate points of a mouse move in screen pixels.
// The final point is always exactly the target; drift only perturbs the
// interior of the path.
func (p *pacer) path(start, end schemas.Point) []schemas.Point {
	steps := p.cfg.MoveSteps
	if steps < 2 {
		steps = 2
	}
	dx := float64(end.X - start.X)
	dy := float64(end.Y - start.Y)
	if math.Hypot(dx, dy) < 1.0 {
		return []schemas.Point{end}
	}

	phase := p.rng.Float64() * 100
	points := make([]schemas.Point, 0, steps)
	for i := 1; i <= steps; i++ {
		t := easeInOutCubic(float64(i) / float64(steps))
		x := float64(start.X) + dx*t
		y := float64(start.Y) + dy*t
		if i < steps {
			x += p.noiseX.Noise1D(phase+t*0.8) * p.cfg.DriftAmplitude
			y += p.noiseY.Noise1D(phase+t*0.8) * p.cfg.DriftAmplitude
		}
		points = append(points, schemas.Point{
			X: int(math.Round(x)),
			Y: int(math.Round(y)),
		})
	}
	points[len(points)-1] = end
	return points
}

// stepPause is the per-point pause during a path move.
func (p *pacer) stepPause() time.Duration {
	return time.Duration(2+p.rng.Intn(4)) * time.Millisecond
}
