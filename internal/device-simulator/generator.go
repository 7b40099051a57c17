package device_simulator

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// ====== Tunables ======
const (
	// adcMax is the top of the MQ-2 reading range on a 12-bit ADC.
	adcMax = 4095

	// defaultBaseline is clean air.
	defaultBaseline = 400

	// ventPerSec is how fast the level drops while the relay fan runs.
	ventPerSec = 120.0
)

// SmokeGenerator keeps a drifting smoke level. Without ventilation the level
// random-walks around a slowly rising trend; RELAY_ON pulls it down.
type SmokeGenerator struct {
	mu        sync.Mutex
	level     float64
	baseline  float64
	risePerS  float64 // trend while the room is closed
	noise     float64 // stddev per sample
	ventUntil time.Time
	last      time.Time
	rng       *rand.Rand
	now       func() time.Time
}

// NewSmokeGenerator starts at the baseline. risePerSec may be 0 for a flat
// signal around the baseline.
func NewSmokeGenerator(seed int64, risePerSec float64) *SmokeGenerator {
	return &SmokeGenerator{
		level:    defaultBaseline,
		baseline: defaultBaseline,
		risePerS: math.Max(0, risePerSec),
		noise:    25,
		rng:      rand.New(rand.NewSource(seed)),
		now:      time.Now,
	}
}

// Next advances the level to now and returns it.
func (g *SmokeGenerator) Next() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if g.last.IsZero() {
		g.last = now
	}
	dt := now.Sub(g.last).Seconds()
	if dt < 0 {
		dt = 0
	}
	g.last = now

	if now.Before(g.ventUntil) {
		g.level -= ventPerSec * dt
		if g.level < g.baseline {
			g.level = g.baseline
		}
	} else {
		g.level += g.risePerS * dt
	}
	g.level += g.rng.NormFloat64() * g.noise

	g.level = clamp(g.level, 0, adcMax)
	return int(math.Round(g.level))
}

// Ventilate runs the fan for d from now.
func (g *SmokeGenerator) Ventilate(d time.Duration) {
	if g == nil || d <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ventUntil = g.now().Add(d)
}

// Set forces the level, e.g. to script a fire in tests.
func (g *SmokeGenerator) Set(level int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.level = clamp(float64(level), 0, adcMax)
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
