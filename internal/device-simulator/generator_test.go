package device_simulator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGeneratorRisesAndVentilates(t *testing.T) {
	t.Parallel()
	now := time.Unix(0, 0)
	g := NewSmokeGenerator(1, 100)
	g.noise = 0
	g.now = func() time.Time { return now }

	assert.Equal(t, defaultBaseline, g.Next())
	now = now.Add(10 * time.Second)
	assert.Equal(t, defaultBaseline+1000, g.Next())

	g.Ventilate(5 * time.Second)
	now = now.Add(4 * time.Second)
	assert.Equal(t, defaultBaseline+1000-480, g.Next())

	now = now.Add(20 * time.Second)
	assert.Equal(t, defaultBaseline+1000-480+2000, g.Next(), "fan stopped, level rises again")
}

func TestGeneratorClamps(t *testing.T) {
	t.Parallel()
	g := NewSmokeGenerator(1, 0)
	g.noise = 0
	g.Set(99999)
	assert.Equal(t, adcMax, g.Next())
	g.Set(-5)
	assert.Equal(t, 0, g.Next())
}
