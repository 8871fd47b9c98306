package alg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDowngradeFracControllerDirection(t *testing.T) {
	c := NewDowngradeFracController(DefaultDowngradeFracControllerConfig())

	// HIPRI over admission: increase the downgrade fraction.
	assert.Greater(t, c.TrafficFracToDowngrade(900, 0, 500, 100), 0.0)
	// LOPRI carries traffic while HIPRI is under admission: decrease.
	assert.Less(t, c.TrafficFracToDowngrade(300, 300, 500, 100), 0.0)
	// HIPRI under admission with no LOPRI traffic: hold.
	assert.Zero(t, c.TrafficFracToDowngrade(300, 0, 500, 100))
	// No usage at all: hold.
	assert.Zero(t, c.TrafficFracToDowngrade(0, 0, 500, 100))
}

func TestDowngradeFracControllerBoundedSteps(t *testing.T) {
	config := DowngradeFracControllerConfig{PropGain: 10, MaxIncPerTick: 0.05, MaxDecPerTick: 0.03}
	c := NewDowngradeFracController(config)

	assert.InDelta(t, 0.05, c.TrafficFracToDowngrade(1e9, 0, 100, 1e9), 1e-9)
	assert.InDelta(t, -0.03, c.TrafficFracToDowngrade(100, 1e9, 1e12, 1e9), 1e-9)
}

func TestDowngradeFracControllerMonotoneInOverage(t *testing.T) {
	c := NewDowngradeFracController(DowngradeFracControllerConfig{PropGain: 0.5, MaxIncPerTick: 1, MaxDecPerTick: 1})
	prev := -2.0
	for _, hipri := range []float64{100, 400, 600, 900, 1500} {
		inc := c.TrafficFracToDowngrade(hipri, 500, 500, 0)
		assert.GreaterOrEqual(t, inc, prev)
		prev = inc
	}
}
