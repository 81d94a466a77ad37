package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTunablesDefaults(t *testing.T) {
	tun := NewTunables()
	assert.Zero(t, tun.TargetProfitPct())
	assert.Zero(t, tun.BuyPct())

	tun.Set(0.01, 0.25)
	assert.Equal(t, 0.01, tun.TargetProfitPct())
	assert.Equal(t, 0.25, tun.BuyPct())

	// Negative values clamp to "unset".
	tun.Set(-1, -1)
	assert.Zero(t, tun.TargetProfitPct())
	assert.Zero(t, tun.BuyPct())
}

func TestTunablesNilSafe(t *testing.T) {
	var tun *Tunables
	tun.Set(0.01, 0.25)
	assert.Zero(t, tun.TargetProfitPct())
	assert.Zero(t, tun.BuyPct())
}
