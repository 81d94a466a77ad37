package engine

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghostarb/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testShieldParams() ShieldParams {
	return ShieldParams{
		Window:     10 * time.Second,
		MaxSignals: 5,
		Cooldown:   30 * time.Second,
	}
}

func TestShieldAdmitsBelowThreshold(t *testing.T) {
	state := NewState(50)
	sh := NewShield(state, testShieldParams(), nil, testLogger())

	base := time.Now()
	for i := 0; i < 5; i++ {
		assert.True(t, sh.Admit(base.Add(time.Duration(i)*time.Second)))
	}
	assert.Equal(t, domain.StatusStable, state.Status())
}

func TestShieldFreezesOnBurst(t *testing.T) {
	state := NewState(50)
	sh := NewShield(state, testShieldParams(), nil, testLogger())

	base := time.Now()
	for i := 0; i < 5; i++ {
		require.True(t, sh.Admit(base.Add(time.Duration(i)*100*time.Millisecond)))
	}
	// Sixth signal in the window tips the population over the limit.
	assert.False(t, sh.Admit(base.Add(500*time.Millisecond)))
	assert.Equal(t, domain.StatusFrozen, state.Status())
	assert.Equal(t, base.Add(500*time.Millisecond), state.FrozenAt())
}

func TestShieldCooldownHysteresis(t *testing.T) {
	state := NewState(50)
	sh := NewShield(state, testShieldParams(), nil, testLogger())

	base := time.Now()
	for i := 0; i < 6; i++ {
		sh.Admit(base.Add(time.Duration(i) * 100 * time.Millisecond))
	}
	require.Equal(t, domain.StatusFrozen, state.Status())

	// 15s of quiet: the burst has left the 10s window, but the 30s cooldown
	// has not elapsed, so dispatch stays suspended.
	assert.False(t, sh.Admit(base.Add(15*time.Second)))
	assert.Equal(t, domain.StatusFrozen, state.Status())

	// Past the cooldown with a drained window: thaw and admit.
	assert.True(t, sh.Admit(base.Add(31*time.Second)))
	assert.Equal(t, domain.StatusStable, state.Status())
}

func TestShieldRefreezesOnSecondBurst(t *testing.T) {
	state := NewState(50)
	sh := NewShield(state, testShieldParams(), nil, testLogger())

	base := time.Now()
	for i := 0; i < 6; i++ {
		sh.Admit(base.Add(time.Duration(i) * 100 * time.Millisecond))
	}
	require.Equal(t, domain.StatusFrozen, state.Status())

	// Well past the cooldown the first signal thaws, but a fresh burst trips
	// the breaker again with a new freeze timestamp.
	now := base.Add(40 * time.Second)
	assert.True(t, sh.Admit(now))
	require.Equal(t, domain.StatusStable, state.Status())

	for i := 1; i < 5; i++ {
		require.True(t, sh.Admit(now.Add(time.Duration(i)*100*time.Millisecond)))
	}
	assert.False(t, sh.Admit(now.Add(500*time.Millisecond)))
	assert.Equal(t, domain.StatusFrozen, state.Status())
	assert.Equal(t, now.Add(500*time.Millisecond), state.FrozenAt())
}

func TestShieldFrozenAtRecordsFirstEdgeOnly(t *testing.T) {
	state := NewState(50)
	sh := NewShield(state, testShieldParams(), nil, testLogger())

	base := time.Now()
	for i := 0; i < 7; i++ {
		sh.Admit(base.Add(time.Duration(i) * 100 * time.Millisecond))
	}
	frozenAt := state.FrozenAt()
	sh.Admit(base.Add(time.Second))
	assert.Equal(t, frozenAt, state.FrozenAt())
}

func TestShieldFreezeCallbackFiresOnEdges(t *testing.T) {
	state := NewState(50)
	sh := NewShield(state, testShieldParams(), nil, testLogger())

	var edges []bool
	sh.OnFreeze(func(frozen bool, _ time.Time) {
		edges = append(edges, frozen)
	})

	base := time.Now()
	for i := 0; i < 7; i++ {
		sh.Admit(base.Add(time.Duration(i) * 100 * time.Millisecond))
	}
	require.Equal(t, []bool{true}, edges, "one freeze edge for the whole burst")

	// Window drained and cooldown elapsed: first admit thaws.
	sh.Admit(base.Add(45 * time.Second))
	assert.Equal(t, []bool{true, false}, edges)
}
