package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghostarb/internal/domain"
)

func testDetectorParams() DetectorParams {
	return DetectorParams{
		TickInterval:        100 * time.Millisecond,
		MinSamples:          6,
		BaseLookback:        1400 * time.Millisecond,
		VelocityLookback:    time.Second,
		VolatilityThreshold: 0.0002,
		VelocityAccelFactor: 0.25,
		RearmInterval:       time.Second,
		SanityFloor:         10000,
		FrozenPause:         time.Second,
		HeartbeatInterval:   time.Minute,
	}
}

func newTestDetector(t *testing.T) (*Detector, *State, *[]domain.Signal) {
	t.Helper()
	state := NewState(50)
	shield := NewShield(state, testShieldParams(), nil, testLogger())
	var emitted []domain.Signal
	det := NewDetector(state, shield, testDetectorParams(), func(sig domain.Signal) {
		emitted = append(emitted, sig)
	}, testLogger())
	return det, state, &emitted
}

func TestDetectorWaitsForMinSamples(t *testing.T) {
	det, state, emitted := newTestDetector(t)

	now := time.Now()
	for i := 0; i < 5; i++ {
		state.RecordSpot(100000+float64(i)*100, now.Add(time.Duration(i-5)*250*time.Millisecond))
	}
	sig, admitted, _ := det.tickAt(now)
	assert.Nil(t, sig)
	assert.False(t, admitted)
	assert.Empty(t, *emitted)
}

func TestDetectorRejectsImplausibleSpot(t *testing.T) {
	det, state, emitted := newTestDetector(t)

	now := time.Now()
	for i := 0; i < 6; i++ {
		state.RecordSpot(100000, now.Add(time.Duration(i-6)*250*time.Millisecond))
	}
	// A corrupt tick well under the sanity floor must not be interpreted as
	// a gigantic downward move.
	state.RecordSpot(42, now)
	sig, _, _ := det.tickAt(now)
	assert.Nil(t, sig)
	assert.Empty(t, *emitted)
}

func TestDetectorEmitsOnBaseMove(t *testing.T) {
	det, state, emitted := newTestDetector(t)

	now := time.Now()
	state.RecordSpot(100000, now.Add(-2*time.Second))
	state.RecordSpot(100000, now.Add(-1750*time.Millisecond))
	state.RecordSpot(100000, now.Add(-1500*time.Millisecond))
	state.RecordSpot(100030, now.Add(-500*time.Millisecond))
	state.RecordSpot(100030, now.Add(-250*time.Millisecond))
	state.RecordSpot(100030, now)

	sig, admitted, frozen := det.tickAt(now)
	require.NotNil(t, sig)
	assert.True(t, admitted)
	assert.False(t, frozen)
	assert.InDelta(t, 0.0003, sig.Move, 1e-9)
	assert.Zero(t, sig.Velocity)
	assert.InDelta(t, 0.99, sig.Confidence, 1e-9)

	require.Len(t, *emitted, 1)
	assert.Equal(t, *sig, (*emitted)[0])
}

func TestDetectorRearmInterval(t *testing.T) {
	det, state, emitted := newTestDetector(t)

	now := time.Now()
	state.RecordSpot(100000, now.Add(-2*time.Second))
	state.RecordSpot(100000, now.Add(-1750*time.Millisecond))
	state.RecordSpot(100000, now.Add(-1500*time.Millisecond))
	state.RecordSpot(100030, now.Add(-500*time.Millisecond))
	state.RecordSpot(100030, now.Add(-250*time.Millisecond))
	state.RecordSpot(100030, now)

	sig, _, _ := det.tickAt(now)
	require.NotNil(t, sig)

	// The move persists half a second later but the detector has not
	// re-armed yet.
	state.RecordSpot(100060, now.Add(500*time.Millisecond))
	sig, _, _ = det.tickAt(now.Add(500 * time.Millisecond))
	assert.Nil(t, sig)

	// After the re-arm interval the next qualifying move fires again.
	sig, _, _ = det.tickAt(now.Add(1100 * time.Millisecond))
	require.NotNil(t, sig)
	assert.Len(t, *emitted, 2)
}

func TestDetectorVelocityLowersThreshold(t *testing.T) {
	det, state, emitted := newTestDetector(t)

	now := time.Now()
	state.RecordSpot(100000, now.Add(-2*time.Second))
	state.RecordSpot(100000, now.Add(-1750*time.Millisecond))
	state.RecordSpot(100000, now.Add(-1500*time.Millisecond))
	state.RecordSpot(100003, now.Add(-800*time.Millisecond))
	state.RecordSpot(100010, now.Add(-400*time.Millisecond))
	state.RecordSpot(100018, now)

	// Base move 0.00018 is under the 0.0002 threshold, but the 1s velocity
	// exceeds half the threshold, cutting the effective bar to 0.00015.
	sig, admitted, _ := det.tickAt(now)
	require.NotNil(t, sig)
	assert.True(t, admitted)
	assert.InDelta(t, 0.00018, sig.Move, 1e-9)
	assert.Greater(t, sig.Velocity, 0.0001)
	assert.Len(t, *emitted, 1)
}

func TestDetectorIgnoresSubThresholdMove(t *testing.T) {
	det, state, emitted := newTestDetector(t)

	now := time.Now()
	for i := 0; i < 8; i++ {
		state.RecordSpot(100005, now.Add(time.Duration(i-8)*250*time.Millisecond))
	}
	state.RecordSpot(100010, now)
	sig, _, _ := det.tickAt(now)
	assert.Nil(t, sig)
	assert.Empty(t, *emitted)
}

func TestDetectorPausedSkipsEvaluation(t *testing.T) {
	det, state, emitted := newTestDetector(t)

	now := time.Now()
	state.RecordSpot(100000, now.Add(-2*time.Second))
	state.RecordSpot(100000, now.Add(-1750*time.Millisecond))
	state.RecordSpot(100000, now.Add(-1500*time.Millisecond))
	state.RecordSpot(100100, now.Add(-500*time.Millisecond))
	state.RecordSpot(100100, now.Add(-250*time.Millisecond))
	state.RecordSpot(100100, now)

	state.SetPaused(true)
	sig, _, _ := det.tickAt(now)
	assert.Nil(t, sig)
	assert.Empty(t, *emitted)

	state.SetPaused(false)
	sig, _, _ = det.tickAt(now)
	assert.NotNil(t, sig)
}

func TestDetectorMeasuresWhileFrozen(t *testing.T) {
	state := NewState(50)
	shield := NewShield(state, testShieldParams(), nil, testLogger())
	var emitted []domain.Signal
	det := NewDetector(state, shield, testDetectorParams(), func(sig domain.Signal) {
		emitted = append(emitted, sig)
	}, testLogger())

	now := time.Now()
	state.RecordSpot(100000, now.Add(-2*time.Second))
	state.RecordSpot(100000, now.Add(-1750*time.Millisecond))
	state.RecordSpot(100000, now.Add(-1500*time.Millisecond))
	state.RecordSpot(100100, now.Add(-500*time.Millisecond))
	state.RecordSpot(100100, now.Add(-250*time.Millisecond))
	state.RecordSpot(100100, now)

	state.freeze(now.Add(-time.Second))

	sig, admitted, frozen := det.tickAt(now)
	require.NotNil(t, sig)
	assert.False(t, admitted)
	assert.True(t, frozen)
	// The signal is still counted toward the window even though dispatch is
	// suspended.
	assert.Equal(t, 1, shield.WindowPopulation())
	assert.Empty(t, emitted)
}

func TestDetectorSetThreshold(t *testing.T) {
	det, _, _ := newTestDetector(t)
	det.SetThreshold(0.0005)
	assert.Equal(t, 0.0005, det.Threshold())
	det.SetThreshold(0) // ignored
	assert.Equal(t, 0.0005, det.Threshold())
}

func TestConfidenceBounds(t *testing.T) {
	assert.InDelta(t, 0.99, confidence(0.0003, 0.0002), 1e-9)
	assert.InDelta(t, 0.35, confidence(0.0002, 0.0002), 1e-9)
	mid := confidence(0.00025, 0.0002)
	assert.Greater(t, mid, 0.35)
	assert.Less(t, mid, 0.99)
	assert.Zero(t, confidence(0.5, 0))
}
