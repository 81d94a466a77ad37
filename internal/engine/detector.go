package engine

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"ghostarb/internal/domain"
)

// DetectorParams configures the divergence detector.
type DetectorParams struct {
	TickInterval     time.Duration
	MinSamples       int
	BaseLookback     time.Duration // horizon for the base move (≈1.4s)
	VelocityLookback time.Duration // horizon for the velocity estimate (≈1.0s)
	// VolatilityThreshold is the base fractional move that qualifies as a
	// signal.
	VolatilityThreshold float64
	// VelocityAccelFactor reduces the effective threshold by this fraction
	// when |velocity| exceeds half the base threshold (momentum confirmation
	// lowers the bar).
	VelocityAccelFactor float64
	// RearmInterval is the minimum spacing between emitted signals.
	RearmInterval time.Duration
	// SanityFloor rejects spot prices below this value as feed corruption.
	SanityFloor float64
	// FrozenPause is how long the tick loop sleeps after a shield rejection.
	FrozenPause       time.Duration
	HeartbeatInterval time.Duration
}

// Detector derives short-horizon moves from the spot history and emits a
// Signal whenever the adaptive threshold is exceeded. Emitted signals pass
// through the shield; only admitted ones reach the dispatch callback.
type Detector struct {
	state  *State
	shield *Shield
	// dispatch receives admitted signals. It must not block: the engine side
	// buffers.
	dispatch func(domain.Signal)
	logger   *slog.Logger

	mu     sync.RWMutex
	params DetectorParams

	lastSignal    time.Time
	lastHeartbeat time.Time
}

// NewDetector creates a Detector. Dispatch is invoked from the detector
// goroutine for every signal the shield admits.
func NewDetector(state *State, shield *Shield, params DetectorParams, dispatch func(domain.Signal), logger *slog.Logger) *Detector {
	return &Detector{
		state:    state,
		shield:   shield,
		dispatch: dispatch,
		params:   params,
		logger:   logger.With(slog.String("component", "detector")),
	}
}

// SetThreshold replaces the base volatility threshold at runtime (operator
// config updates).
func (d *Detector) SetThreshold(t float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t > 0 {
		d.params.VolatilityThreshold = t
	}
}

// Threshold returns the current base volatility threshold.
func (d *Detector) Threshold() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.params.VolatilityThreshold
}

// Run ticks until ctx is cancelled. The tick body itself never blocks, so
// each tick observes a consistent snapshot of the shared state.
func (d *Detector) Run(ctx context.Context) error {
	d.logger.Info("detector started",
		slog.Float64("threshold", d.Threshold()),
		slog.Duration("tick", d.params.TickInterval),
	)
	defer d.logger.Info("detector stopped")

	ticker := time.NewTicker(d.params.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			d.heartbeat(now)
			if _, admitted, frozen := d.tickAt(now); frozen && !admitted {
				// Hold the loop while the shield has dispatch suspended.
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(d.params.FrozenPause):
				}
			}
		}
	}
}

// tickAt runs one detection pass at the given instant. It returns the signal
// when one was emitted (whether or not it was admitted), whether the shield
// admitted it, and whether the engine is currently frozen.
func (d *Detector) tickAt(now time.Time) (*domain.Signal, bool, bool) {
	d.mu.RLock()
	p := d.params
	d.mu.RUnlock()

	frozen := d.state.Status() == domain.StatusFrozen

	if d.state.Paused() {
		return nil, false, frozen
	}
	if d.state.SampleCount() < p.MinSamples {
		return nil, false, frozen
	}

	spot := d.state.Spot()
	if spot < p.SanityFloor {
		// Implausible price: feed corruption, skip the whole tick.
		return nil, false, frozen
	}

	base, ok := d.state.SampleBefore(now.Add(-p.BaseLookback))
	if !ok || base.Price <= 0 {
		return nil, false, frozen
	}
	move := (spot - base.Price) / base.Price

	velocity := 0.0
	if short, ok := d.state.OldestSince(now.Add(-p.VelocityLookback)); ok && short.Price > 0 {
		velocity = (spot - short.Price) / short.Price
	}

	effective := p.VolatilityThreshold
	if math.Abs(velocity) > p.VolatilityThreshold*0.5 {
		effective = p.VolatilityThreshold * (1 - p.VelocityAccelFactor)
	}

	if math.Abs(move) <= effective {
		return nil, false, frozen
	}
	if now.Sub(d.lastSignal) < p.RearmInterval {
		return nil, false, frozen
	}
	d.lastSignal = now

	sig := domain.Signal{
		Time:       now,
		Move:       move,
		Velocity:   velocity,
		Confidence: confidence(move, p.VolatilityThreshold),
	}

	admitted := d.shield.Admit(now)
	frozen = d.state.Status() == domain.StatusFrozen
	if !admitted {
		return &sig, false, frozen
	}

	d.logger.Info("signal emitted",
		slog.Float64("move_pct", move*100),
		slog.Float64("velocity", velocity),
		slog.Float64("confidence", sig.Confidence),
	)
	if d.dispatch != nil {
		d.dispatch(sig)
	}
	return &sig, true, frozen
}

func (d *Detector) heartbeat(now time.Time) {
	if d.params.HeartbeatInterval <= 0 || now.Sub(d.lastHeartbeat) < d.params.HeartbeatInterval {
		return
	}
	d.lastHeartbeat = now
	d.logger.Info("heartbeat",
		slog.Float64("spot", d.state.Spot()),
		slog.Float64("market", d.state.MarketPrice()),
		slog.String("status", string(d.state.Status())),
	)
}

// confidence maps move strength relative to the base threshold onto [0,0.99].
func confidence(move, threshold float64) float64 {
	if threshold <= 0 {
		return 0
	}
	ratio := math.Abs(move) / threshold
	if ratio >= 1.5 {
		return 0.99
	}
	c := 0.35 + (ratio-1)*0.6
	if c < 0.35 {
		c = 0.35
	}
	if c > 0.99 {
		c = 0.99
	}
	return c
}
