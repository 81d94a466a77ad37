package engine

import (
	"log/slog"
	"time"

	"ghostarb/internal/domain"
	"ghostarb/internal/metrics"
)

// ShieldParams configures the signal-rate circuit breaker.
type ShieldParams struct {
	// Window is the sliding-window length over signal timestamps.
	Window time.Duration
	// MaxSignals is the window population above which the engine freezes.
	MaxSignals int
	// Cooldown is the minimum time after a freeze before thawing, regardless
	// of how quickly the window drains.
	Cooldown time.Duration
}

// Shield is a pure rate-limiting safety valve: when signals arrive faster
// than MaxSignals per Window the engine freezes and dispatch is suspended.
// Thawing requires both the window to drain *and* the cooldown to elapse,
// which keeps a noisy feed from flapping STABLE/FROZEN every tick.
//
// Admit is only ever called from the detector goroutine, so the window sees
// timestamps in non-decreasing order and needs no locking of its own.
type Shield struct {
	state   *State
	params  ShieldParams
	window  []time.Time
	logger  *slog.Logger
	metrics *metrics.Recorder

	// onFreeze, when set, is invoked on state transitions: true on the
	// freeze edge, false on thaw. Called from the detector goroutine; must
	// not block.
	onFreeze func(frozen bool, at time.Time)
}

// NewShield creates a Shield that drives the freeze status on state.
func NewShield(state *State, params ShieldParams, rec *metrics.Recorder, logger *slog.Logger) *Shield {
	return &Shield{
		state:   state,
		params:  params,
		metrics: rec,
		logger:  logger.With(slog.String("component", "shield")),
	}
}

// OnFreeze registers a callback for freeze and thaw edges.
func (sh *Shield) OnFreeze(fn func(frozen bool, at time.Time)) {
	sh.onFreeze = fn
}

// Admit records a signal occurrence at now and reports whether dispatch may
// proceed. Signals are always measured, frozen or not; only the return value
// gates downstream work.
func (sh *Shield) Admit(now time.Time) bool {
	sh.window = append(sh.window, now)
	cutoff := now.Add(-sh.params.Window)
	for len(sh.window) > 0 && sh.window[0].Before(cutoff) {
		sh.window = sh.window[1:]
	}

	if len(sh.window) > sh.params.MaxSignals {
		if sh.state.freeze(now) {
			sh.metrics.ShieldFroze()
			sh.logger.Warn("signal density spike, freezing dispatch",
				slog.Int("window_population", len(sh.window)),
				slog.Int("max_signals", sh.params.MaxSignals),
			)
			if sh.onFreeze != nil {
				sh.onFreeze(true, now)
			}
		}
		return false
	}

	if sh.state.Status() == domain.StatusFrozen {
		if now.Sub(sh.state.FrozenAt()) < sh.params.Cooldown {
			return false
		}
		sh.state.thaw()
		sh.logger.Info("stability restored, dispatch resumed")
		if sh.onFreeze != nil {
			sh.onFreeze(false, now)
		}
	}
	return true
}

// WindowPopulation returns the current number of timestamps in the window.
func (sh *Shield) WindowPopulation() int {
	return len(sh.window)
}
