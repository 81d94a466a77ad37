// Package domain defines the core types shared across the ghostarb engine:
// signals, accounts, positions, settlement records, and the store interfaces
// their persistence hides behind.
package domain

import "time"

// EngineStatus is the circuit-breaker state of the whole engine.
type EngineStatus string

const (
	StatusStable EngineStatus = "STABLE"
	StatusFrozen EngineStatus = "FROZEN"
)

// Signal is a detected short-horizon divergence between the spot feed and the
// prediction market. Signals are ephemeral: they are consumed by dispatch
// immediately and never persisted on their own.
type Signal struct {
	Time       time.Time
	Move       float64 // signed fractional move over the base lookback
	Velocity   float64 // signed fractional move over the short lookback
	Confidence float64 // 0..1, derived from move strength vs threshold
}

// PriceSample is a single spot price observation. Histories of samples are
// bounded and time-ordered (timestamps monotonically non-decreasing).
type PriceSample struct {
	Time  time.Time
	Price float64
}
