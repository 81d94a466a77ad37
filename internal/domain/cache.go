package domain

import (
	"context"
	"time"
)

// PriceCache provides fast external access to the latest feed prices. It is
// observability plumbing for out-of-process collaborators; the engine itself
// reads prices from its in-memory state.
type PriceCache interface {
	SetPrice(ctx context.Context, key string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, key string) (float64, time.Time, error)
}

// SignalBus publishes engine events (signals, settlements) for out-of-process
// collaborators (chat surface, downstream analytics) to consume.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
