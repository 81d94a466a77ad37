package domain

import "time"

// PriceLevel is a single price+size entry in an orderbook. Size is in tokens.
type PriceLevel struct {
	Price float64
	Size  float64
}

// OrderbookSnapshot is a snapshot of the resting orders for a market token.
type OrderbookSnapshot struct {
	TokenID   string
	Bids      []PriceLevel
	Asks      []PriceLevel
	Timestamp time.Time
}

// EffectiveAskPrice walks the resting asks and returns the blended price paid
// to fill notional dollars of buying: notional divided by the tokens
// obtainable across however many levels the fill spans. When the book cannot
// absorb the notional it returns ErrThinBook; callers treat that as
// worst-case liquidity and skip.
func (b OrderbookSnapshot) EffectiveAskPrice(notional float64) (float64, error) {
	if notional <= 0 {
		return 0, ErrThinBook
	}

	var filled, tokens float64
	for _, lvl := range b.Asks {
		if lvl.Price <= 0 || lvl.Size <= 0 {
			continue
		}
		levelNotional := lvl.Price * lvl.Size
		take := notional - filled
		if take > levelNotional {
			take = levelNotional
		}
		tokens += take / lvl.Price
		filled += take
		if filled >= notional {
			break
		}
	}

	if filled < notional || tokens <= 0 {
		return 0, ErrThinBook
	}
	return notional / tokens, nil
}

// MarketInfo identifies the tracked prediction-market instrument. The token
// may be swapped by an external rollover process between ticks; the engine
// only ever reads the latest value.
type MarketInfo struct {
	TokenID         string
	Question        string
	AcceptingOrders bool
}
