package binance

import (
	"strconv"
	"time"
)

// TradeEvent is one message from the @trade stream. Prices arrive as decimal
// strings, timestamps as Unix milliseconds.
type TradeEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	TradeTime int64  `json:"T"`
}

// PriceFloat parses the trade price.
func (t TradeEvent) PriceFloat() (float64, error) {
	return strconv.ParseFloat(t.Price, 64)
}

// Time returns the trade timestamp, falling back to the event timestamp and
// then to local time when the exchange omits it.
func (t TradeEvent) Time() time.Time {
	switch {
	case t.TradeTime > 0:
		return time.UnixMilli(t.TradeTime)
	case t.EventTime > 0:
		return time.UnixMilli(t.EventTime)
	default:
		return time.Now()
	}
}
