package polymarket

import (
	"strconv"
	"time"

	"ghostarb/internal/domain"
)

// APIPrice is the /price response. Prices come back as decimal strings.
type APIPrice struct {
	Price string `json:"price"`
}

func (p APIPrice) Value() (float64, error) {
	return strconv.ParseFloat(p.Price, 64)
}

// APIMidpoint is the /midpoint response.
type APIMidpoint struct {
	Mid string `json:"mid"`
}

func (m APIMidpoint) Value() (float64, error) {
	return strconv.ParseFloat(m.Mid, 64)
}

// APIBookLevel is one price level in the /book response.
type APIBookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// APIBook is the /book response.
type APIBook struct {
	Market    string         `json:"market"`
	AssetID   string         `json:"asset_id"`
	Timestamp string         `json:"timestamp"`
	Bids      []APIBookLevel `json:"bids"`
	Asks      []APIBookLevel `json:"asks"`
}

// ToDomain converts the API book to a domain snapshot. Unparseable levels
// are dropped rather than failing the whole snapshot.
func (b APIBook) ToDomain(tokenID string) domain.OrderbookSnapshot {
	snap := domain.OrderbookSnapshot{
		TokenID:   tokenID,
		Bids:      toLevels(b.Bids),
		Asks:      toLevels(b.Asks),
		Timestamp: time.Now(),
	}
	if ms, err := strconv.ParseInt(b.Timestamp, 10, 64); err == nil && ms > 0 {
		snap.Timestamp = time.UnixMilli(ms)
	}
	return snap
}

func toLevels(in []APIBookLevel) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(in))
	for _, lvl := range in {
		price, err1 := strconv.ParseFloat(lvl.Price, 64)
		size, err2 := strconv.ParseFloat(lvl.Size, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		out = append(out, domain.PriceLevel{Price: price, Size: size})
	}
	return out
}

// APIMarket is one entry of the Gamma /markets response, reduced to the
// fields the engine reads.
type APIMarket struct {
	Question        string `json:"question"`
	AcceptingOrders bool   `json:"acceptingOrders"`
	Active          bool   `json:"active"`
	Closed          bool   `json:"closed"`
}

func (m APIMarket) ToDomain(tokenID string) domain.MarketInfo {
	return domain.MarketInfo{
		TokenID:         tokenID,
		Question:        m.Question,
		AcceptingOrders: m.AcceptingOrders && m.Active && !m.Closed,
	}
}
