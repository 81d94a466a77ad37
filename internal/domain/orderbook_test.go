package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEffectiveAskPrice_SingleLevel(t *testing.T) {
	book := OrderbookSnapshot{
		Asks: []PriceLevel{{Price: 0.50, Size: 100}},
	}

	// $20 fits entirely in the top level: effective price == level price.
	price, err := book.EffectiveAskPrice(20)
	require.NoError(t, err)
	assert.InDelta(t, 0.50, price, 1e-9)
}

func TestEffectiveAskPrice_BlendedWalk(t *testing.T) {
	book := OrderbookSnapshot{
		Asks: []PriceLevel{
			{Price: 0.50, Size: 100}, // $50 of depth
			{Price: 0.55, Size: 50},  // $27.50 of depth
		},
	}

	// $60 consumes all of the first level plus $10 of the second:
	// tokens = 100 + 10/0.55 = 118.181..., effective = 60/118.181... = 0.50769...
	price, err := book.EffectiveAskPrice(60)
	require.NoError(t, err)
	assert.Greater(t, price, 0.50, "must reflect the walk, not top-of-book")
	assert.InDelta(t, 0.50769, price, 0.0001)
}

func TestEffectiveAskPrice_InsufficientDepth(t *testing.T) {
	book := OrderbookSnapshot{
		Asks: []PriceLevel{{Price: 0.50, Size: 10}}, // only $5 of depth
	}

	_, err := book.EffectiveAskPrice(100)
	assert.ErrorIs(t, err, ErrThinBook)
}

func TestEffectiveAskPrice_EmptyBookAndBadNotional(t *testing.T) {
	var empty OrderbookSnapshot
	_, err := empty.EffectiveAskPrice(10)
	assert.ErrorIs(t, err, ErrThinBook)

	book := OrderbookSnapshot{Asks: []PriceLevel{{Price: 0.5, Size: 100}}}
	_, err = book.EffectiveAskPrice(0)
	assert.ErrorIs(t, err, ErrThinBook)
}

func TestEffectiveAskPrice_SkipsDegenerateLevels(t *testing.T) {
	book := OrderbookSnapshot{
		Asks: []PriceLevel{
			{Price: 0, Size: 1000},
			{Price: 0.40, Size: 0},
			{Price: 0.50, Size: 100},
		},
	}

	price, err := book.EffectiveAskPrice(25)
	require.NoError(t, err)
	assert.InDelta(t, 0.50, price, 1e-9)
}
