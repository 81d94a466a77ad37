package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the engine's prometheus instruments. A nil Recorder is a
// valid no-op so callers never have to branch on whether metrics are wired.
type Recorder struct {
	registry *prometheus.Registry

	signalsTotal   prometheus.Counter
	freezesTotal   prometheus.Counter
	skipsTotal     *prometheus.CounterVec
	positionsTotal *prometheus.CounterVec
	spotPrice      prometheus.Gauge
	marketPrice    prometheus.Gauge
	feedReconnects prometheus.Counter
	slotsInUse     prometheus.Gauge
}

func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		signalsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "ghostarb_signals_total",
			Help: "Divergence signals admitted for dispatch.",
		}),
		freezesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "ghostarb_shield_freezes_total",
			Help: "Transitions into the FROZEN state.",
		}),
		skipsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ghostarb_trade_skips_total",
			Help: "Dispatched signals that did not open a position.",
		}, []string{"reason"}),
		positionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ghostarb_positions_total",
			Help: "Settled positions by path and exit reason.",
		}, []string{"path", "reason"}),
		spotPrice: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ghostarb_spot_price",
			Help: "Latest spot price from the fast feed.",
		}),
		marketPrice: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ghostarb_market_price",
			Help: "Latest prediction market YES price.",
		}),
		feedReconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "ghostarb_feed_reconnects_total",
			Help: "Spot feed reconnect attempts.",
		}),
		slotsInUse: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ghostarb_slots_in_use",
			Help: "Open executed positions across all accounts.",
		}),
	}
}

// Handler serves the registry in the prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) SignalAdmitted() {
	if r != nil {
		r.signalsTotal.Inc()
	}
}

func (r *Recorder) ShieldFroze() {
	if r != nil {
		r.freezesTotal.Inc()
	}
}

func (r *Recorder) TradeSkipped(reason string) {
	if r != nil {
		r.skipsTotal.WithLabelValues(reason).Inc()
	}
}

func (r *Recorder) PositionSettled(path, reason string) {
	if r != nil {
		r.positionsTotal.WithLabelValues(path, reason).Inc()
	}
}

func (r *Recorder) SpotPrice(p float64) {
	if r != nil {
		r.spotPrice.Set(p)
	}
}

func (r *Recorder) MarketPrice(p float64) {
	if r != nil {
		r.marketPrice.Set(p)
	}
}

func (r *Recorder) FeedReconnect() {
	if r != nil {
		r.feedReconnects.Inc()
	}
}

func (r *Recorder) SlotsInUse(n int) {
	if r != nil {
		r.slotsInUse.Set(float64(n))
	}
}
