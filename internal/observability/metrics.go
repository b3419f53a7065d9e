package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// forecast service.
type Metrics struct {
	CyclesTotal    *prometheus.CounterVec // labels: trigger={scheduled,forced}
	CycleErrors    prometheus.Counter
	CycleDuration  prometheus.Histogram
	RiskScore      prometheus.Gauge
	EventsInWindow *prometheus.GaugeVec   // labels: kind={cme,flare}

	// DONKI feed metrics.
	FeedRequests    *prometheus.CounterVec   // labels: catalog={cme,flare}, outcome={success,error}
	FeedCache       *prometheus.CounterVec   // labels: result={hit,miss}
	FeedAPIDuration *prometheus.HistogramVec // labels: catalog={cme,flare}

	// Narrative generation metrics.
	NarrativeRequests  *prometheus.CounterVec // labels: outcome={success,error}
	NarrativeFallbacks prometheus.Counter
	NarrativeDuration  prometheus.Histogram
	NarrativeEnabled   prometheus.Gauge

	// Broadcast hub metrics.
	Subscribers         prometheus.Gauge
	Broadcasts          *prometheus.CounterVec // labels: type
	SubscriberEvictions prometheus.Counter

	// Forecast export metrics.
	SinkPublishes *prometheus.CounterVec // labels: sink, outcome={success,error}
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "solar_forecast",
			Name:      "cycles_total",
			Help:      "Forecast cycles run, by trigger.",
		}, []string{"trigger"}),
		CycleErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "solar_forecast",
			Name:      "cycle_errors_total",
			Help:      "Forecast cycles that completed with at least one feed failure.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "solar_forecast",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a complete fetch-classify-synthesize cycle.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		RiskScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "solar_forecast",
			Name:      "risk_score",
			Help:      "Composite risk score of the latest forecast, 0-100.",
		}),
		EventsInWindow: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "solar_forecast",
			Name:      "events_in_window",
			Help:      "Events observed in the current window, by kind.",
		}, []string{"kind"}),
		FeedRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "solar_forecast",
			Name:      "feed_requests_total",
			Help:      "DONKI API requests by catalog and outcome.",
		}, []string{"catalog", "outcome"}),
		FeedCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "solar_forecast",
			Name:      "feed_cache_total",
			Help:      "Feed cache lookups by result.",
		}, []string{"result"}),
		FeedAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "solar_forecast",
			Name:      "feed_api_duration_seconds",
			Help:      "DONKI API request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"catalog"}),
		NarrativeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "solar_forecast",
			Name:      "narrative_requests_total",
			Help:      "Narrative generation attempts by outcome.",
		}, []string{"outcome"}),
		NarrativeFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "solar_forecast",
			Name:      "narrative_fallbacks_total",
			Help:      "Forecasts synthesized from templates after narrative generation was unavailable or failed.",
		}),
		NarrativeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "solar_forecast",
			Name:      "narrative_duration_seconds",
			Help:      "Narrative API request duration in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 30},
		}),
		NarrativeEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "solar_forecast",
			Name:      "narrative_enabled",
			Help:      "1 when AI narrative generation is enabled, 0 otherwise.",
		}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "solar_forecast",
			Name:      "subscribers",
			Help:      "Currently connected broadcast subscribers.",
		}),
		Broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "solar_forecast",
			Name:      "broadcasts_total",
			Help:      "Messages broadcast to subscribers, by message type.",
		}, []string{"type"}),
		SubscriberEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "solar_forecast",
			Name:      "subscriber_evictions_total",
			Help:      "Subscribers dropped because their send queue stayed full.",
		}),
		SinkPublishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "solar_forecast",
			Name:      "sink_publishes_total",
			Help:      "Forecast bundles handed to export sinks, by sink and outcome.",
		}, []string{"sink", "outcome"}),
	}

	prometheus.MustRegister(
		m.CyclesTotal,
		m.CycleErrors,
		m.CycleDuration,
		m.RiskScore,
		m.EventsInWindow,
		m.FeedRequests,
		m.FeedCache,
		m.FeedAPIDuration,
		m.NarrativeRequests,
		m.NarrativeFallbacks,
		m.NarrativeDuration,
		m.NarrativeEnabled,
		m.Subscribers,
		m.Broadcasts,
		m.SubscriberEvictions,
		m.SinkPublishes,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		CyclesTotal:         prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "solar_forecast", Name: "cycles_total"}, []string{"trigger"}),
		CycleErrors:         prometheus.NewCounter(prometheus.CounterOpts{Namespace: "solar_forecast", Name: "cycle_errors_total"}),
		CycleDuration:       prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "solar_forecast", Name: "cycle_duration_seconds"}),
		RiskScore:           prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "solar_forecast", Name: "risk_score"}),
		EventsInWindow:      prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: "solar_forecast", Name: "events_in_window"}, []string{"kind"}),
		FeedRequests:        prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "solar_forecast", Name: "feed_requests_total"}, []string{"catalog", "outcome"}),
		FeedCache:           prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "solar_forecast", Name: "feed_cache_total"}, []string{"result"}),
		FeedAPIDuration:     prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: "solar_forecast", Name: "feed_api_duration_seconds"}, []string{"catalog"}),
		NarrativeRequests:   prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "solar_forecast", Name: "narrative_requests_total"}, []string{"outcome"}),
		NarrativeFallbacks:  prometheus.NewCounter(prometheus.CounterOpts{Namespace: "solar_forecast", Name: "narrative_fallbacks_total"}),
		NarrativeDuration:   prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "solar_forecast", Name: "narrative_duration_seconds"}),
		NarrativeEnabled:    prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "solar_forecast", Name: "narrative_enabled"}),
		Subscribers:         prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "solar_forecast", Name: "subscribers"}),
		Broadcasts:          prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "solar_forecast", Name: "broadcasts_total"}, []string{"type"}),
		SubscriberEvictions: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "solar_forecast", Name: "subscriber_evictions_total"}),
		SinkPublishes:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "solar_forecast", Name: "sink_publishes_total"}, []string{"sink", "outcome"}),
	}
}
