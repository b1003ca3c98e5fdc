package api

import "github.com/prometheus/client_golang/prometheus"

// apiMetrics holds the façade's own collectors. Callers check for nil
// before touching any counter; nil means instrumentation is off.
type apiMetrics struct {
	requestsTotal   *prometheus.CounterVec
	wsClients       prometheus.Gauge
	wsConnectsTotal prometheus.Counter
	wsEventsTotal   prometheus.Counter
	wsDroppedTotal  prometheus.Counter
}

// newAPIMetrics registers the façade collectors with the given registry.
// Returns nil when the registry is nil, which disables instrumentation.
func newAPIMetrics(registry prometheus.Registerer) *apiMetrics {
	if registry == nil {
		return nil
	}

	m := &apiMetrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "freepbx",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "HTTP requests served, by handler.",
		}, []string{"handler"}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "freepbx",
			Subsystem: "api",
			Name:      "websocket_clients",
			Help:      "Currently connected WebSocket subscribers.",
		}),
		wsConnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "freepbx",
			Subsystem: "api",
			Name:      "websocket_connects_total",
			Help:      "WebSocket connections accepted.",
		}),
		wsEventsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "freepbx",
			Subsystem: "api",
			Name:      "websocket_events_total",
			Help:      "Events accepted for broadcast.",
		}),
		wsDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "freepbx",
			Subsystem: "api",
			Name:      "websocket_dropped_total",
			Help:      "Events dropped because the broadcast buffer was full.",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.wsClients,
		m.wsConnectsTotal,
		m.wsEventsTotal,
		m.wsDroppedTotal,
	)
	return m
}
