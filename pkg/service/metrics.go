package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

// serviceMetrics holds Prometheus metrics for the connector service.
type serviceMetrics struct {
	eventsDispatched *prometheus.CounterVec
	actionsSent      prometheus.Counter
	actionTimeouts   prometheus.Counter
	reconnects       prometheus.Counter
	decodeErrors     prometheus.Counter
	handlerPanics    prometheus.Counter
	activeCalls      prometheus.Gauge
	trackedDevices   prometheus.Gauge
	connectionState  prometheus.Gauge
}

// newServiceMetrics creates and registers the service metrics.
func newServiceMetrics(registry prometheus.Registerer) *serviceMetrics {
	if registry == nil {
		return nil
	}

	metrics := &serviceMetrics{
		eventsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "freepbx",
			Subsystem: "connector",
			Name:      "events_dispatched_total",
			Help:      "Manager events dispatched, by event name",
		}, []string{"event"}),

		actionsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "freepbx",
			Subsystem: "connector",
			Name:      "actions_sent_total",
			Help:      "Manager actions sent through SendAction",
		}),

		actionTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "freepbx",
			Subsystem: "connector",
			Name:      "action_timeouts_total",
			Help:      "Manager actions that expired without a response",
		}),

		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "freepbx",
			Subsystem: "connector",
			Name:      "reconnect_attempts_total",
			Help:      "Reconnection attempts scheduled by the supervisor",
		}),

		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "freepbx",
			Subsystem: "connector",
			Name:      "decode_errors_total",
			Help:      "Inbound blocks dropped as undecodable",
		}),

		handlerPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "freepbx",
			Subsystem: "connector",
			Name:      "handler_panics_total",
			Help:      "Event handler panics recovered by the dispatcher",
		}),

		activeCalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "freepbx",
			Subsystem: "connector",
			Name:      "active_calls",
			Help:      "Calls currently tracked",
		}),

		trackedDevices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "freepbx",
			Subsystem: "connector",
			Name:      "tracked_devices",
			Help:      "Devices with a known state",
		}),

		connectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "freepbx",
			Subsystem: "connector",
			Name:      "connection_state",
			Help:      "Manager link state (0 disconnected, 1 connecting, 2 connected, 3 ready)",
		}),
	}

	registry.MustRegister(
		metrics.eventsDispatched,
		metrics.actionsSent,
		metrics.actionTimeouts,
		metrics.reconnects,
		metrics.decodeErrors,
		metrics.handlerPanics,
		metrics.activeCalls,
		metrics.trackedDevices,
		metrics.connectionState,
	)

	return metrics
}
