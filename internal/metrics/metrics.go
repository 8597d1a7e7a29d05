// Package metrics exposes Prometheus instrumentation for the notification
// pipeline and the HTTP surface.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WatcherReconnects counts listener connection attempts, successful or not.
	WatcherReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "arena",
		Subsystem: "watcher",
		Name:      "reconnects_total",
		Help:      "Number of times the notification listener (re)connected.",
	})

	// WatcherResyncs counts full-reload rounds triggered by (re)connects.
	WatcherResyncs = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "arena",
		Subsystem: "watcher",
		Name:      "resyncs_total",
		Help:      "Number of resync rounds run after (re)connecting.",
	})

	// EventsReceived counts notifications received, by kind and table.
	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arena",
		Subsystem: "watcher",
		Name:      "events_received_total",
		Help:      "Notifications received from the database.",
	}, []string{"kind", "table"})

	// CallbacksDispatched counts callback invocations, by kind and table.
	CallbacksDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arena",
		Subsystem: "watcher",
		Name:      "callbacks_dispatched_total",
		Help:      "Callbacks dispatched to subscribers.",
	}, []string{"kind", "table"})

	// CallbackPanics counts panics recovered inside subscriber callbacks.
	CallbackPanics = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "arena",
		Subsystem: "watcher",
		Name:      "callback_panics_total",
		Help:      "Panics recovered while running subscriber callbacks.",
	})

	// EventStreamClients gauges currently connected event-stream clients.
	EventStreamClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "arena",
		Subsystem: "events",
		Name:      "stream_clients",
		Help:      "Currently connected server-sent-event clients.",
	})
)
