// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "diskstream"

// Metrics returns a Prometheus registry exposing the broker's state
// and counters. Every metric is read from the broker at scrape time;
// nothing is registered globally.
func (b *Broker) Metrics() *prometheus.Registry {
	registry := prometheus.NewRegistry()

	registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "producers_connected",
			Help:      "Producer connections currently registered.",
		}, func() float64 { return float64(b.registry.Len()) }),

		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "subscribers_waiting",
			Help:      "Entries in the waiting-subscriber queue.",
		}, func() float64 { return float64(b.waiting.Len()) }),

		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "records_forwarded_total",
			Help:      "Stream records delivered to a subscriber.",
		}, func() float64 { return float64(b.counters.recordsForwarded.Load()) }),

		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "bytes_forwarded_total",
			Help:      "Bytes of header and payload delivered to subscribers.",
		}, func() float64 { return float64(b.counters.bytesForwarded.Load()) }),
	)

	dropped := map[string]func() uint64{
		"no_subscriber":   b.counters.droppedNoSubscriber.Load,
		"delivery_failed": b.counters.droppedDeliveryFailed.Load,
	}
	for reason, load := range dropped {
		registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "records_dropped_total",
			Help:        "Stream records discarded instead of delivered.",
			ConstLabels: prometheus.Labels{"reason": reason},
		}, func() float64 { return float64(load()) }))
	}

	for reason, counter := range b.counters.violations {
		registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "protocol_violations_total",
			Help:        "Producer connections closed for breaking the stream rules.",
			ConstLabels: prometheus.Labels{"reason": reason},
		}, func() float64 { return float64(counter.Load()) }))
	}

	return registry
}

// MetricsHandler serves Metrics() in the Prometheus exposition format.
func (b *Broker) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(b.Metrics(), promhttp.HandlerOpts{})
}
