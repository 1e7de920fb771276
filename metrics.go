// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mboxrpc

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsSubsystem = "mboxrpc"

// Metrics holds the endpoint counters.
type Metrics struct {
	calls        *prometheus.CounterVec
	synthesized  *prometheus.CounterVec
	dropped      prometheus.Counter
	cleared      prometheus.Counter
	hwTimeouts   prometheus.Counter
	dataNotReady prometheus.Counter
}

func newMetrics(endpoint string, reg prometheus.Registerer) (*Metrics, error) {
	labels := prometheus.Labels{"endpoint": endpoint}
	m := &Metrics{
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Subsystem:   metricsSubsystem,
				Name:        "calls_total",
				Help:        "Calls issued by kind and outcome",
				ConstLabels: labels,
			},
			[]string{"kind", "status"},
		),
		synthesized: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Subsystem:   metricsSubsystem,
				Name:        "synthesized_responses_total",
				Help:        "Responses synthesized by the dispatcher for requests it could not queue",
				ConstLabels: labels,
			},
			[]string{"status"},
		),
		dropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Subsystem:   metricsSubsystem,
				Name:        "dropped_responses_total",
				Help:        "Synthesized responses dropped because the outgoing fifo was full",
				ConstLabels: labels,
			},
		),
		cleared: prometheus.NewCounter(
			prometheus.CounterOpts{
				Subsystem:   metricsSubsystem,
				Name:        "cleared_requests_total",
				Help:        "Queued requests discarded when their server fifo was cleared",
				ConstLabels: labels,
			},
		),
		hwTimeouts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Subsystem:   metricsSubsystem,
				Name:        "hw_timeouts_total",
				Help:        "Transmissions abandoned because the mailbox stayed busy",
				ConstLabels: labels,
			},
		),
		dataNotReady: prometheus.NewCounter(
			prometheus.CounterOpts{
				Subsystem:   metricsSubsystem,
				Name:        "data_not_ready_total",
				Help:        "Out-of-band payloads whose sequence tag never matched",
				ConstLabels: labels,
			},
		),
	}
	if reg != nil {
		for _, c := range m.collectors() {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.calls, m.synthesized, m.dropped, m.cleared, m.hwTimeouts, m.dataNotReady}
}

func (m *Metrics) observeCall(kind Kind, status Status) {
	m.calls.WithLabelValues(kind.String(), status.String()).Inc()
}

// Calls returns the counter for calls of kind that ended with status.
func (m *Metrics) Calls(kind Kind, status Status) prometheus.Counter {
	return m.calls.WithLabelValues(kind.String(), status.String())
}

// Synthesized returns the counter of dispatcher responses with status.
func (m *Metrics) Synthesized(status Status) prometheus.Counter {
	return m.synthesized.WithLabelValues(status.String())
}

// Dropped returns the counter of dropped synthesized responses.
func (m *Metrics) Dropped() prometheus.Counter { return m.dropped }

// Cleared returns the counter of queued requests discarded by a fifo
// reset or server teardown.
func (m *Metrics) Cleared() prometheus.Counter { return m.cleared }

// HwTimeouts returns the counter of hardware transmit timeouts.
func (m *Metrics) HwTimeouts() prometheus.Counter { return m.hwTimeouts }

// DataNotReady returns the counter of unready out-of-band payloads.
func (m *Metrics) DataNotReady() prometheus.Counter { return m.dataNotReady }
