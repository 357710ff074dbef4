// Package metrics provides Prometheus metrics for echoping runs and servers.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/velemoonkon/echoping/pkg/stats"
)

const namespace = "echoping"

// Store holds all metrics. A nil *Store is valid and records nothing.
type Store struct {
	// Wire metrics, labelled by probe (icmp, tcp, udp)
	PacketsSent     *prometheus.CounterVec
	PacketsReceived *prometheus.CounterVec
	BytesSent       *prometheus.CounterVec
	BytesReceived   *prometheus.CounterVec

	// Attempt outcomes, labelled by probe and status
	Attempts *prometheus.CounterVec
	RTT      *prometheus.HistogramVec

	// ICMP datagrams read while waiting that did not match the request
	Discarded *prometheus.CounterVec

	// Runs
	RunsActive prometheus.Gauge
	RunsFailed *prometheus.CounterVec

	// Echo servers
	ServerConnections *prometheus.CounterVec
	ServerEchoes      *prometheus.CounterVec
}

var (
	defaultStore *Store
	storeOnce    sync.Once
)

// Default returns the store registered with the default registry
func Default() *Store {
	storeOnce.Do(func() {
		defaultStore = NewStore()
	})
	return defaultStore
}

// NewStore creates a Store registered with prometheus.DefaultRegisterer
func NewStore() *Store {
	return NewStoreWithRegistry(prometheus.DefaultRegisterer)
}

// NewStoreWithRegistry creates a Store registered with reg
func NewStoreWithRegistry(reg prometheus.Registerer) *Store {
	factory := promauto.With(reg)

	return &Store{
		PacketsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_sent_total",
			Help:      "Total echo requests sent",
		}, []string{"probe"}),
		PacketsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_received_total",
			Help:      "Total echo replies received",
		}, []string{"probe"}),
		BytesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Total request bytes sent",
		}, []string{"probe"}),
		BytesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Total reply bytes received",
		}, []string{"probe"}),

		Attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Ping attempts by outcome",
		}, []string{"probe", "status"}),
		RTT: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rtt_seconds",
			Help:      "Round-trip time of successful attempts",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		}, []string{"probe"}),
		Discarded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datagrams_discarded_total",
			Help:      "Inbound ICMP datagrams ignored while waiting for a reply",
		}, []string{"reason"}),

		RunsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_active",
			Help:      "Number of runs in progress",
		}),
		RunsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_failed_total",
			Help:      "Runs aborted by a fatal error",
		}, []string{"probe"}),

		ServerConnections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "server_connections_total",
			Help:      "Connections accepted by echo servers",
		}, []string{"transport"}),
		ServerEchoes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "server_echoes_total",
			Help:      "Payloads echoed by echo servers",
		}, []string{"transport"}),
	}
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor serves a specific registry
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// RecordSent records one request of n bytes
func (s *Store) RecordSent(probe string, n int) {
	if s == nil {
		return
	}
	s.PacketsSent.WithLabelValues(probe).Inc()
	s.BytesSent.WithLabelValues(probe).Add(float64(n))
}

// RecordReceived records one reply of n bytes
func (s *Store) RecordReceived(probe string, n int) {
	if s == nil {
		return
	}
	s.PacketsReceived.WithLabelValues(probe).Inc()
	s.BytesReceived.WithLabelValues(probe).Add(float64(n))
}

// RecordAttempt records the outcome of an attempt
func (s *Store) RecordAttempt(probe string, a stats.Attempt) {
	if s == nil {
		return
	}
	s.Attempts.WithLabelValues(probe, string(a.Status)).Inc()
	if a.OK() {
		s.RTT.WithLabelValues(probe).Observe(a.RTT.Seconds())
	}
}

// RecordDiscarded records an ignored inbound datagram
func (s *Store) RecordDiscarded(reason string) {
	if s == nil {
		return
	}
	s.Discarded.WithLabelValues(reason).Inc()
}

// RunStarted marks a run as active and returns a func that ends it
func (s *Store) RunStarted() func() {
	if s == nil {
		return func() {}
	}
	s.RunsActive.Inc()
	return s.RunsActive.Dec
}

// RecordRunFailed records a run aborted by a fatal error
func (s *Store) RecordRunFailed(probe string) {
	if s == nil {
		return
	}
	s.RunsFailed.WithLabelValues(probe).Inc()
}

// RecordServerConnection records an accepted server connection
func (s *Store) RecordServerConnection(transport string) {
	if s == nil {
		return
	}
	s.ServerConnections.WithLabelValues(transport).Inc()
}

// RecordServerEcho records one echoed payload
func (s *Store) RecordServerEcho(transport string) {
	if s == nil {
		return
	}
	s.ServerEchoes.WithLabelValues(transport).Inc()
}
