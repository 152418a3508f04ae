// Package metrics exposes the arena server's operational counters over a
// dedicated Prometheus endpoint, kept off the public API listener.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the counters updated by the server and game packages.
type Metrics struct {
	AgentsRegistered  prometheus.Counter
	MessagesStored    prometheus.Counter
	SessionsStarted   prometheus.Counter
	SessionsCompleted prometheus.Counter
	WebsocketConnects prometheus.Counter
	QueueLength       prometheus.Gauge
}

func newMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AgentsRegistered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agents_registered_total",
			Help:      "Number of agent registrations accepted.",
		}),
		MessagesStored: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_stored_total",
			Help:      "Number of messages appended to the mailbox log.",
		}),
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Number of game sessions launched from the queue.",
		}),
		SessionsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_completed_total",
			Help:      "Number of game sessions that ran to completion.",
		}),
		WebsocketConnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "websocket_connects_total",
			Help:      "Number of accepted websocket connections.",
		}),
		QueueLength: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_length",
			Help:      "Agents currently waiting in the matchmaking queue.",
		}),
	}
}

// MetricsServer serves the Prometheus scrape endpoint on its own listener.
type MetricsServer struct {
	*Metrics
	srv *http.Server
}

// New creates the metrics registry and scrape server. An empty addr disables
// the listener; the counters still work and simply go unscraped.
func New(namespace, addr string) (*MetricsServer, error) {
	reg := prometheus.NewRegistry()
	m := newMetrics(namespace, reg)

	ms := &MetricsServer{Metrics: m}
	if addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		ms.srv = &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
	}
	return ms, nil
}

// ListenAndServe blocks serving the scrape endpoint. No-op when no address
// was configured.
func (m *MetricsServer) ListenAndServe() error {
	if m.srv == nil {
		return nil
	}
	return m.srv.ListenAndServe()
}

// Shutdown gracefully stops the scrape server.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	if m.srv == nil {
		return nil
	}
	return m.srv.Shutdown(ctx)
}
