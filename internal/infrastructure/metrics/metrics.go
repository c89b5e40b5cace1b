// Package metrics exposes change feed and store activity to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/autocrm-inc/autocrm/internal/domain/changefeed"
)

const namespace = "autocrm"

// Recorder implements clientstate.Metrics, pubsub.HubMetrics and the
// realtime handler's connection metrics.
type Recorder struct {
	registry *prometheus.Registry

	fetchDuration    *prometheus.HistogramVec
	fetchErrors      *prometheus.CounterVec
	eventsApplied    *prometheus.CounterVec
	eventsDropped    *prometheus.CounterVec
	subscriptions    *prometheus.GaugeVec
	reconnects       *prometheus.CounterVec
	eventsPublished  *prometheus.CounterVec
	subscribersEvict *prometheus.CounterVec
	hubSubscribers   prometheus.Gauge
	clients          *prometheus.GaugeVec
}

// New registers the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of store fetches against the backend.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"store"}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "fetch_errors_total",
			Help:      "Store fetches that failed.",
		}, []string{"store"}),
		eventsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "events_applied_total",
			Help:      "Change events applied to a store.",
		}, []string{"store", "kind"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "events_dropped_total",
			Help:      "Change events a store ignored.",
		}, []string{"store", "reason"}),
		subscriptions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "subscriptions",
			Help:      "Open store subscriptions.",
		}, []string{"store"}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "stream_reconnects_total",
			Help:      "Change streams reopened after a failure.",
		}, []string{"store"}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "events_published_total",
			Help:      "Change events published to the hub.",
		}, []string{"table"}),
		subscribersEvict: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "subscribers_evicted_total",
			Help:      "Hub subscribers dropped for falling behind.",
		}, []string{"table"}),
		hubSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "subscribers",
			Help:      "Open hub streams.",
		}),
		clients: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "clients",
			Help:      "Connected change feed clients.",
		}, []string{"transport"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.fetchDuration,
		r.fetchErrors,
		r.eventsApplied,
		r.eventsDropped,
		r.subscriptions,
		r.reconnects,
		r.eventsPublished,
		r.subscribersEvict,
		r.hubSubscribers,
		r.clients,
	)
	return r
}

// Registry returns the registry the collectors live in.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Recorder) ObserveFetch(store string, d time.Duration, err error) {
	r.fetchDuration.WithLabelValues(store).Observe(d.Seconds())
	if err != nil {
		r.fetchErrors.WithLabelValues(store).Inc()
	}
}

func (r *Recorder) EventApplied(store string, kind changefeed.Kind) {
	r.eventsApplied.WithLabelValues(store, kind.String()).Inc()
}

func (r *Recorder) EventDropped(store, reason string) {
	r.eventsDropped.WithLabelValues(store, reason).Inc()
}

func (r *Recorder) SubscriptionOpened(store string) {
	r.subscriptions.WithLabelValues(store).Inc()
}

func (r *Recorder) SubscriptionClosed(store string) {
	r.subscriptions.WithLabelValues(store).Dec()
}

func (r *Recorder) StreamReconnected(store string) {
	r.reconnects.WithLabelValues(store).Inc()
}

func (r *Recorder) EventPublished(table string) {
	r.eventsPublished.WithLabelValues(table).Inc()
}

func (r *Recorder) SubscriberEvicted(table string) {
	r.subscribersEvict.WithLabelValues(table).Inc()
}

func (r *Recorder) SubscribersChanged(n int) {
	r.hubSubscribers.Set(float64(n))
}

func (r *Recorder) ClientConnected(transport string) {
	r.clients.WithLabelValues(transport).Inc()
}

func (r *Recorder) ClientDisconnected(transport string) {
	r.clients.WithLabelValues(transport).Dec()
}
