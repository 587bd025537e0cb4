// Package metrics exposes Prometheus counters for the event source.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	domainerrors "whatson/internal/errors"
)

const namespace = "whatson"

// Metrics holds the collectors on a private registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	fetchTotal    *prometheus.CounterVec
	fetchDur      prometheus.Histogram
	cacheTotal    *prometheus.CounterVec
	eventCount    prometheus.Gauge
	lastSuccessTS prometheus.Gauge
}

// New registers the collectors plus the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.fetchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fetch_total",
		Help:      "Listings API fetches by result",
	}, []string{"result"})
	m.fetchDur = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "fetch_duration_seconds",
		Help:      "Time spent fetching and decoding the listings",
		Buckets:   prometheus.DefBuckets,
	})
	m.cacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_lookups_total",
		Help:      "Event cache lookups by result",
	}, []string{"result"})
	m.eventCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "events",
		Help:      "Number of normalized events in the last successful fetch",
	})
	m.lastSuccessTS = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the last successful fetch",
	})

	m.registry.MustRegister(
		m.fetchTotal, m.fetchDur, m.cacheTotal, m.eventCount, m.lastSuccessTS,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveFetch records one API fetch. The result label is "ok" or the
// lower-cased error code.
func (m *Metrics) ObserveFetch(d time.Duration, events int, err error) {
	if m == nil {
		return
	}
	m.fetchDur.Observe(d.Seconds())
	m.fetchTotal.WithLabelValues(resultLabel(err)).Inc()
	if err == nil {
		m.eventCount.Set(float64(events))
		m.lastSuccessTS.SetToCurrentTime()
	}
}

// ObserveCache records one cache lookup.
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheTotal.WithLabelValues(result).Inc()
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var domainErr *domainerrors.Error
	if domainerrors.As(err, &domainErr) {
		return strings.ToLower(string(domainErr.Code))
	}
	return "error"
}
