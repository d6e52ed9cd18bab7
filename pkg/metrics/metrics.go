// Package metrics holds the Prometheus collectors of the install pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values.
const (
	ResultDownloaded = "downloaded"
	ResultCached     = "cached"
	ResultSuccess    = "success"
	ResultError      = "error"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	FetchTotal            *prometheus.CounterVec
	InstallTotal          *prometheus.CounterVec
	InstallDuration       *prometheus.HistogramVec
	RegistryInvalidations prometheus.Counter
	RegistryLoads         prometheus.Counter
	RegistryPlugins       prometheus.Gauge
}

// New registers the collectors on reg. A nil reg uses a private registry so
// repeated construction never collides.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		FetchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitepkg_fetch_total",
				Help: "Package fetches by result",
			},
			[]string{"result"},
		),
		InstallTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitepkg_install_total",
				Help: "Package installs by type and result",
			},
			[]string{"type", "result"},
		),
		InstallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sitepkg_install_duration_seconds",
				Help:    "Duration of fetch plus install in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"type"},
		),
		RegistryInvalidations: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sitepkg_registry_invalidations_total",
				Help: "Plugin registry invalidations",
			},
		),
		RegistryLoads: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sitepkg_registry_loads_total",
				Help: "Plugin directory scans",
			},
		),
		RegistryPlugins: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sitepkg_registry_plugins",
				Help: "Plugins found by the last scan",
			},
		),
	}
}

// ObserveFetch counts a fetch outcome.
func (m *Metrics) ObserveFetch(result string) {
	if m == nil {
		return
	}
	m.FetchTotal.WithLabelValues(result).Inc()
}

// ObserveInstall counts an install outcome and its duration.
func (m *Metrics) ObserveInstall(packageType string, success bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := ResultSuccess
	if !success {
		result = ResultError
	}
	m.InstallTotal.WithLabelValues(packageType, result).Inc()
	m.InstallDuration.WithLabelValues(packageType).Observe(elapsed.Seconds())
}

// ObserveInvalidation counts a registry invalidation.
func (m *Metrics) ObserveInvalidation() {
	if m == nil {
		return
	}
	m.RegistryInvalidations.Inc()
}

// ObserveLoad counts a registry scan that found n plugins.
func (m *Metrics) ObserveLoad(n int) {
	if m == nil {
		return
	}
	m.RegistryLoads.Inc()
	m.RegistryPlugins.Set(float64(n))
}
