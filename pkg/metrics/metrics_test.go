package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveFetch(ResultDownloaded)
	m.ObserveFetch(ResultCached)
	m.ObserveFetch(ResultCached)
	m.ObserveInstall("plugin", true, 20*time.Millisecond)
	m.ObserveInstall("plugin", false, time.Millisecond)
	m.ObserveInvalidation()
	m.ObserveLoad(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchTotal.WithLabelValues(ResultDownloaded)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FetchTotal.WithLabelValues(ResultCached)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InstallTotal.WithLabelValues("plugin", ResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InstallTotal.WithLabelValues("plugin", ResultError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RegistryInvalidations))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RegistryLoads))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RegistryPlugins))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestMetrics_Nil(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveFetch(ResultCached)
		m.ObserveInstall("library", true, time.Second)
		m.ObserveInvalidation()
		m.ObserveLoad(1)
	})
}

func TestNew_NilRegisterer(t *testing.T) {
	assert.NotPanics(t, func() {
		New(nil)
		New(nil)
	})
}
