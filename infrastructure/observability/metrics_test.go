package observability

import (
	"context"
	"testing"
	"time"

	"insightquest/config"
	"insightquest/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

var _ service.Metrics = (*MetricsProvider)(nil)

func newTestProvider(t *testing.T) (*MetricsProvider, *sdkmetric.ManualReader) {
	cfg := config.NewTestConfig()
	cfg.OTelEnabled = true

	reader := sdkmetric.NewManualReader()
	mp := NewMetricsProvider(cfg)
	require.NoError(t, mp.InitializeWithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	return mp, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	byName := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			byName[m.Name] = m
		}
	}
	return byName
}

func sumOf(t *testing.T, m metricdata.Metrics) int64 {
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)

	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestMetricsProvider_RecordsSessionMetrics(t *testing.T) {
	mp, reader := newTestProvider(t)

	mp.RecordLogin(false, 100)
	mp.RecordLogin(true, 0)
	mp.RecordXPAwarded(25)
	mp.RecordLevelUp(3)
	mp.RecordBalanceFetch(service.FetchOutcomeSuccess, 120*time.Millisecond)
	mp.RecordBalanceFetch(service.FetchOutcomeFailure, 2*time.Second)
	mp.RecordBalanceFetch(service.FetchOutcomeSuccess, 80*time.Millisecond)

	metrics := collect(t, reader)

	assert.Equal(t, int64(2), sumOf(t, metrics[LoginsTotal]))
	assert.Equal(t, int64(125), sumOf(t, metrics[XPAwardedTotal]))
	assert.Equal(t, int64(1), sumOf(t, metrics[LevelUpsTotal]))
	assert.Equal(t, int64(3), sumOf(t, metrics[BalanceFetchesTotal]))

	fetches := metrics[BalanceFetchesTotal].Data.(metricdata.Sum[int64])
	byOutcome := make(map[string]int64)
	for _, dp := range fetches.DataPoints {
		outcome, ok := dp.Attributes.Value(attribute.Key(LabelOutcome))
		require.True(t, ok)
		byOutcome[outcome.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{"success": 2, "failure": 1}, byOutcome)

	hist, ok := metrics[BalanceFetchDuration].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(3), count)
}

func TestMetricsProvider_Disabled(t *testing.T) {
	cfg := config.NewTestConfig()
	cfg.OTelEnabled = false

	mp := NewMetricsProvider(cfg)
	require.NoError(t, mp.Initialize(context.Background()))
	assert.False(t, mp.isEnabled())

	// recording on a disabled provider is a no-op
	mp.RecordLogin(false, 100)
	mp.RecordBalanceFetch(service.FetchOutcomeSuccess, time.Millisecond)
	assert.NoError(t, mp.Shutdown(context.Background()))
}

func TestMetricsProvider_ExporterTypes(t *testing.T) {
	t.Run("none", func(t *testing.T) {
		cfg := config.NewTestConfig()
		cfg.OTelEnabled = true
		cfg.OTelExporterType = ExporterNone

		mp := NewMetricsProvider(cfg)
		require.NoError(t, mp.Initialize(context.Background()))
		assert.False(t, mp.isEnabled())
	})

	t.Run("console", func(t *testing.T) {
		cfg := config.NewTestConfig()
		cfg.OTelEnabled = true
		cfg.OTelExporterType = ExporterConsole

		mp := NewMetricsProvider(cfg)
		require.NoError(t, mp.Initialize(context.Background()))
		assert.True(t, mp.isEnabled())
		assert.NoError(t, mp.Shutdown(context.Background()))
		assert.False(t, mp.isEnabled())
	})

	t.Run("unknown", func(t *testing.T) {
		cfg := config.NewTestConfig()
		cfg.OTelEnabled = true
		cfg.OTelExporterType = "prometheus"

		mp := NewMetricsProvider(cfg)
		assert.Error(t, mp.Initialize(context.Background()))
	})
}
