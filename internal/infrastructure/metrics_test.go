package infrastructure

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestAppMetricsRecord(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()

	m, err := NewAppMetrics(mp.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordDownload(ctx, 10, time.Second, nil)
	m.RecordDownload(ctx, 0, time.Second, errors.New("boom"))
	m.RecordActivation(ctx, "device_mismatch")
	m.RecordCompression(ctx, 1000, 400, false)

	got := collect(t, reader)

	downloads, ok := got["downloads_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range downloads.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(2), total)

	bytesSum, ok := got["download_bytes_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	total = 0
	for _, dp := range bytesSum.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(10), total)

	assert.Contains(t, got, "license_activations_total")
	assert.Contains(t, got, "image_compression_ratio")
}

func TestNilAppMetricsIsNoop(t *testing.T) {
	var m *AppMetrics
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.RecordDownload(ctx, 1, time.Millisecond, nil)
		m.RecordActivation(ctx, "ok")
		m.RecordRecheck(ctx, "ok")
		m.RecordCompression(ctx, 1, 1, true)
		m.RecordUpdateCheck(ctx, true, nil)
		m.RecordCatalogMutation(ctx, "create", nil)
		m.RecordBroadcast(ctx, "download:progress")
	})
}
