package infrastructure

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// AppMetrics groups the instruments recorded by the domain packages.
// A nil *AppMetrics is valid and records nothing.
type AppMetrics struct {
	DownloadsTotal      metric.Int64Counter
	DownloadBytes       metric.Int64Counter
	DownloadDuration    metric.Float64Histogram
	ActivationsTotal    metric.Int64Counter
	RechecksTotal       metric.Int64Counter
	CompressionsTotal   metric.Int64Counter
	CompressionRatio    metric.Float64Histogram
	UpdateChecksTotal   metric.Int64Counter
	CatalogMutations    metric.Int64Counter
	WebSocketBroadcasts metric.Int64Counter
}

// NewAppMetrics creates every instrument on meter.
func NewAppMetrics(meter metric.Meter) (*AppMetrics, error) {
	var (
		m   AppMetrics
		err error
	)

	if m.DownloadsTotal, err = meter.Int64Counter("downloads_total",
		metric.WithDescription("Downloads by outcome")); err != nil {
		return nil, err
	}
	if m.DownloadBytes, err = meter.Int64Counter("download_bytes_total",
		metric.WithDescription("Bytes written to the templates directory"),
		metric.WithUnit("By")); err != nil {
		return nil, err
	}
	if m.DownloadDuration, err = meter.Float64Histogram("download_duration_seconds",
		metric.WithDescription("Download duration in seconds"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.ActivationsTotal, err = meter.Int64Counter("license_activations_total",
		metric.WithDescription("License activation attempts by result")); err != nil {
		return nil, err
	}
	if m.RechecksTotal, err = meter.Int64Counter("license_rechecks_total",
		metric.WithDescription("Silent license re-checks by result")); err != nil {
		return nil, err
	}
	if m.CompressionsTotal, err = meter.Int64Counter("image_compressions_total",
		metric.WithDescription("Thumbnail recompressions by outcome")); err != nil {
		return nil, err
	}
	if m.CompressionRatio, err = meter.Float64Histogram("image_compression_ratio",
		metric.WithDescription("Output size divided by input size")); err != nil {
		return nil, err
	}
	if m.UpdateChecksTotal, err = meter.Int64Counter("update_checks_total",
		metric.WithDescription("Update checks by outcome")); err != nil {
		return nil, err
	}
	if m.CatalogMutations, err = meter.Int64Counter("catalog_mutations_total",
		metric.WithDescription("Admin catalog writes by operation")); err != nil {
		return nil, err
	}
	if m.WebSocketBroadcasts, err = meter.Int64Counter("websocket_broadcasts_total",
		metric.WithDescription("Messages broadcast to UI clients by type")); err != nil {
		return nil, err
	}

	return &m, nil
}

// RecordDownload records the outcome of one download.
func (m *AppMetrics) RecordDownload(ctx context.Context, bytes int64, duration time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome(err)))
	m.DownloadsTotal.Add(ctx, 1, attrs)
	m.DownloadBytes.Add(ctx, bytes, attrs)
	m.DownloadDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordActivation records an activation attempt with its result label.
func (m *AppMetrics) RecordActivation(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.ActivationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordRecheck records a silent re-check with its result label.
func (m *AppMetrics) RecordRecheck(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.RechecksTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordCompression records one recompression run.
func (m *AppMetrics) RecordCompression(ctx context.Context, inBytes, outBytes int, fellBack bool) {
	if m == nil {
		return
	}
	result := "fit"
	if fellBack {
		result = "fallback"
	}
	m.CompressionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", result)))
	if inBytes > 0 {
		m.CompressionRatio.Record(ctx, float64(outBytes)/float64(inBytes))
	}
}

// RecordUpdateCheck records one update check.
func (m *AppMetrics) RecordUpdateCheck(ctx context.Context, manual bool, err error) {
	if m == nil {
		return
	}
	m.UpdateChecksTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome(err)),
		attribute.Bool("manual", manual)))
}

// RecordCatalogMutation records an admin write against the catalog.
func (m *AppMetrics) RecordCatalogMutation(ctx context.Context, op string, err error) {
	if m == nil {
		return
	}
	m.CatalogMutations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", outcome(err))))
}

// RecordBroadcast records a hub broadcast.
func (m *AppMetrics) RecordBroadcast(ctx context.Context, messageType string) {
	if m == nil {
		return
	}
	m.WebSocketBroadcasts.Add(ctx, 1, metric.WithAttributes(attribute.String("type", messageType)))
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
