package observe

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestRecordBlock(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordBlock(ctx, 0.001, true)
	m.RecordBlock(ctx, 0.002, false)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	blocks := findMetric(rm, "voxwire.audio.blocks")
	if blocks == nil {
		t.Fatal("voxwire.audio.blocks not found")
	}
	sum, ok := blocks.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("blocks data type = %T, want Sum[int64]", blocks.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 2 {
		t.Errorf("blocks total = %d, want 2", total)
	}

	if findMetric(rm, "voxwire.audio.block.duration") == nil {
		t.Error("voxwire.audio.block.duration not found")
	}
}

func TestRecordMethodsNilReceiver(t *testing.T) {
	// Components treat the observer as optional; a nil Metrics must be a
	// no-op for every record method.
	var m *Metrics
	ctx := context.Background()

	m.RecordBlock(ctx, 0.001, false)
	m.RecordPipelineError(ctx, "unknown")
	m.RecordPipelineRecovery(ctx)
	m.RecordMessageSent(ctx)
	m.RecordMessageReceived(ctx, "content")
	m.RecordSendError(ctx)
	m.RecordRateLimited(ctx)
	m.RecordReconnect(ctx)
	m.AddQueueDepth(ctx, 1)
	m.RecordHTTPRequest(ctx, 0.001, "GET", "/healthz")
}
