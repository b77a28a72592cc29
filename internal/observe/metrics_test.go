package observe

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNewMetricsCreatesAllInstruments(t *testing.T) {
	t.Parallel()

	mp := sdkmetric.NewMeterProvider()
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	if m.UtteranceDuration == nil || m.TranscriptionDuration == nil || m.ConnectDuration == nil {
		t.Fatal("histogram instrument is nil")
	}
	if m.Turns == nil || m.Corrections == nil || m.ControlEvents == nil ||
		m.TranscriptionErrors == nil || m.DecodeErrors == nil || m.DiscardedUtterances == nil {
		t.Fatal("counter instrument is nil")
	}
	if m.ActiveSessions == nil {
		t.Fatal("gauge instrument is nil")
	}
}

func TestRecordHelpersEmitData(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	ctx := context.Background()
	m.RecordTurn(ctx, "user")
	m.RecordTurn(ctx, "tutor")
	m.RecordCorrection(ctx, "grammar")
	m.RecordControlEvent(ctx, "delta")

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	found := map[string]bool{}
	for _, scope := range rm.ScopeMetrics {
		for _, inst := range scope.Metrics {
			found[inst.Name] = true
		}
	}
	for _, name := range []string{"voxtutor.turns", "voxtutor.corrections", "voxtutor.control.events"} {
		if !found[name] {
			t.Errorf("metric %q was not recorded", name)
		}
	}
}
