package core

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestExpvarMetricsRecorderAggregates(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	ctx := context.Background()

	rec.Observe(ctx, "create_sample", true, 20*time.Millisecond)
	rec.Observe(ctx, "create_sample", true, 30*time.Millisecond)
	rec.Observe(ctx, "create_sample", false, 5*time.Millisecond)
	rec.Observe(ctx, "", true, time.Second) // ignored

	snap := rec.Snapshot()
	if got := snap.DurationsMS["create_sample"]; got != 55 {
		t.Fatalf("duration total %v, want 55", got)
	}
	if snap.Results["create_sample"]["success"] != 2 || snap.Results["create_sample"]["error"] != 1 {
		t.Fatalf("result counters: %+v", snap.Results)
	}
	if rec.Name() == "" {
		t.Fatalf("expected generated expvar name")
	}
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPrometheusMetricsRecorder(reg)
	ctx := context.Background()

	rec.Observe(ctx, "assign_location", true, 10*time.Millisecond)
	rec.Observe(ctx, "assign_location", false, 10*time.Millisecond)
	rec.Observe(ctx, "", true, time.Second) // ignored

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	if !names["samplecore_operations_total"] || !names["samplecore_operation_duration_seconds"] {
		t.Fatalf("expected registered collectors, got %v", names)
	}
}

func TestServiceRecordsMetrics(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	svc := newTestService(t, WithMetrics(rec))
	ctx := context.Background()

	if _, err := svc.CreateSample(ctx, CreateSampleRequest{Name: "S"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.CompleteSample(ctx, "missing", "a"); err == nil {
		t.Fatalf("expected error")
	}

	snap := rec.Snapshot()
	if snap.Results["create_sample"]["success"] != 1 {
		t.Fatalf("create_sample success not recorded: %+v", snap.Results)
	}
	if snap.Results["complete_sample"]["error"] != 1 {
		t.Fatalf("complete_sample error not recorded: %+v", snap.Results)
	}
}
