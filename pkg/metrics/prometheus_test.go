package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWith(reg)

	r.RecordRows("extract", 120)
	r.RecordRows("extract", 30)
	r.RecordError("upstream")
	r.RecordModelScore("rmse", 12.5)
	r.RecordLatency("etl", 1.2)

	if got := testutil.ToFloat64(r.rows.WithLabelValues("extract")); got != 150 {
		t.Fatalf("rows = %v, want 150", got)
	}
	if got := testutil.ToFloat64(r.errorsTotal.WithLabelValues("upstream")); got != 1 {
		t.Fatalf("errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.modelScore.WithLabelValues("rmse")); got != 12.5 {
		t.Fatalf("score = %v, want 12.5", got)
	}
	if n := testutil.CollectAndCount(r.latency); n != 1 {
		t.Fatalf("latency series = %d, want 1", n)
	}
}
