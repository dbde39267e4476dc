package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// counterValue はレジストリから指定名のカウンタ値を合計して返す。
func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		var total float64
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
		return total
	}
	t.Fatalf("%s metric not found", name)
	return 0
}

// TestRecordWebhookEvent_IncrementsCounter はWebhookイベントカウンタが増加することを検証する。
func TestRecordWebhookEvent_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordWebhookEvent("user.created", "applied")
	c.RecordWebhookEvent("user.created", "applied")
	c.RecordWebhookEvent("user.updated", "rejected")

	if got := counterValue(t, reg, "castman_webhook_events_total"); got != 3 {
		t.Errorf("webhook_events_total = %v, want 3", got)
	}
}

// TestRecordCascadePatch_LabelsByResult はカスケードパッチの成否が別ラベルで記録されることを検証する。
func TestRecordCascadePatch_LabelsByResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCascadePatch(true)
	c.RecordCascadePatch(true)
	c.RecordCascadePatch(false)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	for _, mf := range metrics {
		if mf.GetName() != "castman_cascade_patches_total" {
			continue
		}
		if len(mf.GetMetric()) != 2 {
			t.Fatalf("expected 2 labeled series, got %d", len(mf.GetMetric()))
		}
		return
	}
	t.Error("castman_cascade_patches_total metric not found")
}

// TestRecordRepairedRows_AddsCount は修復行数が加算されることを検証する。
func TestRecordRepairedRows_AddsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRepairedRows(3)
	c.RecordRepairedRows(2)

	if got := counterValue(t, reg, "castman_repaired_rows_total"); got != 5 {
		t.Errorf("repaired_rows_total = %v, want 5", got)
	}
}

// TestRecordPipelineFailure_IncrementsCounter はパイプライン失敗カウンタが増加することを検証する。
func TestRecordPipelineFailure_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordPipelineFailure("upload")
	c.RecordPipelineFailure("resolve")

	if got := counterValue(t, reg, "castman_pipeline_failures_total"); got != 2 {
		t.Errorf("pipeline_failures_total = %v, want 2", got)
	}
}

func TestRecordUploadBytes_AddsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordUploadBytes(1024)
	c.RecordUploadBytes(512)

	if got := counterValue(t, reg, "castman_upload_bytes_total"); got != 1536 {
		t.Errorf("upload_bytes_total = %v, want 1536", got)
	}
}

func TestRecordHTTPStatus_LabelsByCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(502)

	if got := counterValue(t, reg, "castman_upstream_http_responses_total"); got != 3 {
		t.Errorf("upstream_http_responses_total = %v, want 3", got)
	}
}

// TestRecordViewIncrement_IncrementsCounter は再生カウンタ加算の記録を検証する。
func TestRecordViewIncrement_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordViewIncrement()

	if got := counterValue(t, reg, "castman_view_increments_total"); got != 1 {
		t.Errorf("view_increments_total = %v, want 1", got)
	}
}
