package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TestCollector_RecordsAndExposes は記録したメトリクスが
// /metrics形式で公開されることを確認する。
func TestCollector_RecordsAndExposes(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := NewCollector(reg)

	collector.RecordAuthEvent("signed_in")
	collector.RecordAuthEvent("signed_in")
	collector.RecordAuthEvent("signed_out")
	collector.RecordSnapshotDelivered("tasks")
	collector.RecordUploadSuccess()
	collector.RecordUploadFailure()
	collector.RecordUploadLatency(120 * time.Millisecond)
	collector.RecordRemoveBGCall(true)
	collector.RecordRemoveBGCall(false)
	collector.RecordHTTPStatus(200)
	collector.RecordHTTPStatus(404)

	server := httptest.NewServer(Handler(reg))
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("failed to scrape metrics: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read metrics body: %v", err)
	}
	output := string(body)

	expectations := []string{
		`wallxpress_auth_events_total{kind="signed_in"} 2`,
		`wallxpress_auth_events_total{kind="signed_out"} 1`,
		`wallxpress_snapshots_delivered_total{collection="tasks"} 1`,
		`wallxpress_upload_success_total 1`,
		`wallxpress_upload_fail_total 1`,
		`wallxpress_removebg_calls_total{result="success"} 1`,
		`wallxpress_removebg_calls_total{result="failure"} 1`,
		`wallxpress_http_status_total{status_code="200"} 1`,
		`wallxpress_http_status_total{status_code="404"} 1`,
	}
	for _, want := range expectations {
		if !strings.Contains(output, want) {
			t.Errorf("expected metrics output to contain %q", want)
		}
	}
}

// TestCollector_DuplicateRegistration は同一レジストリへの二重登録が
// panicすることを確認する（設定ミスの早期検出）。
func TestCollector_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)

	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	NewCollector(reg)
}
