package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var metric dto.Metric
	if err := c.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	return metric.Counter.GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var metric dto.Metric
	if err := g.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	return metric.Gauge.GetValue()
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry() returned nil")
	}

	if r.ClusterElectionsTotal == nil {
		t.Error("ClusterElectionsTotal not initialized")
	}
	if r.ReplicationDeliveriesTotal == nil {
		t.Error("ReplicationDeliveriesTotal not initialized")
	}
	if r.DispatchPacketsTotal == nil {
		t.Error("DispatchPacketsTotal not initialized")
	}
	if r.StorageStatementsTotal == nil {
		t.Error("StorageStatementsTotal not initialized")
	}
	if r.GetPrometheusRegistry() == nil {
		t.Error("Prometheus registry not initialized")
	}
}

func TestDefaultRegistry(t *testing.T) {
	if DefaultRegistry() != DefaultRegistry() {
		t.Error("DefaultRegistry() should return the same instance")
	}
}

func TestRecordPacket(t *testing.T) {
	r := NewRegistry()

	r.RecordPacket("query", "ok", 10*time.Millisecond)
	r.RecordPacket("query", "ok", 20*time.Millisecond)
	r.RecordPacket("query", "corrupt", time.Millisecond)

	if got := counterValue(t, r.DispatchPacketsTotal.WithLabelValues("query", "ok")); got != 2 {
		t.Errorf("ok counter = %v, want 2", got)
	}
	if got := counterValue(t, r.DispatchPacketsTotal.WithLabelValues("query", "corrupt")); got != 1 {
		t.Errorf("corrupt counter = %v, want 1", got)
	}
}

func TestRecordStatement(t *testing.T) {
	r := NewRegistry()

	r.RecordStatement("write", "success", 5*time.Millisecond)
	r.RecordStatement("read", "error", 5*time.Millisecond)

	if got := counterValue(t, r.StorageStatementsTotal.WithLabelValues("write", "success")); got != 1 {
		t.Errorf("write counter = %v, want 1", got)
	}
	if got := counterValue(t, r.StorageStatementsTotal.WithLabelValues("read", "error")); got != 1 {
		t.Errorf("read error counter = %v, want 1", got)
	}
}

func TestRecordDelivery(t *testing.T) {
	r := NewRegistry()

	r.RecordDelivery("heartbeat", true)
	r.RecordDelivery("heartbeat", false)
	r.RecordDelivery("heartbeat", false)

	if got := counterValue(t, r.ReplicationDeliveriesTotal.WithLabelValues("heartbeat", "delivered")); got != 1 {
		t.Errorf("delivered = %v, want 1", got)
	}
	if got := counterValue(t, r.ReplicationDeliveriesTotal.WithLabelValues("heartbeat", "failed")); got != 2 {
		t.Errorf("failed = %v, want 2", got)
	}
}

func TestRecordElection(t *testing.T) {
	r := NewRegistry()

	r.RecordElection("elected", 200*time.Millisecond)

	if got := counterValue(t, r.ClusterElectionsTotal.WithLabelValues("elected")); got != 1 {
		t.Errorf("elected = %v, want 1", got)
	}
}

func TestSetLeader(t *testing.T) {
	r := NewRegistry()

	r.SetLeader(3, 1)
	if got := gaugeValue(t, r.ClusterLeaderID); got != 3 {
		t.Errorf("leader id gauge = %v, want 3", got)
	}
	if got := gaugeValue(t, r.ClusterIsLeader); got != 0 {
		t.Errorf("is leader gauge = %v, want 0", got)
	}

	r.SetLeader(1, 1)
	if got := gaugeValue(t, r.ClusterIsLeader); got != 1 {
		t.Errorf("is leader gauge = %v, want 1", got)
	}
}

func TestUpdateSystemMetrics(t *testing.T) {
	r := NewRegistry()
	r.UpdateSystemMetrics(time.Now().Add(-time.Minute))

	if got := gaugeValue(t, r.UptimeSeconds); got < 59 {
		t.Errorf("uptime = %v, want >= 59", got)
	}
	if got := gaugeValue(t, r.GoRoutines); got < 1 {
		t.Errorf("goroutines = %v, want >= 1", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := NewRegistry()
	r.ClusterMembersTotal.Set(3)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "replicator_cluster_members_total 3") {
		t.Errorf("exposition missing members gauge:\n%s", body)
	}
}
