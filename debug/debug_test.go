package debug

import (
	"sync"
	"testing"
	"time"
)

func TestIsEnabled(t *testing.T) {
	for _, enabled := range []bool{true, false} {
		if got := NewDebugConfig(enabled).IsEnabled(); got != enabled {
			t.Errorf("NewDebugConfig(%v).IsEnabled() = %v", enabled, got)
		}
	}
}

func TestRecordRequestAccumulates(t *testing.T) {
	cfg := NewDebugConfig(true)

	cfg.RecordRequest("POST /api/classify", 50*time.Millisecond)
	cfg.RecordRequest("GET /api/classifications", 75*time.Millisecond)
	cfg.RecordRequest("POST /api/classify", 25*time.Millisecond)

	m := cfg.GetMetrics()

	if m.RequestCount != 3 {
		t.Errorf("RequestCount = %d, want 3", m.RequestCount)
	}
	if want := 150 * time.Millisecond; m.TotalDuration != want {
		t.Errorf("TotalDuration = %v, want %v", m.TotalDuration, want)
	}
	if m.LastUpdated.IsZero() {
		t.Error("LastUpdated not stamped")
	}

	classify := m.EndpointMetrics["POST /api/classify"]
	if classify == nil {
		t.Fatal("missing bucket for POST /api/classify")
	}
	if classify.Count != 2 || classify.TotalDuration != 75*time.Millisecond {
		t.Errorf("classify bucket = {%d, %v}, want {2, 75ms}", classify.Count, classify.TotalDuration)
	}
	if classify.LastAccess.IsZero() {
		t.Error("LastAccess not stamped")
	}

	list := m.EndpointMetrics["GET /api/classifications"]
	if list == nil || list.Count != 1 {
		t.Errorf("list bucket = %+v, want count 1", list)
	}
}

func TestDisabledConfigIgnoresUpdates(t *testing.T) {
	cfg := NewDebugConfig(false)

	cfg.RecordRequest("POST /api/classify", 100*time.Millisecond)
	cfg.SetQueueDepth(42)

	m := cfg.GetMetrics()
	if m.RequestCount != 0 || m.QueueDepth != 0 || len(m.EndpointMetrics) != 0 {
		t.Errorf("disabled config accumulated state: %+v", m)
	}
}

func TestSetQueueDepth(t *testing.T) {
	cfg := NewDebugConfig(true)
	cfg.SetQueueDepth(42)

	if got := cfg.GetMetrics().QueueDepth; got != 42 {
		t.Errorf("QueueDepth = %d, want 42", got)
	}
}

func TestResetMetrics(t *testing.T) {
	cfg := NewDebugConfig(true)
	cfg.RecordRequest("POST /api/classify", 100*time.Millisecond)
	cfg.SetQueueDepth(10)

	cfg.ResetMetrics()

	m := cfg.GetMetrics()
	if m.RequestCount != 0 {
		t.Errorf("RequestCount = %d after reset", m.RequestCount)
	}
	if m.TotalDuration != 0 {
		t.Errorf("TotalDuration = %v after reset", m.TotalDuration)
	}
	if m.QueueDepth != 0 {
		t.Errorf("QueueDepth = %d after reset", m.QueueDepth)
	}
	if len(m.EndpointMetrics) != 0 {
		t.Errorf("%d endpoint buckets survived reset", len(m.EndpointMetrics))
	}
}

func TestConcurrentRecording(t *testing.T) {
	cfg := NewDebugConfig(true)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		endpoint := "POST /api/classify"
		if i%2 == 0 {
			endpoint = "GET /api/classifications"
		}
		wg.Add(1)
		go func(ep string) {
			defer wg.Done()
			cfg.RecordRequest(ep, time.Millisecond)
		}(endpoint)
	}
	wg.Wait()

	m := cfg.GetMetrics()
	if m.RequestCount != 100 {
		t.Errorf("RequestCount = %d, want 100", m.RequestCount)
	}
	if got := m.EndpointMetrics["POST /api/classify"].Count; got != 50 {
		t.Errorf("classify count = %d, want 50", got)
	}
	if got := m.EndpointMetrics["GET /api/classifications"].Count; got != 50 {
		t.Errorf("list count = %d, want 50", got)
	}
}

func TestMetricsSnapshotIsolation(t *testing.T) {
	cfg := NewDebugConfig(true)
	cfg.RecordRequest("POST /api/classify", 100*time.Millisecond)

	snap := cfg.GetMetrics()
	snap.RequestCount = 999
	snap.EndpointMetrics["POST /api/classify"].Count = 999

	fresh := cfg.GetMetrics()
	if fresh.RequestCount != 1 {
		t.Errorf("RequestCount = %d, snapshot mutation leaked", fresh.RequestCount)
	}
	if got := fresh.EndpointMetrics["POST /api/classify"].Count; got != 1 {
		t.Errorf("endpoint count = %d, snapshot mutation leaked", got)
	}
}
