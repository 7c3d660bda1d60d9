package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordRequest_CountsByLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRequest("GET", "columns/:id", 200, 10*time.Millisecond)
	c.RecordRequest("GET", "columns/:id", 200, 20*time.Millisecond)
	c.RecordRequest("GET", "columns/:id", 404, 5*time.Millisecond)

	if got := testutil.ToFloat64(c.requests.WithLabelValues("GET", "columns/:id", "200")); got != 2 {
		t.Fatalf("requests{200} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.requests.WithLabelValues("GET", "columns/:id", "404")); got != 1 {
		t.Fatalf("requests{404} = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(c.duration, "zheye_api_request_duration_seconds"); n != 1 {
		t.Fatalf("duration series = %d, want 1", n)
	}
}

func TestRecordCacheLookup_SplitsHitAndMiss(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCacheLookup("fetchColumn", false)
	c.RecordCacheLookup("fetchColumn", true)
	c.RecordCacheLookup("fetchColumn", true)

	if got := testutil.ToFloat64(c.cacheLookups.WithLabelValues("fetchColumn", "hit")); got != 2 {
		t.Fatalf("hits = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.cacheLookups.WithLabelValues("fetchColumn", "miss")); got != 1 {
		t.Fatalf("misses = %v, want 1", got)
	}
}

func TestMux_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordCacheLookup("fetchPost", true)

	srv := httptest.NewServer(Mux(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(string(body), `zheye_cache_lookups_total{action="fetchPost",result="hit"} 1`) {
		t.Fatalf("metrics body missing cache lookup:\n%s", body)
	}
}

func TestNop_SatisfiesRecorder(t *testing.T) {
	var r Recorder = Nop{}
	r.RecordRequest("GET", "x", 200, time.Second)
	r.RecordCacheLookup("x", true)
}
