package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func collectAll(c prometheus.Collector) []prometheus.Metric {
	ch := make(chan prometheus.Metric, 16)
	go func() {
		c.Collect(ch)
		close(ch)
	}()
	var out []prometheus.Metric
	for m := range ch {
		out = append(out, m)
	}
	return out
}

func TestCollector_Names(t *testing.T) {
	r := NewRegistry()
	r.Counter("aggregator.leaves_proved").Add(4)
	r.Gauge("admission.highest_message_number").Set(10)
	r.Histogram("zkprogram.merge_ms").Observe(2.5)

	got := collectAll(NewCollector(r, "zkbatch"))
	if len(got) != 3 {
		t.Fatalf("collected %d metrics, want 3", len(got))
	}
	want := []string{
		"zkbatch_aggregator_leaves_proved",
		"zkbatch_admission_highest_message_number",
		"zkbatch_zkprogram_merge_ms",
	}
	for i, m := range got {
		if !strings.Contains(m.Desc().String(), `"`+want[i]+`"`) {
			t.Errorf("metric %d desc = %s, want name %s", i, m.Desc(), want[i])
		}
	}
}

func TestCollector_Register(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(NewCollector(NewRegistry(), "")); err != nil {
		t.Fatalf("register: %v", err)
	}
}

func TestHandler_Serves(t *testing.T) {
	r := NewRegistry()
	r.Gauge("admission.highest_message_number").Set(7)

	srv := httptest.NewServer(Handler(r, "zkbatch"))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), "zkbatch_admission_highest_message_number 7") {
		t.Fatalf("response missing gauge:\n%s", body)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Fatal("response missing go runtime metrics")
	}
}
