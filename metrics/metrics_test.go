package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/yourusername/atomcache/internal/intern"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	out := make(map[string]*dto.Metric, len(families))
	for _, family := range families {
		if len(family.GetMetric()) != 1 {
			t.Fatalf("expected one series for %s", family.GetName())
		}
		out[family.GetName()] = family.GetMetric()[0]
	}
	return out
}

func TestCollectorReportsTableStats(t *testing.T) {
	table := intern.NewTable(32)
	e := table.Insert("div", 3)
	table.Insert("div", 3)
	table.Insert("span", 4)
	e.Release()
	e.Release()
	table.Remove(e)

	reg := prometheus.NewPedanticRegistry()
	if err := Register(reg, table, nil); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	got := gather(t, reg)
	checks := map[string]float64{
		"atomcache_intern_inserts_total": 3,
		"atomcache_intern_hits_total":    1,
		"atomcache_intern_misses_total":  2,
		"atomcache_intern_removes_total": 1,
		"atomcache_intern_entries":       1,
		"atomcache_intern_bytes":         4,
		"atomcache_intern_buckets":       32,
	}
	for name, want := range checks {
		m, ok := got[name]
		if !ok {
			t.Fatalf("missing metric %s", name)
		}
		value := m.GetGauge().GetValue()
		if m.GetCounter() != nil {
			value = m.GetCounter().GetValue()
		}
		if value != want {
			t.Fatalf("%s: expected %v, got %v", name, want, value)
		}
	}
}

func TestConstLabelsSeparateTables(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg, intern.NewTable(8), prometheus.Labels{"table": "a"}); err != nil {
		t.Fatalf("register a: %v", err)
	}
	if err := Register(reg, intern.NewTable(8), prometheus.Labels{"table": "b"}); err != nil {
		t.Fatalf("register b: %v", err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	for _, family := range families {
		if len(family.GetMetric()) != 2 {
			t.Fatalf("expected two labelled series for %s", family.GetName())
		}
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	table := intern.NewTable(8)
	table.Insert("main", 1)
	if err := Register(reg, table, nil); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	server := httptest.NewServer(Handler(reg))
	defer server.Close()

	resp, err := server.Client().Get(server.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), "atomcache_intern_entries 1") {
		t.Fatalf("expected entries gauge in output:\n%s", body)
	}
}
