package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew(t *testing.T) {
	m := New()
	if m.Registry == nil {
		t.Fatal("expected non-nil Registry")
	}
	if _, err := m.Registry.Gather(); err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	// No samples yet, but families are registered on first use;
	// force a sample so we can verify at least one family appears.
	m.SnapshotCacheHits.Inc()
	fams, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("gather after inc failed: %v", err)
	}
	if len(fams) == 0 {
		t.Fatal("expected at least one metric family after increment")
	}
}

func TestResolutionCompleted(t *testing.T) {
	m := New()

	m.ResolutionCompleted("complete")
	m.ResolutionCompleted("complete")
	m.ResolutionCompleted("no_match")

	complete := testutil.ToFloat64(m.ResolutionsTotal.WithLabelValues("complete"))
	noMatch := testutil.ToFloat64(m.ResolutionsTotal.WithLabelValues("no_match"))

	if complete != 2 {
		t.Fatalf("expected complete count 2, got %v", complete)
	}
	if noMatch != 1 {
		t.Fatalf("expected no_match count 1, got %v", noMatch)
	}
}

func TestSnapshotCounters(t *testing.T) {
	m := New()

	m.SnapshotCacheHit()
	m.SnapshotCacheHit()
	m.SnapshotCacheMiss()
	m.SnapshotInvalidated()

	if v := testutil.ToFloat64(m.SnapshotCacheHits); v != 2 {
		t.Fatalf("expected hits 2, got %v", v)
	}
	if v := testutil.ToFloat64(m.SnapshotCacheMisses); v != 1 {
		t.Fatalf("expected misses 1, got %v", v)
	}
	if v := testutil.ToFloat64(m.SnapshotInvalidations); v != 1 {
		t.Fatalf("expected invalidations 1, got %v", v)
	}
}

func TestRecordSKUParse(t *testing.T) {
	m := New()

	m.RecordSKUParse("ok")
	m.RecordSKUParse("not_found")
	m.RecordSKUParse("ok")

	if v := testutil.ToFloat64(m.SKUParsesTotal.WithLabelValues("ok")); v != 2 {
		t.Fatalf("expected ok count 2, got %v", v)
	}
	if v := testutil.ToFloat64(m.SKUParsesTotal.WithLabelValues("not_found")); v != 1 {
		t.Fatalf("expected not_found count 1, got %v", v)
	}
}

func TestRulesApplied(t *testing.T) {
	m := New()

	m.RulesApplied(2)
	m.RulesApplied(0)
	m.RulesApplied(1)

	if v := testutil.ToFloat64(m.RuleApplicationsTotal); v != 3 {
		t.Fatalf("expected rule applications 3, got %v", v)
	}
}

func TestIncAuthFailures(t *testing.T) {
	m := New()

	m.IncAuthFailures()
	m.IncAuthFailures()

	if v := testutil.ToFloat64(m.AuthFailuresTotal); v != 2 {
		t.Fatalf("expected auth failures 2, got %v", v)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.SnapshotCacheMiss()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	body, _ := io.ReadAll(rec.Result().Body)
	if rec.Code != 200 {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(string(body), "configurator_snapshot_cache_misses_total") {
		t.Fatal("expected response to contain configurator_snapshot_cache_misses_total")
	}
}
