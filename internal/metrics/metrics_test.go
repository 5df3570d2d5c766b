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

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func expectLine(t *testing.T, body, line string) {
	t.Helper()
	for _, l := range strings.Split(body, "\n") {
		if l == line {
			return
		}
	}
	t.Errorf("missing %q in exposition", line)
}

func TestObserveCommand(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveCommand("UPSERT", "created", 5*time.Millisecond)
	m.ObserveCommand("UPSERT", "created", 5*time.Millisecond)
	m.ObserveCommand("DELETE", "not_found", time.Millisecond)

	body := scrape(t, m)
	expectLine(t, body, `hostel_card_commands_total{action="UPSERT",result="created"} 2`)
	expectLine(t, body, `hostel_card_commands_total{action="DELETE",result="not_found"} 1`)
	expectLine(t, body, `hostel_card_command_duration_seconds_count{action="UPSERT"} 2`)
}

func TestStoreUpAndPruned(t *testing.T) {
	m := New(nil)

	m.SetStoreUp(true)
	expectLine(t, scrape(t, m), "hostel_store_up 1")
	m.SetStoreUp(false)
	expectLine(t, scrape(t, m), "hostel_store_up 0")

	m.AddAuditPruned(3)
	m.AddAuditPruned(0)
	expectLine(t, scrape(t, m), "hostel_audit_pruned_total 3")
}

func TestObserveHTTPAndLogin(t *testing.T) {
	m := New(nil)
	m.ObserveHTTP(http.MethodGet, "/v1/cards/{number}", http.StatusNotFound, time.Millisecond)
	m.ObserveLogin("rejected")

	body := scrape(t, m)
	expectLine(t, body, `hostel_http_requests_total{method="GET",route="/v1/cards/{number}",status="404"} 1`)
	expectLine(t, body, `hostel_logins_total{outcome="rejected"} 1`)
}

func TestNew_SeparateRegistries(t *testing.T) {
	// Registering twice on distinct registries must not panic.
	New(prometheus.NewRegistry())
	New(prometheus.NewRegistry())
}
