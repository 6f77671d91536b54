package server_test

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	rlemetrics "github.com/hnrck/librle/internal/metrics"
	"github.com/hnrck/librle/internal/rle"
	"github.com/hnrck/librle/internal/server"
)

// stubSource feeds fixed counter snapshots to the handlers.
type stubSource struct {
	tx map[uint8]rle.Stats
	rx map[uint8]rle.Stats
}

func (s *stubSource) TxStats(fragID uint8) rle.Stats { return s.tx[fragID] }
func (s *stubSource) RxStats(fragID uint8) rle.Stats { return s.rx[fragID] }
func (s *stubSource) RxUnattributed() rle.Stats      { return rle.Stats{SDUsDropped: 2} }

// newTestServer builds the admin handler over a stub source with the
// metrics collector registered.
func newTestServer(t *testing.T) http.Handler {
	t.Helper()

	src := &stubSource{
		tx: map[uint8]rle.Stats{1: {SDUsIn: 4, SDUsOk: 3, BytesOk: 512}},
		rx: map[uint8]rle.Stats{6: {SDUsIn: 9, SDUsOk: 9, BytesOk: 2048}},
	}
	reg := prometheus.NewRegistry()
	rlemetrics.NewCollector(reg, src)
	return server.New(slog.New(slog.DiscardHandler), src, reg, "/metrics")
}

// TestHealthz checks the liveness endpoint.
func TestHealthz(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	newTestServer(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", rec.Code)
	}
}

// TestStatsEndpoint checks the JSON counter view.
func TestStatsEndpoint(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	newTestServer(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", rec.Code)
	}

	var resp server.StatsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal stats: %v", err)
	}
	if len(resp.Tx) != rle.MaxFragNumber || len(resp.Rx) != rle.MaxFragNumber {
		t.Fatalf("tx=%d rx=%d entries, want %d each", len(resp.Tx), len(resp.Rx), rle.MaxFragNumber)
	}
	if resp.Tx[1].SDUsOk != 3 || resp.Tx[1].BytesOk != 512 {
		t.Errorf("tx[1] = %+v, want ok=3 bytes_ok=512", resp.Tx[1])
	}
	if resp.Rx[6].SDUsIn != 9 {
		t.Errorf("rx[6] = %+v, want in=9", resp.Rx[6])
	}
	if resp.RxUnattributedDrop != 2 {
		t.Errorf("unattributed drops %d, want 2", resp.RxUnattributedDrop)
	}
}

// TestMetricsEndpoint checks the Prometheus exposition contains the RLE
// families.
func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	newTestServer(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, family := range []string{
		"rled_rle_sdus_ok_total",
		"rled_rle_bytes_ok_total",
		"rled_rle_unattributed_drops_total",
	} {
		if !strings.Contains(body, family) {
			t.Errorf("exposition missing %s", family)
		}
	}
}

// TestMethodNotAllowed checks write methods are rejected.
func TestMethodNotAllowed(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	newTestServer(t).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/stats", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status %d, want 405", rec.Code)
	}
}
