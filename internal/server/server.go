// Package server implements the rled admin HTTP endpoint: Prometheus
// metrics, liveness, and a JSON view of the per-fragment-ID link
// counters.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hnrck/librle/internal/rle"
)

// StatsSource exposes the engine counters the stats endpoint serves. The
// relay implements it.
type StatsSource interface {
	// TxStats returns the transmit counters of one fragment ID.
	TxStats(fragID uint8) rle.Stats

	// RxStats returns the receive counters of one fragment ID.
	RxStats(fragID uint8) rle.Stats

	// RxUnattributed returns receive drops not attributable to any
	// fragment ID.
	RxUnattributed() rle.Stats
}

// FragStats is the JSON shape of one fragment-ID counter set.
type FragStats struct {
	FragID       uint8  `json:"frag_id"`
	SDUsIn       uint64 `json:"sdus_in"`
	SDUsOk       uint64 `json:"sdus_ok"`
	SDUsDropped  uint64 `json:"sdus_dropped"`
	SDUsLost     uint64 `json:"sdus_lost"`
	BytesIn      uint64 `json:"bytes_in"`
	BytesOk      uint64 `json:"bytes_ok"`
	BytesDropped uint64 `json:"bytes_dropped"`
}

// StatsResponse is the JSON body of GET /api/v1/stats.
type StatsResponse struct {
	Tx                 []FragStats `json:"tx"`
	Rx                 []FragStats `json:"rx"`
	RxUnattributedDrop uint64      `json:"rx_unattributed_drops"`
}

// fragStats converts an engine snapshot into the JSON shape.
func fragStats(id uint8, s rle.Stats) FragStats {
	return FragStats{
		FragID:       id,
		SDUsIn:       s.SDUsIn,
		SDUsOk:       s.SDUsOk,
		SDUsDropped:  s.SDUsDropped,
		SDUsLost:     s.SDUsLost,
		BytesIn:      s.BytesIn,
		BytesOk:      s.BytesOk,
		BytesDropped: s.BytesDropped,
	}
}

// AdminServer serves the admin endpoints. It is a thin adapter between
// HTTP and the relay's counter snapshots.
type AdminServer struct {
	logger *slog.Logger
	src    StatsSource
}

// New builds the admin HTTP handler: the Prometheus registry under
// metricsPath, liveness under /healthz, and counters under /api/v1/stats.
func New(logger *slog.Logger, src StatsSource, reg *prometheus.Registry, metricsPath string) http.Handler {
	srv := &AdminServer{
		logger: logger.With(slog.String("component", "server")),
		src:    src,
	}

	mux := http.NewServeMux()
	mux.Handle("GET "+metricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", srv.handleHealthz)
	mux.HandleFunc("GET /api/v1/stats", srv.handleStats)
	return mux
}

// handleHealthz answers liveness probes.
func (s *AdminServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// handleStats serves the per-fragment-ID counter snapshots.
func (s *AdminServer) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		Tx: make([]FragStats, 0, rle.MaxFragNumber),
		Rx: make([]FragStats, 0, rle.MaxFragNumber),
	}
	for id := uint8(0); id < rle.MaxFragNumber; id++ {
		resp.Tx = append(resp.Tx, fragStats(id, s.src.TxStats(id)))
		resp.Rx = append(resp.Rx, fragStats(id, s.src.RxStats(id)))
	}
	resp.RxUnattributedDrop = s.src.RxUnattributed().SDUsDropped

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.WarnContext(r.Context(), "stats encoding failed",
			slog.String("error", err.Error()),
		)
	}
}
