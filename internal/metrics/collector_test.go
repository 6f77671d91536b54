package rlemetrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	rlemetrics "github.com/hnrck/librle/internal/metrics"
	"github.com/hnrck/librle/internal/rle"
)

// stubSource feeds the collector fixed counter snapshots.
type stubSource struct {
	tx           map[uint8]rle.Stats
	rx           map[uint8]rle.Stats
	unattributed rle.Stats
}

func (s *stubSource) TxStats(fragID uint8) rle.Stats { return s.tx[fragID] }
func (s *stubSource) RxStats(fragID uint8) rle.Stats { return s.rx[fragID] }
func (s *stubSource) RxUnattributed() rle.Stats      { return s.unattributed }

// gather scrapes the registry into a name-indexed map.
func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, mf := range families {
		byName[mf.GetName()] = mf
	}
	return byName
}

// findSample returns the counter value carrying the given labels.
func findSample(t *testing.T, mf *dto.MetricFamily, direction, fragID string) float64 {
	t.Helper()

	for _, m := range mf.GetMetric() {
		labels := make(map[string]string, len(m.GetLabel()))
		for _, lp := range m.GetLabel() {
			labels[lp.GetName()] = lp.GetValue()
		}
		if labels["direction"] == direction && labels["frag_id"] == fragID {
			return m.GetCounter().GetValue()
		}
	}
	t.Fatalf("no sample for direction=%s frag_id=%s", direction, fragID)
	return 0
}

// TestCollectorScrapesSource checks the scraped families mirror the
// source's snapshots, per direction and fragment ID.
func TestCollectorScrapesSource(t *testing.T) {
	src := &stubSource{
		tx: map[uint8]rle.Stats{
			0: {SDUsIn: 12, SDUsOk: 10, SDUsDropped: 2, BytesIn: 4096, BytesOk: 4000, BytesDropped: 96},
		},
		rx: map[uint8]rle.Stats{
			3: {SDUsIn: 7, SDUsOk: 6, SDUsLost: 1, BytesIn: 900, BytesOk: 880},
		},
		unattributed: rle.Stats{SDUsDropped: 5},
	}

	reg := prometheus.NewRegistry()
	rlemetrics.NewCollector(reg, src)

	byName := gather(t, reg)

	checks := []struct {
		family    string
		direction string
		fragID    string
		want      float64
	}{
		{"rled_rle_sdus_in_total", "tx", "0", 12},
		{"rled_rle_sdus_ok_total", "tx", "0", 10},
		{"rled_rle_sdus_dropped_total", "tx", "0", 2},
		{"rled_rle_bytes_ok_total", "tx", "0", 4000},
		{"rled_rle_sdus_ok_total", "rx", "3", 6},
		{"rled_rle_sdus_lost_total", "rx", "3", 1},
		{"rled_rle_sdus_in_total", "rx", "5", 0},
	}
	for _, c := range checks {
		mf, ok := byName[c.family]
		if !ok {
			t.Fatalf("family %s not scraped", c.family)
		}
		if got := findSample(t, mf, c.direction, c.fragID); got != c.want {
			t.Errorf("%s{%s,%s} = %v, want %v", c.family, c.direction, c.fragID, got, c.want)
		}
	}

	unattributed, ok := byName["rled_rle_unattributed_drops_total"]
	if !ok {
		t.Fatal("unattributed drops not scraped")
	}
	if got := unattributed.GetMetric()[0].GetCounter().GetValue(); got != 5 {
		t.Errorf("unattributed drops %v, want 5", got)
	}
}

// TestCollectorSampleCount checks all 8 fragment IDs are emitted for both
// directions.
func TestCollectorSampleCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	rlemetrics.NewCollector(reg, &stubSource{})

	byName := gather(t, reg)
	mf, ok := byName["rled_rle_sdus_in_total"]
	if !ok {
		t.Fatal("sdus_in_total not scraped")
	}
	if got, want := len(mf.GetMetric()), 2*rle.MaxFragNumber; got != want {
		t.Errorf("%d samples, want %d", got, want)
	}
}
