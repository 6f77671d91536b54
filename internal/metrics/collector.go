// Package rlemetrics exports the RLE link-status counters to Prometheus.
//
// The engines keep their own per-fragment-ID counters; the Collector
// snapshots them on every scrape instead of double-counting at call
// sites.
package rlemetrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hnrck/librle/internal/rle"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "rled"
	subsystem = "rle"
)

// Label names for RLE metrics.
const (
	labelDirection = "direction"
	labelFragID    = "frag_id"
)

// Direction label values.
const (
	directionTx = "tx"
	directionRx = "rx"
)

// StatsSource exposes the engine counters the Collector scrapes. The
// relay implements it; snapshots must be safe to take from the scrape
// goroutine.
type StatsSource interface {
	// TxStats returns the transmit counters of one fragment ID.
	TxStats(fragID uint8) rle.Stats

	// RxStats returns the receive counters of one fragment ID.
	RxStats(fragID uint8) rle.Stats

	// RxUnattributed returns receive drops not attributable to any
	// fragment ID (undecodable headers, exhausted context pool), as the
	// difference between the receiver's global and per-fragment counters.
	RxUnattributed() rle.Stats
}

// -------------------------------------------------------------------------
// Collector — Prometheus RLE Metrics
// -------------------------------------------------------------------------

// Collector implements prometheus.Collector over a StatsSource.
//
// Metrics are designed for return-link monitoring:
//   - SDU counters per direction and fragment ID track throughput.
//   - Dropped/lost counters per fragment ID drive loss alerting.
//   - Unattributed drops flag malformed traffic and pool exhaustion.
type Collector struct {
	src StatsSource

	sdusIn       *prometheus.Desc
	sdusOk       *prometheus.Desc
	sdusDropped  *prometheus.Desc
	sdusLost     *prometheus.Desc
	bytesIn      *prometheus.Desc
	bytesOk      *prometheus.Desc
	bytesDropped *prometheus.Desc
	unattributed *prometheus.Desc
}

// verify interface compliance at compile time.
var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a Collector over src and registers it against the
// provided prometheus.Registerer. If reg is nil,
// prometheus.DefaultRegisterer is used.
//
// All metrics are created with the "rled_rle_" prefix
// (namespace_subsystem) to avoid collisions with other exporters.
func NewCollector(reg prometheus.Registerer, src StatsSource) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	labels := []string{labelDirection, labelFragID}
	desc := func(name, help string, lbls []string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, name), help, lbls, nil)
	}

	c := &Collector{
		src: src,
		sdusIn: desc("sdus_in_total",
			"Total SDUs accepted for transmission or partially received.", labels),
		sdusOk: desc("sdus_ok_total",
			"Total SDUs sent or delivered successfully.", labels),
		sdusDropped: desc("sdus_dropped_total",
			"Total SDUs dropped after acceptance.", labels),
		sdusLost: desc("sdus_lost_total",
			"Total SDUs lost by the link (orphan fragments, sequence gaps).", labels),
		bytesIn: desc("bytes_in_total",
			"Total payload bytes accepted or partially received.", labels),
		bytesOk: desc("bytes_ok_total",
			"Total payload bytes of successfully sent/delivered SDUs.", labels),
		bytesDropped: desc("bytes_dropped_total",
			"Total payload bytes of dropped SDUs.", labels),
		unattributed: desc("unattributed_drops_total",
			"Receive drops not attributable to any fragment ID.", nil),
	}

	reg.MustRegister(c)
	return c
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.sdusIn
	ch <- c.sdusOk
	ch <- c.sdusDropped
	ch <- c.sdusLost
	ch <- c.bytesIn
	ch <- c.bytesOk
	ch <- c.bytesDropped
	ch <- c.unattributed
}

// Collect implements prometheus.Collector: it snapshots every fragment-ID
// context in both directions.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for id := uint8(0); id < rle.MaxFragNumber; id++ {
		c.emit(ch, directionTx, id, c.src.TxStats(id))
		c.emit(ch, directionRx, id, c.src.RxStats(id))
	}

	unattributed := c.src.RxUnattributed()
	ch <- prometheus.MustNewConstMetric(c.unattributed,
		prometheus.CounterValue, float64(unattributed.SDUsDropped))
}

// emit writes the counter set of one (direction, fragment ID) pair.
func (c *Collector) emit(ch chan<- prometheus.Metric, direction string, id uint8, s rle.Stats) {
	fragID := strconv.Itoa(int(id))
	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue,
			float64(v), direction, fragID)
	}

	counter(c.sdusIn, s.SDUsIn)
	counter(c.sdusOk, s.SDUsOk)
	counter(c.sdusDropped, s.SDUsDropped)
	counter(c.sdusLost, s.SDUsLost)
	counter(c.bytesIn, s.BytesIn)
	counter(c.bytesOk, s.BytesOk)
	counter(c.bytesDropped, s.BytesDropped)
}
