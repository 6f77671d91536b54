package rle

// Stats holds the link-status counters of one fragment-ID context. The
// counters are cumulative and survive context reuse; they reset only
// through ResetStats.
//
// The same record serves both directions: on a transmitter Ok counts SDUs
// fully emitted, on a receiver SDUs fully reassembled and delivered.
type Stats struct {
	// SDUsIn counts SDUs accepted for transmission, or SDUs whose first
	// fragment was received.
	SDUsIn uint64

	// SDUsOk counts SDUs sent or delivered successfully.
	SDUsOk uint64

	// SDUsDropped counts SDUs abandoned after acceptance: encapsulation
	// failures, trailer mismatches, overflows, forced releases.
	SDUsDropped uint64

	// SDUsLost counts SDUs the link lost, detected through orphan
	// fragments and sequence gaps.
	SDUsLost uint64

	// BytesIn counts payload bytes accepted or partially received.
	BytesIn uint64

	// BytesOk counts payload bytes of successfully sent/delivered SDUs.
	BytesOk uint64

	// BytesDropped counts payload bytes of dropped SDUs.
	BytesDropped uint64
}

// The mutators below are the only way engine code touches the counters,
// and they are invoked at the engine boundaries only.

// noteIn records the acceptance (or first fragment) of an SDU of n bytes.
func (s *Stats) noteIn(n int) {
	s.SDUsIn++
	s.BytesIn += uint64(n)
}

// noteInBytes records n further payload bytes of an SDU already counted
// by noteIn.
func (s *Stats) noteInBytes(n int) {
	s.BytesIn += uint64(n)
}

// noteOk records the successful emission or delivery of an SDU of n bytes.
func (s *Stats) noteOk(n int) {
	s.SDUsOk++
	s.BytesOk += uint64(n)
}

// noteDropped records an abandoned SDU with n payload bytes outstanding.
func (s *Stats) noteDropped(n int) {
	s.SDUsDropped++
	s.BytesDropped += uint64(n)
}

// noteLost records one SDU lost by the link.
func (s *Stats) noteLost() {
	s.SDUsLost++
}

// merge accumulates o into s. Used for link-wide aggregates.
func (s *Stats) merge(o Stats) {
	s.SDUsIn += o.SDUsIn
	s.SDUsOk += o.SDUsOk
	s.SDUsDropped += o.SDUsDropped
	s.SDUsLost += o.SDUsLost
	s.BytesIn += o.BytesIn
	s.BytesOk += o.BytesOk
	s.BytesDropped += o.BytesDropped
}
