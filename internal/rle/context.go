package rle

// This file implements the per-fragment-ID contexts, the free bitmap, and
// the fragmentation state machine shared by both engines.
//
// State diagram (both directions; "pack"/"recv" depending on engine):
//
//	FIRST --COMPLETE--> COMPLETE --release--> UNINIT
//	FIRST --START--> START --CONT*--> CONT --END--> COMPLETE --release--> UNINIT
//
// FIRST is UNINIT on the receiver and PENDING (set by Encap) on the
// transmitter.
//
// Any other (state, kind) pair is an illegal transition.

import "fmt"

// -------------------------------------------------------------------------
// FragState
// -------------------------------------------------------------------------

// FragState is the fragmentation progress of a context.
type FragState uint8

const (
	// FragStateUninit marks a free context: no ALPDU in flight.
	FragStateUninit FragState = iota

	// FragStatePending marks a transmitter context whose ALPDU has been
	// encapsulated but not yet emitted. Receivers never enter it.
	FragStatePending

	// FragStateStart marks a context whose START fragment has been
	// emitted or received.
	FragStateStart

	// FragStateCont marks a context with at least one CONT fragment
	// emitted or received.
	FragStateCont

	// FragStateComplete marks a finished ALPDU; the context is released
	// immediately after.
	FragStateComplete
)

// fragStateNames maps states to human-readable strings.
var fragStateNames = [5]string{"UNINIT", "PENDING", "START", "CONT", "COMPLETE"}

// String returns the human-readable name for the fragmentation state.
func (s FragState) String() string {
	if int(s) < len(fragStateNames) {
		return fragStateNames[s]
	}
	return fmt.Sprintf("Unknown(%d)", uint8(s))
}

// stateKind is the transition-table key: current state + PPDU kind.
type stateKind struct {
	state FragState
	kind  Kind
}

// fragTransitions is the legal-transition table. The transmitter starts
// from FragStatePending (set by Encap), the receiver from FragStateUninit;
// both share the fragment sequencing rules.
//
//nolint:gochecknoglobals // transition table is intentionally package-level.
var fragTransitions = map[stateKind]FragState{
	// Unfragmented ALPDU.
	{FragStatePending, KindComplete}: FragStateComplete,
	{FragStateUninit, KindComplete}:  FragStateComplete,

	// Fragmented ALPDU: START -> CONT* -> END.
	{FragStatePending, KindStart}: FragStateStart,
	{FragStateUninit, KindStart}:  FragStateStart,
	{FragStateStart, KindCont}:    FragStateCont,
	{FragStateStart, KindEnd}:     FragStateComplete,
	{FragStateCont, KindCont}:     FragStateCont,
	{FragStateCont, KindEnd}:      FragStateComplete,
}

// nextFragState applies a PPDU kind to the current state. The second
// return value is false for illegal transitions.
func nextFragState(cur FragState, kind Kind) (FragState, bool) {
	next, ok := fragTransitions[stateKind{state: cur, kind: kind}]
	return next, ok
}

// -------------------------------------------------------------------------
// Free Bitmap
// -------------------------------------------------------------------------

// freeSet is the byte-wide in-use bitmap over the 8 contexts: bit i set
// means context i is in use. It is mutated only by the engines'
// acquire/release helpers so it cannot drift from the context states.
type freeSet uint8

// isFree reports whether context id is free.
func (s freeSet) isFree(id uint8) bool {
	return s>>id&1 == 0
}

// setBusy marks context id in use.
func (s *freeSet) setBusy(id uint8) {
	*s |= 1 << id
}

// setFree marks context id free.
func (s *freeSet) setFree(id uint8) {
	*s &^= 1 << id
}

// firstFree returns the lowest free context ID, searching from 0.
func (s freeSet) firstFree() (uint8, bool) {
	for id := uint8(0); id < MaxFragNumber; id++ {
		if s.isFree(id) {
			return id, true
		}
	}
	return 0, false
}

// -------------------------------------------------------------------------
// Contexts
// -------------------------------------------------------------------------

// txContext is the per-fragment-ID record of a transmitter: one
// fragmentation buffer plus the in-flight ALPDU bookkeeping and the
// link-status counters.
type txContext struct {
	fragID uint8
	state  FragState

	// In-flight ALPDU bookkeeping, valid while state != FragStateUninit.
	useCRC          bool
	protoType       uint16
	labelType       uint8
	ptypeSuppressed bool
	sduLen          int
	nextSeq         uint8

	fbuf  *fragBuffer
	stats Stats
}

// remaining returns the ALPDU bytes not yet emitted.
func (c *txContext) remaining() int {
	return c.fbuf.remaining()
}

// rxContext is the per-fragment-ID record of a receiver: one reassembly
// buffer plus the expected-ALPDU bookkeeping and the link-status counters.
type rxContext struct {
	fragID uint8
	state  FragState

	// Expected-ALPDU bookkeeping, valid while state != FragStateUninit.
	useCRC          bool
	labelType       uint8
	ptypeSuppressed bool
	nextSeq         uint8

	rbuf  *rasmBuffer
	stats Stats
}

// remaining returns the ALPDU bytes still expected.
func (c *rxContext) remaining() int {
	return c.rbuf.expectedEnd - c.rbuf.writeCursor
}
