package rle

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// -------------------------------------------------------------------------
// Transmitter Errors
// -------------------------------------------------------------------------

var (
	// ErrInvalidFragID indicates a fragment ID outside [0, MaxFragID].
	// This is a caller contract violation, not a wire-format error.
	ErrInvalidFragID = errors.New("fragment id out of range")

	// ErrSDUTooLarge indicates an SDU above MaxPDUSize. The SDU is
	// dropped and accounted; the context stays free.
	ErrSDUTooLarge = errors.New("SDU too large for encapsulation")

	// ErrContextBusy indicates an Encap on a fragment ID with an ALPDU
	// already in flight. The caller retries on another fragment ID.
	ErrContextBusy = errors.New("fragmentation context busy")

	// ErrContextIdle indicates a Pack on a fragment ID with nothing
	// queued.
	ErrContextIdle = errors.New("fragmentation context idle")

	// ErrBurstTooSmall indicates a burst budget below the minimum PPDU.
	// No state changes; the caller supplies a larger burst.
	ErrBurstTooSmall = errors.New("burst budget too small")
)

// -------------------------------------------------------------------------
// Transmitter
// -------------------------------------------------------------------------

// Transmitter implements RLE encapsulation and fragmentation: it packs
// variable-length SDUs into fixed-capacity bursts, fragmenting across
// bursts when needed. Up to 8 SDUs, one per fragment ID, can be in flight
// at once.
//
// A Transmitter is not safe for concurrent use.
type Transmitter struct {
	conf Config
	ctx  [MaxFragNumber]txContext
	busy freeSet

	// scratch assembles the ALPDU protocol-type prefix without
	// allocating per call.
	scratch [maxPtypeFieldSize]byte
}

// NewTransmitter builds a transmitter for the given link configuration.
// All context buffers are preallocated here; Encap and Pack never
// allocate.
func NewTransmitter(conf Config) (*Transmitter, error) {
	if err := conf.validate(); err != nil {
		return nil, fmt.Errorf("new transmitter: %w", err)
	}

	t := &Transmitter{conf: conf}
	for i := range t.ctx {
		t.ctx[i].fragID = uint8(i)
		t.ctx[i].fbuf = newFragBuffer()
	}
	return t, nil
}

// acquire marks context id busy and queues it for emission. The bitmap is
// mutated here and in release only; after acquire the context state
// advances through transition.
func (t *Transmitter) acquire(id uint8) *txContext {
	t.busy.setBusy(id)
	c := &t.ctx[id]
	c.state = FragStatePending
	return c
}

// release returns context id to the free pool.
func (t *Transmitter) release(id uint8) {
	c := &t.ctx[id]
	c.state = FragStateUninit
	c.fbuf.reset()
	t.busy.setFree(id)
}

// -------------------------------------------------------------------------
// Encap
// -------------------------------------------------------------------------

// Encap accepts an SDU with its protocol type and builds the ALPDU on the
// context of fragID: [ptype field?][SDU][CRC-32?]. The protocol-type field
// is elided, compressed or kept uncompressed according to the link
// configuration; in CRC trailer mode the CRC is computed over the SDU
// only and laid down after it.
//
// The context must be free; the ALPDU is then emitted through successive
// Pack calls.
func (t *Transmitter) Encap(fragID uint8, sdu []byte, protoType uint16) error {
	if fragID > MaxFragID {
		return fmt.Errorf("encap: fragment id %d: %w", fragID, ErrInvalidFragID)
	}
	if !t.busy.isFree(fragID) {
		return fmt.Errorf("encap: fragment id %d: %w", fragID, ErrContextBusy)
	}

	c := &t.ctx[fragID]
	c.stats.noteIn(len(sdu))

	if len(sdu) > MaxPDUSize {
		c.stats.noteDropped(len(sdu))
		return fmt.Errorf("encap: SDU of %d bytes, maximum %d: %w",
			len(sdu), MaxPDUSize, ErrSDUTooLarge)
	}

	suppressed := ptypeOmissible(protoType, &t.conf)

	var labelType uint8
	switch {
	case IsSignalProtoType(protoType):
		labelType = LabelTypeSignal
	case suppressed:
		labelType = LabelTypeImplicit
	default:
		labelType = LabelTypeNoSupp
	}

	var prefix []byte
	if !suppressed {
		prefix = appendPtypeField(t.scratch[:0], protoType, &t.conf)
	}

	c = t.acquire(fragID)
	c.fbuf.setPrefix(prefix)
	c.fbuf.append(sdu...)
	if t.conf.UseALPDUCRC {
		var crc [CRCSize]byte
		binary.BigEndian.PutUint32(crc[:], CRC32(sdu))
		c.fbuf.append(crc[:]...)
	}

	c.useCRC = t.conf.UseALPDUCRC
	c.protoType = protoType
	c.labelType = labelType
	c.ptypeSuppressed = suppressed
	c.sduLen = len(sdu)
	c.nextSeq = 0

	return nil
}

// -------------------------------------------------------------------------
// Pack
// -------------------------------------------------------------------------

// Pack emits the next PPDU of the ALPDU in flight on fragID into burst and
// returns the number of bytes written. The burst budget is len(burst).
//
// The PPDU kind is chosen by state and budget:
//
//   - Nothing emitted yet and the whole ALPDU fits: COMPLETE, and the
//     context is released.
//   - Nothing emitted yet, does not fit: START carrying the total ALPDU
//     length; sequence numbering (SeqNo mode) starts at 0 on the next
//     PPDU.
//   - Mid-fragmentation, the remainder fits: END (with the trailer), the
//     context is released.
//   - Mid-fragmentation otherwise: CONT filling the budget.
//
// The fits tests are strict against the 11-bit PPDU length field; a CONT
// is never emitted with an empty body. ErrBurstTooSmall leaves all state
// untouched.
func (t *Transmitter) Pack(fragID uint8, burst []byte) (int, error) {
	if fragID > MaxFragID {
		return 0, fmt.Errorf("pack: fragment id %d: %w", fragID, ErrInvalidFragID)
	}
	if t.busy.isFree(fragID) {
		return 0, fmt.Errorf("pack: fragment id %d: %w", fragID, ErrContextIdle)
	}

	budget := len(burst)
	if budget < MinPPDUSize {
		return 0, fmt.Errorf("pack: burst budget %d, minimum %d: %w",
			budget, MinPPDUSize, ErrBurstTooSmall)
	}

	c := &t.ctx[fragID]
	switch c.state {
	case FragStatePending:
		total := c.fbuf.total()
		if total <= budget-CompleteHeaderSize && total <= MaxPPDUBodyLen {
			return t.packComplete(c, burst)
		}
		return t.packStart(c, burst)
	case FragStateStart, FragStateCont:
		trailer := t.conf.trailerSize()
		remaining := c.remaining()
		if remaining+trailer <= budget-EndHeaderSize &&
			remaining+trailer <= MaxPPDUBodyLen {
			return t.packEnd(c, burst)
		}
		return t.packCont(c, burst)
	default:
		return 0, fmt.Errorf("pack: fragment id %d in state %s: %w",
			fragID, c.state, ErrContextIdle)
	}
}

// packComplete emits the whole ALPDU as one COMPLETE PPDU and releases the
// context.
func (t *Transmitter) packComplete(c *txContext, burst []byte) (int, error) {
	alpdu := c.fbuf.alpdu()
	h := Header{
		Kind:            KindComplete,
		BodyLen:         len(alpdu),
		LabelType:       c.labelType,
		PtypeSuppressed: c.ptypeSuppressed,
	}
	n, err := EncodeHeader(&h, burst)
	if err != nil {
		return 0, fmt.Errorf("pack COMPLETE: %w", err)
	}
	copy(burst[n:], alpdu)

	t.transition(c, KindComplete)
	c.stats.noteOk(c.sduLen)
	t.release(c.fragID)
	return n + len(alpdu), nil
}

// packStart opens fragmentation with a START PPDU announcing the total
// ALPDU length.
func (t *Transmitter) packStart(c *txContext, burst []byte) (int, error) {
	body := len(burst) - StartHeaderSize
	if body < 1 {
		return 0, fmt.Errorf("pack START: burst budget %d: %w",
			len(burst), ErrBurstTooSmall)
	}
	if body > MaxPPDUBodyLen {
		body = MaxPPDUBodyLen
	}
	// The fits test already failed, so body < remaining and an END (and
	// its trailer) always has something left to carry.

	h := Header{
		Kind:            KindStart,
		FragID:          c.fragID,
		BodyLen:         body,
		TotalALPDU:      c.fbuf.total(),
		LabelType:       c.labelType,
		PtypeSuppressed: c.ptypeSuppressed,
		UseCRC:          c.useCRC,
	}
	n, err := EncodeHeader(&h, burst)
	if err != nil {
		return 0, fmt.Errorf("pack START: %w", err)
	}
	copy(burst[n:], c.fbuf.peekNext(body))
	c.fbuf.commit(body)
	c.nextSeq = 0

	t.transition(c, KindStart)
	return n + body, nil
}

// packCont emits a CONT PPDU filling the budget. In SeqNo trailer mode the
// body ends with the running sequence byte.
func (t *Transmitter) packCont(c *txContext, burst []byte) (int, error) {
	trailer := t.conf.trailerSize()
	payload := len(burst) - ContHeaderSize - trailer
	if payload+trailer > MaxPPDUBodyLen {
		payload = MaxPPDUBodyLen - trailer
	}
	if payload < 1 {
		return 0, fmt.Errorf("pack CONT: burst budget %d: %w",
			len(burst), ErrBurstTooSmall)
	}

	h := Header{
		Kind:    KindCont,
		FragID:  c.fragID,
		BodyLen: payload + trailer,
	}
	n, err := EncodeHeader(&h, burst)
	if err != nil {
		return 0, fmt.Errorf("pack CONT: %w", err)
	}
	copy(burst[n:], c.fbuf.peekNext(payload))
	c.fbuf.commit(payload)
	if trailer > 0 {
		burst[n+payload] = c.nextSeq
		c.nextSeq++
	}

	t.transition(c, KindCont)
	return n + payload + trailer, nil
}

// packEnd emits the END PPDU with the remainder of the ALPDU (CRC already
// inside it in CRC mode; sequence byte appended in SeqNo mode) and
// releases the context.
func (t *Transmitter) packEnd(c *txContext, burst []byte) (int, error) {
	trailer := t.conf.trailerSize()
	remaining := c.remaining()

	h := Header{
		Kind:    KindEnd,
		FragID:  c.fragID,
		BodyLen: remaining + trailer,
	}
	n, err := EncodeHeader(&h, burst)
	if err != nil {
		return 0, fmt.Errorf("pack END: %w", err)
	}
	copy(burst[n:], c.fbuf.peekNext(remaining))
	c.fbuf.commit(remaining)
	if trailer > 0 {
		burst[n+remaining] = c.nextSeq
	}

	t.transition(c, KindEnd)
	c.stats.noteOk(c.sduLen)
	t.release(c.fragID)
	return n + remaining + trailer, nil
}

// transition applies kind to the context state. An illegal transition is a
// bug in the engine, not a wire condition, so it panics.
func (t *Transmitter) transition(c *txContext, kind Kind) {
	next, ok := nextFragState(c.state, kind)
	if !ok {
		panic(fmt.Sprintf("rle: illegal transmit transition %s + %s on fragment id %d",
			c.state, kind, c.fragID))
	}
	c.state = next
}

// -------------------------------------------------------------------------
// Free / Introspection
// -------------------------------------------------------------------------

// Free force-releases the context of fragID, abandoning any ALPDU in
// flight. The dropped counters account the abandoned remainder. Releasing
// a free context is a no-op.
func (t *Transmitter) Free(fragID uint8) error {
	if fragID > MaxFragID {
		return fmt.Errorf("free: fragment id %d: %w", fragID, ErrInvalidFragID)
	}
	if t.busy.isFree(fragID) {
		return nil
	}
	c := &t.ctx[fragID]
	c.stats.noteDropped(c.remaining())
	t.release(fragID)
	return nil
}

// IsFree reports whether the context of fragID has no ALPDU in flight.
func (t *Transmitter) IsFree(fragID uint8) bool {
	return fragID <= MaxFragID && t.busy.isFree(fragID)
}

// FirstFree returns the lowest fragment ID with a free context.
func (t *Transmitter) FirstFree() (uint8, bool) {
	return t.busy.firstFree()
}

// QueueSize returns the number of ALPDU bytes still to emit on fragID.
func (t *Transmitter) QueueSize(fragID uint8) int {
	if fragID > MaxFragID || t.busy.isFree(fragID) {
		return 0
	}
	return t.ctx[fragID].remaining()
}

// Stats returns a snapshot of the link-status counters of fragID.
func (t *Transmitter) Stats(fragID uint8) (Stats, error) {
	if fragID > MaxFragID {
		return Stats{}, fmt.Errorf("stats: fragment id %d: %w", fragID, ErrInvalidFragID)
	}
	return t.ctx[fragID].stats, nil
}

// ResetStats zeroes the link-status counters of fragID.
func (t *Transmitter) ResetStats(fragID uint8) error {
	if fragID > MaxFragID {
		return fmt.Errorf("reset stats: fragment id %d: %w", fragID, ErrInvalidFragID)
	}
	t.ctx[fragID].stats = Stats{}
	return nil
}

// GlobalStats returns the sum of all per-fragment-ID counters.
func (t *Transmitter) GlobalStats() Stats {
	var sum Stats
	for i := range t.ctx {
		sum.merge(t.ctx[i].stats)
	}
	return sum
}
