package rle

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// -------------------------------------------------------------------------
// Receiver Errors
// -------------------------------------------------------------------------

var (
	// ErrOrphanFragment indicates a CONT or END PPDU on a fragment ID
	// with no ALPDU in flight: the START was lost. The context stays
	// free; the lost counter accounts the SDU.
	ErrOrphanFragment = errors.New("fragment without a started ALPDU")

	// ErrSeqMismatch indicates a gap in the per-fragment sequence
	// numbers (SeqNo trailer mode). The in-flight ALPDU is dropped.
	ErrSeqMismatch = errors.New("fragment sequence number mismatch")

	// ErrCrcMismatch indicates the recomputed CRC-32 disagrees with the
	// ALPDU trailer. The reassembled ALPDU is dropped.
	ErrCrcMismatch = errors.New("ALPDU CRC mismatch")

	// ErrIncompleteALPDU indicates an END PPDU arrived before the total
	// announced by START was received.
	ErrIncompleteALPDU = errors.New("END before announced ALPDU length received")

	// ErrTableExhausted indicates a COMPLETE PPDU arrived while all 8
	// contexts hold ALPDUs in flight.
	ErrTableExhausted = errors.New("no free reassembly context")
)

// -------------------------------------------------------------------------
// Receiver
// -------------------------------------------------------------------------

// Delivery is one reassembled SDU handed back by Deencap.
//
// NOTE: SDU is zero-copy. For a COMPLETE PPDU it references the caller's
// PPDU buffer; for a fragmented ALPDU it references the context's
// reassembly arena and stays valid until that context receives its next
// START. Callers copy if they hold the SDU across further Deencap calls.
type Delivery struct {
	// FragID is the fragment ID the SDU arrived on. For COMPLETE PPDUs it
	// is the context picked for accounting, not a wire field.
	FragID uint8

	// SDU is the reassembled payload.
	SDU []byte

	// ProtoType is the SDU's 16-bit protocol type, restored from the
	// ALPDU field or from the implicit link default.
	ProtoType uint16
}

// Receiver implements RLE de-encapsulation and reassembly: it routes PPDUs
// by fragment ID, validates the START -> CONT* -> END sequence and the
// configured trailer, and delivers SDUs when complete.
//
// A Receiver is not safe for concurrent use.
type Receiver struct {
	conf Config
	ctx  [MaxFragNumber]rxContext
	busy freeSet

	// global accounts drops that cannot be attributed to any fragment-ID
	// context: undecodable headers and exhausted-pool COMPLETEs.
	global Stats
}

// NewReceiver builds a receiver for the given link configuration. All
// context buffers are preallocated here; Deencap never allocates.
func NewReceiver(conf Config) (*Receiver, error) {
	if err := conf.validate(); err != nil {
		return nil, fmt.Errorf("new receiver: %w", err)
	}

	r := &Receiver{conf: conf}
	for i := range r.ctx {
		r.ctx[i].fragID = uint8(i)
		r.ctx[i].rbuf = newRasmBuffer()
	}
	return r, nil
}

// acquire marks context id busy. The bitmap is mutated here and in release
// only; the context state advances through transition.
func (r *Receiver) acquire(id uint8) *rxContext {
	r.busy.setBusy(id)
	return &r.ctx[id]
}

// release returns context id to the free pool. The reassembly arena is
// not cleared: a just-delivered SDU stays readable until the context's
// next START.
func (r *Receiver) release(id uint8) {
	r.ctx[id].state = FragStateUninit
	r.busy.setFree(id)
}

// -------------------------------------------------------------------------
// Deencap
// -------------------------------------------------------------------------

// Deencap processes one PPDU from the wire. It returns a Delivery when the
// PPDU completes an SDU (COMPLETE or END), nil mid-reassembly.
//
// PPDUs on one fragment ID must arrive in emission order; the return link
// guarantees this. Errors release the affected context (if any) and are
// accounted in the link-status counters; the receiver keeps working.
func (r *Receiver) Deencap(ppdu []byte) (*Delivery, error) {
	h, body, err := DecodePPDU(ppdu)
	if err != nil {
		r.global.noteDropped(len(ppdu))
		return nil, fmt.Errorf("deencap: %w", err)
	}

	switch h.Kind {
	case KindComplete:
		return r.deencapComplete(&h, body)
	case KindStart:
		return nil, r.deencapStart(&h, body)
	case KindCont:
		return nil, r.deencapCont(&h, body)
	default:
		return r.deencapEnd(&h, body)
	}
}

// deencapComplete delivers an unfragmented ALPDU synchronously. A free
// context (lowest ID first) is borrowed for accounting.
func (r *Receiver) deencapComplete(h *Header, body []byte) (*Delivery, error) {
	id, ok := r.busy.firstFree()
	if !ok {
		r.global.noteDropped(len(body))
		return nil, fmt.Errorf("deencap COMPLETE: %w", ErrTableExhausted)
	}

	c := r.acquire(id)
	r.transition(c, KindComplete)
	c.stats.noteIn(len(body))

	sdu, ptype, err := r.finalizeALPDU(body, h.LabelType, h.PtypeSuppressed, r.conf.UseALPDUCRC)
	if err != nil {
		c.stats.noteDropped(len(body))
		r.release(id)
		return nil, fmt.Errorf("deencap COMPLETE: %w", err)
	}

	c.stats.noteOk(len(sdu))
	r.release(id)
	return &Delivery{FragID: id, SDU: sdu, ProtoType: ptype}, nil
}

// deencapStart opens reassembly of a fragmented ALPDU. A START on a busy
// context means the sender restarted mid-stream: the previous ALPDU is
// dropped and reassembly proceeds with the new one.
func (r *Receiver) deencapStart(h *Header, body []byte) error {
	id := h.FragID
	c := &r.ctx[id]

	if !r.busy.isFree(id) {
		c.stats.noteDropped(c.remaining())
		r.release(id)
	}

	// The per-ALPDU CRC flag must agree with the link configuration.
	if h.UseCRC != r.conf.UseALPDUCRC {
		r.global.noteDropped(len(body))
		return fmt.Errorf("deencap START: CRC flag %t, link configured %t: %w",
			h.UseCRC, r.conf.UseALPDUCRC, ErrMalformedHeader)
	}
	if h.TotalALPDU > MaxALPDUSize {
		r.global.noteDropped(len(body))
		return fmt.Errorf("deencap START: total ALPDU %d, maximum %d: %w",
			h.TotalALPDU, MaxALPDUSize, ErrMalformedHeader)
	}

	c = r.acquire(id)
	r.transition(c, KindStart)
	c.useCRC = h.UseCRC
	c.labelType = h.LabelType
	c.ptypeSuppressed = h.PtypeSuppressed
	c.nextSeq = 0
	c.rbuf.reset(h.TotalALPDU)
	c.stats.noteIn(len(body))

	// DecodePPDU guarantees body < total, so this cannot overflow.
	return c.rbuf.appendBytes(body)
}

// deencapCont appends a middle fragment, checking the running sequence
// number in SeqNo trailer mode.
func (r *Receiver) deencapCont(h *Header, body []byte) error {
	id := h.FragID
	c := &r.ctx[id]

	if r.busy.isFree(id) {
		c.stats.noteLost()
		return fmt.Errorf("deencap CONT on fragment id %d: %w", id, ErrOrphanFragment)
	}

	payload, err := r.stripSeq(c, body, KindCont)
	if err != nil {
		return err
	}

	if err := c.rbuf.appendBytes(payload); err != nil {
		c.stats.noteDropped(c.rbuf.received())
		r.release(id)
		return fmt.Errorf("deencap CONT on fragment id %d: %w", id, err)
	}

	r.transition(c, KindCont)
	c.stats.noteInBytes(len(payload))
	return nil
}

// deencapEnd appends the final fragment, verifies the configured trailer,
// and delivers the SDU.
func (r *Receiver) deencapEnd(h *Header, body []byte) (*Delivery, error) {
	id := h.FragID
	c := &r.ctx[id]

	if r.busy.isFree(id) {
		c.stats.noteLost()
		return nil, fmt.Errorf("deencap END on fragment id %d: %w", id, ErrOrphanFragment)
	}

	payload, err := r.stripSeq(c, body, KindEnd)
	if err != nil {
		return nil, err
	}

	if err := c.rbuf.appendBytes(payload); err != nil {
		c.stats.noteDropped(c.rbuf.received())
		r.release(id)
		return nil, fmt.Errorf("deencap END on fragment id %d: %w", id, err)
	}
	c.stats.noteInBytes(len(payload))

	if !c.rbuf.complete() {
		c.stats.noteDropped(c.rbuf.received())
		r.release(id)
		return nil, fmt.Errorf("deencap END on fragment id %d: received %d of %d: %w",
			id, c.rbuf.received(), c.rbuf.expectedEnd, ErrIncompleteALPDU)
	}

	sdu, ptype, err := r.finalizeALPDU(c.rbuf.alpdu(), c.labelType, c.ptypeSuppressed, c.useCRC)
	if err != nil {
		c.stats.noteDropped(c.rbuf.received())
		r.release(id)
		return nil, fmt.Errorf("deencap END on fragment id %d: %w", id, err)
	}

	r.transition(c, KindEnd)
	c.stats.noteOk(len(sdu))
	r.release(id)
	return &Delivery{FragID: id, SDU: sdu, ProtoType: ptype}, nil
}

// stripSeq splits the sequence-number trailer off a CONT/END body in SeqNo
// trailer mode and verifies it against the context's expectation. A
// mismatch drops the in-flight ALPDU and counts it both dropped and lost.
func (r *Receiver) stripSeq(c *rxContext, body []byte, kind Kind) ([]byte, error) {
	if c.useCRC {
		return body, nil
	}

	// DecodePPDU guarantees a non-empty body; in SeqNo mode a CONT needs
	// payload under the trailer as well.
	if kind == KindCont && len(body) < SeqSize+1 {
		c.stats.noteDropped(c.rbuf.received())
		r.release(c.fragID)
		return nil, fmt.Errorf("deencap CONT on fragment id %d: no payload under trailer: %w",
			c.fragID, ErrMalformedHeader)
	}

	seq := body[len(body)-SeqSize]
	if seq != c.nextSeq {
		c.stats.noteDropped(c.rbuf.received())
		c.stats.noteLost()
		r.release(c.fragID)
		return nil, fmt.Errorf("deencap %s on fragment id %d: sequence %d, expected %d: %w",
			kind, c.fragID, seq, c.nextSeq, ErrSeqMismatch)
	}
	c.nextSeq++

	return body[:len(body)-SeqSize], nil
}

// finalizeALPDU resolves the protocol type from the ALPDU prefix (or the
// implicit default), verifies the CRC trailer when present, and returns
// the SDU bytes.
func (r *Receiver) finalizeALPDU(alpdu []byte, labelType uint8, suppressed, useCRC bool) ([]byte, uint16, error) {
	prefixLen, ptype, err := r.resolveProtoType(alpdu, labelType, suppressed)
	if err != nil {
		return nil, 0, err
	}

	sdu := alpdu[prefixLen:]
	if useCRC {
		if len(sdu) < CRCSize {
			return nil, 0, fmt.Errorf("ALPDU of %d bytes too short for CRC trailer: %w",
				len(alpdu), ErrMalformedHeader)
		}
		sdu, trailer := sdu[:len(sdu)-CRCSize], sdu[len(sdu)-CRCSize:]
		if got, want := CRC32(sdu), binary.BigEndian.Uint32(trailer); got != want {
			return nil, 0, fmt.Errorf("CRC 0x%08X, trailer 0x%08X: %w",
				got, want, ErrCrcMismatch)
		}
		return sdu, ptype, nil
	}

	return sdu, ptype, nil
}

// resolveProtoType parses the ALPDU protocol-type prefix, or restores the
// type from the implicit link default when the field was elided.
func (r *Receiver) resolveProtoType(alpdu []byte, labelType uint8, suppressed bool) (int, uint16, error) {
	if suppressed {
		// Signal+suppressed is rejected at decode; anything but the
		// implicit label here is inconsistent.
		if labelType != LabelTypeImplicit {
			return 0, 0, fmt.Errorf("suppressed ptype with label type %d: %w",
				labelType, ErrMalformedHeader)
		}
		return 0, r.conf.ImplicitProtoType, nil
	}

	if !r.conf.UseCompressedPtype {
		if len(alpdu) < ProtoTypeFieldSizeUncomp {
			return 0, 0, fmt.Errorf("ALPDU too short for ptype field: %w", ErrMalformedHeader)
		}
		return ProtoTypeFieldSizeUncomp, binary.BigEndian.Uint16(alpdu), r.checkSignalLabel(labelType, binary.BigEndian.Uint16(alpdu))
	}

	if len(alpdu) < ProtoTypeFieldSizeComp {
		return 0, 0, fmt.Errorf("ALPDU too short for ptype field: %w", ErrMalformedHeader)
	}
	if alpdu[0] == ptypeEscape {
		if len(alpdu) < ProtoTypeFieldSizeComp+ProtoTypeFieldSizeUncomp {
			return 0, 0, fmt.Errorf("ALPDU too short for escaped ptype field: %w", ErrMalformedHeader)
		}
		ptype := binary.BigEndian.Uint16(alpdu[1:])
		return ProtoTypeFieldSizeComp + ProtoTypeFieldSizeUncomp, ptype, r.checkSignalLabel(labelType, ptype)
	}

	ptype, ok := DecompressProtoType(alpdu[0])
	if !ok {
		return 0, 0, fmt.Errorf("compressed ptype code 0x%02X unassigned: %w",
			alpdu[0], ErrMalformedHeader)
	}
	return ProtoTypeFieldSizeComp, ptype, r.checkSignalLabel(labelType, ptype)
}

// checkSignalLabel cross-checks the signalling label against the parsed
// protocol type.
func (r *Receiver) checkSignalLabel(labelType uint8, ptype uint16) error {
	if labelType == LabelTypeSignal && !IsSignalProtoType(ptype) {
		return fmt.Errorf("signal label with protocol type 0x%04X: %w",
			ptype, ErrMalformedHeader)
	}
	return nil
}

// transition applies kind to the context state. Sequencing violations are
// filtered before this point, so an illegal transition here is a bug.
func (r *Receiver) transition(c *rxContext, kind Kind) {
	next, ok := nextFragState(c.state, kind)
	if !ok {
		panic(fmt.Sprintf("rle: illegal receive transition %s + %s on fragment id %d",
			c.state, kind, c.fragID))
	}
	c.state = next
}

// -------------------------------------------------------------------------
// Free / Introspection
// -------------------------------------------------------------------------

// Free force-releases the context of fragID, abandoning any reassembly in
// progress. Releasing a free context is a no-op.
func (r *Receiver) Free(fragID uint8) error {
	if fragID > MaxFragID {
		return fmt.Errorf("free: fragment id %d: %w", fragID, ErrInvalidFragID)
	}
	if r.busy.isFree(fragID) {
		return nil
	}
	c := &r.ctx[fragID]
	c.stats.noteDropped(c.rbuf.received())
	r.release(fragID)
	return nil
}

// IsFree reports whether the context of fragID has no reassembly in
// progress.
func (r *Receiver) IsFree(fragID uint8) bool {
	return fragID <= MaxFragID && r.busy.isFree(fragID)
}

// Stats returns a snapshot of the link-status counters of fragID.
func (r *Receiver) Stats(fragID uint8) (Stats, error) {
	if fragID > MaxFragID {
		return Stats{}, fmt.Errorf("stats: fragment id %d: %w", fragID, ErrInvalidFragID)
	}
	return r.ctx[fragID].stats, nil
}

// ResetStats zeroes the link-status counters of fragID.
func (r *Receiver) ResetStats(fragID uint8) error {
	if fragID > MaxFragID {
		return fmt.Errorf("reset stats: fragment id %d: %w", fragID, ErrInvalidFragID)
	}
	r.ctx[fragID].stats = Stats{}
	return nil
}

// GlobalStats returns the sum of all per-fragment-ID counters plus the
// drops not attributable to any context.
func (r *Receiver) GlobalStats() Stats {
	sum := r.global
	for i := range r.ctx {
		sum.merge(r.ctx[i].stats)
	}
	return sum
}
