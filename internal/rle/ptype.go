package rle

// This file implements the protocol-type compression table: the static
// mapping between 16-bit Ethertype/LLC values and the 7-bit compressed
// codes of the ALPDU protocol-type field, together with the signalling
// and VLAN special cases.

import "encoding/binary"

// -------------------------------------------------------------------------
// Well-Known Protocol Types
// -------------------------------------------------------------------------

// ProtoTypeSignalUncomp is the uncompressed protocol type of link
// signalling SDUs. Signalling packets keep their protocol-type field and
// are flagged through LabelTypeSignal instead.
const ProtoTypeSignalUncomp uint16 = 0x0082

// ProtoTypeSignalComp is the compressed code of ProtoTypeSignalUncomp.
const ProtoTypeSignalComp uint8 = 0x42

// ProtoTypeVLANCompWoPtypeField is the reserved compressed code for VLAN
// frames carried without a protocol-type field. Configuring it as the
// implicit protocol type is rejected at construction.
const ProtoTypeVLANCompWoPtypeField uint8 = 0x31

// ptypeEscape is the compressed-field escape: a first byte of 0xFF means
// the full 16-bit uncompressed value follows.
const ptypeEscape uint8 = 0xFF

// Protocol-type field sizes in bytes.
const (
	// ProtoTypeFieldSizeComp is the compressed field size.
	ProtoTypeFieldSizeComp = 1

	// ProtoTypeFieldSizeUncomp is the uncompressed field size.
	ProtoTypeFieldSizeUncomp = 2
)

// -------------------------------------------------------------------------
// Table
// -------------------------------------------------------------------------

// ptypeEntry describes one row of the protocol-type table.
type ptypeEntry struct {
	// uncompressed is the 16-bit Ethertype/LLC value.
	uncompressed uint16

	// compressed is the 7-bit code used when compression is enabled.
	compressed uint8

	// omissible marks values eligible for field elision when they match
	// the link's implicit default.
	omissible bool

	// vlanSecondary marks VLAN types whose tag is followed by a secondary
	// header.
	vlanSecondary bool
}

// ptypeTable is the closed enumeration of well-known protocol types.
// Compressed codes follow the DVB-RCS2 assignment; 0x31 is intentionally
// absent (reserved, see ProtoTypeVLANCompWoPtypeField).
var ptypeTable = []ptypeEntry{
	{uncompressed: ProtoTypeSignalUncomp, compressed: ProtoTypeSignalComp},
	{uncompressed: 0x0800, compressed: 0x0D, omissible: true},  // IPv4
	{uncompressed: 0x86DD, compressed: 0x11, omissible: true},  // IPv6
	{uncompressed: 0x0806, compressed: 0x0E, omissible: true},  // ARP
	{uncompressed: 0x8035, compressed: 0x20},                   // RARP
	{uncompressed: 0x8100, compressed: 0x0F, omissible: true},  // VLAN 802.1Q
	{uncompressed: 0x88A8, compressed: 0x19, omissible: true, vlanSecondary: true}, // 802.1ad S-tag
	{uncompressed: 0x9100, compressed: 0x1A, vlanSecondary: true},                  // QinQ (legacy)
	{uncompressed: 0x8847, compressed: 0x21, omissible: true}, // MPLS unicast
	{uncompressed: 0x8848, compressed: 0x22, omissible: true}, // MPLS multicast
	{uncompressed: 0x8863, compressed: 0x23},                  // PPPoE discovery
	{uncompressed: 0x8864, compressed: 0x24},                  // PPPoE session
	{uncompressed: 0x888E, compressed: 0x25},                  // 802.1X EAPOL
	{uncompressed: 0x88CC, compressed: 0x26},                  // LLDP
	{uncompressed: 0x88F7, compressed: 0x27},                  // PTP
	{uncompressed: 0x8906, compressed: 0x28},                  // FCoE
	{uncompressed: 0x8914, compressed: 0x29},                  // FIP
	{uncompressed: 0x8902, compressed: 0x2A},                  // 802.1ag CFM
	{uncompressed: 0x22F3, compressed: 0x2B},                  // TRILL
	{uncompressed: 0x8137, compressed: 0x2C},                  // IPX
	{uncompressed: 0x809B, compressed: 0x2D},                  // AppleTalk
	{uncompressed: 0x80F3, compressed: 0x2E},                  // AARP
	{uncompressed: 0x8808, compressed: 0x2F},                  // Ethernet flow control
	{uncompressed: 0x8809, compressed: 0x30},                  // Slow protocols (LACP)
	{uncompressed: 0x880B, compressed: 0x32},                  // PPP
	{uncompressed: 0x8861, compressed: 0x33},                  // MCAP
	{uncompressed: 0x892F, compressed: 0x34},                  // HSR
	{uncompressed: 0x891D, compressed: 0x35},                  // TTEthernet
	{uncompressed: 0x893A, compressed: 0x36},                  // 1905.1
	{uncompressed: 0x88E5, compressed: 0x37},                  // MACsec
	{uncompressed: 0x88B5, compressed: 0x38},                  // 802.11 local experimental
}

// Lookup maps derived from ptypeTable.
//
//nolint:gochecknoglobals // static protocol-type table is intentionally package-level.
var (
	ptypeByUncompressed = make(map[uint16]ptypeEntry, len(ptypeTable))
	ptypeByCompressed   = make(map[uint8]ptypeEntry, len(ptypeTable))
)

//nolint:gochecknoinits // builds the lookup maps for the static table above.
func init() {
	for _, e := range ptypeTable {
		ptypeByUncompressed[e.uncompressed] = e
		ptypeByCompressed[e.compressed] = e
	}
}

// -------------------------------------------------------------------------
// Lookup Operations
// -------------------------------------------------------------------------

// CompressProtoType maps a 16-bit protocol type to its 7-bit compressed
// code. The second return value is false when the type is not in the
// table; the encoder then escapes to the uncompressed form (0xFF followed
// by the full value).
func CompressProtoType(uncomp uint16) (uint8, bool) {
	e, ok := ptypeByUncompressed[uncomp]
	return e.compressed, ok
}

// DecompressProtoType maps a 7-bit compressed code back to the 16-bit
// protocol type. The second return value is false for unassigned codes.
func DecompressProtoType(comp uint8) (uint16, bool) {
	e, ok := ptypeByCompressed[comp]
	return e.uncompressed, ok
}

// IsSignalProtoType reports whether ptype identifies a signalling SDU.
func IsSignalProtoType(ptype uint16) bool {
	return ptype == ProtoTypeSignalUncomp
}

// VLANHasSecondaryHeader reports whether ptype is a VLAN type whose tag is
// followed by a secondary header.
func VLANHasSecondaryHeader(ptype uint16) bool {
	return ptypeByUncompressed[ptype].vlanSecondary
}

// ptypeOmissible reports whether the protocol-type field may be elided for
// ptype under conf: omission must be enabled, the value must equal the
// configured implicit default, and the value must be in the omissible set.
// Signalling SDUs are never elided.
func ptypeOmissible(ptype uint16, conf *Config) bool {
	if !conf.UsePtypeOmission || IsSignalProtoType(ptype) {
		return false
	}
	if ptype != conf.ImplicitProtoType {
		return false
	}
	return ptypeByUncompressed[ptype].omissible
}

// appendPtypeField appends the ALPDU protocol-type field for ptype to dst
// according to conf, assuming the field was not elided.
func appendPtypeField(dst []byte, ptype uint16, conf *Config) []byte {
	if !conf.UseCompressedPtype {
		return binary.BigEndian.AppendUint16(dst, ptype)
	}
	if code, ok := CompressProtoType(ptype); ok {
		return append(dst, code)
	}
	dst = append(dst, ptypeEscape)
	return binary.BigEndian.AppendUint16(dst, ptype)
}
