package rle

import (
	"errors"
	"fmt"
)

// Config holds the link-wide encapsulation knobs. Both ends of a link must
// be constructed with identical values. A Config is immutable once a
// Transmitter or Receiver has been built from it.
type Config struct {
	// ImplicitProtoType is the default Ethertype of the link. When
	// UsePtypeOmission is set and an SDU's type matches it, the ALPDU
	// protocol-type field is elided and restored by the receiver.
	ImplicitProtoType uint16

	// UseALPDUCRC selects the trailer mode: true appends a 4-byte CRC-32
	// to every ALPDU; false appends a 1-byte running sequence number to
	// each CONT and END PPDU instead (START carries none).
	UseALPDUCRC bool

	// UseCompressedPtype encodes well-known protocol types in one byte.
	// Unknown types escape to the uncompressed form.
	UseCompressedPtype bool

	// UsePtypeOmission enables eliding the protocol-type field when the
	// SDU's type equals ImplicitProtoType.
	UsePtypeOmission bool
}

// ErrUnsupportedConfig indicates a configuration a transmitter or receiver
// cannot be built from.
var ErrUnsupportedConfig = errors.New("unsupported RLE configuration")

// validate rejects configurations the engines do not support.
func (c *Config) validate() error {
	// VLAN-compressed without a ptype field cannot serve as the implicit
	// default: the receiver would have no way to restore the elided field.
	if c.ImplicitProtoType == uint16(ProtoTypeVLANCompWoPtypeField) {
		return fmt.Errorf("implicit protocol type 0x%02X: %w",
			c.ImplicitProtoType, ErrUnsupportedConfig)
	}
	return nil
}

// trailerSize returns the per-fragment PPDU trailer size for the
// configured mode: zero in CRC mode (the CRC lives inside the ALPDU),
// SeqSize otherwise.
func (c *Config) trailerSize() int {
	if c.UseALPDUCRC {
		return 0
	}
	return SeqSize
}
