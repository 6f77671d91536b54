// Package rle implements Return Link Encapsulation (DVB-RCS2,
// ETSI EN 301 545-2) for satellite return links.
//
// This includes the PPDU wire codec, the protocol-type compression table,
// the per-fragment-ID context pool, and the two tightly-coupled engines:
// the transmitter (encapsulation and fragmentation) and the receiver
// (de-encapsulation and reassembly).
//
// The package is transport-agnostic and purely synchronous: Encap, Pack
// and Deencap run to completion with no internal queueing, never log, and
// never allocate on the hot path. A Transmitter or Receiver instance is
// not safe for concurrent use; callers interpose their own mutual
// exclusion.
package rle
