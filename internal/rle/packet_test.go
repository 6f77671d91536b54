package rle_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/hnrck/librle/internal/rle"
)

// TestHeaderRoundTrip encodes every header shape and decodes it back,
// checking each field survives the bit packing.
func TestHeaderRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		hdr  rle.Header
		body int
	}{
		{
			name: "complete no supp",
			hdr:  rle.Header{Kind: rle.KindComplete, BodyLen: 106, LabelType: rle.LabelTypeNoSupp},
			body: 106,
		},
		{
			name: "complete implicit suppressed",
			hdr: rle.Header{
				Kind: rle.KindComplete, BodyLen: 50,
				LabelType: rle.LabelTypeImplicit, PtypeSuppressed: true,
			},
			body: 50,
		},
		{
			name: "complete signal",
			hdr:  rle.Header{Kind: rle.KindComplete, BodyLen: 12, LabelType: rle.LabelTypeSignal},
			body: 12,
		},
		{
			name: "start",
			hdr: rle.Header{
				Kind: rle.KindStart, FragID: 5, BodyLen: 396,
				TotalALPDU: 1005, LabelType: rle.LabelTypeNoSupp, UseCRC: true,
			},
			body: 396,
		},
		{
			name: "start suppressed seqno mode",
			hdr: rle.Header{
				Kind: rle.KindStart, FragID: 7, BodyLen: 100,
				TotalALPDU: 4095, LabelType: rle.LabelTypeImplicit, PtypeSuppressed: true,
			},
			body: 100,
		},
		{
			name: "cont",
			hdr:  rle.Header{Kind: rle.KindCont, FragID: 3, BodyLen: 398},
			body: 398,
		},
		{
			name: "end",
			hdr:  rle.Header{Kind: rle.KindEnd, FragID: 1, BodyLen: 211},
			body: 211,
		},
		{
			name: "end max body",
			hdr:  rle.Header{Kind: rle.KindEnd, FragID: 7, BodyLen: 2047},
			body: 2047,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			buf := make([]byte, tt.hdr.Size()+tt.body)
			n, err := rle.EncodeHeader(&tt.hdr, buf)
			if err != nil {
				t.Fatalf("EncodeHeader: %v", err)
			}
			if n != tt.hdr.Size() {
				t.Fatalf("EncodeHeader wrote %d bytes, want %d", n, tt.hdr.Size())
			}

			got, body, err := rle.DecodePPDU(buf)
			if err != nil {
				t.Fatalf("DecodePPDU: %v", err)
			}
			if got != tt.hdr {
				t.Errorf("decoded header %+v, want %+v", got, tt.hdr)
			}
			if len(body) != tt.body {
				t.Errorf("body of %d bytes, want %d", len(body), tt.body)
			}
		})
	}
}

// TestCompleteHeaderLayout pins the exact bit layout of the first header
// word: S and E set, the 11-bit length in bits 13..3, LT_T_FID in the low
// three bits.
func TestCompleteHeaderLayout(t *testing.T) {
	t.Parallel()

	h := rle.Header{Kind: rle.KindComplete, BodyLen: 106, LabelType: rle.LabelTypeNoSupp}
	buf := make([]byte, rle.CompleteHeaderSize)
	if _, err := rle.EncodeHeader(&h, buf); err != nil {
		t.Fatalf("EncodeHeader: %v", err)
	}

	// 0xC000 | 106<<3 = 0xC350.
	if want := []byte{0xC3, 0x50}; !bytes.Equal(buf, want) {
		t.Fatalf("COMPLETE header % X, want % X", buf, want)
	}
}

// TestDecodeMalformed exercises the decode-time validation rules.
func TestDecodeMalformed(t *testing.T) {
	t.Parallel()

	encode := func(h rle.Header, body int) []byte {
		buf := make([]byte, h.Size()+body)
		if _, err := rle.EncodeHeader(&h, buf); err != nil {
			t.Fatalf("EncodeHeader: %v", err)
		}
		return buf
	}

	tests := []struct {
		name string
		buf  []byte
	}{
		{name: "truncated header", buf: []byte{0xC0}},
		{name: "truncated start header", buf: []byte{0x80, 0x08, 0x01}},
		{
			name: "length field beyond buffer",
			buf:  encode(rle.Header{Kind: rle.KindCont, FragID: 1, BodyLen: 10}, 10)[:8],
		},
		{
			name: "zero body cont",
			buf:  encode(rle.Header{Kind: rle.KindCont, FragID: 1, BodyLen: 0}, 0),
		},
		{
			name: "zero body end",
			buf:  encode(rle.Header{Kind: rle.KindEnd, FragID: 1, BodyLen: 0}, 0),
		},
		{
			name: "reserved label type",
			buf:  encode(rle.Header{Kind: rle.KindComplete, BodyLen: 4, LabelType: 1}, 4),
		},
		{
			name: "signal label with suppressed ptype",
			buf: encode(rle.Header{
				Kind: rle.KindComplete, BodyLen: 4,
				LabelType: rle.LabelTypeSignal, PtypeSuppressed: true,
			}, 4),
		},
		{
			name: "start announcing no more than body",
			buf: encode(rle.Header{
				Kind: rle.KindStart, FragID: 2, BodyLen: 20, TotalALPDU: 20,
			}, 20),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, _, err := rle.DecodePPDU(tt.buf); !errors.Is(err, rle.ErrMalformedHeader) {
				t.Fatalf("DecodePPDU error %v, want ErrMalformedHeader", err)
			}
		})
	}
}

// TestNextPPDU walks a burst of three back-to-back PPDUs.
func TestNextPPDU(t *testing.T) {
	t.Parallel()

	var burst []byte
	sizes := []int{0, 0, 0}

	hdrs := []rle.Header{
		{Kind: rle.KindComplete, BodyLen: 10, LabelType: rle.LabelTypeNoSupp},
		{Kind: rle.KindStart, FragID: 2, BodyLen: 30, TotalALPDU: 100},
		{Kind: rle.KindCont, FragID: 2, BodyLen: 20},
	}
	for i, h := range hdrs {
		buf := make([]byte, h.Size()+h.BodyLen)
		if _, err := rle.EncodeHeader(&h, buf); err != nil {
			t.Fatalf("EncodeHeader: %v", err)
		}
		sizes[i] = len(buf)
		burst = append(burst, buf...)
	}

	rest := burst
	for i, want := range sizes {
		var ppdu []byte
		var err error
		ppdu, rest, err = rle.NextPPDU(rest)
		if err != nil {
			t.Fatalf("NextPPDU #%d: %v", i, err)
		}
		if len(ppdu) != want {
			t.Fatalf("NextPPDU #%d returned %d bytes, want %d", i, len(ppdu), want)
		}
	}
	if len(rest) != 0 {
		t.Fatalf("burst remainder of %d bytes, want 0", len(rest))
	}

	// A PPDU overrunning the burst is rejected.
	if _, _, err := rle.NextPPDU(burst[sizes[0] : sizes[0]+3]); !errors.Is(err, rle.ErrMalformedHeader) {
		t.Fatalf("NextPPDU on truncated burst: %v, want ErrMalformedHeader", err)
	}
}
