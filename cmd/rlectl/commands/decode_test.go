package commands

import (
	"strings"
	"testing"

	"github.com/hnrck/librle/internal/rle"
)

// TestFormatBurst decodes a two-PPDU burst and checks the rendered rows.
func TestFormatBurst(t *testing.T) {
	t.Parallel()

	var burst []byte
	for _, h := range []rle.Header{
		{Kind: rle.KindStart, FragID: 2, BodyLen: 8, TotalALPDU: 40, LabelType: rle.LabelTypeNoSupp, UseCRC: true},
		{Kind: rle.KindCont, FragID: 2, BodyLen: 6},
	} {
		buf := make([]byte, h.Size()+h.BodyLen)
		if _, err := rle.EncodeHeader(&h, buf); err != nil {
			t.Fatalf("EncodeHeader: %v", err)
		}
		burst = append(burst, buf...)
	}

	out, err := formatBurst(burst)
	if err != nil {
		t.Fatalf("formatBurst: %v", err)
	}
	if !strings.Contains(out, "START") || !strings.Contains(out, "CONT") {
		t.Errorf("output missing PPDU kinds:\n%s", out)
	}
	if !strings.Contains(out, "40") {
		t.Errorf("output missing START total length:\n%s", out)
	}
}

// TestFormatBurstRejectsGarbage checks truncated bursts fail cleanly.
func TestFormatBurstRejectsGarbage(t *testing.T) {
	t.Parallel()

	if _, err := formatBurst([]byte{0x80}); err == nil {
		t.Error("formatBurst accepted a truncated burst")
	}
}
