package rle_test

import (
	"bytes"
	"fmt"
	"math/rand"
	"testing"

	"github.com/hnrck/librle/internal/rle"
)

// TestRoundTripProperty drives random SDUs through random burst budgets
// under six trailer/compression/omission combinations and checks the
// receiver reproduces each SDU, its ptype, and clean counters.
func TestRoundTripProperty(t *testing.T) {
	t.Parallel()

	configs := []rle.Config{
		{},
		{UseALPDUCRC: true},
		{UseCompressedPtype: true},
		{UseALPDUCRC: true, UseCompressedPtype: true},
		{ImplicitProtoType: 0x0800, UsePtypeOmission: true},
		{ImplicitProtoType: 0x86DD, UsePtypeOmission: true, UseALPDUCRC: true, UseCompressedPtype: true},
	}
	ptypes := []uint16{0x0800, 0x86DD, 0x0806, 0xBEEF, rle.ProtoTypeSignalUncomp}

	for ci, conf := range configs {
		t.Run(fmt.Sprintf("config%d", ci), func(t *testing.T) {
			t.Parallel()

			rng := rand.New(rand.NewSource(int64(ci) + 1))

			tx, err := rle.NewTransmitter(conf)
			if err != nil {
				t.Fatalf("NewTransmitter: %v", err)
			}
			rx, err := rle.NewReceiver(conf)
			if err != nil {
				t.Fatalf("NewReceiver: %v", err)
			}

			const rounds = 200
			for round := 0; round < rounds; round++ {
				sdu := make([]byte, rng.Intn(rle.MaxPDUSize+1))
				rng.Read(sdu)
				ptype := ptypes[rng.Intn(len(ptypes))]
				fragID := uint8(rng.Intn(rle.MaxFragNumber))

				if err := tx.Encap(fragID, sdu, ptype); err != nil {
					t.Fatalf("round %d: Encap: %v", round, err)
				}

				var delivered *rle.Delivery
				for i := 0; !tx.IsFree(fragID); i++ {
					if i > 2048 {
						t.Fatalf("round %d: packing did not converge", round)
					}
					// Budgets of at least 8 bytes keep every header shape
					// plus a non-empty body representable.
					burst := make([]byte, 8+rng.Intn(600))
					n, err := tx.Pack(fragID, burst)
					if err != nil {
						t.Fatalf("round %d: Pack: %v", round, err)
					}
					d, err := rx.Deencap(burst[:n])
					if err != nil {
						t.Fatalf("round %d: Deencap: %v", round, err)
					}
					if d != nil {
						delivered = d
					}
				}

				if delivered == nil {
					t.Fatalf("round %d: no delivery", round)
				}
				if !bytes.Equal(delivered.SDU, sdu) {
					t.Fatalf("round %d: SDU of %d bytes corrupted", round, len(sdu))
				}
				if delivered.ProtoType != ptype {
					t.Fatalf("round %d: ptype 0x%04X, want 0x%04X",
						round, delivered.ProtoType, ptype)
				}
			}

			txGlobal := tx.GlobalStats()
			rxGlobal := rx.GlobalStats()
			if txGlobal.SDUsOk != rounds || txGlobal.SDUsDropped != 0 {
				t.Errorf("tx global %+v, want ok=%d dropped=0", txGlobal, rounds)
			}
			if rxGlobal.SDUsOk != rounds || rxGlobal.SDUsDropped != 0 || rxGlobal.SDUsLost != 0 {
				t.Errorf("rx global %+v, want ok=%d dropped=0 lost=0", rxGlobal, rounds)
			}
		})
	}
}

// TestInterleavedFragmentIDs reassembles two SDUs whose fragments arrive
// interleaved on different fragment IDs.
func TestInterleavedFragmentIDs(t *testing.T) {
	t.Parallel()

	conf := rle.Config{UseALPDUCRC: true}
	tx, err := rle.NewTransmitter(conf)
	if err != nil {
		t.Fatalf("NewTransmitter: %v", err)
	}
	rx, err := rle.NewReceiver(conf)
	if err != nil {
		t.Fatalf("NewReceiver: %v", err)
	}

	sduA := bytes.Repeat([]byte{0xA0}, 500)
	sduB := bytes.Repeat([]byte{0xB0}, 700)
	if err := tx.Encap(1, sduA, 0x0800); err != nil {
		t.Fatalf("Encap A: %v", err)
	}
	if err := tx.Encap(6, sduB, 0x86DD); err != nil {
		t.Fatalf("Encap B: %v", err)
	}

	got := make(map[uint8][]byte)
	burst := make([]byte, 180)
	for !tx.IsFree(1) || !tx.IsFree(6) {
		for _, id := range []uint8{1, 6} {
			if tx.IsFree(id) {
				continue
			}
			n, err := tx.Pack(id, burst)
			if err != nil {
				t.Fatalf("Pack(%d): %v", id, err)
			}
			d, err := rx.Deencap(burst[:n])
			if err != nil {
				t.Fatalf("Deencap(%d): %v", id, err)
			}
			if d != nil {
				got[d.FragID] = append([]byte(nil), d.SDU...)
			}
		}
	}

	if !bytes.Equal(got[1], sduA) {
		t.Error("SDU on fragment id 1 corrupted")
	}
	if !bytes.Equal(got[6], sduB) {
		t.Error("SDU on fragment id 6 corrupted")
	}
}

// TestBurstPartitionProperty re-packs the same SDU under many different
// burst partitions: whatever the partition, the PPDU bodies must
// concatenate to the same ALPDU and reassemble identically.
func TestBurstPartitionProperty(t *testing.T) {
	t.Parallel()

	conf := rle.Config{UseCompressedPtype: true}
	sdu := bytes.Repeat([]byte{0x3C}, 1200)

	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 50; trial++ {
		tx, err := rle.NewTransmitter(conf)
		if err != nil {
			t.Fatalf("NewTransmitter: %v", err)
		}
		rx, err := rle.NewReceiver(conf)
		if err != nil {
			t.Fatalf("NewReceiver: %v", err)
		}

		if err := tx.Encap(0, sdu, 0x0800); err != nil {
			t.Fatalf("trial %d: Encap: %v", trial, err)
		}

		var delivered *rle.Delivery
		for !tx.IsFree(0) {
			burst := make([]byte, 8+rng.Intn(400))
			n, err := tx.Pack(0, burst)
			if err != nil {
				t.Fatalf("trial %d: Pack: %v", trial, err)
			}
			d, err := rx.Deencap(burst[:n])
			if err != nil {
				t.Fatalf("trial %d: Deencap: %v", trial, err)
			}
			if d != nil {
				delivered = d
			}
		}

		if delivered == nil || !bytes.Equal(delivered.SDU, sdu) {
			t.Fatalf("trial %d: SDU not reproduced", trial)
		}
	}
}
