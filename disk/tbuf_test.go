package disk

import (
	"testing"

	"github.com/sergev/floppy/mfm"
)

// packBoolsToBytes folds a bool slice MSB-first into bytes, for feeding a
// TrackBuffer's raw output into mfm.NewReader-based decoding.
func packBoolsToBytes(bits []bool) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for i, b := range bits {
		if b {
			out[i/8] |= 1 << uint(7-i%8)
		}
	}
	return out
}

func TestTrackBufferBytesMFMRoundTrip(t *testing.T) {
	tb := NewTrackBuffer(0, 4*16)
	want := []byte{0xde, 0xad, 0xbe, 0xef}
	tb.Bytes(SpeedNominal, mfm.BCMFM, want)

	raw := packBoolsToBytes(tb.Bits)
	got := mfm.DecodeBytes(mfm.BCMFM, len(want), raw)
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("byte %d: got 0x%02x, want 0x%02x", i, got[i], want[i])
		}
	}
}

func TestTrackBufferBytesShuffledRoundTrip(t *testing.T) {
	for _, enc := range []mfm.BitcellEncoding{mfm.BCMFMOddEven, mfm.BCMFMEvenOdd} {
		want := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
		tb := NewTrackBuffer(0, len(want)*16)
		tb.Bytes(SpeedNominal, enc, want)

		raw := packBoolsToBytes(tb.Bits)
		got := mfm.DecodeBytes(enc, len(want), raw)
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("enc %v byte %d: got 0x%02x, want 0x%02x", enc, i, got[i], want[i])
			}
		}
	}
}

func TestTrackBufferGapFillByte(t *testing.T) {
	tb := NewTrackBuffer(0, 8*16)
	tb.SetGapFillByte(0x4e)
	tb.Gap(SpeedNominal, 8*8)

	raw := packBoolsToBytes(tb.Bits)
	got := mfm.DecodeBytes(mfm.BCMFM, 8, raw)
	for i, b := range got {
		if b != 0x4e {
			t.Errorf("gap byte %d = 0x%02x, want 0x4e", i, b)
		}
	}
}

func TestTrackBufferCRCRunMatchesExplicitCompute(t *testing.T) {
	tb := NewTrackBuffer(0, 8*16)
	tb.StartCRC()
	data := []byte{0x01, 0x02, 0x03, 0x04}
	tb.Bytes(SpeedNominal, mfm.BCMFM, data)
	tb.EmitCRC16CCITT(SpeedNominal)

	want := mfm.CRC16CCITT(data)
	raw := packBoolsToBytes(tb.Bits)
	got := mfm.DecodeBytes(mfm.BCMFM, 6, raw)
	gotCRC := uint16(got[4])<<8 | uint16(got[5])
	if gotCRC != want {
		t.Errorf("emitted CRC = 0x%04x, want 0x%04x", gotCRC, want)
	}
}

func TestTrackBufferWeakMarksSpeed(t *testing.T) {
	tb := NewTrackBuffer(0, 32)
	tb.Weak(32)
	for i, sp := range tb.Speed {
		if sp != SpeedWeak {
			t.Errorf("bit %d: speed = %d, want SpeedWeak", i, sp)
		}
	}
}

func TestTrackBufferDataStartBC(t *testing.T) {
	tb := NewTrackBuffer(5, 64)
	if tb.DataStartBC() != 0 {
		t.Errorf("DataStartBC before any emission = %d, want 0", tb.DataStartBC())
	}
	tb.Bits(SpeedNominal, mfm.BCRaw, 8, 0xff)
	if tb.DataStartBC() != 5 {
		t.Errorf("DataStartBC after first emission = %d, want bitstart 5", tb.DataStartBC())
	}
}

func TestTrackBufferFinishFindsSplice(t *testing.T) {
	tb := NewTrackBuffer(0, 32)
	tb.Bits(SpeedNominal, mfm.BCRaw, 32, 0x00010000) // one set bit, at cell 15
	bits, speed, splice := tb.Finish()
	if len(bits) != 32 || len(speed) != 32 {
		t.Fatalf("Finish returned wrong-length slices: %d/%d", len(bits), len(speed))
	}
	if !bits[splice] {
		t.Errorf("splice at %d should point at a set bit", splice)
	}
}
