package flux

import (
	"bytes"
	"testing"

	"github.com/sergev/floppy/mfm"
)

func TestStreamNextBytesRoundTrip(t *testing.T) {
	want := []byte{0x12, 0x34, 0x56, 0x78}
	w := mfm.NewWriter(len(want) * 16)
	mfm.EncodeBytes(mfm.BCMFM, w, want)

	const bitRateKhz = 250
	transitions, err := mfm.GenerateFluxTransitions(w.Bytes(), bitRateKhz)
	if err != nil {
		t.Fatalf("GenerateFluxTransitions: %v", err)
	}

	s := NewStream([][]uint64{transitions})
	if err := s.SelectTrack(0); err != nil {
		t.Fatalf("SelectTrack(0): %v", err)
	}
	s.SetDensity(1_000_000 / bitRateKhz)

	got := make([]byte, len(want))
	if err := s.NextBytes(got); err != nil {
		t.Fatalf("NextBytes: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("NextBytes round trip = %x, want %x", got, want)
	}
}

func TestStreamCRCAccumulates(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04}
	w := mfm.NewWriter(len(data) * 16)
	mfm.EncodeBytes(mfm.BCMFM, w, data)

	const bitRateKhz = 250
	transitions, err := mfm.GenerateFluxTransitions(w.Bytes(), bitRateKhz)
	if err != nil {
		t.Fatalf("GenerateFluxTransitions: %v", err)
	}

	s := NewStream([][]uint64{transitions})
	if err := s.SelectTrack(0); err != nil {
		t.Fatalf("SelectTrack(0): %v", err)
	}
	s.SetDensity(1_000_000 / bitRateKhz)
	s.StartCRC()

	buf := make([]byte, len(data))
	if err := s.NextBytes(buf); err != nil {
		t.Fatalf("NextBytes: %v", err)
	}
	if s.CRC16CCITT() != mfm.CRC16CCITT(data) {
		t.Errorf("CRC16CCITT() = 0x%04x, want 0x%04x", s.CRC16CCITT(), mfm.CRC16CCITT(data))
	}
}

func TestStreamSelectTrackOutOfRange(t *testing.T) {
	s := NewStream([][]uint64{{1000, 2000}})
	if err := s.SelectTrack(-1); err == nil {
		t.Error("SelectTrack(-1) should error")
	}
	if err := s.SelectTrack(1); err == nil {
		t.Error("SelectTrack(1) should error, only track 0 exists")
	}
}

func TestStreamResetRewinds(t *testing.T) {
	data := []byte{0xaa}
	w := mfm.NewWriter(len(data) * 16)
	mfm.EncodeBytes(mfm.BCMFM, w, data)
	transitions, _ := mfm.GenerateFluxTransitions(w.Bytes(), 250)

	s := NewStream([][]uint64{transitions})
	s.SelectTrack(0)
	s.SetDensity(4000)

	first := make([]byte, 1)
	s.NextBytes(first)
	s.Reset()
	second := make([]byte, 1)
	if err := s.NextBytes(second); err != nil {
		t.Fatalf("NextBytes after Reset: %v", err)
	}
	if first[0] != second[0] {
		t.Errorf("Reset should replay the same bits: got 0x%02x then 0x%02x", first[0], second[0])
	}
}
