package handlers

import (
	"bytes"
	"testing"

	"github.com/sergev/floppy/disk"
	"github.com/sergev/floppy/mfm"
)

// fakeFluxSource replays a disk.TrackBuffer's raw output, standing in for
// flux.Stream so a handler's WriteRaw can be exercised against exactly
// what its own ReadRaw just produced, without a real flux capture.
type fakeFluxSource struct {
	bits      []bool
	pos       int
	crcActive bool
	crc       uint16
}

func newFakeFluxSource(bits []bool) *fakeFluxSource { return &fakeFluxSource{bits: bits} }

func (f *fakeFluxSource) NextBit() (int, error) {
	if f.pos >= len(f.bits) {
		f.pos = 0 // wrap like a real revolution rather than erroring, so a
		// handler's bounded retry loop can scan across the index mark
	}
	b := 0
	if f.bits[f.pos] {
		b = 1
	}
	f.pos++
	return b, nil
}

func (f *fakeFluxSource) NextBits(n int) (uint32, error) {
	var v uint32
	for i := 0; i < n; i++ {
		bit, err := f.NextBit()
		if err != nil {
			return v, err
		}
		v = (v << 1) | uint32(bit)
	}
	return v, nil
}

func (f *fakeFluxSource) NextBytes(buf []byte) error {
	for i := range buf {
		raw, err := f.NextBits(16)
		if err != nil {
			return err
		}
		buf[i] = byte(mfm.DecodeWord(raw))
	}
	if f.crcActive {
		f.crc = mfm.CRC16CCITTSeeded(f.crc, buf)
	}
	return nil
}

func (f *fakeFluxSource) IndexOffsetBC() int { return f.pos }
func (f *fakeFluxSource) Reset()             { f.pos = 0 }
func (f *fakeFluxSource) NextIndex() error   { f.pos = 0; return nil }
func (f *fakeFluxSource) TrackLenBC() int    { return len(f.bits) }

// LatencyNs reports a constant nominal-density latency, since this fake
// replays a TrackBuffer's bits rather than timed flux samples: handlers
// that measure per-sector speed see a uniform revolution here.
func (f *fakeFluxSource) LatencyNs() uint64  { return 2000 }
func (f *fakeFluxSource) StartCRC()          { f.crcActive = true; f.crc = 0xffff }
func (f *fakeFluxSource) CRC16CCITT() uint16 { return f.crc }

var _ disk.FluxSource = (*fakeFluxSource)(nil)

func TestIBMPCHandlerRoundTrip(t *testing.T) {
	h, ok := disk.Lookup(disk.TypeIBMPCDD)
	if !ok {
		t.Fatal("ibm_pc_dd handler not registered")
	}

	ti := &disk.TrackInfo{
		Type:           disk.TypeIBMPCDD,
		NrSectors:      h.NrSectors(),
		BytesPerSector: h.BytesPerSector(),
		Data:           make([]byte, h.NrSectors()*h.BytesPerSector()),
	}
	for i := range ti.Data {
		ti.Data[i] = byte(i)
	}
	for s := 0; s < h.NrSectors(); s++ {
		ti.MarkValidSector(s)
	}

	d := disk.NewDisk(1, disk.DefaultRPM)
	tb := disk.NewTrackBuffer(0, disk.DefaultBitsPerTrack(disk.DefaultRPM)*4)
	h.ReadRaw(d, 0, ti, tb)
	bits, _, _ := tb.Finish()

	got, err := h.WriteRaw(d, 0, newFakeFluxSource(bits))
	if err != nil {
		t.Fatalf("WriteRaw: %v", err)
	}
	for s := 0; s < h.NrSectors(); s++ {
		if !got.IsValidSector(s) {
			t.Errorf("sector %d not recovered", s)
			continue
		}
		want := ti.Data[s*h.BytesPerSector() : (s+1)*h.BytesPerSector()]
		gotSec := got.Data[s*h.BytesPerSector() : (s+1)*h.BytesPerSector()]
		if !bytes.Equal(want, gotSec) {
			t.Errorf("sector %d: round-tripped data mismatch", s)
		}
	}
}

func TestAmigaDOSHandlerRoundTrip(t *testing.T) {
	h, ok := disk.Lookup(disk.TypeAmigaDOS)
	if !ok {
		t.Fatal("amigados handler not registered")
	}

	ti := &disk.TrackInfo{
		Type:           disk.TypeAmigaDOS,
		NrSectors:      h.NrSectors(),
		BytesPerSector: h.BytesPerSector(),
		Data:           make([]byte, h.NrSectors()*h.BytesPerSector()),
	}
	for i := range ti.Data {
		ti.Data[i] = byte(i * 7)
	}
	for s := 0; s < h.NrSectors(); s++ {
		ti.MarkValidSector(s)
	}

	d := disk.NewDisk(6, disk.DefaultRPM)
	tb := disk.NewTrackBuffer(0, disk.DefaultBitsPerTrack(disk.DefaultRPM)*2)
	h.ReadRaw(d, 5, ti, tb)
	bits, _, _ := tb.Finish()

	got, err := h.WriteRaw(d, 5, newFakeFluxSource(bits))
	if err != nil {
		t.Fatalf("WriteRaw: %v", err)
	}
	for s := 0; s < h.NrSectors(); s++ {
		if !got.IsValidSector(s) {
			t.Errorf("sector %d not recovered", s)
			continue
		}
		want := ti.Data[s*h.BytesPerSector() : (s+1)*h.BytesPerSector()]
		gotSec := got.Data[s*h.BytesPerSector() : (s+1)*h.BytesPerSector()]
		if !bytes.Equal(want, gotSec) {
			t.Errorf("sector %d: round-tripped data mismatch", s)
		}
	}
}

func TestUnformattedHandlerReadWriteRaw(t *testing.T) {
	h, ok := disk.Lookup(disk.TypeUnformatted)
	if !ok {
		t.Fatal("unformatted handler not registered")
	}
	if _, err := h.ReadSectors(0, &disk.TrackInfo{}); err != disk.ErrNotSupported {
		t.Errorf("ReadSectors should return ErrNotSupported, got %v", err)
	}
	if _, err := h.WriteSectors(0, nil); err != disk.ErrNotSupported {
		t.Errorf("WriteSectors should return ErrNotSupported, got %v", err)
	}

	tb := disk.NewTrackBuffer(0, disk.DefaultBitsPerTrack(disk.DefaultRPM))
	h.ReadRaw(disk.NewDisk(1, disk.DefaultRPM), 0, &disk.TrackInfo{}, tb)
	bits, speed, _ := tb.Finish()
	if len(bits) == 0 {
		t.Fatal("unformatted ReadRaw should emit a full revolution")
	}
	for i, sp := range speed {
		if sp != disk.SpeedWeak {
			t.Fatalf("bit %d: speed = %d, want SpeedWeak for an unformatted track", i, sp)
		}
	}
}

func TestClassifyLongTrack(t *testing.T) {
	tcases := []struct {
		measured int
		wantOK   bool
	}{
		{measured: 100150, wantOK: false}, // nominal length, not a long track
		{measured: 101200 + 50, wantOK: true},
		{measured: 102400 + 50, wantOK: true},
	}
	for _, tc := range tcases {
		_, _, ok := classifyLongTrack(tc.measured)
		if ok != tc.wantOK {
			t.Errorf("classifyLongTrack(%d) ok = %v, want %v", tc.measured, ok, tc.wantOK)
		}
	}
}
