package ibm

import (
	"testing"

	"github.com/sergev/floppy/disk"
	"github.com/sergev/floppy/mfm"
)

// fakeFluxSource replays a pre-built raw bitcell stream, the same shape
// disk.TrackBuffer produces, standing in for flux.Stream so this package's
// scanners can be exercised without a real flux capture.
type fakeFluxSource struct {
	bits      []bool
	pos       int
	crcActive bool
	crc       uint16
}

func newFakeFluxSource(bits []bool) *fakeFluxSource {
	return &fakeFluxSource{bits: bits}
}

func (f *fakeFluxSource) NextBit() (int, error) {
	if f.pos >= len(f.bits) {
		return 0, errEndOfStream
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
func (f *fakeFluxSource) NextIndex() error   { f.pos = len(f.bits); return nil }
func (f *fakeFluxSource) TrackLenBC() int    { return len(f.bits) }
func (f *fakeFluxSource) LatencyNs() uint64  { return 2000 }
func (f *fakeFluxSource) StartCRC()          { f.crcActive = true; f.crc = 0xffff }
func (f *fakeFluxSource) CRC16CCITT() uint16 { return f.crc }

var errEndOfStream = &streamError{"ibm test: end of stream"}

type streamError struct{ msg string }

func (e *streamError) Error() string { return e.msg }

var _ disk.FluxSource = (*fakeFluxSource)(nil)

// buildIDAMBits assembles the raw bitcell stream for one A1A1A1-FE IDAM
// field (sync, header, CRC), mirroring handlers.ibmPCHandler.ReadRaw.
func buildIDAMBits(cyl, head, sec, no int) []bool {
	tb := disk.NewTrackBuffer(0, 0)
	tb.Bits(disk.SpeedNominal, mfm.BCMFM, 8, 0) // one zero byte of lead-in
	tb.Bytes(disk.SpeedNominal, mfm.BCMFM, []byte{0xa1, 0xa1, 0xa1, 0xfe})
	hdr := []byte{byte(cyl), byte(head), byte(sec), byte(no)}
	tb.Bytes(disk.SpeedNominal, mfm.BCMFM, hdr)
	crc := mfm.CRC16CCITTSeeded(0xb230, hdr)
	tb.Bytes(disk.SpeedNominal, mfm.BCMFM, []byte{byte(crc >> 8), byte(crc)})
	bits, _, _ := tb.Finish()
	return bits
}

func TestScanIDAMValidCRC(t *testing.T) {
	bits := buildIDAMBits(5, 1, 3, 2)
	src := newFakeFluxSource(bits)

	idam, err := ScanIDAM(src)
	if err != nil {
		t.Fatalf("ScanIDAM: %v", err)
	}
	if idam.Cyl != 5 || idam.Head != 1 || idam.Sec != 3 || idam.No != 2 {
		t.Errorf("decoded IDAM = %+v, want cyl=5 head=1 sec=3 no=2", idam)
	}
	if !idam.CRCOK {
		t.Error("CRCOK = false, want true for an untampered header")
	}
	if idam.SectorSize() != 512 {
		t.Errorf("SectorSize() = %d, want 512 for No=2", idam.SectorSize())
	}
}

func TestScanIDAMBadCRC(t *testing.T) {
	tb := disk.NewTrackBuffer(0, 0)
	tb.Bits(disk.SpeedNominal, mfm.BCMFM, 8, 0) // one zero byte of lead-in, see buildIDAMBits
	tb.Bytes(disk.SpeedNominal, mfm.BCMFM, []byte{0xa1, 0xa1, 0xa1, 0xfe})
	hdr := []byte{1, 0, 1, 2}
	tb.Bytes(disk.SpeedNominal, mfm.BCMFM, hdr)
	tb.Bytes(disk.SpeedNominal, mfm.BCMFM, []byte{0x00, 0x00}) // deliberately wrong CRC
	bits, _, _ := tb.Finish()

	idam, err := ScanIDAM(newFakeFluxSource(bits))
	if err != nil {
		t.Fatalf("ScanIDAM: %v", err)
	}
	if idam.CRCOK {
		t.Error("CRCOK = true, want false for a corrupted header")
	}
}

func TestScanDAM(t *testing.T) {
	tb := disk.NewTrackBuffer(0, 0)
	tb.Bits(disk.SpeedNominal, mfm.BCMFM, 8, 0) // one zero byte of lead-in, see buildIDAMBits
	tb.Bytes(disk.SpeedNominal, mfm.BCMFM, []byte{0xa1, 0xa1, 0xa1, 0xfb})
	data := make([]byte, 512)
	for i := range data {
		data[i] = byte(i)
	}
	tb.Bytes(disk.SpeedNominal, mfm.BCMFM, data)
	seed := mfm.CRC16CCITTSeeded(0xcdb4, []byte{0xfb})
	crc := mfm.CRC16CCITTSeeded(seed, data)
	tb.Bytes(disk.SpeedNominal, mfm.BCMFM, []byte{byte(crc >> 8), byte(crc)})
	bits, _, _ := tb.Finish()

	got, ok, err := ScanDAM(newFakeFluxSource(bits), 512)
	if err != nil {
		t.Fatalf("ScanDAM: %v", err)
	}
	if !ok {
		t.Error("ScanDAM reported CRC mismatch on an untampered data field")
	}
	for i := range data {
		if got[i] != data[i] {
			t.Fatalf("data byte %d = 0x%02x, want 0x%02x", i, got[i], data[i])
		}
	}
}

func TestScanDAMAcceptsDeletedDataMark(t *testing.T) {
	tb := disk.NewTrackBuffer(0, 0)
	tb.Bits(disk.SpeedNominal, mfm.BCMFM, 8, 0)                            // one zero byte of lead-in, see buildIDAMBits
	tb.Bytes(disk.SpeedNominal, mfm.BCMFM, []byte{0xa1, 0xa1, 0xa1, 0xf8}) // DDAM
	data := make([]byte, 128)
	tb.Bytes(disk.SpeedNominal, mfm.BCMFM, data)
	seed := mfm.CRC16CCITTSeeded(0xcdb4, []byte{0xf8})
	crc := mfm.CRC16CCITTSeeded(seed, data)
	tb.Bytes(disk.SpeedNominal, mfm.BCMFM, []byte{byte(crc >> 8), byte(crc)})
	bits, _, _ := tb.Finish()

	_, ok, err := ScanDAM(newFakeFluxSource(bits), 128)
	if err != nil {
		t.Fatalf("ScanDAM should accept a DDAM the same as a DAM: %v", err)
	}
	if !ok {
		t.Error("DDAM CRC should validate the same way a DAM's does")
	}
}
