package flux

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// buildSyntheticSCP assembles a minimal single-track, single-revolution
// SCP file: a 16-byte header, a one-entry offset table, a "TRK0" header,
// one 12-byte revolution record, and the big-endian flux ticks it points
// at. Mirrors the exact layout OpenSCP parses.
func buildSyntheticSCP(t *testing.T, ticks []uint16) []byte {
	t.Helper()
	var buf bytes.Buffer

	buf.WriteString("SCP")
	buf.WriteByte(0)           // version
	buf.WriteByte(0)           // disk type
	buf.WriteByte(1)           // nr revolutions
	buf.WriteByte(0)           // start track
	buf.WriteByte(0)           // end track
	buf.WriteByte(0)           // flags
	buf.WriteByte(0)           // bitcell width (0 = 16-bit)
	buf.Write(make([]byte, 6)) // reserved + checksum, unused by OpenSCP

	if buf.Len() != 0x10 {
		t.Fatalf("header assembled to %d bytes, want 0x10", buf.Len())
	}

	tdhOffset := uint32(0x14)
	binary.Write(&buf, binary.LittleEndian, tdhOffset) // offset table[0]

	buf.WriteString("TRK")
	buf.WriteByte(0) // track index

	revDataOffset := uint32(16)                                 // right after TRK header (4) + this 12-byte record
	binary.Write(&buf, binary.LittleEndian, uint32(0))          // duration, unused
	binary.Write(&buf, binary.LittleEndian, uint32(len(ticks))) // flux count
	binary.Write(&buf, binary.LittleEndian, revDataOffset)      // data offset

	for _, tick := range ticks {
		binary.Write(&buf, binary.BigEndian, tick)
	}

	return buf.Bytes()
}

func TestOpenSCPParsesSyntheticTrack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.scp")
	data := buildSyntheticSCP(t, []uint16{100, 200, 300})
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	s, err := OpenSCP(path)
	if err != nil {
		t.Fatalf("OpenSCP: %v", err)
	}
	if err := s.SelectTrack(0); err != nil {
		t.Fatalf("SelectTrack(0): %v", err)
	}
	if err := s.SelectTrack(1); err == nil {
		t.Error("SelectTrack(1) should fail, only track 0 exists")
	}
}

func TestOpenSCPOverflowTick(t *testing.T) {
	// A zero tick means "add 0x10000 to the next non-zero tick", not a
	// transition of its own; OpenSCP must not emit a flux event for it.
	path := filepath.Join(t.TempDir(), "overflow.scp")
	data := buildSyntheticSCP(t, []uint16{0, 50})
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	s, err := OpenSCP(path)
	if err != nil {
		t.Fatalf("OpenSCP: %v", err)
	}
	if err := s.SelectTrack(0); err != nil {
		t.Fatalf("SelectTrack(0): %v", err)
	}
	// One real transition (0x10000+50 = 0x10032 ticks * 25ns) should have
	// been recorded, not two, so the stream still holds flux right after
	// the track is selected.
	if s.IsDone() {
		t.Error("stream should not already be done right after selecting a track with flux")
	}
}

func TestOpenSCPRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.scp")
	if err := os.WriteFile(path, []byte("NOTASCPFILE12345"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	if _, err := OpenSCP(path); err == nil {
		t.Fatal("OpenSCP should reject a file without the SCP magic")
	}
}

func TestOpenSCPRejectsZeroRevolutions(t *testing.T) {
	data := buildSyntheticSCP(t, []uint16{100})
	data[5] = 0 // revolution count
	path := filepath.Join(t.TempDir(), "zerorevs.scp")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	if _, err := OpenSCP(path); err == nil {
		t.Fatal("OpenSCP should reject a zero revolution count")
	}
}
