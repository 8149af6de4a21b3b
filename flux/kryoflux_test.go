package flux

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDecodeKryoFluxTrackDefaultSamples(t *testing.T) {
	// Default (1-byte) samples: each byte >= 0x0e is a direct flux value.
	data := []byte{0x10, 0x20, 0x30}
	transitions, err := decodeKryoFluxTrack(data)
	if err != nil {
		t.Fatalf("decodeKryoFluxTrack: %v", err)
	}
	if len(transitions) != 3 {
		t.Fatalf("got %d transitions, want 3", len(transitions))
	}
	for i := 1; i < len(transitions); i++ {
		if transitions[i] <= transitions[i-1] {
			t.Errorf("transition %d (%d) did not advance past %d", i, transitions[i], transitions[i-1])
		}
	}
}

func TestDecodeKryoFluxTrackNops(t *testing.T) {
	// nop1/nop2/nop3 opcodes must consume their operand bytes without
	// emitting a transition.
	data := []byte{0x08, 0x09, 0x00, 0x0a, 0x00, 0x00, 0x20}
	transitions, err := decodeKryoFluxTrack(data)
	if err != nil {
		t.Fatalf("decodeKryoFluxTrack: %v", err)
	}
	if len(transitions) != 1 {
		t.Fatalf("got %d transitions, want 1 (only the trailing default sample)", len(transitions))
	}
}

func TestDecodeKryoFluxTrackOverflow16(t *testing.T) {
	// overflow16 (0x0b) adds 0x10000 to the pending value without emitting
	// a transition by itself; the following default sample should then
	// reflect the larger accumulated value.
	withOverflow, err := decodeKryoFluxTrack([]byte{0x0b, 0x20})
	if err != nil {
		t.Fatalf("decodeKryoFluxTrack: %v", err)
	}
	withoutOverflow, err := decodeKryoFluxTrack([]byte{0x20})
	if err != nil {
		t.Fatalf("decodeKryoFluxTrack: %v", err)
	}
	if len(withOverflow) != 1 || len(withoutOverflow) != 1 {
		t.Fatalf("expected exactly one transition in each case")
	}
	if withOverflow[0] <= withoutOverflow[0] {
		t.Error("overflow16 should push the emitted transition further out than the bare sample")
	}
}

func TestDecodeKryoFluxTrackValue16(t *testing.T) {
	data := []byte{0x0c, 0x01, 0x00} // value16: high byte 0x01, low byte 0x00 -> val += 0x100
	transitions, err := decodeKryoFluxTrack(data)
	if err != nil {
		t.Fatalf("decodeKryoFluxTrack: %v", err)
	}
	if len(transitions) != 1 {
		t.Fatalf("got %d transitions, want 1", len(transitions))
	}
}

func TestDecodeKryoFluxTrackOOBSkipped(t *testing.T) {
	// OOB (0x0d) header: id byte, then a 2-byte little-endian payload
	// length, then that many bytes to skip, none of which are flux.
	data := []byte{0x0d, 0x00, 0x02, 0x00, 0xaa, 0xbb, 0x20}
	transitions, err := decodeKryoFluxTrack(data)
	if err != nil {
		t.Fatalf("decodeKryoFluxTrack: %v", err)
	}
	if len(transitions) != 1 {
		t.Fatalf("got %d transitions, want 1 (OOB payload must be skipped, not decoded as flux)", len(transitions))
	}
}

func TestDecodeKryoFluxTrackTruncated(t *testing.T) {
	if _, err := decodeKryoFluxTrack([]byte{0x02}); err == nil {
		t.Error("a lone 2-byte-sample prefix with no second byte should error")
	}
	if _, err := decodeKryoFluxTrack([]byte{0x0c, 0x01}); err == nil {
		t.Error("a truncated value16 sample should error")
	}
	if _, err := decodeKryoFluxTrack([]byte{0x0d, 0x00, 0x02, 0x00}); err != nil {
		t.Error("an OOB header whose declared length runs past EOF should not error, just stop")
	}
}

func TestOpenKryoFluxDirMissingTracksAreSkipped(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "00.0.raw"), []byte{0x20, 0x30}, 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	s, err := OpenKryoFluxDir(dir, 4)
	if err != nil {
		t.Fatalf("OpenKryoFluxDir: %v", err)
	}
	if err := s.SelectTrack(0); err != nil {
		t.Errorf("SelectTrack(0) should succeed: %v", err)
	}
	if err := s.SelectTrack(1); err != nil {
		t.Errorf("SelectTrack(1) should still succeed with an empty (absent) track: %v", err)
	}
	if !s.IsDone() {
		t.Error("a track with no capture file should report IsDone immediately")
	}
}
