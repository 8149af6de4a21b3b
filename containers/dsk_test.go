package containers

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sergev/floppy/disk"
)

func TestWriteReadDSKRoundTrip(t *testing.T) {
	d := disk.NewDisk(3, disk.DefaultRPM)
	d.Info.Tracks[0] = disk.TrackInfo{
		Type:           disk.TypeIBMPCDD,
		NrSectors:      9,
		BytesPerSector: 512,
		TotalBits:      disk.DefaultBitsPerTrack(disk.DefaultRPM),
		Data:           bytes.Repeat([]byte{0xab}, 9*512),
	}
	d.Info.Tracks[0].MarkValidSector(0)
	d.Info.Tracks[0].MarkValidSector(3)
	d.Info.Tracks[1] = disk.TrackInfo{
		Type:           disk.TypeAmigaDOS,
		NrSectors:      11,
		BytesPerSector: 512,
		TotalBits:      disk.DefaultBitsPerTrack(disk.DefaultRPM),
		Data:           bytes.Repeat([]byte{0x5a}, 11*512),
	}
	// track 2 stays the default unformatted placeholder from NewDisk

	path := filepath.Join(t.TempDir(), "test.dsk")
	if err := WriteDSK(path, d); err != nil {
		t.Fatalf("WriteDSK: %v", err)
	}

	got, err := ReadDSK(path)
	if err != nil {
		t.Fatalf("ReadDSK: %v", err)
	}
	if len(got.Info.Tracks) != 3 {
		t.Fatalf("got %d tracks, want 3", len(got.Info.Tracks))
	}

	t0 := got.Info.Tracks[0]
	if t0.Type != disk.TypeIBMPCDD {
		t.Errorf("track 0 Type = %q, want ibm_pc_dd", t0.Type)
	}
	if !t0.IsValidSector(0) || !t0.IsValidSector(3) || t0.IsValidSector(1) {
		t.Errorf("track 0 ValidSectors round-tripped wrong: %064b", t0.ValidSectors)
	}
	if !bytes.Equal(t0.Data, d.Info.Tracks[0].Data) {
		t.Error("track 0 Data mismatch after round trip")
	}

	t1 := got.Info.Tracks[1]
	if t1.Type != disk.TypeAmigaDOS || !bytes.Equal(t1.Data, d.Info.Tracks[1].Data) {
		t.Error("track 1 round trip mismatch")
	}

	t2 := got.Info.Tracks[2]
	if t2.Type != disk.TypeUnformatted {
		t.Errorf("track 2 Type = %q, want unformatted", t2.Type)
	}
}

func TestReadDSKRejectsBadSignature(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.dsk")
	if err := os.WriteFile(path, []byte("NOPE\x00\x00\x00\x00\x00\x00"), 0o644); err != nil {
		t.Fatalf("writing fixture file: %v", err)
	}
	if _, err := ReadDSK(path); err == nil {
		t.Fatal("ReadDSK should reject a bad signature")
	}
}

func TestTrackTypeCodeUnknownType(t *testing.T) {
	if _, err := trackTypeCode(disk.TrackType("not_a_registered_type")); err == nil {
		t.Error("trackTypeCode should error for an unregistered track type")
	}
	if _, err := trackTypeFromCode(0xffff); err == nil {
		t.Error("trackTypeFromCode should error for an unused code")
	}
}
