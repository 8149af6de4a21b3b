package disk

import "testing"

func TestNewDisk(t *testing.T) {
	d := NewDisk(4, 0)
	if d.Info.RPM != DefaultRPM {
		t.Fatalf("RPM = %d, want default %d", d.Info.RPM, DefaultRPM)
	}
	if len(d.Info.Tracks) != 4 {
		t.Fatalf("len(Tracks) = %d, want 4", len(d.Info.Tracks))
	}
	for i, tr := range d.Info.Tracks {
		if tr.Type != TypeUnformatted {
			t.Errorf("track %d: Type = %q, want unformatted", i, tr.Type)
		}
		if tr.TotalBits != DefaultBitsPerTrack(DefaultRPM) {
			t.Errorf("track %d: TotalBits = %d, want %d", i, tr.TotalBits, DefaultBitsPerTrack(DefaultRPM))
		}
	}
}

func TestDiskTrackBounds(t *testing.T) {
	d := NewDisk(2, DefaultRPM)
	if _, err := d.Track(-1); err == nil {
		t.Error("Track(-1) should error")
	}
	if _, err := d.Track(2); err == nil {
		t.Error("Track(2) should error, only 2 tracks")
	}
	ti, err := d.Track(0)
	if err != nil {
		t.Fatalf("Track(0): %v", err)
	}
	ti.Type = TypeIBMPCDD
	again, _ := d.Track(0)
	if again.Type != TypeIBMPCDD {
		t.Error("Track should return a pointer into the backing slice, not a copy")
	}
}

func TestDiskTags(t *testing.T) {
	d := NewDisk(1, DefaultRPM)
	if _, ok := d.Tag(TagDiskNr); ok {
		t.Fatal("fresh disk should have no tags")
	}
	d.SetTag(TagDiskNr, []byte{1, 2, 3, 4})
	tag, ok := d.Tag(TagDiskNr)
	if !ok {
		t.Fatal("tag not found after SetTag")
	}
	if len(tag.Payload) != 4 || tag.Payload[0] != 1 {
		t.Errorf("payload = %v, want [1 2 3 4]", tag.Payload)
	}

	// Second write with a conflicting payload should be silently ignored.
	d.SetTag(TagDiskNr, []byte{9, 9})
	tag, _ = d.Tag(TagDiskNr)
	if len(tag.Payload) != 4 {
		t.Errorf("SetTag overwrote an existing tag; payload = %v", tag.Payload)
	}
}

func TestDefaultBitsPerTrack(t *testing.T) {
	if got := DefaultBitsPerTrack(300); got != 100150 {
		t.Errorf("DefaultBitsPerTrack(300) = %d, want 100150", got)
	}
	if got := DefaultBitsPerTrack(0); got != DefaultBitsPerTrack(DefaultRPM) {
		t.Errorf("DefaultBitsPerTrack(0) should fall back to DefaultRPM")
	}
	// Faster spin -> fewer bitcells per revolution.
	if DefaultBitsPerTrack(600) >= DefaultBitsPerTrack(300) {
		t.Error("higher RPM should shrink the bitcell count")
	}
}

func TestValidSectorBits(t *testing.T) {
	ti := &TrackInfo{}
	for _, i := range []int{0, 3, 63} {
		if ti.IsValidSector(i) {
			t.Errorf("sector %d valid before being marked", i)
		}
		ti.MarkValidSector(i)
		if !ti.IsValidSector(i) {
			t.Errorf("sector %d not valid after being marked", i)
		}
	}
	if ti.IsValidSector(-1) || ti.IsValidSector(64) {
		t.Error("out-of-range sector indices must report false, not panic")
	}
	ti.MarkValidSector(64) // must not panic or corrupt bit 0
	if ti.IsValidSector(0) == false {
		t.Error("marking an out-of-range sector must not clear sector 0")
	}
}

func TestNormaliseDataBitOff(t *testing.T) {
	ti := &TrackInfo{TotalBits: 100}
	ti.DataBitOff = 150
	ti.NormaliseDataBitOff()
	if ti.DataBitOff != 50 {
		t.Errorf("DataBitOff = %d, want 50", ti.DataBitOff)
	}
	ti.DataBitOff = -30
	ti.NormaliseDataBitOff()
	if ti.DataBitOff != 70 {
		t.Errorf("DataBitOff = %d, want 70", ti.DataBitOff)
	}

	weak := &TrackInfo{TotalBits: TrackLenWeak, DataBitOff: 42}
	weak.NormaliseDataBitOff()
	if weak.DataBitOff != 0 {
		t.Errorf("weak track DataBitOff = %d, want 0", weak.DataBitOff)
	}
}

func TestCopylockRegistration(t *testing.T) {
	ti := &TrackInfo{Type: TrackType("test_copylock_marker")}
	if ti.IsCopylock() {
		t.Fatal("unregistered type should not report Copylock")
	}
	RegisterCopylockType(ti.Type)
	if !ti.IsCopylock() {
		t.Error("registered type should report Copylock")
	}
}

func TestRegistryLookup(t *testing.T) {
	if _, ok := Lookup(TrackType("no_such_handler_in_this_test")); ok {
		t.Fatal("Lookup should fail for an unregistered type")
	}
	var h Handler
	Register(TrackType("registry_test_handler"), h)
	if _, ok := Lookup(TrackType("registry_test_handler")); !ok {
		t.Error("Lookup should succeed after Register, even for a nil Handler value")
	}
	found := false
	for _, t2 := range RegisteredTypes() {
		if t2 == TrackType("registry_test_handler") {
			found = true
		}
	}
	if !found {
		t.Error("RegisteredTypes should include freshly registered type")
	}
}
