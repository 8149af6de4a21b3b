// Package containers implements the on-disk image formats a Disk is
// serialized to and read back from: this module's own native ".dsk"
// bit-exact container (grounded on original_source's libdisk/container/
// dsk.c and spec.md's EXTERNAL INTERFACES layout), plus thin wrappers
// delegating the historical container family (.adf/.hfe/.img/.imd/.scp)
// to the existing hfe package rather than re-implementing that logic.
package containers

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/sergev/floppy/disk"
)

const (
	dskSignature    = "DSK\x00"
	dskVersion      = 0
	dskTrackHdrSize = 2 + 2 + 2 + 2 + 8 + 4 + 4 + 4 + 4 // type,flags,nr_sectors,bytes_per_sector,valid_sectors[8],off,len,data_bitoff,total_bits
)

// trackTypeCodes assigns a stable u16 tag to every disk.TrackType this
// module knows about, for the container's track_header.type field
// (libdisk keys its handlers[] table the same way, by a dense enum).
var trackTypeCodes = buildTrackTypeCodes()

func buildTrackTypeCodes() map[disk.TrackType]uint16 {
	types := []disk.TrackType{
		disk.TypeUnformatted,
		disk.TypeAmigaDOS, disk.TypeAmigaDOSExtended, disk.TypeAmigaDOSVarRate,
		disk.TypeAmigaDOSLong1, disk.TypeAmigaDOSLong2, disk.TypeAmigaDOSLong3,
		disk.TypeAmigaDOSLong4, disk.TypeAmigaDOSLong5, disk.TypeAmigaDOSLong6, disk.TypeAmigaDOSLong7,
		disk.TypeFederationOfFreeTraders, disk.TypeRNCPDOS, disk.TypeRNCDualFormat, disk.TypeSoftlockDualFormat,
		disk.TypeIBMPCDD, disk.TypeIBMPCHD,
	}
	m := make(map[disk.TrackType]uint16, len(types))
	for i, t := range types {
		m[t] = uint16(i)
	}
	return m
}

func trackTypeCode(t disk.TrackType) (uint16, error) {
	code, ok := trackTypeCodes[t]
	if !ok {
		return 0, fmt.Errorf("containers: no .dsk type code registered for track type %q", t)
	}
	return code, nil
}

func trackTypeFromCode(code uint16) (disk.TrackType, error) {
	for t, c := range trackTypeCodes {
		if c == code {
			return t, nil
		}
	}
	return "", fmt.Errorf("containers: unknown .dsk track type code %d", code)
}

// tagKindCodes assigns a stable u16 wire id to every disk.TagKind, for
// the container's tag_header.id field (libdisk's DSKTAG_* enumeration).
// id 0 is reserved as the tag_list terminator.
var tagKindCodes = map[disk.TagKind]uint16{
	disk.TagDiskNr:     1,
	disk.TagRNCPDOSKey: 2,
}

func tagKindCode(k disk.TagKind) (uint16, error) {
	code, ok := tagKindCodes[k]
	if !ok {
		return 0, fmt.Errorf("containers: no .dsk tag code registered for tag kind %d", k)
	}
	return code, nil
}

func tagKindFromCode(code uint16) (disk.TagKind, error) {
	for k, c := range tagKindCodes {
		if c == code {
			return k, nil
		}
	}
	return 0, fmt.Errorf("containers: unknown .dsk tag_header id %d", code)
}

// encodeTagList serializes d.Tags as id/len/payload records terminated by
// a zero-id record, matching libdisk's tag_list layout.
func encodeTagList(d *disk.Disk) ([]byte, error) {
	var buf bytes.Buffer
	for _, tag := range d.Tags {
		code, err := tagKindCode(tag.Kind)
		if err != nil {
			return nil, err
		}
		binary.Write(&buf, binary.BigEndian, code)
		binary.Write(&buf, binary.BigEndian, uint16(len(tag.Payload)))
		buf.Write(tag.Payload)
	}
	binary.Write(&buf, binary.BigEndian, uint16(0)) // terminating zero tag_header
	binary.Write(&buf, binary.BigEndian, uint16(0))
	return buf.Bytes(), nil
}

// WriteDSK serializes d in the native bit-exact container format: a
// disk_header, nr_tracks track_header records, a tag_list carrying every
// disk-wide tag terminated by a zero-id tag header, then every track's
// data blob back to back.
func WriteDSK(filename string, d *disk.Disk) error {
	if d == nil || d.Info == nil {
		return fmt.Errorf("containers: nil disk")
	}
	nrTracks := len(d.Info.Tracks)

	var hdrBuf bytes.Buffer
	hdrBuf.WriteString(dskSignature)
	binary.Write(&hdrBuf, binary.BigEndian, uint16(dskVersion))
	binary.Write(&hdrBuf, binary.BigEndian, uint16(nrTracks))
	binary.Write(&hdrBuf, binary.BigEndian, uint16(dskTrackHdrSize))
	binary.Write(&hdrBuf, binary.BigEndian, uint16(0)) // flags

	tagList, err := encodeTagList(d)
	if err != nil {
		return err
	}

	headerLen := hdrBuf.Len() + nrTracks*dskTrackHdrSize
	tagListLen := len(tagList)
	dataStart := headerLen + tagListLen

	var trackHdrBuf bytes.Buffer
	var dataBuf bytes.Buffer
	off := dataStart
	for i := range d.Info.Tracks {
		ti := &d.Info.Tracks[i]
		code, err := trackTypeCode(ti.Type)
		if err != nil {
			return err
		}
		binary.Write(&trackHdrBuf, binary.BigEndian, code)
		binary.Write(&trackHdrBuf, binary.BigEndian, uint16(0)) // flags
		binary.Write(&trackHdrBuf, binary.BigEndian, uint16(ti.NrSectors))
		binary.Write(&trackHdrBuf, binary.BigEndian, uint16(ti.BytesPerSector))

		var validSectors [8]byte
		binary.BigEndian.PutUint64(validSectors[:], ti.ValidSectors)
		trackHdrBuf.Write(validSectors[:])

		binary.Write(&trackHdrBuf, binary.BigEndian, uint32(off))
		binary.Write(&trackHdrBuf, binary.BigEndian, uint32(len(ti.Data)))
		binary.Write(&trackHdrBuf, binary.BigEndian, uint32(ti.DataBitOff))
		binary.Write(&trackHdrBuf, binary.BigEndian, uint32(ti.TotalBits))

		dataBuf.Write(ti.Data)
		off += len(ti.Data)
	}

	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("containers: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(hdrBuf.Bytes()); err != nil {
		return fmt.Errorf("containers: %w", err)
	}
	if _, err := f.Write(trackHdrBuf.Bytes()); err != nil {
		return fmt.Errorf("containers: %w", err)
	}
	if _, err := f.Write(tagList); err != nil {
		return fmt.Errorf("containers: %w", err)
	}
	if _, err := f.Write(dataBuf.Bytes()); err != nil {
		return fmt.Errorf("containers: %w", err)
	}
	return nil
}

// ReadDSK parses a native .dsk image back into a Disk. A signature or
// version mismatch is a MalformedContainer failure per spec.md §7: fatal
// for the whole operation, not recoverable per-track.
func ReadDSK(filename string) (*disk.Disk, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("containers: %w", err)
	}
	if len(data) < 12 || string(data[:4]) != dskSignature {
		return nil, fmt.Errorf("containers: %s is not a native dsk image (bad signature)", filename)
	}
	version := binary.BigEndian.Uint16(data[4:6])
	if version != dskVersion {
		return nil, fmt.Errorf("containers: %s has unsupported dsk version %d", filename, version)
	}
	nrTracks := int(binary.BigEndian.Uint16(data[6:8]))
	bytesPerThdr := int(binary.BigEndian.Uint16(data[8:10]))
	if bytesPerThdr < dskTrackHdrSize {
		return nil, fmt.Errorf("containers: %s has undersized track_header (%d bytes)", filename, bytesPerThdr)
	}

	pos := 12 // past the disk_header, including its flags field
	d := disk.NewDisk(nrTracks, disk.DefaultRPM)

	type trackLoc struct {
		off, length int
	}
	locs := make([]trackLoc, nrTracks)

	for i := 0; i < nrTracks; i++ {
		if pos+dskTrackHdrSize > len(data) {
			return nil, fmt.Errorf("containers: %s truncated in track_header[%d]", filename, i)
		}
		ti := &d.Info.Tracks[i]
		code := binary.BigEndian.Uint16(data[pos : pos+2])
		t, err := trackTypeFromCode(code)
		if err != nil {
			return nil, fmt.Errorf("containers: %s: %w", filename, err)
		}
		ti.Type = t
		// skip flags (2 bytes)
		ti.NrSectors = int(binary.BigEndian.Uint16(data[pos+4 : pos+6]))
		ti.BytesPerSector = int(binary.BigEndian.Uint16(data[pos+6 : pos+8]))
		ti.ValidSectors = binary.BigEndian.Uint64(data[pos+8 : pos+16])
		off := int(binary.BigEndian.Uint32(data[pos+16 : pos+20]))
		length := int(binary.BigEndian.Uint32(data[pos+20 : pos+24]))
		ti.DataBitOff = int(binary.BigEndian.Uint32(data[pos+24 : pos+28]))
		ti.TotalBits = int(binary.BigEndian.Uint32(data[pos+28 : pos+32]))
		locs[i] = trackLoc{off: off, length: length}
		pos += bytesPerThdr
	}

	// tag_list: walk id/len records until a zero id, depositing each
	// payload onto d.Tags (libdisk's struct disktag, restored per
	// SPEC_FULL.md §4 item 1).
	for {
		if pos+4 > len(data) {
			return nil, fmt.Errorf("containers: %s truncated in tag_list", filename)
		}
		id := binary.BigEndian.Uint16(data[pos : pos+2])
		tagLen := int(binary.BigEndian.Uint16(data[pos+2 : pos+4]))
		pos += 4
		if id == 0 {
			break
		}
		if pos+tagLen > len(data) {
			return nil, fmt.Errorf("containers: %s truncated in tag_list payload", filename)
		}
		kind, err := tagKindFromCode(id)
		if err != nil {
			return nil, fmt.Errorf("containers: %s: %w", filename, err)
		}
		payload := append([]byte(nil), data[pos:pos+tagLen]...)
		d.Tags = append(d.Tags, disk.Tag{Kind: kind, Payload: payload})
		pos += tagLen
	}

	for i := 0; i < nrTracks; i++ {
		loc := locs[i]
		if loc.off < 0 || loc.off+loc.length > len(data) {
			return nil, fmt.Errorf("containers: %s track %d data out of bounds", filename, i)
		}
		d.Info.Tracks[i].Data = append([]byte(nil), data[loc.off:loc.off+loc.length]...)
	}

	return d, nil
}
