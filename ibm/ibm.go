// Package ibm implements the IBM-PC MFM sector-header scanner libdisk
// calls ibm_scan_mark/ibm_scan_idam/ibm_scan_dam: hunting a live flux
// bitstream for A1A1A1/C2C2C2 sync marks, then the ID and data fields
// that follow, the same sync-history algorithm mfm.Reader.scanIBMPC
// uses against an in-memory buffer, but driven bit-by-bit off a
// disk.FluxSource so it works directly against a capture being decoded.
package ibm

import (
	"fmt"

	"github.com/sergev/floppy/disk"
	"github.com/sergev/floppy/mfm"
)

// Mark tag bytes (the byte immediately following an A1A1A1/C2C2C2 sync).
const (
	MarkIAM  = 0xfc // index address mark (follows C2C2C2)
	MarkIDAM = 0xfe // ID address mark (sector header)
	MarkDAM  = 0xfb // data address mark
	MarkDDAM = 0xf8 // deleted data address mark
)

// IDAM is one decoded sector-header field (libdisk's struct ibm_idam).
type IDAM struct {
	Cyl   int
	Head  int
	Sec   int
	No    int // sector size code: size = 128 << No
	CRCOK bool
}

// SectorSize returns the sector's data length implied by No.
func (id *IDAM) SectorSize() int {
	return 128 << uint(id.No)
}

// readDataBit consumes one clock half-bit and one data half-bit from s,
// mirroring mfm.Reader.readBit: the clock half-bit is discarded and the
// data half-bit is returned. Sync-mark detection has to run at this
// granularity, not at the raw-cell granularity NextBit exposes, because
// the A1/C2 sync patterns are clock-rule violations that only resolve to
// the expected 0xA1/0xC2 byte values once decoded this way (matching how
// the encoder writes them).
func readDataBit(s disk.FluxSource) (int, error) {
	if _, err := s.NextBit(); err != nil {
		return -1, err
	}
	bit, err := s.NextBit()
	if err != nil {
		return -1, err
	}
	return bit, nil
}

// ScanMark hunts s for the next IBM-PC sync mark (A1A1A1 or C2C2C2),
// reading one data bit at a time and watching a 32-bit sync history the
// same way mfm.Reader.scanIBMPC does, and returns the tag byte that
// follows it.
func ScanMark(s disk.FluxSource) (int, error) {
	history := uint32(0x13713713)

	for {
		bit, err := readDataBit(s)
		if err != nil {
			return -1, fmt.Errorf("ibm: %w", err)
		}

		history = (history << 1) | uint32(bit)

		if history == 0xffffffff {
			// All-ones desync: re-align to the next half-bit boundary.
			if _, err := s.NextBit(); err != nil {
				return -1, fmt.Errorf("ibm: %w", err)
			}
			history = 0
			continue
		}

		if history == 0x00a1a1a1 || history == 0x00c2c2c2 {
			var tag [1]byte
			if err := s.NextBytes(tag[:]); err != nil {
				return -1, fmt.Errorf("ibm: %w", err)
			}
			return int(tag[0]), nil
		}
	}
}

// ScanIDAM scans for the next ID address mark, decodes its 4-byte
// identifier plus CRC, and reports whether the header CRC checked out.
// Non-IDAM marks encountered along the way are skipped.
func ScanIDAM(s disk.FluxSource) (*IDAM, error) {
	for {
		tag, err := ScanMark(s)
		if err != nil {
			return nil, err
		}
		if tag != MarkIDAM {
			continue
		}

		var hdr [4]byte
		if err := s.NextBytes(hdr[:]); err != nil {
			return nil, fmt.Errorf("ibm: %w", err)
		}
		var crcBytes [2]byte
		if err := s.NextBytes(crcBytes[:]); err != nil {
			return nil, fmt.Errorf("ibm: %w", err)
		}
		gotCRC := uint16(crcBytes[0])<<8 | uint16(crcBytes[1])

		want := mfm.CRC16CCITTSeeded(0xb230, hdr[:])

		return &IDAM{
			Cyl:   int(hdr[0]),
			Head:  int(hdr[1]),
			Sec:   int(hdr[2]),
			No:    int(hdr[3]),
			CRCOK: want == gotCRC,
		}, nil
	}
}

// ScanDAM scans for the data mark following an already-scanned IDAM,
// reads sectorSize bytes, and reports whether the data CRC checked out.
// A DDAM (deleted-data mark) is accepted the same as a DAM, as IBM PC
// drives don't distinguish them at the format level.
func ScanDAM(s disk.FluxSource, sectorSize int) ([]byte, bool, error) {
	tag, err := ScanMark(s)
	if err != nil {
		return nil, false, err
	}
	if tag != MarkDAM && tag != MarkDDAM {
		return nil, false, fmt.Errorf("ibm: expected data mark, got tag 0x%02x", tag)
	}

	data := make([]byte, sectorSize)
	if err := s.NextBytes(data); err != nil {
		return nil, false, fmt.Errorf("ibm: %w", err)
	}
	var crcBytes [2]byte
	if err := s.NextBytes(crcBytes[:]); err != nil {
		return nil, false, fmt.Errorf("ibm: %w", err)
	}
	gotCRC := uint16(crcBytes[0])<<8 | uint16(crcBytes[1])

	seed := mfm.CRC16CCITTSeeded(0xcdb4, []byte{byte(tag)})
	want := mfm.CRC16CCITTSeeded(seed, data)

	return data, want == gotCRC, nil
}
