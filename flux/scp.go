package flux

import (
	"encoding/binary"
	"fmt"
	"os"
)

const scpNsPerTick = 25

// OpenSCP reads a SuperCard Pro .scp flux capture and returns a Stream
// over every track present in its offset table, following the same
// container layout supercard_scp.c's scp_select_track reads: a 16-byte
// header, a per-track 4-byte offset table at offset 0x10, and at each
// offset a "TRK"+index header followed by one 12-byte revolution record
// per stored revolution (duration, flux-count, data-offset), each then
// holding big-endian uint16 25ns flux ticks (0 is an overflow marker
// worth +0x10000 ticks).
func OpenSCP(filename string) (*Stream, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("flux: %w", err)
	}
	if len(data) < 16 || string(data[:3]) != "SCP" {
		return nil, fmt.Errorf("flux: %s is not an SCP file", filename)
	}
	revs := int(data[5])
	if revs == 0 {
		return nil, fmt.Errorf("flux: %s has an invalid revolution count", filename)
	}
	if data[9] != 0 && data[9] != 16 {
		return nil, fmt.Errorf("flux: %s has unsupported bitcell time width %d", filename, data[9])
	}
	startTrack := int(data[6])
	endTrack := int(data[7])
	numEntries := endTrack + 1
	if numEntries < startTrack {
		numEntries = startTrack + 1
	}

	transitionsByTrack := make([][]uint64, numEntries)
	for idx := startTrack; idx <= endTrack; idx++ {
		hdrOffset := 0x10 + idx*4
		if hdrOffset+4 > len(data) {
			continue
		}
		tdhOffset := int(binary.LittleEndian.Uint32(data[hdrOffset : hdrOffset+4]))
		if tdhOffset == 0 || tdhOffset+4 > len(data) {
			continue
		}
		if string(data[tdhOffset:tdhOffset+3]) != "TRK" {
			continue
		}
		if int(data[tdhOffset+3]) != idx {
			continue
		}

		var transitions []uint64
		var accumNs uint64
		pos := tdhOffset + 4
		for rev := 0; rev < revs; rev++ {
			if pos+12 > len(data) {
				break
			}
			fluxCount := binary.LittleEndian.Uint32(data[pos+4 : pos+8])
			dataOffset := binary.LittleEndian.Uint32(data[pos+8 : pos+12])
			pos += 12

			samplesOffset := tdhOffset + int(dataOffset)
			var val uint32
			for i := 0; i < int(fluxCount); i++ {
				off := samplesOffset + i*2
				if off+2 > len(data) {
					break
				}
				t := binary.BigEndian.Uint16(data[off : off+2])
				if t == 0 {
					val += 0x10000
					continue
				}
				val += uint32(t)
				accumNs += uint64(val) * scpNsPerTick
				transitions = append(transitions, accumNs)
				val = 0
			}
		}
		transitionsByTrack[idx] = transitions
	}

	return NewStream(transitionsByTrack), nil
}
