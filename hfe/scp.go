package hfe

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/sergev/floppy/mfm"
)

const scpNsPerTick = 25

// scpFluxTicks converts a track's raw MFM bitcell stream into SCP flux
// cell durations (25ns ticks), reusing mfm.GenerateFluxTransitions (the
// same bitcell-to-flux-time conversion the hardware writer path uses) and
// mfm.CoverFullRotation to pad the final gap out to a full revolution.
func scpFluxTicks(raw []byte, bitRateKhz uint16, rpm uint16) ([]uint32, error) {
	transitions, err := mfm.GenerateFluxTransitions(raw, bitRateKhz)
	if err != nil {
		return nil, err
	}
	transitions = mfm.CoverFullRotation(transitions, bitRateKhz, rpm)

	ticks := make([]uint32, len(transitions))
	var prev uint64
	for i, t := range transitions {
		ticks[i] = uint32((t - prev) / scpNsPerTick)
		prev = t
	}
	return ticks, nil
}

// WriteSCP re-materializes every captured track's MFM bitcell stream as a
// single-revolution SuperCard Pro flux capture. It is write-only: SCP is
// this module's re-mastering target for emulator/hardware-writer
// consumption, not a capture format this module reads back in.
func WriteSCP(filename string, disk *Disk) error {
	if len(disk.Tracks) == 0 {
		return fmt.Errorf("scp: disk has no tracks")
	}

	bitRateKhz := disk.Header.BitRate
	if bitRateKhz == 0 {
		bitRateKhz = 250
	}
	rpm := disk.Header.FloppyRPM
	if rpm == 0 {
		rpm = 300
	}

	numSides := 2
	if disk.Header.NumberOfSide < 2 {
		numSides = 1
	}
	numEntries := int(disk.Header.NumberOfTrack) * 2

	header := make([]byte, 16)
	copy(header[0:3], []byte("SCP"))
	header[3] = 0x20 // format revision 2.0
	header[4] = 0x00 // disk type: generic/other
	header[5] = 1    // one stored revolution
	header[6] = 0
	header[7] = byte(numEntries - 1)
	header[8] = 0x01 // flag: index markers present
	header[9] = 0    // 16-bit flux cell width
	header[10] = 0   // both heads captured
	header[11] = 0   // 25ns tick resolution
	// Bytes 12-15 (checksum) are left zero: this module does not verify
	// checksums on the files it writes, only the layout.

	offsetTable := make([]byte, numEntries*4)

	var buf bytes.Buffer
	buf.Write(header)
	buf.Write(offsetTable)

	for cyl := 0; cyl < int(disk.Header.NumberOfTrack); cyl++ {
		for head := 0; head < numSides; head++ {
			var raw []byte
			if head == 0 {
				raw = disk.Tracks[cyl].Side0
			} else {
				raw = disk.Tracks[cyl].Side1
			}
			if len(raw) == 0 {
				continue
			}

			flux, err := scpFluxTicks(raw, bitRateKhz, rpm)
			if err != nil {
				return fmt.Errorf("scp: track %d head %d: %w", cyl, head, err)
			}

			trackIndex := cyl*2 + head
			trackOffset := uint32(buf.Len())
			binary.LittleEndian.PutUint32(offsetTable[trackIndex*4:], trackOffset)

			trkHeader := make([]byte, 4)
			copy(trkHeader[0:3], []byte("TRK"))
			trkHeader[3] = byte(trackIndex)
			buf.Write(trkHeader)

			var totalDuration uint32
			for _, v := range flux {
				totalDuration += v
			}

			revHeader := make([]byte, 12)
			binary.LittleEndian.PutUint32(revHeader[0:4], totalDuration)
			binary.LittleEndian.PutUint32(revHeader[4:8], uint32(len(flux)))
			binary.LittleEndian.PutUint32(revHeader[8:12], uint32(len(trkHeader)+len(revHeader)))
			buf.Write(revHeader)

			for _, v := range flux {
				for v >= 0x10000 {
					var overflow [2]byte
					binary.BigEndian.PutUint16(overflow[:], 0)
					buf.Write(overflow[:])
					v -= 0x10000
				}
				var cell [2]byte
				binary.BigEndian.PutUint16(cell[:], uint16(v))
				buf.Write(cell[:])
			}
		}
	}

	result := buf.Bytes()
	copy(result[16:16+len(offsetTable)], offsetTable)

	if err := os.WriteFile(filename, result, 0o644); err != nil {
		return fmt.Errorf("scp: %w", err)
	}
	return nil
}

// ReadSCP is not implemented: this module treats SCP purely as a
// re-mastering write target (see WriteSCP), not a capture source — flux
// capture comes from the kryoflux/greaseweazle/supercardpro hardware
// clients instead.
func ReadSCP(filename string) (*Disk, error) {
	return nil, fmt.Errorf("SCP read is not supported; SCP is a write-only target in this module")
}
