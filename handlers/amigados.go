package handlers

import (
	"encoding/binary"
	"fmt"

	"github.com/sergev/floppy/disk"
	"github.com/sergev/floppy/mfm"
)

const (
	amigaSectorsPerTrack = 11
	amigaSectorSize      = 512
	amigaSyncWord        = 0x4489

	// amigaEncodedBitsPerSector is the raw bitcell length of one sector as
	// this handler's own ReadRaw emits it: sync(32) + info+label(20 bytes)
	// + header checksum(4) + data checksum(4) + data(512 bytes), all at
	// 16 raw bits/byte under MFM, plus the 16-bit (32 raw bit) trailing
	// gap. Used to walk DataBitOff back to sector 0's position, the same
	// arithmetic amigados.c's ados_write_raw does with its own 544-byte
	// encoded sector size.
	amigaEncodedBitsPerSector = 32 + (4+16+4+4+amigaSectorSize)*16 + 32

	// amigaLeadGapBits is the raw bitcell length of the gap this handler's
	// ReadRaw emits before the first sector's sync (tb.Gap(_, 128)).
	amigaLeadGapBits = 128 / 8 * 16
)

// amigaDOSHandler implements the stock 880K AmigaDOS track layout:
// sync(4489 4489), info+label (5 longwords, odd/even shuffled), header
// checksum, data checksum, 512 bytes of data (odd/even shuffled).
// Grounded on original_source's amigados.c and mfm/writer.go's
// EncodeTrackAmiga, which this module's disk layer supersedes with the
// mfm.DecodeBytes/EncodeBytes odd/even pair instead of the hand-rolled
// per-longword interleave writer.go uses for plain .adf/.hfe conversion.
type amigaDOSHandler struct {
	trackType       disk.TrackType
	totalBits       int
	sectorsPerTrack int
}

func init() {
	disk.Register(disk.TypeAmigaDOS, &amigaDOSHandler{
		trackType:       disk.TypeAmigaDOS,
		totalBits:       disk.DefaultBitsPerTrack(disk.DefaultRPM),
		sectorsPerTrack: amigaSectorsPerTrack,
	})
	disk.Register(disk.TypeAmigaDOSExtended, &amigaDOSHandler{
		trackType:       disk.TypeAmigaDOSExtended,
		totalBits:       disk.DefaultBitsPerTrack(disk.DefaultRPM),
		sectorsPerTrack: amigaSectorsPerTrack + 1, // one extra sector crammed into the gap
	})
	for i, t := range longTrackTypes {
		disk.Register(t, &amigaDOSHandler{
			trackType:       t,
			totalBits:       longTrackBitLengths[i],
			sectorsPerTrack: amigaSectorsPerTrack,
		})
	}
}

func (h *amigaDOSHandler) Density() disk.TrackDensity { return disk.DensityDouble }
func (h *amigaDOSHandler) BytesPerSector() int        { return amigaSectorSize }
func (h *amigaDOSHandler) NrSectors() int             { return h.sectorsPerTrack }
func (h *amigaDOSHandler) Name(tracknr int) string {
	return fmt.Sprintf("%s track %d", h.trackType, tracknr)
}

// scanAmigaSync hunts s for the raw 0x4489 0x4489 sync pattern (a literal
// clock-rule violation written verbatim, not a declocked data value, so
// this reads raw bitcells rather than going through decodeField).
func scanAmigaSync(s disk.FluxSource) error {
	history := uint32(0)
	for {
		bit, err := s.NextBit()
		if err != nil {
			return err
		}
		history = (history << 1) | uint32(bit)
		if history == amigaSyncWord<<16|amigaSyncWord {
			return nil
		}
	}
}

// sectorResult is one successfully decoded sector, plus the bookkeeping
// ados_write_raw keeps per sector: its index offset at sync match (for
// DataBitOff) and the real flux latency it took to read (for
// amigados_varrate's per-sector speed normalization).
type sectorResult struct {
	sector       int
	sectorsToGap int
	data         []byte
	idxOff       int
	latencyNs    uint64
}

func (h *amigaDOSHandler) readOneSector(s disk.FluxSource) (*sectorResult, error) {
	if err := scanAmigaSync(s); err != nil {
		return nil, err
	}
	idxOff := s.IndexOffsetBC() - 31
	latStart := s.LatencyNs()

	infoLabel, err := decodeField(s, mfm.BCMFMOddEven, 20)
	if err != nil {
		return nil, err
	}
	headerCRCRaw, err := decodeField(s, mfm.BCMFMOddEven, 4)
	if err != nil {
		return nil, err
	}
	dataCRCRaw, err := decodeField(s, mfm.BCMFMOddEven, 4)
	if err != nil {
		return nil, err
	}
	data, err := decodeField(s, mfm.BCMFMOddEven, amigaSectorSize)
	if err != nil {
		return nil, err
	}
	latencyNs := s.LatencyNs() - latStart

	if infoLabel[0] != 0xff {
		return nil, fmt.Errorf("handlers: bad amigados format byte 0x%02x", infoLabel[0])
	}
	sector := int(infoLabel[2])
	sectorsToGap := int(infoLabel[3])

	headerCRC := binary.BigEndian.Uint32(headerCRCRaw)
	if mfm.AmigadosChecksum(infoLabel) != headerCRC {
		return nil, fmt.Errorf("handlers: amigados header checksum mismatch at sector %d", sector)
	}
	dataCRC := binary.BigEndian.Uint32(dataCRCRaw)
	res := &sectorResult{sector: sector, sectorsToGap: sectorsToGap, data: data, idxOff: idxOff, latencyNs: latencyNs}
	if mfm.AmigadosChecksum(data) != dataCRC {
		return res, fmt.Errorf("handlers: amigados data checksum mismatch at sector %d", sector)
	}

	return res, nil
}

// WriteRaw scans one revolution for every sector of this track's layout,
// returning ErrNotMyFormat if no sector at all is recognized (libdisk's
// write_raw returning NULL to let the next candidate handler try).
func (h *amigaDOSHandler) WriteRaw(d *disk.Disk, tracknr int, s disk.FluxSource) (*disk.TrackInfo, error) {
	s.Reset()
	ti := &disk.TrackInfo{
		Type:           h.trackType,
		TotalBits:      h.totalBits,
		NrSectors:      h.sectorsPerTrack,
		BytesPerSector: amigaSectorSize,
		Data:           make([]byte, h.sectorsPerTrack*amigaSectorSize),
	}

	latencies := make([]uint64, h.sectorsPerTrack)
	found := 0
	leastSectorsToGap := 0
	for attempts := 0; attempts < h.sectorsPerTrack*4; attempts++ {
		res, err := h.readOneSector(s)
		if err != nil {
			if res == nil {
				break
			}
			continue
		}
		if res.sector < 0 || res.sector >= h.sectorsPerTrack {
			continue
		}
		copy(ti.Data[res.sector*amigaSectorSize:(res.sector+1)*amigaSectorSize], res.data)
		if !ti.IsValidSector(res.sector) {
			found++
		}
		ti.MarkValidSector(res.sector)
		latencies[res.sector] = res.latencyNs
		if leastSectorsToGap < res.sectorsToGap {
			ti.DataBitOff = res.idxOff
			leastSectorsToGap = res.sectorsToGap
		}
	}

	if found == 0 {
		return nil, disk.ErrNotMyFormat
	}

	firstSector := h.sectorsPerTrack - leastSectorsToGap
	ti.DataBitOff -= firstSector * amigaEncodedBitsPerSector
	ti.DataBitOff -= amigaLeadGapBits
	ti.NormaliseDataBitOff()

	h.recordSectorSpeeds(ti, latencies, found)

	if h.trackType == disk.TypeAmigaDOS {
		if err := s.NextIndex(); err == nil {
			if t, bits, ok := classifyLongTrack(s.TrackLenBC()); ok {
				ti.Type = t
				ti.TotalBits = bits
			}
		}
	}

	return ti, nil
}

// recordSectorSpeeds fills ti.SectorSpeed from each sector's measured
// flux latency, the same ±5%/±2%-of-average normalization
// ados_write_raw applies, restored here per SPEC_FULL.md §4 item 5. Only
// amigados_varrate actually varies tbuf speed by sector; every other
// track type is recorded at SpeedNominal so a container need not special
// case the field's absence.
func (h *amigaDOSHandler) recordSectorSpeeds(ti *disk.TrackInfo, latencies []uint64, nrValid int) {
	ti.SectorSpeed = make([]uint16, h.sectorsPerTrack)
	for i := range ti.SectorSpeed {
		ti.SectorSpeed[i] = disk.SpeedNominal
	}
	if h.trackType != disk.TypeAmigaDOSVarRate || nrValid == 0 {
		return
	}

	var total uint64
	for i := 0; i < h.sectorsPerTrack; i++ {
		if ti.IsValidSector(i) {
			total += latencies[i]
		}
	}
	if total == 0 {
		return
	}
	avg := total / uint64(nrValid)
	if avg == 0 {
		return
	}

	avgSpeed := uint64(disk.SpeedNominal)
	for i := 0; i < h.sectorsPerTrack; i++ {
		if !ti.IsValidSector(i) {
			continue
		}
		speed := latencies[i] * avgSpeed / avg
		switch {
		case speed > avgSpeed*102/100:
			ti.SectorSpeed[i] = uint16(avgSpeed * 105 / 100)
		case speed < avgSpeed*98/100:
			ti.SectorSpeed[i] = uint16(avgSpeed * 95 / 100)
		default:
			ti.SectorSpeed[i] = disk.SpeedNominal
		}
	}
}

// ReadRaw re-encodes ti.Data back into flux-ready bits via the
// TrackBuffer canvas, sector by sector.
func (h *amigaDOSHandler) ReadRaw(d *disk.Disk, tracknr int, ti *disk.TrackInfo, tb *disk.TrackBuffer) {
	tb.SetGapFillByte(0xaa)
	tb.Gap(disk.SpeedNominal, 128)

	for sec := 0; sec < h.sectorsPerTrack; sec++ {
		speed := disk.SpeedNominal
		if sec < len(ti.SectorSpeed) {
			speed = ti.SectorSpeed[sec]
		}

		tb.Bits(speed, mfm.BCRaw, 32, amigaSyncWord<<16|amigaSyncWord)

		info := make([]byte, 4)
		info[0] = 0xff
		info[1] = byte(tracknr)
		info[2] = byte(sec)
		info[3] = byte(h.sectorsPerTrack - sec)
		label := make([]byte, 16) // sector label: unused by this module's handlers
		infoLabel := append(info, label...)
		tb.Bytes(speed, mfm.BCMFMOddEven, infoLabel)

		headerCRC := make([]byte, 4)
		binary.BigEndian.PutUint32(headerCRC, mfm.AmigadosChecksum(infoLabel))
		tb.Bytes(speed, mfm.BCMFMOddEven, headerCRC)

		data := make([]byte, amigaSectorSize)
		if sec < ti.NrSectors && ti.IsValidSector(sec) {
			copy(data, ti.Data[sec*amigaSectorSize:(sec+1)*amigaSectorSize])
		}
		dataCRC := make([]byte, 4)
		binary.BigEndian.PutUint32(dataCRC, mfm.AmigadosChecksum(data))
		tb.Bytes(speed, mfm.BCMFMOddEven, dataCRC)

		tb.Bytes(speed, mfm.BCMFMOddEven, data)
		tb.Gap(speed, 16)
	}
}

func (h *amigaDOSHandler) ReadSectors(tracknr int, ti *disk.TrackInfo) ([][]byte, error) {
	out := make([][]byte, h.sectorsPerTrack)
	for i := range out {
		if ti.IsValidSector(i) {
			out[i] = ti.Data[i*amigaSectorSize : (i+1)*amigaSectorSize]
		}
	}
	return out, nil
}

func (h *amigaDOSHandler) WriteSectors(tracknr int, sectors [][]byte) (*disk.TrackInfo, error) {
	ti := &disk.TrackInfo{
		Type:           h.trackType,
		TotalBits:      h.totalBits,
		NrSectors:      h.sectorsPerTrack,
		BytesPerSector: amigaSectorSize,
		Data:           make([]byte, h.sectorsPerTrack*amigaSectorSize),
	}
	for i, sec := range sectors {
		if i >= h.sectorsPerTrack || sec == nil {
			continue
		}
		copy(ti.Data[i*amigaSectorSize:(i+1)*amigaSectorSize], sec)
		ti.MarkValidSector(i)
	}
	return ti, nil
}
