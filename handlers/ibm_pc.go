package handlers

import (
	"github.com/sergev/floppy/disk"
	"github.com/sergev/floppy/ibm"
	"github.com/sergev/floppy/mfm"
)

const ibmPCSectorSize = 512

// ibmPCHandler implements plain IBM-PC MFM tracks (9 sectors/track DD, 18
// sectors/track HD), grounded on ibm.ScanIDAM/ScanDAM and
// mfm.Reader.ReadSectorIBMPC's layout.
type ibmPCHandler struct {
	trackType       disk.TrackType
	density         disk.TrackDensity
	sectorsPerTrack int
}

func init() {
	disk.Register(disk.TypeIBMPCDD, &ibmPCHandler{
		trackType:       disk.TypeIBMPCDD,
		density:         disk.DensityDouble,
		sectorsPerTrack: 9,
	})
	disk.Register(disk.TypeIBMPCHD, &ibmPCHandler{
		trackType:       disk.TypeIBMPCHD,
		density:         disk.DensityHigh,
		sectorsPerTrack: 18,
	})
}

func (h *ibmPCHandler) Density() disk.TrackDensity { return h.density }
func (h *ibmPCHandler) BytesPerSector() int        { return ibmPCSectorSize }
func (h *ibmPCHandler) NrSectors() int             { return h.sectorsPerTrack }
func (h *ibmPCHandler) Name(tracknr int) string    { return string(h.trackType) }

func (h *ibmPCHandler) WriteRaw(d *disk.Disk, tracknr int, s disk.FluxSource) (*disk.TrackInfo, error) {
	s.Reset()
	ti := &disk.TrackInfo{
		Type:           h.trackType,
		TotalBits:      disk.DefaultBitsPerTrack(disk.DefaultRPM),
		NrSectors:      h.sectorsPerTrack,
		BytesPerSector: ibmPCSectorSize,
		Data:           make([]byte, h.sectorsPerTrack*ibmPCSectorSize),
	}

	found := 0
	lowestSector := h.sectorsPerTrack
	for attempts := 0; attempts < h.sectorsPerTrack*4; attempts++ {
		idxOff := s.IndexOffsetBC()
		idam, err := ibm.ScanIDAM(s)
		if err != nil {
			break
		}
		if !idam.CRCOK || idam.SectorSize() != ibmPCSectorSize {
			continue
		}
		readTrack := idam.Cyl*2 + idam.Head
		if readTrack != tracknr {
			continue
		}
		data, ok, err := ibm.ScanDAM(s, ibmPCSectorSize)
		if err != nil {
			continue
		}
		sector := idam.Sec - 1
		if sector < 0 || sector >= h.sectorsPerTrack {
			continue
		}
		copy(ti.Data[sector*ibmPCSectorSize:(sector+1)*ibmPCSectorSize], data)
		if !ok {
			continue
		}
		if !ti.IsValidSector(sector) {
			found++
		}
		ti.MarkValidSector(sector)
		// Spec §4.4 step 2: record the index offset at the sync point
		// for the lowest-numbered sector seen, the same "least_block"
		// idiom amigaDOSHandler uses. ibm.ScanIDAM consumes the sync
		// mark itself before returning, so this is the offset at the
		// start of the IDAM scan rather than the exact A1A1A1 bit —
		// close enough to anchor the track's data start, since no
		// caller here needs the bit-exact precision the raw-sync
		// Amiga handlers do.
		if sector < lowestSector {
			ti.DataBitOff = idxOff
			lowestSector = sector
		}
	}

	if found == 0 {
		return nil, disk.ErrNotMyFormat
	}
	ti.NormaliseDataBitOff()
	return ti, nil
}

func (h *ibmPCHandler) ReadRaw(d *disk.Disk, tracknr int, ti *disk.TrackInfo, tb *disk.TrackBuffer) {
	tb.SetGapFillByte(0x4e)
	tb.Gap(disk.SpeedNominal, 80)
	tb.Bytes(disk.SpeedNominal, mfm.BCMFM, make([]byte, 12)) // zero run before the index mark
	tb.Bytes(disk.SpeedNominal, mfm.BCMFM, []byte{0xc2, 0xc2, 0xc2, 0xfc})
	tb.Gap(disk.SpeedNominal, 50)

	cyl := tracknr / 2
	head := tracknr % 2

	for sec := 0; sec < h.sectorsPerTrack; sec++ {
		tb.Bytes(disk.SpeedNominal, mfm.BCMFM, make([]byte, 12)) // zero run before A1 sync
		tb.Bytes(disk.SpeedNominal, mfm.BCMFM, []byte{0xa1, 0xa1, 0xa1, 0xfe})

		hdr := []byte{byte(cyl), byte(head), byte(sec + 1), 2}
		tb.Bytes(disk.SpeedNominal, mfm.BCMFM, hdr)
		headerCRC := mfm.CRC16CCITTSeeded(0xb230, hdr)
		tb.Bytes(disk.SpeedNominal, mfm.BCMFM, []byte{byte(headerCRC >> 8), byte(headerCRC)})

		tb.Gap(disk.SpeedNominal, 22)
		tb.Bytes(disk.SpeedNominal, mfm.BCMFM, make([]byte, 12))
		tb.Bytes(disk.SpeedNominal, mfm.BCMFM, []byte{0xa1, 0xa1, 0xa1, 0xfb})

		data := make([]byte, ibmPCSectorSize)
		if sec < ti.NrSectors && ti.IsValidSector(sec) {
			copy(data, ti.Data[sec*ibmPCSectorSize:(sec+1)*ibmPCSectorSize])
		}
		tb.Bytes(disk.SpeedNominal, mfm.BCMFM, data)
		dataCRC := mfm.CRC16CCITTSeeded(mfm.CRC16CCITTSeeded(0xcdb4, []byte{0xfb}), data)
		tb.Bytes(disk.SpeedNominal, mfm.BCMFM, []byte{byte(dataCRC >> 8), byte(dataCRC)})

		tb.Gap(disk.SpeedNominal, 108)
	}
}

func (h *ibmPCHandler) ReadSectors(tracknr int, ti *disk.TrackInfo) ([][]byte, error) {
	out := make([][]byte, h.sectorsPerTrack)
	for i := range out {
		if ti.IsValidSector(i) {
			out[i] = ti.Data[i*ibmPCSectorSize : (i+1)*ibmPCSectorSize]
		}
	}
	return out, nil
}

func (h *ibmPCHandler) WriteSectors(tracknr int, sectors [][]byte) (*disk.TrackInfo, error) {
	ti := &disk.TrackInfo{
		Type:           h.trackType,
		TotalBits:      disk.DefaultBitsPerTrack(disk.DefaultRPM),
		NrSectors:      h.sectorsPerTrack,
		BytesPerSector: ibmPCSectorSize,
		Data:           make([]byte, h.sectorsPerTrack*ibmPCSectorSize),
	}
	for i, sec := range sectors {
		if i >= h.sectorsPerTrack || sec == nil {
			continue
		}
		copy(ti.Data[i*ibmPCSectorSize:(i+1)*ibmPCSectorSize], sec)
		ti.MarkValidSector(i)
	}
	return ti, nil
}
