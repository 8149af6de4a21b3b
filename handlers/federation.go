package handlers

import (
	"fmt"

	"github.com/sergev/floppy/disk"
	"github.com/sergev/floppy/mfm"
)

// Federation of Free Traders (Gremlin) custom track layout, grounded on
// original_source's federation_of_free_traders.c: 3 back-to-back sectors
// of 2000 bytes, each preceded by its own raw 0x4489 sync (no even/odd
// split), checksummed over the *encoded* MFM words rather than the
// declocked bytes.
const (
	fftSectorsPerTrack = 3
	fftSectorSize      = 2000
	fftSyncWord        = 0x4489
	// fftEncodedSectorBits is the original's "0xfc8 (4040) bytes" total
	// encoded sector size (sync + header + data + checksum + gap),
	// expressed in raw bitcells (bytes*8).
	fftEncodedSectorBits = 0xfc8 * 8
)

type federationHandler struct{}

func init() {
	disk.Register(disk.TypeFederationOfFreeTraders, federationHandler{})
}

func (federationHandler) Density() disk.TrackDensity { return disk.DensityDouble }
func (federationHandler) BytesPerSector() int        { return fftSectorSize }
func (federationHandler) NrSectors() int             { return fftSectorsPerTrack }
func (federationHandler) Name(tracknr int) string {
	return fmt.Sprintf("federation_of_free_traders track %d", tracknr)
}

// fftReadRawWord reads n raw bitcells (n<=32) and returns both the raw
// bits (MSB-first, undeclocked) and the declocked value, since the
// sector checksum is accumulated over the former while the payload byte
// comes from the latter.
func fftReadRawWord(s disk.FluxSource, n int) (raw uint32, decoded uint16, err error) {
	raw, err = s.NextBits(n)
	if err != nil {
		return 0, 0, err
	}
	return raw, mfm.DecodeWord(raw), nil
}

// WriteRaw scans for the FFT sync word, decodes each sector's 3-byte
// header and 2000-byte payload, and verifies the checksum computed over
// the raw (still-clocked) MFM words, exactly as
// federation_of_free_traders_write_raw does.
func (h federationHandler) WriteRaw(d *disk.Disk, tracknr int, s disk.FluxSource) (*disk.TrackInfo, error) {
	s.Reset()
	ti := &disk.TrackInfo{
		Type:           disk.TypeFederationOfFreeTraders,
		TotalBits:      disk.DefaultBitsPerTrack(disk.DefaultRPM),
		NrSectors:      fftSectorsPerTrack,
		BytesPerSector: fftSectorSize,
		Data:           make([]byte, fftSectorsPerTrack*fftSectorSize),
	}

	history := uint32(0)
	found := 0
	leastSector := fftSectorsPerTrack

	for found != fftSectorsPerTrack {
		bit, err := s.NextBit()
		if err != nil {
			break
		}
		history = (history << 1) | uint32(bit)
		idxOff := s.IndexOffsetBC() - 31
		if history != fftSyncWord<<16|fftSyncWord {
			continue
		}

		_, hdr, err := fftReadRawWord(s, 32)
		if err != nil {
			break
		}
		if hdr != (0xff00 | uint16(tracknr^1)) {
			continue
		}

		_, sec16, err := fftReadRawWord(s, 16)
		if err != nil {
			break
		}
		sec := int(sec16)
		if sec >= fftSectorsPerTrack || ti.IsValidSector(sec) {
			continue
		}

		data := make([]byte, fftSectorSize)
		var csum uint16
		ok := true
		for i := 0; i < fftSectorSize; i++ {
			raw, decoded, err := fftReadRawWord(s, 16)
			if err != nil {
				ok = false
				break
			}
			csum ^= uint16(raw)
			data[i] = byte(decoded)
		}
		if !ok {
			break
		}

		_, wantCsum, err := fftReadRawWord(s, 32)
		if err != nil {
			break
		}
		if csum != wantCsum {
			continue
		}

		copy(ti.Data[sec*fftSectorSize:(sec+1)*fftSectorSize], data)
		ti.MarkValidSector(sec)
		found++
		if leastSector > sec {
			ti.DataBitOff = idxOff
			leastSector = sec
		}
	}

	if found == 0 {
		return nil, disk.ErrNotMyFormat
	}

	firstSector := fftSectorsPerTrack
	for i := 0; i < fftSectorsPerTrack; i++ {
		if ti.IsValidSector(i) {
			firstSector = i
			break
		}
	}
	ti.DataBitOff -= firstSector * fftEncodedSectorBits
	ti.NormaliseDataBitOff()

	return ti, nil
}

// ReadRaw re-encodes ti.Data back into the FFT layout, deriving each
// sector's checksum from a continuous MFM encode of the header's sector
// byte followed by the data bytes (mfm_encode_word chaining in the
// original), and deliberately inverting the checksum for a placeholder
// sector that was never recovered.
func (h federationHandler) ReadRaw(d *disk.Disk, tracknr int, ti *disk.TrackInfo, tb *disk.TrackBuffer) {
	for sec := 0; sec < fftSectorsPerTrack; sec++ {
		tb.Bits(disk.SpeedNominal, mfm.BCRaw, 32, fftSyncWord<<16|fftSyncWord)
		tb.Bits(disk.SpeedNominal, mfm.BCMFM, 8, 0xff)
		tb.Bits(disk.SpeedNominal, mfm.BCMFM, 8, uint32(byte(tracknr^1)))
		tb.Bits(disk.SpeedNominal, mfm.BCMFM, 8, uint32(sec))

		data := make([]byte, fftSectorSize)
		if sec < ti.NrSectors && sec < len(ti.Data)/fftSectorSize && ti.IsValidSector(sec) {
			copy(data, ti.Data[sec*fftSectorSize:(sec+1)*fftSectorSize])
		}

		// Each byte's encoded raw word depends on the data bit just
		// before it (for the leading clock bit), so encode it paired
		// with the preceding byte and keep only the low 16 bits —
		// mfm.EncodeWord's prevBit parameter only reaches the high
		// half of its 32-bit result, so the pairing alone supplies the
		// boundary context, matching federation_of_free_traders.c's
		// sliding 16-bit window (seeded w = i, the sector index byte).
		prevByte := byte(sec)
		var csum uint16
		for _, b := range data {
			mfmWord, _ := mfm.EncodeWord(uint16(prevByte)<<8|uint16(b), 0)
			csum ^= uint16(mfmWord)
			prevByte = b
			tb.Bits(disk.SpeedNominal, mfm.BCMFM, 8, uint32(b))
		}
		if !ti.IsValidSector(sec) {
			csum = ^csum
		}
		tb.Bits(disk.SpeedNominal, mfm.BCMFM, 16, uint32(csum))

		tb.Gap(disk.SpeedNominal, 13*8)
	}
}

func (h federationHandler) ReadSectors(tracknr int, ti *disk.TrackInfo) ([][]byte, error) {
	out := make([][]byte, fftSectorsPerTrack)
	for i := range out {
		if ti.IsValidSector(i) {
			out[i] = ti.Data[i*fftSectorSize : (i+1)*fftSectorSize]
		}
	}
	return out, nil
}

func (h federationHandler) WriteSectors(tracknr int, sectors [][]byte) (*disk.TrackInfo, error) {
	ti := &disk.TrackInfo{
		Type:           disk.TypeFederationOfFreeTraders,
		TotalBits:      disk.DefaultBitsPerTrack(disk.DefaultRPM),
		NrSectors:      fftSectorsPerTrack,
		BytesPerSector: fftSectorSize,
		Data:           make([]byte, fftSectorsPerTrack*fftSectorSize),
	}
	for i, sec := range sectors {
		if i >= fftSectorsPerTrack || sec == nil {
			continue
		}
		copy(ti.Data[i*fftSectorSize:(i+1)*fftSectorSize], sec)
		ti.MarkValidSector(i)
	}
	return ti, nil
}
