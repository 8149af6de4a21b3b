package hfe

import (
	"bytes"
	"fmt"
	"os"

	"github.com/sergev/floppy/mfm"
)

// IMDSector is one sector record from an ImageDisk (.IMD) track.
type IMDSector struct {
	Flag       byte
	Compressed bool
	Deleted    bool
	Bad        bool
	Data       []byte
}

// IMDTrack is one track record from an ImageDisk (.IMD) image: a header
// plus the sector numbering/cylinder/head maps and the sector records
// themselves, in physical order.
type IMDTrack struct {
	Mode      byte
	Cylinder  byte
	Head      byte // bit7: cylinder map present, bit6: head map present, bits 0-3: head number
	Nsec      byte
	Ssize     byte
	SectorMap []byte
	CylMap    []byte
	HeadMap   []byte
	Sectors   []IMDSector
}

// IMDFile is a parsed ImageDisk (.IMD) file: the leading ASCII comment
// block plus one track record per captured track.
type IMDFile struct {
	Comment   []byte
	FloppyRPM uint16
	Tracks    []IMDTrack
}

// imdSectorSize maps an IMD sector-size code to a byte count: 128<<ssize.
func imdSectorSize(ssize byte) int {
	return 128 << ssize
}

// imdModeBitRateKhz maps an IMD mode byte to its data rate in kbit/s.
// Modes 0-2 are FM, 3-5 are MFM, but the rate cycles the same way:
// 500/300/250.
func imdModeBitRateKhz(mode byte) int {
	rates := [...]int{500, 300, 250, 500, 300, 250}
	if int(mode) < len(rates) {
		return rates[mode]
	}
	return 250
}

// imdModeRPM infers the drive rotation speed from the mode's data rate.
// A 300kbit/s rate is ImageDisk's convention for a 360 RPM drive spun at
// 300kbit/s data rate (5.25" HD drives reading at the slower rate);
// 500 and 250kbit/s both imply the ordinary 300 RPM case.
func imdModeRPM(mode byte) uint16 {
	if imdModeBitRateKhz(mode) == 300 {
		return 360
	}
	return 300
}

// ReadIMDFile parses an ImageDisk (.IMD) file from disk.
func ReadIMDFile(filename string) (*IMDFile, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("imd: %w", err)
	}

	term := bytes.IndexByte(data, 0x1A)
	if term < 0 {
		return nil, fmt.Errorf("imd: comment block terminator (0x1A) not found")
	}
	comment := append([]byte(nil), data[:term]...)
	pos := term + 1

	var tracks []IMDTrack
	for pos < len(data) {
		if pos+5 > len(data) {
			return nil, fmt.Errorf("imd: truncated track header at offset %d", pos)
		}
		mode := data[pos]
		cyl := data[pos+1]
		head := data[pos+2]
		nsec := data[pos+3]
		ssize := data[pos+4]
		pos += 5

		n := int(nsec)
		if pos+n > len(data) {
			return nil, fmt.Errorf("imd: truncated sector numbering map at offset %d", pos)
		}
		sectorMap := append([]byte(nil), data[pos:pos+n]...)
		pos += n

		var cylMap, headMap []byte
		if head&0x80 != 0 {
			if pos+n > len(data) {
				return nil, fmt.Errorf("imd: truncated cylinder map at offset %d", pos)
			}
			cylMap = append([]byte(nil), data[pos:pos+n]...)
			pos += n
		}
		if head&0x40 != 0 {
			if pos+n > len(data) {
				return nil, fmt.Errorf("imd: truncated head map at offset %d", pos)
			}
			headMap = append([]byte(nil), data[pos:pos+n]...)
			pos += n
		}

		secSize := imdSectorSize(ssize)
		sectors := make([]IMDSector, n)
		for i := 0; i < n; i++ {
			if pos >= len(data) {
				return nil, fmt.Errorf("imd: truncated sector records at offset %d", pos)
			}
			flag := data[pos]
			pos++

			sec := IMDSector{Flag: flag}
			switch flag {
			case 0:
				// Sector data unavailable; leave Data nil.
			case 1, 3, 5, 7:
				if pos+secSize > len(data) {
					return nil, fmt.Errorf("imd: truncated sector data at offset %d", pos)
				}
				sec.Data = append([]byte(nil), data[pos:pos+secSize]...)
				pos += secSize
			case 2, 4, 6, 8:
				if pos >= len(data) {
					return nil, fmt.Errorf("imd: truncated compressed sector at offset %d", pos)
				}
				fill := data[pos]
				pos++
				sec.Data = bytes.Repeat([]byte{fill}, secSize)
				sec.Compressed = true
			default:
				return nil, fmt.Errorf("imd: unrecognized sector type flag 0x%02x", flag)
			}
			sec.Deleted = flag == 3 || flag == 4 || flag == 7 || flag == 8
			sec.Bad = flag == 5 || flag == 6 || flag == 7 || flag == 8
			sectors[i] = sec
		}

		tracks = append(tracks, IMDTrack{
			Mode:      mode,
			Cylinder:  cyl,
			Head:      head,
			Nsec:      nsec,
			Ssize:     ssize,
			SectorMap: sectorMap,
			CylMap:    cylMap,
			HeadMap:   headMap,
			Sectors:   sectors,
		})
	}

	rpm := uint16(300)
	if len(tracks) > 0 {
		rpm = imdModeRPM(tracks[0].Mode)
	}

	return &IMDFile{Comment: comment, FloppyRPM: rpm, Tracks: tracks}, nil
}

// ConvertIMDToHFE re-encodes every IBM-PC sector in img as an MFM bitcell
// stream, producing a Disk with the same shape ReadHFE would for the same
// physical media (so ReadSectorIBMPC can parse the result back out).
func ConvertIMDToHFE(img *IMDFile) (*Disk, error) {
	if len(img.Tracks) == 0 {
		return nil, fmt.Errorf("imd: no track records")
	}

	var maxCyl, maxHead int
	for _, tr := range img.Tracks {
		if c := int(tr.Cylinder); c > maxCyl {
			maxCyl = c
		}
		if h := int(tr.Head & 0x0F); h > maxHead {
			maxHead = h
		}
	}
	numTracks := maxCyl + 1
	numSides := maxHead + 1

	bitRateKhz := imdModeBitRateKhz(img.Tracks[0].Mode)
	rpm := imdModeRPM(img.Tracks[0].Mode)

	disk := &Disk{
		Header: Header{
			HeaderSignature:     [8]byte{'H', 'X', 'C', 'H', 'F', 'E', 'V', '3'},
			NumberOfTrack:       uint8(numTracks),
			NumberOfSide:        uint8(numSides),
			TrackEncoding:       ENC_ISOIBM_MFM,
			BitRate:             uint16(bitRateKhz),
			FloppyRPM:           rpm,
			FloppyInterfaceMode: IFM_GenericShugart_DD,
			WriteAllowed:        1,
			Track0S0Encoding:    ENC_ISOIBM_MFM,
			Track0S1Encoding:    ENC_ISOIBM_MFM,
		},
		Tracks: make([]TrackData, numTracks),
	}

	for _, tr := range img.Tracks {
		cyl := int(tr.Cylinder)
		head := int(tr.Head & 0x0F)
		nsec := int(tr.Nsec)
		secSize := imdSectorSize(tr.Ssize)

		sectors := make([][]byte, nsec)
		for i, sec := range tr.Sectors {
			logical := i + 1
			if i < len(tr.SectorMap) {
				logical = int(tr.SectorMap[i])
			}
			data := sec.Data
			if len(data) == 0 {
				data = make([]byte, secSize)
			}
			if logical >= 1 && logical <= nsec {
				sectors[logical-1] = data
			}
		}

		trackBitRateKhz := imdModeBitRateKhz(tr.Mode)
		trackRPM := imdModeRPM(tr.Mode)
		halfBits := 2 * trackBitRateKhz * 1000 * 60 / int(trackRPM)

		writer := mfm.NewWriter(halfBits)
		encoded := writer.EncodeTrackIBMPC(sectors, cyl, head, nsec, trackBitRateKhz)

		if head == 0 {
			disk.Tracks[cyl].Side0 = encoded
		} else {
			disk.Tracks[cyl].Side1 = encoded
		}
	}

	return disk, nil
}

// ReadIMD reads a file in ImageDisk (.IMD) format and returns a Disk.
func ReadIMD(filename string) (*Disk, error) {
	img, err := ReadIMDFile(filename)
	if err != nil {
		return nil, err
	}
	return ConvertIMDToHFE(img)
}

// WriteIMD is not implemented: ImageDisk is an archival capture format
// produced by Dave Dunfield's ImageDisk utility reading real hardware, not
// a target this module re-materializes media into.
func WriteIMD(filename string, disk *Disk) error {
	return fmt.Errorf("IMD format is read-only")
}
