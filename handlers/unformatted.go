package handlers

import (
	"github.com/sergev/floppy/disk"
)

// unformattedHandler represents a track with no recognizable structure:
// libdisk falls back to it when every other write_raw rejects a track.
// It keeps no data and no measured length (TotalBits is TrackLenWeak),
// and is replayed as weak/random bits on write.
type unformattedHandler struct{}

func init() {
	disk.Register(disk.TypeUnformatted, unformattedHandler{})
}

func (unformattedHandler) Density() disk.TrackDensity { return disk.DensityDouble }
func (unformattedHandler) BytesPerSector() int        { return 0 }
func (unformattedHandler) NrSectors() int             { return 0 }
func (unformattedHandler) Name(tracknr int) string    { return "unformatted" }

// WriteRaw never rejects: it is the handler of last resort. It runs the
// stream to its next index and returns an all-weak TrackInfo whose
// TotalBits is TrackLenWeak; the measured length is not recorded.
func (unformattedHandler) WriteRaw(d *disk.Disk, tracknr int, s disk.FluxSource) (*disk.TrackInfo, error) {
	s.Reset()
	if err := s.NextIndex(); err != nil {
		return nil, err
	}
	ti := &disk.TrackInfo{
		Type:      disk.TypeUnformatted,
		TotalBits: disk.TrackLenWeak,
	}
	return ti, nil
}

// ReadRaw emits disk.DefaultBitsPerTrack(disk.DefaultRPM) bits of non-reproducible
// filler, the same weak-bits trick libdisk uses to represent "nothing
// was ever reliably written here" on a re-mastered image.
func (unformattedHandler) ReadRaw(d *disk.Disk, tracknr int, ti *disk.TrackInfo, tb *disk.TrackBuffer) {
	tb.Weak(disk.DefaultBitsPerTrack(disk.DefaultRPM))
}

func (unformattedHandler) ReadSectors(tracknr int, ti *disk.TrackInfo) ([][]byte, error) {
	return nil, disk.ErrNotSupported
}

func (unformattedHandler) WriteSectors(tracknr int, sectors [][]byte) (*disk.TrackInfo, error) {
	return nil, disk.ErrNotSupported
}
