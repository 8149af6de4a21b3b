// Package disk holds the format-independent data model shared by every
// track handler and container: TrackInfo/DiskInfo/Disk, the TrackBuffer
// assembly canvas used by a handler's ReadRaw pass, disk-wide tags, and
// the handler registry that containers dispatch through.
package disk

import "fmt"

// TrackType identifies which handler decoded (or should decode) a track.
// libdisk uses a ~150-member C enum for this; this module keeps the same
// closed-set idea with a Go string type instead, since the handler set
// implemented here is a representative subset (spec.md's Non-goals
// excuse full coverage of all historical protections).
type TrackType string

const (
	TypeUnformatted TrackType = "unformatted"

	TypeAmigaDOS         TrackType = "amigados"
	TypeAmigaDOSExtended TrackType = "amigados_extended"
	TypeAmigaDOSVarRate  TrackType = "amigados_varrate"

	// Long-track variants of amigados: a track whose measured bit count
	// exceeds the nominal 100150 bits is re-tagged to the nearest of
	// these fixed lengths rather than rejected outright (see
	// classifyLongTrack in the handlers package).
	TypeAmigaDOSLong1 TrackType = "amigados_long_101200"
	TypeAmigaDOSLong2 TrackType = "amigados_long_101400"
	TypeAmigaDOSLong3 TrackType = "amigados_long_101600"
	TypeAmigaDOSLong4 TrackType = "amigados_long_101800"
	TypeAmigaDOSLong5 TrackType = "amigados_long_102000"
	TypeAmigaDOSLong6 TrackType = "amigados_long_102200"
	TypeAmigaDOSLong7 TrackType = "amigados_long_102400"

	TypeFederationOfFreeTraders TrackType = "federation_of_free_traders"
	TypeRNCPDOS                 TrackType = "rnc_pdos"
	TypeRNCDualFormat           TrackType = "rnc_dualformat"
	TypeSoftlockDualFormat      TrackType = "softlock_dualformat"

	TypeIBMPCDD TrackType = "ibm_pc_dd"
	TypeIBMPCHD TrackType = "ibm_pc_hd"
)

// DefaultBitsPerTrack is libdisk's DEFAULT_BITS_PER_TRACK(d): empirically
// measured, larger than the naive 2us-bitcell-at-300rpm arithmetic would
// suggest, and scaled down linearly for faster-spinning drives.
func DefaultBitsPerTrack(rpm uint16) int {
	if rpm == 0 {
		rpm = DefaultRPM
	}
	return 100150 * 300 / int(rpm)
}

// DefaultRPM is libdisk's DEFAULT_RPM.
const DefaultRPM = 300

// TrackLenWeak is the TRK_WEAK sentinel for TrackInfo.TotalBits: a track
// whose revolution length cannot be pinned to a fixed bitcell count
// because it is entirely unformatted/weak. spec.md's open question about
// this overloaded field is resolved by keeping the sentinel (matching the
// original) rather than introducing a sum type, since every consumer here
// already treats TotalBits as "0 means use the density default".
const TrackLenWeak = 0

// TrackInfo is the decoded representation of one physical track, as
// produced by a handler's WriteRaw and consumed by its ReadRaw.
type TrackInfo struct {
	Type           TrackType
	TotalBits      int // revolution length in bitcells; TrackLenWeak if unknown
	DataBitOff     int // bit offset of the first data cell past the index, normalised to [0, TotalBits)
	NrSectors      int
	BytesPerSector int
	ValidSectors   uint64 // bit i set iff sector i's payload in Data is authoritative (supports up to 64 sectors)
	Data           []byte
	RawWriteSplice int // bitcell offset of a write splice; not set anywhere in this module (TrackBuffer.Finish returns the splice instead)

	// SectorSpeed holds a per-sector tbuf speed value (SpeedNominal-relative,
	// libdisk's SPEED_AVG scale). amigaDOSHandler fills it for every track
	// type it serves: measured per-sector values for amigados_varrate,
	// SpeedNominal for the rest. The other handlers leave it empty and
	// emit every sector at SpeedNominal.
	SectorSpeed []uint16
}

// IsValidSector reports whether sector i was recovered, not a placeholder.
func (ti *TrackInfo) IsValidSector(i int) bool {
	if i < 0 || i >= 64 {
		return false
	}
	return ti.ValidSectors&(1<<uint(i)) != 0
}

// MarkValidSector records that sector i's payload in Data is authoritative.
func (ti *TrackInfo) MarkValidSector(i int) {
	if i < 0 || i >= 64 {
		return
	}
	ti.ValidSectors |= 1 << uint(i)
}

// NormaliseDataBitOff wraps DataBitOff into [0, TotalBits), the invariant
// write_raw handlers must leave true before returning.
func (ti *TrackInfo) NormaliseDataBitOff() {
	if ti.TotalBits <= 0 {
		ti.DataBitOff = 0
		return
	}
	ti.DataBitOff %= ti.TotalBits
	if ti.DataBitOff < 0 {
		ti.DataBitOff += ti.TotalBits
	}
}

// copylockTypes holds the track types the original library special-cases
// as "Copylock" boot-block protection variants, consulted by containers
// that want to treat those tracks differently (e.g. skip compression).
var copylockTypes = map[TrackType]bool{}

// IsCopylock reports whether this track is one of the Copylock
// boot-block protection variants (track_is_copylock in disk.h). No
// handler in this representative subset implements Copylock itself, so
// the set starts empty; it exists as a stable extension point other
// handlers can register into via RegisterCopylockType.
func (ti *TrackInfo) IsCopylock() bool {
	return copylockTypes[ti.Type]
}

// RegisterCopylockType marks t as one of the Copylock boot-block variants.
func RegisterCopylockType(t TrackType) {
	copylockTypes[t] = true
}

func (ti *TrackInfo) String() string {
	return fmt.Sprintf("%s: %d bits, %d/%d sectors valid", ti.Type, ti.TotalBits, popcount(ti.ValidSectors), ti.NrSectors)
}

func popcount(v uint64) int {
	n := 0
	for v != 0 {
		v &= v - 1
		n++
	}
	return n
}
