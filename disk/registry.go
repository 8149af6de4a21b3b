package disk

import "fmt"

// FluxSource is the bit-level view write_raw handlers consume: one bit
// (already PLL-recovered from flux) per call, plus the bookkeeping a
// handler needs to locate itself within the revolution. Implemented by
// *flux.Stream; kept as a narrow interface here so disk/handlers do not
// import flux directly (avoids a package cycle, since flux.Stream has no
// reason to know about track handlers).
type FluxSource interface {
	NextBit() (int, error)
	NextBits(n int) (uint32, error)
	NextBytes(buf []byte) error
	IndexOffsetBC() int
	Reset()
	NextIndex() error
	TrackLenBC() int
	LatencyNs() uint64
	StartCRC()
	CRC16CCITT() uint16
}

// Handler is the four-method contract every track format implements
// (libdisk's struct track_handler): WriteRaw is the analyser (flux to
// decoded), ReadRaw the encoder (decoded back to MFM bits). Both take the
// owning *Disk, matching spec.md §4.4's write_raw(disk, tracknr, stream)/
// read_raw(disk, tracknr, tbuf): a handler that needs to deposit disk-wide
// metadata (a decryption key, a serial number) calls d.SetTag rather than
// having nowhere to put it. WriteSectors and ReadSectors are optional
// filesystem-level round-tripping, used by handlers that also support
// plain sector-array import/export without going through flux; a handler
// that doesn't support them returns ErrNotSupported.
type Handler interface {
	Density() TrackDensity
	BytesPerSector() int
	NrSectors() int
	Name(tracknr int) string

	WriteRaw(d *Disk, tracknr int, s FluxSource) (*TrackInfo, error)
	ReadRaw(d *Disk, tracknr int, ti *TrackInfo, tb *TrackBuffer)

	ReadSectors(tracknr int, ti *TrackInfo) ([][]byte, error)
	WriteSectors(tracknr int, sectors [][]byte) (*TrackInfo, error)
}

// TrackDensity mirrors libdisk's enum track_density.
type TrackDensity int

const (
	DensityDouble TrackDensity = iota
	DensityHigh
	DensitySingle
	DensityExtra
)

// ErrNotMyFormat is returned by WriteRaw to mean "this isn't my format,
// try the next candidate" (libdisk's write_raw returning NULL).
var ErrNotMyFormat = fmt.Errorf("disk: not this handler's format")

// ErrNotSupported is returned by ReadSectors/WriteSectors on handlers
// that only support the flux round-trip.
var ErrNotSupported = fmt.Errorf("disk: handler does not support sector-level access")

// registry is the static table of handlers keyed by track type
// (libdisk's `handlers[]`), read-only after package init registers into
// it from the handlers package's init() functions.
var registry = map[TrackType]Handler{}

// Register adds a handler to the registry, keyed by t. Called from each
// handler package's init(), mirroring libdisk's build-time handlers[]
// table (closed-set registration, open only at program init).
func Register(t TrackType, h Handler) {
	registry[t] = h
}

// Lookup returns the handler registered for t, or ok=false.
func Lookup(t TrackType) (Handler, bool) {
	h, ok := registry[t]
	return h, ok
}

// RegisteredTypes returns every track type with a registered handler,
// used by `disk-analyse --list-formats`.
func RegisteredTypes() []TrackType {
	types := make([]TrackType, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	return types
}
