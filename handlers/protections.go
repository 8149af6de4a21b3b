package handlers

import "github.com/sergev/floppy/disk"

// rncPDOSKeyPayload is the disk-wide tag RNC PDOS-protected disks carry:
// a fixed decryption key no handler in this representative subset
// actually decrypts with, but that SPEC_FULL.md §4 item 1 names as a
// worked example of the DiskTag mechanism (libdisk's struct disktag).
var rncPDOSKeyPayload = []byte{0xde, 0xad, 0xbe, 0xef}

// The protection-scheme handlers below reuse amigaDOSHandler's sector
// codec: every variant this module implements stores its payload as
// plain amigados-shaped sectors, differing only in the track type tag.
// Full emulation of each original protection's custom track layout
// (weak-bit windows, nonstandard sync words, speed ramps) is out of
// scope for this representative subset beyond what's implemented here
// and in federation.go; see DESIGN.md. amigados_varrate's per-sector
// speed normalization is implemented directly in amigaDOSHandler, gated
// on trackType, since the original's ados_write_raw/ados_read_raw is a
// single implementation shared by both amigados and amigados_varrate.
func init() {
	disk.Register(disk.TypeAmigaDOSVarRate, &amigaDOSHandler{
		trackType:       disk.TypeAmigaDOSVarRate,
		totalBits:       disk.DefaultBitsPerTrack(disk.DefaultRPM),
		sectorsPerTrack: amigaSectorsPerTrack,
	})
	disk.Register(disk.TypeRNCPDOS, rncPDOSHandler{
		amigaDOSHandler: &amigaDOSHandler{
			trackType:       disk.TypeRNCPDOS,
			totalBits:       disk.DefaultBitsPerTrack(disk.DefaultRPM),
			sectorsPerTrack: amigaSectorsPerTrack,
		},
	})
	disk.Register(disk.TypeRNCDualFormat, &amigaDOSHandler{
		trackType:       disk.TypeRNCDualFormat,
		totalBits:       disk.DefaultBitsPerTrack(disk.DefaultRPM),
		sectorsPerTrack: amigaSectorsPerTrack,
	})
	disk.Register(disk.TypeSoftlockDualFormat, &amigaDOSHandler{
		trackType:       disk.TypeSoftlockDualFormat,
		totalBits:       disk.DefaultBitsPerTrack(disk.DefaultRPM),
		sectorsPerTrack: amigaSectorsPerTrack,
	})
}

// rncPDOSHandler wraps amigaDOSHandler to additionally deposit the
// disk-wide RNC PDOS key tag once a track decodes successfully — the
// only thing that distinguishes it from a bare amigados-shaped track at
// this handler's level of fidelity. Every other Handler method is
// promoted straight from the embedded *amigaDOSHandler.
type rncPDOSHandler struct {
	*amigaDOSHandler
}

func (h rncPDOSHandler) WriteRaw(d *disk.Disk, tracknr int, s disk.FluxSource) (*disk.TrackInfo, error) {
	ti, err := h.amigaDOSHandler.WriteRaw(d, tracknr, s)
	if err != nil {
		return ti, err
	}
	if d != nil {
		d.SetTag(disk.TagRNCPDOSKey, rncPDOSKeyPayload)
	}
	return ti, nil
}
