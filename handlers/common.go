// Package handlers implements disk.Handler for the representative subset
// of track formats SPEC_FULL.md names: unformatted tracks, AmigaDOS and
// its long-track/variable-rate/dual-format relatives, Federation of Free
// Traders, RNC PDOS, and plain IBM-PC MFM. Each file registers its
// handler(s) into the disk package's registry from an init() function,
// mirroring libdisk's build-time `handlers[]` table.
package handlers

import (
	"fmt"

	"github.com/sergev/floppy/disk"
	"github.com/sergev/floppy/mfm"
)

// readRawBits pulls n raw bitcells off s (clock and data bits both
// included, exactly as emitted on disk) and packs them MSB-first into a
// byte slice, padding the last byte with zero bits. Handlers use this to
// stage a chunk of the live flux stream into a buffer mfm.DecodeBytes can
// then unshuffle/declock, rather than duplicating that logic bit-by-bit.
func readRawBits(s disk.FluxSource, n int) ([]byte, error) {
	out := make([]byte, (n+7)/8)
	for i := 0; i < n; i++ {
		bit, err := s.NextBit()
		if err != nil {
			return nil, fmt.Errorf("handlers: %w", err)
		}
		if bit != 0 {
			out[i/8] |= 1 << uint(7-i%8)
		}
	}
	return out, nil
}

// decodeField reads the raw bitcells enc needs to carry nDataBytes of
// payload and declocks/unshuffles them in one step.
func decodeField(s disk.FluxSource, enc mfm.BitcellEncoding, nDataBytes int) ([]byte, error) {
	rawBits := nDataBytes * 16 // MFM doubles every data bit into clock+data
	raw, err := readRawBits(s, rawBits)
	if err != nil {
		return nil, err
	}
	return mfm.DecodeBytes(enc, nDataBytes, raw), nil
}
