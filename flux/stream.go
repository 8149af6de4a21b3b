// Package flux is the bitcell decoder: it turns a capture's raw flux
// intervals (nanoseconds between magnetic transitions) into the bit
// stream track handlers consume, via the same SCP-style PLL algorithm
// pll.Decoder already implements. It also knows how to open the two
// capture container formats spec.md names (KryoFlux .raw stream,
// SuperCard Pro .scp) and select one track's worth of transitions out of
// them.
package flux

import (
	"fmt"

	"github.com/sergev/floppy/mfm"
	"github.com/sergev/floppy/pll"
)

// DefaultCellNs is the nominal bitcell time for double-density media
// (2us), matching stream.set_density's documented default.
const DefaultCellNs = 2000

// Stream presents a uniform bit-level view over one track's flux
// transitions (libdisk's struct stream / FluxStream in SPEC_FULL.md),
// implementing disk.FluxSource so handlers never need to know whether
// the capture came from KryoFlux or SCP.
type Stream struct {
	transitionsByTrack [][]uint64
	trackIdx           int

	decoder     *pll.Decoder
	cellNs      int
	word        uint32
	latencyNs   uint64
	indexOffset int
	trackLenBC  int

	crcActive bool
	crc       uint16
}

// NewStream wraps pre-extracted per-track transition lists (already
// split by the format-specific file parser) in a Stream ready for
// SelectTrack.
func NewStream(transitionsByTrack [][]uint64) *Stream {
	return &Stream{transitionsByTrack: transitionsByTrack, cellNs: DefaultCellNs}
}

// SelectTrack loads trackIdx's flux for decoding (stream.select_track).
func (s *Stream) SelectTrack(trackIdx int) error {
	if trackIdx < 0 || trackIdx >= len(s.transitionsByTrack) {
		return fmt.Errorf("flux: no such track %d", trackIdx)
	}
	s.trackIdx = trackIdx
	s.reinitDecoder()
	return nil
}

// SetDensity sets the nominal bitcell time in nanoseconds; must be
// called before NextBit to take effect (stream.set_density).
func (s *Stream) SetDensity(nsPerCell int) {
	if nsPerCell <= 0 {
		nsPerCell = DefaultCellNs
	}
	s.cellNs = nsPerCell
	s.reinitDecoder()
}

func (s *Stream) reinitDecoder() {
	var bitRateKhz uint16
	if s.cellNs > 0 {
		bitRateKhz = uint16(1_000_000 / s.cellNs)
	}
	if bitRateKhz == 0 {
		bitRateKhz = 250
	}
	transitions := s.transitionsByTrack[s.trackIdx]
	s.decoder = pll.NewDecoder(transitions, bitRateKhz)
	s.latencyNs = 0
	s.indexOffset = 0
	s.trackLenBC = 0
}

// Reset returns the cursor to the start of the first revolution,
// preserving the loaded track (stream.reset).
func (s *Stream) Reset() {
	s.reinitDecoder()
}

// NextBit advances the PLL by one cell, shifts the new bit into the low
// end of the rolling 32-bit word, and reports EndOfStream once every
// revolution in this track's capture has been consumed.
func (s *Stream) NextBit() (int, error) {
	if s.decoder == nil {
		return 0, fmt.Errorf("flux: no track selected")
	}
	wasDone := s.decoder.IsDone()
	bit := s.decoder.NextBit()
	s.indexOffset++
	s.latencyNs += uint64(s.decoder.Period)
	var b int
	if bit {
		b = 1
	}
	s.word = (s.word << 1) | uint32(b)
	if wasDone && s.decoder.IsDone() {
		return 0, fmt.Errorf("flux: end of stream")
	}
	return b, nil
}

// NextBits calls NextBit n times, MSB first, and returns the assembled
// value.
func (s *Stream) NextBits(n int) (uint32, error) {
	var v uint32
	for i := 0; i < n; i++ {
		bit, err := s.NextBit()
		if err != nil {
			return v, err
		}
		v = (v << 1) | uint32(bit)
	}
	return v, nil
}

// NextBytes fills buf one MFM-decoded byte at a time (each byte is 16
// raw bitcells: 8 clock bits stripped out).
func (s *Stream) NextBytes(buf []byte) error {
	for i := range buf {
		raw, err := s.NextBits(16)
		if err != nil {
			return err
		}
		buf[i] = byte(mfm.DecodeWord(raw))
	}
	if s.crcActive {
		s.crc = mfm.CRC16CCITTSeeded(s.crc, buf)
	}
	return nil
}

// NextIndex consumes bitcells until the current track's transitions are
// exhausted and records the number consumed into TrackLenBC. The capture
// parsers keep every revolution of a track in one transition list, so
// this runs to the end of the capture rather than to one index pulse.
func (s *Stream) NextIndex() error {
	start := s.indexOffset
	for !s.decoder.IsDone() {
		if _, err := s.NextBit(); err != nil {
			break
		}
	}
	s.trackLenBC = s.indexOffset - start
	return nil
}

// IndexOffsetBC returns the number of bitcells consumed since the track
// was selected, reset or had its density set; NextIndex does not reset it.
func (s *Stream) IndexOffsetBC() int { return s.indexOffset }

// TrackLenBC returns the most recently observed revolution length.
func (s *Stream) TrackLenBC() int { return s.trackLenBC }

// Word returns the rolling 32-bit shift register handlers sync-hunt
// against.
func (s *Stream) Word() uint32 { return s.word }

// LatencyNs returns the accumulated nanoseconds of flux consumed so far.
func (s *Stream) LatencyNs() uint64 { return s.latencyNs }

// StartCRC begins a CRC-16/CCITT run over subsequently decoded bytes.
func (s *Stream) StartCRC() {
	s.crcActive = true
	s.crc = 0xffff
}

// CRC16CCITT returns the running CRC value started by StartCRC; NextBytes
// folds into it automatically while a run is active.
func (s *Stream) CRC16CCITT() uint16 { return s.crc }

// IsDone reports whether this track's flux is exhausted.
func (s *Stream) IsDone() bool {
	return s.decoder == nil || s.decoder.IsDone()
}
