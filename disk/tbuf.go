package disk

import "github.com/sergev/floppy/mfm"

// SpeedNominal is the tbuf per-bitcell speed value meaning "ordinary
// density", matching libdisk's nominal 1000.
const SpeedNominal uint16 = 1000

// SpeedWeak marks a bitcell as part of a flux-free, non-reproducible
// "weak bits" region (libdisk's SPEED_WEAK sentinel), resolving
// SPEC_FULL.md's open question in favour of one speed array with a
// sentinel value rather than a separate boolean plane.
const SpeedWeak uint16 = 0xffff

// tbufPRNGInit is libdisk's TBUF_PRNG_INIT, the default seed of the
// weak-bit xorshift stream. Every TrackBuffer starts from the same seed
// (WeakBitPRNGSeed), so two ReadRaw passes over the same track emit the
// same weak bits; the SpeedWeak tag is what marks them as non-reproducible.
const tbufPRNGInit uint32 = 0xae659201

// WeakBitPRNGSeed is the seed NewTrackBuffer starts a track's weak-bit
// generator from. It defaults to tbufPRNGInit but can be overridden
// (config.AnalyserConfig.WeakBitSeed) so that two capture sessions of
// the same weak sectors don't synthesize identical "random" bits.
var WeakBitPRNGSeed uint32 = tbufPRNGInit

// TrackBuffer is the assembly canvas a handler's ReadRaw appends encoded
// MFM/FM bits into: libdisk's struct tbuf, generalised off
// private/disk.h. Bits and Speed are always the same length (Bitlen);
// emission wraps the cursor back to 0 once it reaches Bitlen.
type TrackBuffer struct {
	Bits  []bool
	Speed []uint16

	bitstart int
	pos      int // absolute bit cursor, always reduced mod len(Bits)

	prevDataBit int
	gapFillByte byte

	crcActive bool
	crcStart  int
	crc       uint16

	disableAutoSectorSplit bool

	prngState   uint32
	dataStartBC int
	writeSplice int
}

// NewTrackBuffer allocates a TrackBuffer of bitlen bits, cursor starting
// at bitstart (tbuf_init).
func NewTrackBuffer(bitstart, bitlen int) *TrackBuffer {
	if bitlen <= 0 {
		bitlen = 1
	}
	return &TrackBuffer{
		Bits:        make([]bool, bitlen),
		Speed:       make([]uint16, bitlen),
		bitstart:    bitstart,
		pos:         bitstart,
		gapFillByte: 0x00,
		dataStartBC: -1,
		prngState:   WeakBitPRNGSeed,
	}
}

func (tb *TrackBuffer) appendRawBit(bit bool, speed uint16) {
	idx := tb.pos % len(tb.Bits)
	tb.Bits[idx] = bit
	tb.Speed[idx] = speed
	tb.pos++
	if tb.dataStartBC < 0 {
		tb.dataStartBC = idx
	}
}

// appendDataBit emits one MFM-encoded data bit (clock + data), following
// the same clock rule as mfm.Writer.writeBit: a clock bit is 1 only when
// both the previous and current data bits are 0.
func (tb *TrackBuffer) appendDataBit(bit int, speed uint16) {
	if bit != 0 {
		tb.appendRawBit(false, speed)
		tb.appendRawBit(true, speed)
	} else {
		tb.appendRawBit(tb.prevDataBit == 0, speed)
		tb.appendRawBit(false, speed)
	}
	tb.prevDataBit = bit
}

// Bits emits nbits low-order bits of value under enc (tbuf_bits). For
// BCRaw, nbits counts literal output bits (value already includes any
// clock-violation pattern the caller wants, e.g. a sync mark). For every
// other encoding, nbits counts data bits; MFM doubles them on output.
func (tb *TrackBuffer) Bits(speed uint16, enc mfm.BitcellEncoding, nbits int, value uint32) {
	switch enc {
	case mfm.BCRaw:
		for i := nbits - 1; i >= 0; i-- {
			tb.appendRawBit((value>>uint(i))&1 != 0, speed)
		}
	default:
		for i := nbits - 1; i >= 0; i-- {
			tb.appendDataBit(int((value>>uint(i))&1), speed)
		}
	}
}

// Bytes emits data under enc, tracking the running CRC if StartCRC was
// called (tbuf_bytes). The even/odd shuffled encodings are delegated to
// mfm.EncodeBytes against a scratch mfm.Writer sized for this call, then
// replayed bit-by-bit into the speed-tracked canvas — avoiding a second
// implementation of the odd/even longword shuffle.
func (tb *TrackBuffer) Bytes(speed uint16, enc mfm.BitcellEncoding, data []byte) {
	if tb.crcActive {
		tb.crc = mfm.CRC16CCITTSeeded(tb.crc, data)
	}
	switch enc {
	case mfm.BCRaw, mfm.BCMFM:
		for _, b := range data {
			tb.Bits(speed, enc, 8, uint32(b))
		}
	default:
		scratch := mfm.NewWriter(len(data) * 32)
		mfm.EncodeBytes(enc, scratch, data)
		packed := scratch.Bytes()
		for i := 0; i < len(packed)*8; i++ {
			byteIdx := i / 8
			bitIdx := 7 - i%8
			bit := (packed[byteIdx] >> uint(bitIdx)) & 1
			tb.appendRawBit(bit != 0, speed)
		}
	}
}

// Gap emits nbits/8 bytes of the current gap-fill byte (tbuf_gap).
func (tb *TrackBuffer) Gap(speed uint16, nbits int) {
	full := nbits / 8
	for i := 0; i < full; i++ {
		tb.Bits(speed, mfm.BCMFM, 8, uint32(tb.gapFillByte))
	}
}

// SetGapFillByte overrides the default 0x00 gap-fill byte (IBM formats
// conventionally use 0x4E).
func (tb *TrackBuffer) SetGapFillByte(b byte) {
	tb.gapFillByte = b
}

// Weak emits nbits of non-reproducible filler: a reproducible-per-track
// but not-literally-constant xorshift stream (tbuf_rnd16), each bit
// tagged with SpeedWeak so containers can re-synthesize true randomness
// at write time instead of emitting a fixed pattern.
func (tb *TrackBuffer) Weak(nbits int) {
	for i := 0; i < nbits; i++ {
		if i%16 == 0 {
			tb.rnd16()
		}
		bit := (tb.prngState >> uint(15-(i%16))) & 1
		tb.appendRawBit(bit != 0, SpeedWeak)
	}
}

// rnd16 advances the weak-bit PRNG one step (tbuf_rnd16): an xorshift32
// step (shifts 13, 17, 5) over state seeded from WeakBitPRNGSeed when the
// buffer was created, returning the low 16 bits.
func (tb *TrackBuffer) rnd16() uint16 {
	x := tb.prngState
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	tb.prngState = x
	return uint16(x)
}

// StartCRC begins a CRC-16/CCITT run over subsequently emitted bytes.
func (tb *TrackBuffer) StartCRC() {
	tb.crcActive = true
	tb.crc = 0xffff
}

// EmitCRC16CCITT appends the CRC-16/CCITT accumulated since StartCRC, as
// two MFM-encoded bytes, and stops the run.
func (tb *TrackBuffer) EmitCRC16CCITT(speed uint16) {
	crc := tb.crc
	tb.crcActive = false
	tb.Bits(speed, mfm.BCMFM, 8, uint32(crc>>8))
	tb.Bits(speed, mfm.BCMFM, 8, uint32(crc&0xff))
}

// DisableAutoSectorSplit hints that this track's output should not be
// automatically segmented into IBM-style sectors by the container.
func (tb *TrackBuffer) DisableAutoSectorSplit() {
	tb.disableAutoSectorSplit = true
}

// AutoSectorSplitDisabled reports the flag DisableAutoSectorSplit set.
func (tb *TrackBuffer) AutoSectorSplitDisabled() bool {
	return tb.disableAutoSectorSplit
}

// Finish scans from DataStartBC for a short IBM-style write splice
// (≤16 bitcells of mismatched clock/data, here approximated as a run of
// zero bits — the point where a real drive's write head would leave a
// detectable seam) and records WriteSpliceBC. Returns the final raw bit
// and speed slices.
func (tb *TrackBuffer) Finish() ([]bool, []uint16, int) {
	splice := tb.dataStartBC
	if splice < 0 {
		splice = 0
	}
	limit := splice + 16
	for i := splice; i < limit && i < len(tb.Bits); i++ {
		if tb.Bits[i] {
			splice = i
			break
		}
	}
	tb.writeSplice = splice
	return tb.Bits, tb.Speed, tb.writeSplice
}

// DataStartBC returns the bit offset of the first emitted bit, used by
// containers computing TrackRaw.DataStartBC.
func (tb *TrackBuffer) DataStartBC() int {
	if tb.dataStartBC < 0 {
		return 0
	}
	return tb.dataStartBC
}
