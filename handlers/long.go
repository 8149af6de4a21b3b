package handlers

import "github.com/sergev/floppy/disk"

// longTrackBitLengths lists the fixed bit-length buckets a long AmigaDOS
// track gets re-tagged to, in order, matching disk.TypeAmigaDOSLong1..7.
var longTrackBitLengths = []int{101200, 101400, 101600, 101800, 102000, 102200, 102400}

var longTrackTypes = []disk.TrackType{
	disk.TypeAmigaDOSLong1,
	disk.TypeAmigaDOSLong2,
	disk.TypeAmigaDOSLong3,
	disk.TypeAmigaDOSLong4,
	disk.TypeAmigaDOSLong5,
	disk.TypeAmigaDOSLong6,
	disk.TypeAmigaDOSLong7,
}

// classifyLongTrack maps an observed revolution length (in bitcells) that
// exceeds the nominal amigados track length to the nearest fixed
// long-track bucket, rather than rejecting the track outright. Returns
// ok=false if measuredBits isn't long enough to need reclassifying.
func classifyLongTrack(measuredBits int) (disk.TrackType, int, bool) {
	nominal := disk.DefaultBitsPerTrack(disk.DefaultRPM)
	if measuredBits <= nominal+200 {
		return "", 0, false
	}
	best := 0
	bestDiff := -1
	for i, bits := range longTrackBitLengths {
		diff := measuredBits - bits
		if diff < 0 {
			diff = -diff
		}
		if bestDiff < 0 || diff < bestDiff {
			bestDiff = diff
			best = i
		}
	}
	return longTrackTypes[best], longTrackBitLengths[best], true
}
