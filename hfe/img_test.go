package hfe

import (
	"testing"

	"github.com/sergev/floppy/mfm"
)

func TestCountSectorsIBMPC(t *testing.T) {
	// Find the test file
	sampleFile := findSampleFile(t, "fat12v1.hfe")
	if sampleFile == "" {
		return // Test was skipped
	}

	// Load the HFE file
	disk, err := ReadHFE(sampleFile)
	if err != nil {
		t.Fatalf("ReadHFE() error: %v", err)
	}

	// Verify we have at least one track
	if len(disk.Tracks) == 0 {
		t.Fatalf("ReadHFE() returned disk with no tracks")
	}

	// Extract side #0 data from track #0
	side0Data := disk.Tracks[0].Side0
	if len(side0Data) == 0 {
		t.Fatalf("Track 0 side 0 data is empty")
	}

	// Call CountSectorsIBMPC() with the side 0 data from HFE file
	sectorCount := mfm.NewReader(side0Data).CountSectorsIBMPC()

	// Assert the result equals 18
	if sectorCount != 18 {
		t.Errorf("CountSectorsIBMPC() = %d, expected 18", sectorCount)
	}
}

func TestEncodeTrackIBMPC_CountSectors(t *testing.T) {
	testCases := []struct {
		name            string
		sectorsPerTrack int
	}{
		{"9 sectors", 9},
		{"15 sectors", 15},
		{"18 sectors", 18},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Create sectors filled with 0x0f (512 bytes each)
			sectors := make([][]byte, tc.sectorsPerTrack)
			for i := 0; i < tc.sectorsPerTrack; i++ {
				sectorData := make([]byte, 512)
				for j := range sectorData {
					sectorData[j] = 0x0f
				}
				sectors[i] = sectorData
			}

			// Encode track (cylinder 0, head 0) at 500kbps
			writer := mfm.NewWriter(200000)
			encodedTrack := writer.EncodeTrackIBMPC(sectors, 0, 0, tc.sectorsPerTrack, 500)

			// Verify encoded track is not empty
			if len(encodedTrack) == 0 {
				t.Fatalf("EncodeTrackIBMPC() returned empty track data")
			}

			// Count sectors using CountSectorsIBMPC
			sectorCount := mfm.NewReader(encodedTrack).CountSectorsIBMPC()

			// Assert that the count matches the expected number
			if sectorCount != tc.sectorsPerTrack {
				t.Errorf("CountSectorsIBMPC() = %d, expected %d", sectorCount, tc.sectorsPerTrack)
			}
		})
	}
}
