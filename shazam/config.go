package shazam

const (
	// SampleRateHz is the only rate the generator accepts input at.
	SampleRateHz = 16000

	// MaxAudioDurationSecs bounds the window handed to the generator.
	MaxAudioDurationSecs = 12

	fftSize       = 2048
	hopSize       = 128
	fftBins       = fftSize/2 + 1
	ringLength    = 256
	ringMask      = ringLength - 1
	peakLookback  = 46
	spreadLookbk  = 49
	minMagnitude  = 1e-10
	minPeakEnergy = 1.0 / 64.0
)

// frequency band edges in Hz, inclusive on both ends
var bandRanges = [...]struct {
	band   FrequencyBand
	lo, hi int
}{
	{Band250To520, 250, 519},
	{Band520To1450, 520, 1449},
	{Band1450To3500, 1450, 3499},
	{Band3500To5500, 3500, 5500},
}

var (
	neighborOffsets = [...]int{-10, -7, -4, -3, 1, 2, 5, 8}
	adjacentOffsets = [...]int{-53, -45, 165, 172, 179, 186, 193, 200, 214, 221, 228, 235, 242, 249}
	spreadOffsets   = [...]int{1, 3, 6}
)

func bandForHz(hz int) (FrequencyBand, bool) {
	for _, r := range bandRanges {
		if hz >= r.lo && hz <= r.hi {
			return r.band, true
		}
	}
	return 0, false
}
