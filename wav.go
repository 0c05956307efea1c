package rxbridge

import "math"

func bytesPerSample(bitDepth int) int {
	return (bitDepth-1)/8 + 1
}

// framesForDuration returns the number of sample frames needed to cover
// seconds at sampleRate, rounding up.
func framesForDuration(seconds float64, sampleRate int) int {
	if seconds <= 0 || sampleRate <= 0 {
		return 0
	}

	return int(math.Ceil(seconds*float64(sampleRate) - 1e-9))
}

// frameAt converts a time offset to the nearest frame index.
func frameAt(seconds float64, sampleRate int) int {
	return int(math.Round(seconds * float64(sampleRate)))
}
