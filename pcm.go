package rxbridge

import "math"

const (
	wavFormatPCM = 1
	// BitDepth is the sample width of every exchange file.
	BitDepth = 24

	scalePCMInt16 = 32768.0
	scalePCMInt24 = 8388608.0
	scalePCMInt32 = 2147483648.0
	maxPCMInt24   = 8388607
)

func clampFloat64(value, min, max float64) float64 {
	if value < min {
		return min
	}

	if value > max {
		return max
	}

	return value
}

func normalizePCMInt(sample int, bitDepth int) float64 {
	switch bitDepth {
	case 16:
		return float64(sample) / scalePCMInt16
	case 24:
		return float64(sample) / scalePCMInt24
	case 32:
		return float64(sample) / scalePCMInt32
	default:
		return 0
	}
}

// quantize clamps value to [-1, 1] and scales it to a signed 24-bit integer,
// rounding half away from zero.
func quantize(value float64) int32 {
	value = clampFloat64(value, -1, 1)
	sample := min(int64(math.Round(value*scalePCMInt24)), maxPCMInt24)

	if low := int64(-scalePCMInt24); sample < low {
		sample = low
	}

	return int32(sample)
}
