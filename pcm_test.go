package rxbridge

import (
	"math"
	"testing"
)

func TestClampFloat64(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		min, max float64
		want     float64
	}{
		{"below min", -2, -1, 1, -1},
		{"at min", -1, -1, 1, -1},
		{"in range", 0.5, -1, 1, 0.5},
		{"at max", 1, -1, 1, 1},
		{"above max", 2, -1, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := clampFloat64(tt.value, tt.min, tt.max)
			if got != tt.want {
				t.Fatalf("clampFloat64(%f, %f, %f)=%f, want %f", tt.value, tt.min, tt.max, got, tt.want)
			}
		})
	}
}

func TestQuantize(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		want  int32
	}{
		{"full scale", 1, maxPCMInt24},
		{"negative full scale", -1, -8388608},
		{"zero", 0, 0},
		{"half", 0.5, 4194304},
		{"clipped", 1.7, maxPCMInt24},
		{"negative clipped", -3, -8388608},
		{"half step rounds away from zero", 1.5 / scalePCMInt24, 2},
		{"negative half step rounds away from zero", -1.5 / scalePCMInt24, -2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := quantize(tt.value)
			if got != tt.want {
				t.Fatalf("quantize(%g)=%d, want %d", tt.value, got, tt.want)
			}
		})
	}
}

func TestNormalizePCMInt(t *testing.T) {
	tests := []struct {
		name     string
		sample   int
		bitDepth int
		want     float64
	}{
		{"16bit max", 32767, 16, 0.999969482},
		{"24bit min", -8388608, 24, -1},
		{"24bit zero", 0, 24, 0},
		{"32bit zero", 0, 32, 0},
		{"unsupported bit depth", 100, 48, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizePCMInt(tt.sample, tt.bitDepth)
			if math.Abs(got-tt.want) > 1e-6 {
				t.Fatalf("normalizePCMInt(%d, %d)=%f, want %f", tt.sample, tt.bitDepth, got, tt.want)
			}
		})
	}
}
