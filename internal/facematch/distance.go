package facematch

import (
	"fmt"
	"math"
)

// EuclideanDistance computes the L2 distance between two descriptors.
// Accumulates in float64 so the result is symmetric and exact for d == d.
func EuclideanDistance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// Confidence converts a distance to a presentation confidence rounded to 2 places.
func Confidence(distance float64) float64 {
	c := 1 - distance
	if c < 0 {
		c = 0
	}
	return math.Round(c*100) / 100
}

// ValidateDescriptor checks that a descriptor has the expected length and
// only finite values.
func ValidateDescriptor(d []float32, dim int) error {
	if len(d) != dim {
		return fmt.Errorf("%w: expected %d values, got %d", ErrDimensionMismatch, dim, len(d))
	}
	for i, v := range d {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("descriptor value %d is not finite", i)
		}
	}
	return nil
}
