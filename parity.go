package tilekern

import (
	"math"
)

// ULPDiff returns the distance between a and b in units in the last place
// of the working precision. Differing signs or any NaN report MaxInt32.
func ULPDiff[T Scalar](a, b T) int {
	if a == b {
		return 0
	}
	if math.IsNaN(float64(a)) || math.IsNaN(float64(b)) {
		return math.MaxInt32
	}

	switch any(a).(type) {
	case float32:
		ab := math.Float32bits(float32(a))
		bb := math.Float32bits(float32(b))
		if (ab^bb)&0x80000000 != 0 {
			return math.MaxInt32
		}
		if ab > bb {
			return int(ab - bb)
		}
		return int(bb - ab)
	default:
		ab := math.Float64bits(float64(a))
		bb := math.Float64bits(float64(b))
		if (ab^bb)&0x8000000000000000 != 0 {
			return math.MaxInt32
		}
		d := ab - bb
		if bb > ab {
			d = bb - ab
		}
		if d > math.MaxInt32 {
			return math.MaxInt32
		}
		return int(d)
	}
}

// NumericalParity accumulates error statistics over a stream of
// (expected, actual) pairs, for reporting worst-case behavior of a kernel
// against a reference.
type NumericalParity struct {
	MaxAbsError float64
	MaxRelError float64
	MaxULPError int
	NumErrors   int
}

// Compare folds one pair into the statistics.
func (np *NumericalParity) Compare(expected, actual float64) {
	abs := math.Abs(expected - actual)
	if abs > np.MaxAbsError {
		np.MaxAbsError = abs
	}
	if expected != 0 {
		if rel := abs / math.Abs(expected); rel > np.MaxRelError {
			np.MaxRelError = rel
		}
	}
	if ulp := ULPDiff(expected, actual); ulp > np.MaxULPError {
		np.MaxULPError = ulp
	}
	if abs > 1e-6 || (expected != 0 && abs/math.Abs(expected) > 1e-5) {
		np.NumErrors++
	}
}

// CompareSlices folds two slices pairwise, up to the shorter length.
func (np *NumericalParity) CompareSlices(expected, actual []float64) {
	n := min(len(expected), len(actual))
	for i := 0; i < n; i++ {
		np.Compare(expected[i], actual[i])
	}
}
