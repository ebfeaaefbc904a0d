// Package tilekern tolerance-based verification for floating-point results.
package tilekern

import (
	"fmt"
	"math"
)

// ToleranceConfig defines the acceptance envelope for comparing computed
// values against a reference.
type ToleranceConfig struct {
	// AbsTol is the absolute tolerance for values near zero.
	AbsTol float64
	// RelTol is the relative tolerance as a fraction of the larger value.
	RelTol float64
	// ULPTol is the maximum allowed distance in units in the last place.
	ULPTol int
	// MatchSpecial treats NaN==NaN and same-signed infinities as equal.
	MatchSpecial bool
}

// DefaultTolerance suits single-precision reductions of moderate depth.
func DefaultTolerance() ToleranceConfig {
	return ToleranceConfig{AbsTol: 1e-7, RelTol: 1e-5, ULPTol: 4, MatchSpecial: true}
}

// RelaxedTolerance suits deep accumulations and scheme cross-checks.
func RelaxedTolerance() ToleranceConfig {
	return ToleranceConfig{AbsTol: 1e-5, RelTol: 1e-3, ULPTol: 64, MatchSpecial: true}
}

// NearEqual reports whether a and b agree within the tolerance envelope.
func NearEqual[T Scalar](a, b T, tol ToleranceConfig) bool {
	fa, fb := float64(a), float64(b)

	if tol.MatchSpecial {
		if math.IsNaN(fa) && math.IsNaN(fb) {
			return true
		}
		if math.IsInf(fa, 1) && math.IsInf(fb, 1) {
			return true
		}
		if math.IsInf(fa, -1) && math.IsInf(fb, -1) {
			return true
		}
	}
	if a == b {
		return true
	}
	// An infinity matches only an equal infinity, handled above.
	if math.IsInf(fa, 0) || math.IsInf(fb, 0) {
		return false
	}

	diff := math.Abs(fa - fb)
	if diff <= tol.AbsTol {
		return true
	}
	if diff <= math.Max(math.Abs(fa), math.Abs(fb))*tol.RelTol {
		return true
	}
	return tol.ULPTol > 0 && ULPDiff(a, b) <= tol.ULPTol
}

// VerificationResult summarizes an element-wise comparison.
type VerificationResult struct {
	MaxAbsError float64
	MaxRelError float64
	NumErrors   int
	TotalItems  int
	FirstError  int // index of first mismatch, -1 if none
}

// VerifySlice compares actual against expected element-wise.
func VerifySlice[T Scalar](expected, actual []T, tol ToleranceConfig) VerificationResult {
	r := VerificationResult{TotalItems: len(expected), FirstError: -1}
	if len(expected) != len(actual) {
		r.NumErrors = len(expected)
		return r
	}
	for i := range expected {
		if NearEqual(expected[i], actual[i], tol) {
			continue
		}
		r.NumErrors++
		if r.FirstError == -1 {
			r.FirstError = i
		}
		abs := math.Abs(float64(expected[i]) - float64(actual[i]))
		if abs > r.MaxAbsError {
			r.MaxAbsError = abs
		}
		if e := math.Abs(float64(expected[i])); e != 0 {
			if rel := abs / e; rel > r.MaxRelError {
				r.MaxRelError = rel
			}
		}
	}
	return r
}

func (r VerificationResult) String() string {
	if r.NumErrors == 0 {
		return fmt.Sprintf("all %d values within tolerance", r.TotalItems)
	}
	return fmt.Sprintf("%d/%d values differ (first at %d, max abs %.3g, max rel %.3g)",
		r.NumErrors, r.TotalItems, r.FirstError, r.MaxAbsError, r.MaxRelError)
}
