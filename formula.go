package tilekern

// Formula is a pure device-callable scalar evaluator f(x_i, y_j, params).
// x and y are single points of the enumerated point dimension; params is the
// broadcast parameter vector. The evaluator must be stateless: it runs
// concurrently from every worker.
type Formula[T Scalar] func(x, y, p []T) T

// SqDist returns the squared euclidean distance between two points. The
// dimensions enumerated by the dispatch table get unrolled fast paths.
func SqDist[T Scalar](x, y []T) T {
	switch len(x) {
	case 1:
		d := x[0] - y[0]
		return d * d
	case 2:
		d0 := x[0] - y[0]
		d1 := x[1] - y[1]
		return d0*d0 + d1*d1
	case 3:
		d0 := x[0] - y[0]
		d1 := x[1] - y[1]
		d2 := x[2] - y[2]
		return d0*d0 + d1*d1 + d2*d2
	}
	var r2 T
	for k := range x {
		d := x[k] - y[k]
		r2 += d * d
	}
	return r2
}

// Radial kernel zoo. Each evaluator takes the inverse squared bandwidth as
// params[0]; the argument of every exp is non-positive.

// GaussKernel returns exp(-oos2 * |x-y|^2).
func GaussKernel[T Scalar]() Formula[T] {
	return func(x, y, p []T) T {
		return expS(-p[0] * SqDist(x, y))
	}
}

// LaplaceKernel returns exp(-sqrt(oos2 * |x-y|^2)).
func LaplaceKernel[T Scalar]() Formula[T] {
	return func(x, y, p []T) T {
		return expS(-sqrtS(p[0] * SqDist(x, y)))
	}
}

// CauchyKernel returns 1 / (1 + oos2 * |x-y|^2).
func CauchyKernel[T Scalar]() Formula[T] {
	return func(x, y, p []T) T {
		return 1 / (1 + p[0]*SqDist(x, y))
	}
}

// InverseMultiquadricKernel returns 1 / sqrt(1 + oos2 * |x-y|^2).
func InverseMultiquadricKernel[T Scalar]() Formula[T] {
	return func(x, y, p []T) T {
		return 1 / sqrtS(1+p[0]*SqDist(x, y))
	}
}

// NegSqDistFormula returns -oos2 * |x-y|^2, the usual log-domain score for
// max-shifted-exp reductions: feeding it to EvaluateMaxShiftExp yields the
// (m, s) pair of a Gaussian log-sum-exp.
func NegSqDistFormula[T Scalar]() Formula[T] {
	return func(x, y, p []T) T {
		return -p[0] * SqDist(x, y)
	}
}
