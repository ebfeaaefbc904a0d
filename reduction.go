package tilekern

// A reducer describes one reduction family through four device-callable
// operations: neutral-element initialization, pair combine, partial merge,
// and finalization. Reducers are stateless value types; kernels take the
// concrete reducer as a type parameter so every (family, precision)
// combination is a distinct monomorphic instantiation with no indirection
// on the hot path.
//
// Accumulator layout: the first dimRed scalars are the reduced state that
// partials and outputs carry; Kahan variants append their compensation
// scalars after it, so one flat thread-private array holds both.
//
// One combine signature serves the per-sample fold and the 2D partial
// merge. A sample folds as (w, v): the scalar formula value and the payload
// vector. A sum partial merges as (1, partial); a max-shifted-exp partial
// merges as (partial[0], partial[1:]). This uniformity is what lets the 2D
// second pass reuse the descriptor unchanged.
type reducer[T Scalar] interface {
	// dims returns the reduced-state width and the full accumulator width
	// (reduced state plus compensation) for a payload of dimVect scalars.
	dims(dimVect int) (dimRed, dimAcc int)

	// initAcc sets the accumulator to the neutral element.
	initAcc(acc []T)

	// combine folds the pair (w, v) into the accumulator.
	combine(acc []T, w T, v []T)

	// merge folds a partial accumulator of width dimRed into acc.
	merge(acc, partial []T)

	// finalize writes the reduced state to one output row.
	finalize(acc, out []T)
}

// sumReducer computes gamma = sum_j w_j * v_j.
type sumReducer[T Scalar] struct{}

func (sumReducer[T]) dims(dimVect int) (int, int) { return dimVect, dimVect }

func (sumReducer[T]) initAcc(acc []T) { clear(acc) }

func (sumReducer[T]) combine(acc []T, w T, v []T) {
	for k, vk := range v {
		acc[k] += w * vk
	}
}

func (sumReducer[T]) merge(acc, partial []T) {
	for k, pk := range partial {
		acc[k] += pk
	}
}

func (sumReducer[T]) finalize(acc, out []T) { copy(out, acc[:len(out)]) }

// sumKahanReducer is the sum family with compensated addition. The
// compensation is applied to the incoming term, so the no-loss path costs
// three extra subtractions over plain addition.
type sumKahanReducer[T Scalar] struct{}

func (sumKahanReducer[T]) dims(dimVect int) (int, int) { return dimVect, 2 * dimVect }

func (sumKahanReducer[T]) initAcc(acc []T) { clear(acc) }

func (sumKahanReducer[T]) combine(acc []T, w T, v []T) {
	comp := acc[len(v):]
	for k, vk := range v {
		a := w*vk - comp[k]
		b := acc[k] + a
		comp[k] = (b - acc[k]) - a
		acc[k] = b
	}
}

func (sumKahanReducer[T]) merge(acc, partial []T) {
	comp := acc[len(partial):]
	for k, pk := range partial {
		a := pk - comp[k]
		b := acc[k] + a
		comp[k] = (b - acc[k]) - a
		acc[k] = b
	}
}

func (sumKahanReducer[T]) finalize(acc, out []T) { copy(out, acc[:len(out)]) }

// maxShiftExpReducer computes the coupled pair
//
//	(m, s) = (max_j w_j, sum_j exp(w_j - m) * v_j)
//
// holding the invariant acc[0] = max over processed w and
// acc[1:] = sum exp(w - acc[0]) * v after every combine. Both rescale
// branches exponentiate a non-positive argument, so exp never overflows.
type maxShiftExpReducer[T Scalar] struct{}

func (maxShiftExpReducer[T]) dims(dimVect int) (int, int) { return 1 + dimVect, 1 + dimVect }

func (maxShiftExpReducer[T]) initAcc(acc []T) {
	// (-inf, 0) is the neutral element: exp(-inf) * 0 = 0.
	acc[0] = negInf[T]()
	clear(acc[1:])
}

func (maxShiftExpReducer[T]) combine(acc []T, w T, v []T) {
	if acc[0] > w {
		t := expS(w - acc[0])
		for k, vk := range v {
			acc[1+k] += vk * t
		}
	} else {
		// Equal maxima (including two empty -inf accumulators) need no
		// rescale; computing exp(acc[0]-w) there would produce exp(NaN).
		t := T(1)
		if acc[0] != w {
			t = expS(acc[0] - w)
		}
		for k, vk := range v {
			acc[1+k] = vk + t*acc[1+k]
		}
		acc[0] = w
	}
}

func (r maxShiftExpReducer[T]) merge(acc, partial []T) {
	r.combine(acc, partial[0], partial[1:])
}

func (maxShiftExpReducer[T]) finalize(acc, out []T) {
	// The pair (m, s) is written verbatim; m + log(s) is the caller's job.
	copy(out, acc[:len(out)])
}

// maxShiftExpKahanReducer adds compensated summation to the rescaled sum
// component. The running maximum needs no compensation.
type maxShiftExpKahanReducer[T Scalar] struct{}

func (maxShiftExpKahanReducer[T]) dims(dimVect int) (int, int) {
	return 1 + dimVect, 1 + 2*dimVect
}

func (maxShiftExpKahanReducer[T]) initAcc(acc []T) {
	acc[0] = negInf[T]()
	clear(acc[1:])
}

func (maxShiftExpKahanReducer[T]) combine(acc []T, w T, v []T) {
	comp := acc[1+len(v):]
	if acc[0] > w {
		t := expS(w - acc[0])
		for k, vk := range v {
			a := vk*t - comp[k]
			b := acc[1+k] + a
			comp[k] = (b - acc[1+k]) - a
			acc[1+k] = b
		}
	} else {
		t := T(1)
		if acc[0] != w {
			t = expS(acc[0] - w)
		}
		for k, vk := range v {
			u := t * acc[1+k]
			a := vk - t*comp[k]
			b := u + a
			comp[k] = (b - u) - a
			acc[1+k] = b
		}
		acc[0] = w
	}
}

func (r maxShiftExpKahanReducer[T]) merge(acc, partial []T) {
	r.combine(acc, partial[0], partial[1:])
}

func (maxShiftExpKahanReducer[T]) finalize(acc, out []T) {
	copy(out, acc[:len(out)])
}
