package tilekern

// GenerateScalars produces deterministic test data in [0, 1) using a linear
// congruential generator, so tests reproduce bit-identically across runs.
func GenerateScalars[T Scalar](size int, seed uint64) []T {
	data := make([]T, size)
	rng := seed
	for i := range data {
		rng = rng*1103515245 + 12345
		data[i] = T(float64(uint32(rng)) / float64(1<<32))
	}
	return data
}

// GenerateScalarsRange produces deterministic test data in [lo, hi).
func GenerateScalarsRange[T Scalar](size int, seed uint64, lo, hi T) []T {
	data := GenerateScalars[T](size, seed)
	for i := range data {
		data[i] = data[i]*(hi-lo) + lo
	}
	return data
}

// GeneratePointCloud produces n points of the given dimension with
// coordinates in [-1, 1), deterministically from the seed.
func GeneratePointCloud[T Scalar](n, dim int, seed uint64) []T {
	return GenerateScalarsRange[T](n*dim, seed, -1, 1)
}
