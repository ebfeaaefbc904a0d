// Package tilekern is a tiled reduction engine for kernel sums over point
// clouds. Given two point clouds x (Nx points) and y (Ny points), an optional
// per-y payload b, and a scalar evaluator f(x_i, y_j, params), it computes for
// every i a reduction over all j without ever materializing the Nx×Ny matrix:
// either the plain weighted sum
//
//	gamma_i = sum_j f(x_i, y_j) * b_j
//
// or the numerically stable max-shifted exponential pair
//
//	(m_i, s_i) = (max_j f_ij, sum_j exp(f_ij - m_i) * b_j)
//
// which underlies overflow-free log-sum-exp and softmax.
//
// The engine follows a CUDA-style execution model run on the CPU: a Context
// owns device memory and ordered streams, kernels are launched over a grid of
// fixed-size thread blocks, and the tile-loop kernels stream interleaved
// (y_j, b_j) records through a per-block shared region while each thread keeps
// its x_i and accumulator in thread-private storage.
//
// Example:
//
//	f := tilekern.GaussKernel[float32]()
//	out := make([]float32, nx)
//	st := tilekern.EvaluateSum(f, []float32{0.5}, x, y, b, out, 3, 1, nx, ny)
//	if st != tilekern.StatusSuccess {
//		log.Fatal(st)
//	}
package tilekern
