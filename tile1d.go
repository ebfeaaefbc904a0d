package tilekern

// tile1DKernel builds the one-dimensional tiling scheme: a 1D grid of
// ceil(nx/B) blocks of B threads, thread global index i owning output row i.
// Each thread pins x_i and its accumulator in the block's register file and
// the block streams B-wide tiles of interleaved (y_j, b_j) records through
// shared memory, so every y element is fetched from global memory exactly
// once per block.
//
// The shared region is a flat scalar array of B records with stride
// dimPoint+dimVect; the record discipline is a contract, not a data
// structure. Threads within a block execute phase by phase: the boundary
// between the cooperative-load loop and the consume loop is the post-load
// barrier, and the end of the consume loop is the barrier protecting the
// next tile's load.
func tile1DKernel[T Scalar, R reducer[T]](red R, f Formula[T], params, xs, ys, bs, outs []T, dimPoint, dimVect, nx, ny int) BlockKernel {
	recLen := dimPoint + dimVect
	dimRed, dimAcc := red.dims(dimVect)
	regLen := dimPoint + dimAcc

	return func(blk BlockID, shared, local []byte) {
		blockSize := blk.BlockDim.X
		tile := scalarView[T](shared)[:blockSize*recLen:blockSize*recLen]
		regs := scalarView[T](local)[:blockSize*regLen:blockSize*regLen]
		base := blk.BlockIdx.X * blockSize

		for tid := 0; tid < blockSize; tid++ {
			i := base + tid
			if i >= nx {
				continue
			}
			r := regs[tid*regLen : (tid+1)*regLen]
			copy(r[:dimPoint], xs[i*dimPoint:(i+1)*dimPoint])
			red.initAcc(r[dimPoint:])
		}

		for jstart := 0; jstart < ny; jstart += blockSize {
			jcount := min(blockSize, ny-jstart)

			// Load phase: thread tid stages record (y_{jstart+tid}, b_{jstart+tid}).
			for tid := 0; tid < jcount; tid++ {
				j := jstart + tid
				rec := tile[tid*recLen : (tid+1)*recLen]
				copy(rec[:dimPoint], ys[j*dimPoint:(j+1)*dimPoint])
				copy(rec[dimPoint:], bs[j*dimVect:(j+1)*dimVect])
			}

			// Consume phase: each thread folds the whole staged tile.
			for tid := 0; tid < blockSize; tid++ {
				i := base + tid
				if i >= nx {
					continue
				}
				r := regs[tid*regLen : (tid+1)*regLen]
				xi := r[:dimPoint]
				acc := r[dimPoint:]
				for jrel := 0; jrel < jcount; jrel++ {
					rec := tile[jrel*recLen : (jrel+1)*recLen]
					w := f(xi, rec[:dimPoint], params)
					red.combine(acc, w, rec[dimPoint:])
				}
			}
		}

		for tid := 0; tid < blockSize; tid++ {
			i := base + tid
			if i >= nx {
				continue
			}
			acc := regs[tid*regLen+dimPoint : (tid+1)*regLen]
			red.finalize(acc, outs[i*dimRed:(i+1)*dimRed])
		}
	}
}

// tile1DShared returns the shared-memory request of the 1D scheme in
// scalars: B interleaved (y, b) records.
func tile1DShared(blockSize, dimPoint, dimVect int) int {
	return blockSize * (dimPoint + dimVect)
}

// tile1DLocal returns the register-file request in scalars: per thread, the
// pinned x_i plus the accumulator (with any compensation tail).
func tile1DLocal[T Scalar, R reducer[T]](red R, blockSize, dimPoint, dimVect int) int {
	_, dimAcc := red.dims(dimVect)
	return blockSize * (dimPoint + dimAcc)
}
