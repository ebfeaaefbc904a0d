package tilekern

// The two-dimensional scheme distributes the inner reduction when Nx is
// small relative to the parallelism budget and Ny is deep enough to split: a (ceil(nx/B), ceil(ny/B)) grid
// computes one partial accumulator per (i, j-tile), and a second kernel
// folds the ceil(ny/B) partials of each row with the descriptor's own
// merge. Because combine is associative and commutative up to
// floating-point reassociation, the result matches the 1D scheme.

// tile2DKernel computes partial reductions. Block (bi, bj) owns the i-range
// of block bi and the single j-tile starting at bj*B; its per-thread
// accumulators are written to partials with layout [bj][i][dimRed].
func tile2DKernel[T Scalar, R reducer[T]](red R, f Formula[T], params, xs, ys, bs, partials []T, dimPoint, dimVect, nx, ny int) BlockKernel {
	recLen := dimPoint + dimVect
	dimRed, dimAcc := red.dims(dimVect)
	regLen := dimPoint + dimAcc

	return func(blk BlockID, shared, local []byte) {
		blockSize := blk.BlockDim.X
		tile := scalarView[T](shared)[:blockSize*recLen:blockSize*recLen]
		regs := scalarView[T](local)[:blockSize*regLen:blockSize*regLen]
		base := blk.BlockIdx.X * blockSize
		jstart := blk.BlockIdx.Y * blockSize
		jcount := min(blockSize, ny-jstart)

		for tid := 0; tid < blockSize; tid++ {
			i := base + tid
			if i >= nx {
				continue
			}
			r := regs[tid*regLen : (tid+1)*regLen]
			copy(r[:dimPoint], xs[i*dimPoint:(i+1)*dimPoint])
			red.initAcc(r[dimPoint:])
		}

		// Load phase for the block's single tile.
		for tid := 0; tid < jcount; tid++ {
			j := jstart + tid
			rec := tile[tid*recLen : (tid+1)*recLen]
			copy(rec[:dimPoint], ys[j*dimPoint:(j+1)*dimPoint])
			copy(rec[dimPoint:], bs[j*dimVect:(j+1)*dimVect])
		}

		// Consume phase.
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
			// Partial rows carry the reduced state only; compensation
			// scalars are local to this block's pass.
			row := (blk.BlockIdx.Y*nx + i) * dimRed
			copy(partials[row:row+dimRed], acc[:dimRed])
		}
	}
}

// combinePartialsKernel is the second pass: a 1D grid over i folding the
// pcount partials of each row and finalizing into the output. It reuses the
// descriptor's merge rather than a bespoke accumulator.
func combinePartialsKernel[T Scalar, R reducer[T]](red R, partials, outs []T, dimVect, nx, pcount int) BlockKernel {
	dimRed, dimAcc := red.dims(dimVect)

	return func(blk BlockID, _, local []byte) {
		blockSize := blk.BlockDim.X
		regs := scalarView[T](local)[:blockSize*dimAcc:blockSize*dimAcc]
		base := blk.BlockIdx.X * blockSize

		for tid := 0; tid < blockSize; tid++ {
			i := base + tid
			if i >= nx {
				continue
			}
			acc := regs[tid*dimAcc : (tid+1)*dimAcc]
			red.initAcc(acc)
			for p := 0; p < pcount; p++ {
				row := (p*nx + i) * dimRed
				red.merge(acc, partials[row:row+dimRed])
			}
			red.finalize(acc, outs[i*dimRed:(i+1)*dimRed])
		}
	}
}
