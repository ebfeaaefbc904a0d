package tilekern

import (
	"fmt"
	"unsafe"
)

// Scheme selects the tiling strategy of an evaluation.
type Scheme int

const (
	// SchemeAuto picks 1D or 2D from the problem shape.
	SchemeAuto Scheme = iota
	// Scheme1D is one thread per output row, streaming all of y.
	Scheme1D
	// Scheme2D is block-per-(i-tile, j-tile) with a partial-combine pass.
	Scheme2D
)

// Options are the per-call knobs of the launch wrapper. The zero value is
// the default configuration.
type Options struct {
	// BlockSize is the threads-per-block count B, which is also the tile
	// width. Zero selects DefaultBlockSize.
	BlockSize int
	// Scheme selects the tiling strategy.
	Scheme Scheme
	// Context supplies a caller-owned context; nil uses the shared default.
	Context *Context
}

// supportedDims enumerates the (dimPoint, dimVect) pairs the engine
// instantiates. Anything outside the table is rejected before any device
// allocation.
var supportedDims = map[[2]int]bool{
	{1, 1}: true, {1, 2}: true, {1, 3}: true,
	{2, 1}: true, {2, 2}: true, {2, 3}: true,
	{3, 1}: true, {3, 2}: true, {3, 3}: true,
}

// DimsSupported reports whether the (dimPoint, dimVect) pair is in the
// enumerated instantiation set.
func DimsSupported(dimPoint, dimVect int) bool {
	return supportedDims[[2]int{dimPoint, dimVect}]
}

// EvaluateSum computes out[i] = sum_j f(x_i, y_j, params) * b[j] for every i.
// Arrays are dense row-major: x is nx×dimPoint, y is ny×dimPoint, b is
// ny×dimVect, out is nx×dimVect. A nil b is the unit payload (dimVect 1).
// The call blocks until the result is in out.
func EvaluateSum[T Scalar](f Formula[T], params, x, y, b, out []T, dimPoint, dimVect, nx, ny int) Status {
	return EvaluateSumOpts(f, params, x, y, b, out, dimPoint, dimVect, nx, ny, Options{})
}

// EvaluateSumOpts is EvaluateSum with explicit launch options.
func EvaluateSumOpts[T Scalar](f Formula[T], params, x, y, b, out []T, dimPoint, dimVect, nx, ny int, opts Options) Status {
	return statusOf(evaluate[T](sumReducer[T]{}, f, params, x, y, b, out, dimPoint, dimVect, nx, ny, opts))
}

// EvaluateSumKahan is the sum family with compensated accumulation.
func EvaluateSumKahan[T Scalar](f Formula[T], params, x, y, b, out []T, dimPoint, dimVect, nx, ny int) Status {
	return statusOf(evaluate[T](sumKahanReducer[T]{}, f, params, x, y, b, out, dimPoint, dimVect, nx, ny, Options{}))
}

// EvaluateMaxShiftExp computes the numerically stable coupled pair
//
//	out[i] = (m_i, s_i) = (max_j f_ij, sum_j exp(f_ij - m_i) * b[j])
//
// writing 1+dimVect scalars per row. The downstream m + log(s) flattening
// for log-sum-exp is the caller's job. A nil b is the unit payload.
func EvaluateMaxShiftExp[T Scalar](f Formula[T], params, x, y, b, out []T, dimPoint, dimVect, nx, ny int) Status {
	return EvaluateMaxShiftExpOpts(f, params, x, y, b, out, dimPoint, dimVect, nx, ny, Options{})
}

// EvaluateMaxShiftExpOpts is EvaluateMaxShiftExp with explicit launch options.
func EvaluateMaxShiftExpOpts[T Scalar](f Formula[T], params, x, y, b, out []T, dimPoint, dimVect, nx, ny int, opts Options) Status {
	return statusOf(evaluate[T](maxShiftExpReducer[T]{}, f, params, x, y, b, out, dimPoint, dimVect, nx, ny, opts))
}

// EvaluateMaxShiftExpKahan is the max-shifted-exp family with compensated
// accumulation of the rescaled sum component.
func EvaluateMaxShiftExpKahan[T Scalar](f Formula[T], params, x, y, b, out []T, dimPoint, dimVect, nx, ny int) Status {
	return statusOf(evaluate[T](maxShiftExpKahanReducer[T]{}, f, params, x, y, b, out, dimPoint, dimVect, nx, ny, Options{}))
}

// EvaluateSumHalf is EvaluateSum over binary16 storage. Inputs widen to
// float32 at the boundary, the float32 instantiation runs, and the result
// narrows back into out.
func EvaluateSumHalf(f Formula[float32], params []float32, x, y, b, out []Float16, dimPoint, dimVect, nx, ny int) Status {
	outs := make([]float32, len(out))
	st := EvaluateSum(f, params, halfToFloat32(x), halfToFloat32(y), halfToFloat32(b), outs, dimPoint, dimVect, nx, ny)
	if st.Ok() {
		float32ToHalf(out, outs)
	}
	return st
}

// EvaluateMaxShiftExpHalf is EvaluateMaxShiftExp over binary16 storage.
func EvaluateMaxShiftExpHalf(f Formula[float32], params []float32, x, y, b, out []Float16, dimPoint, dimVect, nx, ny int) Status {
	outs := make([]float32, len(out))
	st := EvaluateMaxShiftExp(f, params, halfToFloat32(x), halfToFloat32(y), halfToFloat32(b), outs, dimPoint, dimVect, nx, ny)
	if st.Ok() {
		float32ToHalf(out, outs)
	}
	return st
}

// evaluate is the launch wrapper: it validates shapes, owns the device
// buffers for exactly the duration of the call, copies inputs in, dispatches
// to the tiling scheme, synchronizes, and copies the output back. Every
// device buffer is released on every exit path. Input buffers are not
// zero-initialized before the copy: each is exactly sized and the copy
// covers every byte.
func evaluate[T Scalar, R reducer[T]](red R, f Formula[T], params, x, y, b, out []T, dimPoint, dimVect, nx, ny int, opts Options) (err error) {
	const op = "Evaluate"

	if !DimsSupported(dimPoint, dimVect) {
		return newDispatchError(op, fmt.Sprintf("no kernel instantiation for dimensions (%d, %d)", dimPoint, dimVect))
	}
	if nx < 0 || ny < 0 {
		return newInvalidArgError(op, fmt.Sprintf("negative point count (%d, %d)", nx, ny))
	}
	if f == nil {
		return newInvalidArgError(op, "nil formula")
	}
	if b == nil {
		if dimVect != 1 {
			return newInvalidArgError(op, "nil payload requires dimVect 1")
		}
		b = make([]T, ny)
		for j := range b {
			b[j] = 1
		}
	}
	dimRed, _ := red.dims(dimVect)
	if len(x) < nx*dimPoint || len(y) < ny*dimPoint || len(b) < ny*dimVect {
		return newInvalidArgError(op, "input array shorter than declared shape")
	}
	if len(out) < nx*dimRed {
		return newInvalidArgError(op, "output array shorter than nx rows of the reduced dimension")
	}

	blockSize := opts.BlockSize
	if blockSize == 0 {
		blockSize = DefaultBlockSize
	}
	if !validBlockSize(blockSize) {
		return newInvalidArgError(op, fmt.Sprintf("invalid block size %d", blockSize))
	}
	ctx := opts.Context
	if ctx == nil {
		ctx = defaultContext
	}

	scheme := opts.Scheme
	if scheme == SchemeAuto {
		scheme = pickScheme(nx, ny, blockSize)
	}
	pcount := 0
	if scheme == Scheme2D {
		pcount = (ny + blockSize - 1) / blockSize
	}

	es := scalarSize[T]()

	// Device buffers live from here to return, on every path.
	var owned []DevicePtr
	defer func() {
		for _, d := range owned {
			ctx.Free(d)
		}
	}()
	alloc := func(scalars int) (DevicePtr, error) {
		if scalars == 0 {
			return DevicePtr{}, nil
		}
		d, aerr := ctx.Malloc(scalars * es)
		if aerr != nil {
			return DevicePtr{}, aerr
		}
		owned = append(owned, d)
		return d, nil
	}

	dParams, err := alloc(len(params))
	if err != nil {
		return err
	}
	dX, err := alloc(nx * dimPoint)
	if err != nil {
		return err
	}
	dY, err := alloc(ny * dimPoint)
	if err != nil {
		return err
	}
	dB, err := alloc(ny * dimVect)
	if err != nil {
		return err
	}
	dOut, err := alloc(nx * dimRed)
	if err != nil {
		return err
	}
	dPart, err := alloc(pcount * nx * dimRed)
	if err != nil {
		return err
	}

	h2d := func(d DevicePtr, src []T, scalars int) error {
		if scalars == 0 {
			return nil
		}
		if cerr := ctx.Memcpy(d, hostBytes(src[:scalars]), scalars*es, MemcpyHostToDevice); cerr != nil {
			return newTransferError(op, "host to device copy", cerr)
		}
		return nil
	}
	if err = h2d(dParams, params, len(params)); err != nil {
		return err
	}
	if err = h2d(dX, x, nx*dimPoint); err != nil {
		return err
	}
	if err = h2d(dY, y, ny*dimPoint); err != nil {
		return err
	}
	if err = h2d(dB, b, ny*dimVect); err != nil {
		return err
	}

	ps := deviceView[T](dParams)
	xs := deviceView[T](dX)
	ys := deviceView[T](dY)
	bs := deviceView[T](dB)
	outs := deviceView[T](dOut)

	block := Dim3{X: blockSize, Y: 1, Z: 1}
	gx := (nx + blockSize - 1) / blockSize
	sharedBytes := tile1DShared(blockSize, dimPoint, dimVect) * es
	localBytes := tile1DLocal[T](red, blockSize, dimPoint, dimVect) * es

	switch scheme {
	case Scheme1D:
		kernel := tile1DKernel(red, f, ps, xs, ys, bs, outs, dimPoint, dimVect, nx, ny)
		if lerr := ctx.LaunchBlocks(kernel, Dim3{X: gx, Y: 1, Z: 1}, block, sharedBytes, localBytes); lerr != nil {
			return lerr
		}
	case Scheme2D:
		parts := deviceView[T](dPart)
		partial := tile2DKernel(red, f, ps, xs, ys, bs, parts, dimPoint, dimVect, nx, ny)
		if lerr := ctx.LaunchBlocks(partial, Dim3{X: gx, Y: pcount, Z: 1}, block, sharedBytes, localBytes); lerr != nil {
			return lerr
		}
		_, dimAcc := red.dims(dimVect)
		combine := combinePartialsKernel(red, parts, outs, dimVect, nx, pcount)
		if lerr := ctx.LaunchBlocks(combine, Dim3{X: gx, Y: 1, Z: 1}, block, 0, blockSize*dimAcc*es); lerr != nil {
			return lerr
		}
	}

	if serr := ctx.defaultStream.Synchronize(); serr != nil {
		return serr
	}

	if nx*dimRed > 0 {
		if cerr := ctx.Memcpy(hostBytes(out[:nx*dimRed]), dOut, nx*dimRed*es, MemcpyDeviceToHost); cerr != nil {
			return newTransferError(op, "device to host copy", cerr)
		}
	}
	return nil
}

// pickScheme chooses the tiling strategy: the 2D split pays off when the
// grid of i-blocks cannot fill the device on its own and the j range is
// deep enough to shard.
func pickScheme(nx, ny, blockSize int) Scheme {
	if nx < workerCount()*blockSize && ny >= 4*blockSize {
		return Scheme2D
	}
	return Scheme1D
}

// hostBytes views a host scalar slice as raw bytes for transfer.
func hostBytes[T Scalar](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*scalarSize[T]())
}
