package tilekern

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// Device describes the compute device backing the engine: the CPU, its
// cores, and detected SIMD capabilities.
type Device struct {
	ID       int
	Name     string
	TotalMem uint64
	NumCores int
	Features CPUFeatures
}

// Context owns device resources: the memory pool and execution streams.
// Create one per independent consumer, or use the package-level API which
// shares a default context.
type Context struct {
	device        *Device
	mu            sync.Mutex
	streams       map[int]*Stream
	streamID      int32
	memory        *MemoryPool
	defaultStream *Stream
}

// Stream is an ordered queue of device operations. Operations within a
// stream execute in submission order; distinct streams may overlap.
type Stream struct {
	id    int
	tasks chan func() error
	done  chan struct{}
	wg    sync.WaitGroup

	errMu sync.Mutex
	err   error // first failure since the last Synchronize
}

// Dim3 mirrors the three-dimensional grid and block shape of the launch
// configuration.
type Dim3 struct {
	X, Y, Z int
}

// Size returns the total element count of the shape.
func (d Dim3) Size() int { return d.X * d.Y * d.Z }

// ThreadID locates one thread within the launch hierarchy.
type ThreadID struct {
	BlockIdx  Dim3
	ThreadIdx Dim3
	BlockDim  Dim3
	GridDim   Dim3
}

// Global returns the linear global index along X.
func (tid ThreadID) Global() int {
	return tid.BlockIdx.X*tid.BlockDim.X + tid.ThreadIdx.X
}

// BlockID locates one block within the grid for block-granular kernels.
type BlockID struct {
	BlockIdx Dim3
	BlockDim Dim3
	GridDim  Dim3
}

// KernelFunc is a thread-granular kernel: invoked once per thread in the
// launch. Suited to map-style operations with no intra-block cooperation.
type KernelFunc func(tid ThreadID)

// BlockKernel is a block-granular kernel: invoked once per block with the
// block's shared memory region and a per-thread local region. The kernel
// iterates its own threads, which lets cooperative phases (tile load, tile
// consume) be separated by plain loop boundaries where a GPU would place
// barriers. Both regions are scratch reused across blocks on one worker;
// their contents are undefined on entry.
type BlockKernel func(blk BlockID, shared, local []byte)

var (
	defaultDevice  *Device
	defaultContext *Context
	initOnce       sync.Once
)

func init() {
	initOnce.Do(func() {
		defaultDevice = &Device{
			ID:       0,
			Name:     deviceName(),
			TotalMem: systemMemory(),
			NumCores: runtime.NumCPU(),
			Features: cpuFeatures,
		}
		defaultContext = NewContext()
	})
}

// NewContext creates a context with its own memory pool and default stream.
func NewContext() *Context {
	ctx := &Context{
		device:  defaultDevice,
		streams: make(map[int]*Stream),
		memory:  NewMemoryPool(),
	}
	ctx.defaultStream = ctx.CreateStream()
	return ctx
}

// Destroy shuts down the context's streams. Outstanding work is drained
// first.
func (ctx *Context) Destroy() {
	ctx.mu.Lock()
	streams := make([]*Stream, 0, len(ctx.streams))
	for _, s := range ctx.streams {
		streams = append(streams, s)
	}
	ctx.streams = make(map[int]*Stream)
	ctx.mu.Unlock()

	for _, s := range streams {
		s.wg.Wait()
		close(s.tasks)
		<-s.done
	}
}

// CreateStream creates a new execution stream owned by the context.
func (ctx *Context) CreateStream() *Stream {
	id := int(atomic.AddInt32(&ctx.streamID, 1))
	s := &Stream{
		id:    id,
		tasks: make(chan func() error, 64),
		done:  make(chan struct{}),
	}
	go s.worker()

	ctx.mu.Lock()
	ctx.streams[id] = s
	ctx.mu.Unlock()
	return s
}

// Device returns the device the context runs on.
func (ctx *Context) Device() *Device { return ctx.device }

// Synchronize waits for all streams owned by the context and returns the
// first recorded fault, if any.
func (ctx *Context) Synchronize() error {
	ctx.mu.Lock()
	streams := make([]*Stream, 0, len(ctx.streams))
	for _, s := range ctx.streams {
		streams = append(streams, s)
	}
	ctx.mu.Unlock()

	var first error
	for _, s := range streams {
		if err := s.Synchronize(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// worker drains the stream's task queue in order.
func (s *Stream) worker() {
	for task := range s.tasks {
		if err := task(); err != nil {
			s.errMu.Lock()
			if s.err == nil {
				s.err = err
			}
			s.errMu.Unlock()
		}
		s.wg.Done()
	}
	close(s.done)
}

// Submit enqueues a task on the stream.
func (s *Stream) Submit(task func() error) {
	s.wg.Add(1)
	s.tasks <- task
}

// Synchronize blocks until every submitted task has completed, then returns
// and clears the first fault recorded since the previous Synchronize.
func (s *Stream) Synchronize() error {
	s.wg.Wait()
	s.errMu.Lock()
	err := s.err
	s.err = nil
	s.errMu.Unlock()
	return err
}

// Launch enqueues a thread-granular kernel over grid×block on the default
// stream. The call returns once the work is queued; Synchronize observes
// completion and any fault.
func (ctx *Context) Launch(kernel KernelFunc, grid, block Dim3) error {
	return ctx.LaunchStream(kernel, grid, block, ctx.defaultStream)
}

// LaunchStream enqueues a thread-granular kernel on a specific stream.
func (ctx *Context) LaunchStream(kernel KernelFunc, grid, block Dim3, stream *Stream) error {
	if kernel == nil {
		return newInvalidArgError("Launch", "nil kernel")
	}
	if grid.Size() < 0 || block.Size() <= 0 {
		return newInvalidArgError("Launch", "non-positive launch configuration")
	}
	blockKernel := func(blk BlockID, _, _ []byte) {
		n := blk.BlockDim.Size()
		for t := 0; t < n; t++ {
			kernel(ThreadID{
				BlockIdx:  blk.BlockIdx,
				ThreadIdx: linearTo3D(t, blk.BlockDim),
				BlockDim:  blk.BlockDim,
				GridDim:   blk.GridDim,
			})
		}
	}
	return ctx.launchBlocks(blockKernel, grid, block, 0, 0, stream)
}

// LaunchBlocks enqueues a block-granular kernel on the default stream,
// requesting sharedBytes of per-block shared memory and localBytes of
// per-thread-block register scratch.
func (ctx *Context) LaunchBlocks(kernel BlockKernel, grid, block Dim3, sharedBytes, localBytes int) error {
	return ctx.launchBlocks(kernel, grid, block, sharedBytes, localBytes, ctx.defaultStream)
}

// launchBlocks partitions the grid across a pool of workers. Each worker
// executes whole blocks sequentially, reusing one shared and one local
// scratch region, so a block's shared memory is private to it for the
// duration of its execution. A panic inside a kernel is captured and
// surfaced as an execution fault at synchronize time.
func (ctx *Context) launchBlocks(kernel BlockKernel, grid, block Dim3, sharedBytes, localBytes int, stream *Stream) error {
	if kernel == nil {
		return newInvalidArgError("Launch", "nil kernel")
	}
	if sharedBytes < 0 || localBytes < 0 {
		return newInvalidArgError("Launch", "negative scratch request")
	}
	gridSize := grid.Size()
	if gridSize == 0 {
		// Keep stream ordering intact even for empty launches.
		stream.Submit(func() error { return nil })
		return nil
	}
	if gridSize < 0 {
		return newInvalidArgError("Launch", "negative grid size")
	}

	workers := workerCount()
	if gridSize < workers {
		workers = gridSize
	}
	blocksPerWorker := (gridSize + workers - 1) / workers

	stream.Submit(func() error {
		var wg sync.WaitGroup
		wg.Add(workers)
		errs := make([]error, workers)

		for w := 0; w < workers; w++ {
			start := w * blocksPerWorker
			end := min(start+blocksPerWorker, gridSize)
			go func(w, start, end int) {
				defer wg.Done()
				defer func() {
					if r := recover(); r != nil {
						errs[w] = newExecutionError("Launch",
							fmt.Sprintf("kernel fault in block range [%d,%d)", start, end),
							fmt.Errorf("%v", r))
					}
				}()
				var shared, local []byte
				if sharedBytes > 0 {
					shared = make([]byte, sharedBytes)
				}
				if localBytes > 0 {
					local = make([]byte, localBytes)
				}
				for b := start; b < end; b++ {
					kernel(BlockID{
						BlockIdx: linearTo3D(b, grid),
						BlockDim: block,
						GridDim:  grid,
					}, shared, local)
				}
			}(w, start, end)
		}

		wg.Wait()
		for _, err := range errs {
			if err != nil {
				return err
			}
		}
		return nil
	})
	return nil
}

// linearTo3D converts a linear block or thread index to coordinates.
func linearTo3D(linear int, dim Dim3) Dim3 {
	return Dim3{
		X: linear % dim.X,
		Y: (linear / dim.X) % dim.Y,
		Z: linear / (dim.X * dim.Y),
	}
}

// Package-level API over the shared default context.

// Malloc allocates device memory from the default context.
func Malloc(size int) (DevicePtr, error) { return defaultContext.Malloc(size) }

// Free releases device memory allocated from the default context.
func Free(ptr DevicePtr) error { return defaultContext.Free(ptr) }

// Memcpy copies between host slices and device pointers on the default
// context.
func Memcpy(dst, src interface{}, size int, kind MemcpyKind) error {
	return defaultContext.Memcpy(dst, src, size, kind)
}

// Launch enqueues a thread-granular kernel on the default context.
func Launch(kernel KernelFunc, grid, block Dim3) error {
	return defaultContext.Launch(kernel, grid, block)
}

// Synchronize waits for all work on the default context.
func Synchronize() error { return defaultContext.Synchronize() }

// GetDevice returns the device description.
func GetDevice() *Device { return defaultDevice }

// SetDevice selects the active device. Only device 0 exists.
func SetDevice(id int) error {
	if id != 0 {
		return ErrInvalidDevice
	}
	return nil
}

// GetDeviceCount returns the number of available devices.
func GetDeviceCount() int { return 1 }

// systemMemory reports total device memory. The engine does not enforce a
// budget; the figure is informational.
func systemMemory() uint64 {
	return 16 * 1024 * 1024 * 1024
}
