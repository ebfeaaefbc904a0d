package tilekern

import (
	"fmt"
	"sync"
	"unsafe"
)

// MemcpyKind specifies the direction of a memory transfer. The engine's
// device memory is host-visible, so the direction only documents intent,
// but the launch wrapper still routes every transfer through Memcpy so the
// ownership protocol matches a discrete device.
type MemcpyKind int

const (
	MemcpyHostToHost MemcpyKind = iota
	MemcpyHostToDevice
	MemcpyDeviceToHost
	MemcpyDeviceToDevice
)

// DevicePtr is a handle to device memory. Typed view methods reinterpret the
// region; Offset derives sub-region handles sharing the same allocation.
type DevicePtr struct {
	ptr    unsafe.Pointer
	size   int
	offset int
}

// MemoryPool manages device allocations with a free list for reuse. It
// tracks live and peak byte counters so callers (and the allocation-hygiene
// tests) can verify that every evaluation releases everything it acquired.
type MemoryPool struct {
	mu        sync.Mutex
	allocated map[uintptr]*allocation
	freeList  []*allocation
	liveBytes int64
	peakBytes int64

	// failAlloc, when set, is consulted before each allocation. It exists so
	// tests can inject allocation failure at a chosen site.
	failAlloc func(size int) error
}

type allocation struct {
	buf  []byte // keeps the backing array reachable
	ptr  unsafe.Pointer
	size int
	used bool
}

// NewMemoryPool creates an empty pool.
func NewMemoryPool() *MemoryPool {
	return &MemoryPool{allocated: make(map[uintptr]*allocation)}
}

// Allocate returns a device pointer to at least size bytes, aligned to
// MemoryAlignment. Freed blocks are reused when large enough.
func (mp *MemoryPool) Allocate(size int) (DevicePtr, error) {
	if size <= 0 {
		return DevicePtr{}, ErrInvalidSize
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.failAlloc != nil {
		if err := mp.failAlloc(size); err != nil {
			return DevicePtr{}, err
		}
	}

	aligned := (size + MemoryAlignment - 1) &^ (MemoryAlignment - 1)

	for i, alloc := range mp.freeList {
		if alloc.size >= aligned {
			mp.freeList = append(mp.freeList[:i], mp.freeList[i+1:]...)
			alloc.used = true
			mp.account(int64(alloc.size))
			return DevicePtr{ptr: alloc.ptr, size: size}, nil
		}
	}

	buf := make([]byte, aligned)
	alloc := &allocation{
		buf:  buf,
		ptr:  unsafe.Pointer(&buf[0]),
		size: aligned,
		used: true,
	}
	mp.allocated[uintptr(alloc.ptr)] = alloc
	mp.account(int64(aligned))

	return DevicePtr{ptr: alloc.ptr, size: size}, nil
}

// account must be called with mp.mu held.
func (mp *MemoryPool) account(delta int64) {
	mp.liveBytes += delta
	if mp.liveBytes > mp.peakBytes {
		mp.peakBytes = mp.liveBytes
	}
}

// Free returns a block to the pool. Freeing a derived (offset) pointer or an
// unknown pointer is an error; freeing the zero DevicePtr is a no-op.
func (mp *MemoryPool) Free(ptr DevicePtr) error {
	if ptr.ptr == nil {
		return nil
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	alloc, ok := mp.allocated[uintptr(ptr.ptr)]
	if !ok {
		return newMemoryError("Free", "pointer not found in allocation pool", nil)
	}
	if !alloc.used {
		return ErrDoubleFree
	}

	alloc.used = false
	mp.freeList = append(mp.freeList, alloc)
	mp.liveBytes -= int64(alloc.size)
	return nil
}

// MemStats is a snapshot of pool byte counters.
type MemStats struct {
	LiveBytes int64 // bytes currently handed out
	PeakBytes int64 // high-water mark since pool creation
}

// Stats returns the pool's current counters.
func (mp *MemoryPool) Stats() MemStats {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return MemStats{LiveBytes: mp.liveBytes, PeakBytes: mp.peakBytes}
}

// Context-level memory API.

// Malloc allocates device memory from the context's pool.
func (ctx *Context) Malloc(size int) (DevicePtr, error) {
	return ctx.memory.Allocate(size)
}

// Free releases device memory allocated from the context's pool.
func (ctx *Context) Free(ptr DevicePtr) error {
	return ctx.memory.Free(ptr)
}

// MemStats returns the context pool's byte counters.
func (ctx *Context) MemStats() MemStats {
	return ctx.memory.Stats()
}

// Memcpy copies size bytes between host slices and device pointers. The kind
// argument documents the transfer direction.
func (ctx *Context) Memcpy(dst, src interface{}, size int, kind MemcpyKind) error {
	dstPtr, err := transferPtr("Memcpy dst", dst)
	if err != nil {
		return err
	}
	srcPtr, err := transferPtr("Memcpy src", src)
	if err != nil {
		return err
	}
	if size < 0 {
		return newInvalidArgError("Memcpy", "negative size")
	}
	if size == 0 {
		return nil
	}
	if dstPtr == nil || srcPtr == nil {
		return newInvalidArgError("Memcpy", "nil transfer endpoint")
	}
	copy(unsafe.Slice((*byte)(dstPtr), size), unsafe.Slice((*byte)(srcPtr), size))
	return nil
}

// transferPtr resolves a transfer endpoint to a raw pointer.
func transferPtr(op string, v interface{}) (unsafe.Pointer, error) {
	switch e := v.(type) {
	case DevicePtr:
		return e.ptr, nil
	case []byte:
		if len(e) == 0 {
			return nil, nil
		}
		return unsafe.Pointer(&e[0]), nil
	case []float32:
		if len(e) == 0 {
			return nil, nil
		}
		return unsafe.Pointer(&e[0]), nil
	case []float64:
		if len(e) == 0 {
			return nil, nil
		}
		return unsafe.Pointer(&e[0]), nil
	case []Float16:
		if len(e) == 0 {
			return nil, nil
		}
		return unsafe.Pointer(&e[0]), nil
	default:
		return nil, newInvalidArgError(op, fmt.Sprintf("unsupported type %T", v))
	}
}

// DevicePtr view methods.

// Float32 returns a float32 view of the device memory.
func (d DevicePtr) Float32() []float32 {
	return deviceView[float32](d)
}

// Float64 returns a float64 view of the device memory.
func (d DevicePtr) Float64() []float64 {
	return deviceView[float64](d)
}

// Byte returns the raw byte view of the device memory.
func (d DevicePtr) Byte() []byte {
	if d.ptr == nil {
		return nil
	}
	return unsafe.Slice((*byte)(d.ptr), d.size)
}

// Half returns a Float16 view of the device memory.
func (d DevicePtr) Half() Float16Slice {
	if d.ptr == nil {
		return Float16Slice{}
	}
	return NewFloat16Slice(d.Byte())
}

// Offset returns a DevicePtr advanced by the given number of bytes. The
// result shares the parent allocation and must not be passed to Free.
func (d DevicePtr) Offset(bytes int) DevicePtr {
	return DevicePtr{
		ptr:    unsafe.Pointer(uintptr(d.ptr) + uintptr(bytes)),
		size:   d.size - bytes,
		offset: d.offset + bytes,
	}
}

// Size returns the size in bytes of the region behind the pointer.
func (d DevicePtr) Size() int { return d.size }
