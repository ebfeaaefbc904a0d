package tilekern

import (
	"testing"
)

func TestMallocFree(t *testing.T) {
	for _, size := range []int{64, 1000, 1 << 20} {
		ptr, err := Malloc(size)
		if err != nil {
			t.Fatalf("Malloc(%d): %v", size, err)
		}
		raw := ptr.Byte()
		if len(raw) != size {
			t.Errorf("Byte view length %d, want %d", len(raw), size)
		}
		raw[0], raw[size-1] = 0xAB, 0xCD
		if raw[0] != 0xAB || raw[size-1] != 0xCD {
			t.Errorf("memory not writable")
		}
		if err := Free(ptr); err != nil {
			t.Fatalf("Free: %v", err)
		}
	}
}

func TestMallocInvalidSize(t *testing.T) {
	if _, err := Malloc(0); err == nil {
		t.Errorf("Malloc(0) should fail")
	}
	if _, err := Malloc(-4); err == nil {
		t.Errorf("Malloc(-4) should fail")
	}
}

func TestDoubleFree(t *testing.T) {
	ptr := MallocOrFail(t, 256)
	if err := Free(ptr); err != nil {
		t.Fatalf("first free: %v", err)
	}
	err := Free(ptr)
	if err == nil {
		t.Fatal("double free not detected")
	}
	if !IsMemoryError(err) {
		t.Errorf("double free should be a memory error, got %v", err)
	}
}

func TestFreeZeroPointer(t *testing.T) {
	if err := Free(DevicePtr{}); err != nil {
		t.Errorf("freeing the zero pointer should be a no-op: %v", err)
	}
}

func TestTypedViews(t *testing.T) {
	ptr := MallocOrFail(t, 16*8)
	defer Free(ptr)

	f64 := ptr.Float64()
	if len(f64) != 16 {
		t.Fatalf("Float64 view length %d", len(f64))
	}
	f64[3] = 2.5

	f32 := ptr.Float32()
	if len(f32) != 32 {
		t.Fatalf("Float32 view length %d", len(f32))
	}

	h := ptr.Half()
	if h.Len() != 64 {
		t.Fatalf("Half view length %d", h.Len())
	}

	// Views alias the same region.
	if ptr.Float64()[3] != 2.5 {
		t.Errorf("aliasing broken")
	}
}

func TestOffset(t *testing.T) {
	ptr := MallocOrFail(t, 1024*4)
	defer Free(ptr)

	data := ptr.Float32()
	for i := range data {
		data[i] = float32(i)
	}
	half := ptr.Offset(512 * 4)
	view := half.Float32()
	if len(view) != 512 {
		t.Fatalf("offset view length %d", len(view))
	}
	if view[0] != 512 {
		t.Errorf("offset view starts at %v", view[0])
	}
}

func TestMemcpyRoundTrip(t *testing.T) {
	const n = 1000
	src := GenerateScalars[float32](n, 5)
	dst := make([]float32, n)

	dSrc := MallocOrFail(t, n*4)
	dDst := MallocOrFail(t, n*4)
	defer Free(dSrc)
	defer Free(dDst)

	MemcpyOrFail(t, dSrc, src, n*4, MemcpyHostToDevice)
	MemcpyOrFail(t, dDst, dSrc, n*4, MemcpyDeviceToDevice)
	MemcpyOrFail(t, dst, dDst, n*4, MemcpyDeviceToHost)

	for i := range src {
		if src[i] != dst[i] {
			t.Fatalf("index %d: %v != %v", i, src[i], dst[i])
		}
	}
}

func TestMemcpyUnsupportedType(t *testing.T) {
	if err := Memcpy([]string{"nope"}, []float32{1}, 4, MemcpyHostToDevice); err == nil {
		t.Errorf("expected type rejection")
	}
}

func TestPoolStatsAndReuse(t *testing.T) {
	pool := NewMemoryPool()

	a, err := pool.Allocate(1000)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	stats := pool.Stats()
	if stats.LiveBytes == 0 || stats.PeakBytes < stats.LiveBytes {
		t.Fatalf("stats after allocate: %+v", stats)
	}

	if err := pool.Free(a); err != nil {
		t.Fatalf("free: %v", err)
	}
	if live := pool.Stats().LiveBytes; live != 0 {
		t.Fatalf("live bytes after free: %d", live)
	}

	// A smaller allocation (900 bytes after 1000) reuses the freed block.
	b, err := pool.Allocate(900)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if b.ptr != a.ptr {
		t.Errorf("free list not reused")
	}
	pool.Free(b)
}

func TestAllocFailureInjection(t *testing.T) {
	pool := NewMemoryPool()
	pool.failAlloc = func(size int) error { return ErrOutOfMemory }

	if _, err := pool.Allocate(64); err == nil {
		t.Fatal("injected failure did not surface")
	}
	if live := pool.Stats().LiveBytes; live != 0 {
		t.Errorf("failed allocation accounted %d bytes", live)
	}

	pool.failAlloc = nil
	ptr, err := pool.Allocate(64)
	if err != nil {
		t.Fatalf("allocation after clearing hook: %v", err)
	}
	pool.Free(ptr)
}
