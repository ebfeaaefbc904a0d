package tilekern

import (
	"testing"
)

// MallocOrFail allocates device memory and fails the test if unsuccessful.
func MallocOrFail(t testing.TB, size int) DevicePtr {
	t.Helper()
	ptr, err := Malloc(size)
	if err != nil {
		t.Fatalf("Failed to allocate %d bytes: %v", size, err)
	}
	return ptr
}

// MemcpyOrFail copies data and fails the test if unsuccessful.
func MemcpyOrFail(t testing.TB, dst, src interface{}, size int, kind MemcpyKind) {
	t.Helper()
	if err := Memcpy(dst, src, size, kind); err != nil {
		t.Fatalf("Memcpy failed: %v", err)
	}
}

// LaunchOrFail launches a kernel and fails the test if unsuccessful.
func LaunchOrFail(t testing.TB, kernel KernelFunc, grid, block Dim3) {
	t.Helper()
	if err := Launch(kernel, grid, block); err != nil {
		t.Fatalf("Kernel launch failed: %v", err)
	}
}

// SynchronizeOrFail synchronizes the default context and fails the test on
// any recorded fault.
func SynchronizeOrFail(t testing.TB) {
	t.Helper()
	if err := Synchronize(); err != nil {
		t.Fatalf("Synchronize failed: %v", err)
	}
}

// EvaluateOrFail runs a sum evaluation and fails the test on a non-zero
// status.
func EvaluateOrFail[T Scalar](t testing.TB, f Formula[T], params, x, y, b, out []T, dimPoint, dimVect, nx, ny int) {
	t.Helper()
	if st := EvaluateSum(f, params, x, y, b, out, dimPoint, dimVect, nx, ny); !st.Ok() {
		t.Fatalf("EvaluateSum failed: %v", st)
	}
}
