package tilekern

import (
	"runtime"

	"golang.org/x/sys/cpu"
)

// CPUFeatures records the instruction-set extensions relevant to the
// engine's inner loops.
type CPUFeatures struct {
	HasAVX     bool
	HasAVX2    bool
	HasAVX512F bool
	HasFMA     bool
	HasNEON    bool
}

var cpuFeatures CPUFeatures

func init() {
	cpuFeatures = CPUFeatures{
		HasAVX:     cpu.X86.HasAVX,
		HasAVX2:    cpu.X86.HasAVX2,
		HasAVX512F: cpu.X86.HasAVX512F,
		HasFMA:     cpu.X86.HasFMA,
		HasNEON:    cpu.ARM64.HasASIMD,
	}
}

// deviceName composes a human-readable device description from the
// architecture and the best detected vector extension.
func deviceName() string {
	simd := "scalar"
	switch {
	case cpuFeatures.HasAVX512F:
		simd = "AVX-512"
	case cpuFeatures.HasAVX2 && cpuFeatures.HasFMA:
		simd = "AVX2+FMA"
	case cpuFeatures.HasAVX:
		simd = "AVX"
	case cpuFeatures.HasNEON:
		simd = "NEON"
	}
	return "CPU (" + runtime.GOARCH + ", " + simd + ")"
}

// workerCount returns the number of goroutines used to execute a grid.
// Blocks are compute-bound, so one worker per core.
func workerCount() int {
	n := runtime.NumCPU()
	if n < 1 {
		n = 1
	}
	return n
}
