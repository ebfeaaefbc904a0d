package tilekern

import (
	"math"
	"testing"
)

// refSum is the direct double-precision reference for the sum family.
func refSum(f Formula[float64], params, x, y, b []float64, dimPoint, dimVect, nx, ny int) []float64 {
	out := make([]float64, nx*dimVect)
	for i := 0; i < nx; i++ {
		xi := x[i*dimPoint : (i+1)*dimPoint]
		for j := 0; j < ny; j++ {
			w := f(xi, y[j*dimPoint:(j+1)*dimPoint], params)
			for k := 0; k < dimVect; k++ {
				out[i*dimVect+k] += w * b[j*dimVect+k]
			}
		}
	}
	return out
}

func toF64(s []float32) []float64 {
	out := make([]float64, len(s))
	for i, v := range s {
		out[i] = float64(v)
	}
	return out
}

// Engine output matches the double-precision reference for every supported
// dimension pair at a spread of sizes, including partial and empty tiles.
func TestReferenceEquivalenceSum(t *testing.T) {
	sizes := [][2]int{{0, 0}, {1, 1}, {1, 7}, {3, 1}, {31, 33}, {64, 64}, {128, 127}}
	var seed uint64 = 1

	for dp := 1; dp <= 3; dp++ {
		for dv := 1; dv <= 3; dv++ {
			for _, sz := range sizes {
				nx, ny := sz[0], sz[1]
				seed++
				x := GeneratePointCloud[float32](nx, dp, seed)
				y := GeneratePointCloud[float32](ny, dp, seed+100)
				b := GenerateScalarsRange[float32](ny*dv, seed+200, -1, 1)
				out := make([]float32, nx*dv)

				st := EvaluateSumOpts(GaussKernel[float32](), []float32{1.5}, x, y, b, out,
					dp, dv, nx, ny, Options{BlockSize: 32, Scheme: Scheme1D})
				if !st.Ok() {
					t.Fatalf("(%d,%d) nx=%d ny=%d: %v", dp, dv, nx, ny, st)
				}

				want := refSum(GaussKernel[float64](), []float64{1.5}, toF64(x), toF64(y), toF64(b), dp, dv, nx, ny)
				// Error grows with reduction depth: O(ny * eps).
				tol := ToleranceConfig{
					AbsTol: float64(ny+1) * 1e-6,
					RelTol: float64(ny+1) * float64(1.2e-7),
					ULPTol: 16,
				}
				for i := range out {
					if !NearEqual(float64(out[i]), want[i], tol) {
						t.Errorf("(%d,%d) nx=%d ny=%d row %d: got %v want %v", dp, dv, nx, ny, i, out[i], want[i])
					}
				}
			}
		}
	}
}

// The 1D and 2D schemes agree up to floating-point reassociation.
func TestScheme1DMatches2D(t *testing.T) {
	const nx, ny = 500, 500
	for dv := 1; dv <= 3; dv++ {
		x := GeneratePointCloud[float32](nx, 3, 7)
		y := GeneratePointCloud[float32](ny, 3, 8)
		b := GenerateScalarsRange[float32](ny*dv, 9, -1, 1)
		params := []float32{0.25}

		out1 := make([]float32, nx*dv)
		out2 := make([]float32, nx*dv)
		if st := EvaluateSumOpts(GaussKernel[float32](), params, x, y, b, out1, 3, dv, nx, ny,
			Options{BlockSize: 64, Scheme: Scheme1D}); !st.Ok() {
			t.Fatalf("1D: %v", st)
		}
		if st := EvaluateSumOpts(GaussKernel[float32](), params, x, y, b, out2, 3, dv, nx, ny,
			Options{BlockSize: 64, Scheme: Scheme2D}); !st.Ok() {
			t.Fatalf("2D: %v", st)
		}

		for i := range out1 {
			rel := math.Abs(float64(out1[i]-out2[i])) / math.Max(math.Abs(float64(out1[i])), 1e-30)
			if rel > 1e-5 {
				t.Errorf("dv=%d row %d: 1D %v vs 2D %v (rel %g)", dv, i, out1[i], out2[i], rel)
			}
		}
	}
}

// The coupled pair from both schemes agrees too: combine is associative and
// commutative on (m, s) pairs.
func TestScheme1DMatches2DMaxShiftExp(t *testing.T) {
	const nx, ny = 300, 500
	score := NegSqDistFormula[float32]()
	x := GeneratePointCloud[float32](nx, 2, 21)
	y := GeneratePointCloud[float32](ny, 2, 22)
	b := GenerateScalarsRange[float32](ny, 23, 0.1, 1)
	params := []float32{2}

	out1 := make([]float32, nx*2)
	out2 := make([]float32, nx*2)
	if st := EvaluateMaxShiftExpOpts(score, params, x, y, b, out1, 2, 1, nx, ny,
		Options{BlockSize: 64, Scheme: Scheme1D}); !st.Ok() {
		t.Fatalf("1D: %v", st)
	}
	if st := EvaluateMaxShiftExpOpts(score, params, x, y, b, out2, 2, 1, nx, ny,
		Options{BlockSize: 64, Scheme: Scheme2D}); !st.Ok() {
		t.Fatalf("2D: %v", st)
	}

	for i := 0; i < nx; i++ {
		if out1[2*i] != out2[2*i] {
			t.Errorf("row %d: max differs, 1D %v vs 2D %v", i, out1[2*i], out2[2*i])
		}
		rel := math.Abs(float64(out1[2*i+1]-out2[2*i+1])) / math.Max(math.Abs(float64(out1[2*i+1])), 1e-30)
		if rel > 1e-5 {
			t.Errorf("row %d: shifted sum 1D %v vs 2D %v", i, out1[2*i+1], out2[2*i+1])
		}
	}
}

// Fixed inputs and fixed block size give bit-identical outputs across runs:
// each output row is reduced by exactly one thread in a fixed j order,
// regardless of how blocks were spread over workers.
func TestDeterminism(t *testing.T) {
	const nx, ny = 257, 191
	x := GeneratePointCloud[float32](nx, 3, 31)
	y := GeneratePointCloud[float32](ny, 3, 32)
	b := GenerateScalars[float32](ny, 33)
	params := []float32{1}

	for _, scheme := range []Scheme{Scheme1D, Scheme2D} {
		opts := Options{BlockSize: 32, Scheme: scheme}
		a := make([]float32, nx)
		c := make([]float32, nx)
		if st := EvaluateSumOpts(GaussKernel[float32](), params, x, y, b, a, 3, 1, nx, ny, opts); !st.Ok() {
			t.Fatalf("run 1: %v", st)
		}
		if st := EvaluateSumOpts(GaussKernel[float32](), params, x, y, b, c, 3, 1, nx, ny, opts); !st.Ok() {
			t.Fatalf("run 2: %v", st)
		}
		for i := range a {
			if a[i] != c[i] {
				t.Fatalf("scheme %v row %d: %v != %v across runs", scheme, i, a[i], c[i])
			}
		}
	}
}

// Shifting the formula by a constant shifts only the max component.
func TestMaxShiftExpShiftStability(t *testing.T) {
	const nx, ny = 40, 120
	base := func(x, y, p []float32) float32 { return -SqDist(x, y) }
	const c = 250.0
	shifted := func(x, y, p []float32) float32 { return -SqDist(x, y) + c }

	x := GeneratePointCloud[float32](nx, 2, 41)
	y := GeneratePointCloud[float32](ny, 2, 42)
	b := GenerateScalarsRange[float32](ny, 43, 0.5, 1.5)

	out := make([]float32, nx*2)
	outShift := make([]float32, nx*2)
	if st := EvaluateMaxShiftExp(base, nil, x, y, b, out, 2, 1, nx, ny); !st.Ok() {
		t.Fatalf("base: %v", st)
	}
	if st := EvaluateMaxShiftExp(shifted, nil, x, y, b, outShift, 2, 1, nx, ny); !st.Ok() {
		t.Fatalf("shifted: %v", st)
	}

	tol := ToleranceConfig{AbsTol: 1e-5, RelTol: 1e-5, ULPTol: 32}
	for i := 0; i < nx; i++ {
		if !NearEqual(outShift[2*i], out[2*i]+c, tol) {
			t.Errorf("row %d: max %v, shifted max %v, want offset %v", i, out[2*i], outShift[2*i], c)
		}
		if !NearEqual(outShift[2*i+1], out[2*i+1], tol) {
			t.Errorf("row %d: shifted sum changed: %v vs %v", i, out[2*i+1], outShift[2*i+1])
		}
	}
}

// m + log(s) equals the true log-sum-exp even where direct exp overflows
// float32.
func TestLogSumExpConsistency(t *testing.T) {
	const nx, ny = 10, 64
	pick := func(x, y, p []float32) float32 { return y[0] }

	// Scores around +300: exp(300) overflows float32 (log MaxFloat32 ~ 88.7).
	x := make([]float32, nx)
	y := GenerateScalarsRange[float32](ny, 51, 295, 305)
	out := make([]float32, nx*2)
	if st := EvaluateMaxShiftExp(pick, nil, x, y, nil, out, 1, 1, nx, ny); !st.Ok() {
		t.Fatalf("EvaluateMaxShiftExp: %v", st)
	}

	// Double-precision reference: log(sum exp f) via the same shift.
	m := math.Inf(-1)
	for _, v := range y {
		m = math.Max(m, float64(v))
	}
	s := 0.0
	for _, v := range y {
		s += math.Exp(float64(v) - m)
	}
	want := m + math.Log(s)

	tol := ToleranceConfig{AbsTol: 1e-4, RelTol: 1e-5}
	for i := 0; i < nx; i++ {
		got := float64(out[2*i]) + math.Log(float64(out[2*i+1]))
		if !NearEqual(got, want, tol) {
			t.Errorf("row %d: m+log(s) = %v, want %v", i, got, want)
		}
		if !math.IsInf(float64(expS(out[2*i])), 1) {
			t.Errorf("row %d: expected the unshifted exp to overflow, max=%v", i, out[2*i])
		}
	}
}

// Compensated accumulation beats plain accumulation on a cancellation-heavy
// payload.
func TestKahanImprovesSum(t *testing.T) {
	const ny = 20000
	one := func(x, y, p []float32) float32 { return 1 }

	b := make([]float32, ny)
	b[0] = 1e8
	for j := 1; j < ny; j++ {
		b[j] = 1
	}
	exact := 1e8 + float64(ny-1)

	y := make([]float32, ny)
	plain := make([]float32, 1)
	comp := make([]float32, 1)
	opts := Options{BlockSize: 32, Scheme: Scheme1D}
	if st := EvaluateSumOpts(one, nil, []float32{0}, y, b, plain, 1, 1, 1, ny, opts); !st.Ok() {
		t.Fatalf("plain: %v", st)
	}
	if st := EvaluateSumKahan(one, nil, []float32{0}, y, b, comp, 1, 1, 1, ny); !st.Ok() {
		t.Fatalf("kahan: %v", st)
	}

	errPlain := math.Abs(float64(plain[0]) - exact)
	errComp := math.Abs(float64(comp[0]) - exact)
	if errComp > errPlain {
		t.Errorf("kahan error %g worse than plain %g", errComp, errPlain)
	}
	if errComp > 16 {
		t.Errorf("kahan error %g too large (exact %g, got %g)", errComp, exact, comp[0])
	}
}

// The Kahan variant of the shifted reduction agrees with the plain one on
// well-conditioned data.
func TestMaxShiftExpKahanAgrees(t *testing.T) {
	const nx, ny = 20, 96
	score := NegSqDistFormula[float32]()
	x := GeneratePointCloud[float32](nx, 2, 61)
	y := GeneratePointCloud[float32](ny, 2, 62)
	b := GenerateScalarsRange[float32](ny, 63, 0.1, 1)
	params := []float32{1}

	plain := make([]float32, nx*2)
	comp := make([]float32, nx*2)
	if st := EvaluateMaxShiftExp(score, params, x, y, b, plain, 2, 1, nx, ny); !st.Ok() {
		t.Fatalf("plain: %v", st)
	}
	if st := EvaluateMaxShiftExpKahan(score, params, x, y, b, comp, 2, 1, nx, ny); !st.Ok() {
		t.Fatalf("kahan: %v", st)
	}

	tol := DefaultTolerance()
	for i := range plain {
		if !NearEqual(plain[i], comp[i], tol) {
			t.Errorf("element %d: plain %v vs kahan %v", i, plain[i], comp[i])
		}
	}
}

// Auto scheme selection picks 2D only when the i-grid cannot fill the
// device and there is enough j depth to split.
func TestPickScheme(t *testing.T) {
	if pickScheme(1000000, 64, 64) != Scheme1D {
		t.Errorf("wide nx should pick 1D")
	}
	if pickScheme(8, 100000, 64) != Scheme2D {
		t.Errorf("narrow nx with deep ny should pick 2D")
	}
	if pickScheme(8, 8, 64) != Scheme1D {
		t.Errorf("tiny problems should pick 1D")
	}
}
