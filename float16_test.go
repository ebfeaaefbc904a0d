package tilekern

import (
	"math"
	"testing"
)

func TestFloat16RoundTripExact(t *testing.T) {
	// Values exactly representable in binary16 survive the round trip.
	for _, v := range []float32{0, 1, -1, 0.5, 2048, 65504, -65504, 0.000061035156} {
		h := FromFloat32(v)
		if got := h.ToFloat32(); got != v {
			t.Errorf("round trip %v -> %v", v, got)
		}
	}
}

func TestFloat16Specials(t *testing.T) {
	if !math.IsInf(float64(FromFloat32(float32(math.Inf(1))).ToFloat32()), 1) {
		t.Errorf("+inf lost")
	}
	if !math.IsInf(float64(FromFloat32(float32(math.Inf(-1))).ToFloat32()), -1) {
		t.Errorf("-inf lost")
	}
	if !math.IsNaN(float64(FromFloat32(float32(math.NaN())).ToFloat32())) {
		t.Errorf("NaN lost")
	}
	// Overflow saturates to infinity.
	if !math.IsInf(float64(FromFloat32(1e6).ToFloat32()), 1) {
		t.Errorf("overflow should saturate")
	}
	// Negative zero keeps its sign.
	if !math.Signbit(float64(FromFloat32(float32(math.Copysign(0, -1))).ToFloat32())) {
		t.Errorf("-0 lost its sign")
	}
}

func TestFloat16Rounding(t *testing.T) {
	// Narrowing error stays within half an ulp of the binary16 mantissa.
	for _, v := range []float32{1.0 / 3.0, math.Pi, 0.1, 123.456, -7.89} {
		got := FromFloat32(v).ToFloat32()
		rel := math.Abs(float64(got-v)) / math.Abs(float64(v))
		if rel > 1.0/2048 {
			t.Errorf("%v -> %v (rel %g)", v, got, rel)
		}
	}
}

func TestFloat16Subnormals(t *testing.T) {
	// Smallest positive subnormal half is 2^-24.
	tiny := float32(math.Ldexp(1, -24))
	if got := FromFloat32(tiny).ToFloat32(); got != tiny {
		t.Errorf("subnormal %g -> %g", tiny, got)
	}
	// Below half the smallest subnormal flushes to zero.
	if got := FromFloat32(float32(math.Ldexp(1, -26))).ToFloat32(); got != 0 {
		t.Errorf("underflow should reach zero, got %g", got)
	}
}

func TestFloat16Slice(t *testing.T) {
	raw := make([]byte, 8)
	s := NewFloat16Slice(raw)
	if s.Len() != 4 {
		t.Fatalf("len %d", s.Len())
	}
	s.SetFloat32(2, 1.5)
	if got := s.GetFloat32(2); got != 1.5 {
		t.Errorf("slice round trip: %v", got)
	}
	if s.GetFloat32(0) != 0 {
		t.Errorf("untouched element should be zero")
	}
}

func TestHalfHostConversion(t *testing.T) {
	if halfToFloat32(nil) != nil {
		t.Errorf("nil must stay nil")
	}
	src := []Float16{FromFloat32(1), FromFloat32(-2.5)}
	wide := halfToFloat32(src)
	if wide[0] != 1 || wide[1] != -2.5 {
		t.Errorf("widen: %v", wide)
	}
	back := make([]Float16, 2)
	float32ToHalf(back, wide)
	if back[0] != src[0] || back[1] != src[1] {
		t.Errorf("narrow: %v", back)
	}
}
