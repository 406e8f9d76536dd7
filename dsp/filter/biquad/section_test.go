package biquad

import (
	"math"
	"testing"
)

// tolerance for floating-point comparisons.
const eps = 1e-12

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// passthrough returns coefficients for a unity gain passthrough (B0=1, all else 0).
func passthrough() Coefficients {
	return Coefficients{B0: 1}
}

// testCoeffs is a stable second-order lowpass-like section.
func testCoeffs() Coefficients {
	return Coefficients{B0: 0.25, B1: 0.5, B2: 0.25, A1: -0.2, A2: 0.04}
}

func TestNewSection(t *testing.T) {
	c := Coefficients{B0: 1, B1: 2, B2: 3, A1: 4, A2: 5}
	s := NewSection(c)
	if s.Coefficients != c {
		t.Fatalf("coefficients mismatch: got %v, want %v", s.Coefficients, c)
	}
	if st := s.State(); st != [2]float64{0, 0} {
		t.Fatalf("initial state not zero: %v", st)
	}
}

func TestProcessSample_Passthrough(t *testing.T) {
	s := NewSection(passthrough())
	input := []float64{1, 0, -1, 0.5, 0.25}
	for i, x := range input {
		y := s.ProcessSample(x)
		if !almostEqual(y, x, eps) {
			t.Errorf("sample %d: got %v, want %v", i, y, x)
		}
	}
}

func TestProcessSample_DFIIT(t *testing.T) {
	// Hand-traced DF-II-T with B0=0.25, B1=0.5, B2=0.25, A1=-0.2, A2=0.04
	// and x = [1, 0, 0, 0]:
	//
	// n=0: y=0.25            d0=0.55     d1=0.24
	// n=1: y=0.55            d0=0.35     d1=-0.022
	// n=2: y=0.35            d0=0.048    d1=-0.014
	// n=3: y=0.048
	s := NewSection(testCoeffs())

	want := []float64{0.25, 0.55, 0.35, 0.048}
	for i, w := range want {
		var x float64
		if i == 0 {
			x = 1
		}
		y := s.ProcessSample(x)
		if !almostEqual(y, w, eps) {
			t.Errorf("sample %d: got %.15f, want %.15f", i, y, w)
		}
	}
}

func TestProcessBlock_MatchesSample(t *testing.T) {
	for _, n := range []int{0, 1, 8, 9} {
		input := make([]float64, n)
		for i := range input {
			input[i] = math.Sin(float64(i) * 0.7)
		}

		s1 := NewSection(testCoeffs())
		ref := make([]float64, n)
		for i, x := range input {
			ref[i] = s1.ProcessSample(x)
		}

		s2 := NewSection(testCoeffs())
		block := append([]float64(nil), input...)
		s2.ProcessBlock(block)

		for i := range block {
			if !almostEqual(block[i], ref[i], eps) {
				t.Errorf("n=%d sample %d: ProcessBlock=%.15f, ProcessSample=%.15f", n, i, block[i], ref[i])
			}
		}
		if s1.State() != s2.State() {
			t.Errorf("n=%d: state mismatch %v vs %v", n, s2.State(), s1.State())
		}
	}
}

func TestProcessSample_PureDelay(t *testing.T) {
	// B0=0, B1=1, all A=0: output = x[n-1]
	s := NewSection(Coefficients{B1: 1})
	input := []float64{1, 2, 3, 4, 5}
	want := []float64{0, 1, 2, 3, 4}
	for i, x := range input {
		y := s.ProcessSample(x)
		if !almostEqual(y, want[i], eps) {
			t.Errorf("sample %d: got %v, want %v", i, y, want[i])
		}
	}
}

func TestReset(t *testing.T) {
	s := NewSection(testCoeffs())
	s.ProcessSample(1)
	s.ProcessSample(0.5)

	if s.State() == [2]float64{0, 0} {
		t.Fatal("state should be non-zero after processing")
	}

	s.Reset()
	if st := s.State(); st != [2]float64{0, 0} {
		t.Fatalf("state not zero after reset: %v", st)
	}
}

func TestState_SaveRestore(t *testing.T) {
	s := NewSection(testCoeffs())
	s.ProcessSample(1)
	s.ProcessSample(0.5)
	saved := s.State()

	y3 := s.ProcessSample(-0.3)
	y4 := s.ProcessSample(0.7)

	s.SetState(saved)
	if y := s.ProcessSample(-0.3); !almostEqual(y, y3, eps) {
		t.Errorf("sample 3: got %v after restore, want %v", y, y3)
	}
	if y := s.ProcessSample(0.7); !almostEqual(y, y4, eps) {
		t.Errorf("sample 4: got %v after restore, want %v", y, y4)
	}
}

func TestProcessBlock_FlushesDecayedState(t *testing.T) {
	s := NewSection(testCoeffs())
	s.ProcessSample(1)
	s.ProcessBlock(make([]float64, 10000))
	if st := s.State(); st != [2]float64{0, 0} {
		t.Errorf("decayed state not flushed to zero: %v", st)
	}
}

func TestResponseAtDCAndNyquist(t *testing.T) {
	c := testCoeffs()
	dc := (c.B0 + c.B1 + c.B2) / (1 + c.A1 + c.A2)
	nyq := (c.B0 - c.B1 + c.B2) / (1 - c.A1 + c.A2)

	if got := c.Response(0, 48000); !almostEqual(real(got), dc, 1e-12) || !almostEqual(imag(got), 0, 1e-12) {
		t.Errorf("H(0) = %v, want %v", got, dc)
	}
	if got := c.Response(24000, 48000); !almostEqual(real(got), nyq, 1e-9) || !almostEqual(imag(got), 0, 1e-9) {
		t.Errorf("H(fs/2) = %v, want %v", got, nyq)
	}
	if got, want := c.MagnitudeDB(0, 48000), 20*math.Log10(math.Abs(dc)); !almostEqual(got, want, 1e-9) {
		t.Errorf("MagnitudeDB(0) = %v, want %v", got, want)
	}
}

func TestStable(t *testing.T) {
	if c := testCoeffs(); !c.Stable() {
		t.Fatal("test section should be stable")
	}
	for _, c := range []Coefficients{
		{B0: 1, A1: -2.5, A2: 1.5},  // poles at 1 and 1.5
		{B0: 1, A1: -2, A2: 1},      // double pole on the unit circle
		{B0: 1, A1: 0, A2: 1.0001},  // complex pair just outside
		{B0: 1, A1: 1.95, A2: 0.95}, // real pole at -1
	} {
		if c.Stable() {
			t.Errorf("%+v must be reported unstable", c)
		}
	}
	if c := (Coefficients{B0: 1, A1: -1.9, A2: 0.9025}); !c.Stable() {
		t.Error("double pole at 0.95 must be stable")
	}
}
