package signal

import (
	"math"
	"testing"

	"github.com/cwbudde/algo-neurofeedback/dsp/core"
)

func TestSineLength(t *testing.T) {
	g := NewGenerator(core.WithSampleRate(256))
	s, err := g.Sine(10, 1, 64)
	if err != nil {
		t.Fatalf("Sine() error = %v", err)
	}
	if len(s) != 64 {
		t.Fatalf("len = %d, want 64", len(s))
	}
}

func TestSineAtIsPhaseContinuous(t *testing.T) {
	g := NewGenerator(core.WithSampleRate(250))

	whole, err := g.Sine(7.3, 2, 500)
	if err != nil {
		t.Fatal(err)
	}

	var parts []float64
	offset := int64(0)
	for _, n := range []int{1, 17, 100, 3, 379} {
		p, err := g.SineAt(7.3, 2, offset, n)
		if err != nil {
			t.Fatal(err)
		}
		parts = append(parts, p...)
		offset += int64(n)
	}

	for i := range whole {
		if math.Abs(whole[i]-parts[i]) > 1e-9 {
			t.Fatalf("sample %d: %v != %v", i, parts[i], whole[i])
		}
	}
}

func TestSineErrors(t *testing.T) {
	g := NewGenerator()
	if _, err := g.Sine(10, 1, 0); err == nil {
		t.Fatal("expected error for zero samples")
	}
	if _, err := g.SineAt(10, 1, -1, 4); err == nil {
		t.Fatal("expected error for negative offset")
	}
}

func TestWhiteNoiseDeterministic(t *testing.T) {
	g1 := NewGeneratorWithOptions(nil, WithSeed(42))
	g2 := NewGeneratorWithOptions(nil, WithSeed(42))

	n1, err := g1.WhiteNoise(1, 16)
	if err != nil {
		t.Fatalf("WhiteNoise() error = %v", err)
	}
	a, _ := g2.WhiteNoise(1, 5)
	b, _ := g2.WhiteNoise(1, 11)
	n2 := append(a, b...)

	for i := range n1 {
		if n1[i] != n2[i] {
			t.Fatalf("noise mismatch at %d: %v != %v", i, n1[i], n2[i])
		}
		if math.Abs(n1[i]) > 1 {
			t.Fatalf("noise out of range at %d: %v", i, n1[i])
		}
	}
}

func TestSetSeed(t *testing.T) {
	g := NewGenerator()
	g.SetSeed(99)
	if g.Seed() != 99 {
		t.Fatalf("Seed()=%d, want 99", g.Seed())
	}

	a, err := g.WhiteNoise(1, 8)
	if err != nil {
		t.Fatalf("WhiteNoise() error = %v", err)
	}
	g.SetSeed(99)
	b, err := g.WhiteNoise(1, 8)
	if err != nil {
		t.Fatalf("WhiteNoise() error = %v", err)
	}

	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("reseeded stream differs at %d", i)
		}
	}
}

func TestMix(t *testing.T) {
	dst := []float64{1, 2, 3}
	Mix(dst, []float64{10, 20})
	if dst[0] != 11 || dst[1] != 22 || dst[2] != 3 {
		t.Fatalf("Mix = %v", dst)
	}
}
