package core

import (
	"math"
	"testing"
)

func TestNearlyEqual(t *testing.T) {
	if !NearlyEqual(1.0, 1.0+1e-13, 1e-12) {
		t.Fatal("expected values to be nearly equal")
	}
	if NearlyEqual(1.0, 1.1, 1e-3) {
		t.Fatal("expected values to differ")
	}
	if !NearlyEqual(0, 1e-13, 0) {
		t.Fatal("non-positive eps should fall back to the default epsilon")
	}
}

func TestFlushDenormals(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{1e-31, 0},
		{-1e-31, 0},
		{1e-20, 1e-20},
		{0.5, 0.5},
	}
	for _, tt := range tests {
		if got := FlushDenormals(tt.in); got != tt.want {
			t.Errorf("FlushDenormals(%g) = %g, want %g", tt.in, got, tt.want)
		}
	}
}

func TestIsFinite(t *testing.T) {
	if !IsFinite(1) {
		t.Fatal("1 should be finite")
	}
	if IsFinite(math.NaN()) || IsFinite(math.Inf(1)) || IsFinite(math.Inf(-1)) {
		t.Fatal("NaN and Inf must not be finite")
	}
}

func TestLinearPowerToDB(t *testing.T) {
	if db := LinearPowerToDB(100); !NearlyEqual(db, 20, 1e-12) {
		t.Fatalf("LinearPowerToDB(100) = %v, want 20", db)
	}
	if !math.IsInf(LinearPowerToDB(0), -1) {
		t.Fatal("expected -Inf for zero power")
	}
	if !math.IsNaN(LinearPowerToDB(-1)) {
		t.Fatal("expected NaN for negative power")
	}
}
