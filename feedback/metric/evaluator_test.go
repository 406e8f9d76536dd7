package metric

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestRequiredCount(t *testing.T) {
	tests := []struct {
		sustain, period time.Duration
		want            int
	}{
		{sustain: 3 * time.Second, period: 100 * time.Millisecond, want: 30},
		{sustain: 3 * time.Second, period: 70 * time.Millisecond, want: 43},
		{sustain: 250 * time.Millisecond, period: 100 * time.Millisecond, want: 3},
		{sustain: 0, period: 100 * time.Millisecond, want: 1},
		{sustain: time.Second, period: 0, want: 1},
	}

	for _, tt := range tests {
		if got := RequiredCount(tt.sustain, tt.period); got != tt.want {
			t.Errorf("RequiredCount(%v, %v) = %d, want %d", tt.sustain, tt.period, got, tt.want)
		}
	}
}

func TestNewEvaluatorErrors(t *testing.T) {
	if _, err := NewEvaluator(3, 0); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("required 0: %v", err)
	}
	if _, err := NewEvaluator(math.NaN(), 3); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("NaN threshold: %v", err)
	}
}

func TestFiresAfterExactlyRequired(t *testing.T) {
	const required = 30

	e, err := NewEvaluator(3, required)
	if err != nil {
		t.Fatal(err)
	}

	for i := 1; i < required; i++ {
		if e.Update(4) {
			t.Fatalf("fired early at update %d", i)
		}
		if e.State() != Accumulating || e.Count() != i {
			t.Fatalf("update %d: state=%v count=%d", i, e.State(), e.Count())
		}
	}

	if !e.Update(4) {
		t.Fatal("did not fire at required count")
	}
	if e.State() != Triggered || e.Count() != 0 || e.Triggers() != 1 {
		t.Fatalf("after firing: state=%v count=%d triggers=%d", e.State(), e.Count(), e.Triggers())
	}

	if e.Update(4) {
		t.Fatal("fired again immediately after reset")
	}
	if e.State() != Accumulating {
		t.Fatalf("state after re-arm = %v", e.State())
	}
}

func TestBelowThresholdResetsCounter(t *testing.T) {
	const required = 5

	e, _ := NewEvaluator(3, required)

	fired := 0
	for range required - 1 {
		if e.Update(10) {
			fired++
		}
	}
	if e.Update(1) {
		fired++
	}
	if fired != 0 {
		t.Fatalf("fired %d times", fired)
	}
	if e.State() != Idle || e.Count() != 0 {
		t.Fatalf("state=%v count=%d", e.State(), e.Count())
	}
}

func TestThresholdIsStrict(t *testing.T) {
	e, _ := NewEvaluator(3, 1)
	if e.Update(3) {
		t.Fatal("value equal to threshold fired")
	}
	if e.Update(math.NaN()) {
		t.Fatal("NaN fired")
	}
	if !e.Update(math.Nextafter(3, 4)) {
		t.Fatal("value above threshold with required 1 did not fire")
	}
}

func TestSustainedFiresPeriodically(t *testing.T) {
	e, _ := NewEvaluator(0, 4)

	var at []int
	for i := 1; i <= 13; i++ {
		if e.Update(1) {
			at = append(at, i)
		}
	}

	want := []int{4, 8, 12}
	if len(at) != len(want) {
		t.Fatalf("fired at %v, want %v", at, want)
	}
	for i := range want {
		if at[i] != want[i] {
			t.Fatalf("fired at %v, want %v", at, want)
		}
	}
}

func TestReset(t *testing.T) {
	e, _ := NewEvaluator(0, 2)
	e.Update(1)
	e.Update(1)
	e.Update(1)
	e.Reset()

	if e.State() != Idle || e.Count() != 0 || e.Triggers() != 0 {
		t.Fatalf("after reset: state=%v count=%d triggers=%d", e.State(), e.Count(), e.Triggers())
	}
}

func TestInterruptBreaksRunAndKeepsTriggers(t *testing.T) {
	e, _ := NewEvaluator(0, 2)
	e.Update(1)
	if !e.Update(1) {
		t.Fatal("second update must fire")
	}

	e.Update(1)
	e.Interrupt()
	if e.State() != Idle || e.Count() != 0 {
		t.Fatalf("after interrupt: state=%v count=%d", e.State(), e.Count())
	}
	if e.Triggers() != 1 {
		t.Fatalf("triggers = %d, want 1", e.Triggers())
	}

	if e.Update(1) {
		t.Fatal("run restarted by interrupt must not fire on its first update")
	}
	if !e.Update(1) {
		t.Fatal("run must fire after required updates")
	}
}
