package timeutil

import (
	"testing"
	"time"
)

func TestMockClockAdvanceAndSince(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clk := NewMockClock(start)

	if !clk.Now().Equal(start) {
		t.Fatalf("Now() = %v, want %v", clk.Now(), start)
	}

	clk.Advance(1500 * time.Millisecond)
	if got := clk.Since(start); got != 1500*time.Millisecond {
		t.Errorf("Since(start) = %v, want 1.5s", got)
	}
}

func TestMockClockSleepNeverBlocks(t *testing.T) {
	clk := NewMockClock(time.Unix(0, 0))
	done := make(chan struct{})
	go func() {
		clk.Sleep(time.Hour)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("MockClock.Sleep blocked")
	}
	if got := clk.Now(); !got.Equal(time.Unix(0, 0).Add(time.Hour)) {
		t.Errorf("Sleep did not advance clock: %v", got)
	}
}

func TestMockClockSet(t *testing.T) {
	clk := NewMockClock(time.Unix(0, 0))
	target := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	clk.Set(target)
	if !clk.Now().Equal(target) {
		t.Errorf("Set then Now = %v, want %v", clk.Now(), target)
	}
}

func TestRealClockSince(t *testing.T) {
	var clk Clock = RealClock{}
	t0 := clk.Now()
	if clk.Since(t0) < 0 {
		t.Error("RealClock.Since went backwards")
	}
}
