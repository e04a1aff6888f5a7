package job

import (
	"testing"
	"time"
)

func TestManualScheduler_RunsInTimeOrder(t *testing.T) {
	s := NewManualScheduler()
	var got []string
	s.After(3*time.Second, func() { got = append(got, "c") })
	s.After(1*time.Second, func() { got = append(got, "a") })
	s.After(1*time.Second, func() { got = append(got, "b") })

	s.Advance(2 * time.Second)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("expected [a b], got %v", got)
	}
	if s.Pending() != 1 {
		t.Errorf("expected 1 pending, got %d", s.Pending())
	}

	s.Advance(time.Second)
	if len(got) != 3 || got[2] != "c" {
		t.Errorf("expected c to run at 3s, got %v", got)
	}
}

func TestManualScheduler_Cancel(t *testing.T) {
	s := NewManualScheduler()
	ran := false
	cancel := s.After(time.Second, func() { ran = true })

	if !cancel() {
		t.Error("expected first cancel to succeed")
	}
	if cancel() {
		t.Error("expected second cancel to report false")
	}
	s.Advance(time.Minute)
	if ran {
		t.Error("canceled callback ran")
	}
}

func TestManualScheduler_CancelAfterRun(t *testing.T) {
	s := NewManualScheduler()
	cancel := s.After(time.Second, func() {})
	s.Advance(time.Second)
	if cancel() {
		t.Error("expected cancel after run to report false")
	}
}

func TestManualScheduler_NestedScheduling(t *testing.T) {
	s := NewManualScheduler()
	var got []string
	s.After(time.Second, func() {
		got = append(got, "outer")
		s.After(time.Second, func() { got = append(got, "inner") })
	})

	s.Advance(1500 * time.Millisecond)
	if len(got) != 1 {
		t.Fatalf("expected only outer, got %v", got)
	}
	s.Advance(500 * time.Millisecond)
	if len(got) != 2 || got[1] != "inner" {
		t.Errorf("expected inner at 2s, got %v", got)
	}
}

func TestManualScheduler_NestedWithinSameAdvance(t *testing.T) {
	s := NewManualScheduler()
	count := 0
	s.After(time.Second, func() {
		count++
		s.After(time.Second, func() { count++ })
	})
	s.Advance(5 * time.Second)
	if count != 2 {
		t.Errorf("expected both callbacks within one advance, got %d", count)
	}
}

func TestTimerScheduler(t *testing.T) {
	s := NewTimerScheduler()
	done := make(chan struct{})
	s.After(time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer callback did not run")
	}

	cancel := s.After(time.Hour, func() {})
	if !cancel() {
		t.Error("expected cancel of a future timer to succeed")
	}
}
