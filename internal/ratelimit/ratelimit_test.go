package ratelimit

import (
	"testing"
	"time"
)

func TestAllowWithinLimit(t *testing.T) {
	l := New(3, time.Minute)
	for i := 0; i < 3; i++ {
		if !l.Allow("u1") {
			t.Fatalf("call %d denied within limit", i)
		}
	}
	if l.Allow("u1") {
		t.Error("call over the limit allowed")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l := New(1, time.Minute)
	if !l.Allow("u1") {
		t.Fatal("u1 denied")
	}
	if !l.Allow("u2") {
		t.Error("u2 denied by u1's usage")
	}
	if l.Allow("u1") {
		t.Error("u1 second call allowed")
	}
}

func TestWindowSlides(t *testing.T) {
	clock := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	l := New(2, time.Minute)
	l.now = func() time.Time { return clock }

	if !l.Allow("u1") || !l.Allow("u1") {
		t.Fatal("initial calls denied")
	}
	if l.Allow("u1") {
		t.Fatal("third call allowed")
	}

	clock = clock.Add(30 * time.Second)
	if l.Allow("u1") {
		t.Error("call allowed mid-window")
	}

	clock = clock.Add(31 * time.Second)
	if !l.Allow("u1") {
		t.Error("call denied after the window slid")
	}
}

func TestDeniedCallsDoNotExtendWindow(t *testing.T) {
	clock := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	l := New(1, time.Minute)
	l.now = func() time.Time { return clock }

	if !l.Allow("u1") {
		t.Fatal("first call denied")
	}
	// Hammering while denied must not reset the window.
	for i := 0; i < 5; i++ {
		clock = clock.Add(10 * time.Second)
		l.Allow("u1")
	}
	clock = clock.Add(11 * time.Second)
	if !l.Allow("u1") {
		t.Error("window extended by denied calls")
	}
}

func TestRemaining(t *testing.T) {
	l := New(2, time.Minute)
	if got := l.Remaining("u1"); got != 2 {
		t.Errorf("remaining = %d, want 2", got)
	}
	l.Allow("u1")
	if got := l.Remaining("u1"); got != 1 {
		t.Errorf("remaining = %d, want 1", got)
	}
	l.Allow("u1")
	if got := l.Remaining("u1"); got != 0 {
		t.Errorf("remaining = %d, want 0", got)
	}
}

func TestZeroLimitAllowsAll(t *testing.T) {
	l := New(0, time.Minute)
	for i := 0; i < 100; i++ {
		if !l.Allow("u1") {
			t.Fatal("zero limit denied a call")
		}
	}
}
