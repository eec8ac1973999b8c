package sysstatus

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestTrackerUptime(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, time.May, 1, 12, 0, 0, 0, time.UTC))
	tr := NewTracker(clock, false)

	clock.Advance(90*time.Second + 400*time.Millisecond)
	s := tr.Status()

	if !s.Online {
		t.Fatal("expected online")
	}
	if s.Uptime != 90 {
		t.Fatalf("uptime = %d, want 90", s.Uptime)
	}
	if !s.LastUpdate.Equal(clock.Now()) {
		t.Fatalf("lastUpdate = %v, want %v", s.LastUpdate, clock.Now())
	}
	if s.Memory != nil {
		t.Fatal("memory should be omitted when disabled")
	}
}

func TestTrackerMemory(t *testing.T) {
	s := NewTracker(nil, true).Status()
	if s.Memory == nil {
		t.Fatal("expected memory stats")
	}
	if s.Memory.Sys == 0 || s.Memory.Goroutines == 0 {
		t.Fatalf("implausible memory stats: %+v", *s.Memory)
	}
}
