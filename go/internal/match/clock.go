package match

import (
	"fmt"
	"time"
)

// MaxElapsed caps the match clock at 120 minutes regardless of wall time.
const MaxElapsed = 120 * time.Minute

// Status labels assigned by timer transitions.
const (
	StatusNotStarted = "Not Started"
	StatusFirstHalf  = "1st Half"
	StatusPaused     = "Paused"
)

// TimerState is the stored form of the match clock. Elapsed time is never
// stored; it is derived from these fields whenever it is read.
type TimerState struct {
	StartEpochMs        *int64 `json:"startTime"`
	Paused              bool   `json:"paused"`
	PausedAccumulatedMs int64  `json:"pausedTime"`
}

// NewTimerState returns a stopped clock.
func NewTimerState() TimerState {
	return TimerState{Paused: true}
}

// DeriveElapsed computes the elapsed match time at now, clamped to [0, MaxElapsed].
func DeriveElapsed(t TimerState, now time.Time) time.Duration {
	var elapsedMs int64
	switch {
	case t.Paused:
		elapsedMs = t.PausedAccumulatedMs
	case t.StartEpochMs != nil:
		elapsedMs = now.UnixMilli() - *t.StartEpochMs
	}

	elapsed := time.Duration(elapsedMs) * time.Millisecond
	if elapsed < 0 {
		return 0
	}
	if elapsed > MaxElapsed {
		return MaxElapsed
	}
	return elapsed
}

// FormatClock renders an elapsed duration as MM:SS.
func FormatClock(d time.Duration) string {
	totalSeconds := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d", totalSeconds/60, totalSeconds%60)
}

// Start resumes the clock from its accumulated value. It reports whether the
// state changed; starting a running clock is a no-op.
func (t *TimerState) Start(now time.Time) bool {
	if !t.Paused {
		return false
	}
	start := now.UnixMilli() - t.PausedAccumulatedMs
	t.StartEpochMs = &start
	t.Paused = false
	return true
}

// Pause freezes the clock at the current elapsed value. Pausing a paused
// clock is a no-op.
func (t *TimerState) Pause(now time.Time) bool {
	if t.Paused {
		return false
	}
	if t.StartEpochMs != nil {
		t.PausedAccumulatedMs = now.UnixMilli() - *t.StartEpochMs
	}
	t.Paused = true
	return true
}

// Stop resets the clock to zero. It always takes effect.
func (t *TimerState) Stop() {
	t.StartEpochMs = nil
	t.Paused = true
	t.PausedAccumulatedMs = 0
}
