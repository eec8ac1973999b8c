// Package sysstatus reports process health for embedding in scoreboard poll
// responses.
package sysstatus

import (
	"runtime"
	"time"

	"github.com/jonboulle/clockwork"
)

// Status is the process-health value attached to poll responses.
type Status struct {
	Online     bool      `json:"online"`
	LastUpdate time.Time `json:"lastUpdate"`
	Uptime     int64     `json:"uptime"`
	Memory     *Memory   `json:"memory,omitempty"`
}

// Memory is a subset of runtime.MemStats plus the goroutine count.
type Memory struct {
	HeapAlloc  uint64 `json:"heapAlloc"`
	HeapInuse  uint64 `json:"heapInuse"`
	Sys        uint64 `json:"sys"`
	NumGC      uint32 `json:"numGC"`
	Goroutines int    `json:"goroutines"`
}

// Provider supplies the current process status.
type Provider interface {
	Status() Status
}

// Tracker is a Provider measuring uptime from a fixed start time.
type Tracker struct {
	startedAt     time.Time
	clock         clockwork.Clock
	includeMemory bool
}

// NewTracker creates a Tracker. A nil clock uses the real clock.
func NewTracker(clock clockwork.Clock, includeMemory bool) *Tracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Tracker{
		startedAt:     clock.Now(),
		clock:         clock,
		includeMemory: includeMemory,
	}
}

// Status returns the process status at the moment of the call.
func (t *Tracker) Status() Status {
	now := t.clock.Now()
	s := Status{
		Online:     true,
		LastUpdate: now.UTC(),
		Uptime:     int64(now.Sub(t.startedAt) / time.Second),
	}
	if t.includeMemory {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		s.Memory = &Memory{
			HeapAlloc:  ms.HeapAlloc,
			HeapInuse:  ms.HeapInuse,
			Sys:        ms.Sys,
			NumGC:      ms.NumGC,
			Goroutines: runtime.NumGoroutine(),
		}
	}
	return s
}

// Offline is the status reported when a snapshot could not be produced.
func Offline() Status {
	return Status{Online: false}
}
