package match

import (
	"time"
)

// Field limits.
const (
	MaxTeamNameLength       = 20
	MaxWelcomeMessageLength = 100
	MinScore                = 0
	MaxScore                = 999
	MinBrightness           = 10
	MaxBrightness           = 100
	MinContrast             = 50
	MaxContrast             = 150
)

// AllowedRefreshRates are the display refresh rates an LED panel accepts.
var AllowedRefreshRates = []int{60, 120, 240}

// DisplaySettings holds LED display tuning pushed to every display client.
type DisplaySettings struct {
	Brightness  int       `json:"brightness"`
	Contrast    int       `json:"contrast"`
	RefreshRate int       `json:"refreshRate"`
	Resolution  string    `json:"resolution"`
	LastUpdate  time.Time `json:"lastUpdate"`
}

// MatchState is the authoritative scoreboard state.
type MatchState struct {
	TeamA           string            `json:"teamA"`
	TeamB           string            `json:"teamB"`
	ScoreA          int               `json:"scoreA"`
	ScoreB          int               `json:"scoreB"`
	LogoA           string            `json:"logoA"`
	LogoB           string            `json:"logoB"`
	Status          string            `json:"status"`
	WelcomeMessage  string            `json:"welcomeMessage"`
	Triggers        map[string]string `json:"triggers"`
	DisplaySettings DisplaySettings   `json:"displaySettings"`
	TimerState
}

// DefaultMatchState returns the state a freshly started process serves.
func DefaultMatchState(now time.Time) MatchState {
	return MatchState{
		TeamA:      "Team A",
		TeamB:      "Team B",
		Status:     StatusNotStarted,
		Triggers:   make(map[string]string),
		TimerState: NewTimerState(),
		DisplaySettings: DisplaySettings{
			Brightness:  100,
			Contrast:    100,
			RefreshRate: 60,
			Resolution:  "1920x1080",
			LastUpdate:  now.UTC(),
		},
	}
}

func (m MatchState) clone() MatchState {
	out := m
	out.Triggers = make(map[string]string, len(m.Triggers))
	for k, v := range m.Triggers {
		out.Triggers[k] = v
	}
	if m.StartEpochMs != nil {
		start := *m.StartEpochMs
		out.StartEpochMs = &start
	}
	return out
}

// Snapshot is the derived, serializable view of the match. Elapsed time is
// computed when the snapshot is taken.
type Snapshot struct {
	MatchState
	Time             string `json:"time"`
	ElapsedMs        int64  `json:"elapsedMs"`
	Timestamp        int64  `json:"timestamp"`
	DisplayOptimized bool   `json:"displayOptimized"`
}

// NewSnapshot derives a snapshot of state at now.
func NewSnapshot(state MatchState, now time.Time) Snapshot {
	elapsed := DeriveElapsed(state.TimerState, now)
	return Snapshot{
		MatchState:       state.clone(),
		Time:             FormatClock(elapsed),
		ElapsedMs:        elapsed.Milliseconds(),
		Timestamp:        now.UnixMilli(),
		DisplayOptimized: true,
	}
}
