package match

import (
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Applied lists the sub-areas a successful patch touched.
type Applied []Area

// Store owns the single MatchState of the process. All mutations run under
// the write lock so a patch is observed atomically by readers and by other
// patches.
type Store struct {
	mu    sync.RWMutex
	state MatchState
	clock clockwork.Clock
}

// NewStore creates a store holding the default match state. A nil clock
// falls back to the real clock.
func NewStore(clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{
		state: DefaultMatchState(clock.Now()),
		clock: clock,
	}
}

// Snapshot returns the derived view of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return NewSnapshot(s.state, s.clock.Now())
}

// ApplyJSON decodes and applies a JSON update body. Decode and range
// violations are reported together.
func (s *Store) ApplyJSON(raw []byte) (Applied, error) {
	p, err := DecodePatch(raw)
	if err != nil {
		decodeErrs, ok := AsValidationErrors(err)
		if !ok {
			return nil, err
		}
		return nil, append(decodeErrs, p.Validate()...)
	}
	return s.ApplyUpdate(p)
}

// ApplyUpdate validates p and applies it. If any field is invalid nothing is
// applied and the full ValidationErrors list is returned.
func (s *Store) ApplyUpdate(p Patch) (Applied, error) {
	if errs := p.Validate(); len(errs) > 0 {
		return nil, errs
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	var applied Applied

	if p.Action != nil {
		s.applyAction(*p.Action)
		applied = append(applied, AreaTimer)
	} else {
		applied = s.applyFields(p)
	}

	s.state.DisplaySettings.LastUpdate = now.UTC()

	log.Debug().
		Interface("areas", applied).
		Int("score_a", s.state.ScoreA).
		Int("score_b", s.state.ScoreB).
		Msg("match state updated")

	return applied, nil
}

func (s *Store) applyAction(action Action) {
	now := s.clock.Now()
	timer := &s.state.TimerState

	switch action {
	case ActionStart:
		if timer.Start(now) {
			s.state.Status = StatusFirstHalf
		}
	case ActionPause:
		if timer.Pause(now) {
			s.state.Status = StatusPaused
		}
	case ActionStop:
		timer.Stop()
		s.state.Status = StatusNotStarted
	}
}

func (s *Store) applyFields(p Patch) Applied {
	var applied Applied
	st := &s.state

	if p.TeamA != nil || p.TeamB != nil {
		if p.TeamA != nil {
			st.TeamA = truncate(*p.TeamA, MaxTeamNameLength)
		}
		if p.TeamB != nil {
			st.TeamB = truncate(*p.TeamB, MaxTeamNameLength)
		}
		applied = append(applied, AreaTeams)
	}

	if p.ScoreA != nil || p.ScoreB != nil {
		if p.ScoreA != nil {
			st.ScoreA = clamp(*p.ScoreA, MinScore, MaxScore)
		}
		if p.ScoreB != nil {
			st.ScoreB = clamp(*p.ScoreB, MinScore, MaxScore)
		}
		applied = append(applied, AreaScores)
	}

	if p.LogoA != nil || p.LogoB != nil {
		if p.LogoA != nil {
			st.LogoA = *p.LogoA
		}
		if p.LogoB != nil {
			st.LogoB = *p.LogoB
		}
		applied = append(applied, AreaLogos)
	}

	if p.Status != nil {
		st.Status = *p.Status
		applied = append(applied, AreaStatus)
	}

	if p.WelcomeMessage != nil {
		st.WelcomeMessage = truncate(*p.WelcomeMessage, MaxWelcomeMessageLength)
		applied = append(applied, AreaWelcomeMessage)
	}

	if len(p.Triggers) > 0 {
		merged := 0
		for key, value := range p.Triggers {
			if !ValidTriggerURL(value) {
				log.Warn().Str("trigger", key).Str("value", value).Msg("invalid trigger URL, dropping")
				continue
			}
			st.Triggers[key] = value
			merged++
		}
		if merged > 0 {
			applied = append(applied, AreaTriggers)
		}
	}

	if ds := p.DisplaySettings; ds != nil {
		if ds.Brightness != nil {
			st.DisplaySettings.Brightness = *ds.Brightness
		}
		if ds.Contrast != nil {
			st.DisplaySettings.Contrast = *ds.Contrast
		}
		if ds.RefreshRate != nil {
			st.DisplaySettings.RefreshRate = *ds.RefreshRate
		}
		if ds.Resolution != nil {
			st.DisplaySettings.Resolution = *ds.Resolution
		}
		applied = append(applied, AreaDisplaySettings)
	}

	return applied
}
