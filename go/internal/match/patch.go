package match

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"
)

// Action is a timer transition requested by an admin.
type Action string

const (
	ActionStart Action = "start"
	ActionPause Action = "pause"
	ActionStop  Action = "stop"
)

// Area names a sub-area of the match state touched by a patch.
type Area string

const (
	AreaTimer           Area = "timer"
	AreaTeams           Area = "teams"
	AreaScores          Area = "scores"
	AreaLogos           Area = "logos"
	AreaStatus          Area = "status"
	AreaWelcomeMessage  Area = "welcomeMessage"
	AreaTriggers        Area = "triggers"
	AreaDisplaySettings Area = "displaySettings"
)

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	TeamA           *string
	TeamB           *string
	ScoreA          *int
	ScoreB          *int
	LogoA           *string
	LogoB           *string
	Status          *string
	WelcomeMessage  *string
	Action          *Action
	Triggers        map[string]string
	DisplaySettings *DisplaySettingsPatch
}

// DisplaySettingsPatch is merged key by key into the stored display settings.
type DisplaySettingsPatch struct {
	Brightness  *int
	Contrast    *int
	RefreshRate *int
	Resolution  *string
}

var resolutionPattern = regexp.MustCompile(`^[1-9][0-9]{1,4}x[1-9][0-9]{1,4}$`)

// DecodePatch converts a JSON update body into a Patch. Type violations are
// returned as ValidationErrors; a body that is not a JSON object yields
// ErrEmptyPatch. When "action" is present every other key is ignored.
func DecodePatch(raw []byte) (Patch, error) {
	var p Patch

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return p, ErrEmptyPatch
	}

	var errs ValidationErrors

	if v, ok := present(fields, "action"); ok {
		s, err := decodeString(v)
		if err != nil {
			errs.add("action", err.Error())
			return p, errs
		}
		action := Action(s)
		p.Action = &action
		return p, nil
	}

	p.TeamA = stringField(fields, "teamA", &errs)
	p.TeamB = stringField(fields, "teamB", &errs)
	p.LogoA = stringField(fields, "logoA", &errs)
	p.LogoB = stringField(fields, "logoB", &errs)
	p.Status = stringField(fields, "status", &errs)
	p.WelcomeMessage = stringField(fields, "welcomeMessage", &errs)
	p.ScoreA = intField(fields, "scoreA", "scoreA", &errs)
	p.ScoreB = intField(fields, "scoreB", "scoreB", &errs)

	if v, ok := present(fields, "triggers"); ok {
		var triggers map[string]json.RawMessage
		if err := json.Unmarshal(v, &triggers); err != nil {
			errs.add("triggers", "must be an object")
		} else {
			p.Triggers = make(map[string]string, len(triggers))
			for key, tv := range triggers {
				s, err := decodeString(tv)
				if err != nil || s == "" {
					log.Warn().Str("trigger", key).RawJSON("value", tv).Msg("dropping non-string trigger value")
					continue
				}
				p.Triggers[key] = s
			}
		}
	}

	if v, ok := present(fields, "displaySettings"); ok {
		var ds map[string]json.RawMessage
		if err := json.Unmarshal(v, &ds); err != nil {
			errs.add("displaySettings", "must be an object")
		} else {
			p.DisplaySettings = &DisplaySettingsPatch{
				Brightness:  intField(ds, "brightness", "displaySettings.brightness", &errs),
				Contrast:    intField(ds, "contrast", "displaySettings.contrast", &errs),
				RefreshRate: intField(ds, "refreshRate", "displaySettings.refreshRate", &errs),
				Resolution:  stringFieldAs(ds, "resolution", "displaySettings.resolution", &errs),
			}
		}
	}

	if len(errs) > 0 {
		return p, errs
	}
	return p, nil
}

// Validate reports every range or value violation in the patch. Score values
// are clamped on apply and never fail here.
func (p Patch) Validate() ValidationErrors {
	var errs ValidationErrors

	if p.Action != nil {
		switch *p.Action {
		case ActionStart, ActionPause, ActionStop:
		default:
			errs.add("action", fmt.Sprintf("unknown action %q", string(*p.Action)))
		}
		return errs
	}

	if ds := p.DisplaySettings; ds != nil {
		if ds.Brightness != nil && (*ds.Brightness < MinBrightness || *ds.Brightness > MaxBrightness) {
			errs.add("displaySettings.brightness", fmt.Sprintf("must be between %d and %d", MinBrightness, MaxBrightness))
		}
		if ds.Contrast != nil && (*ds.Contrast < MinContrast || *ds.Contrast > MaxContrast) {
			errs.add("displaySettings.contrast", fmt.Sprintf("must be between %d and %d", MinContrast, MaxContrast))
		}
		if ds.RefreshRate != nil && !slices.Contains(AllowedRefreshRates, *ds.RefreshRate) {
			errs.add("displaySettings.refreshRate", "must be one of 60, 120, 240")
		}
		if ds.Resolution != nil && !resolutionPattern.MatchString(*ds.Resolution) {
			errs.add("displaySettings.resolution", "must look like WIDTHxHEIGHT")
		}
	}

	return errs
}

// ValidTriggerURL reports whether s is an absolute URL with a scheme.
func ValidTriggerURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || u.Scheme == "" {
		return false
	}
	return u.Host != "" || u.Opaque != ""
}

func present(fields map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	v, ok := fields[key]
	if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return nil, false
	}
	return v, true
}

func decodeString(v json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", errors.New("must be a string")
	}
	return s, nil
}

func stringField(fields map[string]json.RawMessage, key string, errs *ValidationErrors) *string {
	return stringFieldAs(fields, key, key, errs)
}

func stringFieldAs(fields map[string]json.RawMessage, key, name string, errs *ValidationErrors) *string {
	v, ok := present(fields, key)
	if !ok {
		return nil
	}
	s, err := decodeString(v)
	if err != nil {
		errs.add(name, err.Error())
		return nil
	}
	return &s
}

func intField(fields map[string]json.RawMessage, key, name string, errs *ValidationErrors) *int {
	v, ok := present(fields, key)
	if !ok {
		return nil
	}
	var f float64
	if err := json.Unmarshal(v, &f); err != nil {
		errs.add(name, "must be a number")
		return nil
	}
	if f != math.Trunc(f) {
		errs.add(name, "must be a whole number")
		return nil
	}
	// Keep the value inside int range; out-of-range scores clamp on apply.
	f = math.Max(math.Min(f, math.MaxInt32), math.MinInt32)
	n := int(f)
	return &n
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func clamp(n, lo, hi int) int {
	return max(lo, min(n, hi))
}
