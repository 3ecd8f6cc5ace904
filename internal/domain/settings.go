package domain

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// Bounds accepted from the settings surface.
const (
	MinFeedSearchDepth      = 1
	MaxFeedSearchDepth      = 15
	MinAutoKudoCheckSeconds = 60
	MaxAutoKudoCheckSeconds = 3600
)

// Settings is the live kudo configuration.
type Settings struct {
	FeedSearchDepth      int  `json:"feed_search_depth" yaml:"feed_search_depth" db:"feed_search_depth"`
	AutoKudoEnabled      bool `json:"auto_kudo_enabled" yaml:"auto_kudo_enabled" db:"auto_kudo_enabled"`
	AutoKudoCheckSeconds int  `json:"auto_kudo_check_seconds" yaml:"auto_kudo_check_seconds" db:"auto_kudo_check_seconds"`
	HideButtonWhenAuto   bool `json:"hide_button_when_auto" yaml:"hide_button_when_auto" db:"hide_button_when_auto"`
}

// DefaultSettings returns the settings seeded into an empty store.
func DefaultSettings() Settings {
	return Settings{
		FeedSearchDepth:      3,
		AutoKudoEnabled:      false,
		AutoKudoCheckSeconds: 600,
		HideButtonWhenAuto:   false,
	}
}

// Validate checks the invariants the controller relies on.
func (s Settings) Validate() error {
	var errs []error
	if s.FeedSearchDepth <= 0 {
		errs = append(errs, errors.New("feed_search_depth must be positive"))
	}
	if s.AutoKudoCheckSeconds <= 0 {
		errs = append(errs, errors.New("auto_kudo_check_seconds must be positive"))
	}
	return errors.Join(errs...)
}

// Merge returns s with every field set in p replaced.
func (s Settings) Merge(p SettingsPatch) Settings {
	if p.FeedSearchDepth != nil {
		s.FeedSearchDepth = *p.FeedSearchDepth
	}
	if p.AutoKudoEnabled != nil {
		s.AutoKudoEnabled = *p.AutoKudoEnabled
	}
	if p.AutoKudoCheckSeconds != nil {
		s.AutoKudoCheckSeconds = *p.AutoKudoCheckSeconds
	}
	if p.HideButtonWhenAuto != nil {
		s.HideButtonWhenAuto = *p.HideButtonWhenAuto
	}
	return s
}

// Patch returns a patch that sets every field to the value in s.
func (s Settings) Patch() SettingsPatch {
	return SettingsPatch{
		FeedSearchDepth:      &s.FeedSearchDepth,
		AutoKudoEnabled:      &s.AutoKudoEnabled,
		AutoKudoCheckSeconds: &s.AutoKudoCheckSeconds,
		HideButtonWhenAuto:   &s.HideButtonWhenAuto,
	}
}

// SettingsPatch is a partial settings update. Nil fields are left unchanged.
type SettingsPatch struct {
	FeedSearchDepth      *int  `json:"feed_search_depth,omitempty"`
	AutoKudoEnabled      *bool `json:"auto_kudo_enabled,omitempty"`
	AutoKudoCheckSeconds *int  `json:"auto_kudo_check_seconds,omitempty"`
	HideButtonWhenAuto   *bool `json:"hide_button_when_auto,omitempty"`
}

// SettingsForm is raw input from a settings surface. Numeric fields arrive as
// text and are clamped rather than rejected.
type SettingsForm struct {
	FeedSearchDepth      FormNumber `json:"feed_search_depth" yaml:"feed_search_depth"`
	AutoKudoEnabled      bool       `json:"auto_kudo_enabled" yaml:"auto_kudo_enabled"`
	AutoKudoCheckSeconds FormNumber `json:"auto_kudo_check_seconds" yaml:"auto_kudo_check_seconds"`
	HideButtonWhenAuto   bool       `json:"hide_button_when_auto" yaml:"hide_button_when_auto"`
}

// FormNumber is numeric form text. JSON numbers are accepted as well.
type FormNumber string

func (n *FormNumber) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = FormNumber(s)
		return nil
	}
	if string(data) == "null" {
		*n = ""
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return err
	}
	*n = FormNumber(num)
	return nil
}

// Settings converts the form, clamping numbers into the accepted ranges.
// Non-numeric input becomes the lower bound.
func (f SettingsForm) Settings() Settings {
	return Settings{
		FeedSearchDepth:      clampInput(f.FeedSearchDepth, MinFeedSearchDepth, MaxFeedSearchDepth),
		AutoKudoEnabled:      f.AutoKudoEnabled,
		AutoKudoCheckSeconds: clampInput(f.AutoKudoCheckSeconds, MinAutoKudoCheckSeconds, MaxAutoKudoCheckSeconds),
		HideButtonWhenAuto:   f.HideButtonWhenAuto,
	}
}

func clampInput(raw FormNumber, lo, hi int) int {
	v, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
