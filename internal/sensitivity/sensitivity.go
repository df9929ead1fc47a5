// Package sensitivity holds the named silence-detection profiles used by the
// speech gate.
//
// Profiles are looked up by preset name ("high", "very_low", ...) or by
// environment label ("office", "street_outdoor", ...). The tables are built
// once and never mutated; an unknown name is always an error and never falls
// back to a default.
package sensitivity

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

var (
	// ErrUnknownProfile is returned by [Table.Lookup] for a name that is
	// neither a preset nor an environment label.
	ErrUnknownProfile = errors.New("sensitivity: unknown profile")

	// ErrInvalidProfile is returned by [Profile.Validate].
	ErrInvalidProfile = errors.New("sensitivity: invalid profile")
)

// CustomName is the name given to explicit override profiles.
const CustomName = "custom"

// Profile is an immutable bundle of speech gate parameters.
type Profile struct {
	// Name is the preset name, or [CustomName] for an override.
	Name string

	// Environment is the label the profile was resolved from, if any.
	Environment string

	// Threshold is the base volume (0, 1] above which a chunk counts as speech.
	Threshold float64

	// SilenceDuration is how long trailing silence must last to end a
	// recording.
	SilenceDuration time.Duration

	// MinRecording is the minimum recording length before silence may end it.
	MinRecording time.Duration

	// Description is a human-readable summary.
	Description string
}

// Validate reports whether p can drive a speech gate.
func (p Profile) Validate() error {
	var errs []error
	if !(p.Threshold > 0 && p.Threshold <= 1) {
		errs = append(errs, fmt.Errorf("threshold %v must be in (0, 1]", p.Threshold))
	}
	if p.SilenceDuration <= 0 {
		errs = append(errs, fmt.Errorf("silence duration %s must be positive", p.SilenceDuration))
	}
	if p.MinRecording <= 0 {
		errs = append(errs, fmt.Errorf("min recording %s must be positive", p.MinRecording))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w %q: %w", ErrInvalidProfile, p.Name, errors.Join(errs...))
	}
	return nil
}

// String returns a one-line summary of p.
func (p Profile) String() string {
	return fmt.Sprintf("%s (threshold=%g, silence=%s, min=%s)", p.Name, p.Threshold, p.SilenceDuration, p.MinRecording)
}

// Custom returns a validated override profile named [CustomName].
func Custom(threshold float64, silence, minRecording time.Duration) (Profile, error) {
	p := Profile{
		Name:            CustomName,
		Threshold:       threshold,
		SilenceDuration: silence,
		MinRecording:    minRecording,
		Description:     "Explicit override",
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Environment maps an ambient-noise label to a preset name.
type Environment struct {
	Label  string
	Preset string
}

// Table is an immutable set of presets and environment labels.
type Table struct {
	presets      []Profile
	environments []Environment
}

// NewTable builds a table from presets and environment labels. Every preset
// must validate, names must be unique and every environment must point at an
// existing preset.
func NewTable(presets []Profile, envs []Environment) (*Table, error) {
	seen := make(map[string]bool, len(presets))
	for _, p := range presets {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("sensitivity: duplicate preset %q", p.Name)
		}
		seen[p.Name] = true
	}
	for _, e := range envs {
		if seen[e.Label] {
			return nil, fmt.Errorf("sensitivity: environment %q shadows a preset", e.Label)
		}
		if !seen[e.Preset] {
			return nil, fmt.Errorf("sensitivity: environment %q refers to unknown preset %q", e.Label, e.Preset)
		}
	}
	return &Table{presets: slices.Clone(presets), environments: slices.Clone(envs)}, nil
}

// Lookup resolves name as an environment label first, then as a preset name.
func (t *Table) Lookup(name string) (Profile, error) {
	env := ""
	for _, e := range t.environments {
		if e.Label == name {
			env, name = e.Label, e.Preset
			break
		}
	}
	for _, p := range t.presets {
		if p.Name == name {
			p.Environment = env
			return p, nil
		}
	}
	return Profile{}, fmt.Errorf("%w %q (available: %s)", ErrUnknownProfile, name, strings.Join(t.Names(), ", "))
}

// Presets returns a copy of all presets in table order.
func (t *Table) Presets() []Profile { return slices.Clone(t.presets) }

// Environments returns a copy of all environment labels in table order.
func (t *Table) Environments() []Environment { return slices.Clone(t.environments) }

// Names returns every name accepted by Lookup: presets first, then
// environment labels.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.presets)+len(t.environments))
	for _, p := range t.presets {
		names = append(names, p.Name)
	}
	for _, e := range t.environments {
		names = append(names, e.Label)
	}
	return names
}

// Default returns the built-in table. It is constructed on first use.
var Default = sync.OnceValue(func() *Table {
	t, err := NewTable(builtinPresets, builtinEnvironments)
	if err != nil {
		panic(err)
	}
	return t
})

// Lookup resolves name against the [Default] table.
func Lookup(name string) (Profile, error) { return Default().Lookup(name) }

const ms = time.Millisecond

var builtinPresets = []Profile{
	{Name: "ultra_sensitive", Threshold: 0.0005, SilenceDuration: 1000 * ms, MinRecording: 200 * ms,
		Description: "Ultra-sensitive for very quiet speech without shouting"},
	{Name: "very_high", Threshold: 0.002, SilenceDuration: 1500 * ms, MinRecording: 300 * ms,
		Description: "For whispers and very quiet speech"},
	{Name: "high", Threshold: 0.005, SilenceDuration: 2000 * ms, MinRecording: 500 * ms,
		Description: "For quiet/normal speech (recommended)"},
	{Name: "medium", Threshold: 0.01, SilenceDuration: 2000 * ms, MinRecording: 500 * ms,
		Description: "For normal to loud speech"},
	{Name: "low", Threshold: 0.02, SilenceDuration: 2500 * ms, MinRecording: 700 * ms,
		Description: "For loud speech in noisy environments"},
	{Name: "very_low", Threshold: 0.05, SilenceDuration: 3000 * ms, MinRecording: 1000 * ms,
		Description: "For very loud speech or very noisy environments"},
}

var builtinEnvironments = []Environment{
	{Label: "quiet_room", Preset: "very_high"},
	{Label: "normal_room", Preset: "high"},
	{Label: "office", Preset: "medium"},
	{Label: "cafe_restaurant", Preset: "low"},
	{Label: "street_outdoor", Preset: "very_low"},
}
