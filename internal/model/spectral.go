package model

import (
	"strings"
	"time"
)

// LightSource is one controllable emitter group in a spectral profile.
type LightSource struct {
	Name         string  `json:"name"`
	Color        string  `json:"color,omitempty"`
	Factor       float64 `json:"factor"`
	InitialPower float64 `json:"initial_power"` // percentage, 0..100
}

// SamplePoint is one wavelength sample with per-source base intensities,
// keyed by source name.
type SamplePoint struct {
	Wavelength float64            `json:"wavelength"`
	Base       map[string]float64 `json:"base"`
}

// SpectralProfile is the parsed spectral characterization of a fixture
// model. It is immutable once parsed; re-importing replaces the whole
// room configuration.
type SpectralProfile struct {
	Model   string        `json:"model,omitempty"`
	Sources []LightSource `json:"sources"`
	Points  []SamplePoint `json:"points"`
}

// SourceIndex returns the position of the named source in the profile's
// ordering, or -1 if absent. Matching is case-insensitive.
func (p *SpectralProfile) SourceIndex(name string) int {
	for i, src := range p.Sources {
		if strings.EqualFold(src.Name, name) {
			return i
		}
	}
	return -1
}

// Preset is a named full snapshot of slider values.
type Preset struct {
	ID      string             `json:"id"`
	Name    string             `json:"name"`
	Sliders map[string]float64 `json:"sliders"`
}

// MasterConfig holds the master-scaling state. Base captures the slider
// values at the moment master mode was last (re-)enabled; frozen sources
// stay pinned at their captured base value, immune to both master scaling
// and direct edits.
type MasterConfig struct {
	Enabled bool               `json:"enabled"`
	Value   float64            `json:"value"`
	Base    map[string]float64 `json:"base,omitempty"`
	Frozen  map[string]bool    `json:"frozen,omitempty"`
}

// SpectralConfig is a room's spectral state: the imported profile, current
// slider values, named presets and optional master scaling.
type SpectralConfig struct {
	Profile    SpectralProfile    `json:"profile"`
	Sliders    map[string]float64 `json:"sliders"`
	Presets    []Preset           `json:"presets,omitempty"`
	Master     *MasterConfig      `json:"master,omitempty"`
	SourceFile string             `json:"source_file,omitempty"`
	ComputedAt time.Time          `json:"computed_at"`
}

// Preset returns the preset with the given id, or nil.
func (c *SpectralConfig) Preset(id string) *Preset {
	for i := range c.Presets {
		if c.Presets[i].ID == id {
			return &c.Presets[i]
		}
	}
	return nil
}

// Frozen reports whether the named source is pinned by an active master
// configuration.
func (c *SpectralConfig) Frozen(source string) bool {
	return c.Master != nil && c.Master.Enabled && c.Master.Frozen[source]
}
