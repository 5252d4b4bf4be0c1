// Package spectral implements the pure curve math behind the mixing
// engine: resultant curve computation, normalization, master scaling and
// PWM conversion. Nothing here performs I/O or touches shared state.
package spectral

import (
	"math"

	"spectrald/internal/model"
)

// Point is one sample of a computed output curve.
type Point struct {
	Wavelength float64 `json:"wavelength"`
	Intensity  float64 `json:"intensity"`
}

// Resultant computes the unnormalized output curve for the given slider
// values. Sources missing from sliders contribute nothing.
func Resultant(profile *model.SpectralProfile, sliders map[string]float64) []Point {
	curve := make([]Point, 0, len(profile.Points))
	for _, pt := range profile.Points {
		var raw float64
		for _, src := range profile.Sources {
			raw += pt.Base[src.Name] * sliders[src.Name] * src.Factor
		}
		curve = append(curve, Point{Wavelength: pt.Wavelength, Intensity: raw})
	}
	return curve
}

// Normalize scales the curve so its maximum is exactly 1. A curve whose
// maximum is not positive normalizes to all zeros.
func Normalize(curve []Point) []Point {
	var max float64
	for _, pt := range curve {
		if pt.Intensity > max {
			max = pt.Intensity
		}
	}

	out := make([]Point, len(curve))
	for i, pt := range curve {
		out[i] = Point{Wavelength: pt.Wavelength}
		if max > 0 {
			out[i].Intensity = pt.Intensity / max
		}
	}
	return out
}

// Clamp01 clamps v into [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ToPWM converts a normalized slider value into an 8-bit duty cycle.
func ToPWM(v float64) int {
	return int(math.Round(Clamp01(v) * 255))
}
