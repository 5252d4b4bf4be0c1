// Package profile turns vendor calibration files into spectral
// profiles. The daemon treats importers as a boundary: everything past
// Parse works on the validated model types only.
package profile

import (
	"fmt"
	"io"

	"spectrald/internal/model"
)

// ParseError reports which section of a calibration file failed
// validation, so an operator can fix the file instead of guessing.
type ParseError struct {
	Section string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("profile section %q: %v", e.Section, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func parseErrorf(section, format string, args ...interface{}) error {
	return &ParseError{Section: section, Err: fmt.Errorf(format, args...)}
}

// Importer parses one calibration file format. The model hint, when not
// empty, is recorded as the profile's bound fixture model unless the
// file names one itself.
type Importer interface {
	Parse(r io.Reader, modelHint string) (*model.SpectralProfile, error)
}

// validate applies the structural rules every importer's output must
// satisfy before the profile may reach a room.
func validate(p *model.SpectralProfile) error {
	if len(p.Sources) == 0 {
		return parseErrorf("sources", "no light sources defined")
	}
	seen := make(map[string]struct{}, len(p.Sources))
	for i, src := range p.Sources {
		if src.Name == "" {
			return parseErrorf("sources", "source %d has no name", i)
		}
		if _, dup := seen[src.Name]; dup {
			return parseErrorf("sources", "duplicate source %q", src.Name)
		}
		seen[src.Name] = struct{}{}
		if src.Factor < 0 {
			return parseErrorf("sources", "source %q has negative factor %v", src.Name, src.Factor)
		}
		if src.InitialPower < 0 || src.InitialPower > 100 {
			return parseErrorf("sources", "source %q initial power %v out of range 0..100", src.Name, src.InitialPower)
		}
	}

	if len(p.Points) == 0 {
		return parseErrorf("points", "no sample points defined")
	}
	prev := -1.0
	for i, pt := range p.Points {
		if pt.Wavelength <= prev {
			return parseErrorf("points", "point %d wavelength %vnm is not strictly ascending", i, pt.Wavelength)
		}
		prev = pt.Wavelength
		for source, v := range pt.Base {
			if _, known := seen[source]; !known {
				return parseErrorf("points", "point %d references unknown source %q", i, source)
			}
			if v < 0 {
				return parseErrorf("points", "point %d source %q has negative base intensity %v", i, source, v)
			}
		}
	}
	return nil
}
