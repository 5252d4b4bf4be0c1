package profile

import (
	"encoding/json"
	"io"

	"spectrald/internal/model"
)

// jsonFile is the calibration export format newer fixture firmwares
// serve from their profile endpoint.
type jsonFile struct {
	Model   string `json:"model"`
	Sources []struct {
		Name         string  `json:"name"`
		Color        string  `json:"color"`
		Factor       float64 `json:"factor"`
		InitialPower float64 `json:"initial_power"`
	} `json:"sources"`
	Points []struct {
		Wavelength float64            `json:"wavelength"`
		Base       map[string]float64 `json:"base"`
	} `json:"points"`
}

// JSONImporter parses JSON calibration exports.
type JSONImporter struct{}

func NewJSONImporter() *JSONImporter { return &JSONImporter{} }

func (im *JSONImporter) Parse(r io.Reader, modelHint string) (*model.SpectralProfile, error) {
	var f jsonFile
	dec := json.NewDecoder(r)
	if err := dec.Decode(&f); err != nil {
		return nil, &ParseError{Section: "file", Err: err}
	}

	p := &model.SpectralProfile{Model: f.Model}
	if p.Model == "" {
		p.Model = modelHint
	}
	for _, src := range f.Sources {
		factor := src.Factor
		if factor == 0 {
			factor = 1
		}
		p.Sources = append(p.Sources, model.LightSource{
			Name:         src.Name,
			Color:        src.Color,
			Factor:       factor,
			InitialPower: src.InitialPower,
		})
	}
	for _, pt := range f.Points {
		p.Points = append(p.Points, model.SamplePoint{
			Wavelength: pt.Wavelength,
			Base:       pt.Base,
		})
	}

	if err := validate(p); err != nil {
		return nil, err
	}
	return p, nil
}
