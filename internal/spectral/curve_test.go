package spectral

import (
	"math"
	"testing"

	"spectrald/internal/model"
)

func testProfile() *model.SpectralProfile {
	return &model.SpectralProfile{
		Model: "LX-60",
		Sources: []model.LightSource{
			{Name: "Red", Factor: 1.0},
			{Name: "Blue", Factor: 0.5},
		},
		Points: []model.SamplePoint{
			{Wavelength: 450, Base: map[string]float64{"Red": 0.02, "Blue": 0.9}},
			{Wavelength: 530, Base: map[string]float64{"Red": 0.1, "Blue": 0.2}},
			{Wavelength: 660, Base: map[string]float64{"Red": 0.8, "Blue": 0.05}},
		},
	}
}

func TestResultant_SingleSource(t *testing.T) {
	profile := testProfile()
	curve := Resultant(profile, map[string]float64{"Red": 1.0, "Blue": 0.0})

	if len(curve) != len(profile.Points) {
		t.Fatalf("curve has %d points, want %d", len(curve), len(profile.Points))
	}
	// With Blue at 0 and Red factor 1.0, the resultant equals Red's base
	// intensity at every wavelength.
	for i, pt := range curve {
		want := profile.Points[i].Base["Red"]
		if math.Abs(pt.Intensity-want) > 1e-9 {
			t.Errorf("point %d: intensity = %v, want %v", i, pt.Intensity, want)
		}
	}
}

func TestResultant_MissingSliderDefaultsToZero(t *testing.T) {
	profile := testProfile()
	curve := Resultant(profile, map[string]float64{"Red": 1.0})
	for i, pt := range curve {
		want := profile.Points[i].Base["Red"]
		if math.Abs(pt.Intensity-want) > 1e-9 {
			t.Errorf("point %d: intensity = %v, want %v", i, pt.Intensity, want)
		}
	}
}

func TestResultant_AppliesFactor(t *testing.T) {
	profile := testProfile()
	curve := Resultant(profile, map[string]float64{"Blue": 1.0})
	// Blue carries factor 0.5.
	want := 0.9 * 0.5
	if math.Abs(curve[0].Intensity-want) > 1e-9 {
		t.Errorf("intensity = %v, want %v", curve[0].Intensity, want)
	}
}

func TestNormalize_MaxIsOne(t *testing.T) {
	vectors := []map[string]float64{
		{"Red": 1.0, "Blue": 0.0},
		{"Red": 0.3, "Blue": 0.7},
		{"Red": 0.01},
		{"Blue": 1.0},
	}
	profile := testProfile()

	for _, sliders := range vectors {
		norm := Normalize(Resultant(profile, sliders))

		var max float64
		for _, pt := range norm {
			if pt.Intensity < 0 || pt.Intensity > 1 {
				t.Fatalf("sliders %v: intensity %v outside [0,1]", sliders, pt.Intensity)
			}
			if pt.Intensity > max {
				max = pt.Intensity
			}
		}
		if math.Abs(max-1.0) > 1e-9 {
			t.Errorf("sliders %v: normalized max = %v, want 1", sliders, max)
		}
	}
}

func TestNormalize_ZeroCurve(t *testing.T) {
	profile := testProfile()
	norm := Normalize(Resultant(profile, nil))
	for i, pt := range norm {
		if pt.Intensity != 0 {
			t.Errorf("point %d: intensity = %v, want 0", i, pt.Intensity)
		}
	}
}

func TestNormalize_PreservesWavelengths(t *testing.T) {
	curve := []Point{{450, 2}, {660, 4}}
	norm := Normalize(curve)
	if norm[0].Wavelength != 450 || norm[1].Wavelength != 660 {
		t.Errorf("wavelengths not preserved: %v", norm)
	}
	if norm[0].Intensity != 0.5 || norm[1].Intensity != 1.0 {
		t.Errorf("intensities = %v, want [0.5 1]", norm)
	}
}

func TestToPWM(t *testing.T) {
	tests := []struct {
		in   float64
		want int
	}{
		{0, 0},
		{1, 255},
		{0.5, 128},
		{-0.1, 0},
		{1.5, 255},
	}
	for _, tt := range tests {
		if got := ToPWM(tt.in); got != tt.want {
			t.Errorf("ToPWM(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestToPWM_Monotonic(t *testing.T) {
	prev := -1
	for v := 0.0; v <= 1.0; v += 0.001 {
		got := ToPWM(v)
		if got < prev {
			t.Fatalf("ToPWM not monotonic at %v: %d < %d", v, got, prev)
		}
		prev = got
	}
}
