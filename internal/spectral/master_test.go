package spectral

import (
	"math"
	"testing"
)

func TestScaleByMaster(t *testing.T) {
	tests := []struct {
		name   string
		base   map[string]float64
		master float64
		frozen map[string]bool
		want   map[string]float64
	}{
		{
			name:   "frozen_source_keeps_base",
			base:   map[string]float64{"A": 0.8, "B": 0.4},
			master: 0.5,
			frozen: map[string]bool{"B": true},
			want:   map[string]float64{"A": 0.4, "B": 0.4},
		},
		{
			name:   "no_frozen",
			base:   map[string]float64{"A": 0.5, "B": 1.0},
			master: 0.5,
			want:   map[string]float64{"A": 0.25, "B": 0.5},
		},
		{
			name:   "clamped_high",
			base:   map[string]float64{"A": 0.8},
			master: 2.0,
			want:   map[string]float64{"A": 1.0},
		},
		{
			name:   "master_zero",
			base:   map[string]float64{"A": 0.8, "B": 0.4},
			master: 0,
			frozen: map[string]bool{"A": true},
			want:   map[string]float64{"A": 0.8, "B": 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScaleByMaster(tt.base, tt.master, tt.frozen)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d entries, want %d", len(got), len(tt.want))
			}
			for source, want := range tt.want {
				if math.Abs(got[source]-want) > 1e-9 {
					t.Errorf("%s = %v, want %v", source, got[source], want)
				}
			}
		})
	}
}

func TestScaleByMaster_DoesNotMutateBase(t *testing.T) {
	base := map[string]float64{"A": 0.8}
	ScaleByMaster(base, 0.5, nil)
	if base["A"] != 0.8 {
		t.Errorf("base mutated: %v", base)
	}
}
