package link

import (
	"testing"

	"spectrald/internal/model"
)

func TestMapSourceToChannel(t *testing.T) {
	tests := []struct {
		name        string
		source      string
		sourceIndex int
		device      model.Device
		want        int
	}{
		{
			name:   "exact_name_case_insensitive",
			source: "Deep Red",
			device: model.Device{ChannelCount: 3, ChannelNames: []string{"White", "deep red", "Blue"}},
			want:   1,
		},
		{
			name:   "keyword_full_word",
			source: "Red",
			device: model.Device{ChannelCount: 3, ChannelNames: []string{"White", "Red 660nm", "Blue"}},
			want:   1,
		},
		{
			name:   "keyword_wavelength_label",
			source: "Red",
			device: model.Device{ChannelCount: 2, ChannelNames: []string{"450nm", "660nm"}},
			want:   1,
		},
		{
			name:   "keyword_single_letter_exact_only",
			source: "Red",
			device: model.Device{ChannelCount: 3, ChannelNames: []string{"Green", "B", "R"}},
			want:   2,
		},
		{
			name:   "far_red_beats_red",
			source: "Far Red",
			device: model.Device{ChannelCount: 3, ChannelNames: []string{"Red", "Far Red", "Blue"}},
			want:   1,
		},
		{
			name:        "positional_fallback",
			source:      "Lime",
			sourceIndex: 2,
			device:      model.Device{ChannelCount: 4, ChannelNames: []string{"A", "B", "C", "D"}},
			want:        2,
		},
		{
			name:        "positional_out_of_range",
			source:      "Lime",
			sourceIndex: 5,
			device:      model.Device{ChannelCount: 4, ChannelNames: []string{"ch0", "ch1", "ch2", "ch3"}},
			want:        -1,
		},
		{
			name:        "unmapped",
			source:      "Cyan",
			sourceIndex: -1,
			device:      model.Device{ChannelCount: 2, ChannelNames: []string{"alpha", "beta"}},
			want:        -1,
		},
		{
			name:   "exact_beats_positional",
			source: "Blue",
			device: model.Device{ChannelCount: 3, ChannelNames: []string{"Blue", "Red", "White"}},
			want:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapSourceToChannel(tt.source, tt.sourceIndex, &tt.device)
			if got != tt.want {
				t.Errorf("MapSourceToChannel(%q) = %d, want %d", tt.source, got, tt.want)
			}
		})
	}
}
