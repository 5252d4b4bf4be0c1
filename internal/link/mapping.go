package link

import (
	"strings"

	"spectrald/internal/model"
	"spectrald/internal/spectral"
)

// bandKeywords maps common spectral bands to the channel-name tokens
// fixtures use for them, including the nanometer labels some vendors
// print on their channels. Ordered so that "far red" wins before "red".
var bandKeywords = []struct {
	band     string
	keywords []string
}{
	{"far red", []string{"far red", "farred", "fr", "730"}},
	{"red", []string{"red", "r", "660", "630"}},
	{"green", []string{"green", "g", "530", "520"}},
	{"blue", []string{"blue", "b", "450", "460"}},
	{"white", []string{"white", "w", "cw", "ww", "5700", "4000"}},
	{"uv", []string{"uv", "violet", "v", "410", "395"}},
}

// MapSourceToChannel resolves a spectral source name to a channel index
// on the given device. Resolution order: exact case-insensitive channel
// name, band keyword match, positional parity with the profile's source
// ordering. Returns -1 when nothing matches, in which case the command
// for that source is dropped for this device only.
func MapSourceToChannel(source string, sourceIndex int, d *model.Device) int {
	limit := d.ChannelCount
	if limit > len(d.ChannelNames) {
		limit = len(d.ChannelNames)
	}

	// Exact name match.
	for i := 0; i < limit; i++ {
		if strings.EqualFold(d.ChannelNames[i], source) {
			return i
		}
	}

	// Band keyword match.
	if kws := keywordsFor(source); kws != nil {
		for i := 0; i < limit; i++ {
			name := strings.ToLower(strings.TrimSpace(d.ChannelNames[i]))
			for _, kw := range kws {
				// Short tokens like "r" must match whole names, or a
				// channel called "green" would claim the red band.
				if len(kw) <= 2 {
					if name == kw {
						return i
					}
				} else if strings.Contains(name, kw) {
					return i
				}
			}
		}
	}

	// Positional fallback.
	if sourceIndex >= 0 && sourceIndex < d.ChannelCount {
		return sourceIndex
	}

	return -1
}

// BuildChannelValues translates slider values into a per-channel PWM
// batch for one device. Unmapped sources are dropped for this device
// only; an empty result means the device has nothing to receive.
func BuildChannelValues(profile *model.SpectralProfile, sliders map[string]float64, d *model.Device) map[int]int {
	values := make(map[int]int)
	for source, v := range sliders {
		idx := MapSourceToChannel(source, profile.SourceIndex(source), d)
		if idx < 0 || idx >= d.ChannelCount {
			continue
		}
		values[idx] = spectral.ToPWM(v)
	}
	return values
}

// keywordsFor returns the keyword list for the band the source belongs
// to, or nil when the source names no known band.
func keywordsFor(source string) []string {
	s := strings.ToLower(strings.TrimSpace(source))
	for _, entry := range bandKeywords {
		if strings.Contains(s, entry.band) {
			return entry.keywords
		}
		for _, kw := range entry.keywords {
			if s == kw {
				return entry.keywords
			}
		}
	}
	return nil
}
