package spectral

// ScaleByMaster applies a master multiplier to captured base values.
// Frozen sources keep their captured base value exactly; everything else
// becomes clamp(base*master, 0, 1). Note that frozen sources are pinned
// from the moment master mode was enabled, which also shields them from
// direct edits until unfrozen.
func ScaleByMaster(base map[string]float64, master float64, frozen map[string]bool) map[string]float64 {
	out := make(map[string]float64, len(base))
	for source, v := range base {
		if frozen[source] {
			out[source] = v
			continue
		}
		out[source] = Clamp01(v * master)
	}
	return out
}
