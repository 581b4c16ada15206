package scoring

import (
	"math"
	"sort"
)

// SeverityLow is returned when no band applies.
const SeverityLow = "low"

// SortBands returns a copy of bands ordered by Min, highest first. Bands
// with equal Min keep their relative order.
func SortBands(bands []SeverityBand) []SeverityBand {
	if len(bands) == 0 {
		return nil
	}
	out := make([]SeverityBand, len(bands))
	copy(out, bands)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Min > out[j].Min })
	return out
}

func bandsSorted(bands []SeverityBand) bool {
	return sort.SliceIsSorted(bands, func(i, j int) bool { return bands[i].Min > bands[j].Min })
}

// bandFor returns the first band whose Min does not exceed score, or the
// last band when score is below all of them.
func bandFor(score *float64, bands []SeverityBand) *SeverityBand {
	if score == nil || len(bands) == 0 || math.IsNaN(*score) {
		return nil
	}
	if !bandsSorted(bands) {
		bands = SortBands(bands)
	}
	for i := range bands {
		if bands[i].Min <= *score {
			return &bands[i]
		}
	}
	return &bands[len(bands)-1]
}

// SeverityOf classifies score against bands. It returns "low" for a nil
// score or an empty band set.
func SeverityOf(score *float64, bands []SeverityBand) string {
	b := bandFor(score, bands)
	if b == nil || b.Label == "" {
		return SeverityLow
	}
	return b.Label
}

// MeaningOf returns the configured meaning for the band score falls in.
func MeaningOf(score *float64, bands []SeverityBand) *string {
	b := bandFor(score, bands)
	if b == nil || b.Meaning == "" {
		return nil
	}
	m := b.Meaning
	return &m
}

// meaningForLabel returns the meaning of the first band labelled label.
func meaningForLabel(label string, bands []SeverityBand) *string {
	for _, b := range bands {
		if b.Label == label && b.Meaning != "" {
			m := b.Meaning
			return &m
		}
	}
	return nil
}
