package scorer

import "github.com/tallyfin/tally/internal/model"

// Evidence summarizes what produced a confidence value: how many agreeing
// signals and the strongest among them. Both the scorer and the Pass-2 merge
// calibrate through this one function so "confidence" means the same thing
// across the whole pipeline.
type Evidence struct {
	Max       model.SignalStrength
	Aggregate float64
	Count     int
}

// Calibrate compresses a raw aggregate score toward the historical accuracy
// curve of the evidence that produced it. A lone weak signal never calibrates
// above 0.60; three agreeing strong or exact signals may reach 0.95.
func Calibrate(e Evidence) float64 {
	if e.Count == 0 || e.Aggregate <= 0 {
		return 0
	}

	ceiling := accuracyCap(e)
	calibrated := e.Aggregate
	if calibrated > ceiling {
		calibrated = ceiling
	}
	if calibrated < 0 {
		calibrated = 0
	}
	return calibrated
}

// accuracyCap is the ceiling observed for evidence of this shape. The values
// are fixed data, not computed.
func accuracyCap(e Evidence) float64 {
	switch e.Max {
	case model.StrengthWeak:
		return 0.60
	case model.StrengthMedium:
		return 0.78
	}

	// strong or exact
	switch {
	case e.Count <= 1:
		return 0.85
	case e.Count == 2:
		return 0.92
	default:
		return 0.95
	}
}

// StrongerOf returns the stronger of two strengths.
func StrongerOf(a, b model.SignalStrength) model.SignalStrength {
	if a.Weight() >= b.Weight() {
		return a
	}
	return b
}
