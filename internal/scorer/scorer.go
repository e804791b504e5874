// Package scorer fuses evidence signals into ranked category candidates with
// a calibrated confidence.
package scorer

import (
	"sort"

	"github.com/tallyfin/tally/internal/model"
)

// Candidate is one category's fused evidence.
type Candidate struct {
	CategoryID   string
	CategoryName string
	Signals      []model.Signal
	Aggregate    float64
	Confidence   float64 // Calibrated
	MaxStrength  model.SignalStrength
	bestPriority int
}

// Outcome is the scorer's ranked view of all evidence for one transaction.
type Outcome struct {
	Best          *Candidate
	AllCandidates []Candidate
}

// Score groups signals by category and combines confidences with a
// strength-weighted sum, so one exact signal outranks three weak ones.
// Ties between equal aggregates resolve by signal-source priority:
// mcc > vendor > embedding > keyword.
func Score(signals []model.Signal) Outcome {
	if len(signals) == 0 {
		return Outcome{}
	}

	groups := make(map[string]*Candidate)
	for _, sig := range signals {
		if sig.Validate() != nil {
			continue
		}
		cand, ok := groups[sig.CategoryID]
		if !ok {
			cand = &Candidate{
				CategoryID:   sig.CategoryID,
				CategoryName: sig.CategoryName,
				MaxStrength:  sig.Strength,
				bestPriority: sig.Source.Priority(),
			}
			groups[sig.CategoryID] = cand
		}
		cand.Signals = append(cand.Signals, sig)
		cand.Aggregate += sig.Strength.Weight() * sig.Confidence
		cand.MaxStrength = StrongerOf(cand.MaxStrength, sig.Strength)
		if p := sig.Source.Priority(); p < cand.bestPriority {
			cand.bestPriority = p
		}
	}

	// Every signal may have failed validation.
	if len(groups) == 0 {
		return Outcome{}
	}

	all := make([]Candidate, 0, len(groups))
	for _, cand := range groups {
		cand.Confidence = Calibrate(Evidence{
			Aggregate: cand.Aggregate,
			Count:     len(cand.Signals),
			Max:       cand.MaxStrength,
		})
		all = append(all, *cand)
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].Aggregate != all[j].Aggregate {
			return all[i].Aggregate > all[j].Aggregate
		}
		if all[i].bestPriority != all[j].bestPriority {
			return all[i].bestPriority < all[j].bestPriority
		}
		return all[i].CategoryID < all[j].CategoryID
	})

	return Outcome{
		Best:          &all[0],
		AllCandidates: all,
	}
}
