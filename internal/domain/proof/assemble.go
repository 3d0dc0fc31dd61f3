// Package proof composes stage results into the final proof and its
// output document.
package proof

import (
	"github.com/okian/listenproof/internal/domain/ledger"
	"github.com/okian/listenproof/internal/domain/model"
)

// Basis selects which points the emitted score is derived from.
type Basis string

// Score bases.
const (
	BasisTotal        Basis = "total"
	BasisDifferential Basis = "differential"
)

// Check is the outcome of one validity check.
type Check struct {
	Score  float64
	Passed bool
	// Failure explains a failed check; nil when Passed.
	Failure error
}

// Inputs are everything a proof is built from.
type Inputs struct {
	Identity     model.HashedIdentity
	Authenticity Check
	Ownership    Check
	Quality      model.QualityMetrics
	QualityScore float64
	Breakdown    model.ScoreBreakdown
	Ledger       model.LedgerState
	Metadata     model.RunMetadata
	Basis        Basis
}

// Assemble builds the ProofResult. It has no side effects. An invalid
// proof carries a zero score and zero differential points and lists every
// failed check in Reasons.
func Assemble(in Inputs) model.ProofResult {
	structural := in.Quality.DataValidated
	valid := in.Authenticity.Passed && in.Ownership.Passed && in.Ownership.Score == 1 && structural

	r := model.ProofResult{
		Valid:        valid,
		Authenticity: in.Authenticity.Score,
		Ownership:    in.Ownership.Score,
		Quality:      in.QualityScore,
		Uniqueness:   ledger.UniquenessScore,
		Identity:     in.Identity,
		Metrics:      in.Quality,
		Ledger:       in.Ledger,
		Breakdown:    in.Breakdown,
		Metadata:     in.Metadata,
	}

	if in.Ownership.Failure != nil {
		r.Reasons = append(r.Reasons, in.Ownership.Failure.Error())
	}
	if in.Authenticity.Failure != nil {
		r.Reasons = append(r.Reasons, in.Authenticity.Failure.Error())
	}
	if !structural {
		r.Reasons = append(r.Reasons, "contribution data not validated")
	}

	if !valid {
		r.Score = 0
		r.Breakdown.DifferentialPoints = 0
		r.Breakdown.NormalizedDifferential = 0
		return r
	}

	switch in.Basis {
	case BasisDifferential:
		r.Score = in.Breakdown.NormalizedDifferential
	default:
		r.Score = in.Breakdown.NormalizedScore
	}
	return r
}
