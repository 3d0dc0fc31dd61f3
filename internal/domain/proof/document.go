package proof

import (
	"github.com/okian/listenproof/internal/domain/model"
	"github.com/okian/listenproof/internal/domain/types"
)

// Document maps a ProofResult onto the output document.
func Document(r model.ProofResult) types.ProofDocument {
	b := r.Breakdown
	doc := types.ProofDocument{
		DLPID:        r.Metadata.DLPID,
		Valid:        r.Valid,
		Score:        r.Score,
		Authenticity: r.Authenticity,
		Ownership:    r.Ownership,
		Quality:      r.Quality,
		Uniqueness:   r.Uniqueness,
		Attributes: types.Attributes{
			AccountIDHash:         r.Identity.String(),
			TrackCount:            r.Metrics.TrackCount,
			TotalMinutes:          r.Metrics.TotalMinutes,
			DataValidated:         r.Metrics.DataValidated,
			ActivityPeriodDays:    r.Metrics.ActivityPeriodDays,
			UniqueArtists:         r.Metrics.UniqueArtistCount,
			ExcludedEvents:        r.Metrics.ExcludedEvents,
			PreviouslyContributed: r.Ledger.PreviouslyContributed,
			PreviouslyRewarded:    r.Ledger.PreviouslyRewarded,
			TimesRewarded:         r.Ledger.TimesRewarded,
			TotalPoints:           b.TotalPoints,
			DifferentialPoints:    b.DifferentialPoints,
			PointsBreakdown: types.PointsBreakdown{
				VolumePoints:    b.Volume.Points,
				VolumeReason:    b.Volume.Reason,
				DiversityPoints: b.Diversity.Points,
				DiversityReason: b.Diversity.Reason,
				HistoryPoints:   b.History.Points,
				HistoryReason:   b.History.Reason,
			},
			Reasons: r.Reasons,
		},
		Metadata: types.Metadata{
			DLPID:        r.Metadata.DLPID,
			Version:      r.Metadata.Version,
			FileID:       r.Metadata.FileID,
			JobID:        r.Metadata.JobID,
			OwnerAddress: r.Metadata.OwnerAddress,
		},
	}
	if f := r.Metadata.File; f != nil {
		doc.Metadata.File = &types.FileMeta{
			ID:     f.ID,
			Source: f.Source,
			URL:    f.URL,
			Checksums: types.Checksums{
				Encrypted: f.Checksums.Encrypted,
				Decrypted: f.Checksums.Decrypted,
			},
		}
	}
	return doc
}
