package proof

import (
	"errors"
	"fmt"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/listenproof/internal/domain/model"
	"github.com/okian/listenproof/internal/domain/scoring"
)

func validInputs() Inputs {
	m := model.QualityMetrics{TotalMinutes: 25000, UniqueArtistCount: 12, ActivityPeriodDays: 365, TrackCount: 157, DataValidated: true}
	return Inputs{
		Identity:     "deadbeef",
		Authenticity: Check{Score: 1, Passed: true},
		Ownership:    Check{Score: 1, Passed: true},
		Quality:      m,
		QualityScore: 1,
		Breakdown:    scoring.New().Score(m, 200),
		Ledger:       model.LedgerState{PreviouslyContributed: true, PriorTotalPoints: 200, TimesRewarded: 1},
		Metadata:     model.RunMetadata{DLPID: 17, FileID: 3, JobID: "job", Version: "1.0.0"},
	}
}

func TestAssemble(t *testing.T) {
	Convey("Given inputs that pass every check", t, func() {
		in := validInputs()

		Convey("When assembling with the total basis", func() {
			r := Assemble(in)

			Convey("Then the proof should be valid and scored on total points", func() {
				So(r.Valid, ShouldBeTrue)
				So(r.Score, ShouldAlmostEqual, 0.63, 1e-9)
				So(r.Uniqueness, ShouldEqual, 1.0)
				So(r.Breakdown.DifferentialPoints, ShouldEqual, 430)
				So(r.Reasons, ShouldBeEmpty)
			})
		})

		Convey("When assembling with the differential basis", func() {
			in.Basis = BasisDifferential
			r := Assemble(in)

			Convey("Then the score should follow the differential", func() {
				So(r.Score, ShouldAlmostEqual, 0.43, 1e-9)
			})
		})

		Convey("When authenticity failed", func() {
			in.Authenticity = Check{Score: 0.5, Failure: fmt.Errorf("%w: 5 of 10", model.ErrAuthenticityFailure)}
			r := Assemble(in)

			Convey("Then the proof should be invalid with zero score", func() {
				So(r.Valid, ShouldBeFalse)
				So(r.Score, ShouldEqual, 0)
				So(r.Authenticity, ShouldEqual, 0.5)
				So(r.Breakdown.DifferentialPoints, ShouldEqual, 0)
				So(r.Breakdown.TotalPoints, ShouldEqual, 630)
				So(r.Reasons, ShouldHaveLength, 1)
				So(r.Reasons[0], ShouldContainSubstring, "5 of 10")
			})
		})

		Convey("When ownership failed", func() {
			in.Ownership = Check{Score: 0, Failure: errors.New("ownership check failed: mismatch")}
			in.Authenticity = Check{Score: 0, Failure: errors.New("authenticity skipped")}
			r := Assemble(in)

			Convey("Then every failed check should be listed in order", func() {
				So(r.Valid, ShouldBeFalse)
				So(r.Reasons, ShouldResemble, []string{"ownership check failed: mismatch", "authenticity skipped"})
			})
		})

		Convey("When ownership passed with a partial score", func() {
			in.Ownership = Check{Score: 0.5, Passed: true}
			r := Assemble(in)

			Convey("Then the proof should still be invalid", func() {
				So(r.Valid, ShouldBeFalse)
			})
		})
	})
}

func TestDocument(t *testing.T) {
	Convey("Given an assembled proof with an exported file", t, func() {
		in := validInputs()
		in.Metadata.File = &model.FileInfo{ID: 3, Source: "TEE", URL: "s3://bucket/key", Checksums: model.Checksums{Encrypted: "e", Decrypted: "d"}}
		doc := Document(Assemble(in))

		Convey("Then the attributes should mirror the proof", func() {
			So(doc.DLPID, ShouldEqual, 17)
			So(doc.Attributes.AccountIDHash, ShouldEqual, "deadbeef")
			So(doc.Attributes.TrackCount, ShouldEqual, 157)
			So(doc.Attributes.TotalPoints, ShouldEqual, 630)
			So(doc.Attributes.PointsBreakdown.VolumePoints, ShouldEqual, 500)
			So(doc.Attributes.PointsBreakdown.DiversityPoints, ShouldEqual, 30)
			So(doc.Attributes.PointsBreakdown.HistoryPoints, ShouldEqual, 100)
			So(doc.Attributes.PreviouslyContributed, ShouldBeTrue)
			So(doc.Metadata.JobID, ShouldEqual, "job")
			So(doc.Metadata.File.Checksums.Encrypted, ShouldEqual, "e")
		})
	})
}
