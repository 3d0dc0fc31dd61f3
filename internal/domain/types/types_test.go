package types_test

import (
	"encoding/json"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	types "github.com/okian/listenproof/internal/domain/types"
)

func TestProofDocument(t *testing.T) {
	Convey("Given a proof document", t, func() {
		doc := types.ProofDocument{
			DLPID:      17,
			Valid:      true,
			Score:      0.63,
			Uniqueness: 1,
			Attributes: types.Attributes{
				AccountIDHash: "abc",
				TotalPoints:   630,
				PointsBreakdown: types.PointsBreakdown{
					VolumePoints: 500,
					VolumeReason: "500 (5000+ minutes)",
				},
			},
			Metadata: types.Metadata{DLPID: 17, Version: "1.0.0", FileID: 9},
		}

		Convey("When encoding to JSON", func() {
			raw, err := json.Marshal(doc)
			So(err, ShouldBeNil)
			var generic map[string]any
			So(json.Unmarshal(raw, &generic), ShouldBeNil)

			Convey("Then the top-level keys should follow the output schema", func() {
				for _, k := range []string{"dlp_id", "valid", "score", "authenticity", "ownership", "quality", "uniqueness", "attributes", "metadata"} {
					So(generic, ShouldContainKey, k)
				}
			})

			Convey("Then the breakdown should be nested under attributes", func() {
				attrs := generic["attributes"].(map[string]any)
				So(attrs["account_id_hash"], ShouldEqual, "abc")
				pb := attrs["points_breakdown"].(map[string]any)
				So(pb["volume_reason"], ShouldEqual, "500 (5000+ minutes)")
			})

			Convey("Then empty optional fields should be omitted", func() {
				attrs := generic["attributes"].(map[string]any)
				So(attrs, ShouldNotContainKey, "reasons")
				meta := generic["metadata"].(map[string]any)
				So(meta, ShouldNotContainKey, "file")
			})
		})
	})
}
