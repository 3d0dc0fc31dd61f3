package input

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/listenproof/internal/domain/model"
	"github.com/okian/listenproof/internal/domain/quality"
)

const sample = `{
  "account_id": "alice",
  "credential": {"access_token": "at", "refresh_token": "rt", "expires_at": "2024-01-01T01:00:00Z"},
  "events": [
    {"track_id": "t1", "artist_ids": ["a1"], "played_at": "2024-01-01T00:00:00+02:00", "duration_ms": 200000},
    {"track_id": "t2", "artist_ids": ["a1", "a2"], "played_at": "2024-01-02T00:00:00Z", "duration_ms": 0}
  ]
}`

func TestDecode(t *testing.T) {
	Convey("Given a contribution document", t, func() {
		Convey("When decoding a well-formed document", func() {
			sub, err := Decode(strings.NewReader(sample), model.Credential{})

			Convey("Then events and credential should be mapped", func() {
				So(err, ShouldBeNil)
				So(sub.Contribution.AccountID, ShouldEqual, "alice")
				So(sub.Contribution.Events, ShouldHaveLength, 2)
				So(sub.Contribution.Events[0].PlayedAt, ShouldEqual, time.Date(2023, 12, 31, 22, 0, 0, 0, time.UTC))
				So(sub.Contribution.Events[1].ArtistIDs, ShouldResemble, []string{"a1", "a2"})
				So(sub.Contribution.Credential.RefreshToken, ShouldEqual, "rt")
				So(string(sub.Raw), ShouldEqual, sample)
			})
		})

		Convey("When the document has no credential", func() {
			fallback := model.Credential{AccessToken: "env-token"}
			sub, err := Decode(strings.NewReader(`{"account_id":"bob","events":[]}`), fallback)

			Convey("Then the fallback credential should be used", func() {
				So(err, ShouldBeNil)
				So(sub.Contribution.Credential.AccessToken, ShouldEqual, "env-token")
			})
		})

		Convey("When the document is not valid JSON", func() {
			_, err := Decode(strings.NewReader(`{"account_id": `), model.Credential{})

			Convey("Then it should be a malformed contribution", func() {
				So(errors.Is(err, quality.ErrMalformedContribution), ShouldBeTrue)
			})
		})

		Convey("When the document has unknown fields", func() {
			_, err := Decode(strings.NewReader(`{"account_id":"a","tracks":[]}`), model.Credential{})

			Convey("Then it should be rejected", func() {
				So(errors.Is(err, quality.ErrMalformedContribution), ShouldBeTrue)
			})
		})
	})
}

func TestLoad(t *testing.T) {
	Convey("Given an input directory", t, func() {
		dir := t.TempDir()

		Convey("When it is empty", func() {
			_, err := Load(dir, model.Credential{})

			Convey("Then ErrNoInput should be returned", func() {
				So(errors.Is(err, ErrNoInput), ShouldBeTrue)
			})
		})

		Convey("When it holds a contribution next to other files", func() {
			So(os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore"), 0o600), ShouldBeNil)
			So(os.WriteFile(filepath.Join(dir, "b.json"), []byte(`{"account_id":"second","events":[]}`), 0o600), ShouldBeNil)
			So(os.WriteFile(filepath.Join(dir, "a.json"), []byte(sample), 0o600), ShouldBeNil)
			sub, err := Load(dir, model.Credential{})

			Convey("Then the first json file by name should be read", func() {
				So(err, ShouldBeNil)
				So(sub.Contribution.AccountID, ShouldEqual, "alice")
			})
		})

		Convey("When the directory does not exist", func() {
			_, err := Load(filepath.Join(dir, "missing"), model.Credential{})
			So(err, ShouldNotBeNil)
		})
	})
}
