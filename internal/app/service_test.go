package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/listenproof/internal/adapters/input"
	"github.com/okian/listenproof/internal/adapters/repository"
	service "github.com/okian/listenproof/internal/app"
	"github.com/okian/listenproof/internal/config"
	"github.com/okian/listenproof/internal/domain/ledger"
	"github.com/okian/listenproof/internal/domain/model"
	"github.com/okian/listenproof/internal/domain/types"
	"github.com/okian/listenproof/pkg/logger"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.New()
	cfg.InputDir = t.TempDir()
	cfg.OutputDir = t.TempDir()
	cfg.LedgerDriver = config.LedgerMemory
	cfg.JobID = "job-1"
	cfg.FileID = 3
	cfg.RetryMaxAttempts = 3
	cfg.RetryBaseDelayMS = 1
	cfg.RetryMaxDelayMS = 2
	return cfg
}

func writeContribution(t *testing.T, dir, name string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), raw, 0o600); err != nil {
		t.Fatal(err)
	}
}

func contributionFile() map[string]any {
	var events []map[string]any
	for _, e := range history(100) {
		events = append(events, map[string]any{
			"track_id":    e.TrackID,
			"artist_ids":  e.ArtistIDs,
			"played_at":   e.PlayedAt.Format(time.RFC3339),
			"duration_ms": e.DurationMs,
		})
	}
	return map[string]any{
		"account_id": testAccount,
		"credential": map[string]any{"access_token": testToken, "refresh_token": "refresh-token"},
		"events":     events,
	}
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a service that was never started", t, func() {
		svc := service.New(testConfig(t), service.WithLogger(logger.Nop()))

		Convey("When proving a submission", func() {
			_, err := svc.Prove(context.Background(), submission(testAccount, history(10)), "", 0)

			Convey("Then it should refuse with ErrNotStarted", func() {
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			})
		})

		Convey("When stopping it", func() {
			Convey("Then it should not panic", func() {
				So(svc.Stop, ShouldNotPanic)
			})
		})
	})

	Convey("Given a config with an unknown ledger driver", t, func() {
		cfg := testConfig(t)
		cfg.LedgerDriver = "etcd"
		svc := service.New(cfg, service.WithProvider(fakeWith(nil)))

		Convey("When starting", func() {
			err := svc.Start(context.Background())

			Convey("Then it should fail with an invalid config error", func() {
				So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
			})
		})
	})

	Convey("Given a config using the sqlite ledger", t, func() {
		cfg := testConfig(t)
		cfg.LedgerDriver = config.LedgerSQLite
		cfg.LedgerDSN = filepath.Join(t.TempDir(), "ledger.db")
		svc := service.New(cfg, service.WithProvider(fakeWith(nil)))
		defer svc.Stop()

		Convey("When starting twice", func() {
			So(svc.Start(context.Background()), ShouldBeNil)
			err := svc.Start(context.Background())

			Convey("Then the second start should be a no-op", func() {
				So(err, ShouldBeNil)
			})
		})
	})
}

func TestService_RunJob(t *testing.T) {
	Convey("Given a started service with a contribution in the input directory", t, func() {
		cfg := testConfig(t)
		writeContribution(t, cfg.InputDir, "b.json", contributionFile())
		writeContribution(t, cfg.InputDir, "a.json", contributionFile())
		_ = os.WriteFile(filepath.Join(cfg.InputDir, "notes.txt"), []byte("ignored"), 0o600)

		store := repository.NewMemoryStore()
		fake := fakeWith(history(100))
		svc := service.New(cfg, service.WithStore(store), service.WithProvider(fake), service.WithRefresher(fake))
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()

		Convey("When the job runs", func() {
			doc, err := svc.RunJob(context.Background())

			Convey("Then it should return a valid proof", func() {
				So(err, ShouldBeNil)
				So(doc.Valid, ShouldBeTrue)
				So(doc.DLPID, ShouldEqual, int64(17))
				So(doc.Attributes.TotalPoints, ShouldEqual, 630)
				So(doc.Metadata.JobID, ShouldEqual, "job-1")
				So(doc.Metadata.FileID, ShouldEqual, int64(3))
			})

			Convey("And results.json should hold the same document", func() {
				raw, err := os.ReadFile(filepath.Join(cfg.OutputDir, service.ResultsFile))
				So(err, ShouldBeNil)
				var got types.ProofDocument
				So(json.Unmarshal(raw, &got), ShouldBeNil)
				So(got, ShouldResemble, doc)
			})

			Convey("And no temporary files should be left behind", func() {
				entries, _ := os.ReadDir(cfg.OutputDir)
				So(entries, ShouldHaveLength, 1)
			})

			Convey("And the ledger should be keyed by the job and file", func() {
				l := ledger.New(store)
				prior, err := l.Lookup(context.Background(), model.HashedIdentity(doc.Attributes.AccountIDHash))
				So(err, ShouldBeNil)
				So(prior.Entry.LastRunKey, ShouldEqual, "job-1/3")
			})
		})
	})

	Convey("Given an empty input directory", t, func() {
		cfg := testConfig(t)
		svc := service.New(cfg, service.WithProvider(fakeWith(nil)))
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()

		Convey("When the job runs", func() {
			_, err := svc.RunJob(context.Background())

			Convey("Then it should report missing input and write nothing", func() {
				So(errors.Is(err, input.ErrNoInput), ShouldBeTrue)
				So(service.Kind(err), ShouldEqual, service.KindNoInput)
				_, statErr := os.Stat(filepath.Join(cfg.OutputDir, service.ResultsFile))
				So(os.IsNotExist(statErr), ShouldBeTrue)
			})
		})
	})
}

func TestService_Prove(t *testing.T) {
	Convey("Given a started service", t, func() {
		fake := fakeWith(history(10))
		svc := service.New(testConfig(t), service.WithProvider(fake), service.WithRefresher(fake))
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()

		Convey("When proving with an explicit job and file", func() {
			doc, err := svc.Prove(context.Background(), submission(testAccount, history(10)), "job-7", 9)

			Convey("Then the metadata should carry them", func() {
				So(err, ShouldBeNil)
				So(doc.Valid, ShouldBeTrue)
				So(doc.Metadata.JobID, ShouldEqual, "job-7")
				So(doc.Metadata.FileID, ShouldEqual, int64(9))
			})
		})
	})
}

func TestWriteResults(t *testing.T) {
	Convey("Given an output directory that does not exist yet", t, func() {
		dir := filepath.Join(t.TempDir(), "nested", "out")

		Convey("When writing twice", func() {
			_, err := service.WriteResults(dir, types.ProofDocument{DLPID: 1})
			So(err, ShouldBeNil)
			path, err := service.WriteResults(dir, types.ProofDocument{DLPID: 2, Valid: true})

			Convey("Then the last document should win", func() {
				So(err, ShouldBeNil)
				raw, _ := os.ReadFile(path)
				var got types.ProofDocument
				So(json.Unmarshal(raw, &got), ShouldBeNil)
				So(got.DLPID, ShouldEqual, int64(2))
				So(got.Valid, ShouldBeTrue)
			})

			Convey("Then the document should be world readable", func() {
				info, err := os.Stat(path)
				So(err, ShouldBeNil)
				So(info.Mode().Perm(), ShouldEqual, os.FileMode(0o644))
			})
		})
	})
}

func TestKind(t *testing.T) {
	Convey("Given errors from different stages", t, func() {
		So(service.Kind(ledger.ErrLedgerContention), ShouldEqual, service.KindLedgerContention)
		So(service.Kind(errors.New("boom")), ShouldEqual, service.KindInternal)
		So(service.Kind(service.ErrRunTimeout), ShouldEqual, service.KindTimeout)
	})
}
