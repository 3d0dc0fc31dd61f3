package service_test

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/listenproof/internal/adapters/input"
	"github.com/okian/listenproof/internal/adapters/provider"
	"github.com/okian/listenproof/internal/adapters/provider/providertest"
	"github.com/okian/listenproof/internal/domain/model"
	"github.com/okian/listenproof/pkg/logger"
)

const (
	testAccount = "listener-42"
	testToken   = "access-token"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// history builds n one-hour plays by 12 artists spread over a year, which
// scores 500 volume + 30 diversity + 100 history = 630 points.
func history(n int) []model.ListenEvent {
	events := make([]model.ListenEvent, n)
	step := 365 * 24 * time.Hour / time.Duration(n-1)
	for i := range events {
		events[i] = model.ListenEvent{
			TrackID:    fmt.Sprintf("track-%03d", i),
			ArtistIDs:  []string{fmt.Sprintf("artist-%02d", i%12)},
			PlayedAt:   epoch.Add(time.Duration(i) * step),
			DurationMs: int64(time.Hour / time.Millisecond),
		}
	}
	return events
}

func submission(account string, events []model.ListenEvent) input.Submission {
	return input.Submission{
		Contribution: model.Contribution{
			AccountID:  account,
			Events:     events,
			Credential: model.Credential{AccessToken: testToken, RefreshToken: "refresh-token"},
		},
		Raw: []byte(`{"account_id":"` + account + `"}`),
	}
}

// fakeWith returns a provider that owns testToken for testAccount and
// reports reference as its listening history.
func fakeWith(reference []model.ListenEvent) *providertest.Fake {
	f := providertest.New()
	f.Accounts[testToken] = provider.Account{ID: testAccount}
	f.Histories[testToken] = reference
	return f
}

// blockingProvider never answers before the context ends.
type blockingProvider struct{}

func (blockingProvider) FetchListeningHistory(ctx context.Context, _ model.Credential, _ model.TimeRange) ([]model.ListenEvent, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingProvider) CurrentAccount(ctx context.Context, _ model.Credential) (provider.Account, error) {
	<-ctx.Done()
	return provider.Account{}, ctx.Err()
}
