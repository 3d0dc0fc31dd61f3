// Package providertest provides an in-memory provider for tests.
package providertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/listenproof/internal/adapters/provider"
	"github.com/okian/listenproof/internal/domain/model"
)

// Fake is a scriptable provider.Provider and provider.Refresher.
// Accounts and histories are keyed by access token.
type Fake struct {
	mu sync.Mutex

	Accounts  map[string]provider.Account
	Histories map[string][]model.ListenEvent
	// Refreshed maps a refresh token to the credential a refresh yields.
	Refreshed map[string]model.Credential

	// FetchErrs and AccountErrs are returned, one per call, before any success.
	FetchErrs   []error
	AccountErrs []error
	RefreshErr  error

	FetchCalls   int
	AccountCalls int
	RefreshCalls int
	LastRange    model.TimeRange
}

// New creates an empty Fake.
func New() *Fake {
	return &Fake{
		Accounts:  map[string]provider.Account{},
		Histories: map[string][]model.ListenEvent{},
		Refreshed: map[string]model.Credential{},
	}
}

// FetchListeningHistory implements provider.Provider.
func (f *Fake) FetchListeningHistory(_ context.Context, cred model.Credential, r model.TimeRange) ([]model.ListenEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FetchCalls++
	f.LastRange = r
	if len(f.FetchErrs) > 0 {
		err := f.FetchErrs[0]
		f.FetchErrs = f.FetchErrs[1:]
		return nil, err
	}
	if _, ok := f.Accounts[cred.AccessToken]; !ok {
		return nil, &provider.StatusError{Endpoint: provider.EndpointRecentlyPlayed, StatusCode: 401}
	}
	var out []model.ListenEvent
	for _, e := range f.Histories[cred.AccessToken] {
		if r.Contains(e.PlayedAt) {
			out = append(out, e)
		}
	}
	return out, nil
}

// CurrentAccount implements provider.Provider.
func (f *Fake) CurrentAccount(_ context.Context, cred model.Credential) (provider.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.AccountCalls++
	if len(f.AccountErrs) > 0 {
		err := f.AccountErrs[0]
		f.AccountErrs = f.AccountErrs[1:]
		return provider.Account{}, err
	}
	acc, ok := f.Accounts[cred.AccessToken]
	if !ok {
		return provider.Account{}, &provider.StatusError{Endpoint: provider.EndpointMe, StatusCode: 401}
	}
	return acc, nil
}

// Refresh implements provider.Refresher.
func (f *Fake) Refresh(_ context.Context, cred model.Credential) (model.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RefreshCalls++
	if f.RefreshErr != nil {
		return model.Credential{}, f.RefreshErr
	}
	out, ok := f.Refreshed[cred.RefreshToken]
	if !ok {
		return model.Credential{}, fmt.Errorf("refresh: %w: unknown refresh token", provider.ErrAuth)
	}
	return out, nil
}
