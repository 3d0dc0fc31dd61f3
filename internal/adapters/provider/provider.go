// Package provider talks to the streaming provider that holds the
// authoritative listening history and account identity.
package provider

import (
	"context"

	"github.com/okian/listenproof/internal/domain/model"
)

// Account is the identity the provider associates with a credential.
type Account struct {
	ID          string
	DisplayName string
}

// Provider returns authoritative data for a credential. Errors wrap ErrAuth,
// ErrRateLimited or ErrUnavailable; the last two are Temporary.
type Provider interface {
	// FetchListeningHistory returns the plays inside r, newest first.
	FetchListeningHistory(ctx context.Context, cred model.Credential, r model.TimeRange) ([]model.ListenEvent, error)
	// CurrentAccount returns the account that owns cred.
	CurrentAccount(ctx context.Context, cred model.Credential) (Account, error)
}

// Refresher exchanges a refresh token for a fresh access token.
type Refresher interface {
	Refresh(ctx context.Context, cred model.Credential) (model.Credential, error)
}
