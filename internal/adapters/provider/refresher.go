package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/okian/listenproof/internal/domain/model"
	"github.com/okian/listenproof/pkg/metrics"
)

const defaultTokenURL = "https://accounts.spotify.com/api/token"

// OAuthRefresher refreshes credentials through the provider's token endpoint.
type OAuthRefresher struct {
	conf *oauth2.Config
	http *http.Client
}

// NewOAuthRefresher creates a refresher for the given client application.
// An empty tokenURL uses the Spotify accounts endpoint.
func NewOAuthRefresher(clientID, clientSecret, tokenURL string, hc *http.Client) *OAuthRefresher {
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &OAuthRefresher{
		conf: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: tokenURL, AuthStyle: oauth2.AuthStyleInHeader},
		},
		http: hc,
	}
}

// Refresh implements Refresher. A rejected refresh token wraps ErrAuth;
// anything else wraps ErrUnavailable.
func (r *OAuthRefresher) Refresh(ctx context.Context, cred model.Credential) (model.Credential, error) {
	if cred.RefreshToken == "" {
		return model.Credential{}, fmt.Errorf("refresh: %w: no refresh token", ErrAuth)
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, r.http)

	// An empty access token forces the source to hit the token endpoint.
	tok, err := r.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken}).Token()
	if err != nil {
		metrics.RecordTokenRefresh("failed")
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil && re.Response.StatusCode < http.StatusInternalServerError {
			return model.Credential{}, fmt.Errorf("refresh: %w: %w", ErrAuth, err)
		}
		return model.Credential{}, fmt.Errorf("refresh: %w: %w", ErrUnavailable, err)
	}
	metrics.RecordTokenRefresh("ok")

	out := model.Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
	if out.RefreshToken == "" {
		out.RefreshToken = cred.RefreshToken
	}
	return out, nil
}
