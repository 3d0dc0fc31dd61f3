// Package model contains domain models passed between layers.
package model

import "time"

// ListenEvent is one play of one track as reported by the streaming provider.
type ListenEvent struct {
	TrackID    string    // provider track identifier
	ArtistIDs  []string  // credited artists, primary first
	PlayedAt   time.Time // when playback happened (UTC)
	DurationMs int64     // track duration in milliseconds
}

// Credential is the access grant a contributor hands over for the claimed account.
type Credential struct {
	AccessToken  string
	RefreshToken string
	// Expiry is optional; the zero value means "unknown, ask the provider".
	Expiry time.Time
}

// Expired reports whether the credential is known to be expired at now.
func (c Credential) Expired(now time.Time) bool {
	return !c.Expiry.IsZero() && !now.Before(c.Expiry)
}

// CanRefresh reports whether a refresh attempt is possible.
func (c Credential) CanRefresh() bool {
	return c.RefreshToken != ""
}

// Contribution is one submitted dataset for one pipeline run. It is loaded once
// and treated as read-only afterwards.
type Contribution struct {
	AccountID  string
	Events     []ListenEvent
	Credential Credential
}

// TimeRange is a closed interval of playback timestamps.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t lies inside the range, bounds included.
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.From) && !t.After(r.To)
}
