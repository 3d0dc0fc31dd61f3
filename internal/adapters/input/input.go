// Package input reads the submitted contribution.
package input

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/okian/listenproof/internal/domain/model"
	"github.com/okian/listenproof/internal/domain/quality"
)

// maxInputBytes bounds one contribution file.
const maxInputBytes = 64 << 20

// Submission is a decoded contribution plus the exact bytes it came from.
type Submission struct {
	Contribution model.Contribution
	Raw          []byte
}

type fileEvent struct {
	TrackID    string    `json:"track_id"`
	ArtistIDs  []string  `json:"artist_ids"`
	PlayedAt   time.Time `json:"played_at"`
	DurationMs int64     `json:"duration_ms"`
}

type fileCredential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type fileContribution struct {
	AccountID  string          `json:"account_id"`
	Credential *fileCredential `json:"credential,omitempty"`
	Events     []fileEvent     `json:"events"`
}

// Load decodes the first *.json file (by name) in dir. fallback supplies the
// credential when the file carries none.
func Load(dir string, fallback model.Credential) (Submission, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Submission{}, fmt.Errorf("read input dir %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return Submission{}, fmt.Errorf("%w: %s", ErrNoInput, dir)
	}
	sort.Strings(names)

	f, err := os.Open(filepath.Join(dir, names[0]))
	if err != nil {
		return Submission{}, fmt.Errorf("open %s: %w", names[0], err)
	}
	defer func() { _ = f.Close() }()
	return Decode(f, fallback)
}

// Decode reads one contribution document from r. Undecodable input wraps
// quality.ErrMalformedContribution.
func Decode(r io.Reader, fallback model.Credential) (Submission, error) {
	raw, err := io.ReadAll(io.LimitReader(r, maxInputBytes+1))
	if err != nil {
		return Submission{}, fmt.Errorf("read contribution: %w", err)
	}
	if len(raw) > maxInputBytes {
		return Submission{}, fmt.Errorf("%w: contribution exceeds %d bytes", quality.ErrMalformedContribution, maxInputBytes)
	}

	var doc fileContribution
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return Submission{}, fmt.Errorf("%w: %w", quality.ErrMalformedContribution, err)
	}

	c := model.Contribution{
		AccountID:  doc.AccountID,
		Credential: fallback,
		Events:     make([]model.ListenEvent, 0, len(doc.Events)),
	}
	if doc.Credential != nil && doc.Credential.AccessToken != "" {
		c.Credential = model.Credential{
			AccessToken:  doc.Credential.AccessToken,
			RefreshToken: doc.Credential.RefreshToken,
			Expiry:       doc.Credential.ExpiresAt,
		}
	}
	for _, ev := range doc.Events {
		c.Events = append(c.Events, model.ListenEvent{
			TrackID:    ev.TrackID,
			ArtistIDs:  ev.ArtistIDs,
			PlayedAt:   ev.PlayedAt.UTC(),
			DurationMs: ev.DurationMs,
		})
	}
	return Submission{Contribution: c, Raw: raw}, nil
}
