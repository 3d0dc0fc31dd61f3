package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/listenproof/internal/domain/model"
	"github.com/okian/listenproof/pkg/logger"
	"github.com/okian/listenproof/pkg/metrics"
)

// Endpoint labels used in metrics and errors.
const (
	EndpointMe             = "me"
	EndpointRecentlyPlayed = "recently_played"
)

const (
	defaultBaseURL  = "https://api.spotify.com/v1"
	defaultMaxPages = 20
	pageLimit       = 50
	defaultRPS      = 5
)

// Client is a Provider backed by the Spotify Web API.
type Client struct {
	baseURL  string
	http     *http.Client
	limiter  *rate.Limiter
	maxPages int
	log      logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another API root (tests, proxies).
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithRateLimit caps outgoing requests per second. Zero disables the limit.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithMaxPages bounds how many history pages one fetch may read.
func WithMaxPages(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxPages = n
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// NewClient creates a Spotify client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:  defaultBaseURL,
		http:     &http.Client{Timeout: 15 * time.Second},
		limiter:  rate.NewLimiter(defaultRPS, 1),
		maxPages: defaultMaxPages,
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type meResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type recentlyPlayedResponse struct {
	Items []struct {
		PlayedAt time.Time `json:"played_at"`
		Track    struct {
			ID         string `json:"id"`
			DurationMs int64  `json:"duration_ms"`
			Artists    []struct {
				ID string `json:"id"`
			} `json:"artists"`
		} `json:"track"`
	} `json:"items"`
	Cursors *struct {
		Before string `json:"before"`
	} `json:"cursors"`
}

// CurrentAccount implements Provider.
func (c *Client) CurrentAccount(ctx context.Context, cred model.Credential) (Account, error) {
	var me meResponse
	if err := c.get(ctx, EndpointMe, "/me", nil, cred, &me); err != nil {
		return Account{}, err
	}
	if me.ID == "" {
		return Account{}, fmt.Errorf("%s: %w: empty account id", EndpointMe, ErrBadResponse)
	}
	return Account{ID: me.ID, DisplayName: me.DisplayName}, nil
}

// FetchListeningHistory implements Provider. It walks the recently-played
// feed backwards from r.To using the before cursor and stops once a page
// reaches past r.From or the feed ends. Running out of pages before that
// returns ErrHistoryTruncated instead of a partial history.
func (c *Client) FetchListeningHistory(ctx context.Context, cred model.Credential, r model.TimeRange) ([]model.ListenEvent, error) {
	var out []model.ListenEvent
	before := r.To.Add(time.Millisecond).UnixMilli()

	for page := 0; page < c.maxPages; page++ {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(pageLimit))
		q.Set("before", strconv.FormatInt(before, 10))

		var resp recentlyPlayedResponse
		if err := c.get(ctx, EndpointRecentlyPlayed, "/me/player/recently-played", q, cred, &resp); err != nil {
			return nil, err
		}

		reachedStart := false
		for _, it := range resp.Items {
			played := it.PlayedAt.UTC()
			if played.Before(r.From) {
				reachedStart = true
				continue
			}
			if !r.Contains(played) {
				continue
			}
			artists := make([]string, 0, len(it.Track.Artists))
			for _, a := range it.Track.Artists {
				artists = append(artists, a.ID)
			}
			out = append(out, model.ListenEvent{
				TrackID:    it.Track.ID,
				ArtistIDs:  artists,
				PlayedAt:   played,
				DurationMs: it.Track.DurationMs,
			})
		}

		if reachedStart || len(resp.Items) == 0 || resp.Cursors == nil || resp.Cursors.Before == "" {
			return out, nil
		}
		next, err := strconv.ParseInt(resp.Cursors.Before, 10, 64)
		if err != nil || next >= before {
			return out, nil
		}
		before = next
	}

	c.log.Warn(ctx, "history fetch stopped at page limit",
		logger.Int("max_pages", c.maxPages),
		logger.Int("events", len(out)),
	)
	return nil, fmt.Errorf("%s: %w: %d pages read without reaching %s",
		EndpointRecentlyPlayed, ErrHistoryTruncated, c.maxPages, r.From.Format(time.RFC3339))
}

func (c *Client) get(ctx context.Context, endpoint, path string, q url.Values, cred model.Credential, dst any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: rate limiter: %w", endpoint, err)
	}

	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", endpoint, err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	latency := float64(time.Since(start).Milliseconds())
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", endpoint, ctx.Err())
		}
		metrics.RecordProviderRequest(endpoint, "transport_error", latency)
		return &transportError{endpoint: endpoint, err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	metrics.RecordProviderRequest(endpoint, strconv.Itoa(resp.StatusCode), latency)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode, Wait: parseRetryAfter(resp.Header.Get("Retry-After"))}
		c.log.Debug(ctx, "provider request failed",
			logger.String("endpoint", endpoint),
			logger.Int("status", resp.StatusCode),
			logger.Duration("retry_after", se.Wait),
		)
		return se
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("%s: %w: %w", endpoint, ErrBadResponse, err)
	}
	return nil
}

// parseRetryAfter understands both delta-seconds and HTTP-date forms.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
