package release

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	defaultBaseURL      = "https://api.github.com"
	defaultUserAgent    = "tcu-configtool"
	defaultStallTimeout = 30 * time.Second
)

// ClientConfig configures a release Client.
type ClientConfig struct {
	// Owner and Repo identify the release repository
	Owner string
	Repo  string
	// Token is optional; required only for private or rate-limit-relaxed access
	Token string
	// BaseURL overrides the API endpoint (used by tests)
	BaseURL string
	// StallTimeout aborts a download when no bytes arrive for this long.
	// Zero means defaultStallTimeout.
	StallTimeout time.Duration
	// HTTPClient overrides the transport (used by tests)
	HTTPClient *http.Client
}

// Client queries the release-hosting API and downloads assets.
type Client struct {
	baseURL      string
	owner        string
	repo         string
	token        string
	stallTimeout time.Duration
	httpClient   *http.Client
}

// NewClient creates a release API client.
func NewClient(cfg ClientConfig) *Client {
	c := &Client{
		baseURL:      cfg.BaseURL,
		owner:        cfg.Owner,
		repo:         cfg.Repo,
		token:        cfg.Token,
		stallTimeout: cfg.StallTimeout,
		httpClient:   cfg.HTTPClient,
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.stallTimeout <= 0 {
		c.stallTimeout = defaultStallTimeout
	}
	if c.httpClient == nil {
		// No overall timeout: downloads may legitimately run for minutes,
		// stall detection handles dead transfers.
		c.httpClient = &http.Client{}
	}
	return c
}

// ListReleases fetches all published releases, newest first as returned
// by the API.
func (c *Client) ListReleases(ctx context.Context) ([]Release, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/releases?per_page=100", c.baseURL, c.owner, c.repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", defaultUserAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var releases []Release
	if err := json.NewDecoder(resp.Body).Decode(&releases); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	log.WithFields(log.Fields{
		"repo":  c.owner + "/" + c.repo,
		"count": len(releases),
	}).Debug("listed releases")
	return releases, nil
}

// checkStatus maps HTTP status codes onto the fetch error taxonomy. Rate
// limiting must stay distinguishable from generic network failure.
func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusForbidden && rateLimitExhausted(resp):
		return &RateLimitError{RetryAfter: retryAfter(resp)}
	case resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	default:
		return fmt.Errorf("%w: unexpected status %d", ErrNetwork, resp.StatusCode)
	}
}

func rateLimitExhausted(resp *http.Response) bool {
	return resp.Header.Get("X-RateLimit-Remaining") == "0" || resp.Header.Get("Retry-After") != ""
}

// retryAfter extracts the server-supplied delay from Retry-After or the
// X-RateLimit-Reset epoch, falling back to DefaultRetryAfter.
func retryAfter(resp *http.Response) time.Duration {
	if s := resp.Header.Get("Retry-After"); s != "" {
		if secs, err := strconv.Atoi(s); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	if s := resp.Header.Get("X-RateLimit-Reset"); s != "" {
		if epoch, err := strconv.ParseInt(s, 10, 64); err == nil {
			if d := time.Until(time.Unix(epoch, 0)); d > 0 {
				return d
			}
		}
	}
	return DefaultRetryAfter
}

// IsTerminal reports whether a fetch error should abort the session
// rather than be retried.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrDecode)
}
