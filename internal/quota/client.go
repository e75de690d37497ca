// internal/quota/client.go
package quota

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/codex-usage/codex-usage/internal/apperr"
	"github.com/codex-usage/codex-usage/internal/config"
)

// FetchTimeout bounds every usage request regardless of the caller's context.
const FetchTimeout = 10 * time.Second

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 1 << 20

// Fetcher retrieves a usage snapshot for one account.
type Fetcher interface {
	Fetch(ctx context.Context, account string, cred Credential) (*Snapshot, error)
}

// ClientConfig configures a Client.
type ClientConfig struct {
	URL        string
	UserAgent  string
	HTTPClient *http.Client
	Now        func() time.Time
	Logger     *zap.Logger
}

// Client queries the remote usage endpoint.
type Client struct {
	url        string
	userAgent  string
	httpClient *http.Client
	now        func() time.Time
	logger     *zap.Logger
}

// NewClient creates a usage client, filling unset fields with defaults.
func NewClient(cfg ClientConfig) *Client {
	c := &Client{
		url:        cfg.URL,
		userAgent:  cfg.UserAgent,
		httpClient: cfg.HTTPClient,
		now:        cfg.Now,
		logger:     cfg.Logger,
	}
	if c.url == "" {
		c.url = config.DefaultUsageURL
	}
	if c.userAgent == "" {
		c.userAgent = config.DefaultUserAgent
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: FetchTimeout}
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

// Fetch performs one usage request. Transport failures, non-2xx statuses and
// undecodable bodies are all reported as NETWORK errors.
func (c *Client) Fetch(ctx context.Context, account string, cred Credential) (*Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, networkError(account, err, "")
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("chatgpt-account-id", cred.AccountID)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Content-Type", "application/json")

	start := c.now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, networkError(account, err, "")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, networkError(account, err, "")
	}

	c.logger.Debug("usage fetched",
		zap.String("account", account),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", c.now().Sub(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		hint := ""
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			hint = fmt.Sprintf("The token for '%s' was rejected. Run 'codex login', then 'codex-usage accounts add %s'.", account, account)
		}
		return nil, networkError(account, fmt.Errorf("API returned error: %s", resp.Status), hint)
	}

	snap, err := Decode(body, account, c.now())
	if err != nil {
		return nil, networkError(account, err, "")
	}
	return snap, nil
}

func networkError(account string, err error, hint string) error {
	if hint == "" {
		hint = "Check your network connection and try again."
	}
	return apperr.New(apperr.KindNetwork, "fetch usage for "+account, hint, err)
}
