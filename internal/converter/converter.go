// Package converter delegates fetching and parsing of a feed to a remote
// feed-to-JSON service. It is used only when direct fetching fails.
package converter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"feedreader/internal/domain"
)

const (
	DefaultEndpoint = "https://api.rss2json.com/v1/api.json?rss_url={url}"

	urlPlaceholder = "{url}"
	statusOK       = "ok"
	maxBodyBytes   = 10 << 20
)

var ErrConversionFailed = errors.New("feed conversion failed")

type Config struct {
	// Endpoint is the service URL with a {url} placeholder for the
	// query-escaped feed URL.
	Endpoint   string
	UserAgent  string
	HTTPClient *http.Client
}

type Client struct {
	endpoint  string
	userAgent string
	client    *http.Client
	now       func() time.Time
	log       *slog.Logger
}

func New(cfg Config, log *slog.Logger) *Client {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	return &Client{
		endpoint:  endpoint,
		userAgent: strings.TrimSpace(cfg.UserAgent),
		client:    client,
		now:       time.Now,
		log:       log,
	}
}

// Convert issues a single request for feedURL and maps the service response
// into articles. There is no retry.
func (c *Client) Convert(
	ctx context.Context,
	feedURL string,
	feedID string,
) (domain.FeedFetchResult, error) {
	body, err := c.do(ctx, feedURL)
	if err != nil {
		return domain.FeedFetchResult{}, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}

	result, err := mapResponse(body, feedID, c.now().UTC())
	if err != nil {
		return domain.FeedFetchResult{}, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}

	return result, nil
}

func (c *Client) do(ctx context.Context, feedURL string) ([]byte, error) {
	endpoint := strings.ReplaceAll(c.endpoint, urlPlaceholder, url.QueryEscape(feedURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req) //nolint:gosec // Endpoint comes from configuration.
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() {
		if err = resp.Body.Close(); err != nil {
			c.log.ErrorContext(ctx, "Failed to close response body",
				"error", err,
				"feedURL", feedURL,
				"operation", "Convert")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("do request: unexpected status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return body, nil
}
