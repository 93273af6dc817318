// Package relay fetches origin documents through an ordered list of
// pass-through relays, failing over to the next relay on any error.
package relay

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
)

const (
	// DefaultTimeout bounds a single relay attempt.
	DefaultTimeout = 12 * time.Second

	DefaultUserAgent = "feedreader/1.0 (+https://github.com/feedreader/feedreader)"

	AcceptHeader = "application/rss+xml, application/atom+xml, application/rdf+xml, " +
		"application/xml;q=0.9, text/xml;q=0.9, text/html;q=0.8, */*;q=0.5"

	// EscapedPlaceholder is replaced with the query-escaped target URL.
	EscapedPlaceholder = "{url}"
	// RawPlaceholder is replaced with the target URL verbatim.
	RawPlaceholder = "{rawurl}"

	maxBodyBytes = 10 << 20
)

var ErrAllRelaysFailed = errors.New("all relays failed")

var errEmptyBody = errors.New("empty response body")

// DefaultTemplates is the built-in relay order. Order is significant.
var DefaultTemplates = []string{
	"https://api.allorigins.win/raw?url={url}",
	"https://corsproxy.io/?url={url}",
	"https://api.codetabs.com/v1/proxy?quest={url}",
	"https://thingproxy.freeboard.io/fetch/{rawurl}",
}

type Relay struct {
	Name     string
	Template string
}

// URL builds the relay request URL for target.
func (r Relay) URL(target string) string {
	out := strings.ReplaceAll(r.Template, EscapedPlaceholder, url.QueryEscape(target))
	return strings.ReplaceAll(out, RawPlaceholder, target)
}

// ParseTemplates validates relay templates and names each relay by its host.
func ParseTemplates(templates []string) ([]Relay, error) {
	relays := make([]Relay, 0, len(templates))

	for _, tmpl := range templates {
		tmpl = strings.TrimSpace(tmpl)
		if tmpl == "" {
			continue
		}

		if !strings.Contains(tmpl, EscapedPlaceholder) && !strings.Contains(tmpl, RawPlaceholder) {
			return nil, fmt.Errorf("template has no %s or %s placeholder: %s", EscapedPlaceholder, RawPlaceholder, tmpl)
		}

		sample := strings.NewReplacer(EscapedPlaceholder, "x", RawPlaceholder, "x").Replace(tmpl)
		u, err := url.Parse(sample)
		if err != nil {
			return nil, fmt.Errorf("parse template: %w", err)
		}

		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("template scheme must be http or https: %s", tmpl)
		}

		relays = append(relays, Relay{Name: u.Host, Template: tmpl})
	}

	if len(relays) == 0 {
		return nil, errors.New("no relay templates")
	}

	return relays, nil
}

type Config struct {
	Relays     []Relay
	Timeout    time.Duration
	UserAgent  string
	HTTPClient *http.Client
}

type Client struct {
	relays    []Relay
	timeout   time.Duration
	userAgent string
	client    *http.Client
	log       *slog.Logger
}

func New(cfg Config, log *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	return &Client{
		relays:    cfg.Relays,
		timeout:   timeout,
		userAgent: userAgent,
		client:    client,
		log:       log,
	}
}

// FetchRawText returns the body of target as fetched through the first relay
// that answers with a successful status and a non-empty body. Relays are tried
// in order without delay.
func (c *Client) FetchRawText(ctx context.Context, target string) (string, error) {
	var lastErr error

	for i, r := range c.relays {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}

		body, err := c.fetchVia(ctx, r, target)
		if err == nil {
			c.log.DebugContext(ctx, "Relay fetch succeeded",
				"relay", r.Name,
				"attempt", i+1,
				"targetURL", target,
				"bodyLen", len(body))

			return body, nil
		}

		c.log.WarnContext(ctx, "Relay fetch failed",
			"error", err,
			"relay", r.Name,
			"attempt", i+1,
			"relayCount", len(c.relays),
			"targetURL", target)

		lastErr = fmt.Errorf("relay %s: %w", r.Name, err)
	}

	if lastErr == nil {
		return "", ErrAllRelaysFailed
	}

	return "", fmt.Errorf("%w: %w", ErrAllRelaysFailed, lastErr)
}

func (c *Client) fetchVia(ctx context.Context, r Relay, target string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL(target), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", AcceptHeader)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req) //nolint:gosec // Relay URL comes from configuration.
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer func() {
		if err = resp.Body.Close(); err != nil {
			c.log.ErrorContext(ctx, "Failed to close response body",
				"error", err,
				"relay", r.Name,
				"operation", "fetchVia")
		}
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("do request: unexpected status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	text := string(body)
	if strings.TrimSpace(text) == "" {
		return "", errEmptyBody
	}

	return text, nil
}
