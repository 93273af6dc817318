package feed

import (
	"context"
	"fmt"
	"log/slog"

	"feedreader/internal/domain"
)

const DefaultMaxDiscoveryHops = 1

// Transport fetches the raw body of a URL.
type Transport interface {
	FetchRawText(ctx context.Context, url string) (string, error)
}

// Converter fetches and normalizes a feed remotely. It is the last resort.
type Converter interface {
	Convert(ctx context.Context, url string, feedID string) (domain.FeedFetchResult, error)
}

type FetcherConfig struct {
	// MaxDiscoveryHops bounds how many discovered feed URLs are followed.
	MaxDiscoveryHops int
}

// Fetcher composes transport, normalizer, discovery and the remote
// converter into a single fetch per feed URL. It holds no per-call state and
// is safe for concurrent use.
type Fetcher struct {
	transport        Transport
	converter        Converter
	parser           *Parser
	maxDiscoveryHops int
	log              *slog.Logger
}

func NewFetcher(
	transport Transport,
	converter Converter,
	cfg FetcherConfig,
	log *slog.Logger,
) *Fetcher {
	return &Fetcher{
		transport:        transport,
		converter:        converter,
		parser:           NewParser(log),
		maxDiscoveryHops: max(cfg.MaxDiscoveryHops, 0),
		log:              log,
	}
}

type attemptKind int

const (
	attemptOK attemptKind = iota
	attemptNeedsDiscovery
	attemptFailed
)

type attempt struct {
	kind   attemptKind
	result domain.FeedFetchResult
	html   string
	url    string
	err    error
}

// FetchFeed fetches feedURL directly through the relays. An HTML answer is
// searched for a feed link which is then fetched instead, up to the hop
// limit and never twice. Anything else falls back to the converter, whose
// error is returned as is.
func (f *Fetcher) FetchFeed(
	ctx context.Context,
	feedURL string,
	feedID string,
) (domain.FeedFetchResult, error) {
	feedURL, err := ValidateFeedURL(feedURL)
	if err != nil {
		return domain.FeedFetchResult{}, err
	}

	current := feedURL
	visited := map[string]struct{}{current: {}}

	for hop := 0; ; hop++ {
		a := f.fetchDirect(ctx, current, feedID)

		switch a.kind {
		case attemptOK:
			f.log.DebugContext(ctx, "Feed is fetched directly",
				"feedURL", current,
				"feedID", feedID,
				"articleCount", len(a.result.Articles))

			return a.result, nil
		case attemptNeedsDiscovery:
			next, ok := DiscoverFeedURL(ctx, a.html, a.url, f.log)
			if !ok {
				f.log.InfoContext(ctx, "No feed link found in HTML page",
					"feedURL", current,
					"feedID", feedID)
				break
			}

			if _, seen := visited[next]; seen {
				f.log.InfoContext(ctx, "Discovered feed URL is already visited",
					"feedURL", current,
					"discoveredURL", next,
					"feedID", feedID)
				break
			}

			if hop >= f.maxDiscoveryHops {
				f.log.WarnContext(ctx, "Discovery hop limit is reached",
					"feedURL", current,
					"discoveredURL", next,
					"maxDiscoveryHops", f.maxDiscoveryHops,
					"feedID", feedID)
				break
			}

			f.log.InfoContext(ctx, "Following discovered feed URL",
				"feedURL", current,
				"discoveredURL", next,
				"hop", hop+1,
				"feedID", feedID)

			visited[next] = struct{}{}
			current = next

			continue
		case attemptFailed:
			f.log.WarnContext(ctx, "Direct feed fetch failed",
				"error", a.err,
				"feedURL", current,
				"feedID", feedID)
		}

		return f.fetchFallback(ctx, current, feedID)
	}
}

func (f *Fetcher) fetchDirect(ctx context.Context, feedURL string, feedID string) attempt {
	raw, err := f.transport.FetchRawText(ctx, feedURL)
	if err != nil {
		return attempt{kind: attemptFailed, url: feedURL, err: fmt.Errorf("fetch raw text: %w", err)}
	}

	result, err := f.parser.Parse(ctx, raw, feedID, feedURL)
	if err != nil {
		if discoveryErr, ok := IsDiscoveryError(err); ok {
			return attempt{
				kind: attemptNeedsDiscovery,
				html: discoveryErr.HTMLContent,
				url:  discoveryErr.OriginalURL,
				err:  discoveryErr,
			}
		}

		return attempt{kind: attemptFailed, url: feedURL, err: fmt.Errorf("parse: %w", err)}
	}

	return attempt{kind: attemptOK, url: feedURL, result: result}
}

func (f *Fetcher) fetchFallback(
	ctx context.Context,
	feedURL string,
	feedID string,
) (domain.FeedFetchResult, error) {
	result, err := f.converter.Convert(ctx, feedURL, feedID)
	if err != nil {
		f.log.ErrorContext(ctx, "Failed to fetch feed via converter",
			"error", err,
			"feedURL", feedURL,
			"feedID", feedID)

		return domain.FeedFetchResult{}, err
	}

	f.log.InfoContext(ctx, "Feed is fetched via converter",
		"feedURL", feedURL,
		"feedID", feedID,
		"articleCount", len(result.Articles))

	return result, nil
}
