package feed

import (
	"context"
	"log/slog"
	"mime"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var feedMIMETypes = map[string]struct{}{
	"application/rss+xml":  {},
	"application/atom+xml": {},
}

// DiscoverFeedURL finds the first <link> advertising an RSS or Atom feed in
// htmlText and resolves its href against baseURL. Parse failures count as
// nothing found.
func DiscoverFeedURL(
	ctx context.Context,
	htmlText string,
	baseURL string,
	log *slog.Logger,
) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlText))
	if err != nil {
		log.WarnContext(ctx, "Failed to parse HTML for feed discovery",
			"error", err,
			"baseURL", baseURL)

		return "", false
	}

	var href string
	doc.Find("link[type][href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !isFeedMIMEType(s.AttrOr("type", "")) {
			return true
		}

		href = strings.TrimSpace(s.AttrOr("href", ""))
		return href == ""
	})

	if href == "" {
		return "", false
	}

	return resolveReference(baseURL, href), true
}

func isFeedMIMEType(raw string) bool {
	mediaType, _, err := mime.ParseMediaType(raw)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(raw))
	}

	_, ok := feedMIMETypes[mediaType]
	return ok
}

func resolveReference(baseURL string, href string) string {
	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return href
	}

	ref, err := url.Parse(href)
	if err != nil {
		return href
	}

	return base.ResolveReference(ref).String()
}
