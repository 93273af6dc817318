package feed

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"feedreader/internal/domain"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html/charset"
)

const (
	UnknownSourceTitle = "Unknown source"
	UntitledTitle      = "Untitled"

	SnippetMaxChars = 300
	snippetEllipsis = "..."

	byteOrderMark = "\uFEFF"

	// nonTextSelector matches elements whose text is never shown to readers.
	nonTextSelector = "script, style, noscript, template"
)

// Parser normalizes RSS 2.0, Atom and RDF documents into articles.
type Parser struct {
	now func() time.Time
	log *slog.Logger
}

func NewParser(log *slog.Logger) *Parser {
	return &Parser{
		now: time.Now,
		log: log,
	}
}

// Parse normalizes rawText. HTML pages fail with *DiscoveryError, other
// malformed content fails with ErrParse.
func (p *Parser) Parse(
	ctx context.Context,
	rawText string,
	feedID string,
	originalURL string,
) (domain.FeedFetchResult, error) {
	text := strings.TrimSpace(strings.TrimPrefix(rawText, byteOrderMark))

	looksHTML, looksFeed := classify(text)
	if looksHTML && !looksFeed {
		return domain.FeedFetchResult{}, newDiscoveryError(
			"response is an HTML page, not a feed",
			text,
			originalURL,
		)
	}

	if err := checkWellFormed(text); err != nil {
		return domain.FeedFetchResult{}, malformedError(text, originalURL, err)
	}

	// gofeed parsers keep per-document state, so one is built per call.
	parsed, err := gofeed.NewParser().ParseString(text)
	if err != nil {
		return domain.FeedFetchResult{}, malformedError(text, originalURL, err)
	}

	title := strings.TrimSpace(parsed.Title)
	if title == "" {
		p.log.WarnContext(ctx, "Empty feed title",
			"feedURL", originalURL,
			"fallbackTitle", UnknownSourceTitle)

		title = UnknownSourceTitle
	}

	var icon string
	if parsed.Image != nil {
		icon = strings.TrimSpace(parsed.Image.URL)
	}

	now := p.now().UTC()
	articles := make([]domain.Article, 0, len(parsed.Items))

	for _, item := range parsed.Items {
		if item == nil {
			continue
		}

		articles = append(articles, p.parseItem(item, feedID, now))
	}

	return domain.FeedFetchResult{
		Title:    title,
		Icon:     icon,
		Articles: articles,
	}, nil
}

func (p *Parser) parseItem(item *gofeed.Item, feedID string, now time.Time) domain.Article {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		title = UntitledTitle
	}

	content := itemContent(item)
	snippet, inlineImage := ContentSnippet(content)
	pubDate, publishedAt := itemPubDate(item, now)

	thumbnail := mediaContentURL(item)
	if thumbnail == "" {
		thumbnail = imageEnclosureURL(item)
	}
	if thumbnail == "" {
		thumbnail = inlineImage
	}

	return domain.Article{
		ID:             uuid.NewString(),
		FeedID:         feedID,
		Title:          title,
		Link:           itemLink(item),
		PubDate:        pubDate,
		Content:        content,
		ContentSnippet: snippet,
		Author:         itemAuthor(item),
		Thumbnail:      thumbnail,
		PublishedAt:    publishedAt,
	}
}

// checkWellFormed rejects markup that is not well-formed XML, including
// mismatched tags and bare ampersands that gofeed would accept. Input that
// does not start with markup, such as a JSON feed, is left to gofeed.
func checkWellFormed(text string) error {
	if !strings.HasPrefix(text, "<") {
		return nil
	}

	dec := xml.NewDecoder(strings.NewReader(text))
	dec.Strict = true
	dec.CharsetReader = charset.NewReaderLabel

	for {
		if _, err := dec.Token(); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}

			return err
		}
	}
}

func malformedError(text string, originalURL string, err error) error {
	if hasHTMLMarkers(text) {
		return newDiscoveryError(
			fmt.Sprintf("response is HTML with malformed feed markup: %v", err),
			text,
			originalURL,
		)
	}

	return fmt.Errorf("%w: %w", ErrParse, err)
}

func classify(text string) (bool, bool) {
	lower := strings.ToLower(text)

	looksHTML := strings.HasPrefix(lower, "<!doctype html") || strings.HasPrefix(lower, "<html")
	looksFeed := strings.Contains(lower, "<rss") ||
		strings.Contains(lower, "<feed") ||
		strings.Contains(lower, "<rdf:rdf")

	return looksHTML, looksFeed
}

func hasHTMLMarkers(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "<html") || strings.Contains(lower, "<body")
}

func itemLink(item *gofeed.Item) string {
	if link := strings.TrimSpace(item.Link); link != "" {
		return link
	}

	for _, link := range item.Links {
		if link = strings.TrimSpace(link); link != "" {
			return link
		}
	}

	return ""
}

// itemPubDate returns the raw publish date and the time gofeed parsed from
// it. The time is zero when gofeed could not parse the date.
func itemPubDate(item *gofeed.Item, now time.Time) (string, time.Time) {
	if raw := strings.TrimSpace(item.Published); raw != "" {
		return raw, parsedTime(item.PublishedParsed)
	}

	if raw := strings.TrimSpace(item.Updated); raw != "" {
		return raw, parsedTime(item.UpdatedParsed)
	}

	if item.DublinCoreExt != nil {
		for _, date := range item.DublinCoreExt.Date {
			if date = strings.TrimSpace(date); date != "" {
				return date, time.Time{}
			}
		}
	}

	return now.Format(time.RFC3339), now
}

func parsedTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}

	return t.UTC()
}

func itemContent(item *gofeed.Item) string {
	if content := strings.TrimSpace(item.Content); content != "" {
		return content
	}

	return strings.TrimSpace(item.Description)
}

func itemAuthor(item *gofeed.Item) string {
	if item.Author != nil {
		if name := strings.TrimSpace(item.Author.Name); name != "" {
			return name
		}
	}

	for _, author := range item.Authors {
		if author == nil {
			continue
		}
		if name := strings.TrimSpace(author.Name); name != "" {
			return name
		}
	}

	if item.DublinCoreExt != nil {
		for _, creator := range item.DublinCoreExt.Creator {
			if creator = strings.TrimSpace(creator); creator != "" {
				return creator
			}
		}
	}

	return ""
}

func mediaContentURL(item *gofeed.Item) string {
	media, ok := item.Extensions["media"]
	if !ok {
		return ""
	}

	for _, ext := range media["content"] {
		if u := strings.TrimSpace(ext.Attrs["url"]); u != "" {
			return u
		}
	}

	// media:content is often nested in media:group.
	for _, group := range media["group"] {
		for _, ext := range group.Children["content"] {
			if u := strings.TrimSpace(ext.Attrs["url"]); u != "" {
				return u
			}
		}
	}

	return ""
}

func imageEnclosureURL(item *gofeed.Item) string {
	for _, enclosure := range item.Enclosures {
		if enclosure == nil {
			continue
		}

		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(enclosure.Type)), "image") {
			continue
		}

		if u := strings.TrimSpace(enclosure.URL); u != "" {
			return u
		}
	}

	return ""
}

// ContentSnippet returns the plain-text snippet of HTML content and the source of
// its first inline image.
func ContentSnippet(content string) (string, string) {
	if content == "" {
		return "", ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return Truncate(collapseSpaces(content), SnippetMaxChars), ""
	}

	var image string
	doc.Find("img[src]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		image = strings.TrimSpace(s.AttrOr("src", ""))
		return image == ""
	})

	return Truncate(visibleText(doc), SnippetMaxChars), image
}

// PlainText strips markup from an HTML fragment.
func PlainText(content string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return collapseSpaces(content)
	}

	return visibleText(doc)
}

func visibleText(doc *goquery.Document) string {
	doc.Find(nonTextSelector).Remove()

	return collapseSpaces(doc.Text())
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate cuts s to maxChars runes and appends an ellipsis when it did.
func Truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}

	return strings.TrimSpace(string(runes[:maxChars])) + snippetEllipsis
}

// IsDiscoveryError reports whether err signals an HTML page and returns it.
func IsDiscoveryError(err error) (*DiscoveryError, bool) {
	var discoveryErr *DiscoveryError
	if errors.As(err, &discoveryErr) {
		return discoveryErr, true
	}

	return nil, false
}
