package converter

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"feedreader/internal/domain"
	"feedreader/internal/feed"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// mapResponse treats every field of the service response as optional except
// the status.
func mapResponse(body []byte, feedID string, now time.Time) (domain.FeedFetchResult, error) {
	if !gjson.ValidBytes(body) {
		return domain.FeedFetchResult{}, errors.New("response is not valid JSON")
	}

	doc := gjson.ParseBytes(body)

	if status := doc.Get("status").String(); status != statusOK {
		message := strings.TrimSpace(doc.Get("message").String())
		if message == "" {
			message = "no message"
		}

		return domain.FeedFetchResult{}, fmt.Errorf("unexpected status %q: %s", status, message)
	}

	title := stringField(doc, "feed.title")
	if title == "" {
		title = feed.UnknownSourceTitle
	}

	items := doc.Get("items").Array()
	articles := make([]domain.Article, 0, len(items))

	for _, item := range items {
		if !item.IsObject() {
			continue
		}

		articles = append(articles, mapItem(item, feedID, now))
	}

	return domain.FeedFetchResult{
		Title:    title,
		Icon:     stringField(doc, "feed.image"),
		Articles: articles,
	}, nil
}

func mapItem(item gjson.Result, feedID string, now time.Time) domain.Article {
	title := stringField(item, "title")
	if title == "" {
		title = feed.UntitledTitle
	}

	pubDate := stringField(item, "pubDate")
	publishedAt, _ := domain.ParsePubDate(pubDate)
	if pubDate == "" {
		pubDate = now.Format(time.RFC3339)
		publishedAt = now
	}

	content := stringField(item, "content")
	if content == "" {
		content = stringField(item, "description")
	}

	snippet, inlineImage := feed.ContentSnippet(content)

	thumbnail := stringField(item, "thumbnail")
	if thumbnail == "" && strings.HasPrefix(stringField(item, "enclosure.type"), "image") {
		thumbnail = stringField(item, "enclosure.link")
	}
	if thumbnail == "" {
		thumbnail = inlineImage
	}

	return domain.Article{
		ID:             uuid.NewString(),
		FeedID:         feedID,
		Title:          title,
		Link:           stringField(item, "link"),
		PubDate:        pubDate,
		Content:        content,
		ContentSnippet: snippet,
		Author:         stringField(item, "author"),
		Thumbnail:      thumbnail,
		PublishedAt:    publishedAt,
	}
}

// stringField returns the trimmed value at path when it is a JSON string.
func stringField(r gjson.Result, path string) string {
	v := r.Get(path)
	if v.Type != gjson.String {
		return ""
	}

	return strings.TrimSpace(v.String())
}
