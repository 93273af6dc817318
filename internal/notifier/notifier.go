package notifier

import (
	"context"
	"log/slog"

	"feedreader/internal/domain"
)

// Notifier announces articles that appeared since the previous refresh.
type Notifier interface {
	NotifyNewArticles(ctx context.Context, feeds []domain.Feed, articles []domain.Article) error
}

type Log struct {
	log *slog.Logger
}

func NewLog(log *slog.Logger) *Log {
	return &Log{log: log}
}

func (n *Log) NotifyNewArticles(ctx context.Context, feeds []domain.Feed, articles []domain.Article) error {
	titles := make(map[string]string, len(feeds))
	for _, f := range feeds {
		titles[f.ID] = f.Title
	}

	for _, a := range articles {
		n.log.InfoContext(ctx, "New article",
			"feedID", a.FeedID,
			"feedTitle", titles[a.FeedID],
			"title", a.Title,
			"link", a.Link,
			"pubDate", a.PubDate)
	}

	return nil
}
