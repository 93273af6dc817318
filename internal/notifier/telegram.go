package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"feedreader/internal/domain"
	"feedreader/internal/feed"
	"feedreader/internal/markdown"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const (
	telegramMessageMaxLength = 4096
	articleTitleMaxChars     = 200

	messageHeader         = "📰 *New articles*\n\n"
	messageContinueHeader = "📰 *New articles \\(continue\\)*\n\n"
)

type MessageSender interface {
	Send(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

type Telegram struct {
	sender MessageSender
	chatID int64
	log    *slog.Logger
}

func NewTelegram(sender MessageSender, chatID int64, log *slog.Logger) *Telegram {
	return &Telegram{sender: sender, chatID: chatID, log: log}
}

func (t *Telegram) NotifyNewArticles(
	ctx context.Context,
	feeds []domain.Feed,
	articles []domain.Article,
) error {
	if len(articles) == 0 {
		return nil
	}

	var errs []error
	for _, message := range formatMessages(feeds, articles) {
		_, err := t.sender.Send(ctx, &bot.SendMessageParams{
			ChatID:    t.chatID,
			Text:      message,
			ParseMode: models.ParseModeMarkdown,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("send message: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}

	t.log.InfoContext(ctx, "New articles sent",
		"chatID", t.chatID,
		"articles", len(articles))

	return nil
}

type feedGroup struct {
	title    string
	url      string
	articles []domain.Article
}

// formatMessages groups articles by feed in the order of feeds and splits
// the result into messages no longer than telegramMessageMaxLength.
// Articles of unknown feeds come last.
func formatMessages(feeds []domain.Feed, articles []domain.Article) []string {
	var messages []string
	var currentMessage strings.Builder

	currentMessage.WriteString(messageHeader)
	headerLength := currentMessage.Len()

	for _, group := range groupByFeed(feeds, articles) {
		feedHeader := fmt.Sprintf("📌 *[%s](%s)*\n\n",
			markdown.EscapeV2(group.title),
			markdown.EscapeLinkURL(group.url))

		for i, a := range group.articles {
			bulletPoint := fmt.Sprintf("– [%s](%s)\n\n",
				markdown.EscapeV2(feed.Truncate(a.Title, articleTitleMaxChars)),
				markdown.EscapeLinkURL(a.Link))

			needed := len(bulletPoint)
			if i == 0 {
				needed += len(feedHeader)
			}

			if currentMessage.Len()+needed > telegramMessageMaxLength {
				messages = append(messages, currentMessage.String())
				currentMessage.Reset()
				currentMessage.WriteString(messageContinueHeader)

				if i > 0 {
					currentMessage.WriteString(feedHeader)
				}
			}

			if i == 0 {
				currentMessage.WriteString(feedHeader)
			}

			currentMessage.WriteString(bulletPoint)
		}
	}

	if currentMessage.Len() > headerLength {
		messages = append(messages, currentMessage.String())
	}

	return messages
}

func groupByFeed(feeds []domain.Feed, articles []domain.Article) []feedGroup {
	index := make(map[string]int, len(feeds))
	groups := make([]feedGroup, 0, len(feeds))

	for _, f := range feeds {
		if _, ok := index[f.ID]; ok {
			continue
		}

		title := strings.TrimSpace(f.Title)
		if title == "" {
			title = f.URL
		}

		index[f.ID] = len(groups)
		groups = append(groups, feedGroup{title: title, url: f.URL})
	}

	var orphans []domain.Article
	for _, a := range articles {
		if strings.TrimSpace(a.Link) == "" {
			continue
		}

		i, ok := index[a.FeedID]
		if !ok {
			orphans = append(orphans, a)
			continue
		}

		groups[i].articles = append(groups[i].articles, a)
	}

	nonEmpty := groups[:0]
	for _, g := range groups {
		if len(g.articles) > 0 {
			nonEmpty = append(nonEmpty, g)
		}
	}

	if len(orphans) > 0 {
		nonEmpty = append(nonEmpty, feedGroup{
			title:    feed.UnknownSourceTitle,
			url:      orphans[0].Link,
			articles: orphans,
		})
	}

	return nonEmpty
}
