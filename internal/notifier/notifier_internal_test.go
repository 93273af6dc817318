package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"feedreader/internal/domain"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

type stubSender struct {
	params []*bot.SendMessageParams
	err    error
}

func (s *stubSender) Send(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	s.params = append(s.params, params)
	if s.err != nil {
		return nil, s.err
	}

	return &models.Message{ID: len(s.params)}, nil
}

var testFeeds = []domain.Feed{
	{ID: "a", URL: "https://a.test/rss", Title: "Feed A"},
	{ID: "b", URL: "https://b.test/rss", Title: "Feed.B"},
}

func TestFormatMessagesGroupsByFeedOrder(t *testing.T) {
	articles := []domain.Article{
		{FeedID: "b", Title: "B one", Link: "https://b.test/1"},
		{FeedID: "a", Title: "A one", Link: "https://a.test/1"},
		{FeedID: "zzz", Title: "Orphan", Link: "https://z.test/1"},
		{FeedID: "a", Title: "No link"},
	}

	messages := formatMessages(testFeeds, articles)
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	msg := messages[0]
	a := strings.Index(msg, "Feed A")
	b := strings.Index(msg, `Feed\.B`)
	orphan := strings.Index(msg, "Unknown source")

	if a < 0 || b < 0 || orphan < 0 || a > b || b > orphan {
		t.Fatalf("unexpected grouping:\n%s", msg)
	}

	if strings.Contains(msg, "No link") {
		t.Fatalf("article without link must be skipped:\n%s", msg)
	}
}

func TestFormatMessagesSplitsLongOutput(t *testing.T) {
	var articles []domain.Article
	for i := range 200 {
		articles = append(articles, domain.Article{
			FeedID: "a",
			Title:  fmt.Sprintf("Article number %d with a reasonably long title", i),
			Link:   fmt.Sprintf("https://a.test/articles/%d", i),
		})
	}

	messages := formatMessages(testFeeds, articles)
	if len(messages) < 2 {
		t.Fatalf("expected split messages, got %d", len(messages))
	}

	for i, m := range messages {
		if len(m) > telegramMessageMaxLength {
			t.Fatalf("message %d too long: %d", i, len(m))
		}

		if i > 0 && !strings.HasPrefix(m, messageContinueHeader+"📌 *[Feed A]") {
			t.Fatalf("continuation message %d must repeat feed header:\n%s", i, m[:80])
		}
	}

	total := 0
	for _, m := range messages {
		total += strings.Count(m, "– [")
	}
	if total != len(articles) {
		t.Fatalf("expected %d bullets, got %d", len(articles), total)
	}
}

func TestTelegramNotifySendsMarkdown(t *testing.T) {
	sender := &stubSender{}
	n := NewTelegram(sender, 99, slog.Default())

	err := n.NotifyNewArticles(context.Background(), testFeeds, []domain.Article{
		{FeedID: "a", Title: "Hello!", Link: "https://a.test/1"},
	})
	if err != nil {
		t.Fatalf("NotifyNewArticles failed: %v", err)
	}

	if len(sender.params) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sender.params))
	}

	p := sender.params[0]
	if p.ChatID != int64(99) || p.ParseMode != models.ParseModeMarkdown {
		t.Fatalf("unexpected params: %+v", p)
	}
	if !strings.Contains(p.Text, `Hello\!`) {
		t.Fatalf("expected escaped title, got %q", p.Text)
	}
}

func TestTelegramNotifyNothingToSend(t *testing.T) {
	sender := &stubSender{}
	n := NewTelegram(sender, 99, slog.Default())

	if err := n.NotifyNewArticles(context.Background(), testFeeds, nil); err != nil {
		t.Fatalf("NotifyNewArticles failed: %v", err)
	}
	if len(sender.params) != 0 {
		t.Fatalf("expected no messages, got %d", len(sender.params))
	}
}

func TestTelegramNotifyReturnsSendError(t *testing.T) {
	sender := &stubSender{err: errors.New("forbidden")}
	n := NewTelegram(sender, 99, slog.Default())

	err := n.NotifyNewArticles(context.Background(), testFeeds, []domain.Article{
		{FeedID: "a", Title: "Hello", Link: "https://a.test/1"},
	})
	if err == nil || !strings.Contains(err.Error(), "forbidden") {
		t.Fatalf("expected send error, got %v", err)
	}
}
