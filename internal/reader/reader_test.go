package reader_test

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"feedreader/internal/database"
	"feedreader/internal/domain"
	"feedreader/internal/reader"
)

type memoryStore struct {
	mu          sync.Mutex
	feeds       []domain.Feed
	removeCalls int
}

func (s *memoryStore) AddFeed(_ context.Context, f domain.Feed) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.feeds {
		if existing.URL == f.URL {
			return false, nil
		}
	}
	s.feeds = append(s.feeds, f)

	return true, nil
}

func (s *memoryStore) GetFeeds(context.Context) ([]domain.Feed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.feeds), nil
}

func (s *memoryStore) find(match func(domain.Feed) bool) (domain.Feed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range s.feeds {
		if match(f) {
			return f, nil
		}
	}

	return domain.Feed{}, database.ErrFeedNotFound
}

func (s *memoryStore) GetFeed(_ context.Context, feedID string) (domain.Feed, error) {
	return s.find(func(f domain.Feed) bool { return f.ID == feedID })
}

func (s *memoryStore) GetFeedByURL(_ context.Context, feedURL string) (domain.Feed, error) {
	return s.find(func(f domain.Feed) bool { return f.URL == feedURL })
}

func (s *memoryStore) update(feedID string, apply func(*domain.Feed)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.feeds {
		if s.feeds[i].ID == feedID {
			apply(&s.feeds[i])
			return nil
		}
	}

	return database.ErrFeedNotFound
}

func (s *memoryStore) UpdateFeedTitle(_ context.Context, feedID string, feedTitle string) error {
	return s.update(feedID, func(f *domain.Feed) { f.Title = feedTitle })
}

func (s *memoryStore) UpdateFeedIcon(_ context.Context, feedID string, icon string) error {
	return s.update(feedID, func(f *domain.Feed) { f.Icon = icon })
}

func (s *memoryStore) RemoveFeed(_ context.Context, feedID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeCalls++

	for i, f := range s.feeds {
		if f.ID == feedID {
			s.feeds = slices.Delete(s.feeds, i, i+1)
			return nil
		}
	}

	return database.ErrFeedNotFound
}

func (s *memoryStore) CountFeeds(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.feeds), nil
}

type stubFetcher struct {
	mu      sync.Mutex
	results map[string]domain.FeedFetchResult
	errs    map[string]error
}

func (s *stubFetcher) FetchFeed(_ context.Context, feedURL string, feedID string) (domain.FeedFetchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err, ok := s.errs[feedURL]; ok {
		return domain.FeedFetchResult{}, err
	}

	result, ok := s.results[feedURL]
	if !ok {
		return domain.FeedFetchResult{}, errors.New("unexpected URL " + feedURL)
	}

	articles := make([]domain.Article, len(result.Articles))
	for i, a := range result.Articles {
		a.FeedID = feedID
		articles[i] = a
	}
	result.Articles = articles

	return result, nil
}

type stubSummarizer struct {
	text string
}

func (s *stubSummarizer) Summarize(_ context.Context, text string, _ string) string {
	s.text = text

	return "summary"
}

func articlesAt(links ...string) []domain.Article {
	articles := make([]domain.Article, 0, len(links))
	for i, l := range links {
		articles = append(articles, domain.Article{
			Title:       "Article " + l,
			Link:        l,
			PubDate:     "2024-01-0" + string(rune('1'+i)) + "T00:00:00Z",
			PublishedAt: time.Date(2024, 1, 1+i, 0, 0, 0, 0, time.UTC),
			Content:     "<p>Body of " + l + "</p>",
		})
	}

	return articles
}

func TestAddFeedsRegistersFetchedFeeds(t *testing.T) {
	store := &memoryStore{}
	fetcher := &stubFetcher{
		results: map[string]domain.FeedFetchResult{
			"https://a.test/rss": {Title: "A", Icon: "https://a.test/i.png", Articles: articlesAt("https://a.test/1")},
		},
		errs: map[string]error{
			"https://b.test/rss": errors.New("boom"),
		},
	}
	r := reader.New(store, fetcher, &stubSummarizer{}, reader.Config{}, slog.Default())

	added, err := r.AddFeeds(context.Background(), "see https://a.test/rss and https://b.test/rss, again https://a.test/rss")
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected joined fetch error, got %v", err)
	}

	if len(added) != 1 || added[0].Title != "A" || added[0].Icon != "https://a.test/i.png" {
		t.Fatalf("unexpected added feeds: %+v", added)
	}

	if got := r.Articles(added[0].ID); len(got) != 1 {
		t.Fatalf("expected fetched articles to be stored, got %d", len(got))
	}

	again, err := r.AddFeeds(context.Background(), "https://a.test/rss")
	if err != nil || len(again) != 0 {
		t.Fatalf("expected already registered feed to be skipped, got %+v, %v", again, err)
	}
}

func TestAddFeedsWithoutURLs(t *testing.T) {
	r := reader.New(&memoryStore{}, &stubFetcher{}, &stubSummarizer{}, reader.Config{}, slog.Default())

	if _, err := r.AddFeeds(context.Background(), "nothing here"); !errors.Is(err, reader.ErrNoFeedURLs) {
		t.Fatalf("expected ErrNoFeedURLs, got %v", err)
	}
}

func TestRefreshIsolatesFailuresAndReportsNewArticles(t *testing.T) {
	store := &memoryStore{feeds: []domain.Feed{
		{ID: "a", URL: "https://a.test/rss", Title: "https://a.test/rss"},
		{ID: "b", URL: "https://b.test/rss", Title: "B"},
		{ID: "c", URL: "https://c.test/rss", Title: "C"},
	}}
	fetcher := &stubFetcher{
		results: map[string]domain.FeedFetchResult{
			"https://a.test/rss": {Title: "Feed A", Icon: "https://a.test/i.png", Articles: articlesAt("https://a.test/1", "https://a.test/2")},
			"https://c.test/rss": {Title: "Unknown source", Articles: articlesAt("https://c.test/1")},
		},
		errs: map[string]error{
			"https://b.test/rss": errors.New("all relays failed"),
		},
	}
	r := reader.New(store, fetcher, &stubSummarizer{}, reader.Config{Concurrency: 2}, slog.Default())

	res, err := r.Refresh(context.Background())
	if err == nil || !strings.Contains(err.Error(), "https://b.test/rss") {
		t.Fatalf("expected joined error naming failing feed, got %v", err)
	}

	if len(res.Outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(res.Outcomes))
	}
	if res.Outcomes[1].Error == "" || res.Outcomes[0].Error != "" || res.Outcomes[2].Error != "" {
		t.Fatalf("unexpected outcomes: %+v", res.Outcomes)
	}
	if res.Outcomes[0].Feed.Title != "Feed A" || res.Outcomes[0].Articles != 2 {
		t.Fatalf("unexpected outcome for a: %+v", res.Outcomes[0])
	}
	if len(res.NewArticles) != 3 {
		t.Fatalf("expected 3 new articles, got %d", len(res.NewArticles))
	}

	stored, _ := store.GetFeed(context.Background(), "a")
	if stored.Title != "Feed A" || stored.Icon != "https://a.test/i.png" {
		t.Fatalf("expected metadata update, got %+v", stored)
	}

	storedC, _ := store.GetFeed(context.Background(), "c")
	if storedC.Title != "C" {
		t.Fatalf("placeholder title must not overwrite, got %q", storedC.Title)
	}

	res, err = r.Refresh(context.Background())
	if err == nil {
		t.Fatalf("expected error from failing feed on second refresh")
	}
	if len(res.NewArticles) != 0 {
		t.Fatalf("expected no new articles on second refresh, got %d", len(res.NewArticles))
	}

	all := r.Articles("")
	if len(all) != 3 || all[0].Link != "https://a.test/2" {
		t.Fatalf("unexpected article order: %+v", all)
	}
}

func TestRefreshWithoutFeeds(t *testing.T) {
	r := reader.New(&memoryStore{}, &stubFetcher{}, &stubSummarizer{}, reader.Config{}, slog.Default())

	res, err := r.Refresh(context.Background())
	if err != nil || len(res.Outcomes) != 0 {
		t.Fatalf("expected empty refresh, got %+v, %v", res, err)
	}
}

func TestRemoveFeedDropsArticles(t *testing.T) {
	store := &memoryStore{feeds: []domain.Feed{{ID: "a", URL: "https://a.test/rss", Title: "A"}}}
	fetcher := &stubFetcher{results: map[string]domain.FeedFetchResult{
		"https://a.test/rss": {Title: "A", Articles: articlesAt("https://a.test/1")},
	}}
	r := reader.New(store, fetcher, &stubSummarizer{}, reader.Config{}, slog.Default())

	if _, err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	if err := r.RemoveFeed(context.Background(), "a"); err != nil {
		t.Fatalf("RemoveFeed failed: %v", err)
	}

	if got := r.Articles(""); len(got) != 0 {
		t.Fatalf("expected articles to be dropped, got %d", len(got))
	}

	if err := r.RemoveFeed(context.Background(), "a"); !errors.Is(err, database.ErrFeedNotFound) {
		t.Fatalf("expected ErrFeedNotFound, got %v", err)
	}

	if store.removeCalls != 1 {
		t.Fatalf("expected unknown feed not to reach the store delete, got %d calls", store.removeCalls)
	}
}

func TestSeedDefaultsOnlyOnEmptyRegistry(t *testing.T) {
	store := &memoryStore{}
	r := reader.New(store, &stubFetcher{}, &stubSummarizer{}, reader.Config{}, slog.Default())

	seeded, err := r.SeedDefaults(context.Background())
	if err != nil || seeded != len(reader.DefaultFeeds) {
		t.Fatalf("SeedDefaults = %d, %v", seeded, err)
	}

	seeded, err = r.SeedDefaults(context.Background())
	if err != nil || seeded != 0 {
		t.Fatalf("expected no seeding on non-empty registry, got %d, %v", seeded, err)
	}
}

func TestSummarizeUsesPlainTextContent(t *testing.T) {
	store := &memoryStore{feeds: []domain.Feed{{ID: "a", URL: "https://a.test/rss", Title: "A"}}}
	fetcher := &stubFetcher{results: map[string]domain.FeedFetchResult{
		"https://a.test/rss": {Title: "A", Articles: articlesAt("https://a.test/1")},
	}}
	s := &stubSummarizer{}
	r := reader.New(store, fetcher, s, reader.Config{}, slog.Default())

	if _, err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	summary, err := r.Summarize(context.Background(), "https://a.test/1")
	if err != nil || summary != "summary" {
		t.Fatalf("Summarize = %q, %v", summary, err)
	}

	if strings.Contains(s.text, "<p>") || !strings.Contains(s.text, "Body of https://a.test/1") {
		t.Fatalf("expected plain text input, got %q", s.text)
	}

	if _, err = r.Summarize(context.Background(), "https://missing.test"); !errors.Is(err, reader.ErrArticleNotFound) {
		t.Fatalf("expected ErrArticleNotFound, got %v", err)
	}
}
