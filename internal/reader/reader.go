package reader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"

	"feedreader/internal/database"
	"feedreader/internal/domain"
	"feedreader/internal/feed"

	"github.com/google/uuid"
)

const refreshMaxConcurrencyGrowthFactor = 10

var (
	ErrNoFeedURLs      = errors.New("no feed URLs found")
	ErrArticleNotFound = errors.New("article not found")
)

// DefaultFeeds is registered by SeedDefaults on an empty registry.
var DefaultFeeds = []string{
	"https://go.dev/blog/feed.atom",
	"https://hnrss.org/frontpage",
	"https://www.theverge.com/rss/index.xml",
}

type FeedStore interface {
	AddFeed(ctx context.Context, f domain.Feed) (bool, error)
	GetFeeds(ctx context.Context) ([]domain.Feed, error)
	GetFeed(ctx context.Context, feedID string) (domain.Feed, error)
	GetFeedByURL(ctx context.Context, feedURL string) (domain.Feed, error)
	UpdateFeedTitle(ctx context.Context, feedID string, feedTitle string) error
	UpdateFeedIcon(ctx context.Context, feedID string, icon string) error
	RemoveFeed(ctx context.Context, feedID string) error
	CountFeeds(ctx context.Context) (int, error)
}

type FeedFetcher interface {
	FetchFeed(ctx context.Context, feedURL string, feedID string) (domain.FeedFetchResult, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, text string, sourceURL string) string
}

type Config struct {
	// Concurrency bounds parallel fetches in Refresh. Zero means
	// 10 x NumCPU, never more than the number of feeds.
	Concurrency int
}

type Reader struct {
	store       FeedStore
	fetcher     FeedFetcher
	summarizer  Summarizer
	articles    *domain.ArticleSet
	concurrency int
	log         *slog.Logger
}

func New(
	store FeedStore,
	fetcher FeedFetcher,
	summarizer Summarizer,
	cfg Config,
	log *slog.Logger,
) *Reader {
	return &Reader{
		store:       store,
		fetcher:     fetcher,
		summarizer:  summarizer,
		articles:    domain.NewArticleSet(),
		concurrency: cfg.Concurrency,
		log:         log,
	}
}

// AddFeeds registers every http(s) URL found in text that fetches
// successfully. URLs already registered are skipped silently.
func (r *Reader) AddFeeds(ctx context.Context, text string) ([]domain.Feed, error) {
	urls, err := feed.ExtractFeedURLs(text)
	if err != nil {
		return nil, fmt.Errorf("extract feed URLs: %w", err)
	}

	if len(urls) == 0 {
		return nil, ErrNoFeedURLs
	}

	var (
		added []domain.Feed
		errs  []error
	)

	for _, u := range urls {
		f, ok, addErr := r.addFeed(ctx, u)
		if addErr != nil {
			errs = append(errs, fmt.Errorf("add feed %s: %w", u, addErr))
			continue
		}

		if ok {
			added = append(added, f)
		}
	}

	return added, errors.Join(errs...)
}

func (r *Reader) addFeed(ctx context.Context, rawURL string) (domain.Feed, bool, error) {
	feedURL, err := feed.ValidateFeedURL(rawURL)
	if err != nil {
		return domain.Feed{}, false, err
	}

	if _, err = r.store.GetFeedByURL(ctx, feedURL); err == nil {
		return domain.Feed{}, false, nil
	} else if !errors.Is(err, database.ErrFeedNotFound) {
		return domain.Feed{}, false, fmt.Errorf("get feed: %w", err)
	}

	feedID := uuid.NewString()

	result, err := r.fetcher.FetchFeed(ctx, feedURL, feedID)
	if err != nil {
		return domain.Feed{}, false, fmt.Errorf("fetch feed: %w", err)
	}

	f := domain.Feed{
		ID:    feedID,
		URL:   feedURL,
		Title: feedTitle(result.Title, feedURL),
		Icon:  result.Icon,
	}

	inserted, err := r.store.AddFeed(ctx, f)
	if err != nil {
		return domain.Feed{}, false, fmt.Errorf("store feed: %w", err)
	}

	if !inserted {
		return domain.Feed{}, false, nil
	}

	r.articles.Merge(result.Articles)

	r.log.InfoContext(ctx, "Feed added",
		"feedID", f.ID,
		"feedURL", f.URL,
		"articles", len(result.Articles))

	return f, true, nil
}

func (r *Reader) RemoveFeed(ctx context.Context, feedID string) error {
	f, err := r.store.GetFeed(ctx, feedID)
	if err != nil {
		return fmt.Errorf("get feed: %w", err)
	}

	if err = r.store.RemoveFeed(ctx, f.ID); err != nil {
		return fmt.Errorf("remove feed: %w", err)
	}

	dropped := r.articles.RemoveFeed(f.ID)

	r.log.InfoContext(ctx, "Feed removed",
		"feedID", f.ID,
		"feedURL", f.URL,
		"droppedArticles", dropped)

	return nil
}

func (r *Reader) Feeds(ctx context.Context) ([]domain.Feed, error) {
	feeds, err := r.store.GetFeeds(ctx)
	if err != nil {
		return nil, fmt.Errorf("get feeds: %w", err)
	}

	return feeds, nil
}

// SeedDefaults registers DefaultFeeds without fetching them when the
// registry is empty. It returns the number of feeds registered.
func (r *Reader) SeedDefaults(ctx context.Context) (int, error) {
	count, err := r.store.CountFeeds(ctx)
	if err != nil {
		return 0, fmt.Errorf("count feeds: %w", err)
	}

	if count > 0 {
		return 0, nil
	}

	seeded := 0
	for _, u := range DefaultFeeds {
		inserted, addErr := r.store.AddFeed(ctx, domain.Feed{
			ID:    uuid.NewString(),
			URL:   u,
			Title: u,
		})
		if addErr != nil {
			return seeded, fmt.Errorf("store feed: %w", addErr)
		}

		if inserted {
			seeded++
		}
	}

	r.log.InfoContext(ctx, "Default feeds seeded", "count", seeded)

	return seeded, nil
}

// FeedOutcome is the result of refreshing one feed.
type FeedOutcome struct {
	Feed     domain.Feed `json:"feed"`
	Articles int         `json:"articles"`
	Error    string      `json:"error,omitempty"`
}

type RefreshResult struct {
	Outcomes []FeedOutcome `json:"outcomes"`
	// NewArticles holds articles whose link was not seen before by this
	// reader.
	NewArticles []domain.Article `json:"newArticles"`
}

// Refresh fetches every registered feed concurrently. A failing feed never
// stops the others; its error is recorded in its outcome and joined into
// the returned error.
func (r *Reader) Refresh(ctx context.Context) (RefreshResult, error) {
	feeds, err := r.store.GetFeeds(ctx)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("get feeds: %w", err)
	}

	if len(feeds) == 0 {
		return RefreshResult{}, nil
	}

	outcomes := make([]FeedOutcome, len(feeds))
	results := make([]domain.FeedFetchResult, len(feeds))
	errs := make([]error, len(feeds))

	var wg sync.WaitGroup
	semCh := make(chan struct{}, r.refreshConcurrency(len(feeds)))

	for i, f := range feeds {
		wg.Add(1)
		semCh <- struct{}{}

		go func() {
			defer wg.Done()
			defer func() { <-semCh }()

			results[i], errs[i] = r.fetcher.FetchFeed(ctx, f.URL, f.ID)
		}()
	}

	wg.Wait()

	var (
		res     RefreshResult
		joinErr []error
	)

	for i, f := range feeds {
		if errs[i] != nil {
			r.log.WarnContext(ctx, "Failed to refresh feed",
				"error", errs[i],
				"feedID", f.ID,
				"feedURL", f.URL)

			outcomes[i] = FeedOutcome{Feed: f, Error: errs[i].Error()}
			joinErr = append(joinErr, fmt.Errorf("fetch feed %s: %w", f.URL, errs[i]))

			continue
		}

		f = r.updateFeedMetadata(ctx, f, results[i])

		outcomes[i] = FeedOutcome{Feed: f, Articles: len(results[i].Articles)}
		res.NewArticles = append(res.NewArticles, r.articles.Merge(results[i].Articles)...)
	}

	res.Outcomes = outcomes

	r.log.InfoContext(ctx, "Feeds refreshed",
		"feeds", len(feeds),
		"failed", len(joinErr),
		"newArticles", len(res.NewArticles))

	return res, errors.Join(joinErr...)
}

func (r *Reader) refreshConcurrency(feedCount int) int {
	concurrency := r.concurrency
	if concurrency <= 0 {
		concurrency = runtime.NumCPU() * refreshMaxConcurrencyGrowthFactor
	}

	return max(1, min(concurrency, feedCount))
}

func (r *Reader) updateFeedMetadata(
	ctx context.Context,
	f domain.Feed,
	result domain.FeedFetchResult,
) domain.Feed {
	title := strings.TrimSpace(result.Title)
	if title != "" && title != feed.UnknownSourceTitle && title != f.Title {
		if err := r.store.UpdateFeedTitle(ctx, f.ID, title); err != nil {
			r.log.WarnContext(ctx, "Failed to update feed title",
				"error", err,
				"feedID", f.ID)
		} else {
			f.Title = title
		}
	}

	if f.Icon == "" && result.Icon != "" {
		if err := r.store.UpdateFeedIcon(ctx, f.ID, result.Icon); err != nil {
			r.log.WarnContext(ctx, "Failed to update feed icon",
				"error", err,
				"feedID", f.ID)
		} else {
			f.Icon = result.Icon
		}
	}

	return f
}

// Articles lists stored articles newest first. An empty feedID lists all.
func (r *Reader) Articles(feedID string) []domain.Article {
	return r.articles.List(feedID)
}

// Fetch runs one acquisition for feedURL without registering it.
func (r *Reader) Fetch(ctx context.Context, feedURL string) (domain.FeedFetchResult, error) {
	return r.fetcher.FetchFeed(ctx, feedURL, uuid.NewString())
}

func (r *Reader) Summarize(ctx context.Context, link string) (string, error) {
	article, ok := r.articles.Get(strings.TrimSpace(link))
	if !ok {
		return "", ErrArticleNotFound
	}

	text := feed.PlainText(article.Content)
	if text == "" {
		text = article.ContentSnippet
	}

	if article.Title != "" {
		text = article.Title + "\n\n" + text
	}

	return r.summarizer.Summarize(ctx, text, article.Link), nil
}

func feedTitle(title string, feedURL string) string {
	title = strings.TrimSpace(title)
	if title == "" || title == feed.UnknownSourceTitle {
		return feedURL
	}

	return title
}
