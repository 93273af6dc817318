package domain

import (
	"cmp"
	"slices"
	"sync"
	"time"
)

type Feed struct {
	ID        string    `db:"id"         json:"id"`
	URL       string    `db:"url"        json:"url"`
	Title     string    `db:"title"      json:"title"`
	Icon      string    `db:"icon"       json:"icon,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Article is one normalized feed entry. Link is its identity; ID is
// regenerated on every parse.
type Article struct {
	ID             string `json:"id"`
	FeedID         string `json:"feedId"`
	Title          string `json:"title"`
	Link           string `json:"link"`
	PubDate        string `json:"pubDate"`
	Content        string `json:"content"`
	ContentSnippet string `json:"contentSnippet"`
	Author         string `json:"author,omitempty"`
	Thumbnail      string `json:"thumbnail,omitempty"`

	// PublishedAt is PubDate as parsed by the producer. Zero when PubDate
	// could not be parsed.
	PublishedAt time.Time `json:"-"`
}

type FeedFetchResult struct {
	Title    string    `json:"title"`
	Icon     string    `json:"icon,omitempty"`
	Articles []Article `json:"articles"`
}

// ArticleSet keeps at most one article per link. A later Merge replaces the
// stored article with the same link.
type ArticleSet struct {
	mu     sync.RWMutex
	byLink map[string]Article
}

func NewArticleSet() *ArticleSet {
	return &ArticleSet{byLink: make(map[string]Article)}
}

// Merge stores articles and returns the ones whose link was not present.
// Articles without a link are skipped.
func (s *ArticleSet) Merge(articles []Article) []Article {
	s.mu.Lock()
	defer s.mu.Unlock()

	var added []Article
	for _, a := range articles {
		if a.Link == "" {
			continue
		}

		if _, ok := s.byLink[a.Link]; !ok {
			added = append(added, a)
		}
		s.byLink[a.Link] = a
	}

	return added
}

func (s *ArticleSet) Get(link string) (Article, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byLink[link]
	return a, ok
}

func (s *ArticleSet) RemoveFeed(feedID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for link, a := range s.byLink {
		if a.FeedID == feedID {
			delete(s.byLink, link)
			removed++
		}
	}

	return removed
}

func (s *ArticleSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.byLink)
}

// List returns articles of the given feed (all feeds if feedID is empty),
// newest first. Articles without a parsed date go last, ordered by link.
func (s *ArticleSet) List(feedID string) []Article {
	s.mu.RLock()
	articles := make([]Article, 0, len(s.byLink))
	for _, a := range s.byLink {
		if feedID != "" && a.FeedID != feedID {
			continue
		}
		articles = append(articles, a)
	}
	s.mu.RUnlock()

	slices.SortFunc(articles, func(a, b Article) int {
		aDated, bDated := !a.PublishedAt.IsZero(), !b.PublishedAt.IsZero()

		switch {
		case aDated && !bDated:
			return -1
		case !aDated && bDated:
			return 1
		case aDated && bDated && !a.PublishedAt.Equal(b.PublishedAt):
			return b.PublishedAt.Compare(a.PublishedAt)
		default:
			return cmp.Compare(a.Link, b.Link)
		}
	})

	return articles
}

var pubDateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParsePubDate tries the date layouts commonly found in converter responses,
// which carry dates as plain strings.
func ParsePubDate(raw string) (time.Time, bool) {
	for _, layout := range pubDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}

	return time.Time{}, false
}
