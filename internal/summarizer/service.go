package summarizer

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

const (
	// MaxInputChars bounds the text sent to the backend.
	MaxInputChars = 5000

	FallbackSummary = "Sorry, a summary is not available for this article right now."
)

// Service wraps a backend so that summarization never fails the caller.
type Service struct {
	backend Summarizer
	cache   *summaryCache
	now     func() time.Time
	log     *slog.Logger
}

// NewService builds a service. A nil backend makes every call return
// FallbackSummary.
func NewService(backend Summarizer, log *slog.Logger) *Service {
	return &Service{
		backend: backend,
		cache:   newSummaryCache(summaryCacheMaxEntries),
		now:     time.Now,
		log:     log,
	}
}

// Summarize returns a summary of text, or FallbackSummary on any failure.
func (s *Service) Summarize(ctx context.Context, text string, sourceURL string) string {
	text = truncateRunes(strings.TrimSpace(text), MaxInputChars)
	if text == "" {
		return FallbackSummary
	}

	now := s.now().UTC()
	cacheKey := summaryCacheKey(text)

	if summary, ok := s.cache.get(cacheKey, now); ok {
		return summary
	}

	if s.backend == nil {
		return FallbackSummary
	}

	summary, err := s.backend.Summarize(ctx, Input{
		Text:      text,
		SourceURL: sourceURL,
	})
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to summarize article",
			"error", err,
			"url", sourceURL,
			"fallback", true,
			"textLen", len(text))

		return FallbackSummary
	}

	summary = strings.TrimSpace(summary)
	if summary == "" {
		s.log.WarnContext(ctx, "Empty article summary",
			"url", sourceURL,
			"fallback", true)

		return FallbackSummary
	}

	s.cache.set(cacheKey, summary, now.Add(summaryCacheTTL), now)

	return summary
}

func truncateRunes(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}

	return string(runes[:maxChars])
}
