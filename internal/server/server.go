package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"feedreader/internal/database"
	"feedreader/internal/domain"
	"feedreader/internal/feed"
	"feedreader/internal/reader"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	requestTimeout  = 2 * time.Minute
	maxRequestBytes = 1 << 20
)

type Reader interface {
	AddFeeds(ctx context.Context, text string) ([]domain.Feed, error)
	RemoveFeed(ctx context.Context, feedID string) error
	Feeds(ctx context.Context) ([]domain.Feed, error)
	Refresh(ctx context.Context) (reader.RefreshResult, error)
	Articles(feedID string) []domain.Article
	Fetch(ctx context.Context, feedURL string) (domain.FeedFetchResult, error)
	Summarize(ctx context.Context, link string) (string, error)
}

type API struct {
	reader Reader
	log    *slog.Logger
}

func New(r Reader, log *slog.Logger) *API {
	return &API{reader: r, log: log}
}

func (a *API) Routes() http.Handler {
	mux := chi.NewRouter()

	mux.Use(middleware.Recoverer)
	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Timeout(requestTimeout))

	mux.Get("/healthz", a.health)

	mux.Route("/feeds", func(r chi.Router) {
		r.Get("/", a.listFeeds)
		r.Post("/", a.addFeeds)
		r.Delete("/{id}", a.removeFeed)
	})

	mux.Get("/articles", a.listArticles)
	mux.Post("/refresh", a.refresh)
	mux.Post("/summaries", a.summarize)
	mux.Get("/fetch", a.fetch)

	return mux
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) listFeeds(w http.ResponseWriter, r *http.Request) {
	feeds, err := a.reader.Feeds(r.Context())
	if err != nil {
		a.log.ErrorContext(r.Context(), "Failed to list feeds", "error", err)
		a.writeError(r.Context(), w, http.StatusInternalServerError, err)

		return
	}

	a.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"feeds": nonNil(feeds)})
}

type addFeedsRequest struct {
	Text string `json:"text"`
}

func (a *API) addFeeds(w http.ResponseWriter, r *http.Request) {
	var req addFeedsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	added, err := a.reader.AddFeeds(r.Context(), req.Text)
	switch {
	case errors.Is(err, reader.ErrNoFeedURLs):
		a.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	case err != nil && len(added) == 0:
		a.log.WarnContext(r.Context(), "Failed to add feeds", "error", err)
		a.writeError(r.Context(), w, http.StatusUnprocessableEntity, err)

		return
	}

	resp := map[string]any{"feeds": nonNil(added)}
	if err != nil {
		resp["error"] = err.Error()
	}

	a.writeJSON(r.Context(), w, http.StatusOK, resp)
}

func (a *API) removeFeed(w http.ResponseWriter, r *http.Request) {
	err := a.reader.RemoveFeed(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, database.ErrFeedNotFound):
		a.writeError(r.Context(), w, http.StatusNotFound, err)
	case err != nil:
		a.log.ErrorContext(r.Context(), "Failed to remove feed", "error", err)
		a.writeError(r.Context(), w, http.StatusInternalServerError, err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (a *API) listArticles(w http.ResponseWriter, r *http.Request) {
	articles := a.reader.Articles(strings.TrimSpace(r.URL.Query().Get("feed")))

	a.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"articles": nonNil(articles)})
}

func (a *API) refresh(w http.ResponseWriter, r *http.Request) {
	res, err := a.reader.Refresh(r.Context())
	if err != nil && res.Outcomes == nil {
		a.log.ErrorContext(r.Context(), "Failed to refresh feeds", "error", err)
		a.writeError(r.Context(), w, http.StatusInternalServerError, err)

		return
	}

	a.writeJSON(r.Context(), w, http.StatusOK, map[string]any{
		"outcomes":    nonNil(res.Outcomes),
		"newArticles": nonNil(res.NewArticles),
	})
}

type summarizeRequest struct {
	Link string `json:"link"`
}

func (a *API) summarize(w http.ResponseWriter, r *http.Request) {
	var req summarizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	summary, err := a.reader.Summarize(r.Context(), req.Link)
	if err != nil {
		a.writeError(r.Context(), w, http.StatusNotFound, err)
		return
	}

	a.writeJSON(r.Context(), w, http.StatusOK, map[string]string{"link": req.Link, "summary": summary})
}

func (a *API) fetch(w http.ResponseWriter, r *http.Request) {
	feedURL := strings.TrimSpace(r.URL.Query().Get("url"))
	if feedURL == "" {
		a.writeError(r.Context(), w, http.StatusBadRequest, errors.New("url query parameter is required"))
		return
	}

	result, err := a.reader.Fetch(r.Context(), feedURL)
	switch {
	case errors.Is(err, feed.ErrInvalidURL):
		a.writeError(r.Context(), w, http.StatusBadRequest, err)
	case err != nil:
		a.log.WarnContext(r.Context(), "Failed to fetch feed",
			"error", err,
			"feedURL", feedURL)
		a.writeError(r.Context(), w, http.StatusBadGateway, err)
	default:
		result.Articles = nonNil(result.Articles)
		a.writeJSON(r.Context(), w, http.StatusOK, result)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(dst); err != nil {
		return errors.New("invalid JSON body")
	}

	return nil
}

func (a *API) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	a.writeJSON(ctx, w, status, map[string]string{"error": err.Error()})
}

func (a *API) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.log.WarnContext(ctx, "Failed to write response", "error", err)
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}

	return s
}
