package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"feedreader/internal/domain"
	"feedreader/internal/reader"

	"github.com/robfig/cron/v3"
)

const (
	DefaultSpec           = "@every 15m"
	Timezone              = "UTC"
	TimezoneOffsetSeconds = 0
	refreshTimeout        = 10 * time.Minute
)

type Refresher interface {
	Refresh(ctx context.Context) (reader.RefreshResult, error)
}

type Notifier interface {
	NotifyNewArticles(ctx context.Context, feeds []domain.Feed, articles []domain.Article) error
}

// Scheduler refreshes all feeds periodically and reports new articles.
// The first refresh only learns the current articles.
type Scheduler struct {
	ctx       context.Context
	cron      *cron.Cron
	spec      string
	refresher Refresher
	notifier  Notifier
	mu        sync.Mutex
	primed    bool
	log       *slog.Logger
}

func New(
	ctx context.Context,
	spec string,
	refresher Refresher,
	notifier Notifier,
	log *slog.Logger,
) *Scheduler {
	if spec == "" {
		spec = DefaultSpec
	}

	c := cron.New(
		cron.WithLocation(time.FixedZone(Timezone, TimezoneOffsetSeconds)),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	return &Scheduler{
		ctx:       ctx,
		cron:      c,
		spec:      spec,
		refresher: refresher,
		notifier:  notifier,
		log:       log,
	}
}

func (s *Scheduler) Spec() string {
	return s.spec
}

// Start registers the job and runs the priming refresh in the background.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.Run); err != nil {
		return err
	}

	s.cron.Start()

	go s.Run()

	return nil
}

func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Run performs one refresh and notifies about new articles unless it is
// the first run.
func (s *Scheduler) Run() {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(s.ctx, refreshTimeout)
	defer cancel()

	select {
	case <-ctx.Done():
		s.log.InfoContext(ctx, "Scheduler context is done",
			"error", ctx.Err())
		return
	default:
	}

	res, err := s.refresher.Refresh(ctx)
	if err != nil {
		s.log.WarnContext(ctx, "Some feeds failed to refresh",
			"error", err,
			"feeds", len(res.Outcomes))
	}

	if ctx.Err() != nil {
		s.log.InfoContext(ctx, "Scheduler context is done",
			"error", ctx.Err())
		return
	}

	if !s.primed {
		s.primed = true

		s.log.InfoContext(ctx, "Known articles primed",
			"articles", len(res.NewArticles))

		return
	}

	if len(res.NewArticles) == 0 {
		return
	}

	feeds := make([]domain.Feed, 0, len(res.Outcomes))
	for _, o := range res.Outcomes {
		feeds = append(feeds, o.Feed)
	}

	if err = s.notifier.NotifyNewArticles(ctx, feeds, res.NewArticles); err != nil {
		s.log.ErrorContext(ctx, "Failed to notify about new articles",
			"error", err,
			"articleCount", len(res.NewArticles),
			"feedIDs", feedIDs(res.NewArticles))
	}
}

func feedIDs(articles []domain.Article) []string {
	seen := make(map[string]struct{})
	var ids []string

	for _, a := range articles {
		if _, ok := seen[a.FeedID]; ok {
			continue
		}

		seen[a.FeedID] = struct{}{}
		ids = append(ids, a.FeedID)
	}

	return ids
}
