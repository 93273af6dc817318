package ratelimiter

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"golang.org/x/time/rate"
)

const (
	privateChatRate = time.Second
	groupChatRate   = 3 * time.Second
	queueSize       = 1000
)

var ErrStopped = errors.New("rate limiter is stopped")

type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

type request struct {
	ctx      context.Context
	params   *bot.SendMessageParams
	response chan response
}

type response struct {
	message *models.Message
	err     error
}

// RateLimiter serializes outgoing messages and throttles them per chat.
type RateLimiter struct {
	sender      Sender
	queue       chan request
	limiters    map[int64]*rate.Limiter
	privateRate time.Duration
	groupRate   time.Duration
	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	log         *slog.Logger
}

func New(sender Sender, log *slog.Logger) *RateLimiter {
	return newRateLimiter(sender, privateChatRate, groupChatRate, log)
}

func newRateLimiter(
	sender Sender,
	privateRate time.Duration,
	groupRate time.Duration,
	log *slog.Logger,
) *RateLimiter {
	ctx, cancel := context.WithCancel(context.Background())

	rl := &RateLimiter{
		sender:      sender,
		queue:       make(chan request, queueSize),
		limiters:    make(map[int64]*rate.Limiter),
		privateRate: privateRate,
		groupRate:   groupRate,
		ctx:         ctx,
		cancel:      cancel,
		log:         log,
	}

	go rl.processQueue()

	return rl
}

// Send queues params and blocks until it is sent, ctx is done or the
// limiter is stopped.
func (rl *RateLimiter) Send(
	ctx context.Context,
	params *bot.SendMessageParams,
) (*models.Message, error) {
	req := request{
		ctx:      ctx,
		params:   params,
		response: make(chan response, 1),
	}

	select {
	case rl.queue <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-rl.ctx.Done():
		return nil, ErrStopped
	}

	select {
	case resp := <-req.response:
		return resp.message, resp.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-rl.ctx.Done():
		return nil, ErrStopped
	}
}

func (rl *RateLimiter) Stop() {
	rl.cancel()
}

func (rl *RateLimiter) processQueue() {
	for {
		select {
		case req := <-rl.queue:
			rl.handleRequest(req)
		case <-rl.ctx.Done():
			for {
				select {
				case req := <-rl.queue:
					req.response <- response{err: ErrStopped}
				default:
					return
				}
			}
		}
	}
}

func (rl *RateLimiter) handleRequest(req request) {
	chatID := getChatID(req.params.ChatID)
	limiter := rl.limiter(chatID)

	reservation := limiter.Reserve()

	if delay := reservation.Delay(); delay > 0 {
		rl.log.DebugContext(req.ctx, "Rate limiting message",
			"chatID", chatID,
			"delay", delay,
			"queueLen", len(rl.queue))

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-req.ctx.Done():
			reservation.Cancel()
			req.response <- response{err: req.ctx.Err()}

			return
		case <-rl.ctx.Done():
			reservation.Cancel()
			req.response <- response{err: ErrStopped}

			return
		}
	}

	message, err := rl.sender.SendMessage(req.ctx, req.params)

	req.response <- response{
		message: message,
		err:     err,
	}
}

func (rl *RateLimiter) limiter(chatID int64) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, ok := rl.limiters[chatID]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(rl.getRate(chatID)), 1)
		rl.limiters[chatID] = limiter
	}

	return limiter
}

func (rl *RateLimiter) getRate(chatID int64) time.Duration {
	if chatID < 0 {
		return rl.groupRate
	}

	return rl.privateRate
}

func getChatID(chatID any) int64 {
	switch id := chatID.(type) {
	case int64:
		return id
	case int:
		return int64(id)
	default:
		return 0
	}
}
