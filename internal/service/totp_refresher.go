package service

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/yourorg/signal-dashboard/internal/logger"
)

// DefaultTOTPInterval is how often the demo code is refreshed
const DefaultTOTPInterval = 30 * time.Second

// CodeFetcher returns the backend's current demo code
type CodeFetcher interface {
	FetchCurrentCode(ctx context.Context) (string, error)
}

// TOTPRefresher periodically fetches the demo code and hands it to onCode.
// Failures are logged and leave the previous code in place.
type TOTPRefresher struct {
	fetcher  CodeFetcher
	interval time.Duration
	onCode   func(string)
	logger   *zap.Logger

	// nil means the real clock
	timer backoff.Timer
}

// NewTOTPRefresher creates a refresher. A non-positive interval falls back
// to DefaultTOTPInterval.
func NewTOTPRefresher(fetcher CodeFetcher, interval time.Duration, onCode func(string), log *zap.Logger) *TOTPRefresher {
	if interval <= 0 {
		interval = DefaultTOTPInterval
	}
	if onCode == nil {
		onCode = func(string) {}
	}
	return &TOTPRefresher{
		fetcher:  fetcher,
		interval: interval,
		onCode:   onCode,
		logger:   logger.OrNop(log),
	}
}

// RefreshTask is the handle of a running refresher
type RefreshTask struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Stop cancels the refresher and waits for its worker to exit. No fetch is
// issued and no code is delivered once Stop has returned. Safe to call more
// than once.
func (t *RefreshTask) Stop() {
	if t == nil {
		return
	}
	t.once.Do(t.cancel)
	<-t.done
}

// Done is closed when the worker has exited
func (t *RefreshTask) Done() <-chan struct{} {
	return t.done
}

// Start fetches once immediately and then once per interval until ctx is
// done or the returned task is stopped.
func (r *TOTPRefresher) Start(ctx context.Context) *RefreshTask {
	ctx, cancel := context.WithCancel(ctx)
	ticker := backoff.NewTickerWithTimer(
		backoff.WithContext(backoff.NewConstantBackOff(r.interval), ctx),
		r.timer,
	)

	task := &RefreshTask{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(task.done)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ticker.C:
				if !ok {
					return
				}
				r.refresh(ctx)
			}
		}
	}()

	r.logger.Debug("TOTP refresher started", zap.Duration("interval", r.interval))
	return task
}

func (r *TOTPRefresher) refresh(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	code, err := r.fetcher.FetchCurrentCode(ctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		r.logger.Warn("Failed to refresh TOTP code", zap.Error(err))
		return
	}

	r.onCode(code)
}
