package service

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/aussiebroadwan/barchat/internal/chat/store"
	"github.com/aussiebroadwan/barchat/internal/chat/tokencache"
)

const (
	DefaultHousekeepingInterval = time.Hour
	DefaultCleanupBatchSize     = 500
	DefaultCleanupBatchRate     = rate.Limit(10) // batches per second
)

// HousekeepingService periodically drops expired token cache entries and
// deletes dead refresh tokens in paced batches, so a large backlog never
// holds the database for long.
type HousekeepingService struct {
	Store    store.Store
	Cache    *tokencache.Cache
	Logger   *slog.Logger
	Interval time.Duration

	BatchSize int
	BatchRate rate.Limit

	Now func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	doneCh chan struct{}
}

// NewHousekeepingService defaults a non-positive interval to one hour.
func NewHousekeepingService(st store.Store, cache *tokencache.Cache, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = DefaultHousekeepingInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &HousekeepingService{
		Store:     st,
		Cache:     cache,
		Logger:    logger,
		Interval:  interval,
		BatchSize: DefaultCleanupBatchSize,
		BatchRate: DefaultCleanupBatchRate,
		ctx:       ctx,
		cancel:    cancel,
		doneCh:    make(chan struct{}),
	}
}

// Start launches the worker. Call Stop to shut it down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop cancels an in-progress cleanup between batches and waits for the
// worker to exit.
func (s *HousekeepingService) Stop() {
	s.cancel()
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.Cleanup(s.ctx)

	for {
		select {
		case <-ticker.C:
			s.Cleanup(s.ctx)
		case <-s.ctx.Done():
			return
		}
	}
}

// Cleanup runs one pass. Each step is independent, a failure in one does
// not skip the others.
func (s *HousekeepingService) Cleanup(ctx context.Context) {
	s.Logger.Info("starting housekeeping cleanup")

	swept := 0
	if s.Cache != nil {
		swept = s.Cache.Sweep()
		s.Logger.Debug("swept token cache", "removed", swept)
	}

	deleted, err := s.deleteRefreshTokens(ctx)
	if err != nil {
		s.Logger.Error("failed to delete expired refresh tokens", "error", err, "deleted", deleted)
	}

	s.Logger.Info("housekeeping cleanup completed", "cache_removed", swept, "refresh_tokens_deleted", deleted)
}

func (s *HousekeepingService) deleteRefreshTokens(ctx context.Context) (int64, error) {
	batch := s.BatchSize
	if batch <= 0 {
		batch = DefaultCleanupBatchSize
	}
	r := s.BatchRate
	if r <= 0 {
		r = DefaultCleanupBatchRate
	}
	limiter := rate.NewLimiter(r, 1)

	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}

	var total int64
	for {
		if err := limiter.Wait(ctx); err != nil {
			return total, err
		}
		n, err := s.Store.RefreshTokens().DeleteExpiredRefreshTokens(ctx, now, batch)
		total += n
		if err != nil {
			return total, err
		}
		if n < int64(batch) {
			return total, nil
		}
	}
}
