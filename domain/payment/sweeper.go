package payment

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"mpesa-checkout/infrastructure/metrics"
)

const (
	DefaultSweepInterval  = 30 * time.Minute
	DefaultCacheRetention = time.Hour
)

// Sweeper bounds the fallback cache by age.
type Sweeper struct {
	cache     *Cache
	interval  time.Duration
	retention time.Duration
	now       func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSweeper(cache *Cache, interval, retention time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if retention <= 0 {
		retention = DefaultCacheRetention
	}
	return &Sweeper{
		cache:     cache,
		interval:  interval,
		retention: retention,
		now:       time.Now,
	}
}

// Start launches the sweep loop. Calling it on a running sweeper is a no-op.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		s.Run(ctx)
	}(s.done)
}

// Stop ends the loop started by Start and waits for it to exit.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(s.now())
		}
	}
}

// SweepOnce evicts entries created more than the retention window before now.
func (s *Sweeper) SweepOnce(now time.Time) int {
	evicted, malformed := s.cache.EvictCreatedBefore(now.Add(-s.retention))

	if malformed > 0 {
		log.Warnw("dropped fallback cache entries without creation time", "count", malformed)
	}
	if removed := evicted + malformed; removed > 0 {
		metrics.AddCacheEvictions(removed)
		log.Infow("fallback cache swept", "evicted", removed, "remaining", s.cache.Len())
	}
	return evicted + malformed
}
