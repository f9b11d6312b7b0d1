package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Sweeper runs Store.Sweep on a fixed period.
type Sweeper struct {
	store    Store
	interval time.Duration
	cron     *cron.Cron
	now      func() time.Time
	onSweep  func(removed int)
}

type SweeperOption func(*Sweeper)

func WithSweepClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// OnSweep registers a callback receiving the number of sessions removed by
// each run.
func OnSweep(fn func(removed int)) SweeperOption {
	return func(s *Sweeper) { s.onSweep = fn }
}

func NewSweeper(store Store, interval time.Duration, opts ...SweeperOption) (*Sweeper, error) {
	if store == nil {
		return nil, errors.New("session sweeper: store is required")
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	s := &Sweeper{
		store:    store,
		interval: interval,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		_, _ = s.RunOnce(context.Background())
	}); err != nil {
		return nil, fmt.Errorf("session sweeper: schedule: %w", err)
	}
	return s, nil
}

// RunOnce sweeps immediately.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	removed, err := s.store.Sweep(ctx, s.now())
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("session sweep failed")
		return 0, err
	}
	if removed > 0 {
		log.Ctx(ctx).Info().Int("removed", removed).Msg("idle sessions swept")
	}
	if s.onSweep != nil {
		s.onSweep(removed)
	}
	return removed, nil
}

func (s *Sweeper) Start() {
	log.Info().Dur("interval", s.interval).Msg("session sweeper started")
	s.cron.Start()
}

// Stop halts scheduling and waits for a running sweep, or for ctx.
func (s *Sweeper) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
