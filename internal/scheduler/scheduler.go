package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// tickTimeout bounds one refresh cycle including the fetch client's retries.
const tickTimeout = 2 * time.Minute

// Refresher is invoked on every tick.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Scheduler drives periodic refreshes at the configured polling interval.
type Scheduler struct {
	ctx       context.Context
	refresher Refresher
	interval  time.Duration
	logger    *logrus.Logger
	cron      *cron.Cron
}

// New creates a scheduler that refreshes every interval.
func New(ctx context.Context, refresher Refresher, interval time.Duration, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		ctx:       ctx,
		refresher: refresher,
		interval:  interval,
		logger:    logger,
		cron:      cron.New(),
	}
}

// Start begins the periodic refresh cycle.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), s.tick)
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.WithField("interval", s.interval.String()).Info("Scheduler started")
	return nil
}

// tick runs one refresh. Failures are logged only; the coordinator keeps
// serving the previous snapshot and the next tick retries.
func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(s.ctx, tickTimeout)
	defer cancel()

	if err := s.refresher.Refresh(ctx); err != nil {
		s.logger.WithError(err).Error("Scheduled refresh failed")
	}
}

// Stop halts the refresh cycle. A running refresh finishes on its own.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
