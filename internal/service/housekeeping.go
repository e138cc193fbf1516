package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/predio-auth/internal/refreshtoken"
)

// HousekeepingService periodically removes expired refresh tokens so the
// registry does not grow without bound.  It runs off the request path.
type HousekeepingService struct {
	Tokens   refreshtoken.Registry
	Logger   *logrus.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService defaults a non-positive interval to one hour.
func NewHousekeepingService(tokens refreshtoken.Registry, logger *logrus.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &HousekeepingService{
		Tokens:   tokens,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the background worker.  Call Stop to shut it down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.WithField("interval", s.Interval).Info("housekeeping service started")
}

// Stop blocks until an in-progress sweep has finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.RunOnce(context.Background())
	for {
		select {
		case <-ticker.C:
			s.RunOnce(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// RunOnce sweeps expired refresh tokens and returns how many were removed.
func (s *HousekeepingService) RunOnce(ctx context.Context) int {
	n, err := s.Tokens.SweepExpired(ctx)
	if err != nil {
		s.Logger.WithError(err).Error("failed to delete expired refresh tokens")
		return n
	}
	s.Logger.WithField("deleted", n).Debug("deleted expired refresh tokens")
	return n
}
