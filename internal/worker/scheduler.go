package worker

import (
	"context"
	"time"

	"school-notification-service/internal/repository"
	"school-notification-service/internal/usecase"

	"go.uber.org/zap"
)

const dueBatchLimit = 50

// Scheduler periodically scans for scheduled notifications that have come due
// and hands them to the usecase for dispatch. Due-ness is determined by the
// scheduled_at column, so a restart never loses a scheduled notification.
type Scheduler struct {
	notifs   repository.NotificationRepository
	usecase  *usecase.NotificationUsecase
	logger   *zap.Logger
	interval time.Duration
	stopChan chan struct{}
}

func NewScheduler(
	notifs repository.NotificationRepository,
	uc *usecase.NotificationUsecase,
	logger *zap.Logger,
	interval time.Duration,
) *Scheduler {
	return &Scheduler{
		notifs:   notifs,
		usecase:  uc,
		logger:   logger,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Notification scheduler started",
		zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.dispatchDue(ctx)
		case <-s.stopChan:
			s.logger.Info("Notification scheduler stopped")
			return
		case <-ctx.Done():
			s.logger.Info("Notification scheduler stopped", zap.Error(ctx.Err()))
			return
		}
	}
}

func (s *Scheduler) Stop() {
	close(s.stopChan)
}

func (s *Scheduler) dispatchDue(ctx context.Context) {
	due, err := s.notifs.ListDueScheduled(ctx, time.Now(), dueBatchLimit)
	if err != nil {
		s.logger.Error("Failed to scan for due notifications", zap.Error(err))
		return
	}

	for _, n := range due {
		if err := s.usecase.DispatchDue(ctx, n); err != nil {
			s.logger.Error("Failed to dispatch scheduled notification",
				zap.String("notification_id", n.ID),
				zap.Error(err))
			continue
		}
		s.logger.Info("Scheduled notification dispatched",
			zap.String("notification_id", n.ID))
	}
}
