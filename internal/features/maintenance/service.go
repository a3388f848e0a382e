package maintenance

import (
	"context"
	"fmt"
	"time"

	"gamevault/internal/config"
	"gamevault/internal/features/importsession"
	"gamevault/internal/features/platform"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	// staleSweepSchedule governs the reaper for sessions whose
	// processing goroutine died without reaching a terminal status.
	staleSweepSchedule = "@every 10m"
	// cacheRefreshSchedule refetches the platform taxonomy off-peak so
	// the cache rarely expires under load.
	cacheRefreshSchedule = "0 4 * * *"
)

// MaintenanceService runs the background housekeeping jobs.
type MaintenanceService interface {
	InitializeScheduler(ctx context.Context) error
	StopScheduler() error
	// SweepStaleSessions fails sessions stuck in PROCESSING longer than
	// the configured cutoff. Exposed for on-demand runs.
	SweepStaleSessions(ctx context.Context) (int64, error)
}

type MaintenanceServiceImpl struct {
	Sessions   importsession.SessionRepository
	Platforms  platform.PlatformService
	Logger     *zap.Logger
	StaleAfter time.Duration

	scheduler *cron.Cron
}

func NewMaintenanceService(
	sessions importsession.SessionRepository,
	platforms platform.PlatformService,
	cfg *config.Config,
	logger *zap.Logger,
) MaintenanceService {
	return &MaintenanceServiceImpl{
		Sessions:   sessions,
		Platforms:  platforms,
		Logger:     logger,
		StaleAfter: cfg.SessionStaleAfter,
	}
}

func (s *MaintenanceServiceImpl) InitializeScheduler(ctx context.Context) error {
	s.scheduler = cron.New()

	if _, err := s.scheduler.AddFunc(staleSweepSchedule, func() {
		if _, err := s.SweepStaleSessions(context.Background()); err != nil {
			s.Logger.Error("stale session sweep failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule stale session sweep: %w", err)
	}

	if _, err := s.scheduler.AddFunc(cacheRefreshSchedule, func() {
		if err := s.Platforms.Refresh(context.Background()); err != nil {
			s.Logger.Error("platform cache refresh failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule platform cache refresh: %w", err)
	}

	s.scheduler.Start()
	s.Logger.Info("maintenance scheduler started",
		zap.String("staleSweep", staleSweepSchedule),
		zap.String("cacheRefresh", cacheRefreshSchedule))
	return nil
}

func (s *MaintenanceServiceImpl) StopScheduler() error {
	if s.scheduler != nil {
		ctx := s.scheduler.Stop()
		<-ctx.Done()
	}
	return nil
}

func (s *MaintenanceServiceImpl) SweepStaleSessions(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-s.StaleAfter)
	reaped, err := s.Sessions.FailStaleProcessing(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if reaped > 0 {
		s.Logger.Warn("failed stale processing sessions", zap.Int64("count", reaped))
	}
	return reaped, nil
}
