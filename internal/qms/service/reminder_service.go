package service

import (
	"context"
	"time"

	"github.com/qualitech/esgqm/internal/qms/repository"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ReminderService rescans postponed effectiveness evaluations whose date
// has arrived and makes sure the stage-6 reminder task exists. The scan is
// idempotent, so running it again after a crash or overlap is harmless.
type ReminderService struct {
	effRepo *repository.EffectivenessRepository
	ncRepo  *repository.NCRepository
	taskSvc *TaskService
	cron    *cron.Cron
	spec    string
	logger  *zap.Logger
}

func NewReminderService(effRepo *repository.EffectivenessRepository, ncRepo *repository.NCRepository, taskSvc *TaskService, spec string, logger *zap.Logger) *ReminderService {
	return &ReminderService{
		effRepo: effRepo,
		ncRepo:  ncRepo,
		taskSvc: taskSvc,
		cron:    cron.New(),
		spec:    spec,
		logger:  logger,
	}
}

// Start registers the scan on the cron schedule and starts the scheduler.
func (s *ReminderService) Start() error {
	_, err := s.cron.AddFunc(s.spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := s.RunOnce(ctx, time.Now()); err != nil {
			s.logger.Warn("Postponement rescan failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the scheduler and waits for a running scan to finish.
func (s *ReminderService) Stop() {
	<-s.cron.Stop().Done()
}

// RunOnce performs a single scan. Exposed separately so the scan can be
// triggered outside the schedule.
func (s *ReminderService) RunOnce(ctx context.Context, now time.Time) error {
	due, err := s.effRepo.FindDuePostponed(ctx, now)
	if err != nil {
		return err
	}

	for i := range due {
		rec := &due[i]
		nc, err := s.ncRepo.FindByID(ctx, rec.CompanyID, rec.NCID)
		if err != nil {
			s.logger.Warn("Reminder scan: NC lookup failed",
				zap.String("nc_id", rec.NCID), zap.Error(err))
			continue
		}
		if _, err := s.taskSvc.ScheduleReminder(ctx, nc, now); err != nil {
			s.logger.Warn("Reminder scan: scheduling failed",
				zap.String("nc_id", rec.NCID), zap.Error(err))
			continue
		}
		s.logger.Info("Effectiveness evaluation reminder scheduled",
			zap.String("nc_id", rec.NCID), zap.String("nc_number", nc.NCNumber))
	}
	return nil
}
