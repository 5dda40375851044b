package service

import (
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/qualitech/esgqm/internal/config"
	"github.com/qualitech/esgqm/internal/qms/gateway"
	"github.com/qualitech/esgqm/internal/qms/repository"
	"go.uber.org/zap"
)

// Services bundles the service layer for wiring.
type Services struct {
	NC            *NCService
	Workflow      *WorkflowService
	Effectiveness *EffectivenessService
	Task          *TaskService
	Evidence      *EvidenceService
	User          *UserService
	Reminder      *ReminderService
}

func NewServices(repos *repository.Repositories, gw *gateway.SyncGateway, cfg *config.Config, logger *zap.Logger) *Services {
	var minioClient *minio.Client
	if cfg.MinIO.Endpoint != "" {
		var err error
		minioClient, err = minio.New(cfg.MinIO.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, ""),
			Secure: cfg.MinIO.UseSSL,
		})
		if err != nil {
			logger.Warn("MinIO unavailable, evidence uploads disabled", zap.Error(err))
			minioClient = nil
		}
	}

	taskSvc := NewTaskService(repos.Task)
	workflowSvc := NewWorkflowService(gw, taskSvc, repos.Effectiveness, logger)
	effSvc := NewEffectivenessService(gw, repos.Effectiveness, workflowSvc, taskSvc, logger)
	ncSvc := NewNCService(gw, repos.Effectiveness, taskSvc, workflowSvc, logger)
	evidenceSvc := NewEvidenceService(gw, repos.Effectiveness, minioClient, cfg.MinIO.Bucket, logger)
	reminderSvc := NewReminderService(repos.Effectiveness, repos.NC, taskSvc, cfg.Sync.ReminderCron, logger)

	return &Services{
		NC:            ncSvc,
		Workflow:      workflowSvc,
		Effectiveness: effSvc,
		Task:          taskSvc,
		Evidence:      evidenceSvc,
		User:          NewUserService(repos.User),
		Reminder:      reminderSvc,
	}
}
