package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/qualitech/esgqm/internal/qms/entity"
	"github.com/qualitech/esgqm/internal/qms/gateway"
	"github.com/qualitech/esgqm/internal/qms/repository"
	"go.uber.org/zap"
)

// Overall resolution windows per severity, in days. Stage SLAs are
// separate; this bounds the whole NC.
var severityDueDays = map[string]int{
	entity.SeverityCritical: 7,
	entity.SeverityHigh:     15,
	entity.SeverityMedium:   30,
	entity.SeverityLow:      60,
}

// NCService is the CRUD and approval surface over non-conformities. Stage
// transitions live in WorkflowService; everything here goes through the
// sync gateway so the mirror stays warm.
type NCService struct {
	gw          *gateway.SyncGateway
	effRepo     *repository.EffectivenessRepository
	taskSvc     *TaskService
	workflowSvc *WorkflowService
	logger      *zap.Logger
}

func NewNCService(gw *gateway.SyncGateway, effRepo *repository.EffectivenessRepository, taskSvc *TaskService, workflowSvc *WorkflowService, logger *zap.Logger) *NCService {
	return &NCService{gw: gw, effRepo: effRepo, taskSvc: taskSvc, workflowSvc: workflowSvc, logger: logger}
}

type CreateNCRequest struct {
	Title             string `json:"title" binding:"required"`
	Description       string `json:"description" binding:"required"`
	Category          string `json:"category"`
	Severity          string `json:"severity" binding:"required"`
	Source            string `json:"source" binding:"required"`
	DetectedDate      string `json:"detected_date" binding:"required"` // 2006-01-02
	DamageLevel       string `json:"damage_level"`
	ResponsibleUserID string `json:"responsible_user_id"`
}

type UpdateNCRequest struct {
	Title             string `json:"title"`
	Description       string `json:"description"`
	Category          string `json:"category"`
	Severity          string `json:"severity"`
	Source            string `json:"source"`
	DamageLevel       string `json:"damage_level"`
	ResponsibleUserID string `json:"responsible_user_id"`
	RootCauseAnalysis string `json:"root_cause_analysis"`
	CorrectiveActions string `json:"corrective_actions"`
	PreventiveActions string `json:"preventive_actions"`
}

var validSeverities = map[string]bool{
	entity.SeverityLow:      true,
	entity.SeverityMedium:   true,
	entity.SeverityHigh:     true,
	entity.SeverityCritical: true,
}

// Create registers a new NC at stage 1, revision 0, with its number
// generated once and the registration task opened for the responsible.
func (s *NCService) Create(ctx context.Context, companyID, userID string, req *CreateNCRequest) (*entity.NonConformity, error) {
	if !validSeverities[req.Severity] {
		return nil, newValidationError("severidade inválida: use Baixa, Média, Alta ou Crítica")
	}
	detectedDate, err := time.Parse("2006-01-02", req.DetectedDate)
	if err != nil {
		return nil, newValidationError("data de detecção inválida, use AAAA-MM-DD")
	}

	now := time.Now()
	due := now.AddDate(0, 0, severityDueDays[req.Severity])

	nc := &entity.NonConformity{
		ID:           uuid.New().String()[:32],
		NCNumber:     GenerateNCNumber(detectedDate, now),
		CompanyID:    companyID,
		Title:        req.Title,
		Description:  req.Description,
		Category:     req.Category,
		Severity:     req.Severity,
		Source:       req.Source,
		DamageLevel:  req.DamageLevel,
		DetectedDate: detectedDate,
		Status:       entity.NCStatusOpen,
		CurrentStage: entity.StageRegistration,
		DueDate:      &due,
		CreatedBy:    userID,
	}
	if req.ResponsibleUserID != "" {
		nc.ResponsibleUserID = &req.ResponsibleUserID
	} else {
		nc.ResponsibleUserID = &userID
	}

	if err := s.gw.Create(ctx, nc); err != nil {
		return nil, err
	}

	if _, err := s.taskSvc.GenerateForStage(ctx, nc, entity.StageRegistration); err != nil {
		s.logger.Warn("Registration task generation failed",
			zap.String("nc_id", nc.ID), zap.Error(err))
	}

	return nc, nil
}

func (s *NCService) List(ctx context.Context, companyID string, filters map[string]string) ([]entity.NonConformity, error) {
	return s.gw.List(ctx, companyID, filters)
}

func (s *NCService) Get(ctx context.Context, companyID, id string) (*entity.NonConformity, error) {
	return s.gw.Get(ctx, companyID, id)
}

// Update patches classification and analysis fields. Workflow state
// (number, stage, revision, timestamps) is never writable here.
func (s *NCService) Update(ctx context.Context, companyID, id string, req *UpdateNCRequest) (*entity.NonConformity, error) {
	nc, err := s.gw.GetAuthoritative(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if nc.Status == entity.NCStatusClosed {
		return nil, newValidationError("não conformidade concluída não pode ser alterada")
	}

	if req.Title != "" {
		nc.Title = req.Title
	}
	if req.Description != "" {
		nc.Description = req.Description
	}
	if req.Category != "" {
		nc.Category = req.Category
	}
	if req.Severity != "" {
		if !validSeverities[req.Severity] {
			return nil, newValidationError("severidade inválida: use Baixa, Média, Alta ou Crítica")
		}
		nc.Severity = req.Severity
	}
	if req.Source != "" {
		nc.Source = req.Source
	}
	if req.DamageLevel != "" {
		nc.DamageLevel = req.DamageLevel
	}
	if req.ResponsibleUserID != "" {
		nc.ResponsibleUserID = &req.ResponsibleUserID
	}
	if req.RootCauseAnalysis != "" {
		nc.RootCauseAnalysis = req.RootCauseAnalysis
	}
	if req.CorrectiveActions != "" {
		nc.CorrectiveActions = req.CorrectiveActions
	}
	if req.PreventiveActions != "" {
		nc.PreventiveActions = req.PreventiveActions
	}

	if err := s.gw.Update(ctx, nc); err != nil {
		return nil, err
	}
	return nc, nil
}

// Delete archives an NC. Closed NCs are kept for audit and only removable
// by a tenant admin forcing the delete.
func (s *NCService) Delete(ctx context.Context, companyID, id string, force, isAdmin bool) error {
	nc, err := s.gw.GetAuthoritative(ctx, companyID, id)
	if err != nil {
		return err
	}
	if nc.Status == entity.NCStatusClosed && !(force && isAdmin) {
		return newValidationError("não conformidade concluída é arquivada, não excluída")
	}

	if err := s.taskSvc.CancelOpenForNC(ctx, companyID, id); err != nil {
		s.logger.Warn("Cancelling tasks on delete failed",
			zap.String("nc_id", id), zap.Error(err))
	}
	return s.gw.Delete(ctx, companyID, id)
}

// Approve marks the NC approved by the given user.
func (s *NCService) Approve(ctx context.Context, companyID, id, approverID, notes string) (*entity.NonConformity, error) {
	nc, err := s.gw.GetAuthoritative(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if nc.Status == entity.NCStatusClosed {
		return nil, newValidationError("não conformidade já concluída")
	}
	if nc.ResponsibleUserID != nil && *nc.ResponsibleUserID == approverID {
		return nil, newValidationError("responsável pela não conformidade não pode aprová-la")
	}

	now := time.Now()
	nc.Status = entity.NCStatusApproved
	nc.ApprovedByUserID = &approverID
	nc.ApprovalDate = &now
	nc.ApprovalNotes = notes

	if err := s.gw.Update(ctx, nc); err != nil {
		return nil, err
	}
	return nc, nil
}

// Close finalizes the NC. Only allowed at stage 6 with the latest
// effectiveness round decided as effective; otherwise the evaluation flow
// must run first.
func (s *NCService) Close(ctx context.Context, companyID, id string) (*entity.NonConformity, error) {
	nc, err := s.gw.GetAuthoritative(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if nc.Status == entity.NCStatusClosed {
		return nil, newValidationError("não conformidade já concluída")
	}
	if nc.CurrentStage != entity.StageEffectiveness {
		return nil, newValidationError("não conformidade só pode ser concluída no estágio de eficácia")
	}

	latest, err := s.effRepo.FindLatestByNC(ctx, companyID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newValidationError("avaliação de eficácia pendente")
		}
		return nil, err
	}
	if latest.IsEffective == nil || !*latest.IsEffective {
		return nil, newValidationError("conclusão exige avaliação de eficácia aprovada")
	}

	if err := s.workflowSvc.CloseEffective(ctx, nc, latest.Evidence); err != nil {
		return nil, err
	}
	if err := s.taskSvc.CancelOpenForNC(ctx, companyID, id); err != nil {
		s.logger.Warn("Cancelling open tasks on close failed",
			zap.String("nc_id", id), zap.Error(err))
	}
	return nc, nil
}
