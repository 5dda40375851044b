package service

import (
	"context"
	"errors"
	"time"

	"github.com/qualitech/esgqm/internal/qms/entity"
	"github.com/qualitech/esgqm/internal/qms/gateway"
	"github.com/qualitech/esgqm/internal/qms/repository"
	"go.uber.org/zap"
)

// EffectivenessService owns the stage-6 evaluation round: the decision that
// either closes the NC or reopens it, and the postponement path that pushes
// the decision to a future date with a scheduled reminder.
type EffectivenessService struct {
	gw          *gateway.SyncGateway
	repo        *repository.EffectivenessRepository
	workflowSvc *WorkflowService
	taskSvc     *TaskService
	logger      *zap.Logger
}

func NewEffectivenessService(gw *gateway.SyncGateway, repo *repository.EffectivenessRepository, workflowSvc *WorkflowService, taskSvc *TaskService, logger *zap.Logger) *EffectivenessService {
	return &EffectivenessService{gw: gw, repo: repo, workflowSvc: workflowSvc, taskSvc: taskSvc, logger: logger}
}

type EvaluateRequest struct {
	IsEffective        *bool  `json:"is_effective" binding:"required"`
	Evidence           string `json:"evidence" binding:"required"`
	RequiresRiskUpdate bool   `json:"requires_risk_update"`
	RiskUpdateNotes    string `json:"risk_update_notes"`
	RequiresSgqChange  bool   `json:"requires_sgq_change"`
	SgqChangeNotes     string `json:"sgq_change_notes"`
}

type PostponeRequest struct {
	PostponedTo   string `json:"postponed_to" binding:"required"` // 2006-01-02
	Reason        string `json:"reason" binding:"required"`
	ResponsibleID string `json:"responsible_id"`
}

// Evaluate records the effectiveness decision for the NC's current revision.
// Effective closes the NC; not effective reopens it at stage 3 with a bumped
// revision. Either way the pending record is finalized first, so the
// evaluation log keeps the decision even if the transition fails and retries.
func (s *EffectivenessService) Evaluate(ctx context.Context, companyID, ncID, evaluatorID string, req *EvaluateRequest) (*entity.EffectivenessRecord, error) {
	if req.IsEffective == nil {
		return nil, newValidationError("decisão de eficácia é obrigatória")
	}
	if req.Evidence == "" {
		return nil, newValidationError("evidência é obrigatória para avaliar a eficácia")
	}

	nc, err := s.gw.GetAuthoritative(ctx, companyID, ncID)
	if err != nil {
		return nil, err
	}
	if nc.CurrentStage != entity.StageEffectiveness {
		return nil, newValidationError("não conformidade ainda não chegou ao estágio de eficácia")
	}
	if nc.Status == entity.NCStatusClosed {
		return nil, newValidationError("não conformidade já concluída")
	}

	rec, err := s.pendingRecord(ctx, nc)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	rec.IsEffective = req.IsEffective
	rec.Evidence = req.Evidence
	rec.RequiresRiskUpdate = req.RequiresRiskUpdate
	rec.RiskUpdateNotes = req.RiskUpdateNotes
	rec.RequiresSgqChange = req.RequiresSgqChange
	rec.SgqChangeNotes = req.SgqChangeNotes
	rec.PostponedTo = nil
	rec.EvaluatedBy = &evaluatorID
	rec.EvaluatedAt = &now

	if err := s.repo.Update(ctx, rec); err != nil {
		return nil, err
	}

	if *req.IsEffective {
		if err := s.workflowSvc.CloseEffective(ctx, nc, req.Evidence); err != nil {
			return nil, err
		}
		if err := s.taskSvc.CancelOpenForNC(ctx, companyID, ncID); err != nil {
			s.logger.Warn("Cancelling open tasks on close failed",
				zap.String("nc_id", ncID), zap.Error(err))
		}
		return rec, nil
	}

	if err := s.workflowSvc.Reopen(ctx, nc); err != nil {
		return nil, err
	}
	return rec, nil
}

// Postpone pushes the pending evaluation to a future date. The record is
// bumped in place (revision_number +1) rather than appended, and a reminder
// task is scheduled for the new date.
func (s *EffectivenessService) Postpone(ctx context.Context, companyID, ncID, userID string, req *PostponeRequest) (*entity.EffectivenessRecord, error) {
	if req.Reason == "" {
		return nil, newValidationError("justificativa é obrigatória para adiar a avaliação")
	}
	postponedTo, err := time.Parse("2006-01-02", req.PostponedTo)
	if err != nil {
		return nil, newValidationError("data de adiamento inválida, use AAAA-MM-DD")
	}
	if !postponedTo.After(time.Now()) {
		return nil, newValidationError("data de adiamento deve ser futura")
	}

	nc, err := s.gw.GetAuthoritative(ctx, companyID, ncID)
	if err != nil {
		return nil, err
	}
	if nc.CurrentStage != entity.StageEffectiveness {
		return nil, newValidationError("não conformidade ainda não chegou ao estágio de eficácia")
	}

	rec, err := s.pendingRecord(ctx, nc)
	if err != nil {
		return nil, err
	}

	rec.RevisionNumber++
	rec.PostponedTo = &postponedTo
	rec.PostponedReason = req.Reason
	if req.ResponsibleID != "" {
		rec.PostponedResponsibleID = &req.ResponsibleID
	} else {
		rec.PostponedResponsibleID = &userID
	}

	if err := s.repo.Update(ctx, rec); err != nil {
		return nil, err
	}

	if _, err := s.taskSvc.ScheduleReminder(ctx, nc, postponedTo); err != nil {
		s.logger.Warn("Scheduling evaluation reminder failed",
			zap.String("nc_id", ncID), zap.Error(err))
	}

	return rec, nil
}

// History returns the NC's full evaluation log, oldest first.
func (s *EffectivenessService) History(ctx context.Context, companyID, ncID string) ([]entity.EffectivenessRecord, error) {
	if _, err := s.gw.Get(ctx, companyID, ncID); err != nil {
		return nil, err
	}
	return s.repo.FindByNC(ctx, companyID, ncID)
}

// pendingRecord resolves the open round for the NC's current revision,
// creating it lazily for rows that predate the evaluation log.
func (s *EffectivenessService) pendingRecord(ctx context.Context, nc *entity.NonConformity) (*entity.EffectivenessRecord, error) {
	rec, err := s.repo.FindPendingByNC(ctx, nc.CompanyID, nc.ID, nc.RevisionNumber)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if err := s.workflowSvc.ensurePendingRecord(ctx, nc); err != nil {
		return nil, err
	}
	return s.repo.FindPendingByNC(ctx, nc.CompanyID, nc.ID, nc.RevisionNumber)
}
