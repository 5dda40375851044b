package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qualitech/esgqm/internal/qms/entity"
	"github.com/qualitech/esgqm/internal/qms/gateway"
	"github.com/qualitech/esgqm/internal/qms/repository"
	"go.uber.org/zap"
)

// WorkflowService drives the six-stage corrective-action state machine:
//
//	1-Registro → 2-Ação Imediata → 3-Análise de Causa → 4-Planejamento →
//	5-Implementação → 6-Eficácia → {Concluída | volta ao 3}
//
// Within a revision the current stage only moves forward, one stage at a
// time. The reopen transition is the single allowed backward jump, always
// landing on stage 3 and incrementing the revision.
type WorkflowService struct {
	gw      *gateway.SyncGateway
	taskSvc *TaskService
	effRepo *repository.EffectivenessRepository
	logger  *zap.Logger
}

func NewWorkflowService(gw *gateway.SyncGateway, taskSvc *TaskService, effRepo *repository.EffectivenessRepository, logger *zap.Logger) *WorkflowService {
	return &WorkflowService{gw: gw, taskSvc: taskSvc, effRepo: effRepo, logger: logger}
}

// AdvanceStageRequest carries the stage-completion payload. The analysis
// text lands on the stage the caller just finished.
type AdvanceStageRequest struct {
	RootCauseAnalysis string `json:"root_cause_analysis"`
	CorrectiveActions string `json:"corrective_actions"`
	PreventiveActions string `json:"preventive_actions"`
}

// AdvanceStage completes the NC's current stage: stamps its completion
// time, moves to the next stage and generates that stage's task. Stage 6
// does not advance here; it terminates through the effectiveness decision.
func (s *WorkflowService) AdvanceStage(ctx context.Context, companyID, ncID string, req *AdvanceStageRequest) (*entity.NonConformity, error) {
	nc, err := s.gw.GetAuthoritative(ctx, companyID, ncID)
	if err != nil {
		return nil, err
	}

	if nc.Status == entity.NCStatusClosed {
		return nil, newValidationError("não conformidade já concluída")
	}
	if nc.CurrentStage >= entity.StageEffectiveness {
		return nil, newValidationError("estágio 6 é finalizado pela avaliação de eficácia")
	}

	now := time.Now()
	finished := nc.CurrentStage
	nc.MarkStageCompleted(finished, now)
	nc.CurrentStage = finished + 1
	if nc.Status == entity.NCStatusOpen {
		nc.Status = entity.NCStatusInProgress
	}

	if req != nil {
		if req.RootCauseAnalysis != "" {
			nc.RootCauseAnalysis = req.RootCauseAnalysis
		}
		if req.CorrectiveActions != "" {
			nc.CorrectiveActions = req.CorrectiveActions
		}
		if req.PreventiveActions != "" {
			nc.PreventiveActions = req.PreventiveActions
		}
	}

	if err := s.gw.Update(ctx, nc); err != nil {
		return nil, err
	}

	if _, err := s.taskSvc.GenerateForStage(ctx, nc, nc.CurrentStage); err != nil {
		s.logger.Warn("Stage task generation failed",
			zap.String("nc_id", nc.ID), zap.Int("stage", nc.CurrentStage), zap.Error(err))
	}

	// Entering effectiveness: open the revision's evaluation round.
	if nc.CurrentStage == entity.StageEffectiveness {
		if err := s.ensurePendingRecord(ctx, nc); err != nil {
			return nil, err
		}
	}

	return nc, nil
}

// CloseEffective finalizes an NC whose stage-6 evaluation succeeded.
func (s *WorkflowService) CloseEffective(ctx context.Context, nc *entity.NonConformity, evaluation string) error {
	now := time.Now()
	if nc.Stage6CompletedAt == nil {
		nc.MarkStageCompleted(entity.StageEffectiveness, now)
	}
	nc.Status = entity.NCStatusClosed
	nc.CompletionDate = &now
	nc.EffectivenessEvaluation = evaluation
	nc.EffectivenessDate = &now

	return s.gw.Update(ctx, nc)
}

// Reopen is the sole backward transition: revision +1, back to stage 3,
// stages 3..6 timestamps cleared, open tasks cancelled, tasks 3..6
// regenerated and a fresh evaluation round opened, all under an optimistic
// revision check so concurrent reopens serialize at the primary store.
func (s *WorkflowService) Reopen(ctx context.Context, nc *entity.NonConformity) error {
	expectedRevision := nc.RevisionNumber

	if nc.ParentNCID == nil {
		// first reopen: anchor the revision chain on the original record
		id := nc.ID
		nc.ParentNCID = &id
	}
	nc.RevisionNumber = expectedRevision + 1
	nc.CurrentStage = entity.StageCauseAnalysis
	nc.ClearStagesFrom(entity.StageCauseAnalysis)
	nc.Status = entity.NCStatusInProgress
	nc.CompletionDate = nil

	if err := s.gw.UpdateWithRevisionCheck(ctx, nc, expectedRevision); err != nil {
		return err
	}

	if err := s.taskSvc.CancelOpenForNC(ctx, nc.CompanyID, nc.ID); err != nil {
		s.logger.Warn("Cancelling open tasks on reopen failed",
			zap.String("nc_id", nc.ID), zap.Error(err))
	}
	if err := s.taskSvc.GenerateForStages(ctx, nc, entity.StageCauseAnalysis, entity.StageEffectiveness); err != nil {
		return fmt.Errorf("generate reopen tasks: %w", err)
	}

	return s.ensurePendingRecord(ctx, nc)
}

// ensurePendingRecord opens the evaluation round for the NC's current
// revision if none is pending yet.
func (s *WorkflowService) ensurePendingRecord(ctx context.Context, nc *entity.NonConformity) error {
	_, err := s.effRepo.FindPendingByNC(ctx, nc.CompanyID, nc.ID, nc.RevisionNumber)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	rec := &entity.EffectivenessRecord{
		ID:         uuid.New().String()[:32],
		NCID:       nc.ID,
		CompanyID:  nc.CompanyID,
		NCRevision: nc.RevisionNumber,
	}
	return s.effRepo.Create(ctx, rec)
}
