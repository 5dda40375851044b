package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qualitech/esgqm/internal/qms/entity"
	"github.com/qualitech/esgqm/internal/qms/repository"
)

// TaskService generates and manages stage follow-up tasks.
type TaskService struct {
	repo *repository.TaskRepository
}

func NewTaskService(repo *repository.TaskRepository) *TaskService {
	return &TaskService{repo: repo}
}

// stageTaskTypes maps workflow stages to task types.
var stageTaskTypes = map[int]string{
	entity.StageRegistration:    entity.TaskTypeRegistration,
	entity.StageImmediateAction: entity.TaskTypeImmediateAction,
	entity.StageCauseAnalysis:   entity.TaskTypeCauseAnalysis,
	entity.StagePlanning:        entity.TaskTypePlanning,
	entity.StageImplementation:  entity.TaskTypeImplementation,
	entity.StageEffectiveness:   entity.TaskTypeEffectiveness,
}

// stageTitles are the Portuguese display prefixes per stage.
var stageTitles = map[int]string{
	entity.StageRegistration:    "Registro",
	entity.StageImmediateAction: "Ação Imediata",
	entity.StageCauseAnalysis:   "Análise de Causa",
	entity.StagePlanning:        "Planejamento",
	entity.StageImplementation:  "Implementação",
	entity.StageEffectiveness:   "Avaliação de Eficácia",
}

// stageSLADays is each stage's deadline window from stage entry.
var stageSLADays = map[int]int{
	entity.StageRegistration:    2,
	entity.StageImmediateAction: 3,
	entity.StageCauseAnalysis:   7,
	entity.StagePlanning:        7,
	entity.StageImplementation:  15,
	entity.StageEffectiveness:   30,
}

// PriorityForSeverity maps NC severity to task priority.
func PriorityForSeverity(severity string) string {
	switch severity {
	case entity.SeverityCritical:
		return entity.TaskPriorityUrgent
	case entity.SeverityHigh:
		return entity.TaskPriorityHigh
	case entity.SeverityLow:
		return entity.TaskPriorityLow
	default:
		return entity.TaskPriorityNormal
	}
}

// GenerateForStage creates the follow-up task for one stage of an NC,
// due at stage entry plus the stage's SLA window.
func (s *TaskService) GenerateForStage(ctx context.Context, nc *entity.NonConformity, stage int) (*entity.Task, error) {
	taskType, ok := stageTaskTypes[stage]
	if !ok {
		return nil, newValidationError(fmt.Sprintf("estágio inválido: %d", stage))
	}

	now := time.Now()
	due := now.AddDate(0, 0, stageSLADays[stage])

	task := &entity.Task{
		ID:         uuid.New().String()[:32],
		CompanyID:  nc.CompanyID,
		NCID:       nc.ID,
		NCNumber:   nc.NCNumber,
		TaskType:   taskType,
		Stage:      stage,
		NCRevision: nc.RevisionNumber,
		Title:      fmt.Sprintf("%s - %s: %s", stageTitles[stage], nc.NCNumber, nc.Title),
		AssigneeID: nc.ResponsibleUserID,
		DueDate:    &due,
		Priority:   PriorityForSeverity(nc.Severity),
		Status:     entity.TaskStatusPending,
	}

	if err := s.repo.Create(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// GenerateForStages creates tasks for a stage range. The reopen transition
// uses it to seed stages 3..6 under the new revision.
func (s *TaskService) GenerateForStages(ctx context.Context, nc *entity.NonConformity, fromStage, toStage int) error {
	for stage := fromStage; stage <= toStage; stage++ {
		if _, err := s.GenerateForStage(ctx, nc, stage); err != nil {
			return err
		}
	}
	return nil
}

// CancelOpenForNC cancels all open tasks of an NC (pre-reopen cleanup).
func (s *TaskService) CancelOpenForNC(ctx context.Context, companyID, ncID string) error {
	return s.repo.CancelOpenByNC(ctx, companyID, ncID)
}

// ScheduleReminder (re)schedules the stage-6 reminder task at the given
// date. Idempotent: an existing pending reminder is moved, not duplicated.
func (s *TaskService) ScheduleReminder(ctx context.Context, nc *entity.NonConformity, at time.Time) (*entity.Task, error) {
	existing, err := s.repo.FindOpenReminder(ctx, nc.CompanyID, nc.ID)
	if err == nil {
		existing.DueDate = &at
		if err := s.repo.Update(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	task := &entity.Task{
		ID:         uuid.New().String()[:32],
		CompanyID:  nc.CompanyID,
		NCID:       nc.ID,
		NCNumber:   nc.NCNumber,
		TaskType:   entity.TaskTypeEffectiveness,
		Stage:      entity.StageEffectiveness,
		NCRevision: nc.RevisionNumber,
		Title:      fmt.Sprintf("%s - %s: %s", stageTitles[entity.StageEffectiveness], nc.NCNumber, nc.Title),
		AssigneeID: nc.ResponsibleUserID,
		DueDate:    &at,
		Priority:   PriorityForSeverity(nc.Severity),
		Status:     entity.TaskStatusPending,
	}
	if err := s.repo.Create(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// ListMyTasks returns the caller's tasks with the computed deadline label.
func (s *TaskService) ListMyTasks(ctx context.Context, companyID, userID string, filters map[string]string) ([]entity.Task, error) {
	items, err := s.repo.FindByAssignee(ctx, companyID, userID, filters)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	for i := range items {
		items[i].Deadline = DeadlineLabel(&items[i], now)
	}
	return items, nil
}

// ListByNC returns an NC's tasks across revisions.
func (s *TaskService) ListByNC(ctx context.Context, companyID, ncID string) ([]entity.Task, error) {
	items, err := s.repo.FindByNC(ctx, companyID, ncID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	for i := range items {
		items[i].Deadline = DeadlineLabel(&items[i], now)
	}
	return items, nil
}

// CompleteTask marks a task done. Finished or cancelled tasks are refused.
func (s *TaskService) CompleteTask(ctx context.Context, companyID, taskID, userID string) (*entity.Task, error) {
	task, err := s.repo.FindByID(ctx, companyID, taskID)
	if err != nil {
		return nil, err
	}
	if !task.Open() {
		return nil, newValidationError("tarefa já finalizada ou cancelada")
	}

	now := time.Now()
	task.Status = entity.TaskStatusDone
	task.CompletedAt = &now
	task.CompletedBy = &userID

	if err := s.repo.Update(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// DeadlineLabel classifies a task's deadline for display: Atrasada when the
// due date has passed and the task is still open, Hoje when due today,
// otherwise the days remaining. Closed tasks and tasks without a due date
// get no label.
func DeadlineLabel(task *entity.Task, now time.Time) string {
	if task.DueDate == nil || !task.Open() {
		return ""
	}

	due := task.DueDate.In(now.Location())
	dueDay := time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, now.Location())
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch {
	case dueDay.Before(today):
		return "Atrasada"
	case dueDay.Equal(today):
		return "Hoje"
	default:
		days := int(dueDay.Sub(today).Hours() / 24)
		if days == 1 {
			return "1 dia"
		}
		return fmt.Sprintf("%d dias", days)
	}
}
