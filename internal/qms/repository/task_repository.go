package repository

import (
	"context"
	"errors"

	"github.com/qualitech/esgqm/internal/qms/entity"
	"gorm.io/gorm"
)

// TaskRepository stores generated follow-up tasks.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, task *entity.Task) error {
	return r.db.WithContext(ctx).Create(task).Error
}

func (r *TaskRepository) Update(ctx context.Context, task *entity.Task) error {
	return r.db.WithContext(ctx).Save(task).Error
}

func (r *TaskRepository) FindByID(ctx context.Context, companyID, id string) (*entity.Task, error) {
	var task entity.Task
	err := r.db.WithContext(ctx).
		Where("id = ? AND company_id = ?", id, companyID).
		First(&task).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &task, nil
}

// FindByAssignee lists a user's tasks, open ones first, nearest deadline first.
func (r *TaskRepository) FindByAssignee(ctx context.Context, companyID, userID string, filters map[string]string) ([]entity.Task, error) {
	var items []entity.Task

	query := r.db.WithContext(ctx).
		Model(&entity.Task{}).
		Where("company_id = ? AND assignee_id = ?", companyID, userID)

	if taskType := filters["task_type"]; taskType != "" {
		query = query.Where("task_type = ?", taskType)
	}
	if status := filters["status"]; status != "" {
		query = query.Where("status = ?", status)
	}

	err := query.
		Order("CASE WHEN status IN ('Pendente', 'Em Andamento') THEN 0 ELSE 1 END").
		Order("due_date ASC NULLS LAST").
		Find(&items).Error
	return items, err
}

func (r *TaskRepository) FindByNC(ctx context.Context, companyID, ncID string) ([]entity.Task, error) {
	var items []entity.Task
	err := r.db.WithContext(ctx).
		Where("company_id = ? AND nc_id = ?", companyID, ncID).
		Order("nc_revision ASC, stage ASC").
		Find(&items).Error
	return items, err
}

// FindOpenReminder locates the pending stage-6 reminder task of an NC, if any.
// Used to reschedule instead of duplicating on repeated postponements.
func (r *TaskRepository) FindOpenReminder(ctx context.Context, companyID, ncID string) (*entity.Task, error) {
	var task entity.Task
	err := r.db.WithContext(ctx).
		Where("company_id = ? AND nc_id = ? AND task_type = ? AND status = ?",
			companyID, ncID, entity.TaskTypeEffectiveness, entity.TaskStatusPending).
		Order("created_at DESC").
		First(&task).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &task, nil
}

// CancelOpenByNC marks all open tasks of an NC as cancelled. The reopen
// transition calls this before generating the new revision's tasks.
func (r *TaskRepository) CancelOpenByNC(ctx context.Context, companyID, ncID string) error {
	return r.db.WithContext(ctx).
		Model(&entity.Task{}).
		Where("company_id = ? AND nc_id = ? AND status IN ?",
			companyID, ncID, []string{entity.TaskStatusPending, entity.TaskStatusInProgress}).
		Update("status", entity.TaskStatusCancelled).Error
}
