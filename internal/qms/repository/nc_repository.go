package repository

import (
	"context"
	"errors"

	"github.com/qualitech/esgqm/internal/qms/entity"
	"gorm.io/gorm"
)

// NCRepository is the authoritative CRUD adapter for non-conformities.
// Every query is scoped by company (tenant) id.
type NCRepository struct {
	db *gorm.DB
}

func NewNCRepository(db *gorm.DB) *NCRepository {
	return &NCRepository{db: db}
}

// FindAll lists NCs for a tenant, newest first.
func (r *NCRepository) FindAll(ctx context.Context, companyID string, filters map[string]string) ([]entity.NonConformity, error) {
	var items []entity.NonConformity

	query := r.db.WithContext(ctx).
		Model(&entity.NonConformity{}).
		Where("company_id = ?", companyID)

	if status := filters["status"]; status != "" {
		query = query.Where("status = ?", status)
	}
	if severity := filters["severity"]; severity != "" {
		query = query.Where("severity = ?", severity)
	}
	if category := filters["category"]; category != "" {
		query = query.Where("category = ?", category)
	}
	if stage := filters["stage"]; stage != "" {
		query = query.Where("current_stage = ?", stage)
	}
	if responsible := filters["responsible_user_id"]; responsible != "" {
		query = query.Where("responsible_user_id = ?", responsible)
	}

	err := query.Order("created_at DESC").Find(&items).Error
	return items, err
}

// FindByID fetches one NC within the tenant scope.
func (r *NCRepository) FindByID(ctx context.Context, companyID, id string) (*entity.NonConformity, error) {
	var nc entity.NonConformity
	err := r.db.WithContext(ctx).
		Where("id = ? AND company_id = ?", id, companyID).
		First(&nc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &nc, nil
}

func (r *NCRepository) Create(ctx context.Context, nc *entity.NonConformity) error {
	return r.db.WithContext(ctx).Create(nc).Error
}

func (r *NCRepository) Update(ctx context.Context, nc *entity.NonConformity) error {
	return r.db.WithContext(ctx).Save(nc).Error
}

// UpdateWithRevisionCheck persists the full row only if revision_number has
// not moved since it was read. The reopen transition goes through here so
// concurrent reopens serialize at the primary store; the loser gets
// ErrRevisionConflict instead of silently double-incrementing.
func (r *NCRepository) UpdateWithRevisionCheck(ctx context.Context, nc *entity.NonConformity, expectedRevision int) error {
	result := r.db.WithContext(ctx).
		Model(&entity.NonConformity{}).
		Where("id = ? AND company_id = ? AND revision_number = ?", nc.ID, nc.CompanyID, expectedRevision).
		Select("*").
		Omit("id", "created_at").
		Updates(nc)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRevisionConflict
	}
	return nil
}

func (r *NCRepository) Delete(ctx context.Context, companyID, id string) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND company_id = ?", id, companyID).
		Delete(&entity.NonConformity{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
