package repository

import (
	"context"
	"errors"
	"time"

	"github.com/qualitech/esgqm/internal/qms/entity"
	"gorm.io/gorm"
)

// EffectivenessRepository stores the append-only evaluation log.
type EffectivenessRepository struct {
	db *gorm.DB
}

func NewEffectivenessRepository(db *gorm.DB) *EffectivenessRepository {
	return &EffectivenessRepository{db: db}
}

func (r *EffectivenessRepository) Create(ctx context.Context, rec *entity.EffectivenessRecord) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *EffectivenessRepository) Update(ctx context.Context, rec *entity.EffectivenessRecord) error {
	return r.db.WithContext(ctx).Save(rec).Error
}

func (r *EffectivenessRepository) FindByID(ctx context.Context, companyID, id string) (*entity.EffectivenessRecord, error) {
	var rec entity.EffectivenessRecord
	err := r.db.WithContext(ctx).
		Where("id = ? AND company_id = ?", id, companyID).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// FindByNC returns the full evaluation history of an NC, oldest first.
func (r *EffectivenessRepository) FindByNC(ctx context.Context, companyID, ncID string) ([]entity.EffectivenessRecord, error) {
	var items []entity.EffectivenessRecord
	err := r.db.WithContext(ctx).
		Where("nc_id = ? AND company_id = ?", ncID, companyID).
		Order("nc_revision ASC, revision_number ASC, created_at ASC").
		Find(&items).Error
	return items, err
}

// FindPendingByNC returns the undecided record of the NC's given revision,
// or ErrNotFound when the revision has no open round.
func (r *EffectivenessRepository) FindPendingByNC(ctx context.Context, companyID, ncID string, ncRevision int) (*entity.EffectivenessRecord, error) {
	var rec entity.EffectivenessRecord
	err := r.db.WithContext(ctx).
		Where("nc_id = ? AND company_id = ? AND nc_revision = ? AND is_effective IS NULL", ncID, companyID, ncRevision).
		Order("created_at DESC").
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// FindLatestByNC returns the most recent record regardless of outcome.
func (r *EffectivenessRepository) FindLatestByNC(ctx context.Context, companyID, ncID string) (*entity.EffectivenessRecord, error) {
	var rec entity.EffectivenessRecord
	err := r.db.WithContext(ctx).
		Where("nc_id = ? AND company_id = ?", ncID, companyID).
		Order("nc_revision DESC, revision_number DESC, created_at DESC").
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// FindDuePostponed returns pending postponed records whose postponed_to has
// arrived. Cross-tenant on purpose: the reminder job runs process-wide.
func (r *EffectivenessRepository) FindDuePostponed(ctx context.Context, now time.Time) ([]entity.EffectivenessRecord, error) {
	var items []entity.EffectivenessRecord
	err := r.db.WithContext(ctx).
		Where("is_effective IS NULL AND postponed_to IS NOT NULL AND postponed_to <= ?", now).
		Find(&items).Error
	return items, err
}
