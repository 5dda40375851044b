package repository

import (
	"context"
	"errors"

	"github.com/qualitech/esgqm/internal/qms/entity"
	"gorm.io/gorm"
)

// UserRepository is the profile directory backing enrichment.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*entity.User, error) {
	var user entity.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindByIDs resolves a set of user ids to profiles. Missing ids are simply
// absent from the result; enrichment tolerates unknown references.
func (r *UserRepository) FindByIDs(ctx context.Context, ids []string) ([]entity.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var users []entity.User
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error
	return users, err
}

func (r *UserRepository) ListActive(ctx context.Context, companyID string) ([]entity.User, error) {
	var users []entity.User
	err := r.db.WithContext(ctx).
		Where("company_id = ? AND status = ?", companyID, "active").
		Order("name ASC").
		Find(&users).Error
	return users, err
}

func (r *UserRepository) Create(ctx context.Context, user *entity.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}
