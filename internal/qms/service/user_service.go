package service

import (
	"context"

	"github.com/qualitech/esgqm/internal/qms/entity"
	"github.com/qualitech/esgqm/internal/qms/repository"
)

// UserService exposes the profile directory backing assignee pickers and
// record enrichment.
type UserService struct {
	repo *repository.UserRepository
}

func NewUserService(repo *repository.UserRepository) *UserService {
	return &UserService{repo: repo}
}

func (s *UserService) List(ctx context.Context, companyID string) ([]entity.User, error) {
	return s.repo.ListActive(ctx, companyID)
}

func (s *UserService) Get(ctx context.Context, id string) (*entity.User, error) {
	return s.repo.FindByID(ctx, id)
}
