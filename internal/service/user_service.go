package service

import (
	"context"
	"fmt"

	"github.com/joaohacker/creditpanel/internal/models"
	"github.com/joaohacker/creditpanel/internal/repository"
)

type UserService struct {
	users *repository.UserRepository
}

func NewUserService(users *repository.UserRepository) *UserService {
	return &UserService{users: users}
}

func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (s *UserService) FindByID(ctx context.Context, id int64) (*models.User, error) {
	return s.users.FindByID(ctx, id)
}

func (s *UserService) SetBanned(ctx context.Context, userID int64, banned bool) error {
	return s.users.SetBanned(ctx, userID, banned)
}
