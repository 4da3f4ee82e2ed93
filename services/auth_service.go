package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Dosada05/ladder-system/models"
	"github.com/Dosada05/ladder-system/repositories"
	"github.com/Dosada05/ladder-system/utils"
)

const minPasswordLength = 8

type RegisterInput struct {
	Nickname string `json:"nickname"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthService interface {
	Register(ctx context.Context, input RegisterInput) (*models.User, error)
	Login(ctx context.Context, input LoginInput) (*models.User, error)
}

type authService struct {
	userRepo repositories.UserRepository
}

func NewAuthService(userRepo repositories.UserRepository) AuthService {
	return &authService{userRepo: userRepo}
}

func (s *authService) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	if len(input.Password) < minPasswordLength {
		return nil, ErrPasswordTooShort
	}

	hash, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Nickname:     strings.TrimSpace(input.Nickname),
		Email:        strings.ToLower(strings.TrimSpace(input.Email)),
		PasswordHash: hash,
		Role:         models.RolePlayer,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		switch {
		case errors.Is(err, repositories.ErrUserEmailConflict):
			return nil, ErrUserEmailConflict
		case errors.Is(err, repositories.ErrUserNickConflict):
			return nil, ErrUserNickConflict
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

func (s *authService) Login(ctx context.Context, input LoginInput) (*models.User, error) {
	user, err := s.userRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(input.Email)))
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load user by email: %w", err)
	}

	if !utils.CheckPasswordHash(input.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}
