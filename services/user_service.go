package services

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Dosada05/ladder-system/models"
	"github.com/Dosada05/ladder-system/repositories"
	"github.com/Dosada05/ladder-system/storage"
)

type UserService interface {
	GetByID(ctx context.Context, id int) (*models.User, error)
	UploadAvatar(ctx context.Context, userID int, contentType string, reader io.Reader) (*models.User, error)
}

type userService struct {
	userRepo repositories.UserRepository
	uploader storage.FileUploader
}

func NewUserService(userRepo repositories.UserRepository, uploader storage.FileUploader) UserService {
	return &userService{userRepo: userRepo, uploader: uploader}
}

func (s *userService) GetByID(ctx context.Context, id int) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user %d: %w", id, err)
	}
	s.fillAvatarURL(user)
	return user, nil
}

func (s *userService) UploadAvatar(ctx context.Context, userID int, contentType string, reader io.Reader) (*models.User, error) {
	if s.uploader == nil {
		return nil, fmt.Errorf("%w: avatar storage is not configured", ErrValidationFailed)
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user %d: %w", userID, err)
	}

	key := fmt.Sprintf("avatars/user_%d", userID)
	if _, err := s.uploader.Upload(ctx, key, contentType, reader); err != nil {
		return nil, fmt.Errorf("failed to upload avatar for user %d: %w", userID, err)
	}

	if err := s.userRepo.UpdateAvatarKey(ctx, userID, &key); err != nil {
		return nil, fmt.Errorf("failed to store avatar key for user %d: %w", userID, err)
	}

	user.AvatarKey = &key
	s.fillAvatarURL(user)
	return user, nil
}

func (s *userService) fillAvatarURL(user *models.User) {
	if user.AvatarKey == nil || s.uploader == nil {
		return
	}
	url := s.uploader.GetPublicURL(*user.AvatarKey)
	user.AvatarURL = &url
}
