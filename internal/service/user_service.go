package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/rs/zerolog"

	"medprep/api/internal/models"
	"medprep/api/internal/repository"
	"medprep/api/internal/storage"
)

// UserService covers profile reads and updates plus the admin-facing account
// management. Soft-deleted accounts are invisible to every operation here.
type UserService struct {
	users *repository.UserRepository
	store *storage.ObjectStore
	log   zerolog.Logger
}

func NewUserService(users *repository.UserRepository, store *storage.ObjectStore, log zerolog.Logger) *UserService {
	return &UserService{
		users: users,
		store: store,
		log:   log,
	}
}

func (s *UserService) GetByID(ctx context.Context, userID string) (models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

type UpdateProfileInput struct {
	FirstName          *string
	LastName           *string
	MedicalCollegeName *string
	Phone              *string
	MBBSPassingYear    *string
}

// UpdateProfile applies a partial update; nil fields keep their current
// value.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, input UpdateProfileInput) (models.User, error) {
	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return models.User{}, err
	}

	if input.FirstName != nil {
		user.FirstName = *input.FirstName
	}
	if input.LastName != nil {
		user.LastName = *input.LastName
	}
	if input.MedicalCollegeName != nil {
		user.MedicalCollegeName = *input.MedicalCollegeName
	}
	if input.Phone != nil {
		user.Phone = input.Phone
	}
	if input.MBBSPassingYear != nil {
		user.MBBSPassingYear = input.MBBSPassingYear
	}

	if err := s.users.UpdateProfile(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

// UploadAvatar stores the image in the object store and records its public
// URL on the account.
func (s *UserService) UploadAvatar(ctx context.Context, userID string, filename string, contentType string, body io.Reader, size int64) (models.User, error) {
	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return models.User{}, err
	}

	ext := strings.ToLower(path.Ext(filename))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".webp":
	default:
		return models.User{}, fmt.Errorf("%w: %s", ErrUnsupportedMedia, ext)
	}

	url, err := s.store.PutAvatar(ctx, userID, ext, contentType, body, size)
	if err != nil {
		return models.User{}, err
	}

	if err := s.users.UpdateAvatarURL(ctx, userID, url); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, err
	}

	user.AvatarURL = &url
	return user, nil
}

// List returns every visible student account, newest first.
func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	return s.users.List(ctx)
}

// Delete soft-deletes: the row stays and its email remains reserved.
func (s *UserService) Delete(ctx context.Context, userID string) error {
	if err := s.users.SoftDelete(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}
