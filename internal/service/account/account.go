package account

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mkalinina/marketauth/internal/apperrors"
	"github.com/mkalinina/marketauth/internal/models"
	"github.com/mkalinina/marketauth/internal/repository"
)

// Uploader pushes an avatar image to the object storage and returns its
// public URL
type Uploader interface {
	Upload(ctx context.Context, filename string, data []byte) (url string, err error)
}

// Service mutates account state and serves read-only projections
type Service struct {
	userRepo repository.UserRepo
	uploader Uploader
}

func NewService(userRepo repository.UserRepo, uploader Uploader) *Service {
	return &Service{
		userRepo: userRepo,
		uploader: uploader,
	}
}

type UpdateParams struct {
	Email    *string
	FullName *string
	Phone    *string
	Address  *string

	// Avatar reference provided as an already hosted URL
	AvatarURL *string

	// Raw avatar image: uploaded to the object store first, the returned
	// URL wins over AvatarURL
	Avatar         []byte
	AvatarFilename string
}

// Update applies a partial profile update. When raw avatar bytes are given
// the account is persisted only after the upload succeeded.
func (s *Service) Update(ctx context.Context, id uuid.UUID, params UpdateParams) (models.User, error) {
	avatarURL := params.AvatarURL

	if len(params.Avatar) > 0 {
		url, err := s.uploader.Upload(ctx, params.AvatarFilename, params.Avatar)
		if err != nil {
			return models.User{}, fmt.Errorf("%w: %w", apperrors.ErrUploadFailed, err)
		}
		avatarURL = &url
	}

	return s.userRepo.UpdateUser(ctx, id, repository.UpdateUserParams{
		Email:     params.Email,
		FullName:  params.FullName,
		Phone:     params.Phone,
		Address:   params.Address,
		AvatarURL: avatarURL,
	})
}

// Block sets the blocked flag so every following login fails
func (s *Service) Block(ctx context.Context, id uuid.UUID) (models.User, error) {
	return s.userRepo.SetBlocked(ctx, id, true)
}

// Unblock clears the blocked flag
func (s *Service) Unblock(ctx context.Context, id uuid.UUID) (models.User, error) {
	return s.userRepo.SetBlocked(ctx, id, false)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (models.User, error) {
	return s.userRepo.GetUserByID(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]models.User, error) {
	return s.userRepo.ListUsers(ctx)
}

func (s *Service) ListByRole(ctx context.Context, role models.Role) ([]models.User, error) {
	if !role.Valid() {
		return nil, &apperrors.ValidationError{Field: "role"}
	}
	return s.userRepo.ListUsersByRole(ctx, role)
}

func (s *Service) Search(ctx context.Context, emailFragment string) ([]models.User, error) {
	return s.userRepo.SearchUsersByEmail(ctx, emailFragment)
}
