package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/mkalinina/marketauth/internal/models"
)

type CreateUserParams struct {
	Email string

	// Empty if the account is created through a federated provider
	HashedPassword string

	FullName  string
	Phone     string
	Role      models.Role
	Address   string
	AvatarURL string
}

// Partial update: nil fields are left untouched
type UpdateUserParams struct {
	Email          *string
	HashedPassword *string
	FullName       *string
	Phone          *string
	Address        *string
	AvatarURL      *string
}

// User repository interface
type UserRepo interface {
	// Create user
	// Has to return apperrors.ErrEmailTaken if the email is already used
	CreateUser(ctx context.Context, params CreateUserParams) (models.User, error)

	// Get user by id, email or federated identity
	// Has to return apperrors.ErrUserNotFound if no user matched
	GetUserByID(ctx context.Context, id uuid.UUID) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	GetUserByFederation(ctx context.Context, provider string, externalID string) (models.User, error)

	// Update only the fields set in params
	UpdateUser(ctx context.Context, id uuid.UUID, params UpdateUserParams) (models.User, error)

	// Set or clear the blocked flag
	SetBlocked(ctx context.Context, id uuid.UUID, blocked bool) (models.User, error)

	// Read-only projections
	ListUsers(ctx context.Context) ([]models.User, error)
	ListUsersByRole(ctx context.Context, role models.Role) ([]models.User, error)
	SearchUsersByEmail(ctx context.Context, fragment string) ([]models.User, error)
}

// RefreshToken repository interface
type RefreshTokenRepo interface {
	// Save issued token
	Save(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error)

	// Return the token if it exists
	// Has to return apperrors.ErrRefreshTokenNotFound otherwise
	Get(ctx context.Context, tokenString string) (models.RefreshToken, error)
}

// FederationLink repository interface
type FederationRepo interface {
	// Create link between local user and external identity
	// Has to return apperrors.ErrFederationLinkTaken if the identity is linked already
	CreateLink(ctx context.Context, link models.FederationLink) (models.FederationLink, error)

	// Get link by provider and external subject id
	// Has to return apperrors.ErrFederationLinkNotFound if absent
	GetLink(ctx context.Context, provider string, externalID string) (models.FederationLink, error)
}

// Storage aggregates repositories sharing one underlying connection
type Storage interface {
	User() UserRepo
	Refresh() RefreshTokenRepo
	Federation() FederationRepo

	// Run fn within a database transaction
	InTx(ctx context.Context, fn func(s Storage) error) error
}
