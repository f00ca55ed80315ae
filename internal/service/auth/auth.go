package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mkalinina/marketauth/internal/apperrors"
	"github.com/mkalinina/marketauth/internal/models"
	"github.com/mkalinina/marketauth/internal/repository"
)

const (
	defaultAccessHeaderName  = "Authorization"
	defaultAccessAuthScheme  = "Bearer"
	defaultRefreshCookieName = "refreshtoken"
)

// Manager to issue and verify token pairs
type TokenManager interface {
	GeneratePair(ctx context.Context, user models.User) (models.TokenPair, error)
	Refresh(ctx context.Context, refresh string) (models.IssuedToken, error)
	ParseAccess(access string) (userID uuid.UUID, role models.Role, err error)
}

type Config struct {
	// Hasher to use during registration and login
	// Defaults to BcryptHasher
	Hasher PasswordHasher

	// Access token transport: response header and auth scheme
	AccessHeaderName string
	AccessAuthScheme string

	// Refresh token transport: http only cookie
	RefreshCookieName string
}

type RegisterParams struct {
	Email    string
	Password string
	FullName string
	Phone    string
	Role     models.Role
	Address  string
}

// AuthService authenticates accounts against the credential store
type AuthService struct {
	hasher PasswordHasher
	token  TokenManager

	userRepo repository.UserRepo

	accessHeaderName  string
	accessAuthScheme  string
	refreshCookieName string
}

func NewService(cfg Config, token TokenManager, userRepo repository.UserRepo) (*AuthService, error) {
	hasher := cfg.Hasher
	if hasher == nil {
		hasher = BcryptHasher{}
	}

	setDefaultString := func(field *string, def string) {
		if *field == "" {
			*field = def
		}
	}
	setDefaultString(&cfg.AccessHeaderName, defaultAccessHeaderName)
	setDefaultString(&cfg.AccessAuthScheme, defaultAccessAuthScheme)
	setDefaultString(&cfg.RefreshCookieName, defaultRefreshCookieName)

	return &AuthService{
		hasher:            hasher,
		token:             token,
		userRepo:          userRepo,
		accessHeaderName:  cfg.AccessHeaderName,
		accessAuthScheme:  cfg.AccessAuthScheme,
		refreshCookieName: cfg.RefreshCookieName,
	}, nil
}

// Register creates a password-authenticatable account.
// Email, password, full name, phone and role are required.
func (s *AuthService) Register(ctx context.Context, params RegisterParams) (models.User, error) {
	var user models.User

	if err := validateRegisterParams(params); err != nil {
		return user, err
	}

	hash, err := s.hasher.Hash(params.Password)
	if err != nil {
		return user, fmt.Errorf("can't use this as password, Err: %w", err)
	}

	user, err = s.userRepo.CreateUser(ctx, repository.CreateUserParams{
		Email:          params.Email,
		HashedPassword: hash,
		FullName:       params.FullName,
		Phone:          params.Phone,
		Role:           params.Role,
		Address:        params.Address,
	})
	if err != nil {
		return user, err
	}

	return user, nil
}

// Login authenticates with email and password and issues a token pair.
// Unknown email, wrong password, federation-only accounts and blocked
// accounts all surface errors that handlers collapse into one message.
func (s *AuthService) Login(ctx context.Context, email string, password string) (models.User, models.TokenPair, error) {
	var pair models.TokenPair

	user, err := s.userRepo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrUserNotFound) {
			return user, pair, apperrors.ErrInvalidCredentials
		}
		return user, pair, err
	}

	// Blocked flag is checked after existence but before the password
	// comparison, matching the upstream single generic failure message
	if user.Blocked {
		return user, pair, apperrors.ErrAccountBlocked
	}

	if !user.HasPassword() {
		return user, pair, apperrors.ErrInvalidCredentials
	}

	if err := s.hasher.Compare(user.HashedPassword, password); err != nil {
		return user, pair, apperrors.ErrInvalidCredentials
	}

	pair, err = s.token.GeneratePair(ctx, user)
	if err != nil {
		return user, pair, fmt.Errorf("token could not be generated. Err: %w", err)
	}

	return user, pair, nil
}

// Refresh exchanges a valid refresh token for a new access token
func (s *AuthService) Refresh(ctx context.Context, refresh string) (models.IssuedToken, error) {
	return s.token.Refresh(ctx, refresh)
}

// ChangePassword re-authenticates with the old password before applying the
// new one. Wrong old password fails with apperrors.ErrInvalidCredentials so
// the caller can tell it apart from a system error.
func (s *AuthService) ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword string, newPassword string) error {
	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	if !user.HasPassword() {
		return apperrors.ErrInvalidCredentials
	}

	if err := s.hasher.Compare(user.HashedPassword, oldPassword); err != nil {
		return apperrors.ErrInvalidCredentials
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("can't use this as password, Err: %w", err)
	}

	_, err = s.userRepo.UpdateUser(ctx, userID, repository.UpdateUserParams{HashedPassword: &hash})
	if err != nil {
		return fmt.Errorf("can't update password. Err: %w", err)
	}

	return nil
}

// SetTokenPairToResponse delivers the access token via response header and
// the refresh token via http-only secure cookie
func (s *AuthService) SetTokenPairToResponse(w http.ResponseWriter, pair models.TokenPair) {
	w.Header().Set(s.accessHeaderName, s.accessAuthScheme+" "+pair.Access.Value)

	http.SetCookie(w, &http.Cookie{
		Name:     s.refreshCookieName,
		Value:    pair.Refresh.Value,
		Path:     "/",
		MaxAge:   int(time.Until(pair.Refresh.ExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}

// GetRefreshString reads the refresh token from the request cookie
func (s *AuthService) GetRefreshString(r *http.Request) (string, error) {
	cookie, err := r.Cookie(s.refreshCookieName)
	if err != nil {
		return "", apperrors.ErrRefreshTokenNotFound
	}
	return cookie.Value, nil
}

// GetUserFromRequest authenticates the request by its bearer access token
func (s *AuthService) GetUserFromRequest(ctx context.Context, r *http.Request) (models.User, error) {
	var user models.User

	header := r.Header.Get(s.accessHeaderName)
	access, found := strings.CutPrefix(header, s.accessAuthScheme+" ")
	if !found || access == "" {
		return user, apperrors.ErrTokenInvalid
	}

	userID, _, err := s.token.ParseAccess(access)
	if err != nil {
		return user, err
	}

	return s.userRepo.GetUserByID(ctx, userID)
}

func validateRegisterParams(params RegisterParams) error {
	required := []struct {
		field string
		value string
	}{
		{"email", params.Email},
		{"password", params.Password},
		{"fullName", params.FullName},
		{"phone", params.Phone},
		{"role", string(params.Role)},
	}

	for _, f := range required {
		if f.value == "" {
			return &apperrors.ValidationError{Field: f.field}
		}
	}

	if !params.Role.Valid() {
		return &apperrors.ValidationError{Field: "role"}
	}

	return nil
}
