package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mkalinina/marketauth/internal/apperrors"
	"github.com/mkalinina/marketauth/internal/models"
	"github.com/mkalinina/marketauth/internal/repository"
)

const (
	defaultAccessTokenTTL  = time.Hour
	defaultSigningMethod   = "HS256"
	defaultRefreshTokenTTL = 7 * 24 * time.Hour
)

type AccessTokenClaims struct {
	jwt.RegisteredClaims
	UserID uuid.UUID   `json:"uid"`
	Role   models.Role `json:"role"`
}

// Token manager config with sensible defaults
type Config struct {
	// Secret key to sign access tokens
	// Required to be set
	SecretKey string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set then default is used
	Alg string

	// Access and refresh token lifetimes
	// If not set then default is used
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type Manager struct {
	// Secret key to sign access tokens
	key string

	// JWT MAC algorithm
	alg jwt.SigningMethod

	// Access and refresh token lifetimes
	accessTTL  time.Duration
	refreshTTL time.Duration

	refreshRepo repository.RefreshTokenRepo
	userRepo    repository.UserRepo
}

func New(cfg Config, refreshRepo repository.RefreshTokenRepo, userRepo repository.UserRepo) (*Manager, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.AccessTTL, defaultAccessTokenTTL)
	setDefaultDuration(&cfg.RefreshTTL, defaultRefreshTokenTTL)

	return &Manager{
		key:         cfg.SecretKey,
		alg:         jwt.GetSigningMethod(cfg.Alg),
		accessTTL:   cfg.AccessTTL,
		refreshTTL:  cfg.RefreshTTL,
		refreshRepo: refreshRepo,
		userRepo:    userRepo,
	}, nil
}

// GeneratePair issues a signed access token and a stored opaque refresh token
func (m *Manager) GeneratePair(ctx context.Context, user models.User) (models.TokenPair, error) {
	var pair models.TokenPair
	now := time.Now().Truncate(time.Second)
	refreshExpiresAt := now.Add(m.refreshTTL)

	access, err := m.issueAccess(user, now)
	if err != nil {
		return pair, err
	}

	// Generate random refresh token 16 bytes length
	b := make([]byte, 16)
	_, err = rand.Read(b)
	if err != nil {
		return pair, fmt.Errorf("error while generate refresh token. Err: %w", err)
	}
	refresh := hex.EncodeToString(b)

	_, err = m.refreshRepo.Save(ctx, models.RefreshToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		Token:     refresh,
		CreatedAt: now,
		ExpiresAt: refreshExpiresAt,
	})
	if err != nil {
		return pair, fmt.Errorf("error while saving refresh token. Err: %w", err)
	}

	return models.TokenPair{
		Access:  access,
		Refresh: models.IssuedToken{Value: refresh, ExpiresAt: refreshExpiresAt},
	}, nil
}

// Refresh verifies the refresh token and mints a new access token for the
// same account. The refresh token itself is not rotated.
func (m *Manager) Refresh(ctx context.Context, refresh string) (models.IssuedToken, error) {
	var access models.IssuedToken

	stored, err := m.refreshRepo.Get(ctx, refresh)
	if err != nil {
		if errors.Is(err, apperrors.ErrRefreshTokenNotFound) {
			return access, fmt.Errorf("refresh failed: %w", apperrors.ErrTokenInvalid)
		}
		return access, fmt.Errorf("error while getting refresh token. Err: %w", err)
	}

	if stored.ExpiresAt.Before(time.Now()) {
		return access, fmt.Errorf("refresh failed: %w", apperrors.ErrRefreshTokenExpired)
	}

	user, err := m.userRepo.GetUserByID(ctx, stored.UserID)
	if err != nil {
		return access, fmt.Errorf("error while getting refresh token owner. Err: %w", err)
	}

	return m.issueAccess(user, time.Now().Truncate(time.Second))
}

// ParseAccess validates an access token and returns its claims.
// Expired tokens fail with apperrors.ErrTokenExpired, everything else
// (bad signature, malformed, wrong alg) with apperrors.ErrTokenInvalid,
// so callers can decide between re-login and refresh.
func (m *Manager) ParseAccess(access string) (userID uuid.UUID, role models.Role, err error) {
	claims := &AccessTokenClaims{}

	_, err = jwt.ParseWithClaims(
		access,
		claims,
		func(t *jwt.Token) (any, error) {
			return []byte(m.key), nil
		},
		jwt.WithValidMethods([]string{m.alg.Alg()}),
	)
	switch {
	case err == nil:
		return claims.UserID, claims.Role, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return uuid.Nil, "", fmt.Errorf("%w: %w", apperrors.ErrTokenExpired, err)
	default:
		return uuid.Nil, "", fmt.Errorf("%w: %w", apperrors.ErrTokenInvalid, err)
	}
}

func (m *Manager) issueAccess(user models.User, now time.Time) (models.IssuedToken, error) {
	expiresAt := now.Add(m.accessTTL)

	accessToken := jwt.NewWithClaims(
		m.alg,
		AccessTokenClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        uuid.NewString(),
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(expiresAt),
			},
			UserID: user.ID,
			Role:   user.Role,
		},
	)
	access, err := accessToken.SignedString([]byte(m.key))
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while signing access token. Err: %w", err)
	}

	return models.IssuedToken{Value: access, ExpiresAt: expiresAt}, nil
}
