package federation

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mkalinina/marketauth/internal/apperrors"
	"github.com/mkalinina/marketauth/internal/models"
)

// The oauth state parameter is a signed short-lived token. The random jti is
// pinned in a browser cookie before the redirect and must match on callback
// (CSRF), while the intended role for new accounts rides in the signed
// claims so it cannot be tampered with in transit.
type stateClaims struct {
	jwt.RegisteredClaims
	Role models.Role `json:"role"`
}

type stateSigner struct {
	key      string
	alg      jwt.SigningMethod
	stateTTL time.Duration
}

// Issue returns the signed state and its random nonce for the CSRF cookie
func (s stateSigner) Issue(role models.Role) (state string, nonce string, err error) {
	now := time.Now().Truncate(time.Second)
	nonce = uuid.NewString()

	token := jwt.NewWithClaims(
		s.alg,
		stateClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        nonce,
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(s.stateTTL)),
			},
			Role: role,
		},
	)
	state, err = token.SignedString([]byte(s.key))
	if err != nil {
		return "", "", fmt.Errorf("error while signing state token. Err: %w", err)
	}

	return state, nonce, nil
}

// Verify checks signature, expiry and the nonce pinned before redirect
func (s stateSigner) Verify(state string, nonce string) (models.Role, error) {
	claims := &stateClaims{}

	_, err := jwt.ParseWithClaims(
		state,
		claims,
		func(t *jwt.Token) (any, error) {
			return []byte(s.key), nil
		},
		jwt.WithValidMethods([]string{s.alg.Alg()}),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", fmt.Errorf("%w: state expired", apperrors.ErrFederationFailed)
	default:
		return "", fmt.Errorf("%w: bad state token", apperrors.ErrFederationFailed)
	}

	if nonce == "" || claims.ID != nonce {
		return "", fmt.Errorf("%w: state nonce mismatch", apperrors.ErrFederationFailed)
	}

	return claims.Role, nil
}
