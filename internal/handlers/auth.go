package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/mkalinina/marketauth/internal/apperrors"
	"github.com/mkalinina/marketauth/internal/handlers/render"
	"github.com/mkalinina/marketauth/internal/handlers/userctx"
	"github.com/mkalinina/marketauth/internal/logger"
	"github.com/mkalinina/marketauth/internal/models"
	"github.com/mkalinina/marketauth/internal/service/auth"
)

// Single message for every login failure mode: unknown email, wrong
// password and blocked account must stay indistinguishable
const genericLoginFailure = "Invalid email or password"

type AuthService interface {
	Register(ctx context.Context, params auth.RegisterParams) (models.User, error)
	Login(ctx context.Context, email string, password string) (models.User, models.TokenPair, error)
	Refresh(ctx context.Context, refresh string) (models.IssuedToken, error)
	ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword string, newPassword string) error

	SetTokenPairToResponse(w http.ResponseWriter, pair models.TokenPair)
	GetRefreshString(r *http.Request) (string, error)
}

type AuthHandler struct {
	authService AuthService
	logger      logger.Logger
}

func NewAuth(authService AuthService, logger logger.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, logger: logger}
}

func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request) {
	type RegisterRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,min=8"`
		FullName string `json:"fullName" validate:"required"`
		Phone    string `json:"phone" validate:"required"`
		Role     string `json:"role" validate:"required,oneof=customer admin vendor"`
		Address  string `json:"address"`
	}

	data, err := render.BindAndValidate[RegisterRequest](w, r)
	if err != nil {
		return
	}

	user, err := h.authService.Register(r.Context(), auth.RegisterParams{
		Email:    data.Email,
		Password: data.Password,
		FullName: data.FullName,
		Phone:    data.Phone,
		Role:     models.Role(data.Role),
		Address:  data.Address,
	})
	if err != nil {
		var validationErr *apperrors.ValidationError
		switch {
		case errors.Is(err, apperrors.ErrEmailTaken):
			render.ServiceError(w, "Email already taken", http.StatusConflict)
		case errors.As(err, &validationErr):
			render.ServiceError(w, validationErr.Error(), http.StatusBadRequest)
		default:
			h.logger.Error("Registration failed", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	render.JSONWithStatus(w, newUserResponse(user), http.StatusCreated)
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	type LoginRequest struct {
		Email    string `json:"email" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	data, err := render.BindAndValidate[LoginRequest](w, r)
	if err != nil {
		return
	}

	user, pair, err := h.authService.Login(r.Context(), data.Email, data.Password)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrInvalidCredentials),
			errors.Is(err, apperrors.ErrAccountBlocked),
			errors.Is(err, apperrors.ErrUserNotFound):
			render.ServiceError(w, genericLoginFailure, http.StatusUnauthorized)
		default:
			h.logger.Error("Login failed", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	h.authService.SetTokenPairToResponse(w, pair)
	render.JSON(w, newUserResponse(user))
}

func (h *AuthHandler) refresh(w http.ResponseWriter, r *http.Request) {
	type RefreshResponse struct {
		AccessToken string `json:"accessToken"`
	}

	refresh, err := h.authService.GetRefreshString(r)
	if err != nil {
		// Fall back to the body for non-browser clients
		type RefreshRequest struct {
			RefreshToken string `json:"refreshToken"`
		}
		if data, bindErr := render.BindAndValidate[RefreshRequest](w, r); bindErr == nil {
			refresh = data.RefreshToken
		} else {
			return
		}
	}

	if refresh == "" {
		render.ServiceError(w, "Refresh token is required", http.StatusUnauthorized)
		return
	}

	access, err := h.authService.Refresh(r.Context(), refresh)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrRefreshTokenExpired):
			render.ServiceError(w, "Refresh token expired", http.StatusUnauthorized)
		case errors.Is(err, apperrors.ErrTokenInvalid):
			render.ServiceError(w, "Refresh token not found", http.StatusUnauthorized)
		default:
			h.logger.Error("Token refresh failed", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	render.JSON(w, RefreshResponse{AccessToken: access.Value})
}

// changePassword mutates the password of the authenticated account after
// re-checking the old one
func (h *AuthHandler) changePassword(w http.ResponseWriter, r *http.Request) {
	type ChangePasswordRequest struct {
		OldPassword string `json:"oldPassword" validate:"required"`
		NewPassword string `json:"newPassword" validate:"required,min=8"`
	}
	type ChangePasswordResponse struct {
		Message string `json:"message"`
	}

	user, ok := userctx.FromContext(r.Context())
	if !ok {
		render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	data, err := render.BindAndValidate[ChangePasswordRequest](w, r)
	if err != nil {
		return
	}

	err = h.authService.ChangePassword(r.Context(), user.ID, data.OldPassword, data.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrInvalidCredentials):
			render.ServiceError(w, "Old password is incorrect", http.StatusUnauthorized)
		default:
			h.logger.Error("Password change failed", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	render.JSON(w, ChangePasswordResponse{Message: "Password has been updated"})
}
