package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/mkalinina/marketauth/internal/apperrors"
	"github.com/mkalinina/marketauth/internal/handlers/render"
	"github.com/mkalinina/marketauth/internal/logger"
	"github.com/mkalinina/marketauth/internal/models"
	"github.com/mkalinina/marketauth/internal/service/account"
)

// Avatar images above this size are rejected before hitting the upload
// service
const maxAvatarBytes = 5 << 20

type AccountService interface {
	Get(ctx context.Context, id uuid.UUID) (models.User, error)
	List(ctx context.Context) ([]models.User, error)
	ListByRole(ctx context.Context, role models.Role) ([]models.User, error)
	Search(ctx context.Context, emailFragment string) ([]models.User, error)
	Update(ctx context.Context, id uuid.UUID, params account.UpdateParams) (models.User, error)
	Block(ctx context.Context, id uuid.UUID) (models.User, error)
	Unblock(ctx context.Context, id uuid.UUID) (models.User, error)
}

type UserHandler struct {
	accounts AccountService
	logger   logger.Logger
}

func NewUsers(accounts AccountService, logger logger.Logger) *UserHandler {
	return &UserHandler{accounts: accounts, logger: logger}
}

func (h *UserHandler) list(w http.ResponseWriter, r *http.Request) {
	users, err := h.accounts.List(r.Context())
	if err != nil {
		h.logger.Error("Listing users failed", "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	render.JSON(w, newUserListResponse(users))
}

func (h *UserHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	user, err := h.accounts.Get(r.Context(), id)
	if err != nil {
		h.renderUserError(w, err)
		return
	}

	render.JSON(w, newUserResponse(user))
}

func (h *UserHandler) listByRole(w http.ResponseWriter, r *http.Request) {
	role := models.Role(r.PathValue("role"))

	users, err := h.accounts.ListByRole(r.Context(), role)
	if err != nil {
		var validationErr *apperrors.ValidationError
		if errors.As(err, &validationErr) {
			render.ServiceError(w, validationErr.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("Listing users by role failed", "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	render.JSON(w, newUserListResponse(users))
}

func (h *UserHandler) search(w http.ResponseWriter, r *http.Request) {
	fragment := r.URL.Query().Get("email")

	users, err := h.accounts.Search(r.Context(), fragment)
	if err != nil {
		h.logger.Error("User search failed", "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	render.JSON(w, newUserListResponse(users))
}

// update applies a partial profile change. Multipart requests may carry a
// raw avatar image which is uploaded to the object store before anything
// is persisted.
func (h *UserHandler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var params account.UpdateParams
	var err error

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		params, err = bindMultipartUpdate(r)
		if err != nil {
			render.ServiceError(w, "Malformed multipart request", http.StatusBadRequest)
			return
		}
	} else {
		type UpdateRequest struct {
			Email     *string `json:"email" validate:"omitempty,email"`
			FullName  *string `json:"fullName"`
			Phone     *string `json:"phone"`
			Address   *string `json:"address"`
			AvatarURL *string `json:"avatar"`
		}

		data, bindErr := render.BindAndValidate[UpdateRequest](w, r)
		if bindErr != nil {
			return
		}
		params = account.UpdateParams{
			Email:     data.Email,
			FullName:  data.FullName,
			Phone:     data.Phone,
			Address:   data.Address,
			AvatarURL: data.AvatarURL,
		}
	}

	user, err := h.accounts.Update(r.Context(), id, params)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrUploadFailed):
			h.logger.Error("Avatar upload failed", "user_id", id, "error", err)
			render.ServiceError(w, "Failed to upload avatar", http.StatusInternalServerError)
		case errors.Is(err, apperrors.ErrEmailTaken):
			render.ServiceError(w, "Email already taken", http.StatusConflict)
		default:
			h.renderUserError(w, err)
		}
		return
	}

	render.JSON(w, newUserResponse(user))
}

func (h *UserHandler) block(w http.ResponseWriter, r *http.Request) {
	h.setBlocked(w, r, true)
}

func (h *UserHandler) unblock(w http.ResponseWriter, r *http.Request) {
	h.setBlocked(w, r, false)
}

func (h *UserHandler) setBlocked(w http.ResponseWriter, r *http.Request, blocked bool) {
	type BlockResponse struct {
		Message string       `json:"message"`
		User    UserResponse `json:"user"`
	}

	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var user models.User
	var err error
	message := "User has been unblocked"
	if blocked {
		user, err = h.accounts.Block(r.Context(), id)
		message = "User has been blocked"
	} else {
		user, err = h.accounts.Unblock(r.Context(), id)
	}
	if err != nil {
		h.renderUserError(w, err)
		return
	}

	render.JSON(w, BlockResponse{Message: message, User: newUserResponse(user)})
}

func (h *UserHandler) renderUserError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		render.ServiceError(w, "User not found", http.StatusNotFound)
	default:
		h.logger.Error("User operation failed", "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
	}
}

func bindMultipartUpdate(r *http.Request) (account.UpdateParams, error) {
	var params account.UpdateParams

	if err := r.ParseMultipartForm(maxAvatarBytes); err != nil {
		return params, err
	}

	formValue := func(name string) *string {
		if values, ok := r.MultipartForm.Value[name]; ok && len(values) > 0 {
			return &values[0]
		}
		return nil
	}

	params.Email = formValue("email")
	params.FullName = formValue("fullName")
	params.Phone = formValue("phone")
	params.Address = formValue("address")
	params.AvatarURL = formValue("avatar")

	file, header, err := r.FormFile("avatar")
	switch {
	case err == nil:
		defer file.Close() // nolint:errcheck
		data, readErr := io.ReadAll(io.LimitReader(file, maxAvatarBytes))
		if readErr != nil {
			return params, readErr
		}
		params.Avatar = data
		params.AvatarFilename = header.Filename
		params.AvatarURL = nil
	case errors.Is(err, http.ErrMissingFile):
		// Plain field update without a new image
	default:
		return params, err
	}

	return params, nil
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		render.ServiceError(w, "Invalid user id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}
