package handlers

import (
	"time"

	"github.com/google/uuid"

	"github.com/mkalinina/marketauth/internal/models"
)

// UserResponse is the public account shape: no password hash ever leaves
// the service
type UserResponse struct {
	ID        uuid.UUID   `json:"id"`
	CreatedAt time.Time   `json:"createdAt"`
	Email     string      `json:"email"`
	FullName  string      `json:"fullName"`
	Phone     string      `json:"phone"`
	Role      models.Role `json:"role"`
	Address   string      `json:"address"`
	AvatarURL string      `json:"avatarUrl,omitempty"`
	Blocked   bool        `json:"blocked"`
}

func newUserResponse(user models.User) UserResponse {
	return UserResponse{
		ID:        user.ID,
		CreatedAt: user.CreatedAt,
		Email:     user.Email,
		FullName:  user.FullName,
		Phone:     user.Phone,
		Role:      user.Role,
		Address:   user.Address,
		AvatarURL: user.AvatarURL,
		Blocked:   user.Blocked,
	}
}

func newUserListResponse(users []models.User) []UserResponse {
	list := make([]UserResponse, 0, len(users))
	for _, user := range users {
		list = append(list, newUserResponse(user))
	}
	return list
}
