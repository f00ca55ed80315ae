package models

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
	RoleVendor   Role = "vendor"
)

// Valid reports whether the role is one of the known values
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleAdmin, RoleVendor:
		return true
	}
	return false
}

type User struct {
	ID        uuid.UUID
	CreatedAt time.Time
	Email     string

	// Empty for accounts that authenticate through a federated provider only
	HashedPassword string

	FullName  string
	Phone     string
	Role      Role
	Address   string
	AvatarURL string
	Blocked   bool
}

// HasPassword reports whether the account can authenticate with a password
func (u User) HasPassword() bool {
	return u.HashedPassword != ""
}
