package apperrors

import (
	"errors"
)

var (
	ErrEmailTaken   = errors.New("email already taken")
	ErrUserNotFound = errors.New("user not found")

	// Login failures that must stay indistinguishable for the caller.
	// Handlers map both to the same generic message.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountBlocked     = errors.New("account is blocked")

	ErrTokenInvalid = errors.New("token is invalid")
	ErrTokenExpired = errors.New("token is expired")

	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenExpired  = errors.New("refresh token is expired")

	ErrFederationLinkNotFound = errors.New("federated identity not found")
	ErrFederationLinkTaken    = errors.New("federated identity already linked")
	ErrFederationFailed       = errors.New("federated authentication failed")

	ErrUploadFailed = errors.New("avatar upload failed")
)

// ValidationError reports a missing or malformed input field
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return "invalid or missing field: " + e.Field
}

// FederationError carries the message shown to the caller when a federated
// login fails. Matches ErrFederationFailed in errors.Is checks.
type FederationError struct {
	Message string
}

func (e *FederationError) Error() string {
	return "federation failed: " + e.Message
}

func (e *FederationError) Unwrap() error {
	return ErrFederationFailed
}
