package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mkalinina/marketauth/internal/apperrors"
	"github.com/mkalinina/marketauth/internal/models"
	"github.com/mkalinina/marketauth/internal/repository"
)

type UserRepo struct {
	DB DBTX
}

const userColumns = `id, created_at, email, password_hash, full_name, phone, role, address, avatar_url, blocked`

const createUser = `-- name: CreateUser
INSERT INTO users (id, email, password_hash, full_name, phone, role, address, avatar_url)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, created_at, email, password_hash, full_name, phone, role, address, avatar_url, blocked
`

func (r *UserRepo) CreateUser(ctx context.Context, params repository.CreateUserParams) (models.User, error) {
	rows, _ := r.DB.Query(ctx, createUser,
		uuid.New(),
		params.Email,
		nullIfEmpty(params.HashedPassword),
		params.FullName,
		params.Phone,
		params.Role,
		params.Address,
		params.AvatarURL,
	)
	user, err := pgx.CollectOneRow(rows, rowToUser)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return user, apperrors.ErrEmailTaken
		}

		return user, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

const getUserByID = `-- name: GetUserByID
SELECT id, created_at, email, password_hash, full_name, phone, role, address, avatar_url, blocked
FROM users
WHERE id = $1
`

func (r *UserRepo) GetUserByID(ctx context.Context, id uuid.UUID) (models.User, error) {
	rows, _ := r.DB.Query(ctx, getUserByID, id)
	return collectUser(rows)
}

const getUserByEmail = `-- name: GetUserByEmail
SELECT id, created_at, email, password_hash, full_name, phone, role, address, avatar_url, blocked
FROM users
WHERE email = $1
`

func (r *UserRepo) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	rows, _ := r.DB.Query(ctx, getUserByEmail, email)
	return collectUser(rows)
}

const getUserByFederation = `-- name: GetUserByFederation
SELECT u.id, u.created_at, u.email, u.password_hash, u.full_name, u.phone, u.role, u.address, u.avatar_url, u.blocked
FROM users u
JOIN federated_identities f ON f.user_id = u.id
WHERE f.provider = $1 AND f.external_id = $2
`

func (r *UserRepo) GetUserByFederation(ctx context.Context, provider string, externalID string) (models.User, error) {
	rows, _ := r.DB.Query(ctx, getUserByFederation, provider, externalID)
	return collectUser(rows)
}

// UpdateUser updates only the fields set in params.
// The query is built dynamically but every value goes through a placeholder.
func (r *UserRepo) UpdateUser(ctx context.Context, id uuid.UUID, params repository.UpdateUserParams) (models.User, error) {
	set := make([]string, 0, 6)
	args := make([]any, 0, 7)
	args = append(args, id)

	add := func(column string, value *string) {
		if value == nil {
			return
		}
		args = append(args, *value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	add("email", params.Email)
	add("password_hash", params.HashedPassword)
	add("full_name", params.FullName)
	add("phone", params.Phone)
	add("address", params.Address)
	add("avatar_url", params.AvatarURL)

	if len(set) == 0 {
		return r.GetUserByID(ctx, id)
	}

	query := fmt.Sprintf(
		"UPDATE users SET %s WHERE id = $1 RETURNING %s",
		strings.Join(set, ", "),
		userColumns,
	)

	rows, _ := r.DB.Query(ctx, query, args...)
	user, err := pgx.CollectOneRow(rows, rowToUser)

	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, pgx.ErrNoRows):
		return user, apperrors.ErrUserNotFound
	default:
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return user, apperrors.ErrEmailTaken
		}
		return user, fmt.Errorf("db error: %w", err)
	}
}

const setBlocked = `-- name: SetBlocked
UPDATE users
SET blocked = $2
WHERE id = $1
RETURNING id, created_at, email, password_hash, full_name, phone, role, address, avatar_url, blocked
`

func (r *UserRepo) SetBlocked(ctx context.Context, id uuid.UUID, blocked bool) (models.User, error) {
	rows, _ := r.DB.Query(ctx, setBlocked, id, blocked)
	return collectUser(rows)
}

const listUsers = `-- name: ListUsers
SELECT id, created_at, email, password_hash, full_name, phone, role, address, avatar_url, blocked
FROM users
ORDER BY created_at
`

func (r *UserRepo) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, _ := r.DB.Query(ctx, listUsers)
	return collectUsers(rows)
}

const listUsersByRole = `-- name: ListUsersByRole
SELECT id, created_at, email, password_hash, full_name, phone, role, address, avatar_url, blocked
FROM users
WHERE role = $1
ORDER BY created_at
`

func (r *UserRepo) ListUsersByRole(ctx context.Context, role models.Role) ([]models.User, error) {
	rows, _ := r.DB.Query(ctx, listUsersByRole, role)
	return collectUsers(rows)
}

const searchUsersByEmail = `-- name: SearchUsersByEmail
SELECT id, created_at, email, password_hash, full_name, phone, role, address, avatar_url, blocked
FROM users
WHERE email ILIKE '%' || $1 || '%'
ORDER BY created_at
`

func (r *UserRepo) SearchUsersByEmail(ctx context.Context, fragment string) ([]models.User, error) {
	rows, _ := r.DB.Query(ctx, searchUsersByEmail, escapeLike(fragment))
	return collectUsers(rows)
}

func collectUser(rows pgx.Rows) (models.User, error) {
	user, err := pgx.CollectOneRow(rows, rowToUser)

	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, pgx.ErrNoRows):
		return user, apperrors.ErrUserNotFound
	default:
		return user, fmt.Errorf("db error: %w", err)
	}
}

func collectUsers(rows pgx.Rows) ([]models.User, error) {
	users, err := pgx.CollectRows(rows, rowToUser)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return users, nil
}

func rowToUser(row pgx.CollectableRow) (models.User, error) {
	var u models.User
	var hash *string
	err := row.Scan(&u.ID, &u.CreatedAt, &u.Email, &hash, &u.FullName, &u.Phone, &u.Role, &u.Address, &u.AvatarURL, &u.Blocked)
	if hash != nil {
		u.HashedPassword = *hash
	}
	return u, err
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// escapeLike escapes LIKE metacharacters so a fragment matches literally
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
