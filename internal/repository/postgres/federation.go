package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mkalinina/marketauth/internal/apperrors"
	"github.com/mkalinina/marketauth/internal/models"
)

type FederationRepo struct {
	DB DBTX
}

const createLink = `-- name: CreateFederationLink
INSERT INTO federated_identities (provider, external_id, user_id)
VALUES ($1, $2, $3)
RETURNING provider, external_id, user_id, created_at
`

func (r *FederationRepo) CreateLink(ctx context.Context, link models.FederationLink) (models.FederationLink, error) {
	rows, _ := r.DB.Query(ctx, createLink, link.Provider, link.ExternalID, link.UserID)
	created, err := pgx.CollectOneRow(rows, rowToLink)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return created, apperrors.ErrFederationLinkTaken
		}

		return created, fmt.Errorf("db error: %w", err)
	}

	return created, nil
}

const getLink = `-- name: GetFederationLink
SELECT provider, external_id, user_id, created_at
FROM federated_identities
WHERE provider = $1 AND external_id = $2
`

func (r *FederationRepo) GetLink(ctx context.Context, provider string, externalID string) (models.FederationLink, error) {
	rows, _ := r.DB.Query(ctx, getLink, provider, externalID)
	link, err := pgx.CollectOneRow(rows, rowToLink)

	switch {
	case err == nil:
		return link, nil
	case errors.Is(err, pgx.ErrNoRows):
		return link, apperrors.ErrFederationLinkNotFound
	default:
		return link, fmt.Errorf("db error: %w", err)
	}
}

func rowToLink(row pgx.CollectableRow) (models.FederationLink, error) {
	var l models.FederationLink
	err := row.Scan(&l.Provider, &l.ExternalID, &l.UserID, &l.CreatedAt)
	return l, err
}
