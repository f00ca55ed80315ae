package account

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkalinina/marketauth/internal/apperrors"
	"github.com/mkalinina/marketauth/internal/models"
	"github.com/mkalinina/marketauth/internal/repository"
	"github.com/mkalinina/marketauth/internal/repository/postgres"
	"github.com/mkalinina/marketauth/internal/testutil"
)

// Uploader stub that records the call and returns a canned URL or error
type fakeUploader struct {
	url      string
	err      error
	filename string
	data     []byte
}

func (u *fakeUploader) Upload(_ context.Context, filename string, data []byte) (string, error) {
	u.filename = filename
	u.data = data
	if u.err != nil {
		return "", u.err
	}
	return u.url, nil
}

func createTestUser(t *testing.T, tx pgx.Tx, email string) models.User {
	t.Helper()

	users := postgres.UserRepo{DB: tx}
	user, err := users.CreateUser(t.Context(), repository.CreateUserParams{
		Email:          email,
		HashedPassword: "hash",
		FullName:       "Account User",
		Phone:          "123456789",
		Role:           models.RoleCustomer,
	})
	require.NoError(t, err)
	return user
}

func Test_AccountService(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	t.Run("update profile fields", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			s := NewService(&postgres.UserRepo{DB: tx}, &fakeUploader{})
			user := createTestUser(t, tx, "update@test.com")

			name := "Renamed User"
			address := "New Address 5"
			got, err := s.Update(t.Context(), user.ID, UpdateParams{
				FullName: &name,
				Address:  &address,
			})

			require.NoError(t, err)
			assert.Equal(t, "Renamed User", got.FullName)
			assert.Equal(t, "New Address 5", got.Address)
			assert.Equal(t, user.Phone, got.Phone, "untouched fields should stay")
		})
	})

	t.Run("update with raw avatar uploads first", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			uploader := &fakeUploader{url: "https://cdn.test/uploaded.png"}
			s := NewService(&postgres.UserRepo{DB: tx}, uploader)
			user := createTestUser(t, tx, "avatar@test.com")

			got, err := s.Update(t.Context(), user.ID, UpdateParams{
				Avatar:         []byte("png bytes"),
				AvatarFilename: "me.png",
			})

			require.NoError(t, err)
			assert.Equal(t, "https://cdn.test/uploaded.png", got.AvatarURL)
			assert.Equal(t, "me.png", uploader.filename)
			assert.Equal(t, []byte("png bytes"), uploader.data)
		})
	})

	t.Run("uploaded url wins over avatar url param", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			uploader := &fakeUploader{url: "https://cdn.test/fresh.png"}
			s := NewService(&postgres.UserRepo{DB: tx}, uploader)
			user := createTestUser(t, tx, "avatarwins@test.com")

			stale := "https://cdn.test/stale.png"
			got, err := s.Update(t.Context(), user.ID, UpdateParams{
				AvatarURL: &stale,
				Avatar:    []byte("img"),
			})

			require.NoError(t, err)
			assert.Equal(t, "https://cdn.test/fresh.png", got.AvatarURL)
		})
	})

	t.Run("failed upload persists nothing", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			uploader := &fakeUploader{err: errors.New("storage down")}
			s := NewService(&postgres.UserRepo{DB: tx}, uploader)
			user := createTestUser(t, tx, "uploadfail@test.com")

			name := "Should Not Apply"
			_, err := s.Update(t.Context(), user.ID, UpdateParams{
				FullName: &name,
				Avatar:   []byte("img"),
			})

			require.ErrorIs(t, err, apperrors.ErrUploadFailed)

			got, err := s.Get(t.Context(), user.ID)
			require.NoError(t, err)
			assert.Equal(t, user.FullName, got.FullName, "nothing should change when the upload fails")
		})
	})

	t.Run("block and unblock", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			s := NewService(&postgres.UserRepo{DB: tx}, &fakeUploader{})
			user := createTestUser(t, tx, "blockme@test.com")

			got, err := s.Block(t.Context(), user.ID)
			require.NoError(t, err)
			assert.True(t, got.Blocked)

			got, err = s.Unblock(t.Context(), user.ID)
			require.NoError(t, err)
			assert.False(t, got.Blocked)
		})
	})

	t.Run("list by role rejects unknown role", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			s := NewService(&postgres.UserRepo{DB: tx}, &fakeUploader{})

			_, err := s.ListByRole(t.Context(), "superadmin")

			var vErr *apperrors.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, "role", vErr.Field)
		})
	})

	t.Run("list and search", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			s := NewService(&postgres.UserRepo{DB: tx}, &fakeUploader{})
			createTestUser(t, tx, "list-one@test.com")
			createTestUser(t, tx, "list-two@test.com")

			all, err := s.List(t.Context())
			require.NoError(t, err)
			assert.Len(t, all, 2)

			found, err := s.Search(t.Context(), "list-one")
			require.NoError(t, err)
			require.Len(t, found, 1)
			assert.Equal(t, "list-one@test.com", found[0].Email)
		})
	})
}
