package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkalinina/marketauth/internal/handlers/middleware"
	"github.com/mkalinina/marketauth/internal/logger"
	"github.com/mkalinina/marketauth/internal/repository/postgres"
	"github.com/mkalinina/marketauth/internal/service/account"
	"github.com/mkalinina/marketauth/internal/service/auth"
	"github.com/mkalinina/marketauth/internal/service/federation"
	"github.com/mkalinina/marketauth/internal/service/token"
	"github.com/mkalinina/marketauth/internal/testutil"
)

// Uploader stub for handler tests, the real client is tested in its package
type stubUploader struct {
	url string
	err error
}

func (u stubUploader) Upload(_ context.Context, _ string, _ []byte) (string, error) {
	return u.url, u.err
}

type testEnv struct {
	srv     *httptest.Server
	storage *postgres.Storage
}

// newTestEnv wires the full router over real services and one db transaction
func newTestEnv(t *testing.T, tx pgx.Tx, uploader account.Uploader) *testEnv {
	t.Helper()

	storage := postgres.NewStorage(tx)
	log := logger.NewNoOpLogger()

	tm, err := token.New(token.Config{SecretKey: "test-secret"}, storage.Refresh(), storage.User())
	require.NoError(t, err)

	authService, err := auth.NewService(auth.Config{}, tm, storage.User())
	require.NoError(t, err)

	accountService := account.NewService(storage.User(), uploader)

	broker, err := federation.NewBroker(federation.Config{SecretKey: "test-secret"}, tm, storage, log)
	require.NoError(t, err)

	router := NewRouter(
		NewAuth(authService, log),
		NewUsers(accountService, log),
		NewFederation(broker, authService, "http://frontend.test", log),
		middleware.AuthMiddleware(authService),
	)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, storage: storage}
}

func (e *testEnv) post(t *testing.T, path string, body string, mutate ...func(*http.Request)) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, e.srv.URL+path, bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for _, m := range mutate {
		m(req)
	}

	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() }) // nolint:errcheck
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var value T
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &value), "body: %s", data)
	return value
}

func errorMessage(t *testing.T, resp *http.Response) string {
	t.Helper()

	body := decodeBody[map[string]any](t, resp)
	msg, _ := body["message"].(string)
	return msg
}

func registerBody(email string) string {
	return `{
		"email": "` + email + `",
		"password": "strongpassword",
		"fullName": "Handler User",
		"phone": "123456789",
		"role": "customer",
		"address": "Somewhere 1"
	}`
}

func refreshCookie(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()

	for _, c := range resp.Cookies() {
		if c.Name == "refreshtoken" {
			return c
		}
	}
	t.Fatal("refreshtoken cookie not set")
	return nil
}

func Test_AuthHandler_Register(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	t.Run("register ok", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			env := newTestEnv(t, tx, stubUploader{})

			resp := env.post(t, "/api/auth/register", registerBody("new@test.com"))

			require.Equal(t, http.StatusCreated, resp.StatusCode)
			body := decodeBody[map[string]any](t, resp)
			assert.Equal(t, "new@test.com", body["email"])
			assert.Equal(t, "customer", body["role"])
			assert.NotEmpty(t, body["id"])
			assert.NotContains(t, body, "password", "password must never leak")
			assert.NotContains(t, body, "hashedPassword")
		})
	})

	t.Run("register validation failures", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			env := newTestEnv(t, tx, stubUploader{})

			tests := []struct {
				name  string
				body  string
				field string
			}{
				{"bad email", `{"email": "not-an-email", "password": "strongpassword", "fullName": "U", "phone": "1", "role": "customer"}`, "email"},
				{"short password", `{"email": "a@b.com", "password": "short", "fullName": "U", "phone": "1", "role": "customer"}`, "password"},
				{"unknown role", `{"email": "a@b.com", "password": "strongpassword", "fullName": "U", "phone": "1", "role": "superadmin"}`, "role"},
				{"missing full name", `{"email": "a@b.com", "password": "strongpassword", "phone": "1", "role": "customer"}`, "fullName"},
			}

			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					resp := env.post(t, "/api/auth/register", tt.body)

					require.Equal(t, http.StatusBadRequest, resp.StatusCode)
					body := decodeBody[struct {
						Error  string            `json:"error"`
						Fields map[string]string `json:"fields"`
					}](t, resp)
					assert.Equal(t, "validation_failed", body.Error)
					assert.Contains(t, body.Fields, tt.field)
				})
			}
		})
	})

	t.Run("register malformed json", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			env := newTestEnv(t, tx, stubUploader{})

			resp := env.post(t, "/api/auth/register", `{"email": `)

			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			body := decodeBody[map[string]any](t, resp)
			assert.Equal(t, "decoding_failed", body["error"])
		})
	})

	t.Run("register duplicate email", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			env := newTestEnv(t, tx, stubUploader{})

			resp := env.post(t, "/api/auth/register", registerBody("dup@test.com"))
			require.Equal(t, http.StatusCreated, resp.StatusCode)

			resp = env.post(t, "/api/auth/register", registerBody("dup@test.com"))

			require.Equal(t, http.StatusConflict, resp.StatusCode)
			assert.Equal(t, "Email already taken", errorMessage(t, resp))
		})
	})
}

func Test_AuthHandler_Login(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	t.Run("login ok sets session transport", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			env := newTestEnv(t, tx, stubUploader{})
			env.post(t, "/api/auth/register", registerBody("login@test.com"))

			resp := env.post(t, "/api/auth/login", `{"email": "login@test.com", "password": "strongpassword"}`)

			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Contains(t, resp.Header.Get("Authorization"), "Bearer ")

			cookie := refreshCookie(t, resp)
			assert.NotEmpty(t, cookie.Value)
			assert.True(t, cookie.HttpOnly)
			assert.True(t, cookie.Secure)

			body := decodeBody[map[string]any](t, resp)
			assert.Equal(t, "login@test.com", body["email"])
		})
	})

	t.Run("login failures are indistinguishable", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			env := newTestEnv(t, tx, stubUploader{})

			// One existing account and one existing but blocked account
			env.post(t, "/api/auth/register", registerBody("victim@test.com"))
			resp := env.post(t, "/api/auth/register", registerBody("blocked@test.com"))
			blocked := decodeBody[map[string]any](t, resp)
			blockedID, _ := blocked["id"].(string)
			env.post(t, "/api/users/"+blockedID+"/block", `{}`, asUser(t, env, "victim@test.com"))

			attempts := []struct {
				name string
				body string
			}{
				{"unknown email", `{"email": "nobody@test.com", "password": "strongpassword"}`},
				{"wrong password", `{"email": "victim@test.com", "password": "not-the-password"}`},
				{"blocked account right password", `{"email": "blocked@test.com", "password": "strongpassword"}`},
			}

			var messages []string
			for _, attempt := range attempts {
				t.Run(attempt.name, func(t *testing.T) {
					resp := env.post(t, "/api/auth/login", attempt.body)

					require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
					msg := errorMessage(t, resp)
					assert.Equal(t, "Invalid email or password", msg)
					messages = append(messages, msg)
				})
			}

			// The whole point: one message for every failure mode
			for _, msg := range messages {
				assert.Equal(t, messages[0], msg)
			}
		})
	})
}

// asUser logs the account in and puts its access token on the request
func asUser(t *testing.T, env *testEnv, email string) func(*http.Request) {
	t.Helper()

	resp := env.post(t, "/api/auth/login", `{"email": "`+email+`", "password": "strongpassword"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, "login for test fixture must work")
	authHeader := resp.Header.Get("Authorization")
	require.NotEmpty(t, authHeader)

	return func(req *http.Request) {
		req.Header.Set("Authorization", authHeader)
	}
}

func Test_AuthHandler_Refresh(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	t.Run("refresh with cookie", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			env := newTestEnv(t, tx, stubUploader{})
			env.post(t, "/api/auth/register", registerBody("refresh@test.com"))
			login := env.post(t, "/api/auth/login", `{"email": "refresh@test.com", "password": "strongpassword"}`)
			cookie := refreshCookie(t, login)

			resp := env.post(t, "/api/auth/refresh", `{}`, func(req *http.Request) {
				req.AddCookie(cookie)
			})

			require.Equal(t, http.StatusOK, resp.StatusCode)
			body := decodeBody[map[string]any](t, resp)
			assert.NotEmpty(t, body["accessToken"])
		})
	})

	t.Run("refresh with body fallback", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			env := newTestEnv(t, tx, stubUploader{})
			env.post(t, "/api/auth/register", registerBody("refreshbody@test.com"))
			login := env.post(t, "/api/auth/login", `{"email": "refreshbody@test.com", "password": "strongpassword"}`)
			cookie := refreshCookie(t, login)

			resp := env.post(t, "/api/auth/refresh", `{"refreshToken": "`+cookie.Value+`"}`)

			require.Equal(t, http.StatusOK, resp.StatusCode)
			body := decodeBody[map[string]any](t, resp)
			assert.NotEmpty(t, body["accessToken"])
		})
	})

	t.Run("refresh with unknown token", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			env := newTestEnv(t, tx, stubUploader{})

			resp := env.post(t, "/api/auth/refresh", `{"refreshToken": "never-issued"}`)

			require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Equal(t, "Refresh token not found", errorMessage(t, resp))
		})
	})

	t.Run("refresh without any token", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			env := newTestEnv(t, tx, stubUploader{})

			resp := env.post(t, "/api/auth/refresh", `{}`)

			require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Equal(t, "Refresh token is required", errorMessage(t, resp))
		})
	})
}

func Test_AuthHandler_ChangePassword(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	t.Run("change password ok", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			env := newTestEnv(t, tx, stubUploader{})
			env.post(t, "/api/auth/register", registerBody("chpwd@test.com"))

			resp := env.post(t, "/api/auth/password",
				`{"oldPassword": "strongpassword", "newPassword": "evenstronger"}`,
				asUser(t, env, "chpwd@test.com"))

			require.Equal(t, http.StatusOK, resp.StatusCode)
			body := decodeBody[map[string]any](t, resp)
			assert.Equal(t, "Password has been updated", body["message"])

			// Old password is dead, new one works
			resp = env.post(t, "/api/auth/login", `{"email": "chpwd@test.com", "password": "strongpassword"}`)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			resp = env.post(t, "/api/auth/login", `{"email": "chpwd@test.com", "password": "evenstronger"}`)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
		})
	})

	t.Run("change password wrong old", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			env := newTestEnv(t, tx, stubUploader{})
			env.post(t, "/api/auth/register", registerBody("chpwdwrong@test.com"))

			resp := env.post(t, "/api/auth/password",
				`{"oldPassword": "not-the-old-one", "newPassword": "evenstronger"}`,
				asUser(t, env, "chpwdwrong@test.com"))

			require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Equal(t, "Old password is incorrect", errorMessage(t, resp))
		})
	})

	t.Run("change password requires auth", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			env := newTestEnv(t, tx, stubUploader{})

			resp := env.post(t, "/api/auth/password", `{"oldPassword": "a", "newPassword": "newpassword"}`)

			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	})
}
