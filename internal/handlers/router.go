package handlers

import (
	"net/http"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(
	auth *AuthHandler,
	users *UserHandler,
	fed *FederationHandler,
	authMiddleware func(next http.Handler) http.Handler,
	mds ...func(next http.Handler) http.Handler,
) http.Handler {
	withAuth := func(h http.HandlerFunc) http.Handler {
		return authMiddleware(h)
	}

	apiauth := http.NewServeMux()
	apiauth.HandleFunc("POST /register", auth.register)
	apiauth.HandleFunc("POST /login", auth.login)
	apiauth.HandleFunc("POST /refresh", auth.refresh)
	apiauth.Handle("POST /password", withAuth(auth.changePassword))
	apiauth.HandleFunc("GET /{provider}", fed.begin)
	apiauth.HandleFunc("GET /{provider}/callback", fed.callback)

	apiusers := http.NewServeMux()
	apiusers.HandleFunc("GET /{$}", users.list)
	apiusers.HandleFunc("GET /search", users.search)
	apiusers.HandleFunc("GET /role/{role}", users.listByRole)
	apiusers.HandleFunc("GET /{id}", users.get)
	apiusers.Handle("PUT /{id}", withAuth(users.update))
	apiusers.Handle("POST /{id}/block", withAuth(users.block))
	apiusers.Handle("POST /{id}/unblock", withAuth(users.unblock))

	root := http.NewServeMux()
	root.Handle("/api/auth/", http.StripPrefix("/api/auth", apiauth))
	root.Handle("/api/users/", http.StripPrefix("/api/users", apiusers))

	return chain(root, mds...)
}
