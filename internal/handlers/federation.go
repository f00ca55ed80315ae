package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/mkalinina/marketauth/internal/apperrors"
	"github.com/mkalinina/marketauth/internal/handlers/render"
	"github.com/mkalinina/marketauth/internal/logger"
	"github.com/mkalinina/marketauth/internal/models"
	"github.com/mkalinina/marketauth/internal/service/federation"
)

const (
	stateCookieName   = "oauthstate"
	stateCookieMaxAge = 600

	successPath = "/login/complete"
	errorPath   = "/error"
)

type FederationBroker interface {
	Begin(provider federation.Provider, role models.Role) (authURL string, nonce string, err error)
	Callback(ctx context.Context, provider federation.Provider, params federation.CallbackParams) (models.User, models.TokenPair, error)
}

// SessionWriter delivers a token pair over the same transport as direct
// login. Live tokens never ride in redirect URLs.
type SessionWriter interface {
	SetTokenPairToResponse(w http.ResponseWriter, pair models.TokenPair)
}

type FederationHandler struct {
	broker   FederationBroker
	sessions SessionWriter

	// Frontend the caller lands on after the flow finishes
	frontendBaseURL string

	logger logger.Logger
}

func NewFederation(broker FederationBroker, sessions SessionWriter, frontendBaseURL string, logger logger.Logger) *FederationHandler {
	return &FederationHandler{
		broker:          broker,
		sessions:        sessions,
		frontendBaseURL: frontendBaseURL,
		logger:          logger,
	}
}

// begin redirects the caller to the provider's authorization endpoint and
// pins the state nonce in a short-lived cookie
func (h *FederationHandler) begin(w http.ResponseWriter, r *http.Request) {
	provider, err := federation.ParseProvider(r.PathValue("provider"))
	if err != nil {
		render.ServiceError(w, "Unknown provider", http.StatusNotFound)
		return
	}

	role := models.Role(r.URL.Query().Get("role"))
	if role == "" {
		role = models.RoleCustomer
	}

	authURL, nonce, err := h.broker.Begin(provider, role)
	if err != nil {
		var validationErr *apperrors.ValidationError
		if errors.As(err, &validationErr) {
			render.ServiceError(w, validationErr.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("Federation begin failed", "provider", provider, "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    nonce,
		Path:     "/",
		MaxAge:   stateCookieMaxAge,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, authURL, http.StatusFound)
}

// callback finishes the flow and always leaves the caller on a terminal
// page: the post-login destination or the error destination
func (h *FederationHandler) callback(w http.ResponseWriter, r *http.Request) {
	provider, err := federation.ParseProvider(r.PathValue("provider"))
	if err != nil {
		render.ServiceError(w, "Unknown provider", http.StatusNotFound)
		return
	}

	var nonce string
	if cookie, cookieErr := r.Cookie(stateCookieName); cookieErr == nil {
		nonce = cookie.Value
	}

	query := r.URL.Query()
	_, pair, err := h.broker.Callback(r.Context(), provider, federation.CallbackParams{
		Code:             query.Get("code"),
		State:            query.Get("state"),
		Nonce:            nonce,
		ErrorCode:        query.Get("error"),
		ErrorDescription: query.Get("error_description"),
	})

	// The state cookie is single use
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})

	if err != nil {
		message := "Authentication failed"
		var federationErr *apperrors.FederationError
		if errors.As(err, &federationErr) {
			message = federationErr.Message
		} else {
			h.logger.Error("Federation callback failed", "provider", provider, "error", err)
		}

		h.redirectError(w, r, message)
		return
	}

	h.sessions.SetTokenPairToResponse(w, pair)
	http.Redirect(w, r, h.frontendBaseURL+successPath, http.StatusFound)
}

func (h *FederationHandler) redirectError(w http.ResponseWriter, r *http.Request, message string) {
	http.Redirect(w, r, h.frontendBaseURL+errorPath+"?message="+url.QueryEscape(message), http.StatusFound)
}
