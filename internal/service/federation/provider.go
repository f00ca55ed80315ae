package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/mkalinina/marketauth/internal/apperrors"
)

// Provider is an enumerated federated identity provider
type Provider string

const (
	ProviderGoogle   Provider = "google"
	ProviderFacebook Provider = "facebook"
)

func ParseProvider(s string) (Provider, error) {
	switch Provider(s) {
	case ProviderGoogle, ProviderFacebook:
		return Provider(s), nil
	}
	return "", fmt.Errorf("%w: unknown provider %q", apperrors.ErrFederationFailed, s)
}

// ExternalProfile is the provider-agnostic identity shape mapped from the
// provider's profile endpoint
type ExternalProfile struct {
	ExternalID string
	Email      string
	FullName   string
	AvatarURL  string
}

// providerSpec holds the per-variant capability set: authorization endpoint,
// requested scopes, profile endpoint and profile mapper
type providerSpec struct {
	endpoint   oauth2.Endpoint
	scopes     []string
	profileURL string
	mapProfile func(data []byte) (ExternalProfile, error)
}

func googleSpec() providerSpec {
	return providerSpec{
		endpoint:   endpoints.Google,
		scopes:     []string{"openid", "email", "profile"},
		profileURL: "https://www.googleapis.com/oauth2/v3/userinfo",
		mapProfile: mapGoogleProfile,
	}
}

func facebookSpec() providerSpec {
	return providerSpec{
		endpoint:   endpoints.Facebook,
		scopes:     []string{"email", "public_profile"},
		profileURL: "https://graph.facebook.com/me?fields=id,name,email,picture.type(large)",
		mapProfile: mapFacebookProfile,
	}
}

func mapGoogleProfile(data []byte) (ExternalProfile, error) {
	var raw struct {
		Sub     string `json:"sub"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return ExternalProfile{}, fmt.Errorf("failed to decode google profile: %w", err)
	}

	return ExternalProfile{
		ExternalID: raw.Sub,
		Email:      raw.Email,
		FullName:   raw.Name,
		AvatarURL:  raw.Picture,
	}, nil
}

func mapFacebookProfile(data []byte) (ExternalProfile, error) {
	var raw struct {
		ID      string `json:"id"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture struct {
			Data struct {
				URL string `json:"url"`
			} `json:"data"`
		} `json:"picture"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return ExternalProfile{}, fmt.Errorf("failed to decode facebook profile: %w", err)
	}

	return ExternalProfile{
		ExternalID: raw.ID,
		Email:      raw.Email,
		FullName:   raw.Name,
		AvatarURL:  raw.Picture.Data.URL,
	}, nil
}

// fetchProfile loads the external identity using the exchanged oauth token
func fetchProfile(ctx context.Context, conf *oauth2.Config, tok *oauth2.Token, spec providerSpec) (ExternalProfile, error) {
	resp, err := conf.Client(ctx, tok).Get(spec.profileURL)
	if err != nil {
		return ExternalProfile{}, fmt.Errorf("failed to fetch profile: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return ExternalProfile{}, fmt.Errorf("profile endpoint returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return ExternalProfile{}, fmt.Errorf("failed to read profile: %w", err)
	}

	return spec.mapProfile(data)
}
