package federation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/mkalinina/marketauth/internal/apperrors"
	"github.com/mkalinina/marketauth/internal/logger"
	"github.com/mkalinina/marketauth/internal/models"
	"github.com/mkalinina/marketauth/internal/repository"
)

const (
	defaultStateTTL      = 10 * time.Minute
	defaultSigningMethod = "HS256"

	// Single message for every non-provider failure so callers learn
	// nothing about which step broke
	genericFailure = "authentication failed"
)

// Manager to issue token pairs once an identity is resolved
type TokenManager interface {
	GeneratePair(ctx context.Context, user models.User) (models.TokenPair, error)
}

// Per-provider oauth client credentials. Endpoint and ProfileURL override
// the provider defaults, tests point them at a stub server.
type ProviderCredentials struct {
	ClientID     string
	ClientSecret string

	Endpoint   *oauth2.Endpoint
	ProfileURL string
}

type Config struct {
	// Secret key to sign oauth state tokens
	// Required to be set
	SecretKey string

	// State token lifetime, default 10 minutes
	StateTTL time.Duration

	// Base URL this service is reachable on, used to build the
	// per-provider callback redirect URI
	CallbackBaseURL string

	Google   ProviderCredentials
	Facebook ProviderCredentials
}

// Broker drives the authorization-code exchange with external identity
// providers and maps external identities onto local accounts
type Broker struct {
	signer  stateSigner
	token   TokenManager
	storage repository.Storage
	logger  logger.Logger

	specs map[Provider]providerSpec
	confs map[Provider]*oauth2.Config
}

func NewBroker(cfg Config, token TokenManager, storage repository.Storage, l logger.Logger) (*Broker, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}
	if cfg.StateTTL == 0 {
		cfg.StateTTL = defaultStateTTL
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	specs := map[Provider]providerSpec{
		ProviderGoogle:   applyOverrides(googleSpec(), cfg.Google),
		ProviderFacebook: applyOverrides(facebookSpec(), cfg.Facebook),
	}

	confs := make(map[Provider]*oauth2.Config, len(specs))
	for provider, spec := range specs {
		creds := cfg.Google
		if provider == ProviderFacebook {
			creds = cfg.Facebook
		}

		confs[provider] = &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			Endpoint:     spec.endpoint,
			RedirectURL:  fmt.Sprintf("%s/api/auth/%s/callback", cfg.CallbackBaseURL, provider),
			Scopes:       spec.scopes,
		}
	}

	return &Broker{
		signer: stateSigner{
			key:      cfg.SecretKey,
			alg:      jwt.GetSigningMethod(defaultSigningMethod),
			stateTTL: cfg.StateTTL,
		},
		token:   token,
		storage: storage,
		logger:  l,
		specs:   specs,
		confs:   confs,
	}, nil
}

func applyOverrides(spec providerSpec, creds ProviderCredentials) providerSpec {
	if creds.Endpoint != nil {
		spec.endpoint = *creds.Endpoint
	}
	if creds.ProfileURL != "" {
		spec.profileURL = creds.ProfileURL
	}
	return spec
}

// Begin starts a login attempt: returns the provider authorization URL to
// redirect the caller to and the nonce to pin in a short-lived cookie
func (b *Broker) Begin(provider Provider, role models.Role) (authURL string, nonce string, err error) {
	conf, ok := b.confs[provider]
	if !ok {
		return "", "", fmt.Errorf("%w: unknown provider %q", apperrors.ErrFederationFailed, provider)
	}

	if !role.Valid() {
		return "", "", &apperrors.ValidationError{Field: "role"}
	}

	state, nonce, err := b.signer.Issue(role)
	if err != nil {
		return "", "", err
	}

	return conf.AuthCodeURL(state), nonce, nil
}

type CallbackParams struct {
	Code  string
	State string

	// Nonce read back from the cookie set at Begin
	Nonce string

	// Provider error report, if any
	ErrorCode        string
	ErrorDescription string
}

// Callback finishes a login attempt: verifies state, exchanges the code,
// resolves the external identity to a local account (creating one on first
// login) and establishes a session.
func (b *Broker) Callback(ctx context.Context, provider Provider, params CallbackParams) (models.User, models.TokenPair, error) {
	var user models.User
	var pair models.TokenPair

	conf, ok := b.confs[provider]
	if !ok {
		return user, pair, fmt.Errorf("%w: unknown provider %q", apperrors.ErrFederationFailed, provider)
	}
	spec := b.specs[provider]

	// Provider-level error is terminal and surfaced with its own message
	if params.ErrorCode != "" {
		msg := params.ErrorDescription
		if msg == "" {
			msg = params.ErrorCode
		}
		return user, pair, &apperrors.FederationError{Message: msg}
	}

	if params.Code == "" {
		return user, pair, &apperrors.FederationError{Message: genericFailure}
	}

	role, err := b.signer.Verify(params.State, params.Nonce)
	if err != nil {
		b.logger.Warn("Federation state rejected", "provider", provider, "error", err)
		return user, pair, &apperrors.FederationError{Message: genericFailure}
	}

	tok, err := conf.Exchange(ctx, params.Code)
	if err != nil {
		b.logger.Warn("Federation code exchange failed", "provider", provider, "error", err)
		return user, pair, &apperrors.FederationError{Message: genericFailure}
	}

	profile, err := fetchProfile(ctx, conf, tok, spec)
	if err != nil {
		b.logger.Warn("Federation profile fetch failed", "provider", provider, "error", err)
		return user, pair, &apperrors.FederationError{Message: genericFailure}
	}

	if profile.ExternalID == "" || profile.Email == "" {
		b.logger.Warn("Federation profile incomplete", "provider", provider, "external_id", profile.ExternalID)
		return user, pair, &apperrors.FederationError{Message: genericFailure}
	}

	user, err = b.resolveAccount(ctx, provider, profile, role)
	if err != nil {
		return user, pair, err
	}

	if user.Blocked {
		b.logger.Warn("Federated login for blocked account", "user_id", user.ID)
		return user, pair, &apperrors.FederationError{Message: genericFailure}
	}

	pair, err = b.token.GeneratePair(ctx, user)
	if err != nil {
		return user, pair, fmt.Errorf("token could not be generated. Err: %w", err)
	}

	return user, pair, nil
}

// resolveAccount looks up the federation link and creates account plus link
// on first login. Two near-simultaneous first logins race on the unique
// constraints; the loser treats the violation as "link exists, re-fetch".
func (b *Broker) resolveAccount(ctx context.Context, provider Provider, profile ExternalProfile, role models.Role) (models.User, error) {
	user, err := b.storage.User().GetUserByFederation(ctx, string(provider), profile.ExternalID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, apperrors.ErrUserNotFound) {
		return user, fmt.Errorf("can't resolve federated account. Err: %w", err)
	}

	err = b.storage.InTx(ctx, func(s repository.Storage) error {
		created, err := s.User().CreateUser(ctx, repository.CreateUserParams{
			Email:     profile.Email,
			FullName:  profile.FullName,
			Role:      role,
			AvatarURL: profile.AvatarURL,
		})
		if err != nil {
			return err
		}

		_, err = s.Federation().CreateLink(ctx, models.FederationLink{
			Provider:   string(provider),
			ExternalID: profile.ExternalID,
			UserID:     created.ID,
		})
		if err != nil {
			return err
		}

		user = created
		return nil
	})

	switch {
	case err == nil:
		b.logger.Info("Federated account created", "provider", provider, "user_id", user.ID)
		return user, nil
	case errors.Is(err, apperrors.ErrEmailTaken), errors.Is(err, apperrors.ErrFederationLinkTaken):
		// Lost the creation race: the link must exist now
		user, refetchErr := b.storage.User().GetUserByFederation(ctx, string(provider), profile.ExternalID)
		if refetchErr != nil {
			return user, fmt.Errorf("can't resolve federated account after race. Err: %w", err)
		}
		return user, nil
	default:
		return user, fmt.Errorf("can't create federated account. Err: %w", err)
	}
}
