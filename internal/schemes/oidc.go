package schemes

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// OIDCOptions configures an upstream OpenID Connect scheme.
type OIDCOptions struct {
	Name         string
	DisplayName  string
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	HTTPClient *http.Client
	Timeout    time.Duration
}

// OIDCScheme is a Connector backed by upstream OIDC discovery. Remote
// sign-out is supported when the issuer advertises an end_session_endpoint.
type OIDCScheme struct {
	scheme      Scheme
	oauthConfig *oauth2.Config
	verifier    *oidc.IDTokenVerifier
	endSession  string
	timeout     time.Duration
}

// NewOIDCScheme performs discovery against the issuer and builds the scheme.
func NewOIDCScheme(ctx context.Context, opts OIDCOptions) (*OIDCScheme, error) {
	if strings.TrimSpace(opts.Name) == "" {
		return nil, errors.New("oidc scheme: name is required")
	}
	if strings.TrimSpace(opts.Issuer) == "" {
		return nil, errors.New("oidc scheme: issuer is required")
	}
	if strings.TrimSpace(opts.ClientID) == "" {
		return nil, errors.New("oidc scheme: client id is required")
	}
	if strings.TrimSpace(opts.RedirectURL) == "" {
		return nil, errors.New("oidc scheme: redirect url is required")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	if opts.HTTPClient != nil {
		ctx = oidc.ClientContext(ctx, opts.HTTPClient)
	}

	discoveryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	provider, err := oidc.NewProvider(discoveryCtx, strings.TrimSpace(opts.Issuer))
	if err != nil {
		return nil, fmt.Errorf("oidc scheme %s: discovery: %w", opts.Name, err)
	}

	var extra struct {
		EndSessionEndpoint string `json:"end_session_endpoint"`
	}
	// Absence of the claim simply means no remote sign-out.
	_ = provider.Claims(&extra)

	scopes := opts.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	return &OIDCScheme{
		scheme: Scheme{
			Name:                  strings.TrimSpace(opts.Name),
			DisplayName:           strings.TrimSpace(opts.DisplayName),
			SupportsRemoteSignOut: extra.EndSessionEndpoint != "",
		},
		oauthConfig: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  opts.RedirectURL,
			Scopes:       scopes,
		},
		verifier:   provider.Verifier(&oidc.Config{ClientID: opts.ClientID}),
		endSession: extra.EndSessionEndpoint,
		timeout:    timeout,
	}, nil
}

// Scheme returns the registry entry for this connector.
func (s *OIDCScheme) Scheme() Scheme {
	return s.scheme
}

// Begin returns the upstream authorization URL for the supplied state.
func (s *OIDCScheme) Begin(ctx context.Context, state string) (string, error) {
	if strings.TrimSpace(state) == "" {
		return "", errors.New("oidc scheme: state is required")
	}
	return s.oauthConfig.AuthCodeURL(state), nil
}

// Complete exchanges the authorization code and verifies the ID token.
func (s *OIDCScheme) Complete(ctx context.Context, code string) (*Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	token, err := s.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("oidc scheme %s: exchange: %w", s.scheme.Name, err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, fmt.Errorf("oidc scheme %s: token response missing id_token", s.scheme.Name)
	}

	idToken, err := s.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("oidc scheme %s: verify id token: %w", s.scheme.Name, err)
	}

	var claims struct {
		Email             string `json:"email"`
		Name              string `json:"name"`
		PreferredUsername string `json:"preferred_username"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("oidc scheme %s: decode claims: %w", s.scheme.Name, err)
	}

	username := claims.PreferredUsername
	if username == "" {
		username = claims.Email
	}

	return &Identity{
		Scheme:      s.scheme.Name,
		Subject:     idToken.Subject,
		Username:    username,
		Email:       strings.ToLower(claims.Email),
		DisplayName: claims.Name,
	}, nil
}

// SignOutURL builds the upstream end-session redirect.
func (s *OIDCScheme) SignOutURL(callbackURL string) (string, bool) {
	return buildEndSessionURL(s.endSession, callbackURL)
}

func buildEndSessionURL(endpoint, callbackURL string) (string, bool) {
	if endpoint == "" {
		return "", false
	}

	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "", false
	}

	if callbackURL != "" {
		query := parsed.Query()
		query.Set("post_logout_redirect_uri", callbackURL)
		parsed.RawQuery = query.Encode()
	}
	return parsed.String(), true
}
