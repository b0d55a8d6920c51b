package interaction

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gatehouse-idp/gatehouse/internal/schemes"
)

// ExternalProvider is one selectable external login option.
type ExternalProvider struct {
	AuthenticationScheme string `json:"authentication_scheme"`
	DisplayName          string `json:"display_name"`
}

// LoginView is the derived, stateless description of the login screen.
type LoginView struct {
	ReturnURL          string             `json:"return_url"`
	Username           string             `json:"username"`
	RememberLogin      bool               `json:"remember_login"`
	AllowRememberLogin bool               `json:"allow_remember_login"`
	EnableLocalLogin   bool               `json:"enable_local_login"`
	ExternalProviders  []ExternalProvider `json:"external_providers"`
}

// IsExternalLoginOnly reports whether exactly one externally-forced provider
// remains and local login is disabled; callers skip the form entirely and
// challenge that provider.
func (v *LoginView) IsExternalLoginOnly() bool {
	return !v.EnableLocalLogin && len(v.ExternalProviders) == 1
}

// ExternalLoginScheme returns the single provider to challenge when
// IsExternalLoginOnly holds.
func (v *LoginView) ExternalLoginScheme() string {
	if !v.IsExternalLoginOnly() {
		return ""
	}
	return v.ExternalProviders[0].AuthenticationScheme
}

// ViewBuilder composes login-screen state from the pending authorization
// context, the scheme registry and the client registry.
type ViewBuilder struct {
	resolver Resolver
	schemes  schemes.Provider
	clients  ClientStore
	opts     Options
}

// NewViewBuilder constructs a ViewBuilder.
func NewViewBuilder(resolver Resolver, provider schemes.Provider, clients ClientStore, opts Options) (*ViewBuilder, error) {
	if resolver == nil {
		return nil, errors.New("view builder: resolver is required")
	}
	if provider == nil {
		return nil, errors.New("view builder: scheme provider is required")
	}
	if clients == nil {
		return nil, errors.New("view builder: client store is required")
	}

	return &ViewBuilder{
		resolver: resolver,
		schemes:  provider,
		clients:  clients,
		opts:     opts,
	}, nil
}

// LoginView builds the view state for the supplied return token. A
// usernameOverride preserves what the user typed on a failed re-render.
// Absence of context, client, or scheme always degrades to the full
// local+external form; nothing is surfaced to the caller as an error short of
// scheme enumeration failing outright.
func (b *ViewBuilder) LoginView(ctx context.Context, returnURL, usernameOverride string) (*LoginView, error) {
	authz, err := b.resolver.AuthorizationContext(ctx, returnURL)
	if err != nil {
		authz = nil
	}

	if authz != nil && authz.IdP != "" {
		if view, ok, err := b.directIdPView(ctx, authz, returnURL); err != nil {
			return nil, err
		} else if ok {
			applyUsernameOverride(view, usernameOverride)
			return view, nil
		}
	}

	all, err := b.schemes.AllSchemes(ctx)
	if err != nil {
		return nil, fmt.Errorf("view builder: enumerate schemes: %w", err)
	}

	providers := make([]ExternalProvider, 0, len(all))
	for _, scheme := range all {
		if !scheme.Selectable() {
			continue
		}
		providers = append(providers, ExternalProvider{
			AuthenticationScheme: scheme.Name,
			DisplayName:          scheme.DisplayName,
		})
	}

	allowLocal := true
	if authz != nil && authz.ClientID != "" {
		client, err := b.clients.FindEnabled(ctx, authz.ClientID)
		if err == nil && client != nil {
			allowLocal = client.EnableLocalLogin

			if len(client.IdentityProviderRestrictions) > 0 {
				filtered := providers[:0]
				for _, provider := range providers {
					if containsScheme(client.IdentityProviderRestrictions, provider.AuthenticationScheme) {
						filtered = append(filtered, provider)
					}
				}
				providers = filtered
			}
		}
	}

	view := &LoginView{
		ReturnURL:          returnURL,
		AllowRememberLogin: b.opts.AllowRememberLogin,
		EnableLocalLogin:   allowLocal && b.opts.AllowLocalLogin,
		ExternalProviders:  providers,
	}
	if authz != nil {
		view.Username = authz.LoginHint
	}
	applyUsernameOverride(view, usernameOverride)
	return view, nil
}

// directIdPView short-circuits the UI when the authorization request names a
// configured identity provider. Client allow-lists are intentionally not
// applied here: a direct IdP request takes precedence over allow-list
// filtering.
func (b *ViewBuilder) directIdPView(ctx context.Context, authz *AuthorizationRequest, returnURL string) (*LoginView, bool, error) {
	local := authz.IdP == schemes.LocalScheme

	if !local {
		all, err := b.schemes.AllSchemes(ctx)
		if err != nil {
			return nil, false, fmt.Errorf("view builder: enumerate schemes: %w", err)
		}
		if !schemeConfigured(all, authz.IdP) {
			// Unknown scheme: fall back to the general path.
			return nil, false, nil
		}
	}

	view := &LoginView{
		ReturnURL:        returnURL,
		Username:         authz.LoginHint,
		EnableLocalLogin: local,
	}
	if !local {
		view.ExternalProviders = []ExternalProvider{{AuthenticationScheme: authz.IdP}}
	}
	return view, true, nil
}

func schemeConfigured(all []schemes.Scheme, name string) bool {
	for _, scheme := range all {
		if scheme.Name == name {
			return true
		}
	}
	return false
}

func containsScheme(allowList []string, name string) bool {
	for _, allowed := range allowList {
		if strings.TrimSpace(allowed) == name {
			return true
		}
	}
	return false
}

func applyUsernameOverride(view *LoginView, username string) {
	if username != "" {
		view.Username = username
	}
}
