// Package interaction decides what the login and logout screens should show
// and where a user should be redirected, given a pending authorization or
// logout request, the registered relying-party clients, the configured
// external identity-provider schemes, and the current local session.
package interaction

import (
	"context"
	"errors"
)

// Sentinel errors returned by credential verification and redirect validation.
var (
	ErrInvalidCredentials = errors.New("interaction: invalid credentials")
	ErrAccountLocked      = errors.New("interaction: account locked")

	// ErrUntrustedRedirect marks a non-local, non-empty return URL with no
	// backing authorization context. It must abort the response, never be
	// followed.
	ErrUntrustedRedirect = errors.New("interaction: untrusted return url")
)

// User-visible failure messages. Deliberately generic so a caller can never
// learn whether the username existed.
const (
	InvalidCredentialsMessage = "Invalid username or password"
	AccountLockedMessage      = "Your account is temporarily locked, try again later"
)

// Options is the process-wide, immutable interaction policy. It is built once
// from configuration and passed explicitly into each constructor.
type Options struct {
	AllowLocalLogin               bool
	AllowRememberLogin            bool
	ShowLogoutPrompt              bool
	AutomaticRedirectAfterSignOut bool
}

// User is a principal returned by a credential store.
type User struct {
	SubjectID   string
	Username    string
	DisplayName string
}

// Session is the authenticated local session as seen by this package.
type Session struct {
	SessionID        string
	SubjectID        string
	DisplayName      string
	IdentityProvider string
}

// Authenticated reports whether the session belongs to a signed-in user.
func (s *Session) Authenticated() bool {
	return s != nil && s.SubjectID != ""
}

// AuthorizationRequest is an immutable snapshot of a pending authorization
// request, resolved from an opaque return token.
type AuthorizationRequest struct {
	ClientID     string
	IdP          string
	LoginHint    string
	RedirectURI  string
	NativeClient bool
}

// LogoutRequest is a snapshot of a pending logout, resolved from a logout id.
type LogoutRequest struct {
	LogoutID              string
	ClientID              string
	ClientName            string
	PostLogoutRedirectURI string
	SignOutIframeURL      string
	// PromptRequired is false when the logout arrived through a validated
	// channel and the confirmation prompt can safely be skipped.
	PromptRequired bool
}

// Client is the relying-party descriptor this package needs.
type Client struct {
	ClientID    string
	DisplayName string
	// EnableLocalLogin controls whether username/password login is offered.
	EnableLocalLogin bool
	// IdentityProviderRestrictions is the allow-list of external scheme
	// names. Empty means no restriction.
	IdentityProviderRestrictions []string
}

// Resolver resolves opaque interaction tokens. A missing or expired token is
// a normal outcome and yields (nil, nil), never an error: absence signals "no
// active interaction". Tokens are handles only and must not be parsed for
// content. Repeated resolution of the same token is idempotent.
type Resolver interface {
	AuthorizationContext(ctx context.Context, returnURL string) (*AuthorizationRequest, error)
	// DenyAuthorization records an access-denied result against the pending
	// authorization request so the client receives an OIDC error response.
	DenyAuthorization(ctx context.Context, returnURL, reason string) error
	LogoutContext(ctx context.Context, logoutID string) (*LogoutRequest, error)
	// CreateLogoutContext synthesizes a logout request capturing the current
	// session's metadata before it is torn down, returning the new logout id.
	CreateLogoutContext(ctx context.Context, sess *Session) (string, error)
}

// ClientStore resolves enabled relying-party clients. Unknown or disabled
// clients yield (nil, nil); callers degrade to default behaviour.
type ClientStore interface {
	FindEnabled(ctx context.Context, clientID string) (*Client, error)
}

// CredentialStore verifies local credentials. Verification failures are
// reported via ErrInvalidCredentials and ErrAccountLocked.
type CredentialStore interface {
	Verify(ctx context.Context, username, password string) (*User, error)
	FindByName(ctx context.Context, username string) (*User, error)
}

// SessionIssuer binds the interaction outcome to the caller's transport
// session (typically a cookie). SignOut on an already-terminated session is a
// no-op, not an error.
type SessionIssuer interface {
	SignIn(ctx context.Context, user *User, remember bool) error
	SignOut(ctx context.Context, sess *Session) error
}
