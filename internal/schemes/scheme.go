// Package schemes models the configured external identity-provider schemes a
// user can be sent to instead of (or in addition to) local login.
package schemes

import "context"

// LocalScheme is the reserved name of the built-in credential store. It is
// never listed as a selectable external provider.
const LocalScheme = "local"

// Scheme describes one configured authentication scheme.
type Scheme struct {
	Name        string
	DisplayName string
	// SupportsRemoteSignOut is true when session termination can be
	// propagated to the upstream provider.
	SupportsRemoteSignOut bool
}

// Selectable reports whether the scheme should be offered on the login screen.
// Schemes without a display name exist for protocol plumbing only.
func (s Scheme) Selectable() bool {
	return s.DisplayName != ""
}

// Provider enumerates configured schemes. Any concrete source (static
// configuration, upstream discovery, a database) can implement it.
type Provider interface {
	AllSchemes(ctx context.Context) ([]Scheme, error)
	SupportsRemoteSignOut(ctx context.Context, name string) (bool, error)
}

// Identity is the normalised claim set returned by an upstream provider
// after a completed challenge.
type Identity struct {
	Scheme      string
	Subject     string
	Username    string
	Email       string
	DisplayName string
}

// Connector is the redirect-flow surface of an external scheme: where to send
// the user, how to complete the round trip, and how to sign out upstream.
type Connector interface {
	// Begin returns the upstream URL the user agent should be redirected to.
	Begin(ctx context.Context, state string) (string, error)
	// Complete exchanges the callback code for a verified identity.
	Complete(ctx context.Context, code string) (*Identity, error)
	// SignOutURL builds the upstream end-session redirect. The second return
	// is false when the scheme has no remote sign-out support.
	SignOutURL(callbackURL string) (string, bool)
}
