package interaction

import (
	"context"
	"errors"
	"fmt"

	"github.com/gatehouse-idp/gatehouse/internal/schemes"
)

// LogoutView controls the sign-out confirmation screen.
type LogoutView struct {
	LogoutID         string `json:"logout_id"`
	ShowLogoutPrompt bool   `json:"show_logout_prompt"`
}

// LoggedOutView is the post-logout result. It carries everything the caller
// needs to finish the flow: where to send the user, which client initiated the
// logout, the federated front-channel iframe, and whether an upstream
// provider must also be signed out.
type LoggedOutView struct {
	LogoutID                      string `json:"logout_id"`
	PostLogoutRedirectURI         string `json:"post_logout_redirect_uri"`
	ClientName                    string `json:"client_name"`
	SignOutIframeURL              string `json:"sign_out_iframe_url"`
	AutomaticRedirectAfterSignOut bool   `json:"automatic_redirect_after_sign_out"`
	ExternalAuthenticationScheme  string `json:"external_authentication_scheme"`
}

// TriggerExternalSignOut reports whether the caller must redirect to an
// upstream provider before showing the logged-out page.
func (v *LoggedOutView) TriggerExternalSignOut() bool {
	return v.ExternalAuthenticationScheme != ""
}

// LogoutCoordinator decides whether logout needs confirmation and whether an
// upstream sign-out must follow local session termination.
type LogoutCoordinator struct {
	resolver Resolver
	schemes  schemes.Provider
	events   EventSink
	opts     Options
}

// NewLogoutCoordinator constructs a LogoutCoordinator.
func NewLogoutCoordinator(resolver Resolver, provider schemes.Provider, events EventSink, opts Options) (*LogoutCoordinator, error) {
	if resolver == nil {
		return nil, errors.New("logout coordinator: resolver is required")
	}
	if provider == nil {
		return nil, errors.New("logout coordinator: scheme provider is required")
	}
	if events == nil {
		return nil, errors.New("logout coordinator: event sink is required")
	}

	return &LogoutCoordinator{
		resolver: resolver,
		schemes:  provider,
		events:   events,
		opts:     opts,
	}, nil
}

// LogoutPrompt builds the confirmation view. An unauthenticated caller never
// sees the prompt; there is nothing to confirm.
func (c *LogoutCoordinator) LogoutPrompt(ctx context.Context, sess *Session, logoutID string) (*LogoutView, error) {
	view := &LogoutView{
		LogoutID:         logoutID,
		ShowLogoutPrompt: c.opts.ShowLogoutPrompt,
	}

	if !sess.Authenticated() {
		view.ShowLogoutPrompt = false
		return view, nil
	}

	logout, err := c.resolver.LogoutContext(ctx, logoutID)
	if err == nil && logout != nil && !logout.PromptRequired {
		// The request arrived through a validated channel; confirming again
		// would be safe but pointless.
		view.ShowLogoutPrompt = false
	}
	return view, nil
}

// CompleteLogout terminates the local session and builds the logged-out view.
// The view is assembled before the session is torn down so client metadata and
// the identity-provider claim survive termination.
func (c *LogoutCoordinator) CompleteLogout(ctx context.Context, sessions SessionIssuer, sess *Session, logoutID string) (*LoggedOutView, error) {
	if sessions == nil {
		return nil, errors.New("logout coordinator: session issuer is required")
	}

	view := &LoggedOutView{
		LogoutID:                      logoutID,
		AutomaticRedirectAfterSignOut: c.opts.AutomaticRedirectAfterSignOut,
	}

	logout, err := c.resolver.LogoutContext(ctx, logoutID)
	if err == nil && logout != nil {
		view.PostLogoutRedirectURI = logout.PostLogoutRedirectURI
		view.SignOutIframeURL = logout.SignOutIframeURL
		view.ClientName = logout.ClientName
		if view.ClientName == "" {
			view.ClientName = logout.ClientID
		}
	}

	if !sess.Authenticated() {
		return view, nil
	}

	idp := sess.IdentityProvider
	external := idp != "" && idp != schemes.LocalScheme
	if external {
		supported, err := c.schemes.SupportsRemoteSignOut(ctx, idp)
		if err != nil {
			return nil, fmt.Errorf("logout coordinator: remote sign-out lookup for %q: %w", idp, err)
		}
		if supported {
			if view.LogoutID == "" {
				// Capture the session metadata now; after SignOut the claims
				// needed to finish the upstream round-trip are gone.
				id, err := c.resolver.CreateLogoutContext(ctx, sess)
				if err != nil {
					return nil, fmt.Errorf("logout coordinator: create logout context: %w", err)
				}
				view.LogoutID = id
			}
			view.ExternalAuthenticationScheme = idp
		}
	}

	if err := sessions.SignOut(ctx, sess); err != nil {
		return nil, fmt.Errorf("logout coordinator: terminate session: %w", err)
	}

	c.events.Record(ctx, Event{
		Kind:        EventLogoutSuccess,
		SubjectID:   sess.SubjectID,
		DisplayName: sess.DisplayName,
	})

	return view, nil
}
