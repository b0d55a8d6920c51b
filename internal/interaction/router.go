package interaction

import (
	"context"
	"errors"
	"fmt"
)

// LoginSubmission is the posted state of the login form.
type LoginSubmission struct {
	ReturnURL     string
	Username      string
	Password      string
	RememberLogin bool
	Cancelled     bool
}

// Router turns a login submission into a terminal Outcome.
type Router struct {
	resolver    Resolver
	credentials CredentialStore
	events      EventSink
	views       *ViewBuilder
	opts        Options
}

// NewRouter constructs a Router.
func NewRouter(resolver Resolver, credentials CredentialStore, events EventSink, views *ViewBuilder, opts Options) (*Router, error) {
	if resolver == nil {
		return nil, errors.New("router: resolver is required")
	}
	if credentials == nil {
		return nil, errors.New("router: credential store is required")
	}
	if events == nil {
		return nil, errors.New("router: event sink is required")
	}
	if views == nil {
		return nil, errors.New("router: view builder is required")
	}

	return &Router{
		resolver:    resolver,
		credentials: credentials,
		events:      events,
		views:       views,
		opts:        opts,
	}, nil
}

// Login runs the login state machine for one submission. The issuer binds any
// successful sign-in to the caller's transport session. An error return means
// a collaborator failed or the destination could not be trusted; every other
// path yields an Outcome.
func (r *Router) Login(ctx context.Context, sessions SessionIssuer, sub LoginSubmission) (Outcome, error) {
	if sessions == nil {
		return nil, errors.New("router: session issuer is required")
	}

	authz, err := r.resolver.AuthorizationContext(ctx, sub.ReturnURL)
	if err != nil {
		return nil, fmt.Errorf("router: resolve authorization context: %w", err)
	}

	if sub.Cancelled {
		return r.cancel(ctx, authz, sub)
	}

	user, err := r.credentials.Verify(ctx, sub.Username, sub.Password)
	switch {
	case err == nil:
		return r.succeed(ctx, sessions, authz, sub, user)
	case errors.Is(err, ErrAccountLocked):
		return r.fail(ctx, authz, sub, AccountLockedMessage)
	case errors.Is(err, ErrInvalidCredentials):
		return r.fail(ctx, authz, sub, InvalidCredentialsMessage)
	default:
		return nil, fmt.Errorf("router: verify credentials: %w", err)
	}
}

// cancel denies the pending authorization so the client receives a proper
// access-denied response, then sends the user back where they came from.
func (r *Router) cancel(ctx context.Context, authz *AuthorizationRequest, sub LoginSubmission) (Outcome, error) {
	if authz == nil {
		// Nothing to deny and nowhere trustworthy to return to.
		return Redirect{URL: "/"}, nil
	}

	if err := r.resolver.DenyAuthorization(ctx, sub.ReturnURL, "access denied"); err != nil {
		return nil, fmt.Errorf("router: deny authorization: %w", err)
	}

	r.events.Record(ctx, Event{
		Kind:     EventAuthorizationDenied,
		Username: sub.Username,
		ClientID: authz.ClientID,
		Reason:   "access denied",
	})

	return DecideRedirect(authz.NativeClient, sub.ReturnURL), nil
}

func (r *Router) fail(ctx context.Context, authz *AuthorizationRequest, sub LoginSubmission, message string) (Outcome, error) {
	clientID := ""
	if authz != nil {
		clientID = authz.ClientID
	}
	r.events.Record(ctx, Event{
		Kind:     EventLoginFailure,
		Username: sub.Username,
		ClientID: clientID,
		Reason:   message,
	})

	view, err := r.views.LoginView(ctx, sub.ReturnURL, sub.Username)
	if err != nil {
		return nil, err
	}
	view.RememberLogin = sub.RememberLogin

	return RenderForm{View: view, Message: message}, nil
}

func (r *Router) succeed(ctx context.Context, sessions SessionIssuer, authz *AuthorizationRequest, sub LoginSubmission, user *User) (Outcome, error) {
	remember := sub.RememberLogin && r.opts.AllowRememberLogin
	if err := sessions.SignIn(ctx, user, remember); err != nil {
		return nil, fmt.Errorf("router: establish session: %w", err)
	}

	clientID := ""
	if authz != nil {
		clientID = authz.ClientID
	}
	r.events.Record(ctx, Event{
		Kind:        EventLoginSuccess,
		SubjectID:   user.SubjectID,
		Username:    user.Username,
		DisplayName: user.DisplayName,
		ClientID:    clientID,
	})

	if authz != nil {
		if authz.NativeClient {
			return LoadingRedirect{URL: sub.ReturnURL}, nil
		}
		// The context's own redirect URI wins over the submitted return URL;
		// a tampered form field must never steer the redirect.
		return Redirect{URL: authz.RedirectURI}, nil
	}

	switch {
	case sub.ReturnURL == "":
		return Redirect{URL: "/"}, nil
	case IsLocalURL(sub.ReturnURL):
		return Redirect{URL: sub.ReturnURL}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUntrustedRedirect, sub.ReturnURL)
	}
}
