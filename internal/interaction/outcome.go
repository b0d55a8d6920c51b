package interaction

import "strings"

// Outcome is the terminal decision of an interaction: render a view, redirect
// somewhere, or hand off to an upstream provider for sign-out. The caller
// maps each shape onto its transport (template / HTTP 3xx / challenge).
type Outcome interface {
	isOutcome()
}

// RenderForm shows the login form, optionally with a generic error message.
type RenderForm struct {
	View    *LoginView
	Message string
}

// RenderLogoutPrompt asks the user to confirm signing out.
type RenderLogoutPrompt struct {
	View *LogoutView
}

// RenderLoggedOut shows the post-logout page.
type RenderLoggedOut struct {
	View *LoggedOutView
}

// Redirect sends the user agent straight to the target URL.
type Redirect struct {
	URL string
}

// LoadingRedirect routes through an interstitial page before redirecting.
// Used for native clients, which cannot reliably intercept raw 3xx responses.
type LoadingRedirect struct {
	URL string
}

// ExternalSignOutRedirect hands the user agent to the named upstream scheme
// for remote sign-out; the provider returns to the logout flow afterwards via
// the logout id.
type ExternalSignOutRedirect struct {
	Scheme   string
	LogoutID string
}

func (RenderForm) isOutcome()              {}
func (RenderLogoutPrompt) isOutcome()      {}
func (RenderLoggedOut) isOutcome()         {}
func (Redirect) isOutcome()                {}
func (LoadingRedirect) isOutcome()         {}
func (ExternalSignOutRedirect) isOutcome() {}

// DecideRedirect picks the redirect shape for a terminal target. The decision
// is purely a function of the client-type flag, never of the URL's shape.
func DecideRedirect(nativeClient bool, target string) Outcome {
	if nativeClient {
		return LoadingRedirect{URL: target}
	}
	return Redirect{URL: target}
}

// IsLocalURL reports whether the URL is a same-origin local path. Scheme-
// relative ("//host") and backslash-escaped ("/\host") forms are rejected.
func IsLocalURL(url string) bool {
	if !strings.HasPrefix(url, "/") {
		return false
	}
	if strings.HasPrefix(url, "//") || strings.HasPrefix(url, "/\\") {
		return false
	}
	return true
}
