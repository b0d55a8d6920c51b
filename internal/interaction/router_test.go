package interaction

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, resolver *fakeResolver, sink *fakeEventSink, opts Options) (*Router, *fakeCredentialStore) {
	t.Helper()
	if resolver == nil {
		resolver = newFakeResolver()
	}
	if sink == nil {
		sink = &fakeEventSink{}
	}
	credentials := &fakeCredentialStore{
		users: map[string]*User{
			"alice": {SubjectID: "sub-1", Username: "alice", DisplayName: "Alice"},
		},
		password: "correct horse",
		locked:   map[string]bool{},
	}
	views := newTestViewBuilder(t, resolver, nil, nil, opts)
	router, err := NewRouter(resolver, credentials, sink, views, opts)
	require.NoError(t, err)
	return router, credentials
}

func TestLoginSuccessWithContextRedirectsToContextURI(t *testing.T) {
	resolver := newFakeResolver()
	resolver.authz["tok"] = &AuthorizationRequest{
		ClientID:    "web",
		RedirectURI: "https://client.example.com/callback",
	}
	sink := &fakeEventSink{}
	router, _ := newTestRouter(t, resolver, sink, Options{AllowLocalLogin: true})
	sessions := &fakeSessionIssuer{}

	outcome, err := router.Login(context.Background(), sessions, LoginSubmission{
		ReturnURL: "tok",
		Username:  "alice",
		Password:  "correct horse",
	})
	require.NoError(t, err)

	// The context's redirect URI wins even though the submitted token differs.
	require.Equal(t, Redirect{URL: "https://client.example.com/callback"}, outcome)
	require.Len(t, sessions.signedIn, 1)

	events := sink.recorded()
	require.Len(t, events, 1)
	require.Equal(t, EventLoginSuccess, events[0].Kind)
	require.Equal(t, "sub-1", events[0].SubjectID)
	require.Equal(t, "web", events[0].ClientID)
}

func TestLoginSuccessNativeClientUsesLoadingRedirect(t *testing.T) {
	resolver := newFakeResolver()
	resolver.authz["tok"] = &AuthorizationRequest{
		ClientID:     "mobile",
		RedirectURI:  "myapp://callback",
		NativeClient: true,
	}
	router, _ := newTestRouter(t, resolver, nil, Options{AllowLocalLogin: true})

	outcome, err := router.Login(context.Background(), &fakeSessionIssuer{}, LoginSubmission{
		ReturnURL: "tok",
		Username:  "alice",
		Password:  "correct horse",
	})
	require.NoError(t, err)
	require.Equal(t, LoadingRedirect{URL: "tok"}, outcome)
}

func TestLoginSuccessNoContextLocalReturnURL(t *testing.T) {
	router, _ := newTestRouter(t, nil, nil, Options{AllowLocalLogin: true})

	outcome, err := router.Login(context.Background(), &fakeSessionIssuer{}, LoginSubmission{
		ReturnURL: "/dashboard",
		Username:  "alice",
		Password:  "correct horse",
	})
	require.NoError(t, err)
	require.Equal(t, Redirect{URL: "/dashboard"}, outcome)
}

func TestLoginSuccessNoContextEmptyReturnURL(t *testing.T) {
	router, _ := newTestRouter(t, nil, nil, Options{AllowLocalLogin: true})

	outcome, err := router.Login(context.Background(), &fakeSessionIssuer{}, LoginSubmission{
		Username: "alice",
		Password: "correct horse",
	})
	require.NoError(t, err)
	require.Equal(t, Redirect{URL: "/"}, outcome)
}

func TestLoginSuccessNoContextForeignReturnURLFails(t *testing.T) {
	router, _ := newTestRouter(t, nil, nil, Options{AllowLocalLogin: true})

	for _, target := range []string{"https://evil.com", "//evil.com", "/\\evil.com", "evil.com"} {
		outcome, err := router.Login(context.Background(), &fakeSessionIssuer{}, LoginSubmission{
			ReturnURL: target,
			Username:  "alice",
			Password:  "correct horse",
		})
		require.ErrorIs(t, err, ErrUntrustedRedirect, "return url %q", target)
		require.Nil(t, outcome)
	}
}

func TestLoginInvalidCredentialsRerendersForm(t *testing.T) {
	resolver := newFakeResolver()
	resolver.authz["tok"] = &AuthorizationRequest{ClientID: "web"}
	sink := &fakeEventSink{}
	router, _ := newTestRouter(t, resolver, sink, Options{AllowLocalLogin: true, AllowRememberLogin: true})
	sessions := &fakeSessionIssuer{}

	outcome, err := router.Login(context.Background(), sessions, LoginSubmission{
		ReturnURL:     "tok",
		Username:      "alice",
		Password:      "wrong",
		RememberLogin: true,
	})
	require.NoError(t, err)

	form, ok := outcome.(RenderForm)
	require.True(t, ok)
	require.Equal(t, InvalidCredentialsMessage, form.Message)
	require.Equal(t, "alice", form.View.Username, "typed username is preserved on re-render")
	require.True(t, form.View.RememberLogin)
	require.Empty(t, sessions.signedIn)

	events := sink.recorded()
	require.Len(t, events, 1)
	require.Equal(t, EventLoginFailure, events[0].Kind)
	require.Equal(t, "web", events[0].ClientID)
}

func TestLoginLockedAccountGetsDistinctMessage(t *testing.T) {
	router, credentials := newTestRouter(t, nil, nil, Options{AllowLocalLogin: true})
	credentials.locked["alice"] = true

	outcome, err := router.Login(context.Background(), &fakeSessionIssuer{}, LoginSubmission{
		Username: "alice",
		Password: "correct horse",
	})
	require.NoError(t, err)

	form, ok := outcome.(RenderForm)
	require.True(t, ok)
	require.Equal(t, AccountLockedMessage, form.Message)
}

func TestLoginCancelWithContextDeniesAuthorization(t *testing.T) {
	resolver := newFakeResolver()
	resolver.authz["tok"] = &AuthorizationRequest{ClientID: "web", RedirectURI: "https://client.example.com/cb"}
	sink := &fakeEventSink{}
	router, _ := newTestRouter(t, resolver, sink, Options{AllowLocalLogin: true})

	outcome, err := router.Login(context.Background(), &fakeSessionIssuer{}, LoginSubmission{
		ReturnURL: "tok",
		Cancelled: true,
	})
	require.NoError(t, err)
	require.Equal(t, Redirect{URL: "tok"}, outcome)

	require.Equal(t, []string{"tok"}, resolver.denied)
	require.Equal(t, []string{"access denied"}, resolver.denyReasons)

	events := sink.recorded()
	require.Len(t, events, 1)
	require.Equal(t, EventAuthorizationDenied, events[0].Kind)
}

func TestLoginCancelNativeClientUsesLoadingRedirect(t *testing.T) {
	resolver := newFakeResolver()
	resolver.authz["tok"] = &AuthorizationRequest{ClientID: "mobile", NativeClient: true}
	router, _ := newTestRouter(t, resolver, nil, Options{AllowLocalLogin: true})

	outcome, err := router.Login(context.Background(), &fakeSessionIssuer{}, LoginSubmission{
		ReturnURL: "tok",
		Cancelled: true,
	})
	require.NoError(t, err)
	require.Equal(t, LoadingRedirect{URL: "tok"}, outcome)
}

func TestLoginCancelWithoutContextGoesHome(t *testing.T) {
	resolver := newFakeResolver()
	router, _ := newTestRouter(t, resolver, nil, Options{AllowLocalLogin: true})

	outcome, err := router.Login(context.Background(), &fakeSessionIssuer{}, LoginSubmission{
		ReturnURL: "unknown",
		Cancelled: true,
	})
	require.NoError(t, err)
	require.Equal(t, Redirect{URL: "/"}, outcome)
	require.Empty(t, resolver.denied)
}

func TestLoginRememberFollowsPolicy(t *testing.T) {
	router, _ := newTestRouter(t, nil, nil, Options{AllowLocalLogin: true})
	sessions := &fakeSessionIssuer{}

	_, err := router.Login(context.Background(), sessions, LoginSubmission{
		Username:      "alice",
		Password:      "correct horse",
		RememberLogin: true,
	})
	require.NoError(t, err)
	require.Equal(t, []bool{false}, sessions.remembered, "remember is dropped when policy disallows it")

	routerWithRemember, _ := newTestRouter(t, nil, nil, Options{AllowLocalLogin: true, AllowRememberLogin: true})
	sessions = &fakeSessionIssuer{}
	_, err = routerWithRemember.Login(context.Background(), sessions, LoginSubmission{
		Username:      "alice",
		Password:      "correct horse",
		RememberLogin: true,
	})
	require.NoError(t, err)
	require.Equal(t, []bool{true}, sessions.remembered)
}

func TestLoginSignInFailurePropagates(t *testing.T) {
	router, _ := newTestRouter(t, nil, nil, Options{AllowLocalLogin: true})
	sessions := &fakeSessionIssuer{signInErr: errors.New("cookie store down")}

	_, err := router.Login(context.Background(), sessions, LoginSubmission{
		Username: "alice",
		Password: "correct horse",
	})
	require.Error(t, err)
}

func TestResolvingSameTokenTwiceIsIdempotent(t *testing.T) {
	resolver := newFakeResolver()
	resolver.authz["tok"] = &AuthorizationRequest{ClientID: "web", RedirectURI: "https://client.example.com/cb"}

	first, err := resolver.AuthorizationContext(context.Background(), "tok")
	require.NoError(t, err)
	second, err := resolver.AuthorizationContext(context.Background(), "tok")
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Empty(t, resolver.denied)
}
