package interaction

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestLogoutCoordinator(t *testing.T, resolver *fakeResolver, sink *fakeEventSink, opts Options) *LogoutCoordinator {
	t.Helper()
	if resolver == nil {
		resolver = newFakeResolver()
	}
	if sink == nil {
		sink = &fakeEventSink{}
	}
	coordinator, err := NewLogoutCoordinator(resolver, testSchemeProvider(), sink, opts)
	require.NoError(t, err)
	return coordinator
}

func TestLogoutPromptUnauthenticatedNeverPrompts(t *testing.T) {
	coordinator := newTestLogoutCoordinator(t, nil, nil, Options{ShowLogoutPrompt: true})

	view, err := coordinator.LogoutPrompt(context.Background(), nil, "some-logout-id")
	require.NoError(t, err)
	require.False(t, view.ShowLogoutPrompt)
	require.Equal(t, "some-logout-id", view.LogoutID)
}

func TestLogoutPromptAuthenticatedFollowsPolicy(t *testing.T) {
	coordinator := newTestLogoutCoordinator(t, nil, nil, Options{ShowLogoutPrompt: true})
	sess := &Session{SessionID: "s1", SubjectID: "sub-1", IdentityProvider: "local"}

	view, err := coordinator.LogoutPrompt(context.Background(), sess, "")
	require.NoError(t, err)
	require.True(t, view.ShowLogoutPrompt)
}

func TestLogoutPromptSkippedWhenContextSaysSo(t *testing.T) {
	resolver := newFakeResolver()
	resolver.logouts["lid"] = &LogoutRequest{LogoutID: "lid", PromptRequired: false}
	coordinator := newTestLogoutCoordinator(t, resolver, nil, Options{ShowLogoutPrompt: true})
	sess := &Session{SessionID: "s1", SubjectID: "sub-1", IdentityProvider: "local"}

	view, err := coordinator.LogoutPrompt(context.Background(), sess, "lid")
	require.NoError(t, err)
	require.False(t, view.ShowLogoutPrompt)
}

func TestCompleteLogoutLocalSession(t *testing.T) {
	resolver := newFakeResolver()
	resolver.logouts["lid"] = &LogoutRequest{
		LogoutID:              "lid",
		ClientID:              "web",
		ClientName:            "Web Portal",
		PostLogoutRedirectURI: "https://client.example.com/bye",
		SignOutIframeURL:      "https://idp.example.com/signout-iframe",
		PromptRequired:        true,
	}
	sink := &fakeEventSink{}
	coordinator := newTestLogoutCoordinator(t, resolver, sink, Options{AutomaticRedirectAfterSignOut: true})
	sessions := &fakeSessionIssuer{}
	sess := &Session{SessionID: "s1", SubjectID: "sub-1", DisplayName: "Alice", IdentityProvider: "local"}

	view, err := coordinator.CompleteLogout(context.Background(), sessions, sess, "lid")
	require.NoError(t, err)

	require.Equal(t, "Web Portal", view.ClientName)
	require.Equal(t, "https://client.example.com/bye", view.PostLogoutRedirectURI)
	require.Equal(t, "https://idp.example.com/signout-iframe", view.SignOutIframeURL)
	require.True(t, view.AutomaticRedirectAfterSignOut)
	require.False(t, view.TriggerExternalSignOut())

	require.Len(t, sessions.signedOut, 1)
	events := sink.recorded()
	require.Len(t, events, 1)
	require.Equal(t, EventLogoutSuccess, events[0].Kind)
	require.Equal(t, "sub-1", events[0].SubjectID)
	require.Equal(t, "Alice", events[0].DisplayName)
}

func TestCompleteLogoutClientNameFallsBackToID(t *testing.T) {
	resolver := newFakeResolver()
	resolver.logouts["lid"] = &LogoutRequest{LogoutID: "lid", ClientID: "raw-client-id"}
	coordinator := newTestLogoutCoordinator(t, resolver, nil, Options{})

	view, err := coordinator.CompleteLogout(context.Background(), &fakeSessionIssuer{}, nil, "lid")
	require.NoError(t, err)
	require.Equal(t, "raw-client-id", view.ClientName)
}

func TestCompleteLogoutExternalSessionTriggersRemoteSignOut(t *testing.T) {
	resolver := newFakeResolver()
	coordinator := newTestLogoutCoordinator(t, resolver, nil, Options{})
	sessions := &fakeSessionIssuer{}
	sess := &Session{SessionID: "s1", SubjectID: "sub-1", IdentityProvider: "google"}

	view, err := coordinator.CompleteLogout(context.Background(), sessions, sess, "")
	require.NoError(t, err)

	require.True(t, view.TriggerExternalSignOut())
	require.Equal(t, "google", view.ExternalAuthenticationScheme)
	require.NotEmpty(t, view.LogoutID, "a logout id is synthesized before the session is discarded")
	require.Equal(t, 1, resolver.createCalled)
	require.Equal(t, sess, resolver.createdFor)
	require.Len(t, sessions.signedOut, 1)
}

func TestCompleteLogoutExternalSessionKeepsSuppliedLogoutID(t *testing.T) {
	resolver := newFakeResolver()
	coordinator := newTestLogoutCoordinator(t, resolver, nil, Options{})
	sess := &Session{SessionID: "s1", SubjectID: "sub-1", IdentityProvider: "google"}

	view, err := coordinator.CompleteLogout(context.Background(), &fakeSessionIssuer{}, sess, "existing")
	require.NoError(t, err)
	require.Equal(t, "existing", view.LogoutID)
	require.Zero(t, resolver.createCalled)
}

func TestCompleteLogoutSchemeWithoutRemoteSignOut(t *testing.T) {
	coordinator := newTestLogoutCoordinator(t, nil, nil, Options{})
	sess := &Session{SessionID: "s1", SubjectID: "sub-1", IdentityProvider: "corp-ldap"}

	view, err := coordinator.CompleteLogout(context.Background(), &fakeSessionIssuer{}, sess, "")
	require.NoError(t, err)
	require.False(t, view.TriggerExternalSignOut())
}

func TestCompleteLogoutUnauthenticatedIsQuiet(t *testing.T) {
	sink := &fakeEventSink{}
	coordinator := newTestLogoutCoordinator(t, nil, sink, Options{})
	sessions := &fakeSessionIssuer{}

	view, err := coordinator.CompleteLogout(context.Background(), sessions, nil, "")
	require.NoError(t, err)
	require.False(t, view.TriggerExternalSignOut())
	require.Empty(t, sessions.signedOut)
	require.Empty(t, sink.recorded())
}
