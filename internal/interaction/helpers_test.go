package interaction

import (
	"context"
	"errors"
	"sync"

	"github.com/gatehouse-idp/gatehouse/internal/schemes"
)

type fakeResolver struct {
	mu sync.Mutex

	authz   map[string]*AuthorizationRequest
	logouts map[string]*LogoutRequest

	resolveCalls  int
	denied        []string
	denyReasons   []string
	createdID     string
	createdFor    *Session
	createFails   bool
	resolveErr    error
	denyErr       error
	logoutCtxErr  error
	createCalled  int
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		authz:   map[string]*AuthorizationRequest{},
		logouts: map[string]*LogoutRequest{},
	}
}

func (f *fakeResolver) AuthorizationContext(_ context.Context, returnURL string) (*AuthorizationRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolveCalls++
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	if authz, ok := f.authz[returnURL]; ok {
		copied := *authz
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeResolver) DenyAuthorization(_ context.Context, returnURL, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.denyErr != nil {
		return f.denyErr
	}
	f.denied = append(f.denied, returnURL)
	f.denyReasons = append(f.denyReasons, reason)
	return nil
}

func (f *fakeResolver) LogoutContext(_ context.Context, logoutID string) (*LogoutRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.logoutCtxErr != nil {
		return nil, f.logoutCtxErr
	}
	if logout, ok := f.logouts[logoutID]; ok {
		copied := *logout
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeResolver) CreateLogoutContext(_ context.Context, sess *Session) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalled++
	if f.createFails {
		return "", errors.New("create failed")
	}
	f.createdFor = sess
	if f.createdID == "" {
		f.createdID = "synthesized-logout-id"
	}
	return f.createdID, nil
}

type fakeSchemeProvider struct {
	all           []schemes.Scheme
	remoteSignOut map[string]bool
	err           error
}

func (f *fakeSchemeProvider) AllSchemes(context.Context) ([]schemes.Scheme, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.all, nil
}

func (f *fakeSchemeProvider) SupportsRemoteSignOut(_ context.Context, name string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.remoteSignOut[name], nil
}

type fakeClientStore struct {
	clients map[string]*Client
	err     error
}

func (f *fakeClientStore) FindEnabled(_ context.Context, clientID string) (*Client, error) {
	if f.err != nil {
		return nil, f.err
	}
	if client, ok := f.clients[clientID]; ok {
		copied := *client
		return &copied, nil
	}
	return nil, nil
}

type fakeCredentialStore struct {
	users    map[string]*User
	password string
	locked   map[string]bool
}

func (f *fakeCredentialStore) Verify(_ context.Context, username, password string) (*User, error) {
	if f.locked[username] {
		return nil, ErrAccountLocked
	}
	user, ok := f.users[username]
	if !ok || password != f.password {
		return nil, ErrInvalidCredentials
	}
	copied := *user
	return &copied, nil
}

func (f *fakeCredentialStore) FindByName(_ context.Context, username string) (*User, error) {
	if user, ok := f.users[username]; ok {
		copied := *user
		return &copied, nil
	}
	return nil, nil
}

type fakeSessionIssuer struct {
	mu sync.Mutex

	signedIn   []*User
	remembered []bool
	signedOut  []*Session
	signInErr  error
}

func (f *fakeSessionIssuer) SignIn(_ context.Context, user *User, remember bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signInErr != nil {
		return f.signInErr
	}
	f.signedIn = append(f.signedIn, user)
	f.remembered = append(f.remembered, remember)
	return nil
}

func (f *fakeSessionIssuer) SignOut(_ context.Context, sess *Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signedOut = append(f.signedOut, sess)
	return nil
}

type fakeEventSink struct {
	mu     sync.Mutex
	events []Event
}

func (f *fakeEventSink) Record(_ context.Context, event Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeEventSink) recorded() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Event, len(f.events))
	copy(out, f.events)
	return out
}
