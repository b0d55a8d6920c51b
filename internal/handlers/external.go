package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	iauth "github.com/gatehouse-idp/gatehouse/internal/auth"
	"github.com/gatehouse-idp/gatehouse/internal/cache"
	"github.com/gatehouse-idp/gatehouse/internal/interaction"
	"github.com/gatehouse-idp/gatehouse/internal/schemes"
	"github.com/gatehouse-idp/gatehouse/pkg/crypto"
	appErrors "github.com/gatehouse-idp/gatehouse/pkg/errors"
	"github.com/gatehouse-idp/gatehouse/pkg/response"
)

const externalStateTTL = 10 * time.Minute

// ExternalHandler drives the redirect round trip to upstream identity
// providers: challenge, callback, and just-in-time account provisioning.
type ExternalHandler struct {
	registry    *schemes.Registry
	store       cache.Store
	credentials *iauth.CredentialStore
	sessions    *iauth.SessionService
}

// NewExternalHandler constructs an ExternalHandler.
func NewExternalHandler(registry *schemes.Registry, store cache.Store, credentials *iauth.CredentialStore, sessions *iauth.SessionService) *ExternalHandler {
	return &ExternalHandler{
		registry:    registry,
		store:       store,
		credentials: credentials,
		sessions:    sessions,
	}
}

type externalState struct {
	Scheme    string `json:"scheme"`
	ReturnURL string `json:"return_url"`
}

// GET /external/challenge
func (h *ExternalHandler) Challenge(c *gin.Context) {
	schemeName := strings.TrimSpace(c.Query("scheme"))
	connector, ok := h.registry.Connector(schemeName)
	if !ok {
		response.Error(c, appErrors.NewBadRequest("unknown authentication scheme"))
		return
	}

	state, err := crypto.GenerateToken(24)
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	payload, err := json.Marshal(externalState{
		Scheme:    schemeName,
		ReturnURL: c.Query("returnUrl"),
	})
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}
	if err := h.store.Set(c.Request.Context(), externalStateKey(state), payload, externalStateTTL); err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	target, err := connector.Begin(c.Request.Context(), state)
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}
	c.Redirect(http.StatusFound, target)
}

// GET /external/callback
func (h *ExternalHandler) Callback(c *gin.Context) {
	state := strings.TrimSpace(c.Query("state"))
	code := strings.TrimSpace(c.Query("code"))
	if state == "" || code == "" {
		response.Error(c, appErrors.NewBadRequest("state and code are required"))
		return
	}

	payload, ok, err := h.store.Get(c.Request.Context(), externalStateKey(state))
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}
	if !ok {
		response.Error(c, appErrors.NewBadRequest("unknown or expired state"))
		return
	}
	// The state is single use.
	_ = h.store.Delete(c.Request.Context(), externalStateKey(state))

	var stored externalState
	if err := json.Unmarshal(payload, &stored); err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	connector, ok := h.registry.Connector(stored.Scheme)
	if !ok {
		response.Error(c, appErrors.NewBadRequest("unknown authentication scheme"))
		return
	}

	identity, err := connector.Complete(c.Request.Context(), code)
	if err != nil {
		response.Error(c, appErrors.ErrUnauthorized.WithInternal(err))
		return
	}

	user, err := h.provision(c, identity)
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	issuer := newCookieSessionIssuer(c, h.sessions, stored.Scheme)
	if err := issuer.SignIn(c.Request.Context(), user, false); err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	target := stored.ReturnURL
	if !interaction.IsLocalURL(target) {
		target = "/"
	}
	c.Redirect(http.StatusFound, target)
}

// provision finds or creates the local account shadowing an upstream
// identity. External accounts carry an unguessable placeholder password.
func (h *ExternalHandler) provision(c *gin.Context, identity *schemes.Identity) (*interaction.User, error) {
	username := identity.Username
	if username == "" {
		username = identity.Scheme + ":" + identity.Subject
	}

	existing, err := h.credentials.FindByName(c.Request.Context(), username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	placeholder, err := crypto.GenerateToken(32)
	if err != nil {
		return nil, err
	}

	email := identity.Email
	if email == "" {
		email = strings.ReplaceAll(identity.Subject, "/", "_") + "@" + identity.Scheme + ".external"
	}

	return h.credentials.Register(c.Request.Context(), iauth.RegisterInput{
		Username:    username,
		Email:       email,
		Password:    placeholder,
		DisplayName: identity.DisplayName,
	})
}

func externalStateKey(state string) string {
	return "extstate:" + state
}
