package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/gatehouse-idp/gatehouse/internal/auth"
	"github.com/gatehouse-idp/gatehouse/internal/services"
	"github.com/gatehouse-idp/gatehouse/pkg/crypto"
	appErrors "github.com/gatehouse-idp/gatehouse/pkg/errors"
	"github.com/gatehouse-idp/gatehouse/pkg/response"
)

// AuthorizationCallbackPath is where the login flow returns after the user
// has been authenticated or the request was denied.
const AuthorizationCallbackPath = "/connect/authorize/callback"

// AuthorizeHandler implements the authorization-endpoint glue around the
// interaction flow: it creates pending requests and finishes them once the
// interaction produced a decision. Token issuance itself lives in the token
// engine, not here.
type AuthorizeHandler struct {
	clients  *services.ClientService
	requests *services.RequestService
	sessions *iauth.SessionService
}

// NewAuthorizeHandler constructs an AuthorizeHandler.
func NewAuthorizeHandler(clients *services.ClientService, requests *services.RequestService, sessions *iauth.SessionService) *AuthorizeHandler {
	return &AuthorizeHandler{clients: clients, requests: requests, sessions: sessions}
}

// GET /authorize
func (h *AuthorizeHandler) Authorize(c *gin.Context) {
	clientID := strings.TrimSpace(c.Query("client_id"))
	redirectURI := strings.TrimSpace(c.Query("redirect_uri"))
	if clientID == "" || redirectURI == "" {
		response.Error(c, appErrors.NewBadRequest("client_id and redirect_uri are required"))
		return
	}

	client, err := h.clients.Describe(c.Request.Context(), clientID)
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}
	if client == nil {
		response.Error(c, appErrors.NewBadRequest("unknown client"))
		return
	}

	// Never redirect to a URI the client did not register.
	if !registeredRedirectURI(client.RedirectURIs, redirectURI) {
		response.Error(c, appErrors.NewBadRequest("redirect_uri is not registered for this client"))
		return
	}

	record, err := h.requests.CreateAuthorizationRequest(c.Request.Context(), services.AuthorizationRequestInput{
		ClientID:     clientID,
		IdP:          strings.TrimSpace(c.Query("idp")),
		LoginHint:    strings.TrimSpace(c.Query("login_hint")),
		RedirectURI:  redirectURI,
		NativeClient: client.NativeClient,
	})
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	returnURL := AuthorizationCallbackPath + "?request=" + url.QueryEscape(record.Token)
	c.Redirect(http.StatusFound, "/account/login?returnUrl="+url.QueryEscape(returnURL))
}

// GET /connect/authorize/callback
func (h *AuthorizeHandler) Callback(c *gin.Context) {
	record, err := h.requests.DescribeAuthorization(c.Request.Context(), c.Request.URL.String())
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}
	if record == nil {
		response.Error(c, appErrors.NewBadRequest("unknown or expired authorization request"))
		return
	}

	if record.Denied {
		c.Redirect(http.StatusFound, appendQuery(record.RedirectURI, url.Values{"error": {"access_denied"}}))
		return
	}

	sess := currentSession(c, h.sessions)
	if !sess.Authenticated() {
		returnURL := AuthorizationCallbackPath + "?request=" + url.QueryEscape(record.Token)
		c.Redirect(http.StatusFound, "/account/login?returnUrl="+url.QueryEscape(returnURL))
		return
	}

	// The opaque code is the token engine's lookup handle for this grant.
	code, err := crypto.GenerateToken(32)
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}
	c.Redirect(http.StatusFound, appendQuery(record.RedirectURI, url.Values{"code": {code}}))
}

func registeredRedirectURI(registered []string, candidate string) bool {
	for _, uri := range registered {
		if uri == candidate {
			return true
		}
	}
	return false
}

func appendQuery(target string, values url.Values) string {
	parsed, err := url.Parse(target)
	if err != nil {
		return target
	}

	query := parsed.Query()
	for key, items := range values {
		for _, item := range items {
			query.Add(key, item)
		}
	}
	parsed.RawQuery = query.Encode()
	return parsed.String()
}
