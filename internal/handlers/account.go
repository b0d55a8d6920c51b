package handlers

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	iauth "github.com/gatehouse-idp/gatehouse/internal/auth"
	"github.com/gatehouse-idp/gatehouse/internal/interaction"
	"github.com/gatehouse-idp/gatehouse/internal/schemes"
	appErrors "github.com/gatehouse-idp/gatehouse/pkg/errors"
	"github.com/gatehouse-idp/gatehouse/pkg/metrics"
	"github.com/gatehouse-idp/gatehouse/pkg/response"
)

// AccountHandler serves the login and logout interaction endpoints.
type AccountHandler struct {
	views       *interaction.ViewBuilder
	router      *interaction.Router
	logout      *interaction.LogoutCoordinator
	sessions    *iauth.SessionService
	credentials *iauth.CredentialStore
	registry    *schemes.Registry
	publicURL   string
}

// NewAccountHandler constructs an AccountHandler. publicURL is the externally
// reachable base URL, used to build upstream sign-out callbacks.
func NewAccountHandler(
	views *interaction.ViewBuilder,
	router *interaction.Router,
	logout *interaction.LogoutCoordinator,
	sessions *iauth.SessionService,
	credentials *iauth.CredentialStore,
	registry *schemes.Registry,
	publicURL string,
) *AccountHandler {
	return &AccountHandler{
		views:       views,
		router:      router,
		logout:      logout,
		sessions:    sessions,
		credentials: credentials,
		registry:    registry,
		publicURL:   publicURL,
	}
}

// GET /account/login
func (h *AccountHandler) ShowLogin(c *gin.Context) {
	returnURL := c.Query("returnUrl")

	view, err := h.views.LoginView(c.Request.Context(), returnURL, "")
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	if view.IsExternalLoginOnly() {
		// Only one provider and no local form; skip straight to the challenge.
		challenge := "/external/challenge?scheme=" + url.QueryEscape(view.ExternalLoginScheme()) +
			"&returnUrl=" + url.QueryEscape(returnURL)
		c.Redirect(http.StatusFound, challenge)
		return
	}

	response.Success(c, http.StatusOK, view)
}

type loginRequest struct {
	ReturnURL     string `json:"return_url"`
	Username      string `json:"username"`
	Password      string `json:"password"`
	RememberLogin bool   `json:"remember_login"`
	Button        string `json:"button"`
}

// POST /account/login
func (h *AccountHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	issuer := newCookieSessionIssuer(c, h.sessions, schemes.LocalScheme)
	outcome, err := h.router.Login(c.Request.Context(), issuer, interaction.LoginSubmission{
		ReturnURL:     req.ReturnURL,
		Username:      req.Username,
		Password:      req.Password,
		RememberLogin: req.RememberLogin,
		Cancelled:     req.Button != "login",
	})
	if err != nil {
		if errors.Is(err, interaction.ErrUntrustedRedirect) {
			metrics.LoginAttempts.WithLabelValues("untrusted_redirect").Inc()
			response.Error(c, appErrors.ErrUntrustedRedirect.WithInternal(err))
			return
		}
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	h.recordLoginMetrics(outcome)
	h.writeOutcome(c, outcome)
}

// GET /account/logout
func (h *AccountHandler) ShowLogout(c *gin.Context) {
	logoutID := c.Query("logoutId")
	sess := currentSession(c, h.sessions)

	prompt, err := h.logout.LogoutPrompt(c.Request.Context(), sess, logoutID)
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	if !prompt.ShowLogoutPrompt {
		// Nothing to confirm; finish the logout in the same request.
		h.completeLogout(c, sess, prompt.LogoutID)
		return
	}

	response.Success(c, http.StatusOK, prompt)
}

type logoutRequest struct {
	LogoutID string `json:"logout_id"`
}

// POST /account/logout
func (h *AccountHandler) Logout(c *gin.Context) {
	var req logoutRequest
	if !bindAndValidate(c, &req) {
		return
	}

	sess := currentSession(c, h.sessions)
	h.completeLogout(c, sess, req.LogoutID)
}

// GET /account/logout/callback
// Upstream providers return here after a remote sign-out.
func (h *AccountHandler) LogoutCallback(c *gin.Context) {
	logoutID := c.Query("logoutId")
	sess := currentSession(c, h.sessions)
	h.completeLogout(c, sess, logoutID)
}

func (h *AccountHandler) completeLogout(c *gin.Context, sess *interaction.Session, logoutID string) {
	issuer := newCookieSessionIssuer(c, h.sessions, schemes.LocalScheme)
	view, err := h.logout.CompleteLogout(c.Request.Context(), issuer, sess, logoutID)
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	if view.TriggerExternalSignOut() {
		if target, ok := h.externalSignOutURL(view); ok {
			metrics.InteractionOutcomes.WithLabelValues("logout", "external_sign_out").Inc()
			c.Redirect(http.StatusFound, target)
			return
		}
	}

	metrics.InteractionOutcomes.WithLabelValues("logout", "logged_out").Inc()
	response.Success(c, http.StatusOK, view)
}

func (h *AccountHandler) externalSignOutURL(view *interaction.LoggedOutView) (string, bool) {
	connector, ok := h.registry.Connector(view.ExternalAuthenticationScheme)
	if !ok {
		return "", false
	}

	callback := h.publicURL + "/account/logout/callback?logoutId=" + url.QueryEscape(view.LogoutID)
	return connector.SignOutURL(callback)
}

type registerRequest struct {
	Username    string `json:"username" validate:"required,min=3,max=64"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8,max=128"`
	DisplayName string `json:"display_name" validate:"max=128"`
}

// POST /account/register
func (h *AccountHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.credentials.Register(c.Request.Context(), iauth.RegisterInput{
		Username:    req.Username,
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		response.Error(c, appErrors.NewBadRequest("registration failed"))
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"subject_id":   user.SubjectID,
		"username":     user.Username,
		"display_name": user.DisplayName,
	})
}

// GET /account/access-denied
func (h *AccountHandler) AccessDenied(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{
		"message": "Access denied. You do not have permission to sign in to the requested application.",
	})
}

func (h *AccountHandler) recordLoginMetrics(outcome interaction.Outcome) {
	switch v := outcome.(type) {
	case interaction.RenderForm:
		if v.Message == interaction.AccountLockedMessage {
			metrics.LoginAttempts.WithLabelValues("locked").Inc()
		} else {
			metrics.LoginAttempts.WithLabelValues("failure").Inc()
		}
		metrics.InteractionOutcomes.WithLabelValues("login", "render_form").Inc()
	case interaction.Redirect:
		metrics.LoginAttempts.WithLabelValues("success").Inc()
		metrics.InteractionOutcomes.WithLabelValues("login", "redirect").Inc()
	case interaction.LoadingRedirect:
		metrics.LoginAttempts.WithLabelValues("success").Inc()
		metrics.InteractionOutcomes.WithLabelValues("login", "loading_redirect").Inc()
	}
}

func (h *AccountHandler) writeOutcome(c *gin.Context, outcome interaction.Outcome) {
	switch v := outcome.(type) {
	case interaction.RenderForm:
		payload := gin.H{"view": v.View}
		if v.Message != "" {
			payload["message"] = v.Message
		}
		response.Success(c, http.StatusOK, payload)
	case interaction.Redirect:
		c.Redirect(http.StatusFound, v.URL)
	case interaction.LoadingRedirect:
		// Native clients poll the interstitial instead of following a raw 3xx.
		response.Success(c, http.StatusOK, gin.H{
			"redirect_url": v.URL,
			"interstitial": true,
		})
	default:
		response.Error(c, appErrors.ErrInternalServer)
	}
}
