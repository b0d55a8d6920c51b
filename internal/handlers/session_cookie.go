package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	iauth "github.com/gatehouse-idp/gatehouse/internal/auth"
	"github.com/gatehouse-idp/gatehouse/internal/interaction"
)

// SessionCookieName carries the signed session token.
const SessionCookieName = "gatehouse_session"

const (
	sessionCookieMaxAge  = 12 * 60 * 60
	rememberCookieMaxAge = 30 * 24 * 60 * 60
)

// cookieSessionIssuer binds interaction sign-in/sign-out decisions to the
// caller's cookie. One issuer is built per request; it must not outlive it.
type cookieSessionIssuer struct {
	c        *gin.Context
	sessions *iauth.SessionService
	idp      string
}

func newCookieSessionIssuer(c *gin.Context, sessions *iauth.SessionService, idp string) *cookieSessionIssuer {
	return &cookieSessionIssuer{c: c, sessions: sessions, idp: idp}
}

func (i *cookieSessionIssuer) SignIn(ctx context.Context, user *interaction.User, remember bool) error {
	token, _, err := i.sessions.Issue(ctx, user, i.idp, remember, iauth.SessionMetadata{
		IPAddress: i.c.ClientIP(),
		UserAgent: i.c.Request.UserAgent(),
	})
	if err != nil {
		return err
	}

	maxAge := sessionCookieMaxAge
	if remember {
		maxAge = rememberCookieMaxAge
	}
	i.c.SetSameSite(http.SameSiteLaxMode)
	i.c.SetCookie(SessionCookieName, token, maxAge, "/", "", false, true)
	return nil
}

func (i *cookieSessionIssuer) SignOut(ctx context.Context, sess *interaction.Session) error {
	if sess != nil {
		if err := i.sessions.Terminate(ctx, sess.SessionID); err != nil {
			return err
		}
	}
	i.c.SetSameSite(http.SameSiteLaxMode)
	i.c.SetCookie(SessionCookieName, "", -1, "/", "", false, true)
	return nil
}

// currentSession resolves the caller's session from the cookie. An absent,
// invalid, revoked, or expired cookie yields nil; the interaction layer
// treats that as "not signed in".
func currentSession(c *gin.Context, sessions *iauth.SessionService) *interaction.Session {
	token, err := c.Cookie(SessionCookieName)
	if err != nil || token == "" {
		return nil
	}

	sess, err := sessions.Resolve(c.Request.Context(), token)
	if err != nil {
		return nil
	}
	return sess
}
