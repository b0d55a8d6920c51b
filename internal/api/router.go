package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	iauth "github.com/gatehouse-idp/gatehouse/internal/auth"
	"github.com/gatehouse-idp/gatehouse/internal/cache"
	"github.com/gatehouse-idp/gatehouse/internal/handlers"
	"github.com/gatehouse-idp/gatehouse/internal/interaction"
	"github.com/gatehouse-idp/gatehouse/internal/middleware"
	"github.com/gatehouse-idp/gatehouse/internal/schemes"
	"github.com/gatehouse-idp/gatehouse/internal/services"
)

// Dependencies carries everything the router needs. All fields are required
// except Cache and PublicURL.
type Dependencies struct {
	DB          *gorm.DB
	Sessions    *iauth.SessionService
	Credentials *iauth.CredentialStore
	Registry    *schemes.Registry
	Cache       cache.Store
	Clients     *services.ClientService
	Requests    *services.RequestService
	Audit       *services.AuditService
	Views       *interaction.ViewBuilder
	Login       *interaction.Router
	Logout      *interaction.LogoutCoordinator
	PublicURL   string
}

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	switch {
	case deps.DB == nil:
		return nil, errors.New("router: database handle must be provided")
	case deps.Sessions == nil:
		return nil, errors.New("router: session service must be provided")
	case deps.Credentials == nil:
		return nil, errors.New("router: credential store must be provided")
	case deps.Registry == nil:
		return nil, errors.New("router: scheme registry must be provided")
	case deps.Clients == nil || deps.Requests == nil || deps.Audit == nil:
		return nil, errors.New("router: services must be provided")
	case deps.Views == nil || deps.Login == nil || deps.Logout == nil:
		return nil, errors.New("router: interaction components must be provided")
	}

	r := gin.New()

	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())

	r.GET("/healthz", healthHandler(deps.DB))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	accountHandler := handlers.NewAccountHandler(
		deps.Views, deps.Login, deps.Logout,
		deps.Sessions, deps.Credentials, deps.Registry, deps.PublicURL,
	)
	account := r.Group("/account")
	{
		account.GET("/login", accountHandler.ShowLogin)
		account.POST("/login", accountHandler.Login)
		account.GET("/logout", accountHandler.ShowLogout)
		account.POST("/logout", accountHandler.Logout)
		account.GET("/logout/callback", accountHandler.LogoutCallback)
		account.POST("/register", accountHandler.Register)
		account.GET("/access-denied", accountHandler.AccessDenied)
	}

	authorizeHandler := handlers.NewAuthorizeHandler(deps.Clients, deps.Requests, deps.Sessions)
	r.GET("/authorize", authorizeHandler.Authorize)
	r.GET(handlers.AuthorizationCallbackPath, authorizeHandler.Callback)

	externalHandler := handlers.NewExternalHandler(deps.Registry, deps.Cache, deps.Credentials, deps.Sessions)
	external := r.Group("/external")
	{
		external.GET("/challenge", externalHandler.Challenge)
		external.GET("/callback", externalHandler.Callback)
	}

	auditHandler := handlers.NewAuditHandler(deps.Audit)
	r.GET("/api/audit", auditHandler.List)

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}

func healthHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
