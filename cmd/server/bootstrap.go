package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/gatehouse-idp/gatehouse/internal/api"
	"github.com/gatehouse-idp/gatehouse/internal/app"
	"github.com/gatehouse-idp/gatehouse/internal/app/maintenance"
	iauth "github.com/gatehouse-idp/gatehouse/internal/auth"
	"github.com/gatehouse-idp/gatehouse/internal/cache"
	"github.com/gatehouse-idp/gatehouse/internal/database"
	"github.com/gatehouse-idp/gatehouse/internal/interaction"
	"github.com/gatehouse-idp/gatehouse/internal/schemes"
	"github.com/gatehouse-idp/gatehouse/internal/services"
	"github.com/gatehouse-idp/gatehouse/pkg/logger"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB      *gorm.DB
	Redis   cache.Store
	Cleaner *maintenance.Cleaner
	Router  *gin.Engine
}

// bootstrapRuntime initialises the database, caches, services and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	dbStore := cache.NewDatabaseStore(stack.DB)

	var store cache.Store = dbStore
	if cfg.Cache.Redis.Enabled {
		if stack.Redis, err = cache.NewRedisClient(cfg.Cache.Redis.RedisOptions()); err != nil {
			log.Warn("redis unavailable; falling back to database-backed cache", zap.Error(err))
		} else {
			store = stack.Redis
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTOptions())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	sessionSvc, err := iauth.NewSessionService(stack.DB, jwtSvc, cfg.Auth.SessionOptions())
	if err != nil {
		return nil, fmt.Errorf("initialise session service: %w", err)
	}

	credentialStore, err := iauth.NewCredentialStore(stack.DB, cfg.Auth.CredentialOptions())
	if err != nil {
		return nil, fmt.Errorf("initialise credential store: %w", err)
	}

	// When a directory is configured, password checks go through LDAP while
	// the local store keeps serving registration and external provisioning.
	var verifier interaction.CredentialStore = credentialStore
	if cfg.Auth.LDAP.Enabled {
		directory, ldapErr := iauth.NewDirectoryStore(cfg.Auth.LDAP.LDAPOptions())
		if ldapErr != nil {
			return nil, fmt.Errorf("initialise directory store: %w", ldapErr)
		}
		verifier = directory
		log.Info("directory authentication enabled", zap.String("host", cfg.Auth.LDAP.Host))
	}

	registry, err := buildSchemeRegistry(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	clientSvc, err := services.NewClientService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise client service: %w", err)
	}

	requestSvc, err := services.NewRequestService(stack.DB, cfg.Requests.RequestOptions(store))
	if err != nil {
		return nil, fmt.Errorf("initialise request service: %w", err)
	}

	auditSvc, err := services.NewAuditService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise audit service: %w", err)
	}

	opts := cfg.Account.InteractionOptions()

	views, err := interaction.NewViewBuilder(requestSvc, registry, clientSvc, opts)
	if err != nil {
		return nil, fmt.Errorf("initialise view builder: %w", err)
	}
	login, err := interaction.NewRouter(requestSvc, verifier, auditSvc, views, opts)
	if err != nil {
		return nil, fmt.Errorf("initialise login router: %w", err)
	}
	logout, err := interaction.NewLogoutCoordinator(requestSvc, registry, auditSvc, opts)
	if err != nil {
		return nil, fmt.Errorf("initialise logout coordinator: %w", err)
	}

	if cfg.Maintenance.Enabled {
		stack.Cleaner = maintenance.NewCleaner(sessionSvc, requestSvc, auditSvc,
			maintenance.WithCachePurger(dbStore),
			maintenance.WithAuditRetentionDays(cfg.Maintenance.AuditRetentionDays),
			maintenance.WithSessionSchedule(cfg.Maintenance.SessionSchedule),
			maintenance.WithRequestSchedule(cfg.Maintenance.RequestSchedule),
			maintenance.WithAuditSchedule(cfg.Maintenance.AuditSchedule),
		)
		if err := stack.Cleaner.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
	}

	stack.Router, err = api.NewRouter(api.Dependencies{
		DB:          stack.DB,
		Sessions:    sessionSvc,
		Credentials: credentialStore,
		Registry:    registry,
		Cache:       store,
		Clients:     clientSvc,
		Requests:    requestSvc,
		Audit:       auditSvc,
		Views:       views,
		Login:       login,
		Logout:      logout,
		PublicURL:   strings.TrimRight(cfg.Server.PublicURL, "/"),
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// buildSchemeRegistry registers every configured upstream scheme. OIDC
// schemes go through issuer discovery, which needs outbound network access.
func buildSchemeRegistry(ctx context.Context, cfg *app.Config, log *zap.Logger) (*schemes.Registry, error) {
	registry := schemes.NewRegistry()

	for _, sc := range cfg.Schemes {
		switch strings.ToLower(strings.TrimSpace(sc.Type)) {
		case "", "oidc":
			connector, err := schemes.NewOIDCScheme(ctx, schemes.OIDCOptions{
				Name:         sc.Name,
				DisplayName:  sc.DisplayName,
				Issuer:       sc.Issuer,
				ClientID:     sc.ClientID,
				ClientSecret: sc.ClientSecret,
				RedirectURL:  sc.RedirectURL,
				Scopes:       sc.Scopes,
				Timeout:      sc.Timeout,
			})
			if err != nil {
				return nil, fmt.Errorf("scheme %q: %w", sc.Name, err)
			}
			if err := registry.Register(connector.Scheme(), connector); err != nil {
				return nil, fmt.Errorf("scheme %q: %w", sc.Name, err)
			}
			log.Info("scheme registered", zap.String("scheme", sc.Name), zap.String("issuer", sc.Issuer))
		case "declared":
			if err := registry.Register(schemes.Scheme{
				Name:                  sc.Name,
				DisplayName:           sc.DisplayName,
				SupportsRemoteSignOut: sc.SupportsRemoteSignOut,
			}, nil); err != nil {
				return nil, fmt.Errorf("scheme %q: %w", sc.Name, err)
			}
			log.Info("scheme declared", zap.String("scheme", sc.Name))
		default:
			return nil, fmt.Errorf("scheme %q: unsupported type %q", sc.Name, sc.Type)
		}
	}

	return registry, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		if stopCtx != nil {
			ctx = stopCtx
		}
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if rc, ok := s.Redis.(*cache.RedisClient); ok && rc != nil {
		if err := rc.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.DatabaseOptions()

	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("database handle", zap.Error(err))
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn("database close", zap.Error(err))
	}
}
