package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	iauth "github.com/gatehouse-idp/gatehouse/internal/auth"
	"github.com/gatehouse-idp/gatehouse/internal/cache"
	"github.com/gatehouse-idp/gatehouse/internal/database"
	"github.com/gatehouse-idp/gatehouse/internal/interaction"
	"github.com/gatehouse-idp/gatehouse/internal/services"
)

// Config represents the runtime configuration for the Gatehouse server.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Account     AccountConfig     `mapstructure:"account"`
	Requests    RequestSettings   `mapstructure:"requests"`
	Schemes     []SchemeConfig    `mapstructure:"schemes"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
	// PublicURL is the externally reachable base URL, used when building
	// callback URLs handed to upstream providers.
	PublicURL string `mapstructure:"public_url"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// CacheConfig describes cache backends.
type CacheConfig struct {
	Redis RedisCacheConfig `mapstructure:"redis"`
}

// RedisCacheConfig holds Redis connection options.
type RedisCacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Address  string        `mapstructure:"address"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TLS      bool          `mapstructure:"tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// AuthConfig captures all authentication-related settings.
type AuthConfig struct {
	JWT     JWTSettings       `mapstructure:"jwt"`
	Session SessionSettings   `mapstructure:"session"`
	Local   LocalAuthSettings `mapstructure:"local"`
	LDAP    LDAPSettings      `mapstructure:"ldap"`
}

// JWTSettings configures signed session tokens.
type JWTSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"token_ttl"`
}

// SessionSettings configures server-side session lifetimes.
type SessionSettings struct {
	TTL         time.Duration `mapstructure:"ttl"`
	RememberTTL time.Duration `mapstructure:"remember_ttl"`
}

// LocalAuthSettings defines controls for the local credential store.
type LocalAuthSettings struct {
	LockoutThreshold int           `mapstructure:"lockout_threshold"`
	LockoutDuration  time.Duration `mapstructure:"lockout_duration"`
}

// LDAPSettings configures the optional directory-backed credential store.
// When enabled it replaces the local database store for password checks.
type LDAPSettings struct {
	Enabled              bool          `mapstructure:"enabled"`
	Host                 string        `mapstructure:"host"`
	Port                 int           `mapstructure:"port"`
	UseTLS               bool          `mapstructure:"use_tls"`
	SkipVerify           bool          `mapstructure:"skip_verify"`
	BindDN               string        `mapstructure:"bind_dn"`
	BindPassword         string        `mapstructure:"bind_password"`
	BaseDN               string        `mapstructure:"base_dn"`
	UserFilter           string        `mapstructure:"user_filter"`
	UsernameAttribute    string        `mapstructure:"username_attribute"`
	EmailAttribute       string        `mapstructure:"email_attribute"`
	DisplayNameAttribute string        `mapstructure:"display_name_attribute"`
	Timeout              time.Duration `mapstructure:"timeout"`
}

// AccountConfig controls the behaviour of the login and logout screens.
type AccountConfig struct {
	AllowLocalLogin               bool `mapstructure:"allow_local_login"`
	AllowRememberLogin            bool `mapstructure:"allow_remember_login"`
	ShowLogoutPrompt              bool `mapstructure:"show_logout_prompt"`
	AutomaticRedirectAfterSignOut bool `mapstructure:"automatic_redirect_after_sign_out"`
}

// RequestSettings bounds the lifetime of pending authorization and logout
// requests.
type RequestSettings struct {
	AuthorizationTTL time.Duration `mapstructure:"authorization_ttl"`
	LogoutTTL        time.Duration `mapstructure:"logout_ttl"`
}

// SchemeConfig declares one upstream authentication scheme. Type "oidc"
// schemes go through issuer discovery at start-up; type "declared" schemes
// are registered without a connector and exist for deployments where the
// upstream hand-off happens outside this process.
type SchemeConfig struct {
	Name                  string        `mapstructure:"name"`
	Type                  string        `mapstructure:"type"`
	DisplayName           string        `mapstructure:"display_name"`
	Issuer                string        `mapstructure:"issuer"`
	ClientID              string        `mapstructure:"client_id"`
	ClientSecret          string        `mapstructure:"client_secret"`
	RedirectURL           string        `mapstructure:"redirect_url"`
	Scopes                []string      `mapstructure:"scopes"`
	SupportsRemoteSignOut bool          `mapstructure:"supports_remote_sign_out"`
	Timeout               time.Duration `mapstructure:"timeout"`
}

// MaintenanceConfig controls the background cleanup jobs.
type MaintenanceConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	SessionSchedule    string `mapstructure:"session_schedule"`
	RequestSchedule    string `mapstructure:"request_schedule"`
	AuditSchedule      string `mapstructure:"audit_schedule"`
	AuditRetentionDays int    `mapstructure:"audit_retention_days"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("GATEHOUSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.public_url", "http://localhost:8000")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/gatehouse.sqlite")

	v.SetDefault("cache.redis.enabled", false)
	v.SetDefault("cache.redis.address", "127.0.0.1:6379")
	v.SetDefault("cache.redis.username", "")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.tls", false)
	v.SetDefault("cache.redis.timeout", "5s")

	v.SetDefault("auth.jwt.issuer", "gatehouse")
	v.SetDefault("auth.jwt.token_ttl", "8h")
	v.SetDefault("auth.session.ttl", "12h")
	v.SetDefault("auth.session.remember_ttl", "720h") // 30 days
	v.SetDefault("auth.local.lockout_threshold", 5)
	v.SetDefault("auth.local.lockout_duration", "15m")

	v.SetDefault("auth.ldap.enabled", false)
	v.SetDefault("auth.ldap.port", 389)
	v.SetDefault("auth.ldap.timeout", "10s")
	v.SetDefault("auth.ldap.username_attribute", "uid")
	v.SetDefault("auth.ldap.email_attribute", "mail")
	v.SetDefault("auth.ldap.display_name_attribute", "displayName")

	v.SetDefault("account.allow_local_login", true)
	v.SetDefault("account.allow_remember_login", true)
	v.SetDefault("account.show_logout_prompt", true)
	v.SetDefault("account.automatic_redirect_after_sign_out", false)

	v.SetDefault("requests.authorization_ttl", "10m")
	v.SetDefault("requests.logout_ttl", "10m")

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.session_schedule", "@hourly")
	v.SetDefault("maintenance.request_schedule", "@hourly")
	v.SetDefault("maintenance.audit_schedule", "@daily")
	v.SetDefault("maintenance.audit_retention_days", 90)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// DatabaseOptions converts the file configuration into connection options.
func (c DatabaseConfig) DatabaseOptions() database.Config {
	cfg := database.Config{
		Driver: c.Driver,
		Path:   c.Path,
		DSN:    c.DSN,
	}

	var host DBAuthConfig
	switch strings.ToLower(c.Driver) {
	case "postgres":
		host = c.Postgres
	case "mysql":
		host = c.MySQL
	}
	cfg.Host = host.Host
	cfg.Port = host.Port
	cfg.User = host.Username
	cfg.Password = host.Password
	cfg.Name = host.Database

	return cfg
}

// RedisOptions converts the cache section into client options.
func (c RedisCacheConfig) RedisOptions() cache.RedisConfig {
	return cache.RedisConfig{
		Address:  c.Address,
		Username: c.Username,
		Password: c.Password,
		DB:       c.DB,
		TLS:      c.TLS,
		Timeout:  c.Timeout,
	}
}

// JWTOptions converts the jwt section into token service options.
func (c AuthConfig) JWTOptions() iauth.JWTConfig {
	return iauth.JWTConfig{
		Secret:   c.JWT.Secret,
		Issuer:   c.JWT.Issuer,
		TokenTTL: c.JWT.TTL,
	}
}

// SessionOptions converts the session section into session service options.
func (c AuthConfig) SessionOptions() iauth.SessionConfig {
	return iauth.SessionConfig{
		SessionTTL:  c.Session.TTL,
		RememberTTL: c.Session.RememberTTL,
	}
}

// CredentialOptions converts the local section into credential store options.
func (c AuthConfig) CredentialOptions() iauth.CredentialConfig {
	return iauth.CredentialConfig{
		MaxFailedAttempts: c.Local.LockoutThreshold,
		LockoutDuration:   c.Local.LockoutDuration,
	}
}

// LDAPOptions converts the ldap section into directory store options.
func (c LDAPSettings) LDAPOptions() iauth.LDAPConfig {
	return iauth.LDAPConfig{
		Host:                 c.Host,
		Port:                 c.Port,
		UseTLS:               c.UseTLS,
		SkipVerify:           c.SkipVerify,
		BindDN:               c.BindDN,
		BindPassword:         c.BindPassword,
		BaseDN:               c.BaseDN,
		UserFilter:           c.UserFilter,
		UsernameAttribute:    c.UsernameAttribute,
		EmailAttribute:       c.EmailAttribute,
		DisplayNameAttribute: c.DisplayNameAttribute,
		Timeout:              c.Timeout,
	}
}

// InteractionOptions converts the account section into interaction options.
func (c AccountConfig) InteractionOptions() interaction.Options {
	return interaction.Options{
		AllowLocalLogin:               c.AllowLocalLogin,
		AllowRememberLogin:            c.AllowRememberLogin,
		ShowLogoutPrompt:              c.ShowLogoutPrompt,
		AutomaticRedirectAfterSignOut: c.AutomaticRedirectAfterSignOut,
	}
}

// RequestOptions converts the requests section into request service options.
func (c RequestSettings) RequestOptions(store cache.Store) services.RequestConfig {
	return services.RequestConfig{
		AuthorizationTTL: c.AuthorizationTTL,
		LogoutTTL:        c.LogoutTTL,
		Cache:            store,
	}
}
