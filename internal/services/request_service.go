package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/gatehouse-idp/gatehouse/internal/cache"
	"github.com/gatehouse-idp/gatehouse/internal/interaction"
	"github.com/gatehouse-idp/gatehouse/internal/models"
	"github.com/gatehouse-idp/gatehouse/pkg/logger"
)

// Default request lifetimes.
const (
	DefaultAuthorizationRequestTTL = 15 * time.Minute
	DefaultLogoutRequestTTL        = 15 * time.Minute
)

// requestQueryParam names the query parameter that carries the opaque
// authorization token inside a callback-style return URL.
const requestQueryParam = "request"

// RequestConfig tunes the RequestService.
type RequestConfig struct {
	AuthorizationTTL time.Duration
	LogoutTTL        time.Duration
	Cache            cache.Store
	Clock            func() time.Time
}

// AuthorizationRequestInput is accepted by the authorization glue endpoint.
type AuthorizationRequestInput struct {
	ClientID     string
	IdP          string
	LoginHint    string
	RedirectURI  string
	NativeClient bool
}

// LogoutRequestInput is accepted by the client-initiated logout endpoint.
type LogoutRequestInput struct {
	ClientID              string
	ClientName            string
	PostLogoutRedirectURI string
	SignOutIframeURL      string
	PromptRequired        bool
	SubjectID             string
	SessionID             string
}

// RequestService persists pending authorization and logout requests and
// resolves their opaque tokens. It is the interaction layer's Resolver.
type RequestService struct {
	db       *gorm.DB
	cache    cache.Store
	authzTTL time.Duration
	logoutTTL time.Duration
	now      func() time.Time
	log      *zap.Logger
}

// NewRequestService constructs a RequestService.
func NewRequestService(db *gorm.DB, cfg RequestConfig) (*RequestService, error) {
	if db == nil {
		return nil, errors.New("request service: db is required")
	}

	authzTTL := cfg.AuthorizationTTL
	if authzTTL <= 0 {
		authzTTL = DefaultAuthorizationRequestTTL
	}
	logoutTTL := cfg.LogoutTTL
	if logoutTTL <= 0 {
		logoutTTL = DefaultLogoutRequestTTL
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &RequestService{
		db:        db,
		cache:     cfg.Cache,
		authzTTL:  authzTTL,
		logoutTTL: logoutTTL,
		now:       clock,
		log:       logger.WithModule("requests"),
	}, nil
}

// CreateAuthorizationRequest persists a new pending authorization and returns
// the stored record, including its opaque token.
func (s *RequestService) CreateAuthorizationRequest(ctx context.Context, input AuthorizationRequestInput) (*models.AuthorizationRequest, error) {
	if strings.TrimSpace(input.ClientID) == "" {
		return nil, errors.New("request service: client id is required")
	}
	if strings.TrimSpace(input.RedirectURI) == "" {
		return nil, errors.New("request service: redirect uri is required")
	}

	record := &models.AuthorizationRequest{
		ClientID:     strings.TrimSpace(input.ClientID),
		IdP:          strings.TrimSpace(input.IdP),
		LoginHint:    strings.TrimSpace(input.LoginHint),
		RedirectURI:  strings.TrimSpace(input.RedirectURI),
		NativeClient: input.NativeClient,
		ExpiresAt:    s.now().Add(s.authzTTL),
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, fmt.Errorf("request service: create authorization request: %w", err)
	}
	return record, nil
}

// AuthorizationContext resolves the pending authorization named by the return
// URL. Missing, expired, and malformed tokens all yield (nil, nil).
func (s *RequestService) AuthorizationContext(ctx context.Context, returnURL string) (*interaction.AuthorizationRequest, error) {
	token := extractRequestToken(returnURL)
	if token == "" {
		return nil, nil
	}

	if cached := s.cachedAuthorization(ctx, token); cached != nil {
		return cached, nil
	}

	var record models.AuthorizationRequest
	err := s.db.WithContext(ctx).First(&record, "token = ?", token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("request service: lookup authorization request: %w", err)
	}

	now := s.now()
	if now.After(record.ExpiresAt) {
		return nil, nil
	}

	resolved := &interaction.AuthorizationRequest{
		ClientID:     record.ClientID,
		IdP:          record.IdP,
		LoginHint:    record.LoginHint,
		RedirectURI:  record.RedirectURI,
		NativeClient: record.NativeClient,
	}
	s.cacheAuthorization(ctx, token, resolved, record.ExpiresAt.Sub(now))
	return resolved, nil
}

// DescribeAuthorization returns the full stored request for a token,
// including its denial state, or (nil, nil) when absent or expired. The
// authorization callback endpoint needs this to emit the OIDC error response.
func (s *RequestService) DescribeAuthorization(ctx context.Context, returnURL string) (*models.AuthorizationRequest, error) {
	token := extractRequestToken(returnURL)
	if token == "" {
		return nil, nil
	}

	var record models.AuthorizationRequest
	err := s.db.WithContext(ctx).First(&record, "token = ?", token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("request service: lookup authorization request: %w", err)
	}
	if s.now().After(record.ExpiresAt) {
		return nil, nil
	}
	return &record, nil
}

// DenyAuthorization records an access-denied result against the pending
// request. Denying an unknown token is a no-op.
func (s *RequestService) DenyAuthorization(ctx context.Context, returnURL, reason string) error {
	token := extractRequestToken(returnURL)
	if token == "" {
		return nil
	}

	err := s.db.WithContext(ctx).
		Model(&models.AuthorizationRequest{}).
		Where("token = ?", token).
		Updates(map[string]any{"denied": true, "deny_reason": reason}).Error
	if err != nil {
		return fmt.Errorf("request service: deny authorization: %w", err)
	}
	return nil
}

// CreateLogoutRequest persists a client-initiated logout request.
func (s *RequestService) CreateLogoutRequest(ctx context.Context, input LogoutRequestInput) (*models.LogoutRequest, error) {
	record := &models.LogoutRequest{
		ClientID:              strings.TrimSpace(input.ClientID),
		ClientName:            strings.TrimSpace(input.ClientName),
		PostLogoutRedirectURI: strings.TrimSpace(input.PostLogoutRedirectURI),
		SignOutIframeURL:      strings.TrimSpace(input.SignOutIframeURL),
		PromptRequired:        input.PromptRequired,
		SubjectID:             input.SubjectID,
		SessionID:             input.SessionID,
		ExpiresAt:             s.now().Add(s.logoutTTL),
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, fmt.Errorf("request service: create logout request: %w", err)
	}
	return record, nil
}

// LogoutContext resolves a pending logout by id. Missing and expired ids
// yield (nil, nil).
func (s *RequestService) LogoutContext(ctx context.Context, logoutID string) (*interaction.LogoutRequest, error) {
	logoutID = strings.TrimSpace(logoutID)
	if logoutID == "" {
		return nil, nil
	}

	var record models.LogoutRequest
	err := s.db.WithContext(ctx).First(&record, "id = ?", logoutID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("request service: lookup logout request: %w", err)
	}

	if s.now().After(record.ExpiresAt) {
		return nil, nil
	}

	return &interaction.LogoutRequest{
		LogoutID:              record.ID,
		ClientID:              record.ClientID,
		ClientName:            record.ClientName,
		PostLogoutRedirectURI: record.PostLogoutRedirectURI,
		SignOutIframeURL:      record.SignOutIframeURL,
		PromptRequired:        record.PromptRequired,
	}, nil
}

// CreateLogoutContext synthesizes a logout request capturing the session's
// metadata before the session is torn down, returning the new logout id.
func (s *RequestService) CreateLogoutContext(ctx context.Context, sess *interaction.Session) (string, error) {
	record := &models.LogoutRequest{
		PromptRequired: false,
		ExpiresAt:      s.now().Add(s.logoutTTL),
	}
	if sess != nil {
		record.SubjectID = sess.SubjectID
		record.SessionID = sess.SessionID
	}

	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return "", fmt.Errorf("request service: create logout context: %w", err)
	}
	return record.ID, nil
}

// CleanupExpired removes expired authorization and logout requests, returning
// the total count removed.
func (s *RequestService) CleanupExpired(ctx context.Context) (int64, error) {
	now := s.now()

	authz := s.db.WithContext(ctx).
		Where("expires_at < ?", now).
		Delete(&models.AuthorizationRequest{})
	if authz.Error != nil {
		return 0, fmt.Errorf("request service: cleanup authorization requests: %w", authz.Error)
	}

	logout := s.db.WithContext(ctx).
		Where("expires_at < ?", now).
		Delete(&models.LogoutRequest{})
	if logout.Error != nil {
		return authz.RowsAffected, fmt.Errorf("request service: cleanup logout requests: %w", logout.Error)
	}

	return authz.RowsAffected + logout.RowsAffected, nil
}

func (s *RequestService) cachedAuthorization(ctx context.Context, token string) *interaction.AuthorizationRequest {
	if s.cache == nil {
		return nil
	}

	payload, ok, err := s.cache.Get(ctx, authorizationCacheKey(token))
	if err != nil || !ok {
		return nil
	}

	var resolved interaction.AuthorizationRequest
	if err := json.Unmarshal(payload, &resolved); err != nil {
		return nil
	}
	return &resolved
}

func (s *RequestService) cacheAuthorization(ctx context.Context, token string, resolved *interaction.AuthorizationRequest, ttl time.Duration) {
	if s.cache == nil || ttl <= 0 {
		return
	}

	payload, err := json.Marshal(resolved)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, authorizationCacheKey(token), payload, ttl); err != nil {
		s.log.Debug("authorization cache write failed", zap.Error(err))
	}
}

func authorizationCacheKey(token string) string {
	return "authz:" + token
}

// extractRequestToken pulls the opaque token out of a return URL. Callback
// style URLs carry it as a query parameter; anything else is treated as the
// token itself. The token is only ever used as a lookup handle.
func extractRequestToken(returnURL string) string {
	returnURL = strings.TrimSpace(returnURL)
	if returnURL == "" {
		return ""
	}

	if strings.ContainsAny(returnURL, "/?") {
		parsed, err := url.Parse(returnURL)
		if err != nil {
			return ""
		}
		return parsed.Query().Get(requestQueryParam)
	}
	return returnURL
}
