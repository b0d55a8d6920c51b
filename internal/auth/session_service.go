package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/gatehouse-idp/gatehouse/internal/interaction"
	"github.com/gatehouse-idp/gatehouse/internal/models"
	"github.com/gatehouse-idp/gatehouse/pkg/metrics"
)

// Default session lifetimes. Remembered sessions outlive browser sessions.
const (
	DefaultSessionTTL  = 12 * time.Hour
	DefaultRememberTTL = 30 * 24 * time.Hour
)

// SessionConfig describes tunable behaviour for the SessionService.
type SessionConfig struct {
	SessionTTL  time.Duration
	RememberTTL time.Duration
	Clock       func() time.Time
}

// SessionMetadata captures contextual information about the client.
type SessionMetadata struct {
	IPAddress string
	UserAgent string
}

var (
	// ErrSessionNotFound indicates that no session matches the token.
	ErrSessionNotFound = errors.New("session: not found")
	// ErrSessionRevoked marks a session that has already been terminated.
	ErrSessionRevoked = errors.New("session: revoked")
	// ErrSessionExpired signals that the session reached its expiry.
	ErrSessionExpired = errors.New("session: expired")
)

// SessionService manages issuance, resolution, and termination of local
// sessions. The signed JWT is the cookie payload; the database row is the
// source of truth for revocation.
type SessionService struct {
	db          *gorm.DB
	jwt         *JWTService
	sessionTTL  time.Duration
	rememberTTL time.Duration
	now         func() time.Time
}

// NewSessionService constructs a session manager backed by the provided
// database and JWT service.
func NewSessionService(db *gorm.DB, jwtService *JWTService, cfg SessionConfig) (*SessionService, error) {
	if db == nil {
		return nil, errors.New("session service: db is required")
	}
	if jwtService == nil {
		return nil, errors.New("session service: jwt service is required")
	}

	sessionTTL := cfg.SessionTTL
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}
	rememberTTL := cfg.RememberTTL
	if rememberTTL <= 0 {
		rememberTTL = DefaultRememberTTL
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &SessionService{
		db:          db,
		jwt:         jwtService,
		sessionTTL:  sessionTTL,
		rememberTTL: rememberTTL,
		now:         clock,
	}, nil
}

// Issue creates a session row for the user and returns the signed token to
// place in the cookie.
func (s *SessionService) Issue(ctx context.Context, user *interaction.User, idp string, remember bool, meta SessionMetadata) (string, *models.Session, error) {
	if user == nil || strings.TrimSpace(user.SubjectID) == "" {
		return "", nil, errors.New("session service: user is required")
	}
	if strings.TrimSpace(idp) == "" {
		return "", nil, errors.New("session service: identity provider is required")
	}

	ttl := s.sessionTTL
	if remember {
		ttl = s.rememberTTL
	}

	now := s.now()
	session := &models.Session{
		UserID:           user.SubjectID,
		SubjectID:        user.SubjectID,
		DisplayName:      user.DisplayName,
		IdentityProvider: idp,
		Remember:         remember,
		IPAddress:        strings.TrimSpace(meta.IPAddress),
		UserAgent:        strings.TrimSpace(meta.UserAgent),
		ExpiresAt:        now.Add(ttl),
	}

	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return "", nil, fmt.Errorf("session service: create session: %w", err)
	}

	metrics.ActiveSessions.Inc()

	token, err := s.jwt.GenerateSessionToken(SessionTokenInput{
		SubjectID:        user.SubjectID,
		SessionID:        session.ID,
		DisplayName:      user.DisplayName,
		IdentityProvider: idp,
		TTL:              ttl,
	})
	if err != nil {
		return "", nil, fmt.Errorf("session service: generate token: %w", err)
	}

	return token, session, nil
}

// Resolve validates the cookie token and loads the backing session. Revoked
// and expired sessions fail with the corresponding sentinel.
func (s *SessionService) Resolve(ctx context.Context, token string) (*interaction.Session, error) {
	claims, err := s.jwt.ValidateSessionToken(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionNotFound, err)
	}

	var session models.Session
	err = s.db.WithContext(ctx).First(&session, "id = ?", claims.SessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session service: load session: %w", err)
	}

	if session.RevokedAt != nil {
		return nil, ErrSessionRevoked
	}
	if s.now().After(session.ExpiresAt) {
		return nil, ErrSessionExpired
	}

	return &interaction.Session{
		SessionID:        session.ID,
		SubjectID:        session.SubjectID,
		DisplayName:      session.DisplayName,
		IdentityProvider: session.IdentityProvider,
	}, nil
}

// Terminate revokes the session. Terminating an unknown or already-revoked
// session is a no-op.
func (s *SessionService) Terminate(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return nil
	}

	now := s.now()
	result := s.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("id = ? AND revoked_at IS NULL", sessionID).
		Update("revoked_at", now)
	if result.Error != nil {
		return fmt.Errorf("session service: revoke session: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		metrics.ActiveSessions.Dec()
	}
	return nil
}

// CleanupExpired removes sessions past their expiry, returning the count.
func (s *SessionService) CleanupExpired(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at < ?", s.now()).
		Delete(&models.Session{})
	if result.Error != nil {
		return 0, fmt.Errorf("session service: cleanup: %w", result.Error)
	}
	return result.RowsAffected, nil
}
