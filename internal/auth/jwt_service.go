package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultSessionTokenTTL is the fallback validity period for session tokens.
const DefaultSessionTokenTTL = 8 * time.Hour

// JWTConfig bundles the configuration required to build a JWTService.
type JWTConfig struct {
	Secret   string
	Issuer   string
	TokenTTL time.Duration
	Clock    func() time.Time
}

// Claims are the custom claims embedded in issued session tokens.
type Claims struct {
	SessionID        string `json:"sid"`
	DisplayName      string `json:"name,omitempty"`
	IdentityProvider string `json:"idp,omitempty"`
	jwt.RegisteredClaims
}

// SessionTokenInput holds the parameters used when generating a session token.
type SessionTokenInput struct {
	SubjectID        string
	SessionID        string
	DisplayName      string
	IdentityProvider string
	TTL              time.Duration
}

// JWTService issues and validates the signed session cookie payload.
type JWTService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTService constructs a JWTService from the supplied configuration.
func NewJWTService(cfg JWTConfig) (*JWTService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt: secret must be provided")
	}

	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = DefaultSessionTokenTTL
	}

	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}

	return &JWTService{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    ttl,
		now:    now,
	}, nil
}

// GenerateSessionToken issues a signed token carrying the session claims.
func (s *JWTService) GenerateSessionToken(input SessionTokenInput) (string, error) {
	if input.SubjectID == "" {
		return "", errors.New("jwt: subject id is required")
	}
	if input.SessionID == "" {
		return "", errors.New("jwt: session id is required")
	}

	ttl := input.TTL
	if ttl <= 0 {
		ttl = s.ttl
	}

	now := s.now()
	claims := &Claims{
		SessionID:        input.SessionID,
		DisplayName:      input.DisplayName,
		IdentityProvider: input.IdentityProvider,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   input.SubjectID,
			Issuer:    s.issuer,
			ID:        input.SessionID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}

	return signed, nil
}

// ValidateSessionToken parses and validates a signed token, returning the
// application claims.
func (s *JWTService) ValidateSessionToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, errors.New("jwt: token string is empty")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)

	var claims Claims
	_, err := parser.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("jwt: parse token: %w", err)
	}

	if s.issuer != "" && claims.Issuer != s.issuer {
		return nil, errors.New("jwt: invalid issuer")
	}

	if claims.Subject == "" || claims.SessionID == "" {
		return nil, errors.New("jwt: missing session claims")
	}

	return &claims, nil
}
