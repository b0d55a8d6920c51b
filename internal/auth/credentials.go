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
	"github.com/gatehouse-idp/gatehouse/pkg/crypto"
)

// Default lockout policy applied when the configuration leaves it unset.
const (
	DefaultMaxFailedAttempts = 5
	DefaultLockoutDuration   = 15 * time.Minute
)

// CredentialConfig tunes the local credential store's lockout policy.
type CredentialConfig struct {
	MaxFailedAttempts int
	LockoutDuration   time.Duration
	Clock             func() time.Time
}

// RegisterInput holds the fields accepted for self-registration.
type RegisterInput struct {
	Username    string
	Email       string
	Password    string
	DisplayName string
}

// CredentialStore verifies username/password credentials against the local
// user table and enforces the failed-attempt lockout policy.
type CredentialStore struct {
	db          *gorm.DB
	maxAttempts int
	lockout     time.Duration
	now         func() time.Time
}

// NewCredentialStore constructs the local credential store.
func NewCredentialStore(db *gorm.DB, cfg CredentialConfig) (*CredentialStore, error) {
	if db == nil {
		return nil, errors.New("credential store: db is required")
	}

	maxAttempts := cfg.MaxFailedAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxFailedAttempts
	}
	lockout := cfg.LockoutDuration
	if lockout <= 0 {
		lockout = DefaultLockoutDuration
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &CredentialStore{
		db:          db,
		maxAttempts: maxAttempts,
		lockout:     lockout,
		now:         clock,
	}, nil
}

// Verify checks the supplied credentials. Unknown users, wrong passwords, and
// inactive accounts all fail identically so the caller cannot probe for
// account existence. Locked accounts fail with a distinct sentinel.
func (s *CredentialStore) Verify(ctx context.Context, username, password string) (*interaction.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, interaction.ErrInvalidCredentials
	}

	var user models.User
	err := s.db.WithContext(ctx).First(&user, "username = ?", username).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Burn a comparison so unknown users cost the same as wrong passwords.
		crypto.VerifyPassword("$2a$10$000000000000000000000uGyUkAaSYGCfHZqvfp2OBRmmsWJ9rS3e", password)
		return nil, interaction.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("credential store: lookup user: %w", err)
	}

	now := s.now()
	if user.LockedUntil != nil && now.Before(*user.LockedUntil) {
		return nil, interaction.ErrAccountLocked
	}

	if !user.IsActive || !crypto.VerifyPassword(user.Password, password) {
		if err := s.recordFailure(ctx, &user, now); err != nil {
			return nil, err
		}
		return nil, interaction.ErrInvalidCredentials
	}

	updates := map[string]any{
		"failed_attempts": 0,
		"locked_until":    nil,
		"last_login_at":   now,
	}
	if err := s.db.WithContext(ctx).Model(&user).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("credential store: record login: %w", err)
	}

	return toInteractionUser(&user), nil
}

// FindByName returns the user by username, or (nil, nil) if absent.
func (s *CredentialStore) FindByName(ctx context.Context, username string) (*interaction.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, nil
	}

	var user models.User
	err := s.db.WithContext(ctx).First(&user, "username = ?", username).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("credential store: lookup user: %w", err)
	}
	return toInteractionUser(&user), nil
}

// Register creates a new active local account.
func (s *CredentialStore) Register(ctx context.Context, input RegisterInput) (*interaction.User, error) {
	username := strings.TrimSpace(input.Username)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if username == "" || email == "" || input.Password == "" {
		return nil, errors.New("credential store: username, email and password are required")
	}

	hash, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("credential store: hash password: %w", err)
	}

	user := &models.User{
		Username:    username,
		Email:       email,
		Password:    hash,
		DisplayName: strings.TrimSpace(input.DisplayName),
		IsActive:    true,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, fmt.Errorf("credential store: create user: %w", err)
	}

	return toInteractionUser(user), nil
}

func (s *CredentialStore) recordFailure(ctx context.Context, user *models.User, now time.Time) error {
	attempts := user.FailedAttempts + 1
	updates := map[string]any{"failed_attempts": attempts}
	if attempts >= s.maxAttempts {
		updates["locked_until"] = now.Add(s.lockout)
		updates["failed_attempts"] = 0
	}

	if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		return fmt.Errorf("credential store: record failure: %w", err)
	}
	return nil
}

func toInteractionUser(user *models.User) *interaction.User {
	displayName := user.DisplayName
	if displayName == "" {
		displayName = user.Username
	}
	return &interaction.User{
		SubjectID:   user.ID,
		Username:    user.Username,
		DisplayName: displayName,
	}
}
