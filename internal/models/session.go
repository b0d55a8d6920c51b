package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Session is an authenticated local session issued after a successful login.
type Session struct {
	ID     string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID string `gorm:"type:uuid;not null;index" json:"user_id"`
	User   *User  `gorm:"foreignKey:UserID" json:"user,omitempty"`

	// SubjectID and DisplayName are denormalised so logout events can be
	// recorded after the user row is no longer loaded.
	SubjectID   string `gorm:"not null;index" json:"subject_id"`
	DisplayName string `json:"display_name"`

	// IdentityProvider records which scheme authenticated the user
	// ("local" or an external scheme name).
	IdentityProvider string `gorm:"not null" json:"identity_provider"`

	Remember  bool       `gorm:"default:false" json:"remember"`
	IPAddress string     `json:"ip_address"`
	UserAgent string     `json:"user_agent"`
	ExpiresAt time.Time  `gorm:"index" json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
	RevokedAt *time.Time `json:"revoked_at"`
}

func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}
