package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuthorizationRequest is a pending authorization flow created by the
// authorization endpoint. The Token is the only handle clients ever see;
// its content carries no meaning.
type AuthorizationRequest struct {
	ID    string `gorm:"primaryKey;type:uuid" json:"id"`
	Token string `gorm:"uniqueIndex;not null" json:"-"`

	ClientID     string `gorm:"not null;index" json:"client_id"`
	IdP          string `json:"idp"`
	LoginHint    string `json:"login_hint"`
	RedirectURI  string `gorm:"not null" json:"redirect_uri"`
	NativeClient bool   `gorm:"default:false" json:"native_client"`

	Denied     bool   `gorm:"default:false" json:"denied"`
	DenyReason string `json:"deny_reason"`

	ExpiresAt time.Time `gorm:"index" json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (r *AuthorizationRequest) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Token == "" {
		r.Token = uuid.NewString()
	}
	return nil
}
